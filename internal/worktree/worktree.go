// Package worktree manages the one-worktree-per-task lifecycle on top of
// internal/gitrepo: creating, merging back, and removing the paired
// worktree+branch a worker operates in.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/layout"
)

// MergeStrategy selects how CompletionMerge folds a branch back into base.
type MergeStrategy string

const (
	FFOnly       MergeStrategy = "ff-only"
	RebaseThenFF MergeStrategy = "rebase-then-ff"
)

// BranchName returns codex/<slug(agent)>-<slug(task)>.
func BranchName(agent, taskID string) string {
	return layout.BranchName(agent, taskID)
}

// EnsureAgentWorktree returns the canonical worktree path for agent/task,
// creating it from baseBranch if absent. If the canonical path already
// exists but is not a worktree of repo, it is quarantined by renaming it to
// "<path>.orphan-<unix-timestamp>" and a fresh worktree is created in its
// place; the quarantined directory is left on disk for inspection.
func EnsureAgentWorktree(repo *gitrepo.Git, repoName, agent, taskID, baseBranch, parentDir string, now time.Time) (string, error) {
	branch := BranchName(agent, taskID)
	path := filepath.Join(parentDir, layout.WorktreeDirName(repoName, agent, taskID))

	if existing, err := FindWorktreeForBranch(repo, branch); err == nil && existing != "" {
		return existing, nil
	}

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return "", codexerr.New(codexerr.StateInvariant, "worktree path is occupied by a file", path)
		}
		orphan := fmt.Sprintf("%s.orphan-%d", path, now.Unix())
		if err := os.Rename(path, orphan); err != nil {
			return "", codexerr.Wrap(codexerr.StateInvariant, "quarantining orphaned worktree directory", path, err)
		}
	}

	// A branch can outlive its worktree (partial cleanup); reattach to it
	// instead of failing on "branch already exists".
	branchExists, err := repo.BranchExists(branch)
	if err != nil {
		return "", codexerr.Wrap(codexerr.StateInvariant, "checking branch existence", branch, err)
	}
	if branchExists {
		if err := repo.WorktreeAddExisting(path, branch); err != nil {
			return "", codexerr.Wrap(codexerr.WorkerLaunch, "creating worktree on existing branch", path, err)
		}
		return path, nil
	}
	if err := repo.WorktreeAddFromRef(path, branch, baseBranch); err != nil {
		return "", codexerr.Wrap(codexerr.WorkerLaunch, "creating worktree", path, err)
	}
	return path, nil
}

// FindWorktreeForBranch returns the filesystem path of the worktree checked
// out on branch, or "" if none exists.
func FindWorktreeForBranch(repo *gitrepo.Git, branch string) (string, error) {
	worktrees, err := repo.WorktreeList()
	if err != nil {
		return "", err
	}
	for _, w := range worktrees {
		if w.Branch == branch {
			return w.Path, nil
		}
	}
	return "", nil
}

// MergeInto folds branch (checked out at worktreePath) into base in the
// primary repo, per strategy. It refuses if the primary repo has tracked
// uncommitted changes, and is a no-op if branch is already merged into base.
func MergeInto(primary *gitrepo.Git, worktreePath, base, branch string, strategy MergeStrategy) error {
	dirty, err := primary.HasTrackedUncommittedChanges()
	if err != nil {
		return codexerr.Wrap(codexerr.MergeFailed, "checking primary repo status", "", err)
	}
	if dirty {
		return codexerr.New(codexerr.StateInvariant, "primary repo has tracked uncommitted changes", primary.WorkDir())
	}

	ancestor, err := primary.IsAncestor(branch, base)
	if err != nil {
		return codexerr.Wrap(codexerr.MergeFailed, "checking merge ancestry", branch, err)
	}
	if ancestor {
		return nil
	}

	if err := primary.Merge(branch); err == nil {
		return nil
	}

	if strategy != RebaseThenFF {
		return codexerr.New(codexerr.MergeFailed, "fast-forward merge failed", branch)
	}

	worker := gitrepo.New(worktreePath)
	if err := worker.Checkout(branch); err != nil {
		return codexerr.Wrap(codexerr.MergeFailed, "checking out branch in worktree", branch, err)
	}
	if err := worker.Rebase(base); err != nil {
		_ = worker.AbortRebase()
		return codexerr.Wrap(codexerr.MergeFailed, "rebase onto base failed, aborted", branch, err)
	}
	if err := primary.Merge(branch); err != nil {
		return codexerr.Wrap(codexerr.MergeFailed, "fast-forward merge failed after rebase", branch, err)
	}
	return nil
}

// Remove force-removes worktreePath and, if it still exists, deletes branch.
// It refuses to remove a worktree path equal to the primary repo.
func Remove(primary *gitrepo.Git, worktreePath, branch string) error {
	if worktreePath == primary.WorkDir() {
		return codexerr.New(codexerr.Rejected, "refusing to remove the primary repo as a worktree", worktreePath)
	}
	if err := primary.WorktreeRemove(worktreePath, true); err != nil {
		return codexerr.Wrap(codexerr.StateInvariant, "removing worktree", worktreePath, err)
	}
	exists, err := primary.BranchExists(branch)
	if err != nil {
		return codexerr.Wrap(codexerr.StateInvariant, "checking branch existence", branch, err)
	}
	if exists {
		if err := primary.DeleteBranch(branch, true); err != nil {
			return codexerr.Wrap(codexerr.StateInvariant, "deleting branch", branch, err)
		}
	}
	return nil
}
