// Package completion implements the "task complete" pipeline, invoked by
// a worker from inside its own task worktree. It enforces the
// precondition chain in order, then merges,
// unlocks, and removes the worktree/branch/PidMeta. It never creates
// commits — the worker must have committed its own DONE marker before
// calling this.
package completion

import (
	"strings"
	"time"

	"github.com/jaycho46/codex-teams/internal/autocleanup"
	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

// DefaultSummary is used when the caller omits --summary.
const DefaultSummary = "task complete"

// Deps are the resources the completion pipeline needs.
type Deps struct {
	Store     *statestore.Store
	Primary   *gitrepo.Git
	BoardPath string
}

// Request describes one "task complete" invocation.
type Request struct {
	Agent         string
	Scope         string
	TaskID        string
	Summary       string
	Trigger       string
	BaseBranch    string
	MergeStrategy worktree.MergeStrategy
	WorktreeDir   string // the caller's current working directory
}

// Result is returned on success, for the CLI layer to print and to decide
// whether to re-enter the Scheduler.
type Result struct {
	Branch  string
	Summary string
}

// Complete runs the precondition chain and then the ordered completion
// steps. Each precondition and each step fails loudly with a distinct
// codexerr.Kind; completion steps are totally
// ordered (merge -> unlock -> worktree/branch removal -> pid cleanup) so a
// crash between any two leaves a state the next "task cleanup-stale" pass
// (internal/autocleanup) can converge.
func Complete(deps Deps, req Request, now time.Time) (*Result, error) {
	caller := gitrepo.New(req.WorktreeDir)

	// Precondition 1: caller is in a worktree, not the primary repo, on a
	// codex/* branch.
	if req.WorktreeDir == deps.Primary.WorkDir() {
		return nil, codexerr.New(codexerr.MissingPrerequisite, "task complete must run from the task's worktree, not the primary repo", req.WorktreeDir)
	}
	branch, err := caller.CurrentBranch()
	if err != nil {
		return nil, codexerr.Wrap(codexerr.MissingPrerequisite, "reading current branch", req.WorktreeDir, err)
	}
	if !strings.HasPrefix(branch, "codex/") {
		return nil, codexerr.New(codexerr.MissingPrerequisite, "current branch is not a task branch (must start with codex/)", branch)
	}

	// Precondition 2: a Lock exists for scope, owned by agent, bound to
	// task_id.
	lock, err := deps.Store.ReadLock(req.Scope)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, codexerr.New(codexerr.NotFound, "no lock held for scope", req.Scope)
	}
	if lock.Owner != req.Agent || lock.TaskID != req.TaskID {
		return nil, codexerr.New(codexerr.LockConflict, "lock is not owned by this agent/task", req.Scope)
	}

	// Precondition 3: no tracked uncommitted changes (untracked is fine).
	dirty, err := caller.HasTrackedUncommittedChanges()
	if err != nil {
		return nil, codexerr.Wrap(codexerr.MissingPrerequisite, "checking worktree status", req.WorktreeDir, err)
	}
	if dirty {
		return nil, codexerr.New(codexerr.MissingPrerequisite, "worktree has tracked uncommitted changes", req.WorktreeDir)
	}

	// Precondition 4: the TODO row's status is DONE (or a localized
	// equivalent) — the worker must have flipped it itself.
	brd, err := board.Parse(deps.BoardPath)
	if err != nil {
		return nil, err
	}
	var status string
	found := false
	for _, row := range brd.ListTasks() {
		if row.ID == req.TaskID {
			status, found = row.Status, true
			break
		}
	}
	if !found {
		return nil, codexerr.New(codexerr.NotFound, "task not found on board", req.TaskID)
	}
	if !autocleanup.IsDone(status) {
		return nil, codexerr.New(codexerr.Rejected, "task status is not DONE", status)
	}

	summary := req.Summary
	if summary == "" {
		summary = DefaultSummary
	}

	// Step 1: append UpdateLog entry.
	deps.Store.AppendUpdateLog(req.Agent, req.TaskID, "DONE", summary)

	// Step 3 (step 2, CLI-path/binary resolution, is the caller's job):
	// merge the branch into base.
	if err := worktree.MergeInto(deps.Primary, req.WorktreeDir, req.BaseBranch, branch, req.MergeStrategy); err != nil {
		return nil, err
	}

	// Step 4: remove the Lock.
	if err := deps.Store.RemoveLock(req.Scope); err != nil {
		return nil, codexerr.Wrap(codexerr.StateInvariant, "removing scope lock after merge", req.Scope, err)
	}

	// Step 5: remove the worktree and branch.
	if err := worktree.Remove(deps.Primary, req.WorktreeDir, branch); err != nil {
		return nil, err
	}

	// Step 6: remove the PidMeta, if any.
	if err := deps.Store.RemovePidMeta(req.TaskID); err != nil {
		return nil, codexerr.Wrap(codexerr.StateInvariant, "removing pidmeta after merge", req.TaskID, err)
	}

	return &Result{Branch: branch, Summary: summary}, nil
}
