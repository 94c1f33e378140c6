// Package workspace resolves the primary repository root and the state
// directory from any starting point — the primary repo's own working copy
// or one of its task worktrees — so the Scheduler can tell the two apart
// and every command agrees on where orchestrator.toml and the rest of the
// state directory live.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/layout"
)

// StateDirEnvVar overrides the state directory for agent-side calls made
// from inside a task worktree.
const StateDirEnvVar = "AI_STATE_DIR"

// AllowWorktreeRunEnvVar permits running the Scheduler from a non-primary
// worktree, overriding the normal refusal.
const AllowWorktreeRunEnvVar = "AI_ORCH_ALLOW_WORKTREE_RUN"

// FindPrimaryRepoRoot returns the working directory of the primary repo
// reachable from dir, whether dir is the primary repo itself or one of its
// task worktrees: both share the same common git directory.
func FindPrimaryRepoRoot(dir string) (string, error) {
	g := gitrepo.New(dir)
	if !g.IsRepo() {
		return "", codexerr.New(codexerr.NotFound, "not inside a git repository", dir)
	}
	commonDir, err := g.CommonDir()
	if err != nil {
		return "", codexerr.Wrap(codexerr.NotFound, "locating git common directory", dir, err)
	}
	commonDir = filepath.Clean(commonDir)
	if filepath.Base(commonDir) == ".git" {
		return filepath.Dir(commonDir), nil
	}
	// A bare repository's common dir has no enclosing worktree; treat it as
	// its own root rather than erroring, since no caller here operates on
	// bare repos directly.
	return commonDir, nil
}

// IsPrimaryRepo reports whether dir is the primary repo's own working
// directory rather than one of its worktrees: true iff dir's git directory
// is the repository's common git directory.
func IsPrimaryRepo(dir string) (bool, error) {
	g := gitrepo.New(dir)
	if !g.IsRepo() {
		return false, codexerr.New(codexerr.NotFound, "not inside a git repository", dir)
	}
	gitDir, err := g.GitDir()
	if err != nil {
		return false, err
	}
	commonDir, err := g.CommonDir()
	if err != nil {
		return false, err
	}
	return filepath.Clean(gitDir) == filepath.Clean(commonDir), nil
}

// ResolveStateDir picks the state directory: an explicit --state-dir
// flag wins, then AI_STATE_DIR, then "<repoRoot>/.state".
func ResolveStateDir(repoRoot, flagStateDir string) string {
	if flagStateDir != "" {
		return flagStateDir
	}
	if env := os.Getenv(StateDirEnvVar); env != "" {
		return env
	}
	return filepath.Join(repoRoot, layout.DefaultStateDirName)
}

// AllowWorktreeRun reports whether AI_ORCH_ALLOW_WORKTREE_RUN=1 is set.
func AllowWorktreeRun() bool {
	return os.Getenv(AllowWorktreeRunEnvVar) == "1"
}
