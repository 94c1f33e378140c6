// Package scheduler implements `run start`: it acquires the
// RunLock, snapshots readiness, and for each ready task runs the start
// pipeline (worktree, scope lock, board update, worker launch) with a
// bounded, single-attempt rollback on any failure.
package scheduler

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/launcher"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/readiness"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/tmux"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

// Deps are the resources a scheduler run needs, resolved once by the CLI
// layer from --repo/--state-dir/--config and orchestrator.toml.
type Deps struct {
	Store        *statestore.Store
	Primary      *gitrepo.Git // rooted at the primary repo, never a worktree
	RepoRoot     string
	BoardPath    string
	Config       *config.Config
	ParentDir    string // where task worktrees are created
	CLIPath      string // absolute path to this binary, for launcher re-exec
	WorkerBinary string
	IsPrimary    bool // whether the caller's cwd is the primary repo
}

// Options are the `run start` parameters.
type Options struct {
	Trigger  string
	DryRun   bool
	NoLaunch bool
	MaxStart int
	Force    bool // bypasses the non-primary-worktree refusal (AI_ORCH_ALLOW_WORKTREE_RUN)
}

// StartedTask is one task the scheduler successfully moved to IN_PROGRESS
// (and, unless NoLaunch, launched a worker for).
type StartedTask struct {
	Task        board.TaskRow
	Worktree    string
	Branch      string
	Launch      *launcher.Result // nil when NoLaunch or DryRun
	Quarantined bool
}

// FailedStart is a ready task the scheduler attempted and rolled back.
type FailedStart struct {
	Task board.TaskRow
	Err  error
}

// Result is the outcome of one Run call.
type Result struct {
	Readiness readiness.Result
	Started   []StartedTask
	Failed    []FailedStart
}

// Run executes one scheduling pass. The RunLock is always
// released before Run returns, on every exit path.
func Run(deps Deps, opts Options, now time.Time) (*Result, error) {
	if !deps.IsPrimary && !opts.Force {
		return nil, codexerr.New(codexerr.MissingPrerequisite,
			"run start must execute from the primary repo (set AI_ORCH_ALLOW_WORKTREE_RUN=1 to override)", deps.RepoRoot)
	}

	if !opts.NoLaunch && !opts.DryRun {
		backend := launcher.Backend(deps.Config.Runtime.Backend)
		if err := launcher.Validate(backend); err != nil {
			return nil, err
		}
	}

	runLock, err := deps.Store.AcquireRunLock()
	if err != nil {
		return nil, err
	}
	defer runLock.Release()

	brd, err := board.Parse(deps.BoardPath)
	if err != nil {
		return nil, err
	}

	snap, err := Snapshot(deps, brd, opts.MaxStart)
	if err != nil {
		return nil, err
	}
	ready := readiness.Evaluate(*snap)

	result := &Result{Readiness: ready}
	if opts.DryRun {
		return result, nil
	}

	for _, t := range ready.Ready {
		started, err := startOne(deps, brd, t, opts, now)
		if err != nil {
			result.Failed = append(result.Failed, FailedStart{Task: t, Err: err})
			continue
		}
		result.Started = append(result.Started, *started)
	}
	return result, nil
}

// Snapshot assembles a point-in-time readiness.Snapshot from the board and
// state store. It takes no lock: the lock-free "status" read path calls it
// directly, while Run calls it only after acquiring the RunLock so a start
// attempt sees a snapshot consistent with its own exclusive window.
func Snapshot(deps Deps, brd *board.Board, maxStart int) (*readiness.Snapshot, error) {
	locks, err := readAllLocks(deps)
	if err != nil {
		return nil, err
	}
	pidMetas, err := deps.Store.ListPidMeta()
	if err != nil {
		return nil, err
	}
	return &readiness.Snapshot{
		Tasks:    brd.ListTasks(),
		Locks:    locks,
		PidMetas: pidMetas,
		Config:   deps.Config,
		StateDir: deps.RepoRoot, // specindex looks up tasks/specs under the repo root
		MaxStart: maxStart,
	}, nil
}

func readAllLocks(deps Deps) (map[string]*statestore.Lock, error) {
	locksDir := filepath.Join(deps.Store.Dir(), layout.LocksDir)
	entries, err := os.ReadDir(locksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*statestore.Lock{}, nil
		}
		return nil, err
	}
	locks := make(map[string]*statestore.Lock, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lock" {
			continue
		}
		scope := e.Name()[:len(e.Name())-len(".lock")]
		lock, err := deps.Store.ReadLock(scope)
		if err != nil || lock == nil {
			continue
		}
		locks[scope] = lock
	}
	return locks, nil
}

// startOne runs the start pipeline for a single task: ensure the worktree, acquire
// the scope lock (re-verifying atomically under the RunLock, since the
// readiness snapshot is already a moment old), write IN_PROGRESS, and
// launch the worker. Any failure triggers rollback bounded to exactly this
// attempt, restoring byte-equivalent pre-attempt state.
func startOne(deps Deps, brd *board.Board, t board.TaskRow, opts Options, now time.Time) (*StartedTask, error) {
	scope, mapped := deps.Config.ScopeForOwner(t.Owner)
	if !mapped {
		return nil, codexerr.New(codexerr.StateInvariant, "readiness admitted a task with an unmapped owner", t.Owner)
	}

	branch := worktree.BranchName(t.Owner, t.ID)
	branchPreexisted, _ := deps.Primary.BranchExists(branch)
	existingWorktree, _ := worktree.FindWorktreeForBranch(deps.Primary, branch)
	worktreePreexisted := existingWorktree != ""

	repoName := filepath.Base(deps.RepoRoot)
	candidatePath := filepath.Join(deps.ParentDir, layout.WorktreeDirName(repoName, t.Owner, t.ID))
	quarantining := false
	if !worktreePreexisted {
		if info, statErr := os.Stat(candidatePath); statErr == nil && info.IsDir() {
			quarantining = true
		}
	}

	wtPath, err := worktree.EnsureAgentWorktree(deps.Primary, repoName, t.Owner, t.ID, deps.Config.Merge.BaseBranch, deps.ParentDir, now)
	if err != nil {
		return nil, err
	}

	lock := &statestore.Lock{
		Owner: t.Owner, Scope: scope, TaskID: t.ID, Branch: branch,
		Worktree: wtPath, CreatedAt: now, HeartbeatAt: now,
	}
	if err := deps.Store.CreateLock(lock); err != nil {
		rollback(deps, brd, t, scope, wtPath, branch, worktreePreexisted, branchPreexisted, nil)
		return nil, err
	}

	if err := brd.UpdateStatus(t.ID, "IN_PROGRESS"); err != nil {
		rollback(deps, brd, t, scope, wtPath, branch, worktreePreexisted, branchPreexisted, nil)
		return nil, err
	}
	deps.Store.AppendUpdateLog(t.Owner, t.ID, "IN_PROGRESS", "started by "+opts.Trigger)

	if opts.NoLaunch {
		return &StartedTask{Task: t, Worktree: wtPath, Branch: branch, Quarantined: quarantining}, nil
	}

	req := launcher.Request{
		TaskID: t.ID, Title: t.Title, Agent: t.Owner, Scope: scope,
		Worktree: wtPath, StateDir: deps.Store.Dir(), PrimaryRepo: deps.RepoRoot,
		CLIPath: deps.CLIPath, WorkerBinary: deps.WorkerBinary,
		WorkerFlags: deps.Config.Runtime.CodexFlags,
		Backend:     launcher.Backend(deps.Config.Runtime.Backend),
		Trigger:     opts.Trigger,
	}
	launched, err := launcher.Launch(deps.Store, req, now)
	if err != nil {
		rollback(deps, brd, t, scope, wtPath, branch, worktreePreexisted, branchPreexisted, nil)
		return nil, err
	}

	return &StartedTask{Task: t, Worktree: wtPath, Branch: branch, Launch: launched, Quarantined: quarantining}, nil
}

// rollback undoes a failed start attempt: it terminates any spawned worker
// (killing its tmux session and launchctl label),
// removes the scope lock only if this attempt owned it, resets the TODO row,
// and removes the worktree/branch only if they did not pre-exist, leaving
// the state byte-equivalent to the pre-attempt state.
func rollback(deps Deps, brd *board.Board, t board.TaskRow, scope, wtPath, branch string, worktreePreexisted, branchPreexisted bool, launched *launcher.Result) {
	if launched != nil {
		if launched.TmuxSession != "" {
			_ = tmux.New().KillSession(launched.TmuxSession)
		}
		launcher.KillLaunchLabel(launched.LaunchLabel)
		if launched.Pid > 0 {
			_ = statestore.Terminate(launched.Pid, layout.StopGracePeriod)
		}
		_ = deps.Store.RemovePidMeta(t.ID)
	}

	if lock, err := deps.Store.ReadLock(scope); err == nil && lock != nil && lock.TaskID == t.ID {
		_ = deps.Store.RemoveLock(scope)
	}

	_ = brd.UpdateStatus(t.ID, "TODO")

	if !worktreePreexisted {
		_ = worktree.Remove(deps.Primary, wtPath, branch)
		return
	}
	if !branchPreexisted {
		if exists, _ := deps.Primary.BranchExists(branch); exists {
			_ = deps.Primary.DeleteBranch(branch, true)
		}
	}
}
