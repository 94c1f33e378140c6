// Package autocleanup implements the shared state-reconciliation routine
// behind the worker-exit watcher and the "task stop", "emergency-stop",
// "task auto-cleanup-exit", and "task cleanup-stale" commands. All four
// entry points converge divergent runtime state (Lock, PidMeta, worktree,
// branch) back to a consistent rest state;
// they differ only in how a candidate task is found and whether the DONE
// guard may be overridden.
package autocleanup

import (
	"fmt"
	"time"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/launcher"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/tmux"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

// Actor is the actor name recorded against worker-exit-triggered cleanups
// ("Stopped by codex-teams: worker exited (backend=tmux)").
const Actor = "codex-teams"

// doneStatuses are the localized spellings of "done" the completion
// guard (and this package's DONE guard) accepts.
var doneStatuses = map[string]bool{
	"DONE":    true,
	"완료":      true,
	"Complete": true,
	"complete": true,
}

// IsDone reports whether status is one of the accepted DONE spellings.
func IsDone(status string) bool {
	return doneStatuses[status]
}

// Deps are the resources a reconcile pass needs.
type Deps struct {
	Store     *statestore.Store
	Primary   *gitrepo.Git
	BoardPath string
}

// Outcome records what a reconcile pass actually did, so callers (the CLI
// layer) can print exact diagnostics for each branch taken.
type Outcome struct {
	Skipped             bool
	SkipReason          string
	RolledBackToTODO    bool
	RollbackSkippedDone bool
	LockRemoved         bool
	WorktreeRemoved     bool
	PidMetaRemoved      bool
	Meta                *statestore.PidMeta
}

// ReconcileWorkerExit is the auto-cleanup watcher's entry point and the
// body of "task auto-cleanup-exit". It is a no-op if no PidMeta exists
// for taskID, or if its recorded pid does not match
// expectedPid — either means another actor already converged this task's
// state. It never regresses a DONE row (force=false).
func ReconcileWorkerExit(deps Deps, taskID string, expectedPid int, now time.Time) (Outcome, error) {
	meta, err := deps.Store.ReadPidMeta(taskID)
	if err != nil {
		return Outcome{}, err
	}
	if meta == nil || meta.Pid != expectedPid {
		return Outcome{Skipped: true, SkipReason: "no matching pidmeta for this task/pid"}, nil
	}

	reason := fmt.Sprintf("Stopped by %s: worker exited (backend=%s)", Actor, meta.LaunchBackend)
	return reconcile(deps, meta, false, Actor, reason)
}

// ReconcileStop is "task stop"/"emergency-stop"'s entry point: operator-
// initiated, so it may regress a DONE row when force is true, and it makes
// a best-effort attempt to terminate the worker process before cleanup
// (SIGTERM, grace period, then SIGKILL).
func ReconcileStop(deps Deps, taskID, actor, userReason string, force bool, now time.Time) (Outcome, error) {
	meta, err := deps.Store.ReadPidMeta(taskID)
	if err != nil {
		return Outcome{}, err
	}
	if meta == nil {
		return Outcome{Skipped: true, SkipReason: "no pidmeta for task"}, nil
	}

	_ = statestore.Terminate(meta.Pid, layout.StopGracePeriod)
	reason := fmt.Sprintf("Stopped by %s: %s", actor, userReason)
	return reconcile(deps, meta, force, actor, reason)
}

// reconcile performs the steps common to every entry point, in a fixed
// order: kill the tmux session and launchctl label, roll the TODO row
// back unless it is DONE and force is false, remove the scope lock if it
// still points to this task, remove the worktree and branch, remove the
// PidMeta. Every step is best-effort and independently idempotent: a
// failure in one does not block the rest.
func reconcile(deps Deps, meta *statestore.PidMeta, force bool, actor, reason string) (Outcome, error) {
	out := Outcome{Meta: meta}

	if meta.TmuxSession != "" {
		_ = tmux.New().KillSession(meta.TmuxSession)
	}
	launcher.KillLaunchLabel(meta.LaunchLabel)

	brd, err := board.Parse(deps.BoardPath)
	if err == nil {
		var status string
		found := false
		for _, row := range brd.ListTasks() {
			if row.ID == meta.TaskID {
				status, found = row.Status, true
				break
			}
		}
		switch {
		case !found:
			// Row no longer on the board; nothing to roll back.
		case IsDone(status) && !force:
			out.RollbackSkippedDone = true
		default:
			if err := brd.UpdateStatus(meta.TaskID, "TODO"); err == nil {
				out.RolledBackToTODO = true
				deps.Store.AppendUpdateLog(actor, meta.TaskID, "TODO", reason)
			}
		}
	}

	if lock, err := deps.Store.ReadLock(meta.Scope); err == nil && lock != nil && lock.TaskID == meta.TaskID {
		if err := deps.Store.RemoveLock(meta.Scope); err == nil {
			out.LockRemoved = true
		}
	}

	if meta.Worktree != "" && meta.Worktree != deps.Primary.WorkDir() {
		branch := layout.BranchName(meta.Owner, meta.TaskID)
		if err := worktree.Remove(deps.Primary, meta.Worktree, branch); err == nil {
			out.WorktreeRemoved = true
		}
	}

	if err := deps.Store.RemovePidMeta(meta.TaskID); err == nil {
		out.PidMetaRemoved = true
	}

	return out, nil
}

// ScanStale enumerates every PidMeta in the state directory whose recorded
// pid is no longer alive — the candidate set for "task cleanup-stale".
func ScanStale(deps Deps) ([]*statestore.PidMeta, error) {
	metas, err := deps.Store.ListPidMeta()
	if err != nil {
		return nil, err
	}
	var stale []*statestore.PidMeta
	for _, m := range metas {
		if !statestore.IsAlive(m.Pid) {
			stale = append(stale, m)
		}
	}
	return stale, nil
}

// CleanupStale reconciles every stale PidMeta found by ScanStale, never
// regressing a DONE row, returning one Outcome per task processed.
func CleanupStale(deps Deps, now time.Time) ([]Outcome, error) {
	stale, err := ScanStale(deps)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(stale))
	for _, m := range stale {
		reason := fmt.Sprintf("Stopped by %s: worker exited (backend=%s)", Actor, m.LaunchBackend)
		out, err := reconcile(deps, m, false, Actor, reason)
		if err != nil {
			return outcomes, codexerr.Wrap(codexerr.StateInvariant, "cleaning up stale task", m.TaskID, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
