// Package readiness implements the Readiness Evaluator: a pure function of
// a point-in-time snapshot (TODO board, locks, pid metadata, owner map,
// spec index) that decides which tasks the Scheduler may start next.
package readiness

import (
	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/specindex"
	"github.com/jaycho46/codex-teams/internal/statestore"
)

// Reason is an exclusion reason, evaluated in a fixed priority order.
type Reason string

const (
	UnmappedOwner        Reason = "unmapped_owner"
	ActiveWorker         Reason = "active_worker"
	ActiveLock           Reason = "active_lock"
	ActiveSignalConflict Reason = "active_signal_conflict"
	OwnerBusy            Reason = "owner_busy"
	MissingTaskSpec      Reason = "missing_task_spec"
	InvalidTaskSpec      Reason = "invalid_task_spec"
	DepsNotReady         Reason = "deps_not_ready"
)

// Source names which runtime signal(s) produced an exclusion.
type Source string

const (
	SourcePid  Source = "pid"
	SourceLock Source = "lock"
	SourceBoth Source = "both"
)

// Excluded is one task the evaluator will not start this round.
type Excluded struct {
	Task   board.TaskRow
	Reason Reason
	Source Source
}

// Snapshot is everything the evaluator needs, taken while the RunLock is
// held so the result is a deterministic function of a single instant.
type Snapshot struct {
	Tasks    []board.TaskRow
	Locks    map[string]*statestore.Lock // keyed by scope
	PidMetas []*statestore.PidMeta
	Config   *config.Config
	StateDir string
	MaxStart int // 0 means unbounded
}

// Result is the evaluator's output: ready tasks (bounded by MaxStart),
// excluded tasks with reasons, and the locks observed as currently running.
type Result struct {
	Ready        []board.TaskRow
	Excluded     []Excluded
	RunningLocks []*statestore.Lock
}

// Evaluate runs the fixed-priority exclusion chain over every TODO row in
// snap, in file order, and returns the ready queue plus exclusions.
func Evaluate(snap Snapshot) Result {
	pidByTask := make(map[string]*statestore.PidMeta, len(snap.PidMetas))
	livePidByTask := make(map[string]*statestore.PidMeta)
	for _, p := range snap.PidMetas {
		pidByTask[p.TaskID] = p
		if statestore.IsAlive(p.Pid) {
			livePidByTask[p.TaskID] = p
		}
	}

	activeTasks := make(map[string]bool)
	for taskID := range livePidByTask {
		activeTasks[taskID] = true
	}
	for _, l := range snap.Locks {
		activeTasks[l.TaskID] = true
	}

	statusByID := make(map[string]string, len(snap.Tasks))
	for _, t := range snap.Tasks {
		statusByID[t.ID] = t.Status
	}

	ownerActiveOtherTask := make(map[string]string) // owner -> task_id currently active
	for _, t := range snap.Tasks {
		if activeTasks[t.ID] {
			ownerActiveOtherTask[t.Owner] = t.ID
		}
	}

	// A scope has a signal conflict when its Lock and any PidMeta recorded
	// against that scope disagree on which task is running.
	scopeConflict := make(map[string]bool, len(snap.Locks))
	for scope, l := range snap.Locks {
		for _, p := range snap.PidMetas {
			if p.Scope == scope && p.TaskID != l.TaskID {
				scopeConflict[scope] = true
				break
			}
		}
	}

	var result Result
	for _, l := range snap.Locks {
		result.RunningLocks = append(result.RunningLocks, l)
	}

	remaining := snap.MaxStart
	for _, t := range snap.Tasks {
		if t.Status != "TODO" {
			continue
		}

		reason, source, excluded := evaluateRow(t, snap, pidByTask, livePidByTask, ownerActiveOtherTask, statusByID, scopeConflict)
		if excluded {
			result.Excluded = append(result.Excluded, Excluded{Task: t, Reason: reason, Source: source})
			continue
		}

		if snap.MaxStart > 0 && remaining <= 0 {
			continue
		}
		result.Ready = append(result.Ready, t)
		if snap.MaxStart > 0 {
			remaining--
		}
	}
	return result
}

func evaluateRow(
	t board.TaskRow,
	snap Snapshot,
	pidByTask map[string]*statestore.PidMeta,
	livePidByTask map[string]*statestore.PidMeta,
	ownerActiveOtherTask map[string]string,
	statusByID map[string]string,
	scopeConflict map[string]bool,
) (Reason, Source, bool) {
	scope, mapped := snap.Config.ScopeForOwner(t.Owner)
	if !mapped {
		return UnmappedOwner, "", true
	}

	pid := pidByTask[t.ID]
	livePid := livePidByTask[t.ID]
	lock := snap.Locks[scope]

	if livePid != nil {
		return ActiveWorker, SourcePid, true
	}

	if lock != nil && lock.TaskID == t.ID {
		return ActiveLock, SourceLock, true
	}

	if lock != nil && scopeConflict[scope] {
		source := SourceLock
		if pid != nil {
			source = SourceBoth
		}
		return ActiveSignalConflict, source, true
	}

	if owner := ownerActiveOtherTask[t.Owner]; owner != "" && owner != t.ID {
		return OwnerBusy, "", true
	}

	switch specindex.Validate(snap.StateDir, t.ID).Status {
	case specindex.Missing:
		return MissingTaskSpec, "", true
	case specindex.Invalid:
		return InvalidTaskSpec, "", true
	}

	for _, dep := range t.Deps {
		if statusByID[dep] != "DONE" {
			return DepsNotReady, "", true
		}
	}

	return "", "", false
}
