package tui

import (
	"testing"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/readiness"
	"github.com/jaycho46/codex-teams/internal/statestore"
)

func TestBuildRows(t *testing.T) {
	result := readiness.Result{
		Ready: []board.TaskRow{{ID: "T1-001", Title: "Add login", Owner: "AgentA"}},
		Excluded: []readiness.Excluded{
			{Task: board.TaskRow{ID: "T1-002", Title: "Add logout", Owner: "AgentB"}, Reason: readiness.ActiveLock},
		},
		RunningLocks: []*statestore.Lock{{Scope: "app-shell", TaskID: "T1-003", Owner: "AgentC"}},
	}

	rows := buildRows(result)
	if len(rows) != 3 {
		t.Fatalf("buildRows() returned %d rows, want 3", len(rows))
	}
	if rows[0].kind != "ready" || rows[0].id != "T1-001" {
		t.Errorf("rows[0] = %+v, want ready/T1-001", rows[0])
	}
	if rows[1].kind != "excluded" || rows[1].reason != string(readiness.ActiveLock) {
		t.Errorf("rows[1] = %+v, want excluded/active_lock", rows[1])
	}
	if rows[2].kind != "running" || rows[2].owner != "AgentC" {
		t.Errorf("rows[2] = %+v, want running/AgentC", rows[2])
	}
}
