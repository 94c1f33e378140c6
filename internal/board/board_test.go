package board

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycho46/codex-teams/internal/codexerr"
)

const sampleBoard = `# Tasks

Some preamble text.

| ID | Title | Owner | Deps | Notes | Status |
|----|-------|-------|------|-------|--------|
| T1-001 | Build the app shell | AgentA | - | initial scaffold | TODO |
| T1-002 | Wire up routing | AgentB | T1-001 | needs shell | TODO |

Trailing notes.
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TODO.md")
	if err := os.WriteFile(path, []byte(sampleBoard), 0644); err != nil {
		t.Fatalf("writing sample board: %v", err)
	}
	return path
}

func TestParseListTasksPreservesOrder(t *testing.T) {
	b, err := Parse(writeSample(t))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	tasks := b.ListTasks()
	if len(tasks) != 2 {
		t.Fatalf("ListTasks() = %d rows, want 2", len(tasks))
	}
	if tasks[0].ID != "T1-001" || tasks[0].Owner != "AgentA" || tasks[0].Status != "TODO" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if len(tasks[1].Deps) != 1 || tasks[1].Deps[0] != "T1-001" {
		t.Errorf("tasks[1].Deps = %v, want [T1-001]", tasks[1].Deps)
	}
}

func TestUpdateStatusRewritesOnlyStatusCell(t *testing.T) {
	path := writeSample(t)
	b, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := b.UpdateStatus("T1-001", "IN_PROGRESS"); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	reparsed, err := Parse(path)
	if err != nil {
		t.Fatalf("re-Parse() error: %v", err)
	}
	tasks := reparsed.ListTasks()
	if tasks[0].Status != "IN_PROGRESS" {
		t.Errorf("tasks[0].Status = %q, want IN_PROGRESS", tasks[0].Status)
	}
	if tasks[0].Title != "Build the app shell" || tasks[0].Owner != "AgentA" {
		t.Errorf("other cells mutated: %+v", tasks[0])
	}
	if tasks[1].Status != "TODO" {
		t.Errorf("unrelated row mutated: %+v", tasks[1])
	}

	data, _ := os.ReadFile(path)
	if !containsLine(string(data), "Trailing notes.") {
		t.Error("postamble lost on rewrite")
	}
}

func TestUpdateStatusMissingIDIsNotFound(t *testing.T) {
	b, _ := Parse(writeSample(t))
	err := b.UpdateStatus("T9-999", "DONE")
	if !codexerr.Is(err, codexerr.NotFound) {
		t.Fatalf("UpdateStatus() on missing id error = %v, want NotFound", err)
	}
}

func TestAppendRowRejectsDuplicateAndPipeInID(t *testing.T) {
	path := writeSample(t)
	b, _ := Parse(path)

	if err := b.AppendRow("T1-001", "dup", "AgentC", nil, ""); !codexerr.Is(err, codexerr.Rejected) {
		t.Fatalf("AppendRow() duplicate id error = %v, want Rejected", err)
	}
	if err := b.AppendRow("T1|003", "bad id", "AgentC", nil, ""); !codexerr.Is(err, codexerr.Rejected) {
		t.Fatalf("AppendRow() pipe in id error = %v, want Rejected", err)
	}
}

func TestAppendRowInsertsAfterLastRowDefaultingStatus(t *testing.T) {
	path := writeSample(t)
	b, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := b.AppendRow("T1-003", "Add tests", "AgentC", []string{"T1-001", "T1-002"}, ""); err != nil {
		t.Fatalf("AppendRow() error: %v", err)
	}

	reparsed, err := Parse(path)
	if err != nil {
		t.Fatalf("re-Parse() error: %v", err)
	}
	tasks := reparsed.ListTasks()
	if len(tasks) != 3 {
		t.Fatalf("ListTasks() = %d rows, want 3", len(tasks))
	}
	last := tasks[2]
	if last.ID != "T1-003" || last.Status != "TODO" {
		t.Errorf("appended row = %+v", last)
	}
	if len(last.Deps) != 2 || last.Deps[0] != "T1-001" || last.Deps[1] != "T1-002" {
		t.Errorf("appended row deps = %v", last.Deps)
	}
}

func TestAppendRowOnEmptyBoardDiscoversHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TODO.md")
	b, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() on missing file error: %v", err)
	}
	if err := b.AppendRow("T1-001", "First task", "AgentA", nil, ""); err != nil {
		t.Fatalf("AppendRow() error: %v", err)
	}

	reparsed, err := Parse(path)
	if err != nil {
		t.Fatalf("re-Parse() error: %v", err)
	}
	tasks := reparsed.ListTasks()
	if len(tasks) != 1 || tasks[0].ID != "T1-001" {
		t.Fatalf("ListTasks() = %+v", tasks)
	}
}

func containsLine(haystack, needle string) bool {
	for _, line := range strings.Split(haystack, "\n") {
		if line == needle {
			return true
		}
	}
	return false
}
