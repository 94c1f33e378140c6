package layout

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"AgentA":    "agenta",
		"T1-001":    "t1-001",
		"My Agent!": "my-agent",
		"  spaced ": "spaced",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got, want := BranchName("AgentA", "T1-001"), "codex/agenta-t1-001"; got != want {
		t.Errorf("BranchName() = %q, want %q", got, want)
	}
}

func TestWorktreeDirName(t *testing.T) {
	if got, want := WorktreeDirName("myrepo", "AgentA", "T1-001"), "myrepo-agenta-t1-001"; got != want {
		t.Errorf("WorktreeDirName() = %q, want %q", got, want)
	}
}

func TestTaskIDPattern(t *testing.T) {
	valid := []string{"T1-001", "T9-301", "T10-2"}
	invalid := []string{"T1001", "1-001", "T1-", "t1-001"}
	for _, id := range valid {
		if !TaskIDPattern.MatchString(id) {
			t.Errorf("TaskIDPattern rejected valid id %q", id)
		}
	}
	for _, id := range invalid {
		if TaskIDPattern.MatchString(id) {
			t.Errorf("TaskIDPattern accepted invalid id %q", id)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	stateDir := "/tmp/state"
	if got, want := LockPath(stateDir, "app-shell"), "/tmp/state/locks/app-shell.lock"; got != want {
		t.Errorf("LockPath() = %q, want %q", got, want)
	}
	if got, want := PidMetaPath(stateDir, "T1-001"), "/tmp/state/orchestrator/t1-001.pid"; got != want {
		t.Errorf("PidMetaPath() = %q, want %q", got, want)
	}
	if got, want := UpdateLogPath(stateDir), "/tmp/state/LATEST_UPDATES.md"; got != want {
		t.Errorf("UpdateLogPath() = %q, want %q", got, want)
	}
}
