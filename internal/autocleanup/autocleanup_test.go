package autocleanup

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "--initial-branch=main")
	run(t, dir, "config", "user.email", "worker@codex-teams.test")
	run(t, dir, "config", "user.name", "codex-teams test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "initial")
	return dir
}

func writeBoard(t *testing.T, path, status string) {
	t.Helper()
	content := "| ID | Title | Owner | Deps | Notes | Status |\n" +
		"|---|---|---|---|---|---|\n" +
		"| T1-001 | Task one | AgentA | - |  | " + status + " |\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing board: %v", err)
	}
}

func setupDeps(t *testing.T, boardStatus string) (Deps, *gitrepo.Git, string) {
	t.Helper()
	repoDir := initTestRepo(t)
	primary := gitrepo.New(repoDir)
	stateDir := t.TempDir()
	boardPath := filepath.Join(t.TempDir(), "TODO.md")
	writeBoard(t, boardPath, boardStatus)
	deps := Deps{
		Store:     statestore.New(stateDir),
		Primary:   primary,
		BoardPath: boardPath,
	}
	return deps, primary, boardPath
}

func makeWorktree(t *testing.T, primary *gitrepo.Git, agent, taskID string) (path, branch string) {
	t.Helper()
	parent := t.TempDir()
	path, err := worktree.EnsureAgentWorktree(primary, "myrepo", agent, taskID, "main", parent, time.Now())
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}
	return path, worktree.BranchName(agent, taskID)
}

func TestReconcileWorkerExitNoOpWhenNoPidMeta(t *testing.T) {
	deps, _, _ := setupDeps(t, "TODO")
	out, err := ReconcileWorkerExit(deps, "T1-001", 12345, time.Now())
	if err != nil {
		t.Fatalf("ReconcileWorkerExit() error: %v", err)
	}
	if !out.Skipped {
		t.Errorf("Outcome.Skipped = false, want true")
	}
}

func TestReconcileWorkerExitNoOpWhenPidMismatch(t *testing.T) {
	deps, primary, _ := setupDeps(t, "TODO")
	wtPath, _ := makeWorktree(t, primary, "AgentA", "T1-001")

	meta := &statestore.PidMeta{
		Pid: 12345, TaskID: "T1-001", Owner: "AgentA", Scope: "app-shell",
		Worktree: wtPath, StartedAt: time.Now(), LaunchBackend: "tmux",
	}
	if err := deps.Store.WritePidMeta(meta); err != nil {
		t.Fatalf("WritePidMeta() error: %v", err)
	}

	out, err := ReconcileWorkerExit(deps, "T1-001", 99999, time.Now())
	if err != nil {
		t.Fatalf("ReconcileWorkerExit() error: %v", err)
	}
	if !out.Skipped {
		t.Errorf("Outcome.Skipped = false, want true for mismatched pid")
	}
	got, err := deps.Store.ReadPidMeta("T1-001")
	if err != nil || got == nil {
		t.Errorf("pidmeta should survive a mismatched-pid reconcile, got %v, %v", got, err)
	}
}

func TestReconcileWorkerExitRollsBackNonDoneRow(t *testing.T) {
	deps, primary, boardPath := setupDeps(t, "IN_PROGRESS")
	wtPath, branch := makeWorktree(t, primary, "AgentA", "T1-001")

	if err := deps.Store.CreateLock(&statestore.Lock{
		Owner: "AgentA", Scope: "app-shell", TaskID: "T1-001", Branch: branch, Worktree: wtPath,
		CreatedAt: time.Now(), HeartbeatAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateLock() error: %v", err)
	}

	meta := &statestore.PidMeta{
		Pid: os.Getpid(), TaskID: "T1-001", Owner: "AgentA", Scope: "app-shell",
		Worktree: wtPath, StartedAt: time.Now(), LaunchBackend: "tmux",
	}
	if err := deps.Store.WritePidMeta(meta); err != nil {
		t.Fatalf("WritePidMeta() error: %v", err)
	}

	out, err := ReconcileWorkerExit(deps, "T1-001", os.Getpid(), time.Now())
	if err != nil {
		t.Fatalf("ReconcileWorkerExit() error: %v", err)
	}
	if out.Skipped {
		t.Fatalf("Outcome.Skipped = true, want false")
	}
	if !out.RolledBackToTODO {
		t.Errorf("RolledBackToTODO = false, want true")
	}
	if !out.LockRemoved {
		t.Errorf("LockRemoved = false, want true")
	}
	if !out.WorktreeRemoved {
		t.Errorf("WorktreeRemoved = false, want true")
	}
	if !out.PidMetaRemoved {
		t.Errorf("PidMetaRemoved = false, want true")
	}

	brd, err := boardParseHelper(boardPath)
	if err != nil {
		t.Fatalf("reparsing board: %v", err)
	}
	if brd != "TODO" {
		t.Errorf("row status = %q, want TODO", brd)
	}

	lock, err := deps.Store.ReadLock("app-shell")
	if err != nil || lock != nil {
		t.Errorf("lock should be removed, got %v, %v", lock, err)
	}
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Errorf("worktree path still present after reconcile")
	}
	exists, err := primary.BranchExists(branch)
	if err != nil || exists {
		t.Errorf("branch should be gone, exists=%v err=%v", exists, err)
	}
}

func TestReconcileWorkerExitNeverRegressesDone(t *testing.T) {
	deps, primary, boardPath := setupDeps(t, "DONE")
	wtPath, _ := makeWorktree(t, primary, "AgentA", "T1-001")

	meta := &statestore.PidMeta{
		Pid: os.Getpid(), TaskID: "T1-001", Owner: "AgentA", Scope: "app-shell",
		Worktree: wtPath, StartedAt: time.Now(), LaunchBackend: "tmux",
	}
	if err := deps.Store.WritePidMeta(meta); err != nil {
		t.Fatalf("WritePidMeta() error: %v", err)
	}

	out, err := ReconcileWorkerExit(deps, "T1-001", os.Getpid(), time.Now())
	if err != nil {
		t.Fatalf("ReconcileWorkerExit() error: %v", err)
	}
	if out.RolledBackToTODO {
		t.Errorf("RolledBackToTODO = true, want false for a DONE row")
	}
	if !out.RollbackSkippedDone {
		t.Errorf("RollbackSkippedDone = false, want true")
	}
	if !out.PidMetaRemoved || !out.WorktreeRemoved {
		t.Errorf("cleanup steps other than rollback should still run: %+v", out)
	}

	status, err := boardParseHelper(boardPath)
	if err != nil {
		t.Fatalf("reparsing board: %v", err)
	}
	if status != "DONE" {
		t.Errorf("row status = %q, want DONE (never regressed)", status)
	}
}

func TestCleanupStaleFindsDeadPids(t *testing.T) {
	deps, primary, _ := setupDeps(t, "IN_PROGRESS")
	wtPath, _ := makeWorktree(t, primary, "AgentA", "T1-001")

	// A pid guaranteed not to be alive.
	deadPid := 1
	for statestore.IsAlive(deadPid) {
		deadPid++
	}

	meta := &statestore.PidMeta{
		Pid: deadPid, TaskID: "T1-001", Owner: "AgentA", Scope: "app-shell",
		Worktree: wtPath, StartedAt: time.Now(), LaunchBackend: "tmux",
	}
	if err := deps.Store.WritePidMeta(meta); err != nil {
		t.Fatalf("WritePidMeta() error: %v", err)
	}

	stale, err := ScanStale(deps)
	if err != nil {
		t.Fatalf("ScanStale() error: %v", err)
	}
	if len(stale) != 1 || stale[0].TaskID != "T1-001" {
		t.Fatalf("ScanStale() = %+v, want one entry for T1-001", stale)
	}

	outcomes, err := CleanupStale(deps, time.Now())
	if err != nil {
		t.Fatalf("CleanupStale() error: %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].PidMetaRemoved {
		t.Fatalf("CleanupStale() outcomes = %+v", outcomes)
	}
}

// boardParseHelper re-reads the Status cell for T1-001.
func boardParseHelper(path string) (string, error) {
	brd, err := board.Parse(path)
	if err != nil {
		return "", err
	}
	for _, row := range brd.ListTasks() {
		if row.ID == "T1-001" {
			return row.Status, nil
		}
	}
	return "", nil
}
