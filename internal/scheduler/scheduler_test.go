package scheduler

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/statestore"
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

func writeSpec(t *testing.T, repoRoot, taskID string) {
	t.Helper()
	path := layout.TaskSpecPath(repoRoot, taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir specs dir: %v", err)
	}
	content := "## Goal\nDo the thing.\n\n## In Scope\nJust this.\n\n## Acceptance Criteria\nIt works.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing spec: %v", err)
	}
}

func writeBoard(t *testing.T, path string, rows [][6]string) {
	t.Helper()
	content := "| ID | Title | Owner | Deps | Notes | Status |\n|---|---|---|---|---|---|\n"
	for _, r := range rows {
		content += "| " + r[0] + " | " + r[1] + " | " + r[2] + " | " + r[3] + " | " + r[4] + " | " + r[5] + " |\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing board: %v", err)
	}
}

func baseConfig() *config.Config {
	cfg := config.Default()
	cfg.Owners = map[string]string{"AgentA": "app-shell", "AgentB": "app-shell"}
	return cfg
}

func newDeps(t *testing.T, rows [][6]string) Deps {
	t.Helper()
	repoRoot := initTestRepo(t)
	boardPath := filepath.Join(repoRoot, "TODO.md")
	writeBoard(t, boardPath, rows)
	for _, r := range rows {
		writeSpec(t, repoRoot, r[0])
	}
	stateDir := t.TempDir()
	parentDir := t.TempDir()
	return Deps{
		Store:        statestore.New(stateDir),
		Primary:      gitrepo.New(repoRoot),
		RepoRoot:     repoRoot,
		BoardPath:    boardPath,
		Config:       baseConfig(),
		ParentDir:    parentDir,
		CLIPath:      filepath.Join(t.TempDir(), "no-such-cli-binary"),
		WorkerBinary: filepath.Join(t.TempDir(), "no-such-worker-binary"),
		IsPrimary:    true,
	}
}

func TestRunStartsReadyTaskWithNoLaunch(t *testing.T) {
	deps := newDeps(t, [][6]string{
		{"T1-001", "App shell bootstrap", "AgentA", "-", "", "TODO"},
	})

	res, err := Run(deps, Options{Trigger: "test", NoLaunch: true}, time.Now())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Started) != 1 {
		t.Fatalf("len(Started) = %d, want 1 (failed=%v)", len(res.Started), res.Failed)
	}
	if res.Started[0].Task.ID != "T1-001" {
		t.Errorf("started task = %q, want T1-001", res.Started[0].Task.ID)
	}
	if _, err := os.Stat(res.Started[0].Worktree); err != nil {
		t.Errorf("worktree not created: %v", err)
	}

	brd, err := board.Parse(deps.BoardPath)
	if err != nil {
		t.Fatalf("re-parsing board: %v", err)
	}
	for _, row := range brd.ListTasks() {
		if row.ID == "T1-001" && row.Status != "IN_PROGRESS" {
			t.Errorf("row status = %q, want IN_PROGRESS", row.Status)
		}
	}

	lock, err := deps.Store.ReadLock("app-shell")
	if err != nil || lock == nil || lock.TaskID != "T1-001" {
		t.Errorf("expected a scope lock bound to T1-001, got %v, %v", lock, err)
	}
}

func TestRunGatesOnUnreadyDependency(t *testing.T) {
	deps := newDeps(t, [][6]string{
		{"T1-001", "App shell bootstrap", "AgentA", "-", "", "TODO"},
		{"T1-002", "Follow-up", "AgentB", "T1-001", "", "TODO"},
	})

	res, err := Run(deps, Options{Trigger: "test", NoLaunch: true}, time.Now())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Started) != 1 || res.Started[0].Task.ID != "T1-001" {
		t.Fatalf("Started = %+v, want exactly T1-001", res.Started)
	}

	found := false
	for _, ex := range res.Readiness.Excluded {
		if ex.Task.ID == "T1-002" {
			if ex.Reason != "deps_not_ready" {
				t.Errorf("T1-002 exclusion reason = %q, want deps_not_ready", ex.Reason)
			}
			found = true
		}
	}
	if !found {
		t.Errorf("T1-002 was not excluded in the readiness snapshot")
	}
}

func TestRunIsNoOpWhenNothingReady(t *testing.T) {
	deps := newDeps(t, nil)

	res, err := Run(deps, Options{Trigger: "test", NoLaunch: true}, time.Now())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Started) != 0 || len(res.Failed) != 0 {
		t.Fatalf("expected no-op, got Started=%+v Failed=%+v", res.Started, res.Failed)
	}

	if _, err := os.Stat(layout.RunLockPath(deps.Store.Dir())); !os.IsNotExist(err) {
		t.Errorf("run.lock should be released after Run(), stat err = %v", err)
	}
}

func TestRunRefusesFromNonPrimaryWorktreeByDefault(t *testing.T) {
	deps := newDeps(t, [][6]string{
		{"T1-001", "App shell bootstrap", "AgentA", "-", "", "TODO"},
	})
	deps.IsPrimary = false

	_, err := Run(deps, Options{Trigger: "test", NoLaunch: true}, time.Now())
	if !codexerr.Is(err, codexerr.MissingPrerequisite) {
		t.Fatalf("Run() from non-primary error = %v, want MissingPrerequisite", err)
	}
}

func TestRunRollsBackOnLaunchFailure(t *testing.T) {
	deps := newDeps(t, [][6]string{
		{"T1-001", "App shell bootstrap", "AgentA", "-", "", "TODO"},
	})
	// codex_exec re-execs CLIPath as a detached supervisor; a nonexistent
	// CLIPath fails that spawn inside startOne's launcher.Launch call,
	// exercising the rollback path without needing a real tmux server.
	deps.Config.Runtime.Backend = "codex_exec"

	res, err := Run(deps, Options{Trigger: "test"}, time.Now())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Started) != 0 {
		t.Fatalf("Started = %+v, want none (launch should have failed)", res.Started)
	}
	if len(res.Failed) != 1 || res.Failed[0].Task.ID != "T1-001" {
		t.Fatalf("Failed = %+v, want exactly T1-001", res.Failed)
	}

	brd, err := board.Parse(deps.BoardPath)
	if err != nil {
		t.Fatalf("re-parsing board: %v", err)
	}
	for _, row := range brd.ListTasks() {
		if row.ID == "T1-001" && row.Status != "TODO" {
			t.Errorf("row status after rollback = %q, want TODO", row.Status)
		}
	}

	lock, err := deps.Store.ReadLock("app-shell")
	if err != nil || lock != nil {
		t.Errorf("scope lock should be rolled back, got %v, %v", lock, err)
	}

	repoName := filepath.Base(deps.RepoRoot)
	wtPath := filepath.Join(deps.ParentDir, layout.WorktreeDirName(repoName, "AgentA", "T1-001"))
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Errorf("worktree should be removed after rollback, stat err = %v", err)
	}
}
