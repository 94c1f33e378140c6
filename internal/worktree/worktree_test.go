package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
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

func TestEnsureAgentWorktreeCreatesAndIsIdempotent(t *testing.T) {
	repoDir := initTestRepo(t)
	repo := gitrepo.New(repoDir)
	parent := t.TempDir()

	path, err := EnsureAgentWorktree(repo, "myrepo", "AgentA", "T1-001", "main", parent, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("worktree path not created: %v", err)
	}

	again, err := EnsureAgentWorktree(repo, "myrepo", "AgentA", "T1-001", "main", parent, time.Unix(1700000001, 0))
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() second call error: %v", err)
	}
	if again != path {
		t.Errorf("second call path = %q, want %q", again, path)
	}
}

func TestEnsureAgentWorktreeQuarantinesOrphanDirectory(t *testing.T) {
	repoDir := initTestRepo(t)
	repo := gitrepo.New(repoDir)
	parent := t.TempDir()

	branch := BranchName("AgentA", "T1-001")
	orphanPath := filepath.Join(parent, "myrepo-agenta-t1-001")
	if err := os.MkdirAll(orphanPath, 0755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(orphanPath, "stray.txt"), []byte("leftover"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	path, err := EnsureAgentWorktree(repo, "myrepo", "AgentA", "T1-001", "main", parent, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}

	quarantined := orphanPath + ".orphan-1700000000"
	if _, err := os.Stat(quarantined); err != nil {
		t.Fatalf("expected quarantined directory at %s: %v", quarantined, err)
	}
	if _, err := os.Stat(filepath.Join(quarantined, "stray.txt")); err != nil {
		t.Errorf("quarantined directory lost its contents: %v", err)
	}

	found, err := FindWorktreeForBranch(repo, branch)
	if err != nil || found != path {
		t.Errorf("FindWorktreeForBranch() = %q, %v, want %q, nil", found, err, path)
	}
}

func TestMergeIntoFastForward(t *testing.T) {
	repoDir := initTestRepo(t)
	primary := gitrepo.New(repoDir)
	parent := t.TempDir()

	path, err := EnsureAgentWorktree(primary, "myrepo", "AgentA", "T1-001", "main", parent, time.Now())
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "feature.txt"), []byte("work\n"), 0644); err != nil {
		t.Fatalf("writing feature file: %v", err)
	}
	run(t, path, "add", ".")
	run(t, path, "commit", "-m", "feature work")

	branch := BranchName("AgentA", "T1-001")
	if err := MergeInto(primary, path, "main", branch, FFOnly); err != nil {
		t.Fatalf("MergeInto() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoDir, "feature.txt")); err != nil {
		t.Errorf("feature file not present in primary repo after merge: %v", err)
	}
}

func TestMergeIntoRefusesOnDirtyPrimary(t *testing.T) {
	repoDir := initTestRepo(t)
	primary := gitrepo.New(repoDir)
	parent := t.TempDir()

	path, err := EnsureAgentWorktree(primary, "myrepo", "AgentA", "T1-001", "main", parent, time.Now())
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}
	run(t, path, "commit", "--allow-empty", "-m", "feature")

	if err := os.WriteFile(filepath.Join(repoDir, "README.md"), []byte("dirty\n"), 0644); err != nil {
		t.Fatalf("dirtying primary: %v", err)
	}

	branch := BranchName("AgentA", "T1-001")
	err = MergeInto(primary, path, "main", branch, FFOnly)
	if !codexerr.Is(err, codexerr.StateInvariant) {
		t.Fatalf("MergeInto() with dirty primary error = %v, want StateInvariant", err)
	}
}

func TestRemoveRefusesPrimaryRepoPath(t *testing.T) {
	repoDir := initTestRepo(t)
	primary := gitrepo.New(repoDir)

	err := Remove(primary, repoDir, "codex/agenta-t1-001")
	if !codexerr.Is(err, codexerr.Rejected) {
		t.Fatalf("Remove() on primary path error = %v, want Rejected", err)
	}
}

func TestRemoveDeletesWorktreeAndBranch(t *testing.T) {
	repoDir := initTestRepo(t)
	primary := gitrepo.New(repoDir)
	parent := t.TempDir()

	path, err := EnsureAgentWorktree(primary, "myrepo", "AgentA", "T1-001", "main", parent, time.Now())
	if err != nil {
		t.Fatalf("EnsureAgentWorktree() error: %v", err)
	}
	branch := BranchName("AgentA", "T1-001")

	if err := Remove(primary, path, branch); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("worktree path still present after Remove()")
	}
	exists, err := primary.BranchExists(branch)
	if err != nil {
		t.Fatalf("BranchExists() error: %v", err)
	}
	if exists {
		t.Errorf("branch %q still exists after Remove()", branch)
	}
}
