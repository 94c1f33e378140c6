package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/launcher"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/style"
)

var taskDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the orchestrator's prerequisites are satisfied",
	RunE:  runTaskDoctor,
}

type doctorCheck struct {
	name string
	run  func(e *env) error
}

var doctorChecks = []doctorCheck{
	{"primary repo is a git repository", func(e *env) error {
		if !e.Primary.IsRepo() {
			return fmt.Errorf("%s is not a git repository", e.RepoRoot)
		}
		return nil
	}},
	{"state directory is writable", func(e *env) error {
		probe := e.StateDir + "/.doctor-probe"
		if err := os.MkdirAll(e.StateDir, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return err
		}
		return os.Remove(probe)
	}},
	{"launch backend is available", func(e *env) error {
		return launcher.Validate(launcher.Backend(e.Config.Runtime.Backend))
	}},
}

func runTaskDoctor(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	failed := 0
	for _, c := range doctorChecks {
		name := style.TitleCase(c.name)
		if err := c.run(e); err != nil {
			style.PrintError("%s: %s", name, err)
			failed++
			continue
		}
		style.PrintSuccess("%s", name)
	}

	findings := sweepInvariants(e)
	for _, f := range findings {
		style.PrintWarning("%s", f)
	}
	if len(findings) == 0 {
		style.PrintSuccess("No state invariant violations")
	} else {
		fmt.Printf("%d invariant finding(s); run 'task cleanup-stale --apply' to reconcile stale workers\n", len(findings))
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// sweepInvariants reports, without fixing, every violation of the
// one-lock-per-scope / one-pidmeta-per-task / paired-worktree-and-branch
// runtime invariants it can observe. Read-only: the fixing counterpart is
// "task cleanup-stale --apply".
func sweepInvariants(e *env) []string {
	var findings []string

	metas, err := e.Store.ListPidMeta()
	if err != nil {
		return []string{fmt.Sprintf("listing pid metadata: %s", err)}
	}
	worktrees, _ := e.Primary.WorktreeList()
	wtByPath := make(map[string]bool, len(worktrees))
	wtByBranch := make(map[string]bool, len(worktrees))
	for _, w := range worktrees {
		wtByPath[w.Path] = true
		wtByBranch[w.Branch] = true
	}

	metaByTask := make(map[string]*statestore.PidMeta, len(metas))
	for _, m := range metas {
		metaByTask[m.TaskID] = m
		if !statestore.IsAlive(m.Pid) {
			findings = append(findings, fmt.Sprintf("pidmeta for %s records dead pid %d", m.TaskID, m.Pid))
		}
		if m.Worktree != "" && !wtByPath[m.Worktree] {
			findings = append(findings, fmt.Sprintf("pidmeta for %s points at missing worktree %s", m.TaskID, m.Worktree))
		}
	}

	locksDir := filepath.Join(e.StateDir, layout.LocksDir)
	if entries, err := os.ReadDir(locksDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
				continue
			}
			scope := strings.TrimSuffix(entry.Name(), ".lock")
			lock, err := e.Store.ReadLock(scope)
			if err != nil || lock == nil {
				continue
			}
			if lock.TaskID != "" && metaByTask[lock.TaskID] == nil {
				findings = append(findings, fmt.Sprintf("lock for scope %s is held for %s but no worker is recorded", scope, lock.TaskID))
			}
			if lock.Worktree != "" && !wtByPath[lock.Worktree] {
				findings = append(findings, fmt.Sprintf("lock for scope %s points at missing worktree %s", scope, lock.Worktree))
			}
		}
	}

	for _, w := range worktrees {
		if !strings.HasPrefix(w.Branch, "codex/") {
			continue
		}
		owned := false
		for _, m := range metas {
			if m.Worktree == w.Path {
				owned = true
				break
			}
		}
		if !owned {
			findings = append(findings, fmt.Sprintf("worktree %s on %s has no recorded worker", w.Path, w.Branch))
		}
	}
	return findings
}
