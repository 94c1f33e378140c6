package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/autocleanup"
	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/style"
)

var taskStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop one, one owner's, or every active worker and roll its task back to TODO",
	RunE:  runTaskStop,
}

func init() {
	taskStopCmd.Flags().String("task", "", "stop only this task id")
	taskStopCmd.Flags().String("owner", "", "stop every active task owned by this agent")
	taskStopCmd.Flags().Bool("all", false, "stop every active task")
	taskStopCmd.Flags().String("reason", "", "reason recorded in the update log")
	taskStopCmd.Flags().Bool("apply", false, "actually stop; without this, only prints what would be stopped")
}

func runTaskStop(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	taskFlag, _ := cmd.Flags().GetString("task")
	ownerFlag, _ := cmd.Flags().GetString("owner")
	all, _ := cmd.Flags().GetBool("all")
	reason, _ := cmd.Flags().GetString("reason")
	apply, _ := cmd.Flags().GetBool("apply")

	if taskFlag == "" && ownerFlag == "" && !all {
		return codexerr.New(codexerr.Rejected, "one of --task, --owner, or --all is required", "")
	}
	if reason == "" {
		reason = "operator requested stop"
	}

	metas, err := e.Store.ListPidMeta()
	if err != nil {
		return err
	}
	targets := filterPidMetas(metas, taskFlag, ownerFlag, all)

	if len(targets) == 0 {
		fmt.Println("no matching active tasks")
		return nil
	}
	if !apply {
		for _, m := range targets {
			fmt.Printf("would stop %s (pid=%d owner=%s)\n", m.TaskID, m.Pid, m.Owner)
		}
		return nil
	}

	now := time.Now()
	for _, m := range targets {
		out, err := autocleanup.ReconcileStop(autocleanup.Deps{
			Store: e.Store, Primary: e.Primary, BoardPath: e.BoardPath,
		}, m.TaskID, "operator", reason, true, now)
		if err != nil {
			style.PrintError("stopping %s: %s", m.TaskID, err)
			continue
		}
		printReconcileOutcome(m.TaskID, out)
	}
	return nil
}

func filterPidMetas(metas []*statestore.PidMeta, taskID, owner string, all bool) []*statestore.PidMeta {
	var out []*statestore.PidMeta
	for _, m := range metas {
		switch {
		case taskID != "":
			if m.TaskID == taskID {
				out = append(out, m)
			}
		case owner != "":
			if m.Owner == owner {
				out = append(out, m)
			}
		case all:
			out = append(out, m)
		}
	}
	return out
}

var taskEmergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Stop every active worker immediately",
	RunE:  runEmergencyStop,
}

func init() {
	taskEmergencyStopCmd.Flags().String("reason", "", "reason recorded in the update log")
	taskEmergencyStopCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
}

func runEmergencyStop(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	reason, _ := cmd.Flags().GetString("reason")
	yes, _ := cmd.Flags().GetBool("yes")
	if reason == "" {
		reason = "emergency stop"
	}

	metas, err := e.Store.ListPidMeta()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("no active tasks")
		return nil
	}
	if !yes && !confirm(fmt.Sprintf("stop all %d active tasks?", len(metas))) {
		fmt.Println("aborted")
		return nil
	}

	now := time.Now()
	for _, m := range metas {
		out, err := autocleanup.ReconcileStop(autocleanup.Deps{
			Store: e.Store, Primary: e.Primary, BoardPath: e.BoardPath,
		}, m.TaskID, "operator", reason, true, now)
		if err != nil {
			style.PrintError("stopping %s: %s", m.TaskID, err)
			continue
		}
		printReconcileOutcome(m.TaskID, out)
	}
	return nil
}

var taskCleanupStaleCmd = &cobra.Command{
	Use:   "cleanup-stale",
	Short: "Reconcile state for tasks whose recorded pid is no longer alive",
	RunE:  runCleanupStale,
}

func init() {
	taskCleanupStaleCmd.Flags().Bool("apply", false, "actually clean up; without this, only lists stale tasks")
}

func runCleanupStale(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	apply, _ := cmd.Flags().GetBool("apply")

	deps := autocleanup.Deps{Store: e.Store, Primary: e.Primary, BoardPath: e.BoardPath}
	stale, err := autocleanup.ScanStale(deps)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Println("no stale tasks")
		return nil
	}
	if !apply {
		for _, m := range stale {
			fmt.Printf("stale: %s (pid=%d, dead)\n", m.TaskID, m.Pid)
		}
		return nil
	}

	outcomes, err := autocleanup.CleanupStale(deps, time.Now())
	if err != nil {
		return err
	}
	for _, out := range outcomes {
		printReconcileOutcome(out.Meta.TaskID, out)
	}
	return nil
}

var taskAutoCleanupExitCmd = &cobra.Command{
	Use:    "auto-cleanup-exit <task_id> <expected_pid>",
	Short:  "Reconcile state after a worker pid has exited",
	Args:   cobra.ExactArgs(2),
	Hidden: true,
	RunE:   runAutoCleanupExit,
}

func init() {
	taskAutoCleanupExitCmd.Flags().String("reason", "", "unused, accepted for CLI-contract symmetry")
}

func runAutoCleanupExit(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	taskID := args[0]
	pid, err := strconv.Atoi(args[1])
	if err != nil {
		return codexerr.New(codexerr.Rejected, "expected_pid must be an integer", args[1])
	}

	out, err := autocleanup.ReconcileWorkerExit(autocleanup.Deps{
		Store: e.Store, Primary: e.Primary, BoardPath: e.BoardPath,
	}, taskID, pid, time.Now())
	if err != nil {
		return err
	}
	if out.Skipped {
		fmt.Printf("skipped: %s\n", out.SkipReason)
		return nil
	}
	printReconcileOutcome(taskID, out)
	return nil
}

func printReconcileOutcome(taskID string, out autocleanup.Outcome) {
	if out.Skipped {
		fmt.Printf("%s: skipped (%s)\n", taskID, out.SkipReason)
		return
	}
	if out.RollbackSkippedDone {
		fmt.Println("TODO rollback skipped: task status is DONE")
	} else if out.RolledBackToTODO {
		style.PrintSuccess("%s rolled back to TODO", taskID)
	}
	if out.LockRemoved {
		fmt.Printf("%s: scope lock removed\n", taskID)
	}
	if out.WorktreeRemoved {
		fmt.Printf("%s: worktree and branch removed\n", taskID)
	}
	if out.PidMetaRemoved {
		fmt.Printf("%s: pidmeta removed\n", taskID)
	}
}
