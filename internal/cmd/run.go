package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/scheduler"
	"github.com/jaycho46/codex-teams/internal/style"
	"github.com/jaycho46/codex-teams/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: GroupRun,
	Short:   "Run the scheduler",
	RunE:    requireSubcommand,
}

func init() {
	runCmd.AddCommand(runStartCmd)
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start every ready task, up to --max-start",
	RunE:  runRunStart,
}

func init() {
	runStartCmd.Flags().Bool("dry-run", false, "evaluate readiness without starting anything")
	runStartCmd.Flags().Bool("no-launch", false, "create worktrees/locks/board updates but do not launch a worker")
	runStartCmd.Flags().String("trigger", "manual", "trigger label recorded against this run")
	runStartCmd.Flags().Int("max-start", 0, "maximum number of tasks to start (0 = unbounded)")
}

func runRunStart(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noLaunch, _ := cmd.Flags().GetBool("no-launch")
	trigger, _ := cmd.Flags().GetString("trigger")
	maxStart, _ := cmd.Flags().GetInt("max-start")

	result, err := scheduler.Run(scheduler.Deps{
		Store: e.Store, Primary: e.Primary, RepoRoot: e.RepoRoot, BoardPath: e.BoardPath,
		Config: e.Config, ParentDir: resolveParentDir(e), CLIPath: e.CLIPath,
		WorkerBinary: "codex", IsPrimary: e.IsPrimary,
	}, scheduler.Options{
		Trigger: trigger, DryRun: dryRun, NoLaunch: noLaunch, MaxStart: maxStart,
		Force: workspace.AllowWorktreeRun(),
	}, time.Now())
	if err != nil {
		return err
	}

	printReadiness(result.Readiness)

	for _, s := range result.Started {
		if s.Quarantined {
			fmt.Printf("%s: quarantined stale worktree path\n", s.Task.ID)
		}
		if s.Launch != nil {
			fmt.Printf("Launched codex worker: task=%s pid=%d backend=%s\n", s.Task.ID, s.Launch.Pid, e.Config.Runtime.Backend)
		}
	}
	for _, f := range result.Failed {
		style.PrintError("failed to start %s: %s", f.Task.ID, f.Err)
	}

	fmt.Printf("Started tasks: %d\n", len(result.Started))

	if len(result.Started) > 0 && !dryRun {
		if err := e.Store.RefreshActivePidRegistry(); err != nil {
			style.PrintWarning("refreshing active pid registry: %s", err)
		}
		// Post-start unified view: the same snapshot `status` prints,
		// re-taken now that workers are recorded.
		return runStatusOnce(cmd, args)
	}
	return nil
}
