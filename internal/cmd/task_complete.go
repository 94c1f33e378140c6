package cmd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/completion"
	"github.com/jaycho46/codex-teams/internal/scheduler"
	"github.com/jaycho46/codex-teams/internal/style"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <agent> <scope> <task_id>",
	Short: "Merge a finished task's branch back into base and tear down its worktree",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskComplete,
}

func init() {
	taskCompleteCmd.Flags().String("summary", "", "completion summary (default: \"task complete\")")
	taskCompleteCmd.Flags().String("trigger", "task-complete", "trigger label for the re-entered scheduler run")
	taskCompleteCmd.Flags().Bool("no-run-start", false, "do not re-enter the scheduler after completing")
	taskCompleteCmd.Flags().String("merge-strategy", "", "ff-only|rebase-then-ff (default: config merge.strategy)")
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, scope, taskID := args[0], args[1], args[2]

	summary, _ := cmd.Flags().GetString("summary")
	trigger, _ := cmd.Flags().GetString("trigger")
	noRunStart, _ := cmd.Flags().GetBool("no-run-start")
	strategyFlag, _ := cmd.Flags().GetString("merge-strategy")

	strategy := worktree.MergeStrategy(strategyFlag)
	if strategy == "" {
		strategy = worktree.MergeStrategy(e.Config.Merge.Strategy)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	result, err := completion.Complete(completion.Deps{
		Store: e.Store, Primary: e.Primary, BoardPath: e.BoardPath,
	}, completion.Request{
		Agent: agent, Scope: scope, TaskID: taskID,
		Summary: summary, Trigger: trigger,
		BaseBranch: e.Config.Merge.BaseBranch, MergeStrategy: strategy,
		WorktreeDir: cwd,
	}, time.Now())
	if err != nil {
		return err
	}

	style.PrintSuccess("Merged branch into primary")
	style.PrintSuccess("%s complete: %s", taskID, result.Summary)

	if noRunStart {
		return nil
	}

	// The re-entered run acts on the primary repo even though this process
	// was invoked from the (now removed) task worktree, so bypass the
	// non-primary refusal here; every path the scheduler touches comes from
	// e, not from the working directory.
	_, err = scheduler.Run(scheduler.Deps{
		Store: e.Store, Primary: e.Primary, RepoRoot: e.RepoRoot, BoardPath: e.BoardPath,
		Config: e.Config, ParentDir: resolveParentDir(e),
		CLIPath:      resolveCompletionCLIPath(e, cwd),
		WorkerBinary: "codex", IsPrimary: e.IsPrimary,
	}, scheduler.Options{Trigger: trigger, Force: true}, time.Now())
	return err
}

// resolveCompletionCLIPath picks the CLI binary path the re-entered
// scheduler run (and the workers it launches) will re-exec: the
// primary-repo copy if one exists, then the running binary only if it
// lives outside the worktree being torn down, then PATH. The running
// binary can be a worktree-local copy whose path is deleted during
// completion, so it must never be baked into pid-exit watchers or worker
// prompts.
func resolveCompletionCLIPath(e *env, worktreeDir string) string {
	name := filepath.Base(e.CLIPath)
	if primary := filepath.Join(e.RepoRoot, name); isExecutableFile(primary) {
		return primary
	}
	if e.CLIPath != "" && !pathWithin(e.CLIPath, worktreeDir) {
		return e.CLIPath
	}
	if found, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(found); err == nil {
			return abs
		}
		return found
	}
	return e.CLIPath
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0111 != 0
}

// pathWithin reports whether path is dir or lies underneath it.
func pathWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
