package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/launcher"
)

// internalCmd groups re-exec targets the CLI spawns against itself as
// detached children — never invoked directly by an operator. Only the two
// cases that genuinely must be separate processes (a pty copy loop and a
// pid liveness wait) live here, hidden from help instead of leaking into
// the top-level command surface.
var internalCmd = &cobra.Command{
	Use:    "internal",
	Hidden: true,
	RunE:   requireSubcommand,
}

func init() {
	internalCmd.AddCommand(runWorkerPtyCmd, watchPidExitCmd)
}

var runWorkerPtyCmd = &cobra.Command{
	Use:    "run-worker-pty -- <worker-args...>",
	Hidden: true,
	Short:  "Run a worker under a pty, copying its output to --log (codex_exec backend)",
	RunE:   runRunWorkerPty,
}

func init() {
	runWorkerPtyCmd.Flags().String("dir", "", "worktree directory to run the worker in")
	runWorkerPtyCmd.Flags().String("log", "", "log file to append pty output to")
	runWorkerPtyCmd.Flags().String("bin", "", "worker binary to exec")
}

func runRunWorkerPty(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	logFile, _ := cmd.Flags().GetString("log")
	bin, _ := cmd.Flags().GetString("bin")
	if dir == "" || logFile == "" || bin == "" {
		return codexerr.New(codexerr.Rejected, "run-worker-pty requires --dir, --log, and --bin", "")
	}
	return launcher.RunSupervisor(dir, logFile, bin, args)
}

var watchPidExitCmd = &cobra.Command{
	Use:    "watch-pid-exit <task_id> <pid>",
	Hidden: true,
	Short:  "Block until pid exits, then exec task auto-cleanup-exit",
	Args:   cobra.ExactArgs(2),
	RunE:   runWatchPidExit,
}

func runWatchPidExit(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	pid, err := strconv.Atoi(args[1])
	if err != nil {
		return codexerr.New(codexerr.Rejected, "pid must be an integer", args[1])
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	return launcher.WaitPidExitThenExec(e.CLIPath, e.StateDir, taskID, pid)
}
