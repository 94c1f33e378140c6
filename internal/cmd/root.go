// Package cmd provides the CLI commands for the codex-teams orchestrator.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/style"
)

var rootCmd = &cobra.Command{
	Use:   "codex-teams",
	Short: "Orchestrates parallel AI coding agents over git worktrees",
	Long: `codex-teams schedules and supervises parallel AI coding agents.

It reads a plain-text TODO board, starts one worker per ready task in its
own git worktree and tmux session, and reconciles state when a worker
finishes, crashes, or is stopped.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command group IDs, used to organize help output.
const (
	GroupTask   = "task"
	GroupRun    = "run"
	GroupConfig = "config"
	GroupDiag   = "diag"
)

func init() {
	rootCmd.PersistentFlags().String("repo", "", "primary repo root (default: discovered from cwd)")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (default: AI_STATE_DIR or <repo>/.state)")
	rootCmd.PersistentFlags().String("config", "", "path to orchestrator.toml (default: <state-dir>/orchestrator.toml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupTask, Title: "Task Lifecycle:"},
		&cobra.Group{ID: GroupRun, Title: "Scheduling:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupConfig)

	rootCmd.AddCommand(initCmd, taskCmd, worktreeCmd, runCmd, statusCmd, dashboardCmd, internalCmd)
}

// Execute runs the root command and returns an exit code, for main to pass
// to os.Exit.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		style.PrintError("%s", err)
		return 1
	}
	return 0
}

// requireSubcommand is RunE for parent commands that must not silently
// succeed with no subcommand.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%q requires a subcommand; run '%s --help'", cmd.Name(), cmd.CommandPath())
	}
	return fmt.Errorf("unknown subcommand %q for %q", args[0], cmd.Name())
}
