package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jaycho46/codex-teams/internal/readiness"
	"github.com/jaycho46/codex-teams/internal/scheduler"
	"github.com/jaycho46/codex-teams/internal/style"
	"github.com/jaycho46/codex-teams/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupRun,
	Short:   "Print the current readiness snapshot",
	Long: `status reads a point-in-time snapshot of the TODO board and runtime
state (locks, pid metadata) without acquiring the RunLock. It may observe a lock
file whose pid has just died; the readiness evaluator classifies that
state explicitly rather than treating it as an error.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	statusCmd.Flags().Bool("tui", false, "open the live status dashboard instead of printing once")
	statusCmd.Flags().Bool("watch", false, "repeat the snapshot on an interval until interrupted")
	statusCmd.Flags().Int("interval", 3, "seconds between refreshes with --watch")
	statusCmd.Flags().String("trigger", "manual", "trigger label, echoed in JSON output only")
	statusCmd.Flags().Int("max-start", 0, "maximum tasks that would be started (0 = unbounded)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	asTUI, _ := cmd.Flags().GetBool("tui")
	if asTUI {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		return tui.Run(tui.Deps{
			Store: e.Store, RepoRoot: e.RepoRoot, BoardPath: e.BoardPath, Config: e.Config,
		})
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		return runStatusWatch(cmd, args)
	}
	return runStatusOnce(cmd, args)
}

// runStatusWatch re-runs runStatusOnce on a ticker, clearing the screen
// between refreshes when stdout is a terminal. Exit is signal-driven so
// Ctrl+C stops between renders instead of mid-render.
func runStatusWatch(cmd *cobra.Command, args []string) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return fmt.Errorf("--json and --watch cannot be used together")
	}
	interval, _ := cmd.Flags().GetInt("interval")
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))

	for {
		if isTTY {
			fmt.Print("\033[H\033[2J")
		}

		timestamp := time.Now().Format("15:04:05")
		header := fmt.Sprintf("[%s] codex-teams status --watch (every %ds, Ctrl+C to stop)", timestamp, interval)
		if isTTY {
			fmt.Printf("%s\n\n", style.Dim.Render(header))
		} else {
			fmt.Printf("%s\n\n", header)
		}

		if err := runStatusOnce(cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

		select {
		case <-sigChan:
			if isTTY {
				fmt.Println("\nStopped.")
			}
			return nil
		case <-ticker.C:
		}
	}
}

func runStatusOnce(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	maxStart, _ := cmd.Flags().GetInt("max-start")
	trigger, _ := cmd.Flags().GetString("trigger")

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}
	snap, err := scheduler.Snapshot(scheduler.Deps{
		Store: e.Store, RepoRoot: e.RepoRoot, Config: e.Config,
	}, brd, maxStart)
	if err != nil {
		return err
	}
	result := readiness.Evaluate(*snap)

	// Refresh the derived active_pids.tsv snapshot alongside the human
	// output; it is advisory, so a failure only warns.
	if err := e.Store.RefreshActivePidRegistry(); err != nil {
		style.PrintWarning("refreshing active pid registry: %s", err)
	}

	if asJSON {
		return printReadinessJSON(result, trigger)
	}
	printReadiness(result)
	return nil
}

// readinessJSON is the wire shape for `status --json`; tests anchor on the
// field names, not the Go struct names, so it is kept separate from
// readiness.Result rather than marshaling that directly.
type readinessJSON struct {
	Trigger  string            `json:"trigger"`
	Ready    []string          `json:"ready"`
	Excluded []excludedJSON    `json:"excluded"`
	Running  []runningLockJSON `json:"running_locks"`
}

type excludedJSON struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
	Source string `json:"source,omitempty"`
}

type runningLockJSON struct {
	Scope  string `json:"scope"`
	TaskID string `json:"task_id"`
	Owner  string `json:"owner"`
}

func printReadinessJSON(result readiness.Result, trigger string) error {
	out := readinessJSON{Trigger: trigger}
	for _, t := range result.Ready {
		out.Ready = append(out.Ready, t.ID)
	}
	for _, ex := range result.Excluded {
		out.Excluded = append(out.Excluded, excludedJSON{
			TaskID: ex.Task.ID, Reason: string(ex.Reason), Source: string(ex.Source),
		})
	}
	for _, l := range result.RunningLocks {
		out.Running = append(out.Running, runningLockJSON{Scope: l.Scope, TaskID: l.TaskID, Owner: l.Owner})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printReadiness renders a readiness.Result as the human-readable status
// block both `status` and `run start` print after evaluating readiness.
func printReadiness(result readiness.Result) {
	fmt.Printf("Ready (%d):\n", len(result.Ready))
	for _, t := range result.Ready {
		fmt.Printf("  %s  %s  owner=%s\n", t.ID, t.Title, style.TitleCase(t.Owner))
	}

	fmt.Printf("Excluded (%d):\n", len(result.Excluded))
	for _, ex := range result.Excluded {
		fmt.Printf("  %s  reason=%s", ex.Task.ID, ex.Reason)
		if ex.Source != "" {
			fmt.Printf(" source=%s", ex.Source)
		}
		fmt.Println()
	}

	if len(result.RunningLocks) > 0 {
		fmt.Printf("Running (%d):\n", len(result.RunningLocks))
		for _, l := range result.RunningLocks {
			fmt.Printf("  scope=%s task=%s owner=%s heartbeat=%s\n",
				l.Scope, l.TaskID, l.Owner, formatSince(l.HeartbeatAt))
		}
	}
}

func formatSince(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
