package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: GroupRun,
	Short:   "Open the live status dashboard",
	Long:    "dashboard is an alias for `status --tui`: a live, lock-free readiness view.",
	RunE:    runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	return tui.Run(tui.Deps{
		Store: e.Store, RepoRoot: e.RepoRoot, BoardPath: e.BoardPath, Config: e.Config,
	})
}
