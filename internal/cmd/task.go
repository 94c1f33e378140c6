package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/specindex"
	"github.com/jaycho46/codex-teams/internal/style"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: GroupTask,
	Short:   "Manage TODO board rows and task specs",
	RunE:    requireSubcommand,
}

func init() {
	taskCmd.AddCommand(taskInitCmd, taskNewCmd, taskScaffoldSpecsCmd, taskLockCmd, taskUnlockCmd,
		taskHeartbeatCmd, taskUpdateCmd, taskCompleteCmd, taskStopCmd, taskCleanupStaleCmd,
		taskEmergencyStopCmd, taskAutoCleanupExitCmd, taskShowCmd, taskDoctorCmd)
}

var taskInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Alias of the top-level init command",
	RunE:  runInit,
}

func init() {
	taskInitCmd.Flags().String("gitignore", "ask", "add the state dir to .gitignore: ask|yes|no")
}

var taskNewCmd = &cobra.Command{
	Use:   "new <task_id> <summary>",
	Short: "Append a new TODO row",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskNew,
}

func init() {
	taskNewCmd.Flags().String("deps", "", "comma-separated dependency task ids")
	taskNewCmd.Flags().String("owner", "", "agent owner for this task")
}

func runTaskNew(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	taskID, summary := args[0], args[1]
	if !layout.TaskIDPattern.MatchString(taskID) {
		return codexerr.New(codexerr.Rejected, "task id must match T<digits>-<digits>", taskID)
	}

	depsFlag, _ := cmd.Flags().GetString("deps")
	owner, _ := cmd.Flags().GetString("owner")
	var deps []string
	if depsFlag != "" {
		for _, d := range strings.Split(depsFlag, ",") {
			if d = strings.TrimSpace(d); d != "" {
				deps = append(deps, d)
			}
		}
	}

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for _, t := range brd.ListTasks() {
		existing[t.ID] = true
	}
	for _, d := range deps {
		if !existing[d] {
			return codexerr.New(codexerr.Rejected, "dependency is not a task on the board", d)
		}
	}
	if err := brd.AppendRow(taskID, summary, owner, deps, "TODO"); err != nil {
		return err
	}
	style.PrintSuccess("added %s: %s", taskID, summary)
	return nil
}

var taskScaffoldSpecsCmd = &cobra.Command{
	Use:   "scaffold-specs",
	Short: "Write stub tasks/specs/<id>.md files for board rows missing one",
	RunE:  runScaffoldSpecs,
}

func init() {
	taskScaffoldSpecsCmd.Flags().String("task", "", "scaffold only this task id")
	taskScaffoldSpecsCmd.Flags().Bool("dry-run", false, "print what would be written without writing")
	taskScaffoldSpecsCmd.Flags().Bool("force", false, "overwrite an existing spec file")
}

const specStubTemplate = `# %s

## Goal

TODO: describe the goal of this task.

## In Scope

TODO: describe what is in scope.

## Acceptance Criteria

TODO: describe how this task is verified done.
`

func runScaffoldSpecs(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	onlyTask, _ := cmd.Flags().GetString("task")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}

	wrote := 0
	for _, t := range brd.ListTasks() {
		if onlyTask != "" && t.ID != onlyTask {
			continue
		}
		path := layout.TaskSpecPath(e.RepoRoot, t.ID)
		if !force {
			if result := specindex.Validate(e.RepoRoot, t.ID); result.Status != specindex.Missing {
				continue
			}
		}
		if dryRun {
			fmt.Printf("would write %s\n", path)
			wrote++
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(fmt.Sprintf(specStubTemplate, t.Title)), 0644); err != nil {
			return err
		}
		style.PrintSuccess("wrote %s", path)
		wrote++
	}
	if wrote == 0 {
		fmt.Println("no task specs needed scaffolding")
	}
	return nil
}
