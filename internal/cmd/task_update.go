package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/style"
)

var allowedStatuses = map[string]bool{
	"TODO": true, "IN_PROGRESS": true, "BLOCKED": true, "DONE": true,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <agent> <task_id> <status> <summary>",
	Short: "Transition a board row's status and append an update log entry",
	Args:  cobra.ExactArgs(4),
	RunE:  runTaskUpdate,
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, taskID, status, summary := args[0], args[1], args[2], args[3]

	if !allowedStatuses[status] {
		return codexerr.New(codexerr.Rejected, "invalid status value", status)
	}

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}
	if err := brd.UpdateStatus(taskID, status); err != nil {
		return err
	}
	e.Store.AppendUpdateLog(agent, taskID, status, summary)
	style.PrintSuccess("%s -> %s", taskID, status)
	return nil
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task_id>",
	Short: "Print a board row plus any active lock and pidmeta",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	taskID := args[0]

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}
	found := false
	for _, t := range brd.ListTasks() {
		if t.ID != taskID {
			continue
		}
		found = true
		fmt.Printf("id:       %s\n", t.ID)
		fmt.Printf("title:    %s\n", t.Title)
		fmt.Printf("owner:    %s\n", t.Owner)
		fmt.Printf("deps:     %v\n", t.Deps)
		fmt.Printf("status:   %s\n", t.Status)
		scope, mapped := e.Config.ScopeForOwner(t.Owner)
		if mapped {
			if lock, _ := e.Store.ReadLock(scope); lock != nil && lock.TaskID == taskID {
				fmt.Printf("lock:     scope=%s owner=%s\n", lock.Scope, lock.Owner)
			}
		}
		if meta, _ := e.Store.ReadPidMeta(taskID); meta != nil {
			fmt.Printf("worker:   pid=%d backend=%s worktree=%s\n", meta.Pid, meta.LaunchBackend, meta.Worktree)
		}
	}
	if !found {
		return codexerr.New(codexerr.NotFound, "task not found on board", taskID)
	}
	return nil
}
