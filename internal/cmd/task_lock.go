package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/style"
)

// task lock/unlock/heartbeat are manual escape hatches for an operator to
// hold a scope without going through the Scheduler's start pipeline — for
// example to pair-program inside a worktree the orchestrator isn't
// supervising.

var taskLockCmd = &cobra.Command{
	Use:   "lock <agent> <scope> [task_id]",
	Short: "Manually acquire a scope lock",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTaskLock,
}

func runTaskLock(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, scope := args[0], args[1]
	taskID := ""
	if len(args) == 3 {
		taskID = args[2]
	}

	now := time.Now()
	lock := &statestore.Lock{Owner: agent, Scope: scope, TaskID: taskID, CreatedAt: now, HeartbeatAt: now}
	if err := e.Store.CreateLock(lock); err != nil {
		return err
	}
	style.PrintSuccess("locked scope %s for %s", scope, agent)
	return nil
}

var taskUnlockCmd = &cobra.Command{
	Use:   "unlock <agent> <scope>",
	Short: "Release a scope lock owned by agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskUnlock,
}

func runTaskUnlock(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, scope := args[0], args[1]

	lock, err := e.Store.ReadLock(scope)
	if err != nil {
		return err
	}
	if lock == nil {
		return codexerr.New(codexerr.NotFound, "no lock held for scope", scope)
	}
	if lock.Owner != agent {
		return codexerr.New(codexerr.LockConflict, "lock is owned by a different agent", lock.Owner)
	}
	if err := e.Store.RemoveLock(scope); err != nil {
		return err
	}
	style.PrintSuccess("unlocked scope %s", scope)
	return nil
}

var taskHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <agent> <scope>",
	Short: "Refresh the heartbeat timestamp on a held scope lock",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskHeartbeat,
}

func runTaskHeartbeat(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, scope := args[0], args[1]

	lock, err := e.Store.ReadLock(scope)
	if err != nil {
		return err
	}
	if lock == nil {
		return codexerr.New(codexerr.NotFound, "no lock held for scope", scope)
	}
	if err := e.Store.Heartbeat(scope, agent, lock.TaskID); err != nil {
		return err
	}
	style.PrintSuccess("heartbeat refreshed for scope %s", scope)
	return nil
}
