package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/style"
	"github.com/jaycho46/codex-teams/internal/worktree"
)

var worktreeCmd = &cobra.Command{
	Use:     "worktree",
	GroupID: GroupTask,
	Short:   "Create, start, or list task worktrees directly",
	RunE:    requireSubcommand,
}

func init() {
	worktreeCmd.AddCommand(worktreeCreateCmd, worktreeStartCmd, worktreeListCmd)
}

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <agent> <task_id>",
	Short: "Create (or reuse) a task's worktree without touching locks or the board",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorktreeCreate,
}

func runWorktreeCreate(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, taskID := args[0], args[1]

	path, err := worktree.EnsureAgentWorktree(e.Primary, filepath.Base(e.RepoRoot), agent, taskID,
		e.Config.Merge.BaseBranch, resolveParentDir(e), time.Now())
	if err != nil {
		return err
	}
	style.PrintSuccess("worktree ready at %s", path)
	return nil
}

var worktreeStartCmd = &cobra.Command{
	Use:   "start <agent> <task_id>",
	Short: "Create the worktree, acquire the scope lock, and mark the task IN_PROGRESS",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorktreeStart,
}

func runWorktreeStart(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	agent, taskID := args[0], args[1]

	scope, mapped := e.Config.ScopeForOwner(agent)
	if !mapped {
		return codexerr.New(codexerr.Rejected, "agent has no configured scope", agent)
	}

	now := time.Now()
	path, err := worktree.EnsureAgentWorktree(e.Primary, filepath.Base(e.RepoRoot), agent, taskID,
		e.Config.Merge.BaseBranch, resolveParentDir(e), now)
	if err != nil {
		return err
	}

	branch := worktree.BranchName(agent, taskID)
	lock := &statestore.Lock{Owner: agent, Scope: scope, TaskID: taskID, Branch: branch, Worktree: path, CreatedAt: now, HeartbeatAt: now}
	if err := e.Store.CreateLock(lock); err != nil {
		return err
	}

	brd, err := e.loadBoard()
	if err != nil {
		return err
	}
	if err := brd.UpdateStatus(taskID, "IN_PROGRESS"); err != nil {
		return err
	}
	e.Store.AppendUpdateLog(agent, taskID, "IN_PROGRESS", "started via worktree start")

	style.PrintSuccess("worktree ready at %s, scope %s locked", path, scope)
	return nil
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List git worktrees of the primary repo",
	RunE:  runWorktreeList,
}

func runWorktreeList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	worktrees, err := e.Primary.WorktreeList()
	if err != nil {
		return err
	}
	for _, w := range worktrees {
		fmt.Printf("%s\t%s\n", w.Path, w.Branch)
	}
	return nil
}
