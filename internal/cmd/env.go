package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/workspace"
)

// env bundles the resources almost every command needs, resolved once from
// --repo/--state-dir/--config, AI_STATE_DIR, and orchestrator.toml.
type env struct {
	RepoRoot  string
	StateDir  string
	Primary   *gitrepo.Git
	Store     *statestore.Store
	Config    *config.Config
	BoardPath string
	IsPrimary bool
	CLIPath   string
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	repoFlag, _ := cmd.Flags().GetString("repo")
	stateDirFlag, _ := cmd.Flags().GetString("state-dir")
	configFlag, _ := cmd.Flags().GetString("config")

	start := repoFlag
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		start = cwd
	}

	repoRoot, err := workspace.FindPrimaryRepoRoot(start)
	if err != nil {
		return nil, err
	}
	isPrimary, err := workspace.IsPrimaryRepo(start)
	if err != nil {
		return nil, err
	}

	stateDir := workspace.ResolveStateDir(repoRoot, stateDirFlag)
	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = layout.ConfigPath(stateDir)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	cliPath, err := os.Executable()
	if err != nil {
		cliPath = os.Args[0]
	}
	cliPath, _ = filepath.Abs(cliPath)

	return &env{
		RepoRoot:  repoRoot,
		StateDir:  stateDir,
		Primary:   gitrepo.New(repoRoot),
		Store:     statestore.New(stateDir),
		Config:    cfg,
		BoardPath: layout.TodoBoardPath(repoRoot),
		IsPrimary: isPrimary,
		CLIPath:   cliPath,
	}, nil
}

func (e *env) loadBoard() (*board.Board, error) {
	return board.Parse(e.BoardPath)
}

// resolveParentDir returns the absolute directory task worktrees are
// created under, resolving a relative runtime.parent_dir against the
// primary repo root.
func resolveParentDir(e *env) string {
	dir := e.Config.Runtime.ParentDir
	if dir == "" {
		dir = ".."
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(e.RepoRoot, dir)
}
