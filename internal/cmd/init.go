package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/gitrepo"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/style"
	"github.com/jaycho46/codex-teams/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupConfig,
	Short:   "Initialize a state directory and default orchestrator.toml",
	RunE:    runInit,
}

func init() {
	initCmd.Flags().String("gitignore", "ask", "add the state dir to .gitignore: ask|yes|no")
}

func runInit(cmd *cobra.Command, args []string) error {
	repoFlag, _ := cmd.Flags().GetString("repo")
	stateDirFlag, _ := cmd.Flags().GetString("state-dir")
	gitignoreMode, _ := cmd.Flags().GetString("gitignore")

	start := repoFlag
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		start = cwd
	}

	repoRoot, err := workspace.FindPrimaryRepoRoot(start)
	if err != nil {
		return err
	}
	stateDir := workspace.ResolveStateDir(repoRoot, stateDirFlag)
	cfgPath := layout.ConfigPath(stateDir)

	if _, err := os.Stat(cfgPath); err == nil {
		style.PrintWarning("orchestrator.toml already exists at %s, leaving it in place", cfgPath)
	} else {
		if err := config.Save(cfgPath, config.Default()); err != nil {
			return err
		}
		style.PrintSuccess("wrote %s", cfgPath)
	}

	for _, dir := range []string{
		filepath.Join(stateDir, layout.LocksDir),
		layout.LogsDirPath(stateDir),
		layout.TaskSpecsDir,
	} {
		path := dir
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoRoot, path)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	boardPath := layout.TodoBoardPath(repoRoot)
	if _, err := os.Stat(boardPath); os.IsNotExist(err) {
		seed := "| ID | Title | Owner | Deps | Notes | Status |\n|---|---|---|---|---|---|\n"
		if err := os.WriteFile(boardPath, []byte(seed), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", boardPath, err)
		}
		style.PrintSuccess("wrote %s", boardPath)
	}

	if err := maybeGitignore(repoRoot, stateDir, gitignoreMode); err != nil {
		style.PrintWarning("could not update .gitignore: %s", err)
	}

	style.PrintSuccess("initialized state directory at %s", stateDir)
	return nil
}

func maybeGitignore(repoRoot, stateDir, mode string) error {
	if mode == "no" {
		return nil
	}
	g := gitrepo.New(repoRoot)
	if !g.IsRepo() {
		return nil
	}
	rel, err := filepath.Rel(repoRoot, stateDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}

	gitignorePath := filepath.Join(repoRoot, ".gitignore")
	data, _ := os.ReadFile(gitignorePath)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == rel {
			return nil
		}
	}

	if mode == "ask" && !confirm(fmt.Sprintf("add %q to .gitignore?", rel)) {
		return nil
	}

	f, err := os.OpenFile(gitignorePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n", rel)
	return err
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
