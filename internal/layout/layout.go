// Package layout centralizes the on-disk path and naming conventions for a
// codex-teams state directory, so no other package hand-joins path segments.
package layout

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Timing constants for the orchestrator's own polling and grace periods.
const (
	// StopGracePeriod is how long task stop/emergency-stop wait after SIGTERM
	// before escalating to SIGKILL.
	StopGracePeriod = 5 * time.Second

	// WatcherPollInterval is how often the auto-cleanup watcher checks
	// whether its worker pid is still alive.
	WatcherPollInterval = 500 * time.Millisecond
)

// File and directory names under the state directory.
const (
	ConfigFile        = "orchestrator.toml"
	OrchestratorDir   = "orchestrator"
	LocksDir          = "locks"
	LogsDir           = "logs"
	RunLockDir        = "run.lock"
	RunLockPidFile    = "pid"
	ActivePidRegistry = "active_pids.tsv"
	UpdateLogFile     = "LATEST_UPDATES.md"
)

// DefaultStateDirName is the default state directory name relative to the
// primary repo root, used when neither --state-dir nor AI_STATE_DIR is set.
const DefaultStateDirName = ".state"

// TaskSpecsDir is the directory holding per-task spec files, relative to the
// primary repo root.
const TaskSpecsDir = "tasks/specs"

// TaskIDPattern is the required shape of a TaskRow id: T<digits>-<digits>.
var TaskIDPattern = regexp.MustCompile(`^T\d+-\d+$`)

// ConfigPath returns the path to orchestrator.toml within a state directory.
func ConfigPath(stateDir string) string {
	return filepath.Join(stateDir, ConfigFile)
}

// LockPath returns the path to a scope's lock file.
func LockPath(stateDir, scope string) string {
	return filepath.Join(stateDir, LocksDir, scope+".lock")
}

// PidMetaPath returns the path to a task's pid metadata file.
func PidMetaPath(stateDir, taskID string) string {
	return filepath.Join(stateDir, OrchestratorDir, Slug(taskID)+".pid")
}

// RunLockPath returns the path to the scheduler's run-lock directory.
func RunLockPath(stateDir string) string {
	return filepath.Join(stateDir, OrchestratorDir, RunLockDir)
}

// ActivePidRegistryPath returns the path to the derived pid registry.
func ActivePidRegistryPath(stateDir string) string {
	return filepath.Join(stateDir, OrchestratorDir, ActivePidRegistry)
}

// UpdateLogPath returns the path to the append-only update log.
func UpdateLogPath(stateDir string) string {
	return filepath.Join(stateDir, UpdateLogFile)
}

// LogsDirPath returns the directory worker stdout/stderr logs are written to.
func LogsDirPath(stateDir string) string {
	return filepath.Join(stateDir, OrchestratorDir, LogsDir)
}

// TaskSpecPath returns the path to a task's spec file relative to repoRoot.
func TaskSpecPath(repoRoot, taskID string) string {
	return filepath.Join(repoRoot, TaskSpecsDir, taskID+".md")
}

// DefaultTodoBoardName is the TODO board's filename at the primary repo root.
const DefaultTodoBoardName = "TODO.md"

// TodoBoardPath returns the path to the plain-text TODO board at repoRoot.
func TodoBoardPath(repoRoot string) string {
	return filepath.Join(repoRoot, DefaultTodoBoardName)
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug lower-cases s and collapses runs of non-alphanumeric characters to a
// single hyphen. Branch and worktree names are built from these slugs.
func Slug(s string) string {
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return strings.ToLower(s)
}

// BranchName returns the task branch name codex/<agent>-<task>.
func BranchName(agent, taskID string) string {
	return "codex/" + Slug(agent) + "-" + Slug(taskID)
}

// WorktreeDirName returns the worktree directory name
// <repo_name>-<agent>-<task>, to be joined under the configured parent dir.
func WorktreeDirName(repoName, agent, taskID string) string {
	return repoName + "-" + Slug(agent) + "-" + Slug(taskID)
}
