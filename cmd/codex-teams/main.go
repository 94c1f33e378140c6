/*
codex-teams orchestrates parallel AI coding agents over git worktrees.

It turns a plain-text TODO board into a dependency-aware work queue: it
starts at most one worker per ready task in its own git worktree on a
task-scoped branch, tracks runtime liveness through pid metadata and
per-scope locks, and finalizes completed work by merging it back into a
base branch with cleanup. Crashed or stopped workers are reconciled by an
auto-cleanup watcher so the board never wedges.

Usage:

	codex-teams <command> [arguments]

Common commands:

	codex-teams init             Initialize a new TODO board and state directory
	codex-teams run start        Start every ready task
	codex-teams task complete    Merge a finished task back and clean up
	codex-teams status           Print the current readiness snapshot
	codex-teams dashboard        Open the live status dashboard

See 'codex-teams help <command>' for more information on a specific command.
*/
package main

import (
	"os"

	"github.com/jaycho46/codex-teams/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
