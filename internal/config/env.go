package config

import (
	"fmt"
	"os"
)

// WorkerEnvConfig specifies the environment a worker process is launched
// with, the single source of truth for agent-identifying variables so the
// worker-side CLI and the core agree on them.
type WorkerEnvConfig struct {
	Agent       string
	Scope       string
	TaskID      string
	StateDir    string
	Worktree    string
	PrimaryRepo string
}

// WorkerEnv returns the environment variables a worker process needs to call
// back into the orchestrator (task complete, task update) from its worktree.
func WorkerEnv(cfg WorkerEnvConfig) map[string]string {
	return map[string]string{
		"AI_STATE_DIR":       cfg.StateDir,
		"CODEX_AGENT":        cfg.Agent,
		"CODEX_SCOPE":        cfg.Scope,
		"CODEX_TASK_ID":      cfg.TaskID,
		"CODEX_WORKTREE":     cfg.Worktree,
		"CODEX_PRIMARY_REPO": cfg.PrimaryRepo,
	}
}

// EnvMap parses a process environment list (os.Environ() shape) into a
// map, the inverse of EnvForExecCommand, so it can be merged with
// MergeEnv before a launch.
func EnvMap(environ []string) map[string]string {
	result := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				result[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return result
}

// MergeEnv merges multiple environment maps, with later maps taking
// precedence over earlier ones.
func MergeEnv(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// EnvForExecCommand returns os.Environ() with env appended, for cmd.Env.
func EnvForExecCommand(env map[string]string) []string {
	result := os.Environ()
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
