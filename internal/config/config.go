// Package config loads and saves orchestrator.toml, the one configuration
// file a codex-teams state directory carries: owner→scope mapping, runtime
// worker flags, and merge defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// CurrentSchemaVersion is written by `task init` and checked on every load.
const CurrentSchemaVersion = 1

// Config is the root of orchestrator.toml.
type Config struct {
	SchemaVersion int               `toml:"schema_version"`
	Owners        map[string]string `toml:"owners"`
	Runtime       RuntimeConfig     `toml:"runtime"`
	Merge         MergeConfig       `toml:"merge"`
}

// RuntimeConfig controls how workers are launched.
type RuntimeConfig struct {
	Backend    string   `toml:"backend"`     // "tmux" or "codex_exec"
	CodexFlags []string `toml:"codex_flags"` // base CLI flags passed to the worker binary
	ParentDir  string   `toml:"parent_dir"`  // where task worktrees are created, default ".."
}

// MergeConfig controls the completion pipeline's merge behavior.
type MergeConfig struct {
	BaseBranch string `toml:"base_branch"` // default "main"
	Strategy   string `toml:"strategy"`    // "ff-only" or "rebase-then-ff"
}

// Default returns the configuration written by `task init`.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Owners:        map[string]string{},
		Runtime: RuntimeConfig{
			Backend:    "tmux",
			CodexFlags: []string{},
			ParentDir:  "..",
		},
		Merge: MergeConfig{
			BaseBranch: "main",
			Strategy:   "rebase-then-ff",
		},
	}
}

// Load reads and validates orchestrator.toml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("installing config: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	if cfg.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("%w: schema_version %d (this binary understands up to %d)", ErrInvalidVersion, cfg.SchemaVersion, CurrentSchemaVersion)
	}
	if cfg.Runtime.Backend == "" {
		cfg.Runtime.Backend = "tmux"
	}
	if cfg.Merge.BaseBranch == "" {
		cfg.Merge.BaseBranch = "main"
	}
	if cfg.Merge.Strategy == "" {
		cfg.Merge.Strategy = "rebase-then-ff"
	}
	if cfg.Owners == nil {
		cfg.Owners = map[string]string{}
	}
	return nil
}

// ScopeForOwner returns the configured default scope for agent. An agent
// absent from [owners] is unmapped — the evaluator excludes its rows with
// reason unmapped_owner rather than guessing a scope for it.
func (c *Config) ScopeForOwner(agent string) (scope string, mapped bool) {
	scope, ok := c.Owners[agent]
	if !ok || scope == "" {
		return "", false
	}
	return scope, true
}
