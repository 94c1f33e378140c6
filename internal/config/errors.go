package config

import "errors"

var (
	// ErrNotFound indicates orchestrator.toml does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrInvalidVersion indicates an unsupported schema version.
	ErrInvalidVersion = errors.New("unsupported config version")
)
