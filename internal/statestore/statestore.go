// Package statestore provides atomic, line-oriented file operations over
// the state directory: scope Locks, per-task PidMeta, the append-only
// UpdateLog, and the scheduler's RunLock. Record rewrites go through
// writeAtomic (write-temp-then-rename within the same directory) so a
// reader never observes a partial file; CreateLock writes into its O_EXCL
// descriptor, the UpdateLog is appended to in place, and the RunLock pid
// file is written directly. Reads never fail on a missing file — readField
// returns "" and the typed readers return (nil, nil).
package statestore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a handle on one state directory.
type Store struct {
	dir string
}

// New returns a Store rooted at stateDir.
func New(stateDir string) *Store {
	return &Store{dir: stateDir}
}

// Dir returns the state directory this store operates on.
func (s *Store) Dir() string { return s.dir }

// writeAtomic writes data to path via write-temp-then-rename in the same
// directory, creating parent directories lazily.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// readFields parses a key=value newline-delimited file into a map. A
// missing file yields an empty map and a nil error — the contract requires
// callers never see an error for an absent record.
func readFields(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	fields := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return fields, nil
}

// readField returns the value for key in the key=value file at path, or ""
// if the file or the key is absent.
func readField(path, key string) string {
	fields, err := readFields(path)
	if err != nil {
		return ""
	}
	return fields[key]
}

func writeFields(path string, fields map[string]string, order []string) error {
	var b strings.Builder
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return writeAtomic(path, []byte(b.String()))
}
