package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/layout"
)

// RunLock is the scheduler's mutex: a directory whose existence is the
// lock (mkdir is atomic), containing a pid file naming the current holder.
type RunLock struct {
	path string
}

// AcquireRunLock acquires the scheduler's run-lock. If the lock directory
// already exists, it reads the recorded pid: if that process is alive, it
// returns a LockConflict error; if dead, it removes the stale directory and
// retries exactly once.
func (s *Store) AcquireRunLock() (*RunLock, error) {
	path := layout.RunLockPath(s.dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating orchestrator directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := os.Mkdir(path, 0755); err == nil {
			if werr := writeRunLockPid(path); werr != nil {
				os.RemoveAll(path)
				return nil, werr
			}
			return &RunLock{path: path}, nil
		} else if !os.IsExist(err) {
			return nil, fmt.Errorf("creating run-lock directory: %w", err)
		}

		var pid int
		if data, rerr := os.ReadFile(filepath.Join(path, layout.RunLockPidFile)); rerr == nil {
			pid, _ = strconv.Atoi(string(data))
		}
		if IsAlive(pid) {
			return nil, codexerr.New(codexerr.LockConflict, "scheduler already running", fmt.Sprintf("pid=%d", pid))
		}
		// Stale: remove and retry once.
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("removing stale run-lock: %w", err)
		}
	}
	return nil, codexerr.New(codexerr.LockConflict, "scheduler already running", "")
}

func writeRunLockPid(lockDir string) error {
	pidPath := filepath.Join(lockDir, layout.RunLockPidFile)
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// Release removes the run-lock directory. It is safe to call from any exit
// path, including after a signal.
func (r *RunLock) Release() error {
	if r == nil {
		return nil
	}
	if err := os.RemoveAll(r.path); err != nil {
		return fmt.Errorf("releasing run-lock: %w", err)
	}
	return nil
}
