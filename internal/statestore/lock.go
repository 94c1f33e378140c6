package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/layout"
)

// Lock is the per-scope mutex record: at most one may exist per scope.
type Lock struct {
	Owner       string
	Scope       string
	TaskID      string
	Branch      string
	Worktree    string
	CreatedAt   time.Time
	HeartbeatAt time.Time
}

var lockFieldOrder = []string{"owner", "scope", "task_id", "branch", "worktree", "created_at", "heartbeat_at"}

func lockToFields(l *Lock) map[string]string {
	return map[string]string{
		"owner":        l.Owner,
		"scope":        l.Scope,
		"task_id":      l.TaskID,
		"branch":       l.Branch,
		"worktree":     l.Worktree,
		"created_at":   l.CreatedAt.UTC().Format(time.RFC3339),
		"heartbeat_at": l.HeartbeatAt.UTC().Format(time.RFC3339),
	}
}

func fieldsToLock(scope string, fields map[string]string) *Lock {
	created, _ := time.Parse(time.RFC3339, fields["created_at"])
	heartbeat, _ := time.Parse(time.RFC3339, fields["heartbeat_at"])
	return &Lock{
		Owner:       fields["owner"],
		Scope:       scope,
		TaskID:      fields["task_id"],
		Branch:      fields["branch"],
		Worktree:    fields["worktree"],
		CreatedAt:   created,
		HeartbeatAt: heartbeat,
	}
}

func fieldsLine(fields map[string]string, order []string) []byte {
	var b []byte
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		b = append(b, []byte(fmt.Sprintf("%s=%s\n", k, v))...)
	}
	return b
}

// withScopeFlock serializes Heartbeat/RemoveLock against each other (and
// against a concurrent process doing the same) with an exclusive advisory
// lock on a sibling .flock file. CreateLock does not need it: O_EXCL
// already makes that step atomic on its own.
func (s *Store) withScopeFlock(scope string, fn func() error) error {
	path := layout.LockPath(s.dir, scope)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating locks directory: %w", err)
	}
	fl := flock.New(path + ".flock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring scope flock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}

// ReadLock returns the Lock for scope, or nil if no lock file exists.
func (s *Store) ReadLock(scope string) (*Lock, error) {
	path := layout.LockPath(s.dir, scope)
	fields, err := readFields(path)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fieldsToLock(scope, fields), nil
}

// CreateLock creates the lock file for l.Scope using O_EXCL create
// semantics: it fails atomically if the file already exists. This is the
// single point of synchronization between concurrent start attempts for a
// scope. The content is written into the same exclusively-opened
// descriptor so no other writer can observe an empty file in between.
func (s *Store) CreateLock(l *Lock) error {
	path := layout.LockPath(s.dir, l.Scope)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating locks directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return codexerr.New(codexerr.LockConflict, "scope lock already held", l.Scope)
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(fieldsLine(lockToFields(l), lockFieldOrder)); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// Heartbeat updates heartbeat_at on an existing lock owned by owner/taskID.
// The read-modify-write is wrapped in withScopeFlock so a concurrent
// RemoveLock (task complete racing a worker's last heartbeat) can't land
// between the read and the write and resurrect a lock file that was just
// removed out from under its owner.
func (s *Store) Heartbeat(scope, owner, taskID string) error {
	return s.withScopeFlock(scope, func() error {
		l, err := s.ReadLock(scope)
		if err != nil {
			return err
		}
		if l == nil {
			return codexerr.New(codexerr.NotFound, "no lock for scope", scope)
		}
		if l.Owner != owner || l.TaskID != taskID {
			return codexerr.New(codexerr.StateInvariant, "lock owner mismatch", scope)
		}
		l.HeartbeatAt = time.Now()
		return writeFields(layout.LockPath(s.dir, scope), lockToFields(l), lockFieldOrder)
	})
}

// RemoveLock removes the lock file for scope, tolerating its absence.
func (s *Store) RemoveLock(scope string) error {
	return s.withScopeFlock(scope, func() error {
		err := os.Remove(layout.LockPath(s.dir, scope))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing lock: %w", err)
		}
		return nil
	})
}
