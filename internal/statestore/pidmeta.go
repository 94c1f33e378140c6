package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/layout"
)

// PidMeta is the on-disk record of one running worker; at most one exists
// per task id.
type PidMeta struct {
	Pid           int
	TaskID        string
	Owner         string
	Scope         string
	Worktree      string
	StartedAt     time.Time
	LaunchBackend string // "tmux" | "codex_exec"
	LaunchLabel   string
	TmuxSession   string
	LogFile       string
	Trigger       string
}

var pidMetaFieldOrder = []string{
	"pid", "task_id", "owner", "scope", "worktree", "started_at",
	"launch_backend", "launch_label", "tmux_session", "log_file", "trigger",
}

func pidMetaToFields(p *PidMeta) map[string]string {
	return map[string]string{
		"pid":            strconv.Itoa(p.Pid),
		"task_id":        p.TaskID,
		"owner":          p.Owner,
		"scope":          p.Scope,
		"worktree":       p.Worktree,
		"started_at":     p.StartedAt.UTC().Format(time.RFC3339),
		"launch_backend": p.LaunchBackend,
		"launch_label":   p.LaunchLabel,
		"tmux_session":   p.TmuxSession,
		"log_file":       p.LogFile,
		"trigger":        p.Trigger,
	}
}

func fieldsToPidMeta(fields map[string]string) *PidMeta {
	pid, _ := strconv.Atoi(fields["pid"])
	started, _ := time.Parse(time.RFC3339, fields["started_at"])
	return &PidMeta{
		Pid:           pid,
		TaskID:        fields["task_id"],
		Owner:         fields["owner"],
		Scope:         fields["scope"],
		Worktree:      fields["worktree"],
		StartedAt:     started,
		LaunchBackend: fields["launch_backend"],
		LaunchLabel:   fields["launch_label"],
		TmuxSession:   fields["tmux_session"],
		LogFile:       fields["log_file"],
		Trigger:       fields["trigger"],
	}
}

// ReadPidMeta returns the PidMeta for taskID, or nil if absent.
func (s *Store) ReadPidMeta(taskID string) (*PidMeta, error) {
	path := layout.PidMetaPath(s.dir, taskID)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, codexerr.New(codexerr.StateInvariant, "pidmeta path is a directory", path)
	}
	fields, err := readFields(path)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fieldsToPidMeta(fields), nil
}

// WritePidMeta writes PidMeta atomically (create-then-rename). It refuses
// if the path is occupied by a directory, and refuses to overwrite an
// existing live PidMeta for the same task (at-most-one invariant). A
// record whose pid is dead, or a rewrite carrying the same pid, may be
// overwritten freely.
func (s *Store) WritePidMeta(p *PidMeta) error {
	path := layout.PidMetaPath(s.dir, p.TaskID)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return codexerr.New(codexerr.StateInvariant, "pidmeta path is a directory", path)
	}
	existing, err := s.ReadPidMeta(p.TaskID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Pid != p.Pid && IsAlive(existing.Pid) {
		return codexerr.New(codexerr.StateInvariant, "live pidmeta already exists for task", p.TaskID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating orchestrator directory: %w", err)
	}
	return writeFields(path, pidMetaToFields(p), pidMetaFieldOrder)
}

// RemovePidMeta removes the PidMeta for taskID, tolerating its absence.
func (s *Store) RemovePidMeta(taskID string) error {
	err := os.Remove(layout.PidMetaPath(s.dir, taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pidmeta: %w", err)
	}
	return nil
}

// ListPidMeta returns every PidMeta file currently in the state directory.
func (s *Store) ListPidMeta() ([]*PidMeta, error) {
	dir := filepath.Join(s.dir, layout.OrchestratorDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var metas []*PidMeta
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pid" {
			continue
		}
		fields, err := readFields(filepath.Join(dir, e.Name()))
		if err != nil || len(fields) == 0 {
			continue
		}
		metas = append(metas, fieldsToPidMeta(fields))
	}
	return metas, nil
}

// IsAlive reports whether pid refers to a live process, by sending signal 0
// (no-op probe, does not affect the target process).
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Terminate sends SIGTERM to pid, waits up to grace for it to exit, and
// escalates to SIGKILL if it is still alive after the stop grace period.
// It tolerates a pid that is already dead.
func Terminate(pid int, grace time.Duration) error {
	if !IsAlive(pid) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return nil
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !IsAlive(pid) {
		return nil
	}
	return proc.Signal(syscall.SIGKILL)
}
