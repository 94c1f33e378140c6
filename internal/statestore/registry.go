package statestore

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jaycho46/codex-teams/internal/layout"
)

// RefreshActivePidRegistry rebuilds the derived active_pids.tsv snapshot
// from the current PidMeta files. It is non-authoritative — callers must
// treat it as a cache, never a source of truth, rebuilding it on demand.
func (s *Store) RefreshActivePidRegistry() error {
	metas, err := s.ListPidMeta()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("task_id\tpid\towner\tscope\talive\n")
	for _, m := range metas {
		fmt.Fprintf(&b, "%s\t%d\t%s\t%s\t%t\n", m.TaskID, m.Pid, m.Owner, m.Scope, IsAlive(m.Pid))
	}
	return writeAtomic(layout.ActivePidRegistryPath(s.dir), []byte(b.String()))
}

// ReadActivePidRegistry parses the last snapshot written by
// RefreshActivePidRegistry, or returns an empty slice if none exists yet.
func (s *Store) ReadActivePidRegistry() ([]RegistryRow, error) {
	data, err := os.ReadFile(layout.ActivePidRegistryPath(s.dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading active pid registry: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= 1 {
		return nil, nil
	}
	var rows []RegistryRow
	for _, line := range lines[1:] {
		cols := strings.Split(line, "\t")
		if len(cols) != 5 {
			continue
		}
		pid, _ := strconv.Atoi(cols[1])
		alive := cols[4] == "true"
		rows = append(rows, RegistryRow{TaskID: cols[0], Pid: pid, Owner: cols[2], Scope: cols[3], Alive: alive})
	}
	return rows, nil
}

// RegistryRow is one parsed line of active_pids.tsv.
type RegistryRow struct {
	TaskID string
	Pid    int
	Owner  string
	Scope  string
	Alive  bool
}
