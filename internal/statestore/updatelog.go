package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycho46/codex-teams/internal/layout"
)

// AppendUpdateLog appends one timestamped line to LATEST_UPDATES.md.
// Failures fall through without aborting the caller; the log is advisory.
func (s *Store) AppendUpdateLog(actor, taskID, status, reason string) {
	path := layout.UpdateLogPath(s.dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %s -> %s: %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"), actor, taskID, status, reason)
	_, _ = f.WriteString(line)
}
