// Package tui implements the live dashboard behind `status --tui`: a
// read-only view of the readiness snapshot, refetched on a timer via a
// tea.Cmd and rendered without ever mutating orchestrator state.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jaycho46/codex-teams/internal/board"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/readiness"
	"github.com/jaycho46/codex-teams/internal/scheduler"
	"github.com/jaycho46/codex-teams/internal/statestore"
)

// refreshInterval is how often the dashboard re-reads the board and state
// store. Read-only and lock-free, so a short interval costs nothing more
// than a few stat calls.
const refreshInterval = 2 * time.Second

// Deps are the resources the dashboard needs to take its own snapshots.
type Deps struct {
	Store     *statestore.Store
	RepoRoot  string
	BoardPath string
	Config    *config.Config
}

// Run starts the dashboard's bubbletea program and blocks until the user
// quits.
func Run(deps Deps) error {
	_, err := tea.NewProgram(newModel(deps), tea.WithAltScreen()).Run()
	return err
}

type refreshMsg struct {
	result readiness.Result
	err    error
}

type row struct {
	kind    string // "ready", "excluded", "running"
	id      string
	title   string
	owner   string
	reason  string
	source  string
}

type model struct {
	deps     Deps
	keys     KeyMap
	help     help.Model
	showHelp bool
	cursor   int
	rows     []row
	err      error
	width    int
}

func newModel(deps Deps) model {
	return model{deps: deps, keys: DefaultKeyMap(), help: help.New()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m model) refresh() tea.Cmd {
	deps, boardPath := m.deps, m.deps.BoardPath
	return func() tea.Msg {
		brd, err := board.Parse(boardPath)
		if err != nil {
			return refreshMsg{err: err}
		}
		snap, err := scheduler.Snapshot(scheduler.Deps{
			Store: deps.Store, RepoRoot: deps.RepoRoot, Config: deps.Config,
		}, brd, 0)
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{result: readiness.Evaluate(*snap)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = buildRows(msg.result)
			if m.cursor >= len(m.rows) {
				m.cursor = max(0, len(m.rows)-1)
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Top):
			m.cursor = 0
		case key.Matches(msg, m.keys.Bottom):
			m.cursor = max(0, len(m.rows)-1)
		}
	}
	return m, nil
}

func buildRows(result readiness.Result) []row {
	rows := make([]row, 0, len(result.Ready)+len(result.Excluded)+len(result.RunningLocks))
	for _, t := range result.Ready {
		rows = append(rows, row{kind: "ready", id: t.ID, title: t.Title, owner: t.Owner})
	}
	for _, ex := range result.Excluded {
		rows = append(rows, row{kind: "excluded", id: ex.Task.ID, title: ex.Task.Title, owner: ex.Task.Owner,
			reason: string(ex.Reason), source: string(ex.Source)})
	}
	for _, l := range result.RunningLocks {
		rows = append(rows, row{kind: "running", id: l.TaskID, owner: l.Owner, title: l.Scope})
	}
	return rows
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("codex-teams status") + "\n\n")

	if m.err != nil {
		b.WriteString(excludedStyle.Render(fmt.Sprintf("error: %s", m.err)) + "\n")
	} else if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("no tasks in TODO") + "\n")
	}

	for i, r := range m.rows {
		line := formatRow(r)
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func formatRow(r row) string {
	switch r.kind {
	case "ready":
		return readyStyle.Render(fmt.Sprintf("  ready     %s  %s  owner=%s", r.id, r.title, r.owner))
	case "excluded":
		reason := r.reason
		if r.source != "" {
			reason += " source=" + r.source
		}
		return excludedStyle.Render(fmt.Sprintf("  excluded  %s  %s  %s", r.id, r.title, reason))
	case "running":
		return runningStyle.Render(fmt.Sprintf("  running   %s  scope=%s owner=%s", r.id, r.title, r.owner))
	default:
		return r.id
	}
}
