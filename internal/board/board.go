// Package board parses and mutates the plain-text TODO board: a single
// markdown table whose column order is discovered from its header row.
package board

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jaycho46/codex-teams/internal/codexerr"
)

// TaskRow is one row of the TODO board, in file order.
type TaskRow struct {
	ID     string
	Title  string
	Owner  string
	Deps   []string
	Notes  string
	Status string
}

// Board holds a parsed table, preserving every line outside the table body
// and the raw cells of every row so a mutation rewrites only what changed.
type Board struct {
	path      string
	preamble  []string // lines before the header row
	header    []string // raw header cells, in file order
	colIndex  map[string]int
	separator string   // the |---|---| rule line, kept verbatim
	rows      [][]string
	postamble []string // lines after the last table row
}

var knownColumns = []string{"ID", "Title", "Owner", "Deps", "Notes", "Status"}

// Parse reads the board at path. A board that does not exist yet parses as
// empty (header discovery happens on first AppendRow).
func Parse(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Board{path: path}, nil
		}
		return nil, fmt.Errorf("reading board: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	b := &Board{path: path}

	headerIdx := -1
	for i, line := range lines {
		if looksLikeTableRow(line) && i+1 < len(lines) && isSeparatorLine(lines[i+1]) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		b.preamble = lines
		return b, nil
	}

	b.preamble = lines[:headerIdx]
	b.header = splitRow(lines[headerIdx])
	b.colIndex = indexColumns(b.header)
	b.separator = lines[headerIdx+1]

	i := headerIdx + 2
	for ; i < len(lines); i++ {
		if !looksLikeTableRow(lines[i]) {
			break
		}
		b.rows = append(b.rows, splitRow(lines[i]))
	}
	b.postamble = lines[i:]
	return b, nil
}

// ListTasks returns every row in file order.
func (b *Board) ListTasks() []TaskRow {
	rows := make([]TaskRow, 0, len(b.rows))
	for _, cells := range b.rows {
		rows = append(rows, b.rowToTask(cells))
	}
	return rows
}

func (b *Board) rowToTask(cells []string) TaskRow {
	get := func(col string) string {
		idx, ok := b.colIndex[col]
		if !ok || idx >= len(cells) {
			return ""
		}
		return unescapeCell(cells[idx])
	}
	t := TaskRow{
		ID:     get("ID"),
		Title:  get("Title"),
		Owner:  get("Owner"),
		Notes:  get("Notes"),
		Status: get("Status"),
	}
	if deps := get("Deps"); deps != "" && deps != "-" {
		for _, d := range strings.Split(deps, ",") {
			if d = strings.TrimSpace(d); d != "" {
				t.Deps = append(t.Deps, d)
			}
		}
	}
	return t
}

func (b *Board) rowIndex(id string) int {
	idCol, ok := b.colIndex["ID"]
	if !ok {
		return -1
	}
	for i, cells := range b.rows {
		if idCol < len(cells) && unescapeCell(cells[idCol]) == id {
			return i
		}
	}
	return -1
}

// UpdateStatus rewrites the Status cell of the row for id, leaving every
// other cell, and the whitespace around them, untouched.
func (b *Board) UpdateStatus(id, newStatus string) error {
	statusCol, ok := b.colIndex["Status"]
	if !ok {
		return codexerr.New(codexerr.NotFound, "board has no Status column", b.path)
	}
	idx := b.rowIndex(id)
	if idx == -1 {
		return codexerr.New(codexerr.NotFound, "task not found on board", id)
	}
	for len(b.rows[idx]) <= statusCol {
		b.rows[idx] = append(b.rows[idx], "")
	}
	b.rows[idx][statusCol] = " " + escapeCell(newStatus) + " "
	return b.save()
}

// AppendRow inserts a new row after the last existing row. It fails if id
// already appears on the board, or if id contains a pipe character.
func (b *Board) AppendRow(id, title, owner string, deps []string, status string) error {
	if strings.Contains(id, "|") {
		return codexerr.New(codexerr.Rejected, "task id may not contain '|'", id)
	}
	if b.header == nil {
		b.header = knownColumns
		b.colIndex = indexColumns(b.header)
		b.separator = buildSeparator(len(b.header))
	}
	if b.rowIndex(id) != -1 {
		return codexerr.New(codexerr.Rejected, "task id already present on board", id)
	}
	if status == "" {
		status = "TODO"
	}
	depsCell := "-"
	if len(deps) > 0 {
		depsCell = strings.Join(deps, ",")
	}

	values := map[string]string{
		"ID": id, "Title": title, "Owner": owner, "Deps": depsCell, "Status": status,
	}
	cells := make([]string, len(b.header))
	for col, idx := range b.colIndex {
		cells[idx] = " " + escapeCell(values[col]) + " "
	}
	b.rows = append(b.rows, cells)
	return b.save()
}

func (b *Board) save() error {
	var lines []string
	lines = append(lines, b.preamble...)
	lines = append(lines, joinRow(b.header), b.separator)
	for _, cells := range b.rows {
		lines = append(lines, joinRow(cells))
	}
	lines = append(lines, b.postamble...)

	content := strings.Join(lines, "\n") + "\n"

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating board directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".board-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp board file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp board file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp board file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("renaming board file into place: %w", err)
	}
	return nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func looksLikeTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|") && len(t) > 1
}

var separatorCellRe = regexp.MustCompile(`^:?-+:?$`)

func isSeparatorLine(line string) bool {
	if !looksLikeTableRow(line) {
		return false
	}
	for _, cell := range splitRow(line) {
		if !separatorCellRe.MatchString(strings.TrimSpace(cell)) {
			return false
		}
	}
	return true
}

func buildSeparator(cols int) string {
	cells := make([]string, cols)
	for i := range cells {
		cells[i] = "---"
	}
	return "|" + strings.Join(cells, "|") + "|"
}

// splitRow splits a table row on unescaped pipes, keeping surrounding
// whitespace in each cell so UpdateStatus can preserve it.
func splitRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")

	var cells []string
	var cur strings.Builder
	escaped := false
	for _, r := range trimmed {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '|':
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	cells = append(cells, cur.String())
	return cells
}

func joinRow(cells []string) string {
	return "|" + strings.Join(cells, "|") + "|"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "|", "\\|")
}

func unescapeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\\|", "|")
	return strings.ReplaceAll(s, "\\\\", "\\")
}
