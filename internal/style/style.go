// Package style provides the CLI's colored output, shared by every command
// under internal/cmd so status/success/warning/error lines look uniform.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// TitleCase renders an agent or owner identifier for display, e.g. turning
// a config key like "backend-team" into "Backend-Team" for a status
// header. Display-only: never applied to a value compared against
// orchestrator.toml or TODO board data.
func TitleCase(s string) string {
	return titleCaser.String(s)
}

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	Info    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

var (
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Dim.Render("→")
)

// PrintWarning writes a prefixed warning to stderr. Used for
// best-effort failures that must not abort the caller.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// PrintError writes a prefixed error line to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorPrefix, fmt.Sprintf(format, args...))
}

// PrintSuccess writes a prefixed success line to stdout.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("%s %s\n", SuccessPrefix, fmt.Sprintf(format, args...))
}
