package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorReady    = lipgloss.Color("2")
	colorExcluded = lipgloss.Color("3")
	colorRunning  = lipgloss.Color("4")
	colorDim      = lipgloss.Color("8")

	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	readyStyle    = lipgloss.NewStyle().Foreground(colorReady).Bold(true)
	excludedStyle = lipgloss.NewStyle().Foreground(colorExcluded)
	runningStyle  = lipgloss.NewStyle().Foreground(colorRunning)
	dimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
)
