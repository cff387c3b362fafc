package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/schedule"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Playback styles
var (
	StyleRunning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Bold(true)

	StyleStopped = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	StyleRange = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	StyleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))
)

// StatusStyles builds one style per status from the configured colors.
func StatusStyles(cfg *config.PhasingConfig) map[schedule.TaskStatus]lipgloss.Style {
	styles := make(map[schedule.TaskStatus]lipgloss.Style, len(schedule.Statuses))
	for _, st := range schedule.Statuses {
		styles[st] = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.StatusColor(st).Hex()))
	}
	return styles
}

// StatusIcon returns the glyph drawn next to a task.
func StatusIcon(status schedule.TaskStatus) string {
	switch status {
	case schedule.Finished:
		return "✓"
	case schedule.Late:
		return "✗"
	case schedule.InProgress:
		return "●"
	case schedule.Advanced:
		return "»"
	default:
		return "○"
	}
}
