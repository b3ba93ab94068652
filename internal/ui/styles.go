package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"predictdash/internal/coord"
	"predictdash/internal/publish"
)

// --- UI Styles ---
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#8942E1"))
	subtitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3AC4BA")).Italic(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	warnStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	disabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Strikethrough(true)
	loginBoxStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#8942E1")).
			Padding(1, 2).
			Margin(1, 0)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Padding(0, 1)
	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#8942E1")).
			Padding(0, 1)
	headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3AC4BA"))
	dividerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cursorLineStyle = lipgloss.NewStyle().Background(lipgloss.Color("#2A2B3D"))
	toastBoxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(lipgloss.Color("240"))
)

var settlementStyles = map[publish.Settlement]lipgloss.Style{
	publish.SettledOK:      okStyle,
	publish.SettledPartial: warnStyle,
	publish.SettledFailed:  errorStyle,
}

func toastStyle(l coord.Level) lipgloss.Style {
	switch l {
	case coord.LevelError:
		return errorStyle
	case coord.LevelWarn:
		return warnStyle
	default:
		return subtitleStyle
	}
}

// renderFooter creates a consistent footer across all views
// statusLine: optional status information (shown in subtleStyle)
// helpLines: help text lines (shown in helpStyle)
func renderFooter(statusLine string, helpLines ...string) string {
	var b strings.Builder

	if statusLine != "" {
		b.WriteString(subtleStyle.Render(statusLine) + "\n")
	}

	for _, line := range helpLines {
		b.WriteString(helpStyle.Render(line) + "\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// control renders a key hint, struck through while its guard key is held.
func control(label string, disabled bool) string {
	if disabled {
		return disabledStyle.Render(label)
	}
	return label
}
