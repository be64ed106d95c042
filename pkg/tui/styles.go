package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/susalert/susalert/pkg/overlay"
)

var (
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	demoStyle   = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(colorGray)
	bannerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 2)
)

func levelStyle(l overlay.Level) lipgloss.Style {
	switch l {
	case overlay.LevelNow:
		return bannerStyle.Foreground(colorRed)
	case overlay.LevelCountdown:
		return bannerStyle.Foreground(colorYellow)
	case overlay.LevelWaiting:
		return bannerStyle.Foreground(colorOrange)
	default:
		return bannerStyle.Foreground(colorGray)
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return okStyle
	case "stopped":
		return labelStyle
	default:
		return critStyle
	}
}
