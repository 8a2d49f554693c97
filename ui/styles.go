package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/viruchith/anomalyd/model"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)
)

func stateStyle(s model.State) lipgloss.Style {
	switch s {
	case model.StateReady:
		return okStyle
	case model.StateError:
		return critStyle
	case model.StateStopped:
		return helpStyle
	default:
		return warnStyle
	}
}

func severityStyle(sev model.Severity) lipgloss.Style {
	if sev == model.SeverityCritical {
		return critStyle
	}
	return warnStyle
}

func pctStyle(pct float64) lipgloss.Style {
	switch {
	case pct > 90:
		return critStyle
	case pct > 80:
		return warnStyle
	default:
		return valueStyle
	}
}
