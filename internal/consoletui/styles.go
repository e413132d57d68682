package consoletui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ssloxford/current-affairs/internal/tasks"
)

// Color palette - dark theme inspired by Catppuccin Mocha
var (
	ColorBase     = lipgloss.Color("#1e1e2e")
	ColorSurface0 = lipgloss.Color("#313244")
	ColorSurface2 = lipgloss.Color("#585b70")
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")

	ColorRed      = lipgloss.Color("#f38ba8")
	ColorGreen    = lipgloss.Color("#a6e3a1")
	ColorYellow   = lipgloss.Color("#f9e2af")
	ColorBlue     = lipgloss.Color("#89b4fa")
	ColorMauve    = lipgloss.Color("#cba6f7")
	ColorTeal     = lipgloss.Color("#94e2d5")
	ColorPeach    = lipgloss.Color("#fab387")
	ColorLavender = lipgloss.Color("#b4befe")
)

// Header and status bar.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBase).
			Background(ColorBlue).
			Padding(0, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext0).
			Background(ColorSurface0).
			Padding(0, 1)

	errorBarStyle = lipgloss.NewStyle().
			Foreground(ColorBase).
			Background(ColorRed).
			Padding(0, 1)
)

// Section styles.
var (
	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorLavender)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMauve).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorOverlay0)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBase).
			Background(ColorMauve)

	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorYellow)

	goodStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	badStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorSurface2).
	Padding(0, 1)

func taskStyle(s tasks.State) lipgloss.Style {
	switch s {
	case tasks.Running, tasks.Retry:
		return activeStyle
	case tasks.Success:
		return goodStyle
	case tasks.Failure, tasks.Error:
		return badStyle
	case tasks.Disabled:
		return dimStyle
	}
	return valueStyle
}
