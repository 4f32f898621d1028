package chatui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agusx1211/llmws/internal/theme"
)

// Header and status bar.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBase).
			Background(theme.ColorBlue).
			Padding(0, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(theme.ColorSubtext0).
			Background(theme.ColorSurface0).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorLavender).
			Background(theme.ColorSurface0)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(theme.ColorSubtext0).
				Background(theme.ColorSurface0)
)

// Transcript pane styles.
var (
	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBlue)

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorGreen)

	systemLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorPeach)

	textStyle = lipgloss.NewStyle().
			Foreground(theme.ColorText)

	timestampStyle = lipgloss.NewStyle().
			Foreground(theme.ColorOverlay0)

	partialStyle = lipgloss.NewStyle().
			Foreground(theme.ColorSubtext1)

	errorStyle = lipgloss.NewStyle().
			Foreground(theme.ColorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(theme.ColorOverlay0)
)

// Input pane.
var inputFrameStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(theme.ColorSurface2).
	Padding(0, 1)
