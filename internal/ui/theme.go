package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/courier/internal/config"
)

// Catppuccin Mocha palette, overridable from the config file.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#5a6278")
)

// Pre-built styles, rebuilt by rebuildStyles after color changes.
var (
	styleIconDone       lipgloss.Style
	styleIconMoved      lipgloss.Style
	styleIconDeleted    lipgloss.Style
	styleError          lipgloss.Style
	styleFileDir        lipgloss.Style
	styleSparkline      lipgloss.Style
	styleProgressFilled lipgloss.Style
	styleProgressEmpty  lipgloss.Style
	styleStatus         lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleIconDone = lipgloss.NewStyle().Foreground(ColorGreen)
	styleIconMoved = lipgloss.NewStyle().Foreground(ColorBlue)
	styleIconDeleted = lipgloss.NewStyle().Foreground(ColorYellow)
	styleError = lipgloss.NewStyle().Foreground(ColorRed)
	styleFileDir = lipgloss.NewStyle().Foreground(ColorMuted)
	styleSparkline = lipgloss.NewStyle().Foreground(ColorBlue)
	styleProgressFilled = lipgloss.NewStyle().Foreground(ColorGreen)
	styleProgressEmpty = lipgloss.NewStyle().Foreground(ColorMuted)
	styleStatus = lipgloss.NewStyle().Foreground(ColorYellow).Italic(true)
}

// ApplyTheme overrides colors from a config ThemeConfig and rebuilds all styles.
func ApplyTheme(tc config.ThemeConfig) {
	if tc.Green != nil {
		ColorGreen = lipgloss.Color(*tc.Green)
	}
	if tc.Blue != nil {
		ColorBlue = lipgloss.Color(*tc.Blue)
	}
	if tc.Yellow != nil {
		ColorYellow = lipgloss.Color(*tc.Yellow)
	}
	if tc.Red != nil {
		ColorRed = lipgloss.Color(*tc.Red)
	}
	if tc.Muted != nil {
		ColorMuted = lipgloss.Color(*tc.Muted)
	}
	rebuildStyles()
}
