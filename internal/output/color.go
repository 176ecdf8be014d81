// Package output provides styled terminal rendering helpers for clinicpulse.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color constants for consistent styling across the CLI.
var (
	// ColorPrimary is used for headers and emphasis.
	ColorPrimary = lipgloss.Color("#64b5f6")

	// ColorSuccess is used for healthy scores and resolved items.
	ColorSuccess = lipgloss.Color("#66bb6a")

	// ColorError is used for critical findings.
	ColorError = lipgloss.Color("#ef5350")

	// ColorWarning is used for medium/high findings.
	ColorWarning = lipgloss.Color("#fff59d")

	// ColorMuted is used for secondary text and borders.
	ColorMuted = lipgloss.Color("#888888")
)

// Styles provides reusable lipgloss styles.
var (
	StyleHeader = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().Foreground(ColorError)

	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleBold = lipgloss.NewStyle().Bold(true)
)

// noColor tracks whether color output is disabled.
var noColor bool

// SetNoColor disables or enables color output globally.
// When disabled, all package-level styles are reassigned to unstyled renderers.
func SetNoColor(disabled bool) {
	noColor = disabled
	if disabled {
		plain := lipgloss.NewStyle()
		StyleHeader = plain
		StyleSuccess = plain
		StyleError = plain
		StyleWarning = plain
		StyleMuted = plain
		StyleBold = plain
	}
}

// IsNoColor returns whether color output is currently disabled.
func IsNoColor() bool {
	return noColor
}

// AutoDetect disables color when stdout is not a terminal.
func AutoDetect() {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		SetNoColor(true)
	}
}

// SeverityStyle returns the style for a severity level.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "critical":
		return StyleError
	case "high", "medium":
		return StyleWarning
	default:
		return StyleMuted
	}
}
