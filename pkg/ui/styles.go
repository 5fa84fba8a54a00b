// Package ui holds terminal styles and the live review progress view.
package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the CLI output.
var (
	ColorRed     = lipgloss.Color("#FF5F5F")
	ColorGreen   = lipgloss.Color("#5FD75F")
	ColorYellow  = lipgloss.Color("#FFD75F")
	ColorCyan    = lipgloss.Color("#5FD7FF")
	ColorGray    = lipgloss.Color("#808080")
	ColorDimGray = lipgloss.Color("#4E4E4E")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#D75FD7")
)

// Base styles reused by commands and the progress view.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	RelevantStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	NotRelevantStyle = lipgloss.NewStyle().
				Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SourceLabelStyle = lipgloss.NewStyle().
				Foreground(ColorCyan)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	BarFilledStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	BarEmptyStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)

// StateStyle returns the style used to print a run state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "completed":
		return RelevantStyle
	case "cancelled":
		return WarningStyle
	case "failed":
		return ErrorStyle
	default:
		return StatusStyle
	}
}
