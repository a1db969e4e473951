package ui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette.
const (
	ColorAccent    = "37"  // teal
	ColorAccentDim = "30"  // dimmed teal for finished stages
	ColorText      = "255" // headings
	ColorMuted     = "245" // labels
	ColorFaint     = "238" // borders, pending stages
	ColorWarn      = "214"
	ColorError     = "196"
)

// Styles holds the lipgloss styles used by the TUI and status output.
type Styles struct {
	Title   lipgloss.Style
	Active  lipgloss.Style
	Done    lipgloss.Style
	Pending lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Good    lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
}

// DefaultStyles returns the colored theme.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorText)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentDim)),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorFaint)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorText)),
		Good:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarn)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorFaint)).
			Padding(0, 1),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Title: s, Active: s, Done: s, Pending: s, Label: s,
		Value: s, Good: s, Warn: s, Error: s, Panel: s,
	}
}

// GetStyles returns the theme for a color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return DefaultStyles()
}
