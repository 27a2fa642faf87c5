package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Warn    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Value:  lipgloss.NewStyle(),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
	}
}

// Banner renders a one-line heading such as "── Turn 3 ──".
func (s Styles) Banner(text string) string {
	rule := s.Help.Render("──")
	return rule + " " + s.Title.Render(text) + " " + rule
}

// Row is one label/value line of a Box.
type Row struct {
	Label string
	Value string
}

// Box renders rows as an aligned, bordered block under a title.
func (s Styles) Box(title string, rows []Row) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}

	lines := []string{s.Title.Render(title), ""}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(r.Label))
		lines = append(lines, s.Label.Render(r.Label)+pad+"  "+s.Value.Render(r.Value))
	}
	return s.Border.Render(strings.Join(lines, "\n"))
}
