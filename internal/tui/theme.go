package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the palette as ANSI-256 codes.
type Theme struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Own        string
	Other      string
	Unread     string
	Online     string
	Failed     string
	Border     string
	Selected   string
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default": DefaultTheme,
	"dark":    DefaultTheme,
	"light":   LightTheme,
}

// DefaultTheme is the dark palette.
var DefaultTheme = Theme{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Own:        "81",
	Other:      "147",
	Unread:     "214",
	Online:     "41",
	Failed:     "203",
	Border:     "240",
	Selected:   "75",
}

// LightTheme suits light terminal backgrounds.
var LightTheme = Theme{
	Name:       "light",
	Foreground: "235",
	Muted:      "243",
	Accent:     "25",
	Own:        "24",
	Other:      "91",
	Unread:     "166",
	Online:     "28",
	Failed:     "160",
	Border:     "250",
	Selected:   "25",
}

// ThemeByName falls back to DefaultTheme for unknown names.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return DefaultTheme
}

type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	own      lipgloss.Style
	other    lipgloss.Style
	unread   lipgloss.Style
	online   lipgloss.Style
	failed   lipgloss.Style
	selected lipgloss.Style
	pane     lipgloss.Style
	active   lipgloss.Style
}

func newStyles(t Theme) styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(t.Border)).
		Padding(0, 1)
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Accent)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		own:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Own)),
		other:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Other)),
		unread:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Unread)),
		online:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Online)),
		failed:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Failed)),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Selected)),
		pane:     pane,
		active:   pane.BorderForeground(lipgloss.Color(t.Accent)),
	}
}
