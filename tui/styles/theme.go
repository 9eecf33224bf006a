package styles

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents a color theme
type Theme struct {
	Name      string
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Text      lipgloss.AdaptiveColor
	TextDim   lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
}

var DefaultTheme = Theme{
	Name:      "default",
	Primary:   lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7B68EE"},
	Secondary: lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#9370DB"},
	Text:      lipgloss.AdaptiveColor{Light: "#1E1E1E", Dark: "#E0E0E0"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"},
	Success:   lipgloss.AdaptiveColor{Light: "#4CAF50", Dark: "#66BB6A"},
	Error:     lipgloss.AdaptiveColor{Light: "#F44336", Dark: "#EF5350"},
}

var DraculaTheme = Theme{
	Name:      "dracula",
	Primary:   lipgloss.AdaptiveColor{Light: "#BD93F9", Dark: "#BD93F9"},
	Secondary: lipgloss.AdaptiveColor{Light: "#FF79C6", Dark: "#FF79C6"},
	Text:      lipgloss.AdaptiveColor{Light: "#282A36", Dark: "#F8F8F2"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"},
	Success:   lipgloss.AdaptiveColor{Light: "#50FA7B", Dark: "#50FA7B"},
	Error:     lipgloss.AdaptiveColor{Light: "#FF5555", Dark: "#FF5555"},
}

var NordTheme = Theme{
	Name:      "nord",
	Primary:   lipgloss.AdaptiveColor{Light: "#5E81AC", Dark: "#81A1C1"},
	Secondary: lipgloss.AdaptiveColor{Light: "#88C0D0", Dark: "#88C0D0"},
	Text:      lipgloss.AdaptiveColor{Light: "#2E3440", Dark: "#D8DEE9"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Success:   lipgloss.AdaptiveColor{Light: "#A3BE8C", Dark: "#A3BE8C"},
	Error:     lipgloss.AdaptiveColor{Light: "#BF616A", Dark: "#BF616A"},
}

var themes = map[string]Theme{
	DefaultTheme.Name: DefaultTheme,
	DraculaTheme.Name: DraculaTheme,
	NordTheme.Name:    NordTheme,
}

// GetTheme returns a theme by name, falling back to the default theme
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return DefaultTheme
}

// ThemeNames lists the available themes
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
