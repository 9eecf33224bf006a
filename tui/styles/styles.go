package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the styles used by the chat host
type Styles struct {
	Theme Theme

	// Layout
	Header    lipgloss.Style
	Footer    lipgloss.Style
	InputArea lipgloss.Style

	// Messages
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	SystemMessage    lipgloss.Style
	ErrorMessage     lipgloss.Style

	// Suggestions
	Action         lipgloss.Style
	ActionKey      lipgloss.Style
	SelectedAction lipgloss.Style

	// UI Elements
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Spinner  lipgloss.Style
	Selected lipgloss.Style
	Normal   lipgloss.Style
}

// NewStyles creates a new styles instance with the given theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{
		Theme: theme,
	}

	// Layout styles
	s.Header = lipgloss.NewStyle().
		Foreground(theme.Text).
		Padding(0, 1).
		Bold(true)

	s.Footer = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Padding(0, 1)

	s.InputArea = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Primary)

	// Message styles
	s.UserMessage = lipgloss.NewStyle().
		Foreground(theme.Primary).
		PaddingLeft(1).
		PaddingRight(1)

	s.AssistantMessage = lipgloss.NewStyle().
		Foreground(theme.Text).
		PaddingLeft(1).
		PaddingRight(1)

	s.SystemMessage = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true).
		PaddingLeft(1).
		PaddingRight(1)

	s.ErrorMessage = lipgloss.NewStyle().
		Foreground(theme.Error).
		Bold(true).
		PaddingLeft(1).
		PaddingRight(1)

	s.Action = lipgloss.NewStyle().
		Foreground(theme.Secondary).
		PaddingLeft(1)

	s.ActionKey = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.SelectedAction = lipgloss.NewStyle().
		Foreground(theme.Success).
		Bold(true).
		PaddingLeft(1)

	// UI Element styles
	s.Title = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true).
		MarginBottom(1)

	s.Subtitle = lipgloss.NewStyle().
		Foreground(theme.Secondary)

	s.Help = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.Spinner = lipgloss.NewStyle().
		Foreground(theme.Primary)

	s.Selected = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.Normal = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	return s
}
