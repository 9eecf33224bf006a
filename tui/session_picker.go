package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nachoal/kitgpt-go/history"
	"github.com/nachoal/kitgpt-go/tui/styles"
)

// ConversationPicker selects a stored conversation to resume
type ConversationPicker struct {
	conversations []history.Summary
	styles        *styles.Styles
	selected      int
	width         int
	height        int
	SelectedID    int64 // zero until a conversation is chosen
}

// NewConversationPicker creates a picker over summaries, newest first
func NewConversationPicker(conversations []history.Summary) *ConversationPicker {
	return &ConversationPicker{
		conversations: conversations,
		styles:        styles.NewStyles(styles.DefaultTheme),
		width:         80,
		height:        24,
	}
}

func (p *ConversationPicker) Init() tea.Cmd {
	return nil
}

func (p *ConversationPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if p.selected > 0 {
				p.selected--
			}
		case "down", "j":
			if p.selected < len(p.conversations)-1 {
				p.selected++
			}
		case "enter":
			if len(p.conversations) > 0 {
				p.SelectedID = p.conversations[p.selected].ID
				return p, tea.Quit
			}
		case "esc", "q", "ctrl+c":
			return p, tea.Quit
		}
	}
	return p, nil
}

func (p *ConversationPicker) View() string {
	if len(p.conversations) == 0 {
		return "\nNo previous conversations found.\n\nPress [Esc] to start a new conversation."
	}

	var b strings.Builder
	b.WriteString(p.styles.Title.Render("Select a conversation to resume:"))
	b.WriteString("\n")

	start, end := visibleRange(p.selected, len(p.conversations), p.height-6)
	for i := start; i < end; i++ {
		c := p.conversations[i]
		cursor := "  "
		style := p.styles.Normal
		if i == p.selected {
			cursor = "▸ "
			style = p.styles.Selected
		}
		line := fmt.Sprintf("%s%s - %s", cursor, c.Started.Local().Format("Jan 02 15:04"), truncateToWidth(c.Title, 50))
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	if start > 0 || end < len(p.conversations) {
		b.WriteString(p.styles.Normal.Render(fmt.Sprintf("\n[%d-%d of %d conversations]", start+1, end, len(p.conversations))))
	}
	b.WriteString(p.styles.Help.Render("\n[↑/↓/j/k] Navigate  [Enter] Select  [Esc/q] Cancel"))
	return b.String()
}

// visibleRange scrolls a window of size rows so that selected stays centered
func visibleRange(selected, total, rows int) (int, int) {
	if rows < 1 {
		rows = 1
	}
	if total <= rows {
		return 0, total
	}
	start := 0
	if selected > rows/2 {
		start = min(selected-rows/2, total-rows)
	}
	return start, start + rows
}

func truncateToWidth(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
