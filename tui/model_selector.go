package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nachoal/kitgpt-go/provider"
)

// ModelItem represents a model in the list
type ModelItem struct {
	ProviderKey  string
	ProviderName string
	ModelID      string
	HasKey       bool
}

func (i ModelItem) Title() string { return fmt.Sprintf("[%s] %s", i.ProviderName, i.ModelID) }

func (i ModelItem) Description() string {
	if i.HasKey {
		return i.ProviderKey
	}
	return i.ProviderKey + " (not authenticated)"
}

func (i ModelItem) FilterValue() string { return i.ProviderName + " " + i.ModelID }

// ModelSelector lists the known models of every provider. After the program
// exits, Selected reports the choice.
type ModelSelector struct {
	list     list.Model
	selected *ModelItem
	width    int
	height   int
}

// NewModelSelector creates a model selector for the registry's providers
func NewModelSelector(reg *provider.Registry) *ModelSelector {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))

	l := list.New(ModelItems(reg), delegate, 80, 20)
	l.Title = "Select a Model"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		Padding(0, 1)

	return &ModelSelector{
		list:   l,
		width:  80,
		height: 20,
	}
}

// ModelItems flattens the registry into list items, in registry order
func ModelItems(reg *provider.Registry) []list.Item {
	var items []list.Item
	for _, d := range reg.List() {
		hasKey := reg.Authenticated(d.Key)
		for _, id := range d.KnownModels {
			items = append(items, ModelItem{
				ProviderKey:  d.Key,
				ProviderName: d.Name,
				ModelID:      id,
				HasKey:       hasKey,
			})
		}
	}
	return items
}

// Selected returns the chosen model, if any
func (m *ModelSelector) Selected() (ModelItem, bool) {
	if m.selected == nil {
		return ModelItem{}, false
	}
	return *m.selected, true
}

func (m *ModelSelector) Init() tea.Cmd {
	return nil
}

func (m *ModelSelector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if i, ok := m.list.SelectedItem().(ModelItem); ok {
				m.selected = &i
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ModelSelector) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(lipgloss.Color("9")).
			Render("No models available")
	}
	return m.list.View()
}
