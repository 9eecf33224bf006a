package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nachoal/kitgpt-go/chat"
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/tui/styles"
)

const (
	inputHeight = 3
	// header, status line and help line
	chromeHeight = 3
)

// Model is the chat screen. It mirrors the session from its events and
// forwards input to it.
type Model struct {
	session *chat.Session
	bridge  *Bridge
	styles  *styles.Styles
	keys    KeyMap
	help    help.Model

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	messages []llm.Message
	status   chat.Status
	footer   string
	title    string
	actions  []chat.Action
	errText  string
	notice   string

	width  int
	height int
}

// Option configures the chat screen
type Option func(*Model)

// WithTheme selects a color theme by name
func WithTheme(name string) Option {
	return func(m *Model) {
		m.styles = styles.NewStyles(styles.GetTheme(name))
	}
}

// WithNotice shows a message above the conversation until the first
// message is sent.
func WithNotice(text string) Option {
	return func(m *Model) {
		m.notice = text
	}
}

// New creates the chat screen for a session whose observer is bridge.Observe
func New(session *chat.Session, bridge *Bridge, opts ...Option) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Focus()
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		session:  session,
		bridge:   bridge,
		styles:   styles.NewStyles(styles.DefaultTheme),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(80, 20),
		textarea: ta,
		spinner:  sp,
		width:    80,
		height:   24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.spinner.Style = m.styles.Spinner

	m.refresh()
	m.textarea.SetValue(session.Draft())
	m.layout()
	return m
}

// Init starts the cursor, the spinner and the event loop
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.bridge.wait(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Abort):
			if m.session.StreamActive() {
				m.session.Abort()
			} else if m.selecting() {
				m.run(chat.Action{Kind: chat.ActionCancel})
			}
			return m, nil

		case key.Matches(msg, m.keys.Reset):
			m.errText = ""
			m.session.Reset()
			return m, nil

		case key.Matches(msg, m.keys.Action):
			if i, ok := actionIndex(msg.String()); ok && i < len(m.actions) {
				m.run(m.actions[i])
			}
			return m, nil

		case key.Matches(msg, m.keys.Send):
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.errText = ""
			m.notice = ""
			if err := m.session.Submit(input); err != nil {
				m.errText = err.Error()
				m.render()
			}
			return m, nil
		}

	case eventMsg:
		m.apply(msg.Event)
		return m, m.bridge.wait()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the screen
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	for i, a := range m.actions {
		b.WriteString(m.renderAction(i, a))
		b.WriteString("\n")
	}
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.styles.InputArea.Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) apply(ev chat.Event) {
	switch ev.Type {
	case chat.EventMessage:
		switch {
		case ev.Index < len(m.messages):
			m.messages[ev.Index] = ev.Message
		case ev.Index == len(m.messages):
			m.messages = append(m.messages, ev.Message)
		default:
			m.messages = m.session.Messages()
		}
		m.notice = ""
	case chat.EventReset:
		m.messages = append([]llm.Message(nil), ev.Messages...)
		m.errText = ""
	case chat.EventStatus:
		m.status = ev.Status
		m.footer = ev.Footer
	case chat.EventActions:
		m.actions = ev.Actions
		m.layout()
	case chat.EventTitle:
		m.title = ev.Title
	case chat.EventDraft:
		m.textarea.SetValue(ev.Draft)
	case chat.EventError:
		if ev.Err != nil {
			m.errText = ev.Err.Error()
		}
	case chat.EventRefresh:
		m.refresh()
	}
	m.render()
}

// refresh reloads the mirrored state from the session
func (m *Model) refresh() {
	m.messages = m.session.Messages()
	m.status = m.session.Status()
	m.footer = m.session.Footer()
	m.title = m.session.Title()
	m.actions = m.session.Actions()
}

func (m *Model) run(a chat.Action) {
	if err := m.session.RunAction(a); err != nil {
		m.errText = err.Error()
		m.render()
	}
}

// selecting reports whether a suggestion is waiting for send or template
func (m Model) selecting() bool {
	for _, a := range m.actions {
		if a.Kind == chat.ActionCancel {
			return true
		}
	}
	return false
}

func (m *Model) layout() {
	m.textarea.SetWidth(max(m.width-2, 10))

	// textarea plus its border
	height := m.height - chromeHeight - len(m.actions) - (inputHeight + 2)
	m.viewport.Width = m.width
	m.viewport.Height = max(height, 1)
	m.render()
}

func (m *Model) render() {
	width := max(m.viewport.Width-2, 10)
	var b strings.Builder

	if m.notice != "" {
		b.WriteString(m.styles.SystemMessage.Width(width).Render(m.notice))
		b.WriteString("\n\n")
	}
	for _, msg := range m.messages {
		text := msg.Text()
		switch msg.Role {
		case llm.RoleUser:
			b.WriteString(m.styles.UserMessage.Width(width).Render("> " + text))
		case llm.RoleAssistant:
			b.WriteString(m.styles.AssistantMessage.Width(width).Render(text))
		default:
			b.WriteString(m.styles.SystemMessage.Width(width).Render(text))
		}
		b.WriteString("\n\n")
	}
	if m.errText != "" {
		b.WriteString(m.styles.ErrorMessage.Width(width).Render("❌ " + m.errText))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "New conversation"
	}
	model := "no model selected"
	if h := m.session.Model(); h != nil {
		model = h.String()
	}
	header := fmt.Sprintf("%s  %s", m.styles.Title.UnsetMarginBottom().Render(title), m.styles.Subtitle.Render(model))
	return m.styles.Header.Render(header)
}

func (m Model) renderAction(i int, a chat.Action) string {
	style := m.styles.Action
	if a.Kind != chat.ActionSelect {
		style = m.styles.SelectedAction
	}
	line := a.Name
	if i < maxActionKeys {
		line = m.styles.ActionKey.Render(fmt.Sprintf("alt+%d ", i+1)) + line
	}
	return style.Render(line)
}

func (m Model) renderStatus() string {
	if m.status != chat.StatusReady && m.status != "" {
		return m.styles.Footer.Render(m.spinner.View() + " " + m.footer)
	}
	return m.styles.Footer.Render(m.footer)
}
