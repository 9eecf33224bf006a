package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/key"
)

// maxActionKeys is how many actions get an alt+N shortcut
const maxActionKeys = 9

// KeyMap defines key bindings
type KeyMap struct {
	Quit   key.Binding
	Send   key.Binding
	Abort  key.Binding
	Reset  key.Binding
	Action key.Binding
}

// DefaultKeyMap returns default key bindings
func DefaultKeyMap() KeyMap {
	actionKeys := make([]string, 0, maxActionKeys)
	for i := 1; i <= maxActionKeys; i++ {
		actionKeys = append(actionKeys, "alt+"+strconv.Itoa(i))
	}

	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+d"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Abort: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		Action: key.NewBinding(
			key.WithKeys(actionKeys...),
			key.WithHelp("alt+1-9", "suggestion"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Abort, k.Reset, k.Action, k.Quit}
}

// actionIndex returns the zero based action index of an alt+N key
func actionIndex(s string) (int, bool) {
	if len(s) != len("alt+1") || s[:4] != "alt+" {
		return 0, false
	}
	n, err := strconv.Atoi(s[4:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
