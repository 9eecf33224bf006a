package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nachoal/kitgpt-go/chat"
)

// Bridge forwards session events into the bubbletea program. Pass Observe
// to chat.WithObserver.
type Bridge struct {
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
}

// eventMsg carries one session event through the update loop
type eventMsg struct {
	chat.Event
}

// NewBridge creates a bridge
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan chat.Event),
		done:   make(chan struct{}),
	}
}

// Observe hands an event to the program. It blocks until the program reads
// it or the bridge is stopped.
func (b *Bridge) Observe(ev chat.Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// Stop releases a blocked Observe. Events sent afterwards are dropped.
func (b *Bridge) Stop() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-b.events:
			return eventMsg{ev}
		case <-b.done:
			return nil
		}
	}
}
