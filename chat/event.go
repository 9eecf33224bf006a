package chat

import (
	"sync"

	"github.com/nachoal/kitgpt-go/llm"
)

// Status is the engine's activity shown to the user
type Status string

const (
	StatusReady              Status = "Ready"
	StatusResponding         Status = "Responding..."
	StatusGettingSuggestions Status = "Getting suggestions..."
	StatusCallingTool        Status = "Calling custom tool..."
)

// EventType identifies a session event
type EventType string

const (
	// EventMessage upserts the message at Index
	EventMessage EventType = "message"
	// EventReset replaces the whole message list with Messages
	EventReset       EventType = "reset"
	EventStatus      EventType = "status"
	EventSuggestions EventType = "suggestions"
	EventActions     EventType = "actions"
	EventTitle       EventType = "title"
	EventDraft       EventType = "draft"
	EventError       EventType = "error"
	// EventRefresh asks the host to redraw from the session's getters
	EventRefresh EventType = "refresh"
)

// Event is a state change reported to the host
type Event struct {
	Type        EventType
	Index       int
	Message     llm.Message
	Messages    []llm.Message
	Status      Status
	Footer      string
	Suggestions *Suggestions
	Actions     []Action
	Title       string
	Draft       string
	Err         error
}

// Observer receives session events in order. It runs on a dedicated
// goroutine and may call back into the session.
type Observer func(Event)

// dispatcher delivers queued events to the observer in order. The queue
// is unbounded so that sending never blocks the session lock.
type dispatcher struct {
	observer Observer

	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(observer Observer) *dispatcher {
	d := &dispatcher{
		observer: observer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, ev := range batch {
			d.observer(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) send(events []Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close delivers what is queued and stops
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
