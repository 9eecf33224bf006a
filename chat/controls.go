package chat

import (
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/tools"
)

// controls writes tool output into the conversation. When bound to a
// stream, writes are dropped once that stream is no longer active.
type controls struct {
	session *Session
	stream  *streamHandle
}

var _ tools.ChatControls = (*controls)(nil)

// Controls returns chat controls that write into the active conversation
// regardless of any stream.
func (s *Session) Controls() tools.ChatControls {
	return &controls{session: s}
}

func (c *controls) Send(text string) {
	c.write(func(st *store) Event {
		return st.push(llm.Message{Role: llm.RoleAssistant, Content: text})
	})
}

func (c *controls) Append(text string) {
	c.write(func(st *store) Event {
		return st.appendAssistant(text, "")
	})
}

func (c *controls) AppendLine(text string) {
	c.write(func(st *store) Event {
		return st.appendAssistant(text, "\n\n")
	})
}

func (c *controls) write(fn func(*store) Event) {
	s := c.session
	s.lock()
	defer s.unlock()

	if s.closed || (c.stream != nil && s.stream != c.stream) {
		return
	}
	s.emit(fn(&s.store))
	s.changedLocked()
}
