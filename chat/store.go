package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/nachoal/kitgpt-go/llm"
)

// store is the ordered message list of the active conversation. It is not
// safe for concurrent use; the session serializes access. Every mutation
// returns the event describing it.
type store struct {
	messages []llm.Message
}

func (st *store) len() int {
	return len(st.messages)
}

// tail returns the role of the last message, or "" when empty
func (st *store) tail() llm.Role {
	if len(st.messages) == 0 {
		return ""
	}
	return st.messages[len(st.messages)-1].Role
}

func (st *store) push(msg llm.Message) Event {
	st.messages = append(st.messages, msg)
	i := len(st.messages) - 1
	return Event{Type: EventMessage, Index: i, Message: st.messages[i].Clone()}
}

// appendText grows the content of the message at i
func (st *store) appendText(i int, text string) Event {
	st.messages[i].Content += text
	return Event{Type: EventMessage, Index: i, Message: st.messages[i].Clone()}
}

// appendAssistant appends to the trailing assistant message, or starts one
func (st *store) appendAssistant(text, separator string) Event {
	if st.tail() == llm.RoleAssistant {
		return st.appendText(len(st.messages)-1, separator+text)
	}
	return st.push(llm.Message{Role: llm.RoleAssistant, Content: text})
}

// replace swaps in a new list in one step
func (st *store) replace(messages []llm.Message) Event {
	st.messages = messages
	return Event{Type: EventReset, Messages: llm.CloneMessages(messages)}
}

func (st *store) snapshot() []llm.Message {
	return llm.CloneMessages(st.messages)
}

// last returns copies of the final n messages
func (st *store) last(n int) []llm.Message {
	if n <= 0 || n > len(st.messages) {
		n = len(st.messages)
	}
	return llm.CloneMessages(st.messages[len(st.messages)-n:])
}

// contentLength is the length in characters of all contents joined by newlines
func (st *store) contentLength() int {
	if len(st.messages) == 0 {
		return 0
	}
	total := len(st.messages) - 1
	for _, m := range st.messages {
		total += utf8.RuneCountInString(m.Text())
	}
	return total
}

// lastAssistantText returns the content of the most recent assistant message
func (st *store) lastAssistantText() string {
	for i := len(st.messages) - 1; i >= 0; i-- {
		if st.messages[i].Role == llm.RoleAssistant {
			return strings.TrimSpace(st.messages[i].Content)
		}
	}
	return ""
}
