package chat

import (
	"fmt"

	"github.com/nachoal/kitgpt-go/llm"
)

// ActionKind identifies what running an action does
type ActionKind string

const (
	// ActionSelect picks a suggestion and offers what to do with it
	ActionSelect   ActionKind = "select"
	ActionSend     ActionKind = "send"
	ActionTemplate ActionKind = "template"
	ActionCancel   ActionKind = "cancel"
)

const moreExamplesEmoji = "➕"

// Action is an entry of the host's action menu
type Action struct {
	Name string
	Kind ActionKind
	Text string
}

// Actions returns the action menu for the current state: the suggestions,
// or the choices for a selected suggestion.
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionsLocked()
}

func (s *Session) actionsLocked() []Action {
	if s.selectedSuggestion != "" {
		text := s.selectedSuggestion
		return []Action{
			{Name: "📤 Send", Kind: ActionSend, Text: text},
			{Name: "📝 Use as template", Kind: ActionTemplate, Text: text},
			{Name: "❌ Cancel", Kind: ActionCancel, Text: text},
		}
	}
	if s.suggestions == nil {
		return nil
	}

	out := make([]Action, 0, len(s.suggestions.Followups)+1)
	out = append(out, Action{
		Name: moreExamplesEmoji + " " + s.suggestions.MoreExamplesQuestion,
		Kind: ActionSelect,
		Text: s.suggestions.MoreExamplesQuestion,
	})
	for _, f := range s.suggestions.Followups {
		out = append(out, Action{Name: f.Emoji + " " + f.Question, Kind: ActionSelect, Text: f.Question})
	}
	return out
}

func (s *Session) emitActionsLocked() {
	s.emit(Event{Type: EventActions, Actions: s.actionsLocked()})
}

// RunAction performs an action returned by Actions
func (s *Session) RunAction(a Action) error {
	s.lock()
	defer s.unlock()

	if s.closed {
		return ErrClosed
	}

	switch a.Kind {
	case ActionSelect:
		s.selectedSuggestion = a.Text
	case ActionSend:
		s.selectedSuggestion = ""
		s.emit(s.store.push(llm.Message{Role: llm.RoleUser, Content: a.Text}))
		s.setDraftLocked("")
		s.startResponseLocked()
		s.changedLocked()
	case ActionTemplate:
		s.selectedSuggestion = ""
		s.setDraftLocked(a.Text)
	case ActionCancel:
		s.selectedSuggestion = ""
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	s.emitActionsLocked()
	return nil
}

// SendSuggestion sends suggestion i as a user message. Index 0 is the
// "more examples" question, followed by the follow-ups in order.
func (s *Session) SendSuggestion(i int) error {
	s.mu.Lock()
	sg := s.suggestions.clone()
	s.mu.Unlock()

	if sg == nil {
		return fmt.Errorf("no suggestions available")
	}
	texts := make([]string, 0, len(sg.Followups)+1)
	texts = append(texts, sg.MoreExamplesQuestion)
	for _, f := range sg.Followups {
		texts = append(texts, f.Question)
	}
	if i < 0 || i >= len(texts) {
		return fmt.Errorf("suggestion %d out of range", i)
	}
	return s.RunAction(Action{Kind: ActionSend, Text: texts[i]})
}
