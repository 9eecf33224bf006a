package chat

import (
	"context"
	"fmt"

	"github.com/nachoal/kitgpt-go/llm"
)

// Followup is a suggested next question
type Followup struct {
	Question string `json:"question" schema:"required" description:"The question, phrased by the user"`
	Emoji    string `json:"emoji" schema:"required" description:"A single emoji matching the question"`
}

// Suggestions are follow-up questions derived from the latest messages
type Suggestions struct {
	MoreExamplesQuestion string     `json:"moreExamplesQuestion" schema:"required" description:"A question asking for more examples"`
	Followups            []Followup `json:"followupQuestions" schema:"required"`
}

// Suggestions returns the current suggestions, nil when there are none
func (s *Session) Suggestions() *Suggestions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestions.clone()
}

// ComputeSuggestions requests suggestions for the current messages,
// replacing a computation in progress.
func (s *Session) ComputeSuggestions() {
	s.lock()
	defer s.unlock()
	s.startSuggestionsLocked()
}

func (s *Session) startSuggestionsLocked() {
	if s.closed || s.suggestionCount <= 0 || s.model == nil || s.model.Client == nil || s.store.len() == 0 {
		return
	}
	s.cancelSuggestionsLocked()

	ctx, cancel := context.WithCancel(s.ctx)
	s.suggestCancel = cancel
	gen := s.suggestGen
	length := s.store.len()

	messages := s.store.last(s.suggestionLookback)
	messages = append(messages, llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("Please list %d possible follow-up questions I could ask about this. "+
			"Also give me a good question to ask if I'm looking for more examples.\n"+
			"Note: The questions should all be from the user's perspective", s.suggestionCount),
	})
	req := &llm.ChatRequest{Model: s.model.ModelID, Messages: messages}
	client := s.model.Client

	s.setStatusLocked(StatusGettingSuggestions)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		var out Suggestions
		err := llm.GenerateObject(ctx, client, req, &out)

		s.lock()
		defer s.unlock()

		if gen != s.suggestGen {
			// Invalidated by a newer state.
			return
		}
		s.suggestCancel = nil
		if s.status == StatusGettingSuggestions {
			s.setStatusLocked(StatusReady)
		}
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("unable to generate suggestions")
			}
			return
		}
		if s.store.len() != length {
			return
		}
		s.suggestions = &out
		s.emit(Event{Type: EventSuggestions, Suggestions: out.clone()})
		s.emitActionsLocked()
	}()
}

// cancelSuggestionsLocked stops the computation in progress and makes any
// result it still produces stale.
func (s *Session) cancelSuggestionsLocked() {
	s.suggestGen++
	if s.suggestCancel != nil {
		s.suggestCancel()
		s.suggestCancel = nil
	}
}

// clearSuggestionsLocked drops suggestions after the message count changed
func (s *Session) clearSuggestionsLocked() {
	s.cancelSuggestionsLocked()
	if s.status == StatusGettingSuggestions {
		s.setStatusLocked(StatusReady)
	}
	if s.suggestions == nil && s.selectedSuggestion == "" {
		return
	}
	s.suggestions = nil
	s.selectedSuggestion = ""
	s.emit(Event{Type: EventSuggestions})
	s.emitActionsLocked()
}

func (sg *Suggestions) clone() *Suggestions {
	if sg == nil {
		return nil
	}
	out := *sg
	out.Followups = append([]Followup(nil), sg.Followups...)
	return &out
}
