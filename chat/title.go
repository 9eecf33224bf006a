package chat

import (
	"strings"

	"github.com/nachoal/kitgpt-go/llm"
)

// TitlePlaceholder is shown while a title is being generated
const TitlePlaceholder = "Generating title..."

const maxTitleLength = 50

type conversationTitle struct {
	ConversationTitle string `json:"conversationTitle" schema:"required" description:"A short, descriptive name for the conversation"`
}

// maybeTitleLocked starts title generation the first time the conversation
// grows past the threshold while untitled.
func (s *Session) maybeTitleLocked() {
	if s.closed || s.titleThreshold <= 0 || s.title != "" || s.titlePending {
		return
	}
	if s.store.contentLength() <= s.titleThreshold {
		return
	}

	if s.model == nil || s.model.Client == nil {
		// Retried when a model is set or the conversation changes.
		s.logger.Debug().Err(ErrNoModelSelected).Msg("unable to generate title for conversation")
		return
	}

	s.titlePending = true
	s.setTitleLocked(TitlePlaceholder)

	epoch := s.epoch
	client := s.model.Client
	messages := append(s.store.snapshot(), llm.Message{
		Role:    llm.RoleSystem,
		Content: "Please provide a short, descriptive name for this entire conversation",
	})
	req := &llm.ChatRequest{Model: s.model.ModelID, Messages: messages}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var out conversationTitle
		err := llm.GenerateObject(s.ctx, client, req, &out)

		s.lock()
		defer s.unlock()

		if epoch != s.epoch {
			return
		}
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("unable to generate title for conversation")
			}
			return
		}
		title := strings.TrimSpace(out.ConversationTitle)
		if title == "" {
			s.logger.Warn().Msg("model returned an empty conversation title")
			return
		}
		s.setTitleLocked(truncate(title, maxTitleLength))
		s.persistLocked()
	}()
}

func (s *Session) setTitleLocked(title string) {
	s.title = title
	s.emit(Event{Type: EventTitle, Title: title})
}

// truncate shortens s to at most n characters, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
