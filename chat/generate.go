package chat

import (
	"context"
	"strings"

	"github.com/nachoal/kitgpt-go/llm"
)

// GenerateText sends a one-shot prompt to the selected model with the
// configured system prompt. The conversation is not changed.
func (s *Session) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	model, system := s.model, s.systemPrompt
	s.mu.Unlock()

	if model == nil || model.Client == nil {
		return "", ErrNoModelSelected
	}
	resp, err := model.Client.Chat(ctx, &llm.ChatRequest{
		Model:    model.ModelID,
		System:   system,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
