package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client defines the interface for LLM providers
type Client interface {
	// Chat sends a one-shot request and returns the complete response
	Chat(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// ChatStream sends a request and returns a stream of typed events.
	// The channel is closed after a finish or error event, or when ctx is done.
	ChatStream(ctx context.Context, request *ChatRequest) (<-chan StreamEvent, error)

	// Close cleans up any resources
	Close() error
}

// APIError is returned when a provider answers with a non-success status
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// Retryable reports whether the request may succeed when repeated
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 529:
		return true
	}
	return false
}

// IsRetryable reports whether err wraps a retryable APIError
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// Collect drains a stream into a single response. Tool calls are kept in order.
func Collect(events <-chan StreamEvent) (*ChatResponse, error) {
	resp := &ChatResponse{Message: Message{Role: RoleAssistant}}
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			resp.Message.Content += ev.Text
		case EventToolCall:
			if ev.ToolCall != nil {
				resp.Message.ToolCalls = append(resp.Message.ToolCalls, *ev.ToolCall)
			}
		case EventError:
			return resp, ev.Err
		case EventFinish:
			resp.FinishReason = ev.FinishReason
			resp.Usage = ev.Usage
		}
	}
	return resp, nil
}
