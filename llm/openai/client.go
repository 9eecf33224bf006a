package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nachoal/kitgpt-go/llm"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
	defaultModel   = "gpt-4o"
)

// Client implements llm.Client for OpenAI and every provider that speaks
// the OpenAI chat completions protocol (Mistral, Groq, DeepSeek, Ollama).
type Client struct {
	options    llm.ClientOptions
	httpClient *http.Client
}

// NewClient creates a new OpenAI-compatible client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.ClientOptions{
		BaseURL:      defaultBaseURL,
		Timeout:      defaultTimeout,
		MaxRetries:   3,
		DefaultModel: defaultModel,
		Headers:      make(map[string]string),
		ProviderName: "OpenAI",
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.APIKey == "" && options.BaseURL == defaultBaseURL {
		return nil, fmt.Errorf("%s API key not provided", options.ProviderName)
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	return &Client{
		options: options,
		// Streams are bounded by the caller's context, not a client timeout.
		httpClient: &http.Client{},
	}, nil
}

// Chat sends a one-shot chat request
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := json.Marshal(c.buildRequest(request, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var response *llm.ChatResponse
	err = c.doWithRetries(ctx, func() error {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.apiError(resp.StatusCode, respBody)
		}

		var parsed completion
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return &llm.APIError{Provider: c.options.ProviderName, Message: "response contained no choices"}
		}

		choice := parsed.Choices[0]
		msg := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: choice.Message.ToolCalls,
		}
		for i := range msg.ToolCalls {
			msg.ToolCalls[i].Index = nil
			msg.ToolCalls[i].Function.Arguments = llm.CanonicalToolArguments(msg.ToolCalls[i].Function.Arguments)
		}
		response = &llm.ChatResponse{
			ID:           parsed.ID,
			Model:        parsed.Model,
			Message:      msg,
			FinishReason: choice.FinishReason,
			Usage:        parsed.Usage,
		}
		return nil
	})

	return response, err
}

// ChatStream sends a streaming chat request. Text deltas are forwarded as they
// arrive; tool calls are accumulated and emitted once the model finishes.
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	body, err := json.Marshal(c.buildRequest(request, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, c.apiError(resp.StatusCode, respBody)
	}

	events := make(chan llm.StreamEvent)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		send := func(ev llm.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			acc          llm.ToolCallAccumulator
			finishReason string
			usage        *llm.Usage
		)
		finish := func() {
			for _, call := range acc.Calls() {
				call := call
				if !send(llm.StreamEvent{Type: llm.EventToolCall, ToolCall: &call}) {
					return
				}
			}
			acc.Reset()
			send(llm.StreamEvent{Type: llm.EventFinish, FinishReason: finishReason, Usage: usage})
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				finish()
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				send(llm.StreamEvent{Type: llm.EventError, Err: &llm.APIError{
					Provider: c.options.ProviderName,
					Message:  chunk.Error.Message,
				}})
				return
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !send(llm.StreamEvent{Type: llm.EventTextDelta, Text: choice.Delta.Content}) {
						return
					}
				}
				for _, delta := range choice.Delta.ToolCalls {
					acc.Add(delta)
				}
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			send(llm.StreamEvent{Type: llm.EventError, Err: fmt.Errorf("error reading stream: %w", err)})
			return
		}
		if ctx.Err() != nil {
			return
		}
		// Some compatible servers close the body without a [DONE] marker.
		finish()
	}()

	return events, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}
	req.Header.Set("User-Agent", "kitgpt-go/1.0")

	if c.options.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.options.Organization)
	}

	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) apiError(status int, body []byte) error {
	var errResp struct {
		Error llm.ErrorResponse `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &llm.APIError{Provider: c.options.ProviderName, StatusCode: status, Message: msg}
}

// doWithRetries executes a function with retries
func (c *Client) doWithRetries(ctx context.Context, fn func() error) error {
	var lastErr error

	for i := 0; i <= c.options.MaxRetries; i++ {
		if i > 0 {
			delay := time.Duration(i) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			if llm.IsRetryable(err) {
				continue
			}
			return err
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// buildRequest creates the wire request from the generic ChatRequest.
// o-series reasoning models take max_completion_tokens and reject sampling parameters.
func (c *Client) buildRequest(request *llm.ChatRequest, stream bool) map[string]interface{} {
	model := request.Model
	if model == "" {
		model = c.options.DefaultModel
	}

	messages := make([]wireMessage, 0, len(request.Messages)+1)
	if request.System != "" {
		messages = append(messages, wireMessage{Role: string(llm.RoleSystem), Content: request.System})
	}
	for _, m := range request.Messages {
		messages = append(messages, toWireMessage(m))
	}

	reqMap := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}

	modelLower := strings.ToLower(model)
	isReasoning := strings.HasPrefix(modelLower, "o1") || strings.HasPrefix(modelLower, "o3")

	if request.Temperature > 0 && !isReasoning {
		reqMap["temperature"] = request.Temperature
	}
	if request.TopP > 0 && !isReasoning {
		reqMap["top_p"] = request.TopP
	}
	if stream {
		reqMap["stream"] = true
	}
	if len(request.Tools) > 0 {
		reqMap["tools"] = request.Tools
		if request.ToolChoice != nil {
			reqMap["tool_choice"] = request.ToolChoice
		}
	}
	if request.ResponseFormat != nil {
		reqMap["response_format"] = request.ResponseFormat
	}
	if len(request.Stop) > 0 {
		reqMap["stop"] = request.Stop
	}
	if request.MaxTokens > 0 {
		if isReasoning {
			reqMap["max_completion_tokens"] = request.MaxTokens
		} else {
			reqMap["max_tokens"] = request.MaxTokens
		}
	}

	return reqMap
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    interface{}    `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func toWireMessage(m llm.Message) wireMessage {
	wm := wireMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		tc.Index = nil
		if tc.Type == "" {
			tc.Type = "function"
		}
		wm.ToolCalls = append(wm.ToolCalls, tc)
	}

	if len(m.Parts) == 0 {
		return wm
	}
	parts := make([]contentPart, 0, len(m.Parts)+1)
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, p := range m.Parts {
		switch p.Type {
		case llm.PartText:
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		case llm.PartImage:
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.ImageURL}})
		}
	}
	wm.Content = parts
	return wm
}

type completion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage         `json:"usage"`
	Error *llm.ErrorResponse `json:"error"`
}
