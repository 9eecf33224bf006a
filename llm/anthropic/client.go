package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultTimeout   = 120 * time.Second
	defaultModel     = "claude-3-haiku-20240307"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

// Client implements the LLM client interface for Anthropic
type Client struct {
	options    llm.ClientOptions
	httpClient *http.Client
}

// Message is a message in Anthropic's format
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Request is a request to the messages API
type Request struct {
	Model         string      `json:"model"`
	Messages      []Message   `json:"messages"`
	MaxTokens     int         `json:"max_tokens"`
	Temperature   float32     `json:"temperature,omitempty"`
	TopP          float32     `json:"top_p,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
	System        string      `json:"system,omitempty"`
	Tools         []Tool      `json:"tools,omitempty"`
	ToolChoice    interface{} `json:"tool_choice,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
}

// Tool is a tool definition in Anthropic's format
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Response is a non-streamed messages API response
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock is one block of message content
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Source    *ImageSource    `json:"source,omitempty"`
}

// ImageSource carries image data for an image block
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Usage is token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewClient creates a new Anthropic client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.ClientOptions{
		BaseURL:      defaultBaseURL,
		Timeout:      defaultTimeout,
		MaxRetries:   3,
		DefaultModel: defaultModel,
		Headers:      make(map[string]string),
		ProviderName: "Anthropic",
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key not provided")
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	return &Client{
		options:    options,
		httpClient: &http.Client{},
	}, nil
}

// Chat sends a chat request to Anthropic
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := json.Marshal(c.convertRequest(request, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var parsed Response
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

		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return convertResponse(&parsed), nil
}

// ChatStream sends a streaming chat request to Anthropic
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	body, err := json.Marshal(c.convertRequest(request, true))
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

		// Tool use blocks arrive as a start event followed by partial JSON.
		var (
			toolBlock  *llm.ToolCall
			toolInput  strings.Builder
			stopReason string
			usage      llm.Usage
		)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					usage.PromptTokens = event.Message.Usage.InputTokens
				}
			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					toolBlock = &llm.ToolCall{
						ID:       event.ContentBlock.ID,
						Type:     "function",
						Function: llm.FunctionCall{Name: event.ContentBlock.Name},
					}
					toolInput.Reset()
				}
			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case "text_delta":
					if event.Delta.Text != "" && !send(llm.StreamEvent{Type: llm.EventTextDelta, Text: event.Delta.Text}) {
						return
					}
				case "input_json_delta":
					toolInput.WriteString(event.Delta.PartialJSON)
				}
			case "content_block_stop":
				if toolBlock != nil {
					toolBlock.Function.Arguments = llm.CanonicalToolArguments(json.RawMessage(toolInput.String()))
					call := toolBlock
					toolBlock = nil
					if !send(llm.StreamEvent{Type: llm.EventToolCall, ToolCall: call}) {
						return
					}
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					stopReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					usage.CompletionTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				send(llm.StreamEvent{Type: llm.EventFinish, FinishReason: finishReason(stopReason), Usage: &usage})
				return
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				send(llm.StreamEvent{Type: llm.EventError, Err: &llm.APIError{Provider: c.options.ProviderName, Message: msg}})
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			send(llm.StreamEvent{Type: llm.EventError, Err: fmt.Errorf("error reading stream: %w", err)})
			return
		}
		if ctx.Err() == nil {
			send(llm.StreamEvent{Type: llm.EventError, Err: &llm.APIError{
				Provider: c.options.ProviderName,
				Message:  "stream ended before message_stop",
			}})
		}
	}()

	return events, nil
}

type streamEvent struct {
	Type         string        `json:"type"`
	Message      *Response     `json:"message,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Close cleans up resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.options.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("User-Agent", "kitgpt-go/1.0")

	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) apiError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &llm.APIError{Provider: c.options.ProviderName, StatusCode: status, Message: msg}
}

// convertRequest converts from the generic format to Anthropic's. System
// messages are lifted into the system field and consecutive messages of the
// same role are merged, since the API requires alternating turns.
func (c *Client) convertRequest(req *llm.ChatRequest, stream bool) *Request {
	out := &Request{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        stream,
		StopSequences: req.Stop,
	}
	if out.Model == "" {
		out.Model = c.options.DefaultModel
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}

	appendBlocks := func(role string, blocks []ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, blocks...)
			return
		}
		out.Messages = append(out.Messages, Message{Role: role, Content: blocks})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.Text(); text != "" {
				system = append(system, text)
			}
		case llm.RoleUser:
			appendBlocks("user", userBlocks(msg))
		case llm.RoleAssistant:
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				_, args := llm.ToolArgumentsObject(tc.Function.Arguments)
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: args,
				})
			}
			appendBlocks("assistant", blocks)
		case llm.RoleTool:
			appendBlocks("user", []ContentBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}})
		}
	}

	out.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		fn, ok := tool["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]interface{})
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out.Tools = append(out.Tools, Tool{Name: name, Description: desc, InputSchema: params})
	}
	if len(out.Tools) > 0 && req.ToolChoice == "auto" {
		out.ToolChoice = map[string]string{"type": "auto"}
	}

	return out
}

func userBlocks(msg llm.Message) []ContentBlock {
	var blocks []ContentBlock
	if msg.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
	}
	for _, p := range msg.Parts {
		switch p.Type {
		case llm.PartText:
			if p.Text != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: p.Text})
			}
		case llm.PartImage:
			blocks = append(blocks, ContentBlock{Type: "image", Source: imageSource(p)})
		}
	}
	return blocks
}

// imageSource accepts data URLs and plain URLs
func imageSource(p llm.Part) *ImageSource {
	if rest, ok := strings.CutPrefix(p.ImageURL, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if found {
			mediaType := strings.TrimSuffix(meta, ";base64")
			if mediaType == "" {
				mediaType = p.MimeType
			}
			return &ImageSource{Type: "base64", MediaType: mediaType, Data: data}
		}
	}
	return &ImageSource{Type: "url", URL: p.ImageURL}
}

// convertResponse converts from Anthropic's format to the generic one
func convertResponse(resp *Response) *llm.ChatResponse {
	var content strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args := llm.CanonicalToolArguments(block.Input)
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}

	return &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		FinishReason: finishReason(resp.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

func finishReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
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
