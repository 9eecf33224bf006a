package llm

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a chat message
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Parts      []Part     `json:"parts,omitempty"`        // Structured content, rendered after Content
	Name       string     `json:"name,omitempty"`         // For tool messages
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages
}

// PartType identifies a structured content part
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one element of structured message content
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
}

// Text returns the textual content of the message, including text parts.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = append([]Part(nil), m.Parts...)
	}
	if m.ToolCalls != nil {
		c.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return c
}

// CloneMessages copies a message slice so callers can hand it to another goroutine.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ToolCall represents a function/tool call request
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // Position within a streamed response
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MarshalJSON customizes JSON serialization for FunctionCall
func (fc FunctionCall) MarshalJSON() ([]byte, error) {
	type Alias FunctionCall
	return json.Marshal(&struct {
		Arguments string `json:"arguments"`
		*Alias
	}{
		Arguments: string(fc.Arguments),
		Alias:     (*Alias)(&fc),
	})
}

// UnmarshalJSON accepts arguments either as an encoded string or as a raw object.
func (fc *FunctionCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fc.Name = raw.Name
	fc.Arguments = raw.Arguments
	var s string
	if len(raw.Arguments) > 0 && raw.Arguments[0] == '"' && json.Unmarshal(raw.Arguments, &s) == nil {
		fc.Arguments = json.RawMessage(s)
	}
	return nil
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model          string                   `json:"model"`
	System         string                   `json:"system,omitempty"`
	Messages       []Message                `json:"messages"`
	Temperature    float32                  `json:"temperature,omitempty"`
	MaxTokens      int                      `json:"max_tokens,omitempty"`
	TopP           float32                  `json:"top_p,omitempty"`
	Stream         bool                     `json:"stream,omitempty"`
	Tools          []map[string]interface{} `json:"tools,omitempty"`
	ToolChoice     interface{}              `json:"tool_choice,omitempty"` // "auto", "none", or specific tool
	ResponseFormat *ResponseFormat          `json:"response_format,omitempty"`
	Stop           []string                 `json:"stop,omitempty"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type string `json:"type"` // "text" or "json_object"
}

// ChatResponse represents a one-shot completion
type ChatResponse struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *Usage  `json:"usage,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code,omitempty"`
}

// EventType is the kind of a streamed event
type EventType string

const (
	EventTextDelta EventType = "text-delta"
	EventToolCall  EventType = "tool-call"
	EventError     EventType = "error"
	EventFinish    EventType = "finish"
)

// StreamEvent is one typed event of a streamed response
type StreamEvent struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCall
	Err          error
	FinishReason string
	Usage        *Usage
}

// ClientOptions contains options for creating an LLM client
type ClientOptions struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	DefaultModel string
	Organization string
	Headers      map[string]string
	ProviderName string
}

// ClientOption is a functional option for configuring clients
type ClientOption func(*ClientOptions)

// WithAPIKey sets the API key
func WithAPIKey(key string) ClientOption {
	return func(o *ClientOptions) {
		o.APIKey = key
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// WithMaxRetries sets the maximum number of retries for one-shot requests
func WithMaxRetries(retries int) ClientOption {
	return func(o *ClientOptions) {
		o.MaxRetries = retries
	}
}

// WithOrganization sets the organization ID
func WithOrganization(org string) ClientOption {
	return func(o *ClientOptions) {
		o.Organization = org
	}
}

// WithProviderName sets the name used in error messages
func WithProviderName(name string) ClientOption {
	return func(o *ClientOptions) {
		o.ProviderName = name
	}
}

// WithHeaders sets additional headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}
