package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nachoal/kitgpt-go/llm"
)

const defaultModel = "models/gemini-1.5-flash-latest"

// Client implements llm.Client on top of the Gemini SDK
type Client struct {
	options llm.ClientOptions
	genai   *genai.Client
}

// NewClient creates a new Gemini client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.ClientOptions{
		DefaultModel: defaultModel,
		ProviderName: "Google Generative AI",
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.APIKey == "" {
		return nil, fmt.Errorf("Google Generative AI API key not provided")
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(options.APIKey)}
	if options.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(options.BaseURL))
	}

	gc, err := genai.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{options: options, genai: gc}, nil
}

// Chat sends a one-shot request
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	cs, last, err := c.startChat(request)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, c.wrap(err)
	}

	out := &llm.ChatResponse{
		Model:   request.Model,
		Message: llm.Message{Role: llm.RoleAssistant},
	}
	text, calls, reason := readCandidate(resp)
	out.Message.Content = text
	out.Message.ToolCalls = calls
	out.FinishReason = reason
	out.Usage = usage(resp)
	return out, nil
}

// ChatStream sends a streaming request
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	cs, last, err := c.startChat(request)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, last.Parts...)
	events := make(chan llm.StreamEvent)

	go func() {
		defer close(events)

		send := func(ev llm.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			reason   = "stop"
			lastResp *genai.GenerateContentResponse
		)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(llm.StreamEvent{Type: llm.EventError, Err: c.wrap(err)})
				return
			}
			lastResp = resp

			text, calls, r := readCandidate(resp)
			if text != "" && !send(llm.StreamEvent{Type: llm.EventTextDelta, Text: text}) {
				return
			}
			for i := range calls {
				if !send(llm.StreamEvent{Type: llm.EventToolCall, ToolCall: &calls[i]}) {
					return
				}
			}
			if r != "" {
				reason = r
			}
		}

		send(llm.StreamEvent{Type: llm.EventFinish, FinishReason: reason, Usage: usage(lastResp)})
	}()

	return events, nil
}

// Close releases the SDK client
func (c *Client) Close() error {
	return c.genai.Close()
}

func (c *Client) wrap(err error) error {
	return &llm.APIError{Provider: c.options.ProviderName, Message: err.Error()}
}

// startChat configures a model for the request and loads every message but
// the last into the chat history. The last message is returned for sending.
func (c *Client) startChat(request *llm.ChatRequest) (*genai.ChatSession, *genai.Content, error) {
	name := request.Model
	if name == "" {
		name = c.options.DefaultModel
	}
	model := c.genai.GenerativeModel(name)

	system := request.System
	contents := make([]*genai.Content, 0, len(request.Messages))
	for _, msg := range request.Messages {
		if msg.Role == llm.RoleSystem && len(contents) == 0 {
			system = joinNonEmpty(system, msg.Text())
			continue
		}
		content := toContent(msg)
		if len(content.Parts) == 0 {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == content.Role {
			contents[n-1].Parts = append(contents[n-1].Parts, content.Parts...)
			continue
		}
		contents = append(contents, content)
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no messages to send")
	}

	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if request.Temperature > 0 {
		model.SetTemperature(request.Temperature)
	}
	if request.TopP > 0 {
		model.SetTopP(request.TopP)
	}
	if request.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(request.MaxTokens))
	}
	if len(request.Stop) > 0 {
		model.StopSequences = request.Stop
	}
	if request.ResponseFormat != nil && request.ResponseFormat.Type == "json_object" {
		model.ResponseMIMEType = "application/json"
	}
	if tools := toTools(request.Tools); len(tools) > 0 {
		model.Tools = tools
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	return cs, contents[len(contents)-1], nil
}

// toContent maps a message onto Gemini roles. System messages after the
// first turn are sent as user text since Gemini only has one system slot.
func toContent(msg llm.Message) *genai.Content {
	content := &genai.Content{Role: "user"}
	switch msg.Role {
	case llm.RoleAssistant:
		content.Role = "model"
		if msg.Content != "" {
			content.Parts = append(content.Parts, genai.Text(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			args, _ := llm.ToolArgumentsObject(tc.Function.Arguments)
			content.Parts = append(content.Parts, genai.FunctionCall{Name: tc.Function.Name, Args: args})
		}
		return content
	case llm.RoleTool:
		content.Role = "function"
		var response map[string]any
		if err := json.Unmarshal([]byte(msg.Content), &response); err != nil || response == nil {
			response = map[string]any{"result": msg.Content}
		}
		content.Parts = append(content.Parts, genai.FunctionResponse{Name: msg.Name, Response: response})
		return content
	}

	if msg.Content != "" {
		content.Parts = append(content.Parts, genai.Text(msg.Content))
	}
	for _, p := range msg.Parts {
		switch p.Type {
		case llm.PartText:
			if p.Text != "" {
				content.Parts = append(content.Parts, genai.Text(p.Text))
			}
		case llm.PartImage:
			if blob, ok := imageBlob(p); ok {
				content.Parts = append(content.Parts, blob)
			}
		}
	}
	return content
}

// imageBlob decodes a base64 data URL. Remote URLs are not supported by the
// inline data API and are skipped.
func imageBlob(p llm.Part) (genai.Blob, bool) {
	rest, ok := strings.CutPrefix(p.ImageURL, "data:")
	if !ok {
		return genai.Blob{}, false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return genai.Blob{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return genai.Blob{}, false
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = p.MimeType
	}
	return genai.Blob{MIMEType: mime, Data: raw}, true
}

func toTools(defs []map[string]interface{}) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, def := range defs {
		fn, ok := def["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		decl := &genai.FunctionDeclaration{Name: name, Description: desc}
		if params, ok := fn["parameters"].(map[string]interface{}); ok {
			if props, _ := params["properties"].(map[string]interface{}); len(props) > 0 {
				decl.Parameters = toSchema(params)
			}
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toSchema converts a JSON schema object into the SDK's schema type
func toSchema(m map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}
	switch m["type"] {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	default:
		s.Type = genai.TypeObject
	}
	s.Description, _ = m["description"].(string)

	for _, v := range anySlice(m["enum"]) {
		if str, ok := v.(string); ok {
			s.Enum = append(s.Enum, str)
		}
	}
	for _, v := range anySlice(m["required"]) {
		if str, ok := v.(string); ok {
			s.Required = append(s.Required, str)
		}
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		s.Items = toSchema(items)
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]interface{}); ok {
				s.Properties[name] = toSchema(prop)
			}
		}
	}
	return s
}

func anySlice(v interface{}) []interface{} {
	switch vv := v.(type) {
	case []interface{}:
		return vv
	case []string:
		out := make([]interface{}, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	}
	return nil
}

func readCandidate(resp *genai.GenerateContentResponse) (string, []llm.ToolCall, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil, ""
	}
	cand := resp.Candidates[0]

	var (
		text  strings.Builder
		calls []llm.ToolCall
	)
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				args, err := json.Marshal(p.Args)
				if err != nil || p.Args == nil {
					args = []byte("{}")
				}
				calls = append(calls, llm.ToolCall{
					ID:       "call_" + uuid.NewString(),
					Type:     "function",
					Function: llm.FunctionCall{Name: p.Name, Arguments: args},
				})
			}
		}
	}

	reason := ""
	switch cand.FinishReason {
	case genai.FinishReasonStop:
		reason = "stop"
		if len(calls) > 0 {
			reason = "tool_calls"
		}
	case genai.FinishReasonMaxTokens:
		reason = "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		reason = "content_filter"
	}
	return text.String(), calls, reason
}

func usage(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
