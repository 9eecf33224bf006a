package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nachoal/kitgpt-go/internal/schema"
)

// GenerateObject asks the model for a JSON object matching the schema of out
// and decodes the reply into out. The request is copied, not modified.
func GenerateObject(ctx context.Context, client Client, request *ChatRequest, out interface{}) error {
	schemaJSON, err := schema.NewGenerator().JSON(out)
	if err != nil {
		return fmt.Errorf("failed to build output schema: %w", err)
	}

	req := *request
	req.Stream = false
	req.Tools = nil
	req.ToolChoice = nil
	req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	req.Messages = append(CloneMessages(request.Messages), Message{
		Role: RoleSystem,
		Content: "Respond with a single JSON object that conforms to this JSON schema. " +
			"Do not wrap it in markdown and do not add any other text.\n" + schemaJSON,
	})

	resp, err := client.Chat(ctx, &req)
	if err != nil {
		return err
	}

	if err := DecodeObject(resp.Message.Content, out); err != nil {
		return err
	}
	return nil
}

// DecodeObject extracts the JSON object from a model reply and validates it
func DecodeObject(text string, out interface{}) error {
	body := extractJSON(text)
	if body == "" {
		return fmt.Errorf("model reply contained no JSON object")
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("failed to decode model reply: %w", err)
	}
	if err := schema.Validate(out); err != nil {
		return fmt.Errorf("model reply does not match schema: %w", err)
	}
	return nil
}

// extractJSON strips code fences and surrounding prose
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
