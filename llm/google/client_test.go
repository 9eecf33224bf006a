package google

import (
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/llm"
)

func TestToContent_Roles(t *testing.T) {
	user := toContent(llm.Message{Role: llm.RoleUser, Content: "hi"})
	require.Equal(t, "user", user.Role)
	require.Equal(t, []genai.Part{genai.Text("hi")}, user.Parts)

	model := toContent(llm.Message{
		Role:    llm.RoleAssistant,
		Content: "calling",
		ToolCalls: []llm.ToolCall{{
			ID:       "c1",
			Function: llm.FunctionCall{Name: "calculate", Arguments: json.RawMessage(`{"expression":"2+2"}`)},
		}},
	})
	require.Equal(t, "model", model.Role)
	require.Len(t, model.Parts, 2)
	fc, ok := model.Parts[1].(genai.FunctionCall)
	require.True(t, ok)
	require.Equal(t, "calculate", fc.Name)
	require.Equal(t, "2+2", fc.Args["expression"])

	tool := toContent(llm.Message{Role: llm.RoleTool, Name: "calculate", Content: "4"})
	require.Equal(t, "function", tool.Role)
	fr, ok := tool.Parts[0].(genai.FunctionResponse)
	require.True(t, ok)
	require.Equal(t, "4", fr.Response["result"])
}

func TestToContent_InlineImage(t *testing.T) {
	c := toContent(llm.Message{
		Role:  llm.RoleUser,
		Parts: []llm.Part{{Type: llm.PartImage, ImageURL: "data:image/png;base64,aGk="}},
	})
	require.Len(t, c.Parts, 1)
	blob, ok := c.Parts[0].(genai.Blob)
	require.True(t, ok)
	require.Equal(t, "image/png", blob.MIMEType)
	require.Equal(t, []byte("hi"), blob.Data)
}

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question": map[string]interface{}{"type": "string", "description": "q"},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "enum": []string{"a", "b"}},
			},
		},
		"required": []string{"question"},
	})
	require.Equal(t, genai.TypeObject, s.Type)
	require.Equal(t, []string{"question"}, s.Required)
	require.Equal(t, genai.TypeString, s.Properties["question"].Type)
	require.Equal(t, "q", s.Properties["question"].Description)
	require.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	require.Equal(t, []string{"a", "b"}, s.Properties["tags"].Items.Enum)
}

func TestToTools(t *testing.T) {
	tools := toTools([]map[string]interface{}{{
		"type": "function",
		"function": map[string]interface{}{
			"name":        "wikipedia",
			"description": "Search Wikipedia",
			"parameters": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	require.Equal(t, "wikipedia", tools[0].FunctionDeclarations[0].Name)
	require.NotNil(t, tools[0].FunctionDeclarations[0].Parameters)
}

func TestReadCandidate(t *testing.T) {
	text, calls, reason := readCandidate(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("ok"),
				genai.FunctionCall{Name: "calculate", Args: map[string]any{"expression": "1"}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	})
	require.Equal(t, "ok", text)
	require.Len(t, calls, 1)
	require.NotEmpty(t, calls[0].ID)
	require.Equal(t, "tool_calls", reason)
}
