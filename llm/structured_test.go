package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type replyClient struct {
	reply string
	got   *ChatRequest
}

func (c *replyClient) Chat(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	c.got = req
	return &ChatResponse{Message: Message{Role: RoleAssistant, Content: c.reply}}, nil
}

func (c *replyClient) ChatStream(context.Context, *ChatRequest) (<-chan StreamEvent, error) {
	panic("not used")
}

func (c *replyClient) Close() error { return nil }

type titleObject struct {
	ConversationTitle string `json:"conversationTitle" schema:"required"`
}

func TestGenerateObject(t *testing.T) {
	client := &replyClient{reply: "```json\n{\"conversationTitle\":\"Go channels\"}\n```"}
	req := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	var out titleObject
	require.NoError(t, GenerateObject(context.Background(), client, req, &out))
	require.Equal(t, "Go channels", out.ConversationTitle)

	require.Len(t, req.Messages, 1, "caller request must not be modified")
	require.Len(t, client.got.Messages, 2)
	require.Equal(t, RoleSystem, client.got.Messages[1].Role)
	require.True(t, strings.Contains(client.got.Messages[1].Content, "conversationTitle"))
	require.Equal(t, "json_object", client.got.ResponseFormat.Type)
}

func TestDecodeObject(t *testing.T) {
	var out titleObject
	require.NoError(t, DecodeObject(`Sure! {"conversationTitle":"x"} Hope that helps`, &out))
	require.Equal(t, "x", out.ConversationTitle)

	require.Error(t, DecodeObject("no json here", &out))
	require.Error(t, DecodeObject(`{"conversationTitle":""}`, &titleObject{}))
}
