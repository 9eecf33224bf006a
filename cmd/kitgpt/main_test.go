package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/chat"
	"github.com/nachoal/kitgpt-go/llm"
)

func assistantEvent(i int, text string) chat.Event {
	return chat.Event{Type: chat.EventMessage, Index: i, Message: llm.Message{Role: llm.RoleAssistant, Content: text}}
}

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}

	p.observe(chat.Event{Type: chat.EventMessage, Index: 0, Message: llm.Message{Role: llm.RoleUser, Content: "hi"}})
	p.observe(assistantEvent(1, "Hel"))
	p.observe(assistantEvent(1, "Hello"))
	p.observe(assistantEvent(1, "Hello"))
	p.observe(assistantEvent(2, "42"))

	require.Equal(t, "Hello\n\n42", buf.String())
	require.NoError(t, p.err())

	boom := errors.New("boom")
	p.observe(chat.Event{Type: chat.EventError, Err: boom})
	p.observe(chat.Event{Type: chat.EventError, Err: errors.New("later")})
	require.ErrorIs(t, p.err(), boom)
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	require.Equal(t, int64(12), id)

	for _, arg := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(arg)
		require.Error(t, err, arg)
	}
}
