package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/tools"
	"github.com/nachoal/kitgpt-go/tools/registry"
)

type lookupParams struct {
	Term string `json:"term" schema:"required" description:"What to look up"`
}

func newToolRegistry(t *testing.T, started chan<- struct{}, release <-chan struct{}) *registry.Registry {
	t.Helper()
	defs, err := tools.FromDefinitions(map[string]tools.Definition{
		"lookup": {
			Description: "Looks a term up",
			DisplayText: "Looking it up",
			Params:      func() interface{} { return &lookupParams{} },
			Execute: func(ctx context.Context, chat tools.ChatControls, params interface{}) error {
				p := params.(*lookupParams)
				if started != nil {
					started <- struct{}{}
				}
				if release != nil {
					<-release
				}
				chat.Send("Found " + p.Term)
				chat.AppendLine("Second line")
				chat.Append("!")
				return nil
			},
		},
		"broken": {
			Description: "Always fails",
			Execute: func(context.Context, tools.ChatControls, interface{}) error {
				return errors.New("disk on fire")
			},
		},
	})
	require.NoError(t, err)
	r, err := registry.New(defs...)
	require.NoError(t, err)
	return r
}

func toolCall(name string, args interface{}) llm.StreamEvent {
	raw, _ := json.Marshal(args)
	return llm.StreamEvent{Type: llm.EventToolCall, ToolCall: &llm.ToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: raw},
	}}
}

func TestToolCall_WritesIntoConversation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithTools(newToolRegistry(t, started, release)), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Look up Go"))
	st := client.stream(t, 0)
	require.Len(t, st.req.Tools, 2)
	require.Equal(t, "auto", st.req.ToolChoice)

	st.send(toolCall("lookup", map[string]string{"term": "Go"}))
	<-started
	require.Equal(t, StatusCallingTool, s.Status())
	require.Equal(t, "Looking it up...", s.Footer())
	close(release)

	messagesEqual(t, s, user("Look up Go"), assistant("Found Go\n\nSecond line!"))
	require.Eventually(t, func() bool { return s.Status() == StatusResponding }, time.Second, time.Millisecond)
	st.end()
	s.Wait()

	var sawTool bool
	for _, ev := range rec.ofType(EventStatus) {
		if ev.Status == StatusCallingTool && ev.Footer == "Looking it up..." {
			sawTool = true
		}
	}
	require.True(t, sawTool)
	require.Empty(t, rec.ofType(EventError))
}

func TestToolCall_FailureSurfaced(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithTools(newToolRegistry(t, nil, nil)))

	require.NoError(t, s.Submit("Break it"))
	st := client.stream(t, 0)
	st.send(toolCall("broken", map[string]string{}))

	require.Eventually(t, func() bool { return len(rec.ofType(EventError)) == 1 }, time.Second, time.Millisecond)
	s.Wait()

	err := rec.ofType(EventError)[0].Err
	var toolErr *tools.ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, "broken", toolErr.Tool)
	require.Contains(t, err.Error(), "disk on fire")
	require.False(t, s.StreamActive())
}

func TestToolCall_InvalidArguments(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithTools(newToolRegistry(t, nil, nil)))

	require.NoError(t, s.Submit("Look up nothing"))
	client.stream(t, 0).send(toolCall("lookup", map[string]string{}))

	require.Eventually(t, func() bool { return len(rec.ofType(EventError)) == 1 }, time.Second, time.Millisecond)
	var toolErr *tools.ToolError
	require.ErrorAs(t, rec.ofType(EventError)[0].Err, &toolErr)
	require.Equal(t, "VALIDATION_FAILED", toolErr.Code)
	s.Wait()
}

func TestToolCall_UnknownToolUsesRawName(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithTools(newToolRegistry(t, nil, nil)))

	require.NoError(t, s.Submit("Hi"))
	client.stream(t, 0).send(toolCall("missing", map[string]string{}))

	require.Eventually(t, func() bool { return len(rec.ofType(EventError)) == 1 }, time.Second, time.Millisecond)
	require.ErrorIs(t, rec.ofType(EventError)[0].Err, registry.ErrToolNotFound)

	var footer string
	for _, ev := range rec.ofType(EventStatus) {
		if ev.Status == StatusCallingTool {
			footer = ev.Footer
		}
	}
	require.Equal(t, "missing...", footer)
	s.Wait()
}

func TestControls_Unbound(t *testing.T) {
	s, _ := newTestSession(t, nil, WithSuggestionCount(0))
	c := s.Controls()

	c.Append("one")
	c.AppendLine("two")
	c.Send("three")
	messagesEqual(t, s, assistant("one\n\ntwo"), assistant("three"))
}

func TestControls_DroppedAfterAbort(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithTools(newToolRegistry(t, started, release)), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Look up Go"))
	client.stream(t, 0).send(toolCall("lookup", map[string]string{"term": "Go"}))
	<-started
	s.Abort()
	close(release)
	s.Wait()

	messagesEqual(t, s, user("Look up Go"))
}
