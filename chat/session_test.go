package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/llm"
)

func TestSubmit_StreamsIntoOneAssistantMessage(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithSystemPrompt("be brief"))

	require.NoError(t, s.Submit("Hi"))
	require.True(t, s.StreamActive())
	require.Equal(t, StatusResponding, s.Status())
	require.Equal(t, "Fake is responding...", s.Footer())

	st := client.stream(t, 0)
	require.Equal(t, "be brief", st.req.System)
	require.Equal(t, "fake-1", st.req.Model)
	require.Len(t, st.req.Messages, 1)

	st.text(t, "Hel")
	messagesEqual(t, s, user("Hi"), assistant("Hel"))
	st.text(t, "lo!")
	st.end()

	messagesEqual(t, s, user("Hi"), assistant("Hello!"))
	require.Eventually(t, func() bool { return !s.StreamActive() }, time.Second, time.Millisecond)
	s.Wait()
	require.Equal(t, 1, client.streamCount())
}

func TestSubmit_EmptyTextRejected(t *testing.T) {
	s, _ := newTestSession(t, &fakeClient{})
	require.Error(t, s.Submit("   "))
	require.Empty(t, s.Messages())
}

func TestSubmit_SupersedesActiveStream(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client)

	require.NoError(t, s.Submit("Hi"))
	first := client.stream(t, 0)
	first.text(t, "Par")
	messagesEqual(t, s, user("Hi"), assistant("Par"))

	require.NoError(t, s.Submit("wait"))
	second := client.stream(t, 1)
	require.True(t, second.previousCancelled, "first stream must be cancelled before the second request")
	require.Error(t, first.ctx.Err())

	second.text(t, "Answer")
	second.end()

	messagesEqual(t, s, user("Hi"), assistant("Par"), user("wait"), assistant("Answer"))
	s.Wait()
	require.Equal(t, 2, client.streamCount())
	require.Empty(t, rec.ofType(EventError), "cancellation is silent")
}

func TestAbort_IsIdempotent(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client)

	s.Abort()
	require.Equal(t, StatusReady, s.Status())

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Partial")
	messagesEqual(t, s, user("Hi"), assistant("Partial"))

	s.Abort()
	s.Abort()
	require.False(t, s.StreamActive())

	// Late deltas from the aborted stream are dropped.
	select {
	case st.in <- llm.StreamEvent{Type: llm.EventTextDelta, Text: " more"}:
	default:
	}
	s.Wait()
	messagesEqual(t, s, user("Hi"), assistant("Partial"))
	require.Empty(t, rec.ofType(EventError))
}

func TestStreamError_ReportedOnceAndPartialKept(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client)

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Part")
	st.send(llm.StreamEvent{Type: llm.EventError, Err: errBoom})

	require.Eventually(t, func() bool { return len(rec.ofType(EventRefresh)) == 1 }, time.Second, time.Millisecond)
	s.Wait()

	errs := rec.ofType(EventError)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0].Err, errBoom)
	require.Contains(t, errs[0].Err.Error(), "Fake")
	messagesEqual(t, s, user("Hi"), assistant("Part"))
	require.Equal(t, StatusReady, s.Status())
	require.Zero(t, client.chatCount("follow-up questions"), "a failed response gets no suggestions")
}

func TestSubmit_WithoutModel(t *testing.T) {
	s, rec := newTestSession(t, nil)

	require.NoError(t, s.Submit("Hi"))
	require.False(t, s.StreamActive())
	require.Eventually(t, func() bool { return len(rec.ofType(EventError)) == 1 }, time.Second, time.Millisecond)
	require.ErrorIs(t, rec.ofType(EventError)[0].Err, ErrNoModelSelected)
}

func TestSuggestions_AfterResponse(t *testing.T) {
	client := &fakeClient{}
	s, rec := newTestSession(t, client)

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	st.end()

	require.Eventually(t, func() bool { return s.Suggestions() != nil }, time.Second, time.Millisecond)
	s.Wait()

	sg := s.Suggestions()
	require.Equal(t, "Show more?", sg.MoreExamplesQuestion)
	require.Equal(t, []Followup{{Question: "Why?", Emoji: "❓"}, {Question: "How?", Emoji: "🔧"}}, sg.Followups)
	require.Equal(t, 1, client.chatCount("follow-up questions"))
	require.Equal(t, StatusReady, s.Status())

	req := client.chats[0]
	require.Empty(t, req.System)
	require.Contains(t, req.Messages[len(req.Messages)-2].Content, "5 possible follow-up questions")

	actions := s.Actions()
	require.Len(t, actions, 3)
	require.Equal(t, "➕ Show more?", actions[0].Name)
	require.Equal(t, "❓ Why?", actions[1].Name)
	require.Eventually(t, func() bool { return len(rec.ofType(EventSuggestions)) > 0 }, time.Second, time.Millisecond)
}

func TestSuggestions_UseLookback(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithSuggestionLookback(2))

	for _, m := range []llm.Message{user("a"), assistant("b"), user("c")} {
		s.store.messages = append(s.store.messages, m)
	}
	s.lastLen = 3
	require.NoError(t, s.Append(assistant("d")))
	require.Eventually(t, func() bool { return s.Suggestions() != nil }, time.Second, time.Millisecond)
	s.Wait()

	req := client.chats[0]
	require.Len(t, req.Messages, 4, "two context messages, the instruction and the schema")
	require.Equal(t, "c", req.Messages[0].Content)
}

func TestSuggestions_ClearedOnLengthChange(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	st.end()
	require.Eventually(t, func() bool { return s.Suggestions() != nil }, time.Second, time.Millisecond)

	require.NoError(t, s.Submit("Tell me more"))
	require.Nil(t, s.Suggestions(), "cleared synchronously with the append")
	require.Empty(t, s.Actions())
}

func TestSuggestions_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{}
	client.reply = func(ctx context.Context, req *llm.ChatRequest) (string, error) {
		if isSuggestionRequest(req) {
			<-release
		}
		return defaultReply(ctx, req)
	}
	s, _ := newTestSession(t, client)

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	st.end()
	require.Eventually(t, func() bool { return client.chatCount("follow-up questions") == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StatusGettingSuggestions, s.Status())

	require.NoError(t, s.Submit("Next"))
	second := client.stream(t, 1)
	close(release)

	require.Never(t, func() bool { return s.Suggestions() != nil }, 100*time.Millisecond, 5*time.Millisecond)
	second.end()
	s.Wait()
}

func TestSuggestions_FailureOnlyLogs(t *testing.T) {
	logs := &syncBuffer{}
	client := &fakeClient{reply: func(ctx context.Context, req *llm.ChatRequest) (string, error) {
		if isSuggestionRequest(req) {
			return "", errBoom
		}
		return defaultReply(ctx, req)
	}}
	s, rec := newTestSession(t, client, WithLogger(zerolog.New(logs)))

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	st.end()
	require.Eventually(t, func() bool { return client.chatCount("follow-up questions") == 1 }, time.Second, time.Millisecond)
	s.Wait()

	require.Nil(t, s.Suggestions())
	require.Empty(t, rec.ofType(EventError))
	require.Contains(t, logs.String(), "unable to generate suggestions")
	require.Equal(t, StatusReady, s.Status())
}

func TestSuggestions_Disabled(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	st.end()
	require.Eventually(t, func() bool { return !s.StreamActive() }, time.Second, time.Millisecond)
	s.Wait()
	require.Zero(t, client.chatCount("follow-up questions"))
}

func TestTitle_PlaceholderThenGenerated(t *testing.T) {
	long := strings.Repeat("a very long title ", 5)
	client := &fakeClient{reply: func(ctx context.Context, req *llm.ChatRequest) (string, error) {
		if isTitleRequest(req) {
			return `{"conversationTitle":"` + long + `"}`, nil
		}
		return defaultReply(ctx, req)
	}}
	s, _ := newTestSession(t, client, WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	require.Empty(t, s.Title(), "short conversations stay untitled")

	require.NoError(t, s.Submit(strings.Repeat("x", 50)))
	require.Equal(t, TitlePlaceholder, s.Title(), "placeholder is set synchronously")

	require.Eventually(t, func() bool { return s.Title() != TitlePlaceholder }, time.Second, time.Millisecond)
	title := s.Title()
	require.Equal(t, 50, len([]rune(title)))
	require.True(t, strings.HasSuffix(title, "…"))

	client.stream(t, 1).end()
	s.Wait()
	require.Equal(t, 1, client.chatCount("descriptive name"), "title is generated once")
}

func TestTitle_FailureKeepsPlaceholder(t *testing.T) {
	logs := &syncBuffer{}
	client := &fakeClient{reply: func(ctx context.Context, req *llm.ChatRequest) (string, error) {
		if isTitleRequest(req) {
			return "not json", nil
		}
		return defaultReply(ctx, req)
	}}
	s, rec := newTestSession(t, client, WithSuggestionCount(0), WithLogger(zerolog.New(logs)))

	require.NoError(t, s.Submit(strings.Repeat("y", 60)))
	require.Eventually(t, func() bool { return client.chatCount("descriptive name") == 1 }, time.Second, time.Millisecond)
	client.stream(t, 0).end()
	s.Wait()

	require.Equal(t, TitlePlaceholder, s.Title())
	require.Contains(t, logs.String(), "unable to generate title for conversation")
	require.Empty(t, rec.ofType(EventError))
}

func TestTitle_WaitsForModel(t *testing.T) {
	client := &fakeClient{reply: func(ctx context.Context, req *llm.ChatRequest) (string, error) {
		if isTitleRequest(req) {
			return `{"conversationTitle":"Trip to Lima"}`, nil
		}
		return defaultReply(ctx, req)
	}}
	s, _ := newTestSession(t, nil, WithSuggestionCount(0))

	require.NoError(t, s.Submit(strings.Repeat("z", 60)))
	require.Empty(t, s.Title(), "no placeholder without a model")

	s.SetModel(fakeModel(client))
	require.Eventually(t, func() bool { return s.Title() == "Trip to Lima" }, time.Second, time.Millisecond)
	s.Wait()
	require.Equal(t, 1, client.chatCount("descriptive name"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 50))
	require.Equal(t, "abc…", truncate("abcdef", 4))
	require.Equal(t, "héé…", truncate("héééé", 4))
}

func TestClose_StopsWork(t *testing.T) {
	client := &fakeClient{}
	s := New(WithModel(fakeModel(client)))

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	require.NoError(t, s.Close())
	require.Error(t, st.ctx.Err())
	require.ErrorIs(t, s.Submit("again"), ErrClosed)
	require.NoError(t, s.Close())
}
