package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/llm"
)

func TestStore(t *testing.T) {
	var st store
	require.Equal(t, llm.Role(""), st.tail())

	ev := st.push(user("Hi"))
	require.Equal(t, EventMessage, ev.Type)
	require.Equal(t, 0, ev.Index)

	ev = st.appendAssistant("one", "\n\n")
	require.Equal(t, 1, ev.Index)
	require.Equal(t, "one", ev.Message.Content)

	ev = st.appendAssistant("two", "\n\n")
	require.Equal(t, 1, ev.Index)
	require.Equal(t, "one\n\ntwo", ev.Message.Content)

	require.Equal(t, len("Hi\none\n\ntwo"), st.contentLength())
	require.Equal(t, "one\n\ntwo", st.lastAssistantText())
	require.Len(t, st.last(1), 1)
	require.Len(t, st.last(10), 2)

	snap := st.snapshot()
	snap[0].Content = "changed"
	require.Equal(t, "Hi", st.messages[0].Content)

	ev = st.replace(nil)
	require.Equal(t, EventReset, ev.Type)
	require.Zero(t, st.len())
}

func TestDispatcher_OrderAndReentrancy(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int
		s   *Session
	)
	s = New(WithObserver(func(ev Event) {
		// Calling back into the session from the observer must not deadlock.
		_ = s.Messages()
		if ev.Type == EventMessage {
			mu.Lock()
			got = append(got, ev.Index)
			mu.Unlock()
		}
	}), WithSuggestionCount(0))

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Append(assistant("x")))
	}
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, idx := range got {
		require.Equal(t, i, idx)
	}
}

func TestDispatcher_CloseDrains(t *testing.T) {
	var n int
	d := newDispatcher(func(Event) {
		time.Sleep(time.Millisecond)
		n++
	})
	d.send([]Event{{Type: EventRefresh}, {Type: EventRefresh}})
	d.close()
	require.Equal(t, 2, n)
	d.send([]Event{{Type: EventRefresh}})
	d.close()
	require.Equal(t, 2, n)
}
