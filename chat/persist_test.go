package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/history"
	"github.com/nachoal/kitgpt-go/llm"
)

func TestPersist_SingleInsertWhileInserting(t *testing.T) {
	repo := newFakeRepo()
	repo.gate = make(chan struct{})
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithRepository(repo), WithPersistDelay(10*time.Millisecond), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hel")
	st.text(t, "lo!")
	messagesEqual(t, s, user("Hi"), assistant("Hello!"))
	require.Eventually(t, func() bool {
		n, _ := repo.counts()
		return n > 0
	}, time.Second, time.Millisecond)

	inserts, updates := repo.counts()
	require.Equal(t, 1, inserts, "mutations during the insert do not start another one")
	require.Zero(t, updates)
	require.Zero(t, s.ConversationID())

	close(repo.gate)
	require.Eventually(t, func() bool {
		u, ok := repo.lastUpdate()
		return ok && len(u.messages) == 2 && u.messages[1].Content == "Hello!"
	}, time.Second, time.Millisecond)
	require.Equal(t, int64(1), s.ConversationID())

	st.end()
	s.Wait()
	inserts, _ = repo.counts()
	require.Equal(t, 1, inserts)
}

func TestPersist_UpdatesAreCoalesced(t *testing.T) {
	repo := newFakeRepo()
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithRepository(repo), WithPersistDelay(50*time.Millisecond), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	require.Eventually(t, func() bool { return s.ConversationID() != 0 }, time.Second, time.Millisecond)

	st := client.stream(t, 0)
	for _, d := range []string{"a", "b", "c", "d"} {
		st.text(t, d)
	}
	st.end()
	messagesEqual(t, s, user("Hi"), assistant("abcd"))

	require.Eventually(t, func() bool {
		u, ok := repo.lastUpdate()
		return ok && len(u.messages) == 2 && u.messages[1].Content == "abcd"
	}, time.Second, time.Millisecond)
	_, updates := repo.counts()
	require.Less(t, updates, 4)

	u, _ := repo.lastUpdate()
	require.Equal(t, "", u.title)
}

func TestReset_FlushesPendingUpdate(t *testing.T) {
	repo := newFakeRepo()
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithRepository(repo), WithPersistDelay(time.Hour), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	require.Eventually(t, func() bool { return s.ConversationID() != 0 }, time.Second, time.Millisecond)
	oldID := s.ConversationID()

	st := client.stream(t, 0)
	st.text(t, "Hello!")
	messagesEqual(t, s, user("Hi"), assistant("Hello!"))

	s.Reset()

	u, ok := repo.lastUpdate()
	require.True(t, ok, "pending update is written on reset")
	require.Equal(t, oldID, u.id)
	require.Len(t, u.messages, 2)

	require.Empty(t, s.Messages())
	require.Zero(t, s.ConversationID())
	require.Empty(t, s.Title())
	require.False(t, s.StreamActive(), "reset aborts the response")
	require.Error(t, st.ctx.Err())
	require.Eventually(t, func() bool { return len(rec.ofType(EventReset)) > 0 }, time.Second, time.Millisecond)

	require.NoError(t, s.Submit("New topic"))
	require.Eventually(t, func() bool { return s.ConversationID() != 0 }, time.Second, time.Millisecond)
	require.NotEqual(t, oldID, s.ConversationID())

	inserts, _ := repo.counts()
	require.Equal(t, 2, inserts)
	client.stream(t, 1).end()
	s.Wait()
}

func TestReset_WhileInserting(t *testing.T) {
	repo := newFakeRepo()
	repo.gate = make(chan struct{})
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithRepository(repo), WithSuggestionCount(0))

	require.NoError(t, s.Submit("Hi"))
	st := client.stream(t, 0)
	st.text(t, "Hello!")
	messagesEqual(t, s, user("Hi"), assistant("Hello!"))

	s.Reset()
	close(repo.gate)
	s.Wait()

	require.Zero(t, s.ConversationID(), "a late insert does not bind to the new conversation")
	u, ok := repo.lastUpdate()
	require.True(t, ok, "changes made during the insert are written to the old row")
	require.Equal(t, int64(1), u.id)
	require.Equal(t, "Hello!", u.messages[1].Content)
}

func TestReset_WhileInsertingFails(t *testing.T) {
	logs := &syncBuffer{}
	repo := newFakeRepo()
	repo.gate = make(chan struct{})
	repo.insertErr = errors.New("database is locked")
	client := &fakeClient{}
	s, _ := newTestSession(t, client, WithRepository(repo), WithSuggestionCount(0), WithLogger(zerolog.New(logs)))

	require.NoError(t, s.Submit("Hi"))
	client.stream(t, 0).text(t, "Hello!")
	messagesEqual(t, s, user("Hi"), assistant("Hello!"))

	s.Reset()
	close(repo.gate)
	s.Wait()

	require.Contains(t, logs.String(), "failed to save conversation")
	require.Contains(t, logs.String(), "database is locked")
	require.Contains(t, logs.String(), `"changes_lost":true`)
	_, updated := repo.lastUpdate()
	require.False(t, updated)
}

func TestLoad_ReplacesConversation(t *testing.T) {
	repo := newFakeRepo()
	repo.rows[7] = &history.Conversation{
		ID:       7,
		Title:    "Stored",
		Messages: []llm.Message{user("Q"), assistant("A")},
	}
	client := &fakeClient{}
	s, rec := newTestSession(t, client, WithRepository(repo))

	require.NoError(t, s.Load(context.Background(), 7))
	messagesEqual(t, s, user("Q"), assistant("A"))
	require.Equal(t, int64(7), s.ConversationID())
	require.Equal(t, "Stored", s.Title())

	// A loaded conversation ending with an answer gets suggestions.
	require.Eventually(t, func() bool { return s.Suggestions() != nil }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.ofType(EventReset)) > 0 }, time.Second, time.Millisecond)

	require.ErrorIs(t, s.Load(context.Background(), 99), history.ErrNotFound)
	require.Equal(t, int64(7), s.ConversationID())
	s.Wait()
}

func TestLoad_UntitledCanBeRetitled(t *testing.T) {
	repo := newFakeRepo()
	repo.rows[3] = &history.Conversation{ID: 3, Title: history.UntitledTitle, Messages: []llm.Message{user("Q")}}
	s, _ := newTestSession(t, &fakeClient{}, WithRepository(repo))

	require.NoError(t, s.Load(context.Background(), 3))
	require.Empty(t, s.Title())
}

func TestDeleteConversation_Active(t *testing.T) {
	repo := newFakeRepo()
	repo.rows[5] = &history.Conversation{ID: 5, Title: "x", Messages: []llm.Message{user("Q")}}
	s, _ := newTestSession(t, &fakeClient{}, WithRepository(repo), WithSuggestionCount(0))

	require.NoError(t, s.Load(context.Background(), 5))
	require.NoError(t, s.DeleteConversation(context.Background(), 5))
	require.Zero(t, s.ConversationID())
	require.Empty(t, s.Messages())
	require.Equal(t, []int64{5}, repo.deleted)
}

func TestPersist_RoundTripThroughSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.sqlite3")
	db, err := history.Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer db.Close()

	client := &fakeClient{}
	s := New(WithModel(fakeModel(client)), WithRepository(db), WithPersistDelay(10*time.Millisecond))

	require.NoError(t, s.Submit("What is the capital of France? Please answer briefly."))
	st := client.stream(t, 0)
	st.text(t, "Paris.")
	st.end()
	messagesEqual(t, s, user("What is the capital of France? Please answer briefly."), assistant("Paris."))
	require.Eventually(t, func() bool { return s.Title() == "Small talk" }, time.Second, time.Millisecond)
	s.Wait()
	id := s.ConversationID()
	require.NotZero(t, id)
	require.NoError(t, s.Close())

	loaded := New(WithRepository(db))
	defer loaded.Close()
	require.NoError(t, loaded.Load(context.Background(), id))
	require.Equal(t, s.Messages(), loaded.Messages())
	require.Equal(t, "Small talk", loaded.Title())
}
