package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conversations.sqlite3")
	s, err := Open(context.Background(), path, func(string) error {
		t.Fatalf("fresh database must not be treated as corrupted")
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	messages := []llm.Message{
		{Role: llm.RoleUser, Content: "Hi"},
		{Role: llm.RoleAssistant, Content: "Hello!"},
		{Role: llm.RoleUser, Content: "Look", Parts: []llm.Part{{Type: llm.PartImage, ImageURL: "https://example.com/a.png"}}},
	}
	id, err := s.Insert(ctx, "Greetings", messages)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Greetings", got.Title)
	require.Equal(t, messages, got.Messages)
	require.False(t, got.Started.IsZero())
}

func TestInsert_EmptyTitleIsUntitled(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Insert(context.Background(), "", []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, UntitledTitle, got.Title)
}

func TestUpdate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "conversations.sqlite3")
	s, err := Open(context.Background(), path, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	id, err := s.Insert(ctx, "", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	updated := []llm.Message{{Role: llm.RoleUser, Content: "Hi"}, {Role: llm.RoleAssistant, Content: "Hey"}}
	require.NoError(t, s.Update(ctx, id, "Small talk", updated))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Small talk", got.Title)
	require.Equal(t, updated, got.Messages)
	require.True(t, got.LastAccessed.After(got.Started))

	err = s.Update(ctx, id+100, "x", nil)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, title := range []string{"first", "second", "third"} {
		id, err := s.Insert(ctx, title, []llm.Message{{Role: llm.RoleUser, Content: title}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "third", list[0].Title, "newest first")
	require.Equal(t, ids[0], list[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	require.NoError(t, s.Delete(ctx, ids[1]))
	_, err = s.Get(ctx, ids[1])
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, ids[1]), ErrNotFound)
}

func TestOpen_RecoversCorruptedDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.sqlite3")
	garbage := []byte("this is definitely not an sqlite database, just some bytes padding it out to a page")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	var notified string
	s, err := Open(context.Background(), path, func(backup string) error {
		notified = backup
		return nil
	})
	require.NoError(t, err)
	defer s.Close()

	want := filepath.Join(dir, "conversations.corrupted.sqlite3")
	require.Equal(t, want, notified)
	backup, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, garbage, backup)

	id, err := s.Insert(context.Background(), "fresh", []llm.Message{{Role: llm.RoleUser, Content: "ok"}})
	require.NoError(t, err)
	require.Positive(t, id)
}

func TestOpen_RecoveryAborted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.sqlite3")
	require.NoError(t, os.WriteFile(path, []byte("garbage garbage garbage garbage garbage garbage garbage"), 0o644))

	_, err := Open(context.Background(), path, func(string) error { return errors.New("user declined") })
	require.ErrorContains(t, err, "user declined")
}

func TestBackupPath(t *testing.T) {
	require.Equal(t, "/d/db.corrupted.sqlite3", BackupPath("/d/db.sqlite3"))
	require.Equal(t, "/d/db.corrupted", BackupPath("/d/db"))
}

func TestBrowser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b, err := NewBrowser(s, 10)
	require.NoError(t, err)
	defer b.Close()

	id, err := s.Insert(ctx, "cached", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}})
	require.NoError(t, err)

	first, err := b.Get(ctx, id)
	require.NoError(t, err)
	first.Messages[0].Content = "mutated by caller"

	second, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Hi", second.Messages[0].Content)

	list, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, b.Delete(ctx, id))
	_, err = b.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBrowser_UpdateEvicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b, err := NewBrowser(s, 10)
	require.NoError(t, err)
	defer b.Close()

	id, err := b.Insert(ctx, "before", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}})
	require.NoError(t, err)
	_, err = b.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, b.Update(ctx, id, "after", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}))
	got, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "after", got.Title)
}

func TestBrowser_ReadRacingUpdateIsNotCached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b, err := NewBrowser(s, 10)
	require.NoError(t, err)
	defer b.Close()

	id, err := b.Insert(ctx, "before", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}})
	require.NoError(t, err)

	// A read that started before the update finishes after it.
	gen := b.generation()
	stale, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, b.Update(ctx, id, "after", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}))
	b.remember(id, stale, gen)

	got, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "after", got.Title)
}
