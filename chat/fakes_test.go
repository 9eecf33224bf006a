package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/kitgpt-go/history"
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/provider"
)

const (
	suggestionsJSON = `{"moreExamplesQuestion":"Show more?","followupQuestions":[{"question":"Why?","emoji":"❓"},{"question":"How?","emoji":"🔧"}]}`
	titleJSON       = `{"conversationTitle":"Small talk"}`
)

// fakeStream is one ChatStream call driven by the test
type fakeStream struct {
	req *llm.ChatRequest
	ctx context.Context
	in  chan llm.StreamEvent
	// previousCancelled records whether every earlier stream was already
	// cancelled when this one was requested
	previousCancelled bool
	closeOnce         sync.Once
}

func (st *fakeStream) text(t *testing.T, s string) {
	t.Helper()
	st.in <- llm.StreamEvent{Type: llm.EventTextDelta, Text: s}
}

func (st *fakeStream) send(ev llm.StreamEvent) {
	st.in <- ev
}

func (st *fakeStream) end() {
	st.closeOnce.Do(func() { close(st.in) })
}

type fakeClient struct {
	mu      sync.Mutex
	streams []*fakeStream
	chats   []*llm.ChatRequest
	// reply answers one-shot requests; nil uses defaultReply
	reply func(ctx context.Context, req *llm.ChatRequest) (string, error)
}

func (c *fakeClient) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	st := &fakeStream{req: req, ctx: ctx, in: make(chan llm.StreamEvent, 16), previousCancelled: true}

	c.mu.Lock()
	for _, prev := range c.streams {
		if prev.ctx.Err() == nil {
			st.previousCancelled = false
		}
	}
	c.streams = append(c.streams, st)
	c.mu.Unlock()

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-st.in:
				if !ok {
					select {
					case out <- llm.StreamEvent{Type: llm.EventFinish, FinishReason: "stop"}:
					case <-ctx.Done():
					}
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *fakeClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	c.chats = append(c.chats, req)
	reply := c.reply
	c.mu.Unlock()

	if reply == nil {
		reply = defaultReply
	}
	text, err := reply(ctx, req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Model: req.Model, Message: llm.Message{Role: llm.RoleAssistant, Content: text}}, nil
}

func (c *fakeClient) Close() error { return nil }

func (c *fakeClient) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.streams) > i
	}, time.Second, time.Millisecond, "stream %d was not requested", i)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[i]
}

func (c *fakeClient) streamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// chatCount counts one-shot requests whose instruction contains marker
func (c *fakeClient) chatCount(marker string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.chats {
		if strings.Contains(instruction(req), marker) {
			n++
		}
	}
	return n
}

func defaultReply(_ context.Context, req *llm.ChatRequest) (string, error) {
	switch {
	case isSuggestionRequest(req):
		return suggestionsJSON, nil
	case isTitleRequest(req):
		return titleJSON, nil
	}
	return "I am online.", nil
}

// instruction returns the first system message added after the conversation
func instruction(req *llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func isSuggestionRequest(req *llm.ChatRequest) bool {
	return strings.Contains(instruction(req), "follow-up questions")
}

func isTitleRequest(req *llm.ChatRequest) bool {
	return strings.Contains(instruction(req), "descriptive name")
}

type update struct {
	id       int64
	title    string
	messages []llm.Message
}

type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	inserts []update
	updates []update
	deleted []int64
	rows    map[int64]*history.Conversation
	// gate, when set, holds inserts until it is closed
	gate chan struct{}
	// insertErr fails inserts once the gate opens
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[int64]*history.Conversation{}}
}

func (r *fakeRepo) Insert(_ context.Context, title string, messages []llm.Message) (int64, error) {
	r.mu.Lock()
	gate := r.gate
	r.nextID++
	id := r.nextID
	r.inserts = append(r.inserts, update{id: id, title: title, messages: messages})
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.rows[id] = &history.Conversation{ID: id, Title: title, Messages: messages}
	return id, nil
}

func (r *fakeRepo) Update(_ context.Context, id int64, title string, messages []llm.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{id: id, title: title, messages: messages})
	if _, ok := r.rows[id]; !ok {
		return history.ErrNotFound
	}
	r.rows[id] = &history.Conversation{ID: id, Title: title, Messages: messages}
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id int64) (*history.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	out := *c
	out.Messages = llm.CloneMessages(c.Messages)
	return &out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	if _, ok := r.rows[id]; !ok {
		return history.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeRepo) counts() (inserts, updates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inserts), len(r.updates)
}

func (r *fakeRepo) lastUpdate() (update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return update{}, false
	}
	return r.updates[len(r.updates)-1], true
}

// recorder collects observed events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// syncBuffer is a log sink safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fakeModel(c *fakeClient) *provider.Handle {
	return &provider.Handle{ProviderKey: "fake.chat", ProviderName: "Fake", ModelID: "fake-1", Client: c}
}

func newTestSession(t *testing.T, c *fakeClient, opts ...Option) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []Option{WithObserver(rec.observe)}
	if c != nil {
		base = append(base, WithModel(fakeModel(c)))
	}
	s := New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func messagesEqual(t *testing.T, s *Session, want ...llm.Message) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := s.Messages()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond, "messages: %+v", s.Messages())
}

func user(text string) llm.Message      { return llm.Message{Role: llm.RoleUser, Content: text} }
func assistant(text string) llm.Message { return llm.Message{Role: llm.RoleAssistant, Content: text} }

var errBoom = errors.New("boom")
