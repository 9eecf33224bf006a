package history

import (
	"context"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nachoal/kitgpt-go/llm"
)

// Browser serves history listings and previews. Full conversations are
// cached in memory while the user moves through the list; writes made
// through the browser evict the cached copy.
type Browser struct {
	store *Store
	cache *ristretto.Cache[int64, *Conversation]

	// mu orders cache fills against evictions. gen counts writes so a read
	// that raced with one is not cached.
	mu  sync.Mutex
	gen uint64
}

// NewBrowser creates a browser caching up to maxItems conversations
func NewBrowser(store *Store, maxItems int64) (*Browser, error) {
	if maxItems <= 0 {
		maxItems = DefaultListLimit
	}
	cache, err := ristretto.NewCache(&ristretto.Config[int64, *Conversation]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Browser{store: store, cache: cache}, nil
}

// List returns the newest conversations
func (b *Browser) List(ctx context.Context) ([]Summary, error) {
	return b.store.List(ctx, DefaultListLimit)
}

// Get returns a conversation, from the cache when possible. The returned
// value is a copy and may be modified by the caller.
func (b *Browser) Get(ctx context.Context, id int64) (*Conversation, error) {
	if c, ok := b.cache.Get(id); ok {
		return clone(c), nil
	}

	gen := b.generation()
	c, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b.remember(id, c, gen)
	return clone(c), nil
}

func (b *Browser) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// remember caches c unless a write happened since gen was read
func (b *Browser) remember(id int64, c *Conversation, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return
	}
	b.cache.Set(id, c, 1)
	b.cache.Wait()
}

func (b *Browser) evict(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.cache.Del(id)
}

// Insert stores a new conversation
func (b *Browser) Insert(ctx context.Context, title string, messages []llm.Message) (int64, error) {
	return b.store.Insert(ctx, title, messages)
}

// Update writes a conversation and evicts the cached copy
func (b *Browser) Update(ctx context.Context, id int64, title string, messages []llm.Message) error {
	err := b.store.Update(ctx, id, title, messages)
	b.evict(id)
	return err
}

// Delete removes a conversation and evicts it
func (b *Browser) Delete(ctx context.Context, id int64) error {
	err := b.store.Delete(ctx, id)
	b.evict(id)
	return err
}

// Invalidate evicts a conversation after it changed
func (b *Browser) Invalidate(id int64) {
	b.evict(id)
}

// Close releases the cache
func (b *Browser) Close() {
	b.cache.Close()
}

func clone(c *Conversation) *Conversation {
	out := *c
	out.Messages = llm.CloneMessages(c.Messages)
	return &out
}
