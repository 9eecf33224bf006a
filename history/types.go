package history

import (
	"errors"
	"time"

	"github.com/nachoal/kitgpt-go/llm"
)

// UntitledTitle is stored when a conversation has no title yet
const UntitledTitle = "Untitled"

// DefaultListLimit caps history listings
const DefaultListLimit = 100

// ErrNotFound is returned when no conversation has the requested id
var ErrNotFound = errors.New("conversation not found")

// Conversation is a persisted conversation
type Conversation struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Messages     []llm.Message `json:"messages"`
	Started      time.Time     `json:"started"`
	LastAccessed time.Time     `json:"last_accessed"`
}

// Summary is the metadata shown in history listings
type Summary struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	Started time.Time `json:"started"`
}
