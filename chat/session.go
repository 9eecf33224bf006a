// Package chat implements the conversation engine: the active message list,
// the response stream, follow-up suggestions, titles and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nachoal/kitgpt-go/history"
	"github.com/nachoal/kitgpt-go/internal/coalesce"
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/provider"
	"github.com/nachoal/kitgpt-go/tools/registry"
)

// ErrNoModelSelected is reported when a response is needed but no model is set
var ErrNoModelSelected = errors.New("no model selected")

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// Repository persists conversations
type Repository interface {
	Insert(ctx context.Context, title string, messages []llm.Message) (int64, error)
	Update(ctx context.Context, id int64, title string, messages []llm.Message) error
	Get(ctx context.Context, id int64) (*history.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

const (
	defaultSuggestionCount    = 5
	defaultSuggestionLookback = 4
	defaultTitleThreshold     = 50
	defaultPersistDelay       = 300 * time.Millisecond
)

// Session is one chat. All state lives here; mutations are serialized by
// its mutex and the events they cause are delivered in order after it is
// released.
type Session struct {
	mu     sync.Mutex
	outbox []Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	logger     zerolog.Logger
	dispatcher *dispatcher
	tools      *registry.Registry
	repo       Repository
	queue      *coalesce.Queue

	model        *provider.Handle
	systemPrompt string

	suggestionCount    int
	suggestionLookback int
	titleThreshold     int
	persistDelay       time.Duration

	store  store
	status Status
	// toolDisplay names the tool being called while status is CallingTool
	toolDisplay string
	draft       string

	stream *streamHandle

	// lastLen is the store length seen by the last reaction
	lastLen int
	// suggestedFor is the store length suggestions were last triggered for
	suggestedFor       int
	suggestions        *Suggestions
	suggestGen         uint64
	suggestCancel      context.CancelFunc
	selectedSuggestion string

	title        string
	titlePending bool

	// epoch changes whenever the active conversation is replaced
	epoch          uint64
	conversationID int64
	inserting      *insertJob
	// unsaved is set while an update is queued and not yet snapshotted
	unsaved bool
}

// Option configures a Session
type Option func(*Session)

// WithModel sets the model used for responses, suggestions and titles
func WithModel(h *provider.Handle) Option {
	return func(s *Session) {
		s.model = h
	}
}

// WithSystemPrompt sets the system prompt sent with responses
func WithSystemPrompt(prompt string) Option {
	return func(s *Session) {
		s.systemPrompt = prompt
	}
}

// WithTools exposes the registry's tools to the model
func WithTools(r *registry.Registry) Option {
	return func(s *Session) {
		s.tools = r
	}
}

// WithRepository persists the conversation
func WithRepository(repo Repository) Option {
	return func(s *Session) {
		s.repo = repo
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithObserver registers the host's event handler
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.dispatcher = newDispatcher(o)
		}
	}
}

// WithPersistDelay sets the quiet period before an update is written
func WithPersistDelay(d time.Duration) Option {
	return func(s *Session) {
		s.persistDelay = d
	}
}

// WithSuggestionCount sets how many follow-up questions are requested.
// Zero disables automatic suggestions.
func WithSuggestionCount(n int) Option {
	return func(s *Session) {
		s.suggestionCount = n
	}
}

// WithSuggestionLookback sets how many recent messages suggestions see
func WithSuggestionLookback(n int) Option {
	return func(s *Session) {
		s.suggestionLookback = n
	}
}

// WithTitleThreshold sets the content length that triggers a title. Zero
// disables titles.
func WithTitleThreshold(n int) Option {
	return func(s *Session) {
		s.titleThreshold = n
	}
}

// New creates an empty session
func New(opts ...Option) *Session {
	s := &Session{
		logger:             zerolog.Nop(),
		suggestionCount:    defaultSuggestionCount,
		suggestionLookback: defaultSuggestionLookback,
		titleThreshold:     defaultTitleThreshold,
		persistDelay:       defaultPersistDelay,
		status:             StatusReady,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "chat").Logger()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = coalesce.New(s.persistDelay)
	return s
}

// lock and unlock bracket every state change. Events queued in between are
// handed to the dispatcher before the lock is released so that order is kept.
func (s *Session) lock() {
	s.mu.Lock()
}

func (s *Session) unlock() {
	events := s.outbox
	s.outbox = nil
	if s.dispatcher != nil {
		s.dispatcher.send(events)
	}
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	s.outbox = append(s.outbox, ev)
}

// Submit appends a user message. It starts a response, cancelling the
// one in progress.
func (s *Session) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty message")
	}
	return s.Append(llm.Message{Role: llm.RoleUser, Content: text})
}

// Append adds a message. A user message starts a response.
func (s *Session) Append(msg llm.Message) error {
	s.lock()
	defer s.unlock()

	if s.closed {
		return ErrClosed
	}
	s.emit(s.store.push(msg))
	if msg.Role == llm.RoleUser {
		s.setDraftLocked("")
		s.startResponseLocked()
	}
	s.changedLocked()
	return nil
}

// Abort cancels the response in progress. Aborting an idle session does nothing.
func (s *Session) Abort() {
	s.lock()
	defer s.unlock()

	if s.stream == nil {
		return
	}
	s.abortLocked()
	s.setStatusLocked(StatusReady)
	s.reactLocked()
}

// Reset starts a new, empty conversation
func (s *Session) Reset() {
	s.lock()
	key := s.switchLocked(nil, 0, "")
	s.unlock()
	s.flushFinal(key)
}

// Load replaces the active conversation with a stored one
func (s *Session) Load(ctx context.Context, id int64) error {
	if s.repo == nil {
		return errors.New("no repository configured")
	}
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	title := conv.Title
	if title == history.UntitledTitle {
		title = ""
	}

	s.lock()
	if s.closed {
		s.unlock()
		return ErrClosed
	}
	key := s.switchLocked(conv.Messages, conv.ID, title)
	s.unlock()
	s.flushFinal(key)
	return nil
}

// DeleteConversation removes a stored conversation. Deleting the active one
// also resets the session.
func (s *Session) DeleteConversation(ctx context.Context, id int64) error {
	if s.repo == nil {
		return errors.New("no repository configured")
	}

	s.lock()
	active := id != 0 && id == s.conversationID
	var key string
	if active {
		// Drop the pending write instead of flushing it into a deleted row.
		s.queue.Cancel(conversationKey(id))
		s.conversationID = 0
		key = s.switchLocked(nil, 0, "")
	}
	s.unlock()
	s.flushFinal(key)

	return s.repo.Delete(ctx, id)
}

// switchLocked replaces the conversation: it aborts the stream, stops the
// side tasks, hands the last state of the old conversation to the write
// queue and installs the new one. The returned key must be flushed after
// unlocking.
func (s *Session) switchLocked(messages []llm.Message, id int64, title string) string {
	s.abortLocked()
	s.cancelSuggestionsLocked()
	key := s.finalWriteLocked()

	s.epoch++
	s.unsaved = false
	s.conversationID = id
	s.title = title
	s.titlePending = false
	s.suggestions = nil
	s.selectedSuggestion = ""
	s.suggestedFor = 0
	s.toolDisplay = ""

	s.emit(s.store.replace(llm.CloneMessages(messages)))
	s.lastLen = s.store.len()
	s.emit(Event{Type: EventTitle, Title: s.title})
	s.emit(Event{Type: EventSuggestions})
	s.emitActionsLocked()
	s.setStatusLocked(StatusReady)
	s.reactLocked()
	return key
}

// Messages returns a copy of the message list
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.snapshot()
}

// Status returns the current status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Footer renders the status for display
func (s *Session) Footer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.footerLocked()
}

func (s *Session) footerLocked() string {
	switch s.status {
	case StatusResponding:
		name := "AI"
		if s.model != nil && s.model.ProviderName != "" {
			name = s.model.ProviderName
		}
		return name + " is responding..."
	case StatusCallingTool:
		if s.toolDisplay != "" {
			return s.toolDisplay + "..."
		}
		return "Calling custom tool..."
	}
	return string(s.status)
}

// Title returns the conversation title, empty until one is set
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// ConversationID returns the stored id, zero before the first insert
func (s *Session) ConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// StreamActive reports whether a response is in progress
func (s *Session) StreamActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Draft returns the unsent text proposed by a suggestion action
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Model returns the selected model, nil when none
func (s *Session) Model() *provider.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel changes the model for subsequent requests
func (s *Session) SetModel(h *provider.Handle) {
	s.lock()
	defer s.unlock()
	s.model = h
	s.emit(Event{Type: EventRefresh})
	s.maybeTitleLocked()
}

// SetSystemPrompt changes the system prompt for subsequent responses
func (s *Session) SetSystemPrompt(prompt string) {
	s.lock()
	defer s.unlock()
	s.systemPrompt = prompt
}

// Wait blocks until background work started so far has finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close aborts all work, writes the conversation and stops event delivery
func (s *Session) Close() error {
	s.lock()
	if s.closed {
		s.unlock()
		return nil
	}
	s.closed = true
	s.abortLocked()
	s.cancelSuggestionsLocked()
	key := s.finalWriteLocked()
	s.epoch++
	s.unlock()

	s.cancel()
	s.flushFinal(key)
	s.wg.Wait()
	s.queue.Close()
	if s.dispatcher != nil {
		s.dispatcher.close()
	}
	return nil
}

func (s *Session) setStatusLocked(status Status) {
	if s.status == status && status != StatusCallingTool {
		return
	}
	s.status = status
	s.emit(Event{Type: EventStatus, Status: status, Footer: s.footerLocked()})
}

func (s *Session) setDraftLocked(text string) {
	if s.draft == text {
		return
	}
	s.draft = text
	s.emit(Event{Type: EventDraft, Draft: text})
}

// changedLocked runs after every content mutation
func (s *Session) changedLocked() {
	s.reactLocked()
	s.persistLocked()
}

// reactLocked applies the standing rules to the current state. Each rule
// acts on a transition, tracked through lastLen and suggestedFor, so
// calling it repeatedly is safe.
func (s *Session) reactLocked() {
	n := s.store.len()
	if n != s.lastLen {
		s.lastLen = n
		s.clearSuggestionsLocked()
	}

	if n > 0 && s.store.tail() == llm.RoleAssistant && s.stream == nil && s.suggestedFor != n {
		s.suggestedFor = n
		s.startSuggestionsLocked()
	}

	s.maybeTitleLocked()
}

func (s *Session) providerName() string {
	if s.model == nil || s.model.ProviderName == "" {
		return "the model"
	}
	return s.model.ProviderName
}

func (s *Session) reportLocked(err error) {
	s.logger.Error().Err(err).Msg("response failed")
	s.emit(Event{
		Type: EventError,
		Err:  fmt.Errorf("an error occurred while generating a response from %s: %w", s.providerName(), err),
	})
	s.emit(Event{Type: EventRefresh})
}
