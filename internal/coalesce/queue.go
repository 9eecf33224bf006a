// Package coalesce collapses bursts of writes to the same key into one.
package coalesce

import (
	"sync"
	"time"
)

// Queue delays keyed work until the key has been quiet for the configured
// delay. Scheduling again replaces the pending function and restarts the
// timer. Executions are serialized, so two writes never overlap.
type Queue struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*task
	closed  bool

	runMu sync.Mutex
}

type task struct {
	fn    func()
	timer *time.Timer
}

// New creates a queue with the given quiet period
func New(delay time.Duration) *Queue {
	return &Queue{
		delay:   delay,
		pending: make(map[string]*task),
	}
}

// Schedule replaces any pending work for key. It reports false once the
// queue is closed.
func (q *Queue) Schedule(key string, fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if old, ok := q.pending[key]; ok {
		old.timer.Stop()
	}

	t := &task{fn: fn}
	t.timer = time.AfterFunc(q.delay, func() { q.fire(key, t) })
	q.pending[key] = t
	return true
}

func (q *Queue) fire(key string, t *task) {
	q.mu.Lock()
	if q.pending[key] != t {
		// Replaced, flushed or cancelled while the timer was firing.
		q.mu.Unlock()
		return
	}
	delete(q.pending, key)
	q.mu.Unlock()

	q.run(t.fn)
}

func (q *Queue) run(fn func()) {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	fn()
}

// Flush runs the pending work for key now, in the caller's goroutine
func (q *Queue) Flush(key string) {
	q.mu.Lock()
	t, ok := q.pending[key]
	if ok {
		t.timer.Stop()
		delete(q.pending, key)
	}
	q.mu.Unlock()

	if ok {
		q.run(t.fn)
	}
}

// FlushAll runs every pending function
func (q *Queue) FlushAll() {
	q.mu.Lock()
	tasks := make([]*task, 0, len(q.pending))
	for key, t := range q.pending {
		t.timer.Stop()
		tasks = append(tasks, t)
		delete(q.pending, key)
	}
	q.mu.Unlock()

	for _, t := range tasks {
		q.run(t.fn)
	}
}

// Cancel drops the pending work for key without running it
func (q *Queue) Cancel(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.pending[key]; ok {
		t.timer.Stop()
		delete(q.pending, key)
	}
}

// Pending reports whether work is waiting for key
func (q *Queue) Pending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Close flushes everything and rejects further scheduling
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.FlushAll()

	// Wait for a timer callback that already started running.
	q.runMu.Lock()
	q.runMu.Unlock()
}
