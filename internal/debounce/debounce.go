// Package debounce coalesces bursts of items behind a quiet window, keyed
// so independent streams flush independently. The session subscriber uses
// it as a write-stability window over journal file notifications.
package debounce

import (
	"sync"
	"time"
)

// Debouncer batches items by key and flushes a batch once its key has been
// quiet for the window. A zero window flushes every item immediately.
type Debouncer[T any] struct {
	mu      sync.Mutex
	buffers map[string]*buffer[T]
	stopped bool

	window time.Duration
	key    func(item T) string
	flush  func(items []T)
}

type buffer[T any] struct {
	items []T
	timer *time.Timer
}

// Option configures a Debouncer.
type Option[T any] func(*Debouncer[T])

// WithWindow sets the quiet window.
func WithWindow[T any](d time.Duration) Option[T] {
	return func(db *Debouncer[T]) {
		if d < 0 {
			d = 0
		}
		db.window = d
	}
}

// WithKey sets the grouping function. Absent a key function every item
// shares one group.
func WithKey[T any](fn func(item T) string) Option[T] {
	return func(db *Debouncer[T]) {
		db.key = fn
	}
}

// WithFlush sets the callback receiving each flushed batch.
func WithFlush[T any](fn func(items []T)) Option[T] {
	return func(db *Debouncer[T]) {
		db.flush = fn
	}
}

// New returns a Debouncer with the given options.
func New[T any](opts ...Option[T]) *Debouncer[T] {
	db := &Debouncer[T]{buffers: make(map[string]*buffer[T])}
	for _, opt := range opts {
		opt(db)
	}
	if db.key == nil {
		db.key = func(T) string { return "default" }
	}
	if db.flush == nil {
		db.flush = func([]T) {}
	}
	return db
}

// Enqueue adds an item to its key's batch and restarts that key's window.
func (db *Debouncer[T]) Enqueue(item T) {
	db.mu.Lock()
	if db.stopped {
		db.mu.Unlock()
		return
	}

	key := db.key(item)
	if db.window == 0 {
		db.mu.Unlock()
		db.flush([]T{item})
		return
	}

	buf, ok := db.buffers[key]
	if !ok {
		buf = &buffer[T]{}
		db.buffers[key] = buf
	}
	buf.items = append(buf.items, item)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(db.window, func() {
		db.FlushKey(key)
	})
	db.mu.Unlock()
}

// FlushKey flushes a key's pending batch immediately.
func (db *Debouncer[T]) FlushKey(key string) {
	db.mu.Lock()
	buf, ok := db.buffers[key]
	if !ok || db.stopped {
		db.mu.Unlock()
		return
	}
	delete(db.buffers, key)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	items := buf.items
	db.mu.Unlock()

	if len(items) > 0 {
		db.flush(items)
	}
}

// Pending returns the number of keys with unflushed batches.
func (db *Debouncer[T]) Pending() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.buffers)
}

// Stop cancels all pending timers and drops their batches.
func (db *Debouncer[T]) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stopped = true
	for key, buf := range db.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(db.buffers, key)
	}
}
