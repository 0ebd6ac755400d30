package debounce

import (
	"sync"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	db := New(
		WithWindow[string](20*time.Millisecond),
		WithKey[string](func(s string) string { return s }),
		WithFlush[string](func(items []string) {
			mu.Lock()
			batches = append(batches, items)
			mu.Unlock()
		}),
	)
	defer db.Stop()

	for i := 0; i < 5; i++ {
		db.Enqueue("session-a")
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		mu.Lock()
		n := len(batches)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batch never flushed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("batch count = %d, want 1", len(batches))
	}
	if len(batches[0]) != 5 {
		t.Errorf("batch size = %d, want 5", len(batches[0]))
	}
}

func TestDebouncer_KeysFlushIndependently(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	db := New(
		WithWindow[string](10*time.Millisecond),
		WithKey[string](func(s string) string { return s }),
		WithFlush[string](func(items []string) {
			mu.Lock()
			seen[items[0]] += len(items)
			mu.Unlock()
		}),
	)
	defer db.Stop()

	db.Enqueue("a")
	db.Enqueue("b")
	db.Enqueue("a")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != 2 || seen["b"] != 1 {
		t.Errorf("seen = %v, want a:2 b:1", seen)
	}
}

func TestDebouncer_ZeroWindowFlushesImmediately(t *testing.T) {
	var got []string
	db := New(WithFlush[string](func(items []string) { got = append(got, items...) }))
	defer db.Stop()

	db.Enqueue("x")
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("immediate flush got %v", got)
	}
}

func TestDebouncer_FlushKey(t *testing.T) {
	var mu sync.Mutex
	var flushed int
	db := New(
		WithWindow[string](time.Hour),
		WithKey[string](func(s string) string { return s }),
		WithFlush[string](func(items []string) {
			mu.Lock()
			flushed += len(items)
			mu.Unlock()
		}),
	)
	defer db.Stop()

	db.Enqueue("a")
	db.Enqueue("a")
	if db.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", db.Pending())
	}
	db.FlushKey("a")

	mu.Lock()
	defer mu.Unlock()
	if flushed != 2 {
		t.Errorf("flushed = %d, want 2", flushed)
	}
	if db.Pending() != 0 {
		t.Errorf("Pending after flush = %d, want 0", db.Pending())
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var mu sync.Mutex
	var flushed bool
	db := New(
		WithWindow[string](10*time.Millisecond),
		WithFlush[string](func([]string) {
			mu.Lock()
			flushed = true
			mu.Unlock()
		}),
	)
	db.Enqueue("a")
	db.Stop()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if flushed {
		t.Error("stopped debouncer should not flush")
	}
	db.Enqueue("b")
	if flushed {
		t.Error("enqueue after stop should be ignored")
	}
}
