package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestStreams_AppendCreatesDirectories(t *testing.T) {
	streams := NewStreams(4, nil)
	defer streams.Close()

	path := filepath.Join(t.TempDir(), "2025", "01", "02", "03", "s.jsonl")
	if err := streams.Append(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "{\"a\":1}\n" {
		t.Errorf("content = %q", data)
	}
}

func TestStreams_LRUEviction(t *testing.T) {
	streams := NewStreams(2, nil)
	defer streams.Close()
	dir := t.TempDir()

	paths := make([]string, 4)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("s%d.jsonl", i))
		if err := streams.Append(paths[i], []byte(`{"n":1}`)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// The first stream was evicted; appending again must transparently reopen.
	if err := streams.Append(paths[0], []byte(`{"n":2}`)); err != nil {
		t.Fatalf("append after eviction: %v", err)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("line count after reopen = %d, want 2", got)
	}
}

func TestStreams_ConcurrentAppendsSerialize(t *testing.T) {
	streams := NewStreams(4, nil)
	defer streams.Close()
	path := filepath.Join(t.TempDir(), "s.jsonl")

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				line := fmt.Sprintf(`{"writer":%d,"i":%d}`, w, i)
				if err := streams.Append(path, []byte(line)); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("line count = %d, want %d", len(lines), writers*perWriter)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, `{"writer":`) || !strings.HasSuffix(line, "}") {
			t.Fatalf("line %d torn: %q", i, line)
		}
	}
}

func TestStreams_CloseRejectsAppends(t *testing.T) {
	streams := NewStreams(4, nil)
	path := filepath.Join(t.TempDir(), "s.jsonl")
	if err := streams.Append(path, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := streams.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := streams.Append(path, []byte(`{}`)); err == nil {
		t.Error("append after close should fail")
	}
}

func TestStreams_FlushAll(t *testing.T) {
	streams := NewStreams(4, nil)
	defer streams.Close()
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("s%d.jsonl", i))
		if err := streams.Append(path, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := streams.FlushAll(); err != nil {
		t.Errorf("FlushAll: %v", err)
	}
}
