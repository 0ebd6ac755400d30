package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	streams := NewStreams(4, nil)
	t.Cleanup(func() { streams.Close() })
	path := filepath.Join(t.TempDir(), "2025", "03", "01", "12", "session.jsonl")
	return New(path, streams, nil)
}

func writeFile(t *testing.T, j *Journal, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(j.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(j.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestJournal_AppendAndRead(t *testing.T) {
	j := newTestJournal(t)

	events := []models.Event{
		{Time: time.Now().UTC(), Event: models.EventSessionPending, SessionID: "s1", EventID: "e1"},
		{Time: time.Now().UTC(), Event: models.EventSessionInput, SessionID: "s1", EventID: "e2",
			Data: map[string]any{"input": "hello"}},
	}
	for _, ev := range events {
		if err := j.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := j.ReadEvents()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("event count = %d, want 2", len(got))
	}
	if got[0].Event != models.EventSessionPending || got[1].Event != models.EventSessionInput {
		t.Errorf("events out of order: %v, %v", got[0].Event, got[1].Event)
	}
	if got[1].Data["input"] != "hello" {
		t.Errorf("payload lost: %v", got[1].Data)
	}
}

func TestJournal_MissingFileReadsEmpty(t *testing.T) {
	j := newTestJournal(t)

	if lines, err := j.ReadLines(); err != nil || lines != nil {
		t.Errorf("ReadLines = (%v, %v), want (nil, nil)", lines, err)
	}
	first, second, last, err := j.ReadFirstSecondLast()
	if err != nil || first != "" || second != "" || last != "" {
		t.Errorf("probe on missing file = (%q, %q, %q, %v)", first, second, last, err)
	}
	info, err := j.Stat()
	if err != nil || info.Exists {
		t.Errorf("Stat = (%+v, %v), want not-exists", info, err)
	}
}

func TestJournal_ReadFirstSecondLast(t *testing.T) {
	tests := []struct {
		name    string
		content string
		first   string
		second  string
		last    string
	}{
		{"one line", `{"event":"session.pending"}` + "\n", `{"event":"session.pending"}`, "", `{"event":"session.pending"}`},
		{"one unterminated line", `{"a":1}`, `{"a":1}`, "", `{"a":1}`},
		{"two lines", "{\"a\":1}\n{\"b\":2}\n", `{"a":1}`, `{"b":2}`, `{"b":2}`},
		{"three lines", "{\"a\":1}\n{\"b\":2}\n{\"c\":3}\n", `{"a":1}`, `{"b":2}`, `{"c":3}`},
		{"empty file", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJournal(t)
			if tt.content != "" {
				writeFile(t, j, tt.content)
			} else {
				writeFile(t, j, "")
			}
			first, second, last, err := j.ReadFirstSecondLast()
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if first != tt.first || second != tt.second || last != tt.last {
				t.Errorf("probe = (%q, %q, %q), want (%q, %q, %q)",
					first, second, last, tt.first, tt.second, tt.last)
			}
		})
	}
}

func TestJournal_ReadLinesFrom(t *testing.T) {
	j := newTestJournal(t)
	writeFile(t, j, "{\"a\":1}\n{\"b\":2}\n{\"c\":3}\n")

	tests := []struct {
		index int
		want  int
	}{
		{0, 3},
		{1, 2},
		{2, 1},
		{3, 0},  // index == lineCount
		{10, 0}, // index > lineCount
	}
	for _, tt := range tests {
		lines, err := j.ReadLinesFrom(tt.index)
		if err != nil {
			t.Fatalf("ReadLinesFrom(%d): %v", tt.index, err)
		}
		if len(lines) != tt.want {
			t.Errorf("ReadLinesFrom(%d) = %d lines, want %d", tt.index, len(lines), tt.want)
		}
	}

	lines, _ := j.ReadLinesFrom(1)
	if lines[0] != `{"b":2}` {
		t.Errorf("first returned line = %q, want {\"b\":2}", lines[0])
	}
}

func TestJournal_MalformedLinesSkipped(t *testing.T) {
	j := newTestJournal(t)
	writeFile(t, j, "{\"event\":\"session.pending\",\"eventId\":\"e1\"}\nnot json at all\n{\"event\":\"session.input\",\"eventId\":\"e2\"}\n")

	events, err := j.ReadEvents()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2 (malformed line skipped)", len(events))
	}
	if events[0].EventID != "e1" || events[1].EventID != "e2" {
		t.Errorf("wrong events survived: %+v", events)
	}
}

func TestJournal_LineCount(t *testing.T) {
	j := newTestJournal(t)
	writeFile(t, j, "a\nb\nc\n")
	n, err := j.LineCount()
	if err != nil || n != 3 {
		t.Errorf("LineCount = (%d, %v), want 3", n, err)
	}
}
