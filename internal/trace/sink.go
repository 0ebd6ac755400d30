// Package trace persists per-turn execution traces as JSONL files. Every
// turn gets one file named by its trace ID holding the full event stream,
// including the trace-only records (raw provider exchanges, processing
// work records, system warnings) that never reach the session journal.
package trace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/machellerogden/thinksuit-sub000/internal/journal"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Sink writes trace events. One file per trace ID under the base
// directory, sharing the lazily-opened stream pool with session
// journals so shutdown flushes both at once.
type Sink struct {
	base    string
	streams *journal.Streams
	logger  *slog.Logger
}

// NewSink returns a sink rooted at base.
func NewSink(base string, streams *journal.Streams, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{base: base, streams: streams, logger: logger}
}

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return "tr-" + uuid.NewString()
}

// Path returns the file location for a trace ID.
func (s *Sink) Path(traceID string) (string, error) {
	if traceID == "" || strings.ContainsAny(traceID, "/\\") {
		return "", fmt.Errorf("invalid trace id %q", traceID)
	}
	return filepath.Join(s.base, traceID+".jsonl"), nil
}

// Write appends one event to its trace file. Events without a trace ID
// are dropped with a warning rather than failing the caller; tracing is
// diagnostic, not load-bearing.
func (s *Sink) Write(ev models.Event) {
	path, err := s.Path(ev.TraceID)
	if err != nil {
		s.logger.Warn("dropping trace event", "event", ev.Event, "error", err)
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("dropping unmarshalable trace event", "event", ev.Event, "error", err)
		return
	}
	if err := s.streams.Append(path, line); err != nil {
		s.logger.Warn("trace write failed", "path", path, "error", err)
	}
}

// Read loads all events of one trace in order. Malformed lines are
// skipped, matching journal read semantics.
func (s *Sink) Read(traceID string) ([]models.Event, error) {
	path, err := s.Path(traceID)
	if err != nil {
		return nil, err
	}
	return journal.New(path, s.streams, s.logger).ReadEvents()
}
