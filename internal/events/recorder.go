// Package events stamps and routes engine events. Lifecycle events land
// in both the session journal and the per-turn trace file; high-volume
// diagnostic records (raw provider exchanges, processing work records,
// system warnings) go to the trace only, keeping journals small enough
// for the constant-probe status reads.
package events

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/observability"
	"github.com/machellerogden/thinksuit-sub000/internal/sessions"
	"github.com/machellerogden/thinksuit-sub000/internal/trace"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Recorder is the single write path for events during a turn.
type Recorder struct {
	registry *sessions.Registry
	traces   *trace.Sink
	metrics  *observability.Metrics
	logger   *slog.Logger
	pid      int
}

// NewRecorder wires the journal registry and trace sink together.
// Metrics may be nil.
func NewRecorder(registry *sessions.Registry, traces *trace.Sink, metrics *observability.Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		registry: registry,
		traces:   traces,
		metrics:  metrics,
		logger:   logger,
		pid:      os.Getpid(),
	}
}

// Record stamps the event and routes it. The stamped event is returned
// so callers can reference its eventId (fork metadata keys on it).
// Journal write failures are returned; trace writes are best-effort.
func (r *Recorder) Record(ev models.Event) (models.Event, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.EventID == "" {
		ev.EventID = models.NewEventID()
	}
	if ev.PID == 0 {
		ev.PID = r.pid
	}

	r.logger.Debug("event", "event", ev.Event, "sessionId", ev.SessionID, "traceId", ev.TraceID)

	if r.traces != nil && ev.TraceID != "" {
		r.traces.Write(ev)
	}

	if !JournalBound(ev.Event) {
		return ev, nil
	}
	if ev.SessionID == "" {
		r.logger.Warn("journal-bound event without session", "event", ev.Event)
		return ev, nil
	}
	j, err := r.registry.Journal(ev.SessionID)
	if err != nil {
		return ev, err
	}
	if err := j.Append(ev); err != nil {
		return ev, err
	}
	if r.metrics != nil {
		r.metrics.JournalAppends.Inc()
	}
	return ev, nil
}

// JournalBound reports whether an event name belongs in the session
// journal. Lifecycle domains qualify; `.trace` point records and the
// diagnostic domains never do.
func JournalBound(name models.EventName) bool {
	s := string(name)
	if strings.HasSuffix(s, ".trace") {
		return false
	}
	for _, prefix := range []string{"session.", "orchestration.", "pipeline.", "execution."} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
