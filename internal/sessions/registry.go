package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/machellerogden/thinksuit-sub000/internal/journal"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// ReasonBusy is returned when acquisition loses to an in-flight turn.
const ReasonBusy = "currently processing"

// ErrInvalidSessionID rejects IDs that do not match the canonical shape.
var ErrInvalidSessionID = errors.New("sessions: invalid session id")

// Registry provides session operations over a base directory. All journal
// writes go through one shared stream manager so per-file appends are
// serialized.
type Registry struct {
	base    string
	streams *journal.Streams
	logger  *slog.Logger
}

// NewRegistry returns a Registry rooted at base.
func NewRegistry(base string, streams *journal.Streams, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{base: base, streams: streams, logger: logger}
}

// Base returns the session base directory.
func (r *Registry) Base() string { return r.base }

// Journal returns the journal for a session ID.
func (r *Registry) Journal(sessionID string) (*journal.Journal, error) {
	path, err := JournalPath(r.base, sessionID)
	if err != nil {
		return nil, err
	}
	return journal.New(path, r.streams, r.logger), nil
}

// AcquireResult reports one acquisition attempt.
type AcquireResult struct {
	SessionID string
	Acquired  bool
	IsNew     bool
	Status    models.SessionStatus
	Reason    string
}

// Acquire takes a session for one turn. An empty ID generates a new one.
// Fresh sessions (missing or zero-length journals) get a session.pending
// event appended as the visible acquisition mark; a busy session is not
// acquired; every other status is acquired without a duplicate pending
// event. Best effort: the guard is status-check order plus the pending
// append, not a cross-process lock.
func (r *Registry) Acquire(sessionID string) (AcquireResult, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	} else if !ValidSessionID(sessionID) {
		return AcquireResult{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	md, err := r.GetMetadata(sessionID)
	if err != nil {
		return AcquireResult{}, err
	}

	switch md.Status {
	case models.StatusNotFound, models.StatusEmpty:
		j, err := r.Journal(sessionID)
		if err != nil {
			return AcquireResult{}, err
		}
		ev := models.Event{
			Time:      time.Now().UTC(),
			Event:     models.EventSessionPending,
			SessionID: sessionID,
			EventID:   models.NewEventID(),
			PID:       os.Getpid(),
		}
		if err := j.Append(ev); err != nil {
			return AcquireResult{}, err
		}
		return AcquireResult{SessionID: sessionID, Acquired: true, IsNew: true, Status: models.StatusInitialized}, nil

	case models.StatusBusy:
		return AcquireResult{SessionID: sessionID, Acquired: false, Status: md.Status, Reason: ReasonBusy}, nil

	default:
		return AcquireResult{SessionID: sessionID, Acquired: true, Status: md.Status}, nil
	}
}

// GetMetadata is the O(constant) probe: head and tail lines plus derived
// status, without reading the journal body.
func (r *Registry) GetMetadata(sessionID string) (models.SessionMetadata, error) {
	j, err := r.Journal(sessionID)
	if err != nil {
		return models.SessionMetadata{}, err
	}
	info, err := j.Stat()
	if err != nil {
		return models.SessionMetadata{}, err
	}

	var first, second, last string
	if info.Exists && info.Size > 0 {
		first, second, last, err = j.ReadFirstSecondLast()
		if err != nil {
			return models.SessionMetadata{}, err
		}
	}

	status, f, s, l := statusFromProbe(info.Exists, info.Size, first, second, last)
	return models.SessionMetadata{
		SessionID: sessionID,
		Status:    status,
		First:     f,
		Second:    s,
		Last:      l,
		Path:      j.Path(),
	}, nil
}

// LoadThread reconstructs the conversation by projecting session.input
// events to user messages and session.response events to assistant
// messages, in journal order. A missing journal yields an empty thread.
func (r *Registry) LoadThread(sessionID string) (models.Thread, error) {
	j, err := r.Journal(sessionID)
	if err != nil {
		return nil, err
	}
	events, err := j.ReadEvents()
	if err != nil {
		return nil, err
	}

	var thread models.Thread
	for _, ev := range events {
		switch ev.Event {
		case models.EventSessionInput:
			if text, ok := ev.Data["input"].(string); ok {
				thread = append(thread, models.UserMessage(text))
			}
		case models.EventSessionResponse:
			if text, ok := ev.Data["response"].(string); ok {
				thread = append(thread, models.AssistantMessage(text))
			}
		}
	}
	return thread, nil
}

// ListOptions bounds a session listing.
type ListOptions struct {
	From        time.Time
	To          time.Time
	SortOrder   string // "asc" or "desc" (default)
	Limit       int
	Concurrency int
}

// List walks only the hour directories overlapping the window, filters by
// the timestamp embedded in each filename, and probes metadata with
// bounded concurrency.
func (r *Registry) List(ctx context.Context, opts ListOptions) ([]models.SessionMetadata, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.To.IsZero() {
		opts.To = time.Now().UTC().Add(time.Hour)
	}

	ids, err := r.candidateIDs(opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	// Lexicographic order is chronological order for these IDs.
	sort.Strings(ids)
	if opts.SortOrder != "asc" {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	results := make([]models.SessionMetadata, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			md, err := r.GetMetadata(id)
			if err != nil {
				r.logger.Warn("session metadata probe failed", "sessionId", id, "error", err)
				md = models.SessionMetadata{SessionID: id, Status: models.StatusMalformed}
			}
			results[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// candidateIDs prunes the YYYY/MM/DD/HH tree against [from, to] and
// collects session IDs from matching hour directories.
func (r *Registry) candidateIDs(from, to time.Time) ([]string, error) {
	var ids []string

	years, err := readDirNames(r.base)
	if err != nil {
		return nil, err
	}
	for _, year := range years {
		months, err := readDirNames(filepath.Join(r.base, year))
		if err != nil {
			continue
		}
		for _, month := range months {
			days, err := readDirNames(filepath.Join(r.base, year, month))
			if err != nil {
				continue
			}
			for _, day := range days {
				hours, err := readDirNames(filepath.Join(r.base, year, month, day))
				if err != nil {
					continue
				}
				for _, hour := range hours {
					hourStart, err := time.Parse("2006/01/02/15", year+"/"+month+"/"+day+"/"+hour)
					if err != nil {
						continue
					}
					if hourStart.Add(time.Hour).Before(from) || hourStart.After(to) {
						continue
					}
					dir := filepath.Join(r.base, year, month, day, hour)
					entries, err := os.ReadDir(dir)
					if err != nil {
						continue
					}
					for _, e := range entries {
						name := e.Name()
						if e.IsDir() || filepath.Ext(name) != ".jsonl" {
							continue
						}
						id := name[:len(name)-len(".jsonl")]
						ts, err := SessionIDTime(id)
						if err != nil {
							continue
						}
						if ts.Before(from) || ts.After(to) {
							continue
						}
						ids = append(ids, id)
					}
				}
			}
		}
	}
	return ids, nil
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// readMeta loads the sidecar document, returning a zero value when absent.
func (r *Registry) readMeta(sessionID string) (models.SessionMeta, error) {
	path, err := MetaPath(r.base, sessionID)
	if err != nil {
		return models.SessionMeta{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.SessionMeta{}, nil
		}
		return models.SessionMeta{}, err
	}
	var meta models.SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return models.SessionMeta{}, err
	}
	return meta, nil
}

// writeMeta stores the sidecar document next to the journal.
func (r *Registry) writeMeta(sessionID string, meta models.SessionMeta) error {
	path, err := MetaPath(r.base, sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// IsForked reports whether the session was created by forking another.
func (r *Registry) IsForked(sessionID string) bool {
	meta, err := r.readMeta(sessionID)
	if err != nil {
		return false
	}
	return meta.Source != nil
}
