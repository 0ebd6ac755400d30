package events

import (
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Scope is one open boundary: the window between a boundary_start event
// and its matching boundary_end. Scopes nest through ParentID; the
// balanced-pairs invariant holds as long as every Begin gets exactly one
// End.
type Scope struct {
	ID        string
	ParentID  string
	Type      models.BoundaryType
	SessionID string
	TraceID   string

	rec     *Recorder
	started time.Time
}

// Begin opens a boundary and emits its start event.
func (r *Recorder) Begin(sessionID, traceID, parentID string, bt models.BoundaryType, name models.EventName, data map[string]any) *Scope {
	scope := &Scope{
		ID:        models.NewBoundaryID(bt),
		ParentID:  parentID,
		Type:      bt,
		SessionID: sessionID,
		TraceID:   traceID,
		rec:       r,
		started:   time.Now(),
	}
	r.Record(models.Event{
		Event:            name,
		SessionID:        sessionID,
		TraceID:          traceID,
		BoundaryID:       scope.ID,
		ParentBoundaryID: parentID,
		EventRole:        models.EventRoleBoundaryStart,
		BoundaryType:     bt,
		Data:             data,
	})
	return scope
}

// End closes the boundary with the given event name, stamping the
// elapsed time into the payload.
func (s *Scope) End(name models.EventName, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["elapsedMs"]; !ok {
		data["elapsedMs"] = time.Since(s.started).Milliseconds()
	}
	s.rec.Record(models.Event{
		Event:            name,
		SessionID:        s.SessionID,
		TraceID:          s.TraceID,
		BoundaryID:       s.ID,
		ParentBoundaryID: s.ParentID,
		EventRole:        models.EventRoleBoundaryEnd,
		BoundaryType:     s.Type,
		Data:             data,
	})
}

// Point emits a non-boundary event inside this scope.
func (s *Scope) Point(name models.EventName, data map[string]any) {
	s.rec.Record(models.Event{
		Event:            name,
		SessionID:        s.SessionID,
		TraceID:          s.TraceID,
		ParentBoundaryID: s.ID,
		Data:             data,
	})
}

// Elapsed reports how long the scope has been open.
func (s *Scope) Elapsed() time.Duration {
	return time.Since(s.started)
}
