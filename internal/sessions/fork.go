package sessions

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// forkPointError is the domain failure for forking anywhere but a
// completed turn.
const forkPointError = "Can only fork from turn.complete events"

// ForkResult reports one fork attempt. Domain failures set Error; only
// I/O problems surface as Go errors.
type ForkResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Fork creates a new session from the prefix [0..forkPoint] of sourceID's
// journal. The fork point must be a session.turn.complete event. Lines are
// copied with only sessionId rewritten and sourceSessionId added, so the
// copied journal's final line keeps the new session ready. Lineage is
// recorded in both sidecars; neither journal gets a synthetic event.
func (r *Registry) Fork(sourceID string, forkPoint int) (ForkResult, error) {
	j, err := r.Journal(sourceID)
	if err != nil {
		return ForkResult{}, err
	}
	lines, err := j.ReadLines()
	if err != nil {
		return ForkResult{}, err
	}
	if forkPoint < 0 || forkPoint >= len(lines) {
		return ForkResult{Error: fmt.Sprintf("fork point %d out of range (0..%d)", forkPoint, len(lines)-1)}, nil
	}

	var forkEvent map[string]any
	if err := json.Unmarshal([]byte(lines[forkPoint]), &forkEvent); err != nil {
		return ForkResult{Error: fmt.Sprintf("fork point %d is not a parsable event", forkPoint)}, nil
	}
	if name, _ := forkEvent["event"].(string); name != string(models.EventSessionTurnComplete) {
		return ForkResult{Error: forkPointError}, nil
	}
	forkEventID, _ := forkEvent["eventId"].(string)

	newID := NewSessionID()
	newJournal, err := r.Journal(newID)
	if err != nil {
		return ForkResult{}, err
	}

	for i := 0; i <= forkPoint; i++ {
		var record map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &record); err != nil {
			r.logger.Warn("skipping malformed line during fork",
				"sessionId", sourceID, "line", i, "error", err)
			continue
		}
		record["sessionId"] = newID
		record["sourceSessionId"] = sourceID
		out, err := json.Marshal(record)
		if err != nil {
			return ForkResult{}, err
		}
		if err := newJournal.AppendRaw(out); err != nil {
			return ForkResult{}, err
		}
	}

	now := time.Now().UTC()

	sourceMeta, err := r.readMeta(sourceID)
	if err != nil {
		return ForkResult{}, err
	}
	if sourceMeta.Forks == nil {
		sourceMeta.Forks = make(map[string][]models.ForkRecord)
	}
	children := append(sourceMeta.Forks[forkEventID], models.ForkRecord{
		SessionID: newID,
		Time:      now,
		ForkPoint: forkPoint,
	})
	sort.Slice(children, func(i, k int) bool { return children[i].Time.Before(children[k].Time) })
	sourceMeta.Forks[forkEventID] = children
	if err := r.writeMeta(sourceID, sourceMeta); err != nil {
		return ForkResult{}, err
	}

	newMeta := models.SessionMeta{
		Source: &models.ForkSource{SessionID: sourceID, ForkPoint: forkPoint, EventID: forkEventID},
	}
	if err := r.writeMeta(newID, newMeta); err != nil {
		return ForkResult{}, err
	}

	return ForkResult{Success: true, SessionID: newID}, nil
}

// ForkView is the zipper at one forked event: the parent session at index
// 0 followed by its children sorted by fork time, with the queried
// session's position and its left/right neighbors.
type ForkView struct {
	EventID   string   `json:"eventId"`
	ForkPoint int      `json:"forkPoint"`
	Sessions  []string `json:"sessions"`
	Index     int      `json:"index"`
	Left      []string `json:"left"`
	Right     []string `json:"right"`
}

// SessionForks returns a view for every event of sessionID that has forks.
// For a forked session this includes the fork point it descended from, with
// its index among the alternatives.
func (r *Registry) SessionForks(sessionID string) ([]ForkView, error) {
	meta, err := r.readMeta(sessionID)
	if err != nil {
		return nil, err
	}

	var views []ForkView
	for eventID, children := range meta.Forks {
		views = append(views, forkView(sessionID, eventID, childForkPoint(children), sessionID, children))
	}

	if meta.Source != nil {
		parentMeta, err := r.readMeta(meta.Source.SessionID)
		if err != nil {
			return nil, err
		}
		children := parentMeta.Forks[meta.Source.EventID]
		views = append(views, forkView(meta.Source.SessionID, meta.Source.EventID, meta.Source.ForkPoint, sessionID, children))
	}

	sort.Slice(views, func(i, k int) bool { return views[i].ForkPoint < views[k].ForkPoint })
	return views, nil
}

// forkView assembles one zipper: parent first, then children in time
// order, positioned at current.
func forkView(parentID, eventID string, forkPoint int, current string, children []models.ForkRecord) ForkView {
	sessions := make([]string, 0, len(children)+1)
	sessions = append(sessions, parentID)
	for _, c := range children {
		sessions = append(sessions, c.SessionID)
	}

	index := 0
	for i, id := range sessions {
		if id == current {
			index = i
			break
		}
	}

	return ForkView{
		EventID:   eventID,
		ForkPoint: forkPoint,
		Sessions:  sessions,
		Index:     index,
		Left:      sessions[:index],
		Right:     sessions[index+1:],
	}
}

func childForkPoint(children []models.ForkRecord) int {
	if len(children) == 0 {
		return 0
	}
	return children[0].ForkPoint
}
