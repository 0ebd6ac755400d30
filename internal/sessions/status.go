package sessions

import (
	"encoding/json"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// statusFromProbe derives the status ladder from a journal's head/tail
// probe. The ladder, first match wins:
//
//	file missing                          -> not_found
//	zero bytes                            -> empty
//	any present line fails to parse       -> malformed
//	single session.pending line           -> initialized
//	last in {pending, interrupted,
//	         turn.complete}               -> ready
//	anything else (a turn is in flight)   -> busy
//
// The parsed events ride along for metadata callers.
func statusFromProbe(exists bool, size int64, first, second, last string) (models.SessionStatus, *models.Event, *models.Event, *models.Event) {
	if !exists {
		return models.StatusNotFound, nil, nil, nil
	}
	if size == 0 {
		return models.StatusEmpty, nil, nil, nil
	}

	malformed := false
	parse := func(line string) *models.Event {
		if line == "" {
			return nil
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			malformed = true
			return nil
		}
		return &ev
	}

	firstEv := parse(first)
	secondEv := parse(second)
	lastEv := parse(last)
	if malformed {
		return models.StatusMalformed, firstEv, secondEv, lastEv
	}
	if firstEv == nil || lastEv == nil {
		// Non-empty file with no parsable head or tail line.
		return models.StatusMalformed, firstEv, secondEv, lastEv
	}

	if firstEv.Event == models.EventSessionPending && second == "" {
		return models.StatusInitialized, firstEv, secondEv, lastEv
	}

	switch lastEv.Event {
	case models.EventSessionPending, models.EventSessionInterrupted, models.EventSessionTurnComplete:
		return models.StatusReady, firstEv, secondEv, lastEv
	}
	return models.StatusBusy, firstEv, secondEv, lastEv
}
