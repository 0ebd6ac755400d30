// Package sessions manages the lifecycle of session journals: acquisition,
// status derivation, thread reconstruction, listing, forking, and change
// subscription. A session is a JSONL journal under a time-hierarchical path
// plus an optional sidecar metadata file recording fork lineage.
package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Session IDs are `YYYYMMDDThhmmssSSSZ-<8-char-urlsafe-random>`:
// time-sortable by plain string comparison, collision-proofed by the
// random suffix.
const idTimeLayout = "20060102T150405"

var idPattern = regexp.MustCompile(`^\d{8}T\d{9}Z-[A-Za-z0-9_-]{8}$`)

// NewSessionID returns a fresh session identifier for the current time.
func NewSessionID() string {
	return SessionIDAt(time.Now())
}

// SessionIDAt returns a fresh session identifier for the given time.
func SessionIDAt(at time.Time) string {
	at = at.UTC()
	ms := at.Nanosecond() / int(time.Millisecond)

	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(err)
	}
	suffix := base64.RawURLEncoding.EncodeToString(raw[:])

	return fmt.Sprintf("%s%03dZ-%s", at.Format(idTimeLayout), ms, suffix)
}

// ValidSessionID reports whether id has the canonical shape.
func ValidSessionID(id string) bool {
	return idPattern.MatchString(id)
}

// SessionIDTime extracts the timestamp embedded in a session ID.
func SessionIDTime(id string) (time.Time, error) {
	if !ValidSessionID(id) {
		return time.Time{}, fmt.Errorf("invalid session id %q", id)
	}
	base, err := time.Parse(idTimeLayout, id[:15])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	var ms int
	if _, err := fmt.Sscanf(id[15:18], "%03d", &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return base.Add(time.Duration(ms) * time.Millisecond).UTC(), nil
}

// JournalPath returns `<base>/YYYY/MM/DD/HH/<id>.jsonl`, the hour-sharded
// location of a session's journal.
func JournalPath(base, id string) (string, error) {
	if !ValidSessionID(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(base, id[0:4], id[4:6], id[6:8], id[9:11], id+".jsonl"), nil
}

// MetaPath returns the sidecar metadata location next to the journal.
func MetaPath(base, id string) (string, error) {
	p, err := JournalPath(base, id)
	if err != nil {
		return "", err
	}
	return p[:len(p)-len(".jsonl")] + ".meta.json", nil
}
