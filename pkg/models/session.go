package models

import "time"

// SessionStatus is derived from the first/second/last journal entries,
// never stored.
type SessionStatus string

const (
	StatusNotFound    SessionStatus = "not_found"
	StatusEmpty       SessionStatus = "empty"
	StatusInitialized SessionStatus = "initialized"
	StatusBusy        SessionStatus = "busy"
	StatusMalformed   SessionStatus = "malformed"
	StatusReady       SessionStatus = "ready"
)

// SessionMetadata is the O(constant) probe result: the parsed head and tail
// of the journal plus the derived status.
type SessionMetadata struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	First     *Event        `json:"first,omitempty"`
	Second    *Event        `json:"second,omitempty"`
	Last      *Event        `json:"last,omitempty"`
	Path      string        `json:"path,omitempty"`
}

// ForkRecord is one child session forked from an event.
type ForkRecord struct {
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
	ForkPoint int       `json:"forkPoint"`
}

// ForkSource points a forked session back at its parent.
type ForkSource struct {
	SessionID string `json:"sessionId"`
	ForkPoint int    `json:"forkPoint"`
	EventID   string `json:"eventId"`
}

// SessionMeta is the sidecar <sessionId>.meta.json document. Forks is keyed
// by the eventId of the fork point; children are kept sorted by time.
type SessionMeta struct {
	Forks  map[string][]ForkRecord `json:"forks,omitempty"`
	Source *ForkSource             `json:"source,omitempty"`
}
