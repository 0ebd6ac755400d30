// Package approval implements the in-process rendezvous between tool-call
// requests raised inside a task loop and decisions arriving from outside
// it. Requests block on a channel; Resolve completes them exactly once;
// unresolved entries can be denied by timeout or a housekeeping sweep.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request describes one tool call awaiting a decision.
type Request struct {
	ApprovalID       string         `json:"approvalId"`
	Tool             string         `json:"tool"`
	Args             map[string]any `json:"args,omitempty"`
	SessionID        string         `json:"sessionId"`
	ParentBoundaryID string         `json:"parentBoundaryId,omitempty"`
	RequestedAt      time.Time      `json:"requestedAt"`
}

// Decision is the outcome of one request.
type Decision struct {
	Approved   bool
	ApprovalID string
}

type pending struct {
	req  Request
	ch   chan bool
	once sync.Once
}

// resolve delivers the decision at most once.
func (p *pending) resolve(approved bool) {
	p.once.Do(func() { p.ch <- approved })
}

// Arbiter owns the pending-approval table. Only the arbiter mutates it;
// entries are removed on resolution.
type Arbiter struct {
	mu      sync.Mutex
	pending map[string]*pending
	logger  *slog.Logger
}

// NewArbiter returns an empty arbiter.
func NewArbiter(logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		pending: make(map[string]*pending),
		logger:  logger,
	}
}

// Request registers req and blocks until a decision arrives. A negative
// timeout waits indefinitely; an elapsed timeout denies. Context
// cancellation denies and returns the context error so interrupts
// propagate. The returned decision always reflects the resolution that
// actually won.
func (a *Arbiter) Request(ctx context.Context, req Request, timeout time.Duration) (Decision, error) {
	if req.ApprovalID == "" {
		req.ApprovalID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	p := &pending{req: req, ch: make(chan bool, 1)}
	a.mu.Lock()
	a.pending[req.ApprovalID] = p
	a.mu.Unlock()

	a.logger.Debug("approval requested",
		"approvalId", req.ApprovalID, "tool", req.Tool, "sessionId", req.SessionID)

	var timerC <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case approved := <-p.ch:
		return Decision{Approved: approved, ApprovalID: req.ApprovalID}, nil

	case <-timerC:
		// Deny, then read back whichever resolution won the race.
		a.Resolve(req.ApprovalID, false)
		approved := <-p.ch
		return Decision{Approved: approved, ApprovalID: req.ApprovalID}, nil

	case <-ctx.Done():
		a.Resolve(req.ApprovalID, false)
		approved := <-p.ch
		return Decision{Approved: approved, ApprovalID: req.ApprovalID}, ctx.Err()
	}
}

// Resolve completes a pending request. The first resolution wins; later
// calls are no-ops returning false.
func (a *Arbiter) Resolve(approvalID string, approved bool) bool {
	a.mu.Lock()
	p, ok := a.pending[approvalID]
	if ok {
		delete(a.pending, approvalID)
	}
	a.mu.Unlock()

	if !ok {
		return false
	}
	p.resolve(approved)
	a.logger.Debug("approval resolved", "approvalId", approvalID, "approved", approved)
	return true
}

// Info is a read-only probe of one pending request.
func (a *Arbiter) Info(approvalID string) (Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[approvalID]
	if !ok {
		return Request{}, false
	}
	return p.req, true
}

// PendingRequests lists unresolved requests, oldest first.
func (a *Arbiter) PendingRequests() []Request {
	a.mu.Lock()
	reqs := make([]Request, 0, len(a.pending))
	for _, p := range a.pending {
		reqs = append(reqs, p.req)
	}
	a.mu.Unlock()

	for i := 1; i < len(reqs); i++ {
		for j := i; j > 0 && reqs[j].RequestedAt.Before(reqs[j-1].RequestedAt); j-- {
			reqs[j], reqs[j-1] = reqs[j-1], reqs[j]
		}
	}
	return reqs
}

// Sweep denies every pending request older than maxAge and returns how
// many were swept.
func (a *Arbiter) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	a.mu.Lock()
	var stale []string
	for id, p := range a.pending {
		if p.req.RequestedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	a.mu.Unlock()

	for _, id := range stale {
		a.Resolve(id, false)
	}
	if len(stale) > 0 {
		a.logger.Info("swept stale approvals", "count", len(stale), "maxAge", maxAge)
	}
	return len(stale)
}
