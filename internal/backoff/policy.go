// Package backoff implements capped exponential delays with jitter and a
// retry loop that understands permanent failures. Provider adapters and
// the fallback recovery path use it for transient API faults.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy shapes the delay curve. Millisecond fields are ints so
// callers can derive them from durations without conversion noise.
type BackoffPolicy struct {
	// InitialMs is the delay after the first failed attempt.
	InitialMs int

	// MaxMs caps the delay regardless of attempt count.
	MaxMs int

	// Factor multiplies the delay per attempt.
	Factor float64

	// Jitter is the random fraction (0..1) added on top of the base
	// delay so synchronized clients spread out.
	Jitter float64
}

// DefaultPolicy is the curve used when a caller has no opinion:
// 100ms doubling to a 30s cap with 10% jitter.
func DefaultPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 100,
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// ComputeBackoff returns the delay before retrying after the given
// attempt. Attempts are 1-indexed; the first retry waits about
// InitialMs.
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return computeBackoff(policy, attempt, rand.Float64()) // #nosec G404 -- jitter needs spread, not secrecy
}

// computeBackoff takes the random sample as a parameter so tests get
// deterministic results.
func computeBackoff(policy BackoffPolicy, attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(policy.InitialMs) * math.Pow(policy.Factor, exp)
	total := math.Min(float64(policy.MaxMs), base+base*policy.Jitter*random)
	return time.Duration(math.Round(total)) * time.Millisecond
}
