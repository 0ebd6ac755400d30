package backoff

import (
	"testing"
	"time"
)

func TestComputeBackoffGrowsByFactor(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := computeBackoff(policy, tc.attempt, 0); got != tc.want {
			t.Errorf("attempt %d: delay = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestComputeBackoffCapsAtMax(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 500, Factor: 2, Jitter: 0}

	if got := computeBackoff(policy, 10, 0); got != 500*time.Millisecond {
		t.Errorf("capped delay = %v, want 500ms", got)
	}
	// The cap applies to the jittered total too.
	if got := computeBackoff(policy, 10, 1); got != 500*time.Millisecond {
		t.Errorf("capped jittered delay = %v, want 500ms", got)
	}
}

func TestComputeBackoffJitterStaysInRange(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1000, MaxMs: 60000, Factor: 2, Jitter: 0.1}

	low := computeBackoff(policy, 1, 0)
	high := computeBackoff(policy, 1, 1)
	if low != 1000*time.Millisecond {
		t.Errorf("zero-sample delay = %v, want 1000ms", low)
	}
	if high != 1100*time.Millisecond {
		t.Errorf("full-sample delay = %v, want 1100ms", high)
	}
}

func TestComputeBackoffClampsLowAttempts(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0}

	// Attempt numbers below 1 behave like the first attempt rather
	// than shrinking the delay.
	if got := computeBackoff(policy, 0, 0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want 100ms", got)
	}
}

func TestDefaultPolicyShape(t *testing.T) {
	policy := DefaultPolicy()
	if policy.InitialMs != 100 || policy.MaxMs != 30000 {
		t.Errorf("default bounds = %d..%d ms, want 100..30000", policy.InitialMs, policy.MaxMs)
	}
	if policy.Factor != 2 || policy.Jitter != 0.1 {
		t.Errorf("default curve = factor %v jitter %v, want 2 and 0.1", policy.Factor, policy.Jitter)
	}
}
