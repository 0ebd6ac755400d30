package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBucketAllow(t *testing.T) {
	config := Config{
		RequestsPerMinute: 600,
		Burst:             5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	// Should allow burst requests
	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}

	// Next request should be denied
	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucketRefill(t *testing.T) {
	config := Config{
		RequestsPerMinute: 6000, // Fast refill for test
		Burst:             2,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	// Exhaust tokens
	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("should be denied after exhausting tokens")
	}

	// Wait for refill
	time.Sleep(50 * time.Millisecond)

	// Should have some tokens back
	if !bucket.Allow() {
		t.Error("should be allowed after refill")
	}
}

func TestBucketTokens(t *testing.T) {
	config := Config{
		RequestsPerMinute: 600,
		Burst:             5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	initial := bucket.Tokens()
	if initial != 5 {
		t.Errorf("initial tokens = %f, want 5", initial)
	}

	bucket.Allow()
	after := bucket.Tokens()
	if after >= initial {
		t.Error("tokens should decrease after Allow()")
	}
}

func TestBucketWaitTime(t *testing.T) {
	config := Config{
		RequestsPerMinute: 600,
		Burst:             1,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	// No wait initially
	if bucket.WaitTime() != 0 {
		t.Error("should not wait when tokens available")
	}

	// Exhaust tokens
	bucket.Allow()

	// Should need to wait
	wait := bucket.WaitTime()
	if wait <= 0 {
		t.Error("should need to wait when no tokens")
	}
}

func TestLimiterAllow(t *testing.T) {
	config := Config{
		RequestsPerMinute: 600,
		Burst:             3,
		Enabled:           true,
	}
	limiter := NewLimiter(config)

	// Different keys get separate limits
	for i := 0; i < 3; i++ {
		if !limiter.Allow("anthropic") {
			t.Errorf("anthropic request %d should be allowed", i)
		}
	}

	// anthropic exhausted
	if limiter.Allow("anthropic") {
		t.Error("anthropic should be rate limited")
	}

	// openai should still be allowed
	if !limiter.Allow("openai") {
		t.Error("openai should be allowed")
	}
}

func TestLimiterDisabled(t *testing.T) {
	config := Config{
		RequestsPerMinute: 1,
		Burst:             1,
		Enabled:           false,
	}
	limiter := NewLimiter(config)

	// Should always allow when disabled
	for i := 0; i < 100; i++ {
		if !limiter.Allow("anthropic") {
			t.Error("disabled limiter should always allow")
		}
	}
}

func TestLimiterNil(t *testing.T) {
	var limiter *Limiter

	if !limiter.Allow("anthropic") {
		t.Error("nil limiter should always allow")
	}
	if limiter.WaitTime("anthropic") != 0 {
		t.Error("nil limiter should report zero wait")
	}
	if err := limiter.Wait(context.Background(), "anthropic"); err != nil {
		t.Errorf("nil limiter Wait returned %v", err)
	}
	limiter.Reset("anthropic")
}

func TestLimiterReset(t *testing.T) {
	config := Config{
		RequestsPerMinute: 600,
		Burst:             2,
		Enabled:           true,
	}
	limiter := NewLimiter(config)

	// Exhaust
	limiter.Allow("anthropic")
	limiter.Allow("anthropic")

	if limiter.Allow("anthropic") {
		t.Error("should be rate limited")
	}

	// Reset
	limiter.Reset("anthropic")

	// Should be allowed again
	if !limiter.Allow("anthropic") {
		t.Error("should be allowed after reset")
	}
}

func TestLimiterWaitBlocksUntilRefill(t *testing.T) {
	config := Config{
		RequestsPerMinute: 6000, // ~100 tokens/s so the wait is short
		Burst:             1,
		Enabled:           true,
	}
	limiter := NewLimiter(config)

	if err := limiter.Wait(context.Background(), "anthropic"); err != nil {
		t.Fatalf("first Wait returned %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(context.Background(), "anthropic"); err != nil {
		t.Fatalf("second Wait returned %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected it to block for a refill", elapsed)
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	config := Config{
		RequestsPerMinute: 1, // a refill takes a minute
		Burst:             1,
		Enabled:           true,
	}
	limiter := NewLimiter(config)
	limiter.Allow("anthropic")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, "anthropic")
	if err != context.DeadlineExceeded {
		t.Errorf("Wait returned %v, want context.DeadlineExceeded", err)
	}
}

func TestBucketZeroConfigUsesDefaults(t *testing.T) {
	bucket := NewBucket(Config{Enabled: true})

	if !bucket.Allow() {
		t.Error("Allow() should succeed on a zero-config bucket with defaults applied")
	}
	if tokens := bucket.Tokens(); tokens < 0 {
		t.Errorf("expected non-negative default tokens, got %f", tokens)
	}
}
