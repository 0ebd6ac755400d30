// Package ratelimit bounds provider API call rates with per-key token
// buckets. Keys are provider names; each key refills independently.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerMinute is the sustained rate allowed per key.
	RequestsPerMinute float64
	// Burst is the number of requests allowed to fire back-to-back.
	Burst int
	// Enabled controls whether limiting is active at all.
	Enabled bool
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             5,
		Enabled:           true,
	}
}

// Bucket implements token bucket rate limiting.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewBucket creates a new token bucket.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RequestsPerMinute / 6)
		if config.Burst < 1 {
			config.Burst = 1
		}
	}

	return &Bucket{
		tokens:     float64(config.Burst),
		maxTokens:  float64(config.Burst),
		refillRate: config.RequestsPerMinute / 60.0,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// refillLocked credits tokens for the time since the last refill.
// Callers hold the mutex.
func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens = min(b.maxTokens, b.tokens+elapsed*b.refillRate)
}

// Tokens returns the current number of available tokens.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// WaitTime returns how long until a request would be allowed.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= 1 {
		return 0
	}

	deficit := 1 - b.tokens
	return time.Duration(deficit / b.refillRate * float64(time.Second))
}

// Limiter manages rate limits for multiple keys.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a new rate limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 1000,
	}
}

// Allow checks if a request for the given key should be allowed.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}

	return l.getBucket(key).Allow()
}

// WaitTime returns how long to wait before a request for key would be
// allowed.
func (l *Limiter) WaitTime(key string) time.Duration {
	if l == nil || !l.config.Enabled {
		return 0
	}

	return l.getBucket(key).WaitTime()
}

// Wait blocks until a token is available for key or the context ends. A
// nil or disabled limiter returns immediately.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	for {
		if l.Allow(key) {
			return nil
		}
		wait := l.WaitTime(key)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset clears the bucket for a key.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// getBucket returns or creates the bucket for a key.
func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.RLock()
	bucket := l.buckets[key]
	l.mu.RUnlock()
	if bucket != nil {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket = l.buckets[key]; bucket != nil {
		return bucket
	}
	if len(l.buckets) >= l.maxKeys {
		l.pruneLocked()
	}
	bucket = NewBucket(l.config)
	l.buckets[key] = bucket
	return bucket
}

// pruneLocked drops buckets sitting near full; their keys have been
// idle long enough to refill. Callers hold the write lock.
func (l *Limiter) pruneLocked() {
	for key, bucket := range l.buckets {
		if bucket.Tokens() >= bucket.maxTokens*0.9 {
			delete(l.buckets, key)
		}
	}
}
