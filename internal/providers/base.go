package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/backoff"
	"github.com/machellerogden/thinksuit-sub000/internal/ratelimit"
)

// baseProvider holds the retry and rate limit plumbing shared by every
// provider adapter.
type baseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

func newBaseProvider(name string, maxRetries int, retryDelay time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger) baseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return baseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    limiter,
		logger:     logger,
	}
}

// acquire blocks until the rate limiter admits one call for this provider.
func (b *baseProvider) acquire(ctx context.Context) error {
	return b.limiter.Wait(ctx, b.name)
}

// retry runs op with exponential backoff. Errors wrapped with
// backoff.Permanent stop the loop immediately; context expiry is
// returned as-is so callers keep the deadline error.
func (b *baseProvider) retry(ctx context.Context, op func(ctx context.Context) (err error)) error {
	policy := backoff.BackoffPolicy{
		InitialMs: int(b.retryDelay / time.Millisecond),
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0.1,
	}
	res, err := backoff.RetryWithBackoff(ctx, policy, b.maxRetries, func(attempt int) (struct{}, error) {
		if attempt > 1 {
			b.logger.Debug("retrying provider call",
				"provider", b.name,
				"attempt", attempt,
				"max_retries", b.maxRetries)
		}
		return struct{}{}, op(ctx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Surface the provider error, not the exhaustion sentinel.
	if res.LastError != nil {
		return res.LastError
	}
	return err
}
