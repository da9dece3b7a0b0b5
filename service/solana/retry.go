package solana

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy decides whether and how long to wait before retrying a failed
// upstream call. Delays use exponential backoff with full jitter.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration // base delay after a 429
	MaxDelay       time.Duration
	Multiplier     float64

	// Retryable reports whether a classified error may be retried.
	// Defaults to transient upstream failures only.
	Retryable func(error) bool

	// Rand returns a value in [0, 1). Tests pin it for deterministic delays.
	Rand func() float64

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns two retries starting at 100ms and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		BaseDelay:      100 * time.Millisecond,
		RateLimitDelay: time.Second,
		MaxDelay:       5 * time.Second,
		Multiplier:     2,
	}
}

// ShouldRetry reports whether a call that failed on the given zero-based
// attempt should be tried again.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return isTransient(err)
}

// Backoff returns the delay before the retry following the given attempt.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	base := p.BaseDelay
	if errors.Is(err, ErrRateLimited) && p.RateLimitDelay > base {
		base = p.RateLimitDelay
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	ceiling := float64(base) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && ceiling > float64(p.MaxDelay) {
		ceiling = float64(p.MaxDelay)
	}

	random := rand.Float64
	if p.Rand != nil {
		random = p.Rand
	}
	return time.Duration(random() * ceiling)
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
