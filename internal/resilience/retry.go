package resilience

import (
	"context"
	"time"

	"github.com/waitline/queuecoord/internal/clock"
)

// RetryConfig is the exponential-backoff configuration of §4.F.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ShouldRetry  func(error) bool
}

// DefaultRetryConfig matches §4.F's stated defaults (multiplier 2),
// retrying any non-nil error unless overridden.
func DefaultRetryConfig(maxAttempts int, initialDelay, maxDelay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		Multiplier:   2,
		MaxDelay:     maxDelay,
		ShouldRetry:  func(error) bool { return true },
	}
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping with exponential
// backoff between attempts via clk, stopping early when cfg.ShouldRetry
// returns false or ctx is cancelled.
func Retry(ctx context.Context, clk clock.Clock, cfg RetryConfig, fn func(ctx context.Context) error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
