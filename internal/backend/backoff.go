package backend

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-critique/internal/configuration"
)

// ExponentialBackoff calculates the delay before retry attempt n using
// exponential growth with optional full jitter. Thread-safe via
// math/rand/v2. Returns zero for non-positive attempt numbers.
func ExponentialBackoff(attempt int, cfg configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := cfg.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond // prevent hot looping
	}
	for i := 1; i < attempt; i++ {
		multiplier := cfg.Multiplier
		if multiplier < 1.0 {
			multiplier = 1.0
		}
		backoff = time.Duration(float64(backoff) * multiplier)
		if backoff > cfg.MaxInterval {
			backoff = cfg.MaxInterval
			break
		}
	}

	if cfg.UseJitter {
		// Full jitter: uniform in [0, backoff].
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}

// backoffFor computes the wait before the next attempt, letting a
// server-provided retry-after hint floor the exponential delay. The
// hint is trusted only within the remaining time budget; an oversized
// hint falls back to the exponential delay so one provider cannot
// stall the chain.
func backoffFor(attempt int, err error, cfg configuration.RetryConfig, remaining time.Duration) time.Duration {
	delay := ExponentialBackoff(attempt, cfg)

	if hint := RetryAfterHint(err); hint > 0 {
		if remaining <= 0 || hint <= remaining {
			return hint
		}
	}
	return delay
}

// sleepContext waits for the delay or context cancellation, whichever
// comes first. Returns the context error on cancellation.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
