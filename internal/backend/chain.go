package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-critique/internal/configuration"
)

// Chain dispatches analysis requests across backends in priority order.
// Within a backend, retryable failures are retried with exponential
// backoff under a time budget; non-retryable failures and exhausted
// retries fall through to the next backend. Provider call rate is
// throttled globally and hard-down backends are skipped via circuit
// breakers. Safe for concurrent use.
type Chain struct {
	entries  []configuration.ChainEntry
	backends map[string]Backend

	limiter  *ProviderLimiter
	breakers *BreakerRegistry
	logger   *slog.Logger

	calls     atomic.Int64
	successes atomic.Int64
	exhausted atomic.Int64
	fallovers atomic.Int64
	retries   atomic.Int64
}

// ChainOption configures optional chain collaborators.
type ChainOption func(*Chain)

// WithLimiter attaches a provider rate limiter.
func WithLimiter(limiter *ProviderLimiter) ChainOption {
	return func(c *Chain) { c.limiter = limiter }
}

// WithBreakers attaches a circuit breaker registry.
func WithBreakers(breakers *BreakerRegistry) ChainOption {
	return func(c *Chain) { c.breakers = breakers }
}

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// NewChain builds a fallback chain over registered backends.
// Every entry must name a registered backend.
func NewChain(entries []configuration.ChainEntry, backends map[string]Backend, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoBackends
	}
	for _, entry := range entries {
		if _, ok := backends[entry.Backend]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, entry.Backend)
		}
	}

	c := &Chain{entries: entries, backends: backends}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "backend_chain")
	return c, nil
}

// Analyze tries each chain entry in order until one succeeds.
// On total failure it returns a *ChainExhaustedError carrying
// per-backend attempt detail; on context cancellation it returns the
// context error so callers can distinguish cancellation from
// computation failure.
func (c *Chain) Analyze(ctx context.Context, req *Request) (*Result, error) {
	c.calls.Add(1)

	attempts := make([]BackendAttempt, 0, len(c.entries))
	for i, entry := range c.entries {
		res, attemptCount, err := c.tryBackend(ctx, entry, req)
		if err == nil {
			c.successes.Add(1)
			if i > 0 {
				c.fallovers.Add(1)
			}
			res.Provider = entry.Backend
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("chain aborted at %s: %w", entry.Backend, ctx.Err())
		}

		attempts = append(attempts, BackendAttempt{
			Backend:  entry.Backend,
			Attempts: attemptCount,
			Class:    ClassOf(err),
			Err:      err.Error(),
		})
		c.logger.Warn("backend failed, falling through",
			"backend", entry.Backend,
			"attempts", attemptCount,
			"class", string(ClassOf(err)),
			"error", err)
	}

	c.exhausted.Add(1)
	return nil, &ChainExhaustedError{Attempts: attempts}
}

// tryBackend runs the retry loop for one chain entry. It returns the
// number of calls actually made alongside the final error.
func (c *Chain) tryBackend(ctx context.Context, entry configuration.ChainEntry, req *Request) (*Result, int, error) {
	release, ok := c.breakers.Allow(entry.Backend)
	if !ok {
		return nil, 0, fmt.Errorf("backend %s: %w", entry.Backend, ErrCircuitOpen)
	}
	defer release()

	b := c.backends[entry.Backend]
	policy := entry.Retry
	deadline := time.Now().Add(policy.MaxElapsedTime)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, entry.Backend); err != nil {
				return nil, attempt - 1, err
			}
		}

		res, err := c.analyzeOnce(ctx, b, req)
		if err == nil {
			c.breakers.RecordSuccess(entry.Backend)
			return res, attempt, nil
		}
		lastErr = err

		// Parent cancellation is not a provider fault; leave the
		// breaker untouched and stop immediately.
		if ctx.Err() != nil {
			return nil, attempt, err
		}
		c.breakers.RecordFailure(entry.Backend)

		if !IsRetryable(err) {
			c.logger.Debug("non-retryable failure",
				"backend", entry.Backend, "attempt", attempt, "error", err)
			return nil, attempt, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Debug("retry budget exhausted",
				"backend", entry.Backend, "attempt", attempt)
			break
		}

		delay := backoffFor(attempt, err, policy, remaining)
		if delay > remaining {
			delay = remaining
		}
		c.logger.Debug("retrying backend",
			"backend", entry.Backend,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		c.retries.Add(1)

		if err := sleepContext(ctx, delay); err != nil {
			return nil, attempt, fmt.Errorf("retry wait: %w", err)
		}
	}

	return nil, policy.MaxAttempts, lastErr
}

// analyzeOnce runs a single backend call under the request's per-call
// timeout when one is set.
func (c *Chain) analyzeOnce(parent context.Context, b Backend, req *Request) (*Result, error) {
	ctx := parent
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, req.Timeout)
		defer cancel()
	}

	res, err := b.Analyze(ctx, req)
	if err != nil {
		// A per-attempt deadline is a provider timeout fault; a parent
		// deadline is caller cancellation and stays unclassified.
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return nil, &Error{
				Provider: b.Name(),
				Class:    ClassTimeout,
				Message:  "analysis call exceeded timeout",
			}
		}
		return nil, err
	}
	if res == nil {
		return nil, &Error{
			Provider: b.Name(),
			Class:    ClassPermanent,
			Message:  "backend returned nil result without error",
		}
	}
	return res, nil
}

// ChainStats is a snapshot of cumulative chain counters.
type ChainStats struct {
	// Calls is the number of Analyze invocations.
	Calls int64
	// Successes is the number of calls answered by some backend.
	Successes int64
	// Exhausted is the number of calls that burned the whole chain.
	Exhausted int64
	// Fallovers is the number of successes served by a non-primary backend.
	Fallovers int64
	// Retries is the number of retry sleeps across all backends.
	Retries int64
}

// Stats returns a snapshot of the chain's counters.
func (c *Chain) Stats() ChainStats {
	return ChainStats{
		Calls:     c.calls.Load(),
		Successes: c.successes.Load(),
		Exhausted: c.exhausted.Load(),
		Fallovers: c.fallovers.Load(),
		Retries:   c.retries.Load(),
	}
}

// Close releases chain collaborators, stopping the rate limiter's
// cleanup goroutine.
func (c *Chain) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}
