package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/configuration"
)

func plainRetry() configuration.RetryConfig {
	return configuration.RetryConfig{
		MaxAttempts:     5,
		MaxElapsedTime:  time.Minute,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}
}

func TestExponentialBackoff_GrowthWithoutJitter(t *testing.T) {
	cfg := plainRetry()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped at MaxInterval
		{9, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExponentialBackoff(tt.attempt, cfg),
			"attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_NonPositiveAttempt(t *testing.T) {
	cfg := plainRetry()
	assert.Zero(t, ExponentialBackoff(0, cfg))
	assert.Zero(t, ExponentialBackoff(-1, cfg))
}

func TestExponentialBackoff_DegenerateConfig(t *testing.T) {
	// Zero intervals and a sub-1 multiplier must still produce a
	// non-negative, bounded delay rather than a hot loop.
	cfg := configuration.RetryConfig{MaxInterval: time.Second, Multiplier: 0.5}
	for attempt := 1; attempt <= 4; attempt++ {
		d := ExponentialBackoff(attempt, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestExponentialBackoff_JitterStaysBounded(t *testing.T) {
	cfg := plainRetry()
	cfg.UseJitter = true

	for i := 0; i < 200; i++ {
		d := ExponentialBackoff(3, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestBackoffFor_RetryAfterHint(t *testing.T) {
	cfg := plainRetry()
	quota := &Error{Class: ClassQuota, RetryAfter: 3}

	tests := []struct {
		name      string
		err       error
		remaining time.Duration
		expected  time.Duration
	}{
		{
			name:      "hint within budget floors the delay",
			err:       quota,
			remaining: 10 * time.Second,
			expected:  3 * time.Second,
		},
		{
			name:      "oversized hint falls back to exponential",
			err:       quota,
			remaining: time.Second,
			expected:  100 * time.Millisecond,
		},
		{
			name:      "no hint uses exponential",
			err:       errors.New("transient"),
			remaining: 10 * time.Second,
			expected:  100 * time.Millisecond,
		},
		{
			name:      "unbounded budget trusts the hint",
			err:       quota,
			remaining: 0,
			expected:  3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, backoffFor(1, tt.err, cfg, tt.remaining))
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, sleepContext(ctx, 0))
	require.NoError(t, sleepContext(ctx, time.Millisecond))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, sleepContext(cancelled, time.Minute), context.Canceled)

	// A cancelled context fails fast even with a zero delay.
	require.ErrorIs(t, sleepContext(cancelled, 0), context.Canceled)
}
