package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ahrav/go-critique/internal/configuration"
)

func TestProviderLimiter_DisabledNeverBlocksOrAllocates(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{Enabled: false})
	defer p.Stop()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Acquire(ctx, "openai"))
	}
	assert.Zero(t, p.Size())
}

func TestProviderLimiter_BurstThenThrottle(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 1,
		BurstSize:       2,
	})
	defer p.Stop()

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Acquire(ctx, "openai"))
	require.NoError(t, p.Acquire(ctx, "openai"))
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"burst capacity must be granted immediately")

	// The bucket is empty; the next token is ~1s away, farther than
	// this deadline.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := p.Acquire(waitCtx, "openai")
	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limit wait for openai")
}

func TestProviderLimiter_ProvidersHaveIndependentBuckets(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 1,
		BurstSize:       1,
	})
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, p.Acquire(ctx, "openai"))

	// openai's bucket is drained; anthropic's is untouched.
	start := time.Now()
	require.NoError(t, p.Acquire(ctx, "anthropic"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, 2, p.Size())
}

func TestProviderLimiter_CleanupReclaimsStale(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 100,
		BurstSize:       100,
	})
	defer p.Stop()

	ctx := context.Background()
	require.NoError(t, p.Acquire(ctx, "openai"))
	require.NoError(t, p.Acquire(ctx, "anthropic"))
	require.Equal(t, 2, p.Size())

	// A cutoff in the future makes every limiter stale.
	p.cleanupStale(time.Now().Add(time.Hour))
	assert.Zero(t, p.Size())

	// Reacquisition recreates the limiter with a full bucket.
	require.NoError(t, p.Acquire(ctx, "openai"))
	assert.Equal(t, 1, p.Size())
}

func TestProviderLimiter_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{Enabled: true})
	p.Stop()
	p.Stop()
}

func TestProviderLimiter_DefaultsFillZeroConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProviderLimiter(configuration.RateLimitConfig{Enabled: true})
	defer p.Stop()

	assert.Equal(t, float64(configuration.DefaultTokensPerSecond), p.cfg.TokensPerSecond)
	assert.Equal(t, configuration.DefaultBurstSize, p.cfg.BurstSize)
}
