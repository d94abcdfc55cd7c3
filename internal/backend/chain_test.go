package backend_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
)

// scriptedBackend returns canned responses in order, repeating the
// last one once the script is exhausted.
type scriptedBackend struct {
	name   string
	script []func(ctx context.Context, req *backend.Request) (*backend.Result, error)
	calls  atomic.Int64
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Analyze(ctx context.Context, req *backend.Request) (*backend.Result, error) {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.script) {
		n = len(s.script) - 1
	}
	return s.script[n](ctx, req)
}

func succeed(findings ...domain.Finding) func(context.Context, *backend.Request) (*backend.Result, error) {
	return func(_ context.Context, _ *backend.Request) (*backend.Result, error) {
		return &backend.Result{Findings: findings}, nil
	}
}

func fail(class backend.Class) func(context.Context, *backend.Request) (*backend.Result, error) {
	return func(_ context.Context, _ *backend.Request) (*backend.Result, error) {
		return nil, &backend.Error{Provider: "scripted", Class: class, Message: "scripted failure"}
	}
}

func nilResult(_ context.Context, _ *backend.Request) (*backend.Result, error) {
	return nil, nil
}

// fastRetry keeps retry tests quick: millisecond backoff, no jitter.
func fastRetry(attempts int) configuration.RetryConfig {
	return configuration.RetryConfig{
		MaxAttempts:     attempts,
		MaxElapsedTime:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func entries(retry configuration.RetryConfig, names ...string) []configuration.ChainEntry {
	out := make([]configuration.ChainEntry, len(names))
	for i, n := range names {
		out[i] = configuration.ChainEntry{Backend: n, Retry: retry}
	}
	return out
}

func TestNewChain_Validation(t *testing.T) {
	_, err := backend.NewChain(nil, nil)
	require.ErrorIs(t, err, backend.ErrNoBackends)

	_, err = backend.NewChain(
		entries(fastRetry(1), "ghost"),
		map[string]backend.Backend{},
	)
	require.ErrorIs(t, err, backend.ErrBackendNotFound)
	assert.ErrorContains(t, err, "ghost")
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		succeed(domain.Finding{Severity: domain.SeverityWarning, Message: "m", Source: "openai"}),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai"),
		map[string]backend.Backend{"openai": primary},
	)
	require.NoError(t, err)
	defer chain.Close()

	res, err := chain.Analyze(context.Background(), &backend.Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.Len(t, res.Findings, 1)
	assert.Equal(t, int64(1), primary.calls.Load())

	stats := chain.Stats()
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Zero(t, stats.Fallovers)
	assert.Zero(t, stats.Retries)
}

func TestChain_RetriesTransientThenSucceeds(t *testing.T) {
	flaky := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		fail(backend.ClassTransient),
		fail(backend.ClassTransient),
		succeed(),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai"),
		map[string]backend.Backend{"openai": flaky},
	)
	require.NoError(t, err)
	defer chain.Close()

	res, err := chain.Analyze(context.Background(), &backend.Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, int64(3), flaky.calls.Load())

	stats := chain.Stats()
	assert.Equal(t, int64(2), stats.Retries)
	assert.Zero(t, stats.Fallovers, "recovery within a backend is not a fallover")
}

func TestChain_AuthFailureFallsThroughWithoutRetry(t *testing.T) {
	locked := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		fail(backend.ClassAuth),
	}}
	fallback := &scriptedBackend{name: "static", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		succeed(),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai", "static"),
		map[string]backend.Backend{"openai": locked, "static": fallback},
	)
	require.NoError(t, err)
	defer chain.Close()

	res, err := chain.Analyze(context.Background(), &backend.Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "static", res.Provider)
	assert.Equal(t, int64(1), locked.calls.Load(),
		"auth failures must not burn retry attempts")

	stats := chain.Stats()
	assert.Equal(t, int64(1), stats.Fallovers)
	assert.Zero(t, stats.Retries)
}

func TestChain_ExhaustionReportsPerBackendDetail(t *testing.T) {
	flaky := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		fail(backend.ClassTransient),
	}}
	locked := &scriptedBackend{name: "anthropic", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		fail(backend.ClassAuth),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai", "anthropic"),
		map[string]backend.Backend{"openai": flaky, "anthropic": locked},
	)
	require.NoError(t, err)
	defer chain.Close()

	_, err = chain.Analyze(context.Background(), &backend.Request{Content: "x"})
	require.ErrorIs(t, err, backend.ErrChainExhausted)

	var exhausted *backend.ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)

	assert.Equal(t, "openai", exhausted.Attempts[0].Backend)
	assert.Equal(t, 3, exhausted.Attempts[0].Attempts)
	assert.Equal(t, backend.ClassTransient, exhausted.Attempts[0].Class)

	assert.Equal(t, "anthropic", exhausted.Attempts[1].Backend)
	assert.Equal(t, 1, exhausted.Attempts[1].Attempts)
	assert.Equal(t, backend.ClassAuth, exhausted.Attempts[1].Class)

	assert.Equal(t, int64(1), chain.Stats().Exhausted)
}

func TestChain_ParentCancellationAborts(t *testing.T) {
	breakers := backend.NewBreakerRegistry(configuration.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	}, nil)

	b := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		func(ctx context.Context, _ *backend.Request) (*backend.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai"),
		map[string]backend.Backend{"openai": b},
		backend.WithBreakers(breakers),
	)
	require.NoError(t, err)
	defer chain.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = chain.Analyze(ctx, &backend.Request{Content: "x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "chain aborted at openai")

	// Caller cancellation is not a provider fault; the breaker stays
	// closed even at threshold one.
	assert.Equal(t, backend.BreakerClosed, breakers.State("openai"))
}

func TestChain_OpenBreakerSkipsBackend(t *testing.T) {
	breakers := backend.NewBreakerRegistry(configuration.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	}, nil)

	broken := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		fail(backend.ClassPermanent),
	}}
	fallback := &scriptedBackend{name: "static", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		succeed(),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai", "static"),
		map[string]backend.Backend{"openai": broken, "static": fallback},
		backend.WithBreakers(breakers),
	)
	require.NoError(t, err)
	defer chain.Close()

	ctx := context.Background()

	// First call trips openai's breaker and falls through.
	res, err := chain.Analyze(ctx, &backend.Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "static", res.Provider)
	require.Equal(t, backend.BreakerOpen, breakers.State("openai"))

	// Second call skips openai entirely.
	res, err = chain.Analyze(ctx, &backend.Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "static", res.Provider)
	assert.Equal(t, int64(1), broken.calls.Load(),
		"an open breaker must not admit calls")
}

func TestChain_PerCallTimeoutClassifiesAsTimeout(t *testing.T) {
	slow := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		func(ctx context.Context, _ *backend.Request) (*backend.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(1), "openai"),
		map[string]backend.Backend{"openai": slow},
	)
	require.NoError(t, err)
	defer chain.Close()

	_, err = chain.Analyze(context.Background(), &backend.Request{
		Content: "x",
		Timeout: 20 * time.Millisecond,
	})

	var exhausted *backend.ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, backend.ClassTimeout, exhausted.Attempts[0].Class,
		"a per-call deadline is a provider timeout, not caller cancellation")
}

func TestChain_NilResultWithoutErrorIsPermanent(t *testing.T) {
	misbehaving := &scriptedBackend{name: "openai", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		nilResult,
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(3), "openai"),
		map[string]backend.Backend{"openai": misbehaving},
	)
	require.NoError(t, err)
	defer chain.Close()

	_, err = chain.Analyze(context.Background(), &backend.Request{Content: "x"})

	var exhausted *backend.ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, backend.ClassPermanent, exhausted.Attempts[0].Class)
	assert.Equal(t, int64(1), misbehaving.calls.Load(),
		"a nil result is a contract violation, not worth retrying")
}

func TestChain_CloseStopsLimiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := backend.NewProviderLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 100,
		BurstSize:       100,
	})
	b := &scriptedBackend{name: "static", script: []func(context.Context, *backend.Request) (*backend.Result, error){
		succeed(),
	}}

	chain, err := backend.NewChain(
		entries(fastRetry(1), "static"),
		map[string]backend.Backend{"static": b},
		backend.WithLimiter(limiter),
	)
	require.NoError(t, err)

	_, err = chain.Analyze(context.Background(), &backend.Request{Content: "x"})
	require.NoError(t, err)

	chain.Close()
}
