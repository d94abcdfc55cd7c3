package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-critique/internal/configuration"
)

const (
	// limiterTTL is how long an unused provider limiter survives before
	// cleanup reclaims it.
	limiterTTL = 10 * time.Minute

	// limiterCleanupInterval is how often stale limiters are reclaimed.
	limiterCleanupInterval = time.Minute
)

// timedLimiter wraps a token bucket with an atomic last-used timestamp
// so TTL cleanup can reclaim stale limiters without locking readers.
type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// ProviderLimiter throttles analysis calls per provider with token
// buckets. The limit is global for the process: every worker shares a
// provider's bucket, so pool size does not multiply provider pressure.
// The zero value is not usable; construct with NewProviderLimiter.
type ProviderLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*timedLimiter

	cfg configuration.RateLimitConfig

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
	cleanupDone   sync.WaitGroup
	stopOnce      sync.Once
}

// NewProviderLimiter builds a limiter registry and starts its cleanup
// goroutine. Callers must Stop it when done.
func NewProviderLimiter(cfg configuration.RateLimitConfig) *ProviderLimiter {
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = configuration.DefaultTokensPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = configuration.DefaultBurstSize
	}

	p := &ProviderLimiter{
		limiters:      make(map[string]*timedLimiter),
		cfg:           cfg,
		cleanupTicker: time.NewTicker(limiterCleanupInterval),
		cleanupStop:   make(chan struct{}),
	}
	p.cleanupDone.Add(1)
	go p.cleanupLoop()
	return p
}

// Acquire blocks until the provider's bucket grants a token or the
// context is cancelled. Throttling deliberately does not consume retry
// budget: it happens before an attempt, not as a failed attempt.
func (p *ProviderLimiter) Acquire(ctx context.Context, provider string) error {
	if !p.cfg.Enabled {
		return nil
	}
	if err := p.getOrCreate(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", provider, err)
	}
	return nil
}

// getOrCreate retrieves the provider's limiter, creating it with full
// burst capacity on first use. Double-checked locking keeps the hot
// path on the read lock.
func (p *ProviderLimiter) getOrCreate(provider string) *rate.Limiter {
	now := time.Now().UnixNano()

	p.mu.RLock()
	if tl, ok := p.limiters[provider]; ok {
		// Touch while holding RLock so cleanup (writer) can't delete
		// before the timestamp update lands.
		tl.lastUsed.Store(now)
		lim := tl.limiter
		p.mu.RUnlock()
		return lim
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if tl, ok := p.limiters[provider]; ok {
		tl.lastUsed.Store(now)
		return tl.limiter
	}

	tl := &timedLimiter{
		limiter: rate.NewLimiter(rate.Limit(p.cfg.TokensPerSecond), p.cfg.BurstSize),
	}
	tl.lastUsed.Store(now)
	p.limiters[provider] = tl
	return tl.limiter
}

// cleanupStale removes limiters idle since before the cutoff.
func (p *ProviderLimiter) cleanupStale(cutoff time.Time) {
	cutoffNano := cutoff.UnixNano()

	p.mu.Lock()
	defer p.mu.Unlock()
	for provider, tl := range p.limiters {
		if tl.lastUsed.Load() < cutoffNano {
			delete(p.limiters, provider)
		}
	}
}

func (p *ProviderLimiter) cleanupLoop() {
	defer p.cleanupDone.Done()

	for {
		select {
		case <-p.cleanupTicker.C:
			p.cleanupStale(time.Now().Add(-limiterTTL))
		case <-p.cleanupStop:
			return
		}
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (p *ProviderLimiter) Stop() {
	p.stopOnce.Do(func() {
		p.cleanupTicker.Stop()
		close(p.cleanupStop)
	})
	p.cleanupDone.Wait()
}

// Size reports the number of live limiters, for tests and stats.
func (p *ProviderLimiter) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.limiters)
}
