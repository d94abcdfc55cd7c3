package backend

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-critique/internal/configuration"
)

// jitterDivisor sizes open-timeout jitter as a fraction of the timeout,
// so breakers for the same provider across processes don't probe in
// lockstep.
const jitterDivisor = 10

// BreakerState represents the current state of a circuit breaker.
type BreakerState int32

const (
	// BreakerClosed allows requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen blocks all requests.
	BreakerOpen
	// BreakerHalfOpen allows limited probe requests.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker implements per-backend circuit breaking with atomic state
// transitions. Closed counts failures toward a threshold; open rejects
// until a jittered timeout; half-open admits a bounded number of
// probes and closes again after enough successes.
type breaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	halfOpenProbes  atomic.Int32

	failureThreshold  int
	successThreshold  int
	openTimeout       time.Duration
	maxHalfOpenProbes int

	logger *slog.Logger
}

func newBreaker(cfg configuration.CircuitBreakerConfig, logger *slog.Logger) *breaker {
	b := &breaker{
		failureThreshold:  cfg.FailureThreshold,
		successThreshold:  cfg.SuccessThreshold,
		openTimeout:       cfg.OpenTimeout,
		maxHalfOpenProbes: cfg.HalfOpenProbes,
		logger:            logger,
	}
	b.state.Store(int32(BreakerClosed))
	return b
}

// jitter returns a random duration up to a fraction of the open timeout.
func (b *breaker) jitter() time.Duration {
	jit := b.openTimeout / jitterDivisor
	if jit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(jit))) // #nosec G404 -- non-cryptographic jitter is appropriate here
}

// allow reports whether a request may proceed. The returned release
// function must be called when the request completes; it frees the
// half-open probe slot when one was taken.
func (b *breaker) allow() (release func(), ok bool) {
	noop := func() {}

	switch BreakerState(b.state.Load()) {
	case BreakerClosed:
		return noop, true

	case BreakerOpen:
		lastFailure := time.Unix(0, b.lastFailureTime.Load())
		if time.Since(lastFailure) <= b.openTimeout+b.jitter() {
			return noop, false
		}
		b.transitionTo(BreakerHalfOpen)
		return b.takeProbeSlot()

	case BreakerHalfOpen:
		return b.takeProbeSlot()

	default:
		return noop, false
	}
}

// takeProbeSlot reserves a half-open probe slot via CAS, rejecting when
// all slots are in flight.
func (b *breaker) takeProbeSlot() (release func(), ok bool) {
	for {
		current := b.halfOpenProbes.Load()
		if int(current) >= b.maxHalfOpenProbes {
			return func() {}, false
		}
		if b.halfOpenProbes.CompareAndSwap(current, current+1) {
			return func() {
				// Saturate at zero; a concurrent transition may have reset the counter.
				for {
					cur := b.halfOpenProbes.Load()
					if cur == 0 || b.halfOpenProbes.CompareAndSwap(cur, cur-1) {
						return
					}
				}
			}, true
		}
	}
}

// recordSuccess tracks a successful call, closing the breaker from
// half-open once the success threshold is reached.
func (b *breaker) recordSuccess() {
	for {
		state := b.state.Load()
		switch BreakerState(state) {
		case BreakerClosed:
			b.failures.Store(0)
			return

		case BreakerHalfOpen:
			successes := b.successes.Add(1)
			if int(successes) >= b.successThreshold {
				if b.state.CompareAndSwap(state, int32(BreakerClosed)) {
					b.failures.Store(0)
					b.successes.Store(0)
					b.halfOpenProbes.Store(0)
					b.logger.Info("circuit breaker state transition",
						"from", BreakerHalfOpen.String(), "to", BreakerClosed.String())
					return
				}
				b.successes.Add(-1)
				continue
			}
			return

		case BreakerOpen:
			return
		}
	}
}

// recordFailure tracks a failed call, opening the breaker from closed
// at the failure threshold and immediately from half-open.
func (b *breaker) recordFailure() {
	b.lastFailureTime.Store(time.Now().UnixNano())

	for {
		state := b.state.Load()
		switch BreakerState(state) {
		case BreakerClosed:
			failures := b.failures.Add(1)
			if int(failures) >= b.failureThreshold {
				if b.state.CompareAndSwap(state, int32(BreakerOpen)) {
					b.failures.Store(0)
					b.successes.Store(0)
					b.logger.Info("circuit breaker state transition",
						"from", BreakerClosed.String(), "to", BreakerOpen.String())
					return
				}
				continue
			}
			return

		case BreakerHalfOpen:
			if b.state.CompareAndSwap(state, int32(BreakerOpen)) {
				b.failures.Store(0)
				b.successes.Store(0)
				b.halfOpenProbes.Store(0)
				b.logger.Info("circuit breaker state transition",
					"from", BreakerHalfOpen.String(), "to", BreakerOpen.String())
				return
			}
			continue

		case BreakerOpen:
			return
		}
	}
}

func (b *breaker) transitionTo(newState BreakerState) {
	oldState := BreakerState(b.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	b.failures.Store(0)
	if newState != BreakerHalfOpen {
		b.successes.Store(0)
	}
	b.halfOpenProbes.Store(0)
	b.logger.Info("circuit breaker state transition",
		"from", oldState.String(), "to", newState.String())
}

// currentState reports the breaker's state for stats and tests.
func (b *breaker) currentState() BreakerState { return BreakerState(b.state.Load()) }

// BreakerRegistry holds one circuit breaker per backend.
// A nil registry (breaking disabled) allows everything.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*breaker
	cfg      configuration.CircuitBreakerConfig
	logger   *slog.Logger
}

// NewBreakerRegistry builds a registry; returns nil when breaking is
// disabled so callers can treat absence uniformly.
func NewBreakerRegistry(cfg configuration.CircuitBreakerConfig, logger *slog.Logger) *BreakerRegistry {
	if !cfg.Enabled {
		return nil
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = configuration.DefaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = configuration.DefaultSuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = configuration.DefaultOpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = configuration.DefaultHalfOpenProbes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		logger:   logger.With("component", "circuit_breaker"),
	}
}

// Allow reports whether a call to the named backend may proceed.
func (r *BreakerRegistry) Allow(backendName string) (release func(), ok bool) {
	if r == nil {
		return func() {}, true
	}
	return r.forBackend(backendName).allow()
}

// RecordSuccess notes a successful call to the named backend.
func (r *BreakerRegistry) RecordSuccess(backendName string) {
	if r == nil {
		return
	}
	r.forBackend(backendName).recordSuccess()
}

// RecordFailure notes a failed call to the named backend.
func (r *BreakerRegistry) RecordFailure(backendName string) {
	if r == nil {
		return
	}
	r.forBackend(backendName).recordFailure()
}

// State reports the named backend's breaker state.
func (r *BreakerRegistry) State(backendName string) BreakerState {
	if r == nil {
		return BreakerClosed
	}
	return r.forBackend(backendName).currentState()
}

func (r *BreakerRegistry) forBackend(name string) *breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = newBreaker(r.cfg, r.logger.With("backend", name))
	r.breakers[name] = b
	return b
}
