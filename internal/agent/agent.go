// Package agent orchestrates review tasks end to end: fingerprinting
// and deduplication, cache lookup, the hook pipeline around backend
// dispatch, score aggregation, and persistence.
//
// Concurrency model:
//   - A bounded worker pool processes artifacts in parallel; pool size
//     never dictates provider call rate (the chain throttles that).
//   - Identical-fingerprint work collapses to one computation through
//     an in-flight slot registry; every requester observes the same
//     outcome, success or failure.
//   - The result cache and the slot registry are the only state shared
//     across workers, both lock-protected.
//
// Failure model: a task failure never aborts the run. Component
// failures inside a task degrade the result; backend chain exhaustion
// degrades or fails the task depending on configuration; persistence
// failure annotates the task but keeps the computed result.
package agent

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/cache"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
	"github.com/ahrav/go-critique/internal/pipeline"
)

// defaultMaxWorkers caps the pool when concurrency is left unset, so a
// large host does not translate into a provider request burst.
const defaultMaxWorkers = 16

// Analyzer is the analysis capability the agent dispatches to,
// satisfied by *backend.Chain.
type Analyzer interface {
	Analyze(ctx context.Context, req *backend.Request) (*backend.Result, error)
}

// Saver persists computed results, satisfied by *store.Store.
type Saver interface {
	Save(ctx context.Context, result *domain.ReviewResult) (*domain.ReviewRecord, error)
}

// Agent coordinates the full review of artifact sets. Construct with
// New; safe for concurrent use, including overlapping Review calls.
type Agent struct {
	chain  Analyzer
	runner *pipeline.Runner
	cache  cache.ResultCache
	saver  Saver
	policy domain.ScorePolicy
	logger *slog.Logger

	inflight *inflightRegistry

	// baseline degradations (plugin load failures) are stamped onto
	// every computed result so consumers see reduced coverage.
	baseline []domain.Degradation

	maxConcurrency int
	taskTimeout    time.Duration
	requireBackend bool
	rulesetVersion string
}

// Option configures optional Agent collaborators.
type Option func(*Agent)

// WithCache overrides the result cache. Passing nil disables caching
// regardless of configuration.
func WithCache(c cache.ResultCache) Option {
	return func(a *Agent) { a.cache = c }
}

// WithStore attaches a persistence layer. Without one, results are
// returned but not saved.
func WithStore(s Saver) Option {
	return func(a *Agent) { a.saver = s }
}

// WithRunner overrides the hook pipeline runner, typically to share one
// with a plugin watcher that swaps registries at runtime.
func WithRunner(r *pipeline.Runner) Option {
	return func(a *Agent) {
		if r != nil {
			a.runner = r
		}
	}
}

// WithLogger sets the logger; defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithBaselineDegradations records degradations that predate any task,
// such as plugin modules that failed to load.
func WithBaselineDegradations(degs []domain.Degradation) Option {
	return func(a *Agent) { a.baseline = degs }
}

// New builds an agent over an analysis chain. A nil config uses
// defaults; the scoring policy must validate.
func New(cfg *configuration.Config, chain Analyzer, opts ...Option) (*Agent, error) {
	if chain == nil {
		return nil, ErrNoAnalyzer
	}
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	policy, err := cfg.Scoring.ScorePolicy()
	if err != nil {
		return nil, err
	}

	a := &Agent{
		chain:          chain,
		policy:         policy,
		logger:         slog.Default(),
		inflight:       newInflightRegistry(),
		maxConcurrency: cfg.Agent.MaxConcurrency,
		taskTimeout:    cfg.Agent.TaskTimeout,
		requireBackend: cfg.Agent.RequireBackend,
		rulesetVersion: cfg.Scoring.RulesetVersion,
	}
	if cfg.Cache.Enabled {
		a.cache = cache.NewMemoryCache(cfg.Cache.TTL)
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxConcurrency <= 0 {
		a.maxConcurrency = min(runtime.GOMAXPROCS(0), defaultMaxWorkers)
	}
	if a.runner == nil {
		a.runner = pipeline.NewRunner(nil, cfg.Pipeline)
	}
	a.logger = a.logger.With("component", "agent")
	return a, nil
}

// CacheStats returns the result cache counters, zero when caching is
// disabled.
func (a *Agent) CacheStats() cache.Stats {
	if a.cache == nil {
		return cache.Stats{}
	}
	return a.cache.Stats()
}
