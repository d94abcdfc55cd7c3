package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahrav/go-critique/internal/agent"
	"github.com/ahrav/go-critique/internal/autofix"
	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/backend/providers"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
	"github.com/ahrav/go-critique/internal/pipeline"
	"github.com/ahrav/go-critique/internal/plugin"
	"github.com/ahrav/go-critique/internal/store"
)

// engine bundles the wired review stack for one command invocation.
// Build with openEngine and release with Close.
type engine struct {
	cfg     *configuration.Config
	logger  *slog.Logger
	store   *store.Store
	chain   *backend.Chain
	agent   *agent.Agent
	watcher *plugin.Watcher
}

// newLogger builds the process logger from observability settings.
// Logs go to stderr so stdout stays clean for command output.
func newLogger(cfg configuration.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openStore opens just the persistence layer, for commands that query
// records without reviewing anything.
func openStore() (*store.Store, *configuration.Config, *slog.Logger, error) {
	cfg, err := configuration.LoadFile(flagConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.Observability)
	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return st, cfg, logger, nil
}

// openEngine wires the full review stack: configuration, logging,
// persistence, analysis backends with resilience, plugins, and the
// orchestrating agent.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := configuration.LoadFile(flagConfig)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Observability)

	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	backends, err := providers.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	chainOpts := []backend.ChainOption{
		backend.WithLogger(logger),
		backend.WithBreakers(backend.NewBreakerRegistry(cfg.CircuitBreaker, logger)),
	}
	if cfg.RateLimit.Enabled {
		chainOpts = append(chainOpts, backend.WithLimiter(backend.NewProviderLimiter(cfg.RateLimit)))
	}
	chain, err := backend.NewChain(cfg.NormalizedChain(), backends, chainOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	e := &engine{cfg: cfg, logger: logger, store: st, chain: chain}

	registry := pipeline.NewRegistry()
	var baseline []domain.Degradation
	var loader *plugin.Loader
	if cfg.Plugins.Dir != "" {
		loader = plugin.NewLoader(plugin.WithLogger(logger))
		plugins, err := loader.LoadDir(cfg.Plugins.Dir)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("loading plugins: %w", err)
		}
		registry = registry.Merge(plugins.Registry)
		baseline = plugins.Degradations
	}

	runner := pipeline.NewRunner(registry, cfg.Pipeline, pipeline.WithLogger(logger))

	if cfg.Plugins.Dir != "" && cfg.Plugins.Watch {
		watcher, err := plugin.NewWatcher(loader, runner, pipeline.NewRegistry(), cfg.Plugins.Dir,
			plugin.WithWatcherLogger(logger))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("plugin watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("plugin watcher: %w", err)
		}
		e.watcher = watcher
	}

	ag, err := agent.New(cfg, chain,
		agent.WithStore(st),
		agent.WithRunner(runner),
		agent.WithLogger(logger),
		agent.WithBaselineDegradations(baseline),
	)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.agent = ag
	return e, nil
}

// fixer builds the auto-fix executor over the engine's agent.
func (e *engine) fixer() (*autofix.Executor, error) {
	return autofix.NewExecutor(e.agent, e.cfg.AutoFix, autofix.WithLogger(e.logger))
}

// Close releases the engine's resources in reverse wiring order.
func (e *engine) Close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.chain != nil {
		e.chain.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("closing store", "error", err)
		}
	}
}
