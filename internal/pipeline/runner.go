package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
)

// Runner executes registered hooks and checks with per-component time
// budgets and panic recovery. The zero value is not usable; construct
// with NewRunner.
//
// Each stage method loads the registry current at its start, so a
// registry swap mid-review can mix old pre-hooks with new post-hooks.
// Callers needing a consistent set across stages should snapshot the
// registry themselves.
type Runner struct {
	registry atomic.Pointer[Registry]

	hookTimeout  time.Duration
	checkTimeout time.Duration
	logger       *slog.Logger
}

// RunnerOption configures optional Runner behavior.
type RunnerOption func(*Runner)

// WithLogger sets the logger for component failures.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner over the given registry. A nil registry
// behaves as empty.
func NewRunner(reg *Registry, cfg configuration.PipelineConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		hookTimeout:  cfg.HookTimeout,
		checkTimeout: cfg.CheckTimeout,
		logger:       slog.Default(),
	}
	if r.hookTimeout <= 0 {
		r.hookTimeout = configuration.DefaultHookTimeout
	}
	if r.checkTimeout <= 0 {
		r.checkTimeout = configuration.DefaultCheckTimeout
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "pipeline")

	if reg == nil {
		reg = NewRegistry()
	}
	r.registry.Store(reg)
	return r
}

// Swap atomically replaces the active registry and returns the
// previous one. Used by plugin reloads; safe under concurrent stage
// execution.
func (r *Runner) Swap(reg *Registry) *Registry {
	if reg == nil {
		reg = NewRegistry()
	}
	return r.registry.Swap(reg)
}

// Registry returns the active registry.
func (r *Runner) Registry() *Registry { return r.registry.Load() }

// RunPre threads content through every pre-hook in registration order.
// A failing hook is skipped, leaving the content from the previous
// stage intact. Returns the final content and any degradations.
func (r *Runner) RunPre(ctx context.Context, content string, language domain.Language) (string, []domain.Degradation) {
	var degs []domain.Degradation
	for _, h := range r.registry.Load().pre {
		if ctx.Err() != nil {
			break
		}
		in := content
		next, err := invoke(ctx, r.hookTimeout, func(ctx context.Context) (string, error) {
			out, err := h.Fn(ctx, in, language)
			if err != nil {
				return "", err
			}
			if out == "" && in != "" {
				return "", fmt.Errorf("%w: pre-hook emptied non-empty content", ErrMalformedResult)
			}
			return out, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			herr := &HookError{Hook: h.Name, Phase: domain.PhasePre, Err: err}
			r.logger.Warn("pre-hook skipped", "hook", h.Name, "error", herr)
			degs = append(degs, degradationFor(h.Name, domain.PhasePre, err))
			continue
		}
		content = next
	}
	return content, degs
}

// RunChecks executes every custom check in registration order,
// appending each check's findings to the accumulated set. Each check
// receives a private copy of the findings so far; a failing check
// contributes nothing. Returns the merged findings and any
// degradations.
func (r *Runner) RunChecks(ctx context.Context, content string, findings []domain.Finding) ([]domain.Finding, []domain.Degradation) {
	var degs []domain.Degradation
	for _, c := range r.registry.Load().checks {
		if ctx.Err() != nil {
			break
		}
		snapshot := slices.Clone(findings)
		extra, err := invoke(ctx, r.checkTimeout, func(ctx context.Context) ([]domain.Finding, error) {
			return c.Fn(ctx, content, snapshot)
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			cerr := &CheckError{Check: c.Name, Err: err}
			r.logger.Warn("check skipped", "check", c.Name, "error", cerr)
			degs = append(degs, degradationFor(c.Name, domain.PhaseCheck, err))
			continue
		}
		findings = append(findings, normalizeFindings(extra, c.Name)...)
	}
	return findings, degs
}

// RunPost threads the result through every post-hook in registration
// order. Each hook receives a private clone; a hook that fails, returns
// nil, or alters the artifact identity is skipped and the previous
// result stands. Returns the final result and any degradations.
func (r *Runner) RunPost(ctx context.Context, result *domain.ReviewResult) (*domain.ReviewResult, []domain.Degradation) {
	var degs []domain.Degradation
	for _, h := range r.registry.Load().post {
		if ctx.Err() != nil {
			break
		}
		// Identity is checked against a snapshot: hooks receive a clone
		// and may mutate it freely, so the clone proves nothing.
		name, fp := result.ArtifactName, result.Fingerprint
		in := result.Clone()
		next, err := invoke(ctx, r.hookTimeout, func(ctx context.Context) (*domain.ReviewResult, error) {
			out, err := h.Fn(ctx, in)
			if err != nil {
				return nil, err
			}
			if out == nil {
				return nil, fmt.Errorf("%w: post-hook returned nil result", ErrMalformedResult)
			}
			if out.ArtifactName != name || out.Fingerprint != fp {
				return nil, fmt.Errorf("%w: post-hook altered artifact identity", ErrMalformedResult)
			}
			return out, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			herr := &HookError{Hook: h.Name, Phase: domain.PhasePost, Err: err}
			r.logger.Warn("post-hook skipped", "hook", h.Name, "error", herr)
			degs = append(degs, degradationFor(h.Name, domain.PhasePost, err))
			continue
		}
		result = next
	}
	return result, degs
}

// outcome carries a component's value and error through the isolation
// channel so a timed-out component can never race the caller.
type outcome[T any] struct {
	val T
	err error
}

// invoke runs fn in its own goroutine under the time budget, with
// panic recovery. On timeout the goroutine is abandoned: its eventual
// result goes to a buffered channel nobody reads, and any state it
// touches afterwards is its own private copy.
func invoke[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				var zero T
				done <- outcome[T]{val: zero, err: fmt.Errorf("%w: %v", ErrHookPanic, rec)}
			}
		}()
		val, err := fn(ctx)
		done <- outcome[T]{val: val, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// normalizeFindings sanitizes check output: entries without a message
// are dropped, an unset source is stamped with the check name, and an
// invalid severity downgrades to info rather than discarding the
// entry.
func normalizeFindings(findings []domain.Finding, source string) []domain.Finding {
	out := findings[:0]
	for _, f := range findings {
		if f.Message == "" {
			continue
		}
		if f.Source == "" {
			f.Source = source
		}
		if !f.Severity.Valid() {
			f.Severity = domain.SeverityInfo
		}
		out = append(out, f)
	}
	return out
}

func degradationFor(component string, phase domain.Phase, err error) domain.Degradation {
	return domain.Degradation{Component: component, Phase: phase, Reason: err.Error()}
}
