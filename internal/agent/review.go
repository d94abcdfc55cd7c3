package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/cache"
	"github.com/ahrav/go-critique/internal/domain"
)

// Status classifies how a review task ended.
type Status string

const (
	// StatusCompleted means the pipeline ran and produced a result,
	// possibly degraded.
	StatusCompleted Status = "completed"

	// StatusCached means the result was served from the fingerprint cache.
	StatusCached Status = "cached"

	// StatusFailed means the task produced no result.
	StatusFailed Status = "failed"

	// StatusCancelled means run cancellation stopped the task before it
	// produced a result.
	StatusCancelled Status = "cancelled"
)

// TaskResult is the outcome of reviewing one unique artifact.
type TaskResult struct {
	// ArtifactName is the submitted artifact's name.
	ArtifactName string `json:"artifact_name"`

	// Language is the artifact's declared language.
	Language domain.Language `json:"language"`

	// Fingerprint is the artifact's identity digest; empty when the
	// artifact failed validation before fingerprinting.
	Fingerprint domain.Fingerprint `json:"fingerprint,omitempty"`

	// TraceID correlates the task's log lines and provider calls.
	TraceID string `json:"trace_id,omitempty"`

	// Status is how the task ended.
	Status Status `json:"status"`

	// FromCache is true when the result was served from cache.
	FromCache bool `json:"from_cache,omitempty"`

	// Shared is true when the result was computed by a concurrent task
	// for the same fingerprint.
	Shared bool `json:"shared,omitempty"`

	// Result is the review outcome; nil for failed and cancelled tasks.
	Result *domain.ReviewResult `json:"result,omitempty"`

	// Err is the task error: fatal for failed tasks, a *PersistenceError
	// on completed tasks whose save failed.
	Err error `json:"-"`

	// Duration is the task's wall time inside the pool.
	Duration time.Duration `json:"duration"`
}

// RunReport aggregates the outcome of one Review call.
type RunReport struct {
	// Results holds one entry per unique fingerprint plus one per
	// invalid artifact, in submission order.
	Results []TaskResult `json:"results"`

	// Completed counts tasks that computed a result this run.
	Completed int `json:"completed"`

	// Cached counts tasks served from the fingerprint cache.
	Cached int `json:"cached"`

	// Degraded counts results carrying degradation annotations.
	Degraded int `json:"degraded"`

	// Failed counts tasks that produced no result.
	Failed int `json:"failed"`

	// Cancelled counts tasks stopped by run cancellation.
	Cancelled int `json:"cancelled"`

	// Duration is the wall time of the whole run.
	Duration time.Duration `json:"duration"`
}

// ReviewOption adjusts a single Review call.
type ReviewOption func(*reviewOptions)

type reviewOptions struct {
	force bool
}

// WithForce bypasses the cache lookup so results are recomputed even
// when a live cached entry exists. Concurrent identical-fingerprint
// tasks still collapse to one computation.
func WithForce() ReviewOption {
	return func(o *reviewOptions) { o.force = true }
}

// Review produces one TaskResult per unique fingerprint among the
// given artifacts, with bounded concurrency. Duplicate-content
// artifacts collapse into the first occurrence. Review always returns
// a report: per-task failures and cancellations are recorded on the
// task results rather than surfaced as a call error.
func (a *Agent) Review(ctx context.Context, artifacts []domain.Artifact, opts ...ReviewOption) (*RunReport, error) {
	started := time.Now()
	var ro reviewOptions
	for _, opt := range opts {
		opt(&ro)
	}

	type job struct {
		index       int
		artifact    domain.Artifact
		fingerprint domain.Fingerprint
	}

	results := make([]TaskResult, 0, len(artifacts))
	jobs := make([]job, 0, len(artifacts))
	seen := make(map[domain.Fingerprint]struct{}, len(artifacts))

	for _, art := range artifacts {
		if err := art.Validate(); err != nil {
			results = append(results, TaskResult{
				ArtifactName: art.Name,
				Language:     art.Language,
				Status:       StatusFailed,
				Err:          fmt.Errorf("invalid artifact: %w", err),
			})
			continue
		}
		fp := cache.Compute(art, a.rulesetVersion)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		results = append(results, TaskResult{})
		jobs = append(jobs, job{index: len(results) - 1, artifact: art, fingerprint: fp})
	}

	// Plain group rather than WithContext: one task's failure must not
	// cancel its siblings. Worker closures always return nil.
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for _, j := range jobs {
		g.Go(func() error {
			results[j.index] = a.runTask(ctx, j.artifact, j.fingerprint, ro.force)
			return nil
		})
	}
	_ = g.Wait()

	report := &RunReport{Results: results, Duration: time.Since(started)}
	for i := range results {
		switch results[i].Status {
		case StatusCompleted:
			report.Completed++
		case StatusCached:
			report.Cached++
		case StatusFailed:
			report.Failed++
		case StatusCancelled:
			report.Cancelled++
		}
		if r := results[i].Result; r != nil && r.Degraded {
			report.Degraded++
		}
	}

	a.logger.Info("review run finished",
		"artifacts", len(artifacts),
		"tasks", len(jobs),
		"completed", report.Completed,
		"cached", report.Cached,
		"degraded", report.Degraded,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"duration", report.Duration)
	return report, nil
}

// runTask reviews one unique artifact: cache lookup, in-flight slot
// acquisition, pipeline execution, then cache and store writes before
// the slot wakes any awaiters.
func (a *Agent) runTask(ctx context.Context, art domain.Artifact, fp domain.Fingerprint, force bool) (tr TaskResult) {
	started := time.Now()
	tr = TaskResult{
		ArtifactName: art.Name,
		Language:     art.Language,
		Fingerprint:  fp,
		TraceID:      uuid.NewString(),
	}
	defer func() { tr.Duration = time.Since(started) }()

	log := a.logger.With(
		"artifact", art.Name,
		"fingerprint", fp.Short(),
		"trace_id", tr.TraceID)

	// Run cancellation aborts tasks that have not started working.
	if err := ctx.Err(); err != nil {
		tr.Status = StatusCancelled
		tr.Err = err
		return tr
	}

	taskCtx := ctx
	if a.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, a.taskTimeout)
		defer cancel()
	}

	if !force && a.cache != nil {
		cached, ok, err := a.cache.Get(taskCtx, fp)
		switch {
		case err != nil:
			log.Warn("cache lookup failed", "error", err)
		case ok:
			tr.Status = StatusCached
			tr.FromCache = true
			tr.Result = cached
			log.Debug("cache hit", "score", cached.Score)
			return tr
		}
	}

	s, leader := a.inflight.begin(fp)
	if !leader {
		select {
		case <-s.done:
			if s.err != nil {
				tr.Status = a.statusFor(ctx, s.err)
				tr.Err = s.err
				return tr
			}
			tr.Status = StatusCompleted
			tr.Shared = true
			tr.Result = s.result.Clone()
			log.Debug("shared concurrent computation")
			return tr
		case <-taskCtx.Done():
			tr.Status = a.statusFor(ctx, taskCtx.Err())
			tr.Err = taskCtx.Err()
			return tr
		}
	}

	result, err := a.compute(taskCtx, art, fp, tr.TraceID, log)
	if err != nil {
		a.inflight.finish(fp, s, nil, err)
		tr.Status = a.statusFor(ctx, err)
		tr.Err = err
		if tr.Status == StatusFailed {
			log.Warn("review failed", "error", err)
		}
		return tr
	}

	// Cache and persist before waking awaiters so every observer of the
	// slot sees the final annotated result.
	if a.cache != nil {
		if err := a.cache.Put(taskCtx, fp, result); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}
	if a.saver != nil {
		if _, err := a.saver.Save(taskCtx, result); err != nil {
			result.MarkDegraded("store", domain.PhasePersist, err.Error())
			tr.Err = &PersistenceError{Fingerprint: fp, Err: err}
			log.Warn("persist failed, returning in-memory result", "error", err)
		}
	}
	a.inflight.finish(fp, s, result, nil)

	tr.Status = StatusCompleted
	tr.Result = result
	log.Debug("review completed",
		"score", result.Score,
		"findings", len(result.Findings),
		"degraded", result.Degraded)
	return tr
}

// compute runs the review phases in order: pre-hooks, backend chain,
// custom checks, post-hooks, score aggregation. Component failures
// degrade the result; only cancellation or a required-backend failure
// aborts.
func (a *Agent) compute(ctx context.Context, art domain.Artifact, fp domain.Fingerprint, trace string, log *slog.Logger) (*domain.ReviewResult, error) {
	result := &domain.ReviewResult{
		ArtifactName: art.Name,
		Language:     art.Language,
		Fingerprint:  fp,
	}
	applyDegradations(result, a.baseline)

	content, degs := a.runner.RunPre(ctx, art.Content, art.Language)
	applyDegradations(result, degs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis, err := a.chain.Analyze(ctx, &backend.Request{
		Content:        content,
		Language:       art.Language,
		RulesetVersion: a.rulesetVersion,
		TraceID:        trace,
	})
	switch {
	case err == nil:
		result.Findings = append(result.Findings, analysis.Findings...)
		result.Provider = analysis.Provider
		result.TokensUsed = analysis.TokensUsed
	case ctx.Err() != nil:
		return nil, err
	case a.requireBackend:
		return nil, fmt.Errorf("backend analysis: %w", err)
	default:
		log.Warn("analysis chain failed, continuing with checks only", "error", err)
		result.MarkDegraded("chain", domain.PhaseBackend, err.Error())
	}

	findings, degs := a.runner.RunChecks(ctx, content, result.Findings)
	result.Findings = findings
	applyDegradations(result, degs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Post-hooks observe a complete scored result.
	result.Score = a.policy.Score(result.Findings)
	result.CompletedAt = time.Now().UTC()

	final, degs := a.runner.RunPost(ctx, result)
	applyDegradations(final, degs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Post-hooks may add or filter findings; the recorded score always
	// reflects the final set.
	final.Score = a.policy.Score(final.Findings)
	final.CompletedAt = time.Now().UTC()
	return final, nil
}

// statusFor distinguishes run cancellation from task failure. Only the
// caller's own context signals cancellation; a per-task deadline counts
// as a failure.
func (a *Agent) statusFor(parent context.Context, err error) Status {
	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return StatusCancelled
	}
	return StatusFailed
}

func applyDegradations(result *domain.ReviewResult, degs []domain.Degradation) {
	for _, d := range degs {
		result.MarkDegraded(d.Component, d.Phase, d.Reason)
	}
}
