// Package backend defines the uniform analysis capability implemented
// by every review provider, and the fallback chain that dispatches to
// providers in priority order with retry, backoff, throttling, and
// circuit breaking.
//
// Architecture:
//   - Single explicit Backend interface; providers never selected by
//     runtime type inspection.
//   - Classified errors drive retry-within-backend vs fall-through.
//   - Per-provider token bucket throttling, global across workers.
//   - Per-backend circuit breakers to stop hammering hard-down providers.
package backend

import (
	"context"
	"time"

	"github.com/ahrav/go-critique/internal/domain"
)

// Backend is the uniform analysis capability. Implementations must be
// safe for concurrent use and must honor ctx cancellation promptly:
// the chain relies on it for global deadlines.
type Backend interface {
	// Name returns the backend's stable identifier, recorded on results
	// for observability and cache reproducibility.
	Name() string

	// Analyze reviews content and returns normalized findings.
	// Failures must be *Error values so the chain can classify them;
	// unclassified errors are treated by shape (see Classify).
	Analyze(ctx context.Context, req *Request) (*Result, error)
}

// Request is one analysis call. The chain passes the same request to
// each backend it tries.
type Request struct {
	// Content is the artifact text to analyze, post pre-hooks.
	Content string `json:"content"`

	// Language is the artifact's declared language.
	Language domain.Language `json:"language"`

	// RulesetVersion selects the active rule-set for rule backends and
	// is recorded for reproducibility.
	RulesetVersion string `json:"ruleset_version,omitempty"`

	// Timeout bounds this single call; 0 uses the provider default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// TraceID correlates provider calls with the owning review task.
	TraceID string `json:"trace_id,omitempty"`
}

// Result is a successful analysis outcome.
type Result struct {
	// Findings are the normalized diagnostics, in provider order.
	Findings []domain.Finding `json:"findings"`

	// Provider is the backend that produced the findings.
	Provider string `json:"provider"`

	// TokensUsed counts provider tokens consumed, 0 for rule backends.
	TokensUsed int64 `json:"tokens_used,omitempty"`

	// RequestID is the provider-assigned request id, when one exists.
	RequestID string `json:"request_id,omitempty"`
}
