package domain

import (
	"errors"
	"slices"
	"time"
)

// Review-specific errors returned by result construction and validation.
var (
	// ErrMissingFingerprint indicates a result without its identity digest.
	ErrMissingFingerprint = errors.New("review result requires a fingerprint")

	// ErrScoreOutOfRange indicates a score outside [0,100].
	ErrScoreOutOfRange = errors.New("score must be within [0,100]")
)

// Phase names the pipeline stage a degradation occurred in.
type Phase string

const (
	// PhasePre covers pre-review hooks.
	PhasePre Phase = "pre"
	// PhaseBackend covers the analysis backend fallback chain.
	PhaseBackend Phase = "backend"
	// PhaseCheck covers custom checks.
	PhaseCheck Phase = "check"
	// PhasePost covers post-review hooks.
	PhasePost Phase = "post"
	// PhasePlugin covers plugin module loading.
	PhasePlugin Phase = "plugin"
	// PhasePersist covers store writes.
	PhasePersist Phase = "persist"
)

// Degradation records a non-fatal component failure that the pipeline
// survived. A result carrying degradations is still delivered; the
// annotations let downstream reporting flag reduced confidence.
type Degradation struct {
	// Component is the failing hook, check, backend, or plugin name.
	Component string `json:"component" validate:"required"`

	// Phase is the pipeline stage the failure occurred in.
	Phase Phase `json:"phase" validate:"required,oneof=pre backend check post plugin persist"`

	// Reason is the failure description, bounded for storage.
	Reason string `json:"reason" validate:"required,max=1024"`
}

// ReviewResult is the normalized outcome of reviewing one artifact:
// the ordered findings from all sources, the aggregate quality score,
// and provenance of how the result was produced.
type ReviewResult struct {
	// ArtifactName is the path or logical name of the reviewed artifact.
	ArtifactName string `json:"artifact_name" validate:"required"`

	// Language is the artifact's declared language.
	Language Language `json:"language" validate:"required"`

	// Fingerprint is the identity digest the result was computed for.
	// Post-hooks must not alter it.
	Fingerprint Fingerprint `json:"fingerprint" validate:"required"`

	// Findings is the ordered sequence of diagnostics from backends,
	// custom checks, and hooks.
	Findings []Finding `json:"findings" validate:"omitempty,dive"`

	// Score is the aggregate quality score in [0,100]; 100 means no
	// findings penalized the artifact.
	Score float64 `json:"score" validate:"min=0,max=100"`

	// Provider names the backend that ultimately produced the analysis,
	// recorded for observability and cache reproducibility. Empty when
	// the whole chain was exhausted and the run tolerated it.
	Provider string `json:"provider,omitempty"`

	// TokensUsed counts provider tokens consumed computing this result.
	TokensUsed int64 `json:"tokens_used,omitempty" validate:"min=0"`

	// CompletedAt records when the pipeline finished.
	CompletedAt time.Time `json:"completed_at" validate:"required"`

	// Degraded is true when any hook, check, or backend failed but the
	// pipeline still produced a result.
	Degraded bool `json:"degraded"`

	// Degradations lists the component failures behind the Degraded flag.
	Degradations []Degradation `json:"degradations,omitempty" validate:"omitempty,dive"`
}

// Validate checks the result against its structural constraints.
func (r *ReviewResult) Validate() error {
	if r.Fingerprint.IsZero() {
		return ErrMissingFingerprint
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return ErrScoreOutOfRange
	}
	return validate.Struct(r)
}

// MarkDegraded appends a degradation annotation and sets the flag.
func (r *ReviewResult) MarkDegraded(component string, phase Phase, reason string) {
	r.Degraded = true
	r.Degradations = append(r.Degradations, Degradation{
		Component: component,
		Phase:     phase,
		Reason:    truncateReason(reason),
	})
}

// AddFindings appends findings preserving producer order.
func (r *ReviewResult) AddFindings(findings ...Finding) {
	r.Findings = append(r.Findings, findings...)
}

// Clone returns a deep copy so post-hooks can transform a result
// without aliasing the findings of the original.
func (r *ReviewResult) Clone() *ReviewResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Findings = slices.Clone(r.Findings)
	out.Degradations = slices.Clone(r.Degradations)
	return &out
}

// SameIdentity reports whether other preserves this result's artifact
// identity. Post-hooks returning a result with changed identity are
// treated as malformed.
func (r *ReviewResult) SameIdentity(other *ReviewResult) bool {
	return other != nil &&
		r.ArtifactName == other.ArtifactName &&
		r.Fingerprint == other.Fingerprint
}

// const bound keeps degradation reasons storable even when a panic
// message carries a large payload.
const maxReasonLen = 1024

func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	return reason[:maxReasonLen]
}

// ReviewRecord is the persisted form of a ReviewResult plus storage
// metadata. Records are destroyed only by explicit retention cleanup
// or deletion.
type ReviewRecord struct {
	// ID is the store-assigned record identifier (UUID).
	ID string `json:"id" validate:"required,uuid"`

	ReviewResult

	// CreatedAt is the persistence timestamp used for retention and
	// default search ordering.
	CreatedAt time.Time `json:"created_at" validate:"required"`
}

// Validate checks the record against its structural constraints.
func (r *ReviewRecord) Validate() error {
	if err := r.ReviewResult.Validate(); err != nil {
		return err
	}
	return validate.Struct(r)
}

// RetentionEligible reports whether the record is older than the cutoff
// and may be removed by cleanup.
func (r *ReviewRecord) RetentionEligible(cutoff time.Time) bool {
	return r.CreatedAt.Before(cutoff)
}
