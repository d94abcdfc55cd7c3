// Package domain scoring defines the severity-weighted quality score
// policy. A review starts from a perfect score and loses a configurable
// penalty per finding, floored at zero, so any combination of findings
// still yields a bounded, comparable number.
package domain

import (
	"errors"
	"fmt"
)

// Score bounds. Scores are clamped, never rejected, so a pipeline that
// produced findings can always report a number.
const (
	// MinScore is the lowest possible quality score.
	MinScore = 0.0

	// MaxScore is the starting and highest possible quality score.
	MaxScore = 100.0
)

// Default severity penalty weights. Warning matches the historical flat
// five-point penalty per issue; the rest scale around it.
const (
	// DefaultInfoWeight is the penalty per informational finding.
	DefaultInfoWeight = 1.0

	// DefaultWarningWeight is the penalty per warning finding.
	DefaultWarningWeight = 5.0

	// DefaultErrorWeight is the penalty per error finding.
	DefaultErrorWeight = 10.0

	// DefaultCriticalWeight is the penalty per critical finding.
	DefaultCriticalWeight = 25.0
)

// Score policy errors.
var (
	// ErrNegativeWeight indicates a penalty weight below zero.
	ErrNegativeWeight = errors.New("severity weight must be non-negative")

	// ErrNonMonotoneWeights indicates weights that do not increase with severity.
	ErrNonMonotoneWeights = errors.New("severity weights must be monotone non-decreasing by severity")
)

// ScorePolicy maps severities to score penalties. Policies are
// configuration, not fixed constants: deployments tune the weights, and
// the engine only requires them to be non-negative and ordered so a
// critical finding never costs less than an info finding.
type ScorePolicy struct {
	// Weights is the penalty subtracted per finding of each severity.
	Weights map[Severity]float64 `json:"weights" validate:"required,min=1"`
}

// DefaultScorePolicy returns the standard policy with a fresh weight map
// to prevent mutation of shared state.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{Weights: map[Severity]float64{
		SeverityInfo:     DefaultInfoWeight,
		SeverityWarning:  DefaultWarningWeight,
		SeverityError:    DefaultErrorWeight,
		SeverityCritical: DefaultCriticalWeight,
	}}
}

// Validate checks weights are present for every severity, non-negative,
// and monotone in severity order.
func (p ScorePolicy) Validate() error {
	var prev float64
	for i, sev := range Severities() {
		w, ok := p.Weights[sev]
		if !ok {
			return fmt.Errorf("missing weight for severity %q", sev)
		}
		if w < 0 {
			return fmt.Errorf("%w: %s=%g", ErrNegativeWeight, sev, w)
		}
		if i > 0 && w < prev {
			return fmt.Errorf("%w: %s=%g", ErrNonMonotoneWeights, sev, w)
		}
		prev = w
	}
	return nil
}

// Score computes the aggregate quality score for a set of findings:
// start at MaxScore, subtract the severity weight per finding, clamp to
// [MinScore, MaxScore]. Findings with unknown severities cost the info
// weight rather than being dropped.
func (p ScorePolicy) Score(findings []Finding) float64 {
	score := MaxScore
	for _, f := range findings {
		w, ok := p.Weights[f.Severity]
		if !ok {
			w = p.Weights[SeverityInfo]
		}
		score -= w
	}
	return ClampScore(score)
}

// ClampScore bounds a value to the valid score range.
func ClampScore(x float64) float64 {
	if x < MinScore {
		return MinScore
	}
	if x > MaxScore {
		return MaxScore
	}
	return x
}
