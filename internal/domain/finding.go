package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Finding-specific errors returned by parsing and validation.
var (
	// ErrInvalidSeverity indicates a severity string outside the known set.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrEmptyMessage indicates a finding with no diagnostic message.
	ErrEmptyMessage = errors.New("finding message must not be empty")
)

// Severity classifies the impact of a finding, ordered from least to
// most severe. The order drives score penalties and search filters.
type Severity string

const (
	// SeverityInfo marks stylistic or informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning marks findings that should be addressed but do not
	// block the artifact.
	SeverityWarning Severity = "warning"

	// SeverityError marks defects that need correction.
	SeverityError Severity = "error"

	// SeverityCritical marks defects with security or correctness impact.
	SeverityCritical Severity = "critical"
)

// severityRanks orders severities for comparison; higher is more severe.
var severityRanks = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Severities returns all severities in ascending order of impact.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// ParseSeverity normalizes a severity string, accepting the short forms
// "warn" and "err" that analysis backends occasionally emit.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning, "warn":
		return SeverityWarning, nil
	case SeverityError, "err":
		return SeverityError, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
}

// Valid reports whether the severity is one of the known values.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Rank returns the severity's position in the ascending order, with
// unknown severities ranking below info.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as severe as, or more severe than, other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// Location identifies where in an artifact a finding applies.
// A zero Location means the finding applies to the artifact as a whole.
type Location struct {
	// Line is the 1-based starting line.
	Line int `json:"line" validate:"min=0"`

	// Column is the 1-based starting column, 0 when unknown.
	Column int `json:"column,omitempty" validate:"min=0"`

	// EndLine is the 1-based ending line, 0 when the finding spans a single line.
	EndLine int `json:"end_line,omitempty" validate:"min=0"`

	// EndColumn is the 1-based ending column, 0 when unknown.
	EndColumn int `json:"end_column,omitempty" validate:"min=0"`
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool { return l == Location{} }

// String renders the location as "line[:col][-endline]" for log lines
// and exports.
func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	s := fmt.Sprintf("%d", l.Line)
	if l.Column > 0 {
		s = fmt.Sprintf("%s:%d", s, l.Column)
	}
	if l.EndLine > 0 && l.EndLine != l.Line {
		s = fmt.Sprintf("%s-%d", s, l.EndLine)
	}
	return s
}

// Finding is a single normalized diagnostic produced by a backend,
// custom check, or hook. Findings are ordered within a ReviewResult by
// producer order and never deduplicated across sources: two sources
// flagging the same line is itself a signal.
type Finding struct {
	// Severity classifies the finding's impact.
	Severity Severity `json:"severity" validate:"required,oneof=info warning error critical"`

	// Message is the human-readable diagnostic.
	Message string `json:"message" validate:"required,min=1"`

	// Location is where the finding applies; zero for whole-artifact findings.
	Location Location `json:"location,omitempty"`

	// RuleID identifies the rule that produced the finding, when the
	// source has stable rule identifiers.
	RuleID string `json:"rule_id,omitempty"`

	// Source names the producer: a backend name, custom-check name, or
	// hook name. Required for provenance and degraded-pipeline reporting.
	Source string `json:"source" validate:"required,min=1"`
}

// NewFinding constructs a validated finding.
func NewFinding(severity Severity, message, source string) (Finding, error) {
	f := Finding{Severity: severity, Message: message, Source: source}
	if err := f.Validate(); err != nil {
		return Finding{}, err
	}
	return f, nil
}

// Validate checks the finding against its structural constraints.
func (f Finding) Validate() error {
	if !f.Severity.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, f.Severity)
	}
	if strings.TrimSpace(f.Message) == "" {
		return ErrEmptyMessage
	}
	return validate.Struct(f)
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(severityRanks))
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// MaxSeverity returns the most severe level present in findings, or
// ("", false) when findings is empty.
func MaxSeverity(findings []Finding) (Severity, bool) {
	if len(findings) == 0 {
		return "", false
	}
	max := findings[0].Severity
	for _, f := range findings[1:] {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max, true
}
