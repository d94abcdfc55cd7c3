package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/domain"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected domain.Severity
		wantErr  bool
	}{
		{
			name:     "info",
			input:    "info",
			expected: domain.SeverityInfo,
		},
		{
			name:     "warning",
			input:    "warning",
			expected: domain.SeverityWarning,
		},
		{
			name:     "short form warn",
			input:    "warn",
			expected: domain.SeverityWarning,
		},
		{
			name:     "error",
			input:    "error",
			expected: domain.SeverityError,
		},
		{
			name:     "short form err",
			input:    "err",
			expected: domain.SeverityError,
		},
		{
			name:     "critical",
			input:    "critical",
			expected: domain.SeverityCritical,
		},
		{
			name:     "uppercase normalizes",
			input:    "ERROR",
			expected: domain.SeverityError,
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  warning  ",
			expected: domain.SeverityWarning,
		},
		{
			name:    "unknown severity",
			input:   "fatal",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sev, err := domain.ParseSeverity(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidSeverity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sev)
		})
	}
}

func TestSeverity_Ordering(t *testing.T) {
	order := domain.Severities()
	require.Equal(t, []domain.Severity{
		domain.SeverityInfo,
		domain.SeverityWarning,
		domain.SeverityError,
		domain.SeverityCritical,
	}, order)

	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank(),
			"%s must outrank %s", order[i], order[i-1])
	}

	assert.True(t, domain.SeverityCritical.AtLeast(domain.SeverityInfo))
	assert.True(t, domain.SeverityError.AtLeast(domain.SeverityError))
	assert.False(t, domain.SeverityInfo.AtLeast(domain.SeverityWarning))

	// Unknown severities rank below everything known.
	assert.Equal(t, -1, domain.Severity("bogus").Rank())
	assert.False(t, domain.Severity("bogus").Valid())
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name     string
		loc      domain.Location
		expected string
	}{
		{
			name:     "zero location",
			loc:      domain.Location{},
			expected: "",
		},
		{
			name:     "line only",
			loc:      domain.Location{Line: 42},
			expected: "42",
		},
		{
			name:     "line and column",
			loc:      domain.Location{Line: 42, Column: 7},
			expected: "42:7",
		},
		{
			name:     "multi-line span",
			loc:      domain.Location{Line: 10, EndLine: 14},
			expected: "10-14",
		},
		{
			name:     "column and span",
			loc:      domain.Location{Line: 10, Column: 3, EndLine: 14},
			expected: "10:3-14",
		},
		{
			name:     "end line equal to line collapses",
			loc:      domain.Location{Line: 10, EndLine: 10},
			expected: "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.loc.String())
		})
	}
}

func TestFinding_Validate(t *testing.T) {
	tests := []struct {
		name    string
		finding domain.Finding
		wantErr error
	}{
		{
			name: "valid finding",
			finding: domain.Finding{
				Severity: domain.SeverityWarning,
				Message:  "line too long",
				Source:   "static",
			},
		},
		{
			name: "valid with location and rule",
			finding: domain.Finding{
				Severity: domain.SeverityError,
				Message:  "use of eval",
				Location: domain.Location{Line: 3, Column: 1},
				RuleID:   "dangerous-call",
				Source:   "static",
			},
		},
		{
			name: "invalid severity",
			finding: domain.Finding{
				Severity: "fatal",
				Message:  "boom",
				Source:   "static",
			},
			wantErr: domain.ErrInvalidSeverity,
		},
		{
			name: "empty message",
			finding: domain.Finding{
				Severity: domain.SeverityInfo,
				Message:  "   ",
				Source:   "static",
			},
			wantErr: domain.ErrEmptyMessage,
		},
		{
			name: "missing source",
			finding: domain.Finding{
				Severity: domain.SeverityInfo,
				Message:  "note",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.finding.Validate()
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.finding.Source == "":
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestNewFinding(t *testing.T) {
	f, err := domain.NewFinding(domain.SeverityCritical, "hardcoded secret", "secrets-check")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, f.Severity)
	assert.Equal(t, "secrets-check", f.Source)

	_, err = domain.NewFinding("bogus", "msg", "src")
	require.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestCountBySeverity(t *testing.T) {
	findings := []domain.Finding{
		{Severity: domain.SeverityInfo, Message: "a", Source: "s"},
		{Severity: domain.SeverityWarning, Message: "b", Source: "s"},
		{Severity: domain.SeverityWarning, Message: "c", Source: "s"},
		{Severity: domain.SeverityCritical, Message: "d", Source: "s"},
	}

	counts := domain.CountBySeverity(findings)
	assert.Equal(t, 1, counts[domain.SeverityInfo])
	assert.Equal(t, 2, counts[domain.SeverityWarning])
	assert.Zero(t, counts[domain.SeverityError])
	assert.Equal(t, 1, counts[domain.SeverityCritical])

	assert.Empty(t, domain.CountBySeverity(nil))
}

func TestMaxSeverity(t *testing.T) {
	_, ok := domain.MaxSeverity(nil)
	assert.False(t, ok)

	max, ok := domain.MaxSeverity([]domain.Finding{
		{Severity: domain.SeverityWarning, Message: "a", Source: "s"},
		{Severity: domain.SeverityCritical, Message: "b", Source: "s"},
		{Severity: domain.SeverityInfo, Message: "c", Source: "s"},
	})
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, max)
}
