package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/domain"
)

func validResult() *domain.ReviewResult {
	return &domain.ReviewResult{
		ArtifactName: "app.py",
		Language:     domain.LanguagePython,
		Fingerprint:  domain.Fingerprint("fp-abc123"),
		Findings: []domain.Finding{
			{Severity: domain.SeverityWarning, Message: "line too long", Source: "static"},
		},
		Score:       95,
		Provider:    "static",
		CompletedAt: time.Now().UTC(),
	}
}

func TestReviewResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*domain.ReviewResult)
		wantErr error
	}{
		{
			name:   "valid result",
			modify: func(_ *domain.ReviewResult) {},
		},
		{
			name: "missing fingerprint",
			modify: func(r *domain.ReviewResult) {
				r.Fingerprint = ""
			},
			wantErr: domain.ErrMissingFingerprint,
		},
		{
			name: "score above range",
			modify: func(r *domain.ReviewResult) {
				r.Score = 101
			},
			wantErr: domain.ErrScoreOutOfRange,
		},
		{
			name: "score below range",
			modify: func(r *domain.ReviewResult) {
				r.Score = -0.5
			},
			wantErr: domain.ErrScoreOutOfRange,
		},
		{
			name: "boundary scores valid",
			modify: func(r *domain.ReviewResult) {
				r.Score = 0
			},
		},
		{
			name: "no findings is valid",
			modify: func(r *domain.ReviewResult) {
				r.Findings = nil
				r.Score = 100
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validResult()
			tt.modify(r)
			err := r.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReviewResult_MarkDegraded(t *testing.T) {
	r := validResult()
	require.False(t, r.Degraded)

	r.MarkDegraded("style-hook", domain.PhasePre, "hook timed out")
	r.MarkDegraded("openai", domain.PhaseBackend, "chain exhausted")

	assert.True(t, r.Degraded)
	require.Len(t, r.Degradations, 2)
	assert.Equal(t, "style-hook", r.Degradations[0].Component)
	assert.Equal(t, domain.PhasePre, r.Degradations[0].Phase)
	assert.Equal(t, domain.PhaseBackend, r.Degradations[1].Phase)
	require.NoError(t, r.Validate())
}

func TestReviewResult_MarkDegraded_TruncatesLongReason(t *testing.T) {
	r := validResult()
	r.MarkDegraded("panicky-hook", domain.PhaseCheck, strings.Repeat("x", 5000))

	require.Len(t, r.Degradations, 1)
	assert.Len(t, r.Degradations[0].Reason, 1024)
	require.NoError(t, r.Validate())
}

func TestReviewResult_Clone(t *testing.T) {
	r := validResult()
	r.MarkDegraded("c", domain.PhasePost, "reason")

	clone := r.Clone()
	require.NotSame(t, r, clone)
	assert.Equal(t, r, clone)

	// Mutating the clone must not leak into the original.
	clone.Findings[0].Message = "mutated"
	clone.Findings = append(clone.Findings, domain.Finding{
		Severity: domain.SeverityInfo, Message: "extra", Source: "s",
	})
	clone.Degradations[0].Reason = "mutated"
	clone.Score = 1

	assert.Equal(t, "line too long", r.Findings[0].Message)
	assert.Len(t, r.Findings, 1)
	assert.Equal(t, "reason", r.Degradations[0].Reason)
	assert.Equal(t, 95.0, r.Score)

	var nilResult *domain.ReviewResult
	assert.Nil(t, nilResult.Clone())
}

func TestReviewResult_SameIdentity(t *testing.T) {
	r := validResult()

	same := r.Clone()
	same.Score = 10
	same.Findings = nil
	assert.True(t, r.SameIdentity(same))

	renamed := r.Clone()
	renamed.ArtifactName = "other.py"
	assert.False(t, r.SameIdentity(renamed))

	refingered := r.Clone()
	refingered.Fingerprint = domain.Fingerprint("fp-other")
	assert.False(t, r.SameIdentity(refingered))

	assert.False(t, r.SameIdentity(nil))
}

func TestReviewRecord_Validate(t *testing.T) {
	rec := &domain.ReviewRecord{
		ID:           "123e4567-e89b-12d3-a456-426614174000",
		ReviewResult: *validResult(),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, rec.Validate())

	rec.ID = "not-a-uuid"
	require.Error(t, rec.Validate())

	rec.ID = "123e4567-e89b-12d3-a456-426614174000"
	rec.Fingerprint = ""
	require.ErrorIs(t, rec.Validate(), domain.ErrMissingFingerprint)
}

func TestReviewRecord_RetentionEligible(t *testing.T) {
	now := time.Now().UTC()
	rec := &domain.ReviewRecord{CreatedAt: now.Add(-48 * time.Hour)}

	assert.True(t, rec.RetentionEligible(now.Add(-24*time.Hour)))
	assert.False(t, rec.RetentionEligible(now.Add(-72*time.Hour)))
	assert.False(t, rec.RetentionEligible(rec.CreatedAt))
}
