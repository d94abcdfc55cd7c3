package store_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/domain"
	"github.com/ahrav/go-critique/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "critique.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(name string, score float64, findings ...domain.Finding) *domain.ReviewResult {
	return &domain.ReviewResult{
		ArtifactName: name,
		Language:     domain.LanguagePython,
		Fingerprint:  domain.Fingerprint("fp-" + name),
		Findings:     findings,
		Score:        score,
		Provider:     "static",
		CompletedAt:  time.Now().UTC(),
	}
}

func TestStore_OpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critique.db")

	s1, err := store.Open(path)
	require.NoError(t, err)
	_, err = s1.Save(context.Background(), sampleResult("a.py", 90))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening applies no duplicate migrations and sees the data.
	s2, err := store.Open(path)
	require.NoError(t, err)
	defer s2.Close()

	records, err := s2.Search(context.Background(), store.Query{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_SaveAndGetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	result := sampleResult("app.py", 72.5,
		domain.Finding{
			Severity: domain.SeverityCritical,
			Message:  "os.system() spawns a shell",
			Location: domain.Location{Line: 12, Column: 3},
			RuleID:   "dangerous-call",
			Source:   "static",
		},
		domain.Finding{
			Severity: domain.SeverityInfo,
			Message:  "TODO marker left in code",
			Location: domain.Location{Line: 4},
			RuleID:   "todo-marker",
			Source:   "static",
		},
	)
	result.MarkDegraded("openai", domain.PhaseBackend, "quota exhausted")

	saved, err := s.Save(ctx, result)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)

	assert.Equal(t, "app.py", got.ArtifactName)
	assert.Equal(t, domain.LanguagePython, got.Language)
	assert.Equal(t, result.Fingerprint, got.Fingerprint)
	assert.Equal(t, 72.5, got.Score)
	assert.Equal(t, "static", got.Provider)
	assert.True(t, got.Degraded)

	require.Len(t, got.Findings, 2)
	assert.Equal(t, domain.SeverityCritical, got.Findings[0].Severity)
	assert.Equal(t, 12, got.Findings[0].Location.Line)
	assert.Equal(t, 3, got.Findings[0].Location.Column)

	require.Len(t, got.Degradations, 1)
	assert.Equal(t, "openai", got.Degradations[0].Component)
	assert.Equal(t, domain.PhaseBackend, got.Degradations[0].Phase)
}

func TestStore_SaveRejectsInvalidResult(t *testing.T) {
	s := openStore(t)

	bad := sampleResult("x.py", 90)
	bad.Score = 150

	_, err := s.Save(context.Background(), bad)
	require.Error(t, err)

	_, err = s.Save(context.Background(), nil)
	require.Error(t, err)
}

func TestStore_GetMissingRecord(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "no-such-id")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_LatestPicksNewest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := sampleResult("app.py", 60)
	_, err := s.Save(ctx, first)
	require.NoError(t, err)

	second := sampleResult("app.py", 85)
	saved, err := s.Save(ctx, second)
	require.NoError(t, err)

	got, err := s.Latest(ctx, first.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 85.0, got.Score)

	_, err = s.Latest(ctx, domain.Fingerprint("unknown"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SearchPredicates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	critical := sampleResult("cmd/server/main.go", 40,
		domain.Finding{Severity: domain.SeverityCritical, Message: "unsafe pointer cast", Source: "static"})
	critical.Language = domain.LanguageGo
	critical.Provider = "openai"
	_, err := s.Save(ctx, critical)
	require.NoError(t, err)

	warning := sampleResult("scripts/build.py", 88,
		domain.Finding{Severity: domain.SeverityWarning, Message: "line is 140 characters", Source: "static"})
	_, err = s.Save(ctx, warning)
	require.NoError(t, err)

	clean := sampleResult("lib/util.py", 100)
	_, err = s.Save(ctx, clean)
	require.NoError(t, err)

	tests := []struct {
		name      string
		query     store.Query
		wantNames []string
	}{
		{
			name:      "no predicates returns all newest first",
			query:     store.Query{},
			wantNames: []string{"lib/util.py", "scripts/build.py", "cmd/server/main.go"},
		},
		{
			name:      "artifact name substring",
			query:     store.Query{ArtifactName: "build"},
			wantNames: []string{"scripts/build.py"},
		},
		{
			name:      "provider",
			query:     store.Query{Provider: "openai"},
			wantNames: []string{"cmd/server/main.go"},
		},
		{
			name:      "language",
			query:     store.Query{Language: domain.LanguageGo},
			wantNames: []string{"cmd/server/main.go"},
		},
		{
			name:      "score range",
			query:     store.Query{MinScore: ptr(50.0), MaxScore: ptr(90.0)},
			wantNames: []string{"scripts/build.py"},
		},
		{
			name:      "min severity filters clean and low records",
			query:     store.Query{MinSeverity: domain.SeverityError},
			wantNames: []string{"cmd/server/main.go"},
		},
		{
			name:      "free text over finding messages",
			query:     store.Query{Text: "140 characters"},
			wantNames: []string{"scripts/build.py"},
		},
		{
			name:      "oldest first with limit",
			query:     store.Query{OldestFirst: true, Limit: 2},
			wantNames: []string{"cmd/server/main.go", "scripts/build.py"},
		},
		{
			name:      "offset pagination",
			query:     store.Query{Offset: 1},
			wantNames: []string{"scripts/build.py", "cmd/server/main.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.Search(ctx, tt.query)
			require.NoError(t, err)

			names := make([]string, len(records))
			for i, rec := range records {
				names[i] = rec.ArtifactName
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestStore_SearchRejectsUnknownSeverity(t *testing.T) {
	s := openStore(t)
	_, err := s.Search(context.Background(), store.Query{MinSeverity: domain.Severity("fatal")})
	require.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestStore_SearchDateRange(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, sampleResult("a.py", 90))
	require.NoError(t, err)

	records, err := s.Search(ctx, store.Query{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = s.Search(ctx, store.Query{Until: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_Export(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, sampleResult("app.py", 95))
	require.NoError(t, err)

	dest := t.TempDir()
	path, err := s.Export(ctx, saved.ID, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec domain.ReviewRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, saved.ID, rec.ID)
	assert.Equal(t, "app.py", rec.ArtifactName)
}

func TestStore_ExportAll(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, sampleResult("a.py", 90))
	require.NoError(t, err)
	_, err = s.Save(ctx, sampleResult("b.py", 80))
	require.NoError(t, err)

	path, err := s.ExportAll(ctx, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var manifest struct {
		Count   int                   `json:"count"`
		Reviews []domain.ReviewRecord `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, 2, manifest.Count)
	require.Len(t, manifest.Reviews, 2)

	// Chronological order: oldest record first.
	assert.Equal(t, "a.py", manifest.Reviews[0].ArtifactName)
}

func TestStore_Cleanup(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, sampleResult("old.py", 90))
	require.NoError(t, err)

	// Everything is newer than an hour: nothing to remove.
	removed, err := s.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// Let the record age past a tiny retention window.
	time.Sleep(10 * time.Millisecond)
	removed, err = s.Cleanup(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	records, err := s.Search(ctx, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_CleanupRejectsNonPositiveRetention(t *testing.T) {
	s := openStore(t)
	_, err := s.Cleanup(context.Background(), 0)
	require.ErrorIs(t, err, store.ErrInvalidRetention)
}

func TestStore_ScoreHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, score := range []float64{60, 75, 90} {
		_, err := s.Save(ctx, sampleResult("app.py", score))
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, sampleResult("other.py", 10))
	require.NoError(t, err)

	points, err := s.ScoreHistory(ctx, "app.py", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Newest first.
	assert.Equal(t, 90.0, points[0].Score)
	assert.Equal(t, 75.0, points[1].Score)
}

func TestStore_Trends(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, sampleResult("a.py", 80,
		domain.Finding{Severity: domain.SeverityError, Message: "use of eval()", Source: "static"},
		domain.Finding{Severity: domain.SeverityError, Message: "use of exec()", Source: "static"},
		domain.Finding{Severity: domain.SeverityInfo, Message: "TODO marker", Source: "static"}))
	require.NoError(t, err)

	degraded := sampleResult("b.py", 60)
	degraded.MarkDegraded("openai", domain.PhaseBackend, "timeout")
	_, err = s.Save(ctx, degraded)
	require.NoError(t, err)

	trends, err := s.Trends(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, trends, 1)

	day := trends[0]
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), day.Day)
	assert.Equal(t, 2, day.Reviews)
	assert.InDelta(t, 70.0, day.MeanScore, 0.001)
	assert.Equal(t, 1, day.Degraded)
	assert.Equal(t, 2, day.Findings[domain.SeverityError])
	assert.Equal(t, 1, day.Findings[domain.SeverityInfo])
}

func ptr[T any](v T) *T { return &v }
