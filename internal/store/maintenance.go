package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-critique/internal/domain"
)

// ErrInvalidRetention indicates a non-positive retention window.
var ErrInvalidRetention = errors.New("retention window must be positive")

// Cleanup deletes records created longer than olderThan ago and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reviews WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup reviews: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count removed reviews: %w", err)
	}

	if removed > 0 {
		s.logger.Info("retention cleanup", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// ScorePoint is one entry in an artifact's score history.
type ScorePoint struct {
	Score     float64   `json:"score"`
	Provider  string    `json:"provider"`
	Degraded  bool      `json:"degraded"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreHistory returns an artifact's most recent scores, newest first.
// A zero limit means DefaultSearchLimit.
func (s *Store) ScoreHistory(ctx context.Context, artifact string, limit int) ([]ScorePoint, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT score, provider, degraded, created_at FROM reviews
		 WHERE artifact_name = ? ORDER BY created_at DESC LIMIT ?`,
		artifact, limit)
	if err != nil {
		return nil, fmt.Errorf("score history: %w", err)
	}
	defer rows.Close()

	var points []ScorePoint
	for rows.Next() {
		var (
			p         ScorePoint
			createdAt string
		)
		if err := rows.Scan(&p.Score, &p.Provider, &p.Degraded, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Trend aggregates one day of review activity.
type Trend struct {
	// Day is the UTC calendar day in "2006-01-02" form.
	Day string `json:"day"`

	// Reviews is how many records were created that day.
	Reviews int `json:"reviews"`

	// MeanScore is the average score across those records.
	MeanScore float64 `json:"mean_score"`

	// Degraded counts records that completed with degradations.
	Degraded int `json:"degraded"`

	// Findings counts findings by severity across all records that day.
	Findings map[domain.Severity]int `json:"findings"`
}

// Trends returns per-day quality aggregates for records created at or
// after since, in chronological order.
func (s *Store) Trends(ctx context.Context, since time.Time) ([]Trend, error) {
	sinceArg := formatTime(since)

	rows, err := s.db.QueryContext(ctx,
		`SELECT date(created_at) AS day, COUNT(*), AVG(score), SUM(degraded)
		 FROM reviews WHERE created_at >= ?
		 GROUP BY day ORDER BY day ASC`, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("trend aggregates: %w", err)
	}
	defer rows.Close()

	var trends []Trend
	index := make(map[string]int)
	for rows.Next() {
		var t Trend
		if err := rows.Scan(&t.Day, &t.Reviews, &t.MeanScore, &t.Degraded); err != nil {
			return nil, err
		}
		t.Findings = make(map[domain.Severity]int)
		index[t.Day] = len(trends)
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sevRows, err := s.db.QueryContext(ctx,
		`SELECT date(r.created_at) AS day,
		        json_extract(jf.value, '$.severity') AS severity,
		        COUNT(*)
		 FROM reviews r, json_each(r.findings) jf
		 WHERE r.created_at >= ?
		 GROUP BY day, severity`, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("trend severity counts: %w", err)
	}
	defer sevRows.Close()

	for sevRows.Next() {
		var (
			day, severity string
			count         int
		)
		if err := sevRows.Scan(&day, &severity, &count); err != nil {
			return nil, err
		}
		if i, ok := index[day]; ok {
			trends[i].Findings[domain.Severity(severity)] = count
		}
	}
	return trends, sevRows.Err()
}
