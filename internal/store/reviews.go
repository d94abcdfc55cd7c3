package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-critique/internal/domain"
)

// Search pagination bounds.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)

const reviewColumns = `id, artifact_name, language, fingerprint, findings, score,
	provider, tokens_used, degraded, degradations, completed_at, created_at`

// Save persists a computed result as a new immutable record and
// returns it with its assigned id and creation time. The result is
// validated first; the stored copy does not alias the caller's
// findings.
func (s *Store) Save(ctx context.Context, result *domain.ReviewResult) (*domain.ReviewRecord, error) {
	if result == nil {
		return nil, errors.New("cannot save nil result")
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}

	record := &domain.ReviewRecord{
		ID:           uuid.NewString(),
		ReviewResult: *result.Clone(),
		CreatedAt:    time.Now().UTC(),
	}

	findingsJSON, err := marshalJSONArray(record.Findings)
	if err != nil {
		return nil, fmt.Errorf("encode findings: %w", err)
	}
	degradationsJSON, err := marshalJSONArray(record.Degradations)
	if err != nil {
		return nil, fmt.Errorf("encode degradations: %w", err)
	}

	rank := -1
	if max, ok := domain.MaxSeverity(record.Findings); ok {
		rank = max.Rank()
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO reviews
		(id, artifact_name, language, fingerprint, findings, score,
		 provider, tokens_used, degraded, degradations, max_severity_rank,
		 completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ArtifactName,
		string(record.Language),
		string(record.Fingerprint),
		findingsJSON,
		record.Score,
		record.Provider,
		record.TokensUsed,
		record.Degraded,
		degradationsJSON,
		rank,
		formatTime(record.CompletedAt),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert review: %w", err)
	}

	s.logger.Debug("review saved",
		"id", record.ID,
		"artifact", record.ArtifactName,
		"score", record.Score,
		"findings", len(record.Findings))
	return record, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return rec, err
}

// Latest returns the most recently created record for a fingerprint,
// or ErrNotFound. This is the record "current" for that content.
func (s *Store) Latest(ctx context.Context, fp domain.Fingerprint) (*domain.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`, string(fp))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: fingerprint %s", ErrNotFound, fp.Short())
	}
	return rec, err
}

// Query describes a composable search over persisted reviews. Zero
// fields do not constrain; set fields combine with AND.
type Query struct {
	// ArtifactName keeps records whose name contains the value.
	ArtifactName string

	// Provider keeps records produced by this backend.
	Provider string

	// Language keeps records with this artifact language.
	Language domain.Language

	// Since and Until bound creation time inclusively; zero means
	// unbounded on that side.
	Since time.Time
	Until time.Time

	// MinScore and MaxScore bound the score; nil means unbounded.
	MinScore *float64
	MaxScore *float64

	// MinSeverity keeps records with at least one finding at this
	// severity or above.
	MinSeverity domain.Severity

	// Text keeps records with a finding message containing the value.
	Text string

	// OldestFirst flips the default newest-first ordering.
	OldestFirst bool

	// Limit caps the result count; 0 means DefaultSearchLimit, values
	// above MaxSearchLimit are clamped.
	Limit int

	// Offset skips that many records for pagination.
	Offset int
}

// Search returns records matching every set predicate, ordered by
// creation time.
func (s *Store) Search(ctx context.Context, q Query) ([]domain.ReviewRecord, error) {
	var conds []string
	var args []any

	if q.ArtifactName != "" {
		conds = append(conds, "artifact_name LIKE ?")
		args = append(args, "%"+q.ArtifactName+"%")
	}
	if q.Provider != "" {
		conds = append(conds, "provider = ?")
		args = append(args, q.Provider)
	}
	if q.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, string(q.Language))
	}
	if !q.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(q.Since))
	}
	if !q.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(q.Until))
	}
	if q.MinScore != nil {
		conds = append(conds, "score >= ?")
		args = append(args, *q.MinScore)
	}
	if q.MaxScore != nil {
		conds = append(conds, "score <= ?")
		args = append(args, *q.MaxScore)
	}
	if q.MinSeverity != "" {
		if !q.MinSeverity.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSeverity, q.MinSeverity)
		}
		conds = append(conds, "max_severity_rank >= ?")
		args = append(args, q.MinSeverity.Rank())
	}
	if q.Text != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM json_each(reviews.findings) jf
			WHERE json_extract(jf.value, '$.message') LIKE ?)`)
		args = append(args, "%"+q.Text+"%")
	}

	query := `SELECT ` + reviewColumns + ` FROM reviews`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if q.OldestFirst {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search reviews: %w", err)
	}
	defer rows.Close()

	var records []domain.ReviewRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ReviewRecord, error) {
	var (
		rec                            domain.ReviewRecord
		language, fingerprint          string
		findingsJSON, degradationsJSON string
		completedAt, createdAt         string
	)
	err := row.Scan(
		&rec.ID,
		&rec.ArtifactName,
		&language,
		&fingerprint,
		&findingsJSON,
		&rec.Score,
		&rec.Provider,
		&rec.TokensUsed,
		&rec.Degraded,
		&degradationsJSON,
		&completedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Language = domain.Language(language)
	rec.Fingerprint = domain.Fingerprint(fingerprint)

	if err := json.Unmarshal([]byte(findingsJSON), &rec.Findings); err != nil {
		return nil, fmt.Errorf("decode findings for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(degradationsJSON), &rec.Degradations); err != nil {
		return nil, fmt.Errorf("decode degradations for %s: %w", rec.ID, err)
	}
	if rec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at for %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// marshalJSONArray encodes a slice, mapping nil to the empty array so
// column values are always valid JSON arrays.
func marshalJSONArray[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
