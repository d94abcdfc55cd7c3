package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-critique/internal/domain"
)

// Export writes one record as indented JSON into the destination
// directory (created if missing, current directory when empty) and
// returns the file path.
func (s *Store) Export(ctx context.Context, id, destination string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	path, err := exportPath(destination, fmt.Sprintf("review_%s.json", shortID(rec.ID)))
	if err != nil {
		return "", err
	}
	if err := writeJSON(path, rec); err != nil {
		return "", err
	}

	s.logger.Info("review exported", "id", rec.ID, "path", path)
	return path, nil
}

// exportManifest is the envelope ExportAll writes around the full
// record set.
type exportManifest struct {
	ExportedAt time.Time             `json:"exported_at"`
	Count      int                   `json:"count"`
	Reviews    []domain.ReviewRecord `json:"reviews"`
}

// ExportAll writes every record, oldest first, into a single
// timestamped JSON file in the destination directory and returns the
// file path.
func (s *Store) ExportAll(ctx context.Context, destination string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews ORDER BY created_at ASC`)
	if err != nil {
		return "", fmt.Errorf("read reviews: %w", err)
	}
	defer rows.Close()

	manifest := exportManifest{ExportedAt: time.Now().UTC()}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return "", err
		}
		manifest.Reviews = append(manifest.Reviews, *rec)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	manifest.Count = len(manifest.Reviews)

	name := fmt.Sprintf("reviews_export_%s.json", manifest.ExportedAt.Format("20060102T150405"))
	path, err := exportPath(destination, name)
	if err != nil {
		return "", err
	}
	if err := writeJSON(path, manifest); err != nil {
		return "", err
	}

	s.logger.Info("all reviews exported", "count", manifest.Count, "path", path)
	return path, nil
}

func exportPath(destination, filename string) (string, error) {
	if destination == "" {
		destination = "."
	}
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	return filepath.Join(destination, filename), nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// shortID returns the first uuid group for human-friendly filenames.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
