package store

import (
	"fmt"
	"time"
)

// migration is one ordered schema change. Version numbers are
// contiguous from 1; applied versions are recorded in
// schema_migrations and never re-run.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create reviews",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS reviews (
				id                TEXT PRIMARY KEY,
				artifact_name     TEXT NOT NULL,
				language          TEXT NOT NULL,
				fingerprint       TEXT NOT NULL,
				findings          TEXT NOT NULL DEFAULT '[]',
				score             REAL NOT NULL,
				provider          TEXT NOT NULL DEFAULT '',
				tokens_used       INTEGER NOT NULL DEFAULT 0,
				degraded          INTEGER NOT NULL DEFAULT 0,
				degradations      TEXT NOT NULL DEFAULT '[]',
				max_severity_rank INTEGER NOT NULL DEFAULT -1,
				completed_at      TEXT NOT NULL,
				created_at        TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reviews_fingerprint
				ON reviews(fingerprint, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_reviews_artifact
				ON reviews(artifact_name, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_reviews_created
				ON reviews(created_at DESC)`,
		},
	},
}

// migrate applies all migrations newer than the recorded schema
// version, each inside its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, formatTime(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		s.logger.Info("migration applied", "version", m.version, "name", m.name)
	}
	return nil
}
