// Package store persists review records in SQLite and answers the
// historical queries built on them: point lookups, predicate search,
// JSON export, retention cleanup, and quality-trend aggregation.
//
// The store owns an explicit Open/Close lifecycle with no ambient
// global state. It uses the pure-Go modernc.org/sqlite driver with a
// single write connection, WAL journaling, and a busy timeout, which
// makes it safe for the agent's concurrent workers without external
// coordination. The schema is managed by ordered, versioned
// migrations recorded in a schema_migrations table.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ahrav/go-critique/internal/configuration"
)

// ErrNotFound indicates no record matched the requested id or
// fingerprint.
var ErrNotFound = errors.New("review record not found")

// busyTimeoutMS bounds how long a write waits on a locked database
// before failing instead of returning SQLITE_BUSY immediately.
const busyTimeoutMS = 5000

// timeLayout is the fixed-width UTC timestamp format used in every
// time column. Fixed width keeps lexicographic ordering identical to
// chronological ordering, which the created_at indexes rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed review archive. Safe for concurrent use;
// writes serialize on a single connection.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithLogger sets the logger for lifecycle and maintenance events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens or creates the database at path, applies pragmas and any
// pending migrations, and returns a ready store.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = configuration.DefaultStorePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and funneling all
	// access through one connection avoids SQLITE_BUSY churn under the
	// agent's worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s.logger.Info("store opened", "path", path)
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Tolerate older rows written with second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
