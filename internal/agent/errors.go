package agent

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-critique/internal/domain"
)

// ErrNoAnalyzer indicates agent construction without an analysis chain.
var ErrNoAnalyzer = errors.New("agent requires an analyzer")

// PersistenceError reports a computed result that could not be saved.
// The review itself succeeded: the task result still carries the
// in-memory ReviewResult and the cache retains it, so callers decide
// whether an unsaved review is acceptable.
type PersistenceError struct {
	// Fingerprint identifies the review that failed to persist.
	Fingerprint domain.Fingerprint

	// Err is the underlying store error.
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting review %s: %v", e.Fingerprint.Short(), e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error { return e.Err }
