package autofix

import (
	"errors"
	"fmt"
)

// Auto-fix errors.
var (
	// ErrNoReviewer indicates executor construction without a reviewer.
	ErrNoReviewer = errors.New("auto-fix requires a reviewer")

	// ErrNoActions indicates an apply call with nothing to run.
	ErrNoActions = errors.New("auto-fix requires at least one action")

	// ErrEmptyCommand indicates an action whose template rendered to an
	// empty command line.
	ErrEmptyCommand = errors.New("action command is empty")

	// ErrScoreRegressed indicates the fixed content scored worse than
	// the original and was rolled back.
	ErrScoreRegressed = errors.New("fixed content scored worse than original")
)

// FixError reports why an auto-fix run rolled back. The working copy
// has already been restored from the backup when this error is
// returned; the canonical artifact was never touched.
type FixError struct {
	// ActionIndex is the zero-based index of the failing action, -1
	// when validation rather than an action failed.
	ActionIndex int

	// Action names the failing action, empty for validation failures.
	Action string

	// ExitCode is the failing action's exit status, -1 when the process
	// was killed or never ran.
	ExitCode int

	// ScoreBefore and ScoreAfter frame a score regression. ScoreAfter
	// is zero when no validation review completed.
	ScoreBefore float64
	ScoreAfter  float64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FixError) Error() string {
	if e.ActionIndex >= 0 {
		return fmt.Sprintf("auto-fix action %d (%s) failed with exit code %d: %v",
			e.ActionIndex, e.Action, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("auto-fix validation failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *FixError) Unwrap() error { return e.Err }
