package pipeline

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-critique/internal/domain"
)

// ErrHookPanic marks failures recovered from a panicking component.
var ErrHookPanic = errors.New("component panicked")

// ErrMalformedResult marks a component output that violated its
// contract: a pre-hook emptying non-empty content, or a post-hook
// returning nil or altering the result's identity.
var ErrMalformedResult = errors.New("malformed component result")

// HookError reports a pre- or post-hook failure. Hook errors never
// abort a review; they surface as degradation annotations.
type HookError struct {
	// Hook is the registered component name.
	Hook string
	// Phase is the stage the hook ran in.
	Phase domain.Phase
	// Err is the underlying failure: the hook's error, a timeout, a
	// recovered panic, or a contract violation.
	Err error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q: %v", e.Phase, e.Hook, e.Err)
}

// Unwrap supports errors.Is/As chains.
func (e *HookError) Unwrap() error { return e.Err }

// CheckError reports a custom-check failure. Check errors never abort
// a review; they surface as degradation annotations.
type CheckError struct {
	// Check is the registered component name.
	Check string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	return fmt.Sprintf("check %q: %v", e.Check, e.Err)
}

// Unwrap supports errors.Is/As chains.
func (e *CheckError) Unwrap() error { return e.Err }
