package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Class categorizes analysis backend failures for retry and fallback
// decisions. Timeout, quota, and transient failures are retried with
// backoff before falling through to the next backend in the chain;
// auth and permanent failures fall through immediately.
type Class string

const (
	// ClassTimeout indicates the per-call deadline elapsed (retryable).
	ClassTimeout Class = "timeout"

	// ClassQuota indicates a rate limit or quota rejection; retried with
	// backoff honoring any server-provided retry-after (retryable).
	ClassQuota Class = "quota_exceeded"

	// ClassAuth indicates authentication or authorization failure;
	// retrying with the same credentials cannot succeed (non-retryable).
	ClassAuth Class = "auth_failure"

	// ClassTransient indicates network failures or provider 5xx
	// responses expected to clear on their own (retryable).
	ClassTransient Class = "transient"

	// ClassPermanent indicates a failure that will recur on identical
	// input, such as a rejected request shape (non-retryable).
	ClassPermanent Class = "permanent"
)

// Retryable reports whether failures of this class warrant another
// attempt against the same backend.
func (c Class) Retryable() bool {
	switch c {
	case ClassTimeout, ClassQuota, ClassTransient:
		return true
	default:
		return false
	}
}

// Common backend errors for consistent error handling.
var (
	// ErrNoBackends indicates a chain configured with no backends.
	ErrNoBackends = errors.New("fallback chain has no backends")

	// ErrChainExhausted indicates every backend in the chain failed.
	ErrChainExhausted = errors.New("all backends in chain exhausted")

	// ErrBackendNotFound indicates a chain entry naming an unregistered backend.
	ErrBackendNotFound = errors.New("backend not found")

	// ErrCircuitOpen indicates the backend's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrEmptyResponse indicates a provider returned no parseable content.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Error represents a classified failure from an analysis backend.
// The Class drives retry and fallback policy; the remaining fields
// carry provider context for logs and chain-exhaustion reports.
type Error struct {
	// Provider is the failing backend's name.
	Provider string `json:"provider"`

	// Class categorizes the failure for retry decisions.
	Class Class `json:"class"`

	// Code is the provider-specific error code, when one was returned.
	Code string `json:"code,omitempty"`

	// Message is the failure description.
	Message string `json:"message"`

	// StatusCode is the HTTP status for wire-level failures, 0 otherwise.
	StatusCode int `json:"status_code,omitempty"`

	// RetryAfter is the server-requested wait in seconds, 0 when absent.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: [%s] %s", e.Provider, e.Class, e.Message)
}

// IsRetryable reports whether this failure warrants another attempt
// against the same backend.
func (e *Error) IsRetryable() bool { return e.Class.Retryable() }

// GetRetryAfter returns the server-requested wait duration, or zero
// when the provider gave none.
func (e *Error) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// BackendAttempt summarizes how one chain entry failed, for the
// chain-exhaustion report.
type BackendAttempt struct {
	// Backend is the chain entry's name.
	Backend string `json:"backend"`

	// Attempts is how many calls were made, including retries.
	Attempts int `json:"attempts"`

	// Class is the final failure's classification.
	Class Class `json:"class"`

	// Err is the final failure's message.
	Err string `json:"error"`
}

// ChainExhaustedError reports that every backend in the fallback chain
// failed for a task, with per-backend attempt detail. It unwraps to
// ErrChainExhausted so callers can match with errors.Is.
type ChainExhaustedError struct {
	// Attempts records the failure of each chain entry in order.
	Attempts []BackendAttempt `json:"attempts"`
}

// Error implements the error interface.
func (e *ChainExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%d attempts, %s)", a.Backend, a.Attempts, a.Class)
	}
	return fmt.Sprintf("all backends exhausted: %s", strings.Join(parts, "; "))
}

// Unwrap enables errors.Is(err, ErrChainExhausted).
func (e *ChainExhaustedError) Unwrap() error { return ErrChainExhausted }

// retryAfterProvider is implemented by errors that carry a
// server-requested retry delay.
type retryAfterProvider interface {
	GetRetryAfter() time.Duration
}

// IsRetryable determines whether an error warrants another attempt
// against the same backend. Classified errors consult their class;
// context cancellation is never retryable; unclassified network-level
// failures are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.IsRetryable()
	}

	return Classify(err).Retryable()
}

// RetryAfterHint extracts the server-requested wait from an error
// chain, or zero when no hint is present.
func RetryAfterHint(err error) time.Duration {
	var provider retryAfterProvider
	if errors.As(err, &provider) {
		return provider.GetRetryAfter()
	}
	return 0
}

// ClassOf extracts the failure class from an error chain, classifying
// unrecognized errors by their shape.
func ClassOf(err error) Class {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Class
	}
	return Classify(err)
}

// Classify maps an unclassified error to a failure class by shape:
// deadline errors to timeout, network errors to transient, everything
// else to permanent.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransient
	}

	return ClassPermanent
}

// ClassifyStatus maps an HTTP status code and provider error code to a
// failure class. Provider error-code substrings refine ambiguous
// statuses: a 429 is quota pressure either way, but an explicit
// insufficient-quota code on another status still classifies as quota.
func ClassifyStatus(statusCode int, code string) Class {
	lower := strings.ToLower(code)
	switch {
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate_limit"), strings.Contains(lower, "rate limit"):
		return ClassQuota
	case strings.Contains(lower, "auth"), strings.Contains(lower, "api key"), strings.Contains(lower, "api_key"):
		return ClassAuth
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		return ClassAuth
	case statusCode == 408:
		return ClassTimeout
	case statusCode == 429:
		return ClassQuota
	case statusCode >= 500:
		return ClassTransient
	case statusCode >= 400:
		return ClassPermanent
	default:
		return ClassTransient
	}
}
