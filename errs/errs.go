// Package errs classifies every failure the query path can produce so
// callers branch on a kind instead of probing error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of an Error.
type Kind string

const (
	// InvalidInput marks requests rejected before any lookup runs:
	// empty queries, out-of-range coordinates, oversized input.
	InvalidInput Kind = "invalid_input"

	// RepositoryUnavailable marks queries that could not be served
	// because the pharmacy dataset is missing or empty. Retryable:
	// the next refresh may repopulate it.
	RepositoryUnavailable Kind = "repository_unavailable"

	// CacheUnavailable marks cache-backend failures. Never surfaced to
	// a query; carried internally for logging and metrics.
	CacheUnavailable Kind = "cache_unavailable"

	// FallbackTimeout marks a semantic-fallback call that exceeded its
	// deadline. Resolution falls through to the no-match result.
	FallbackTimeout Kind = "fallback_timeout"

	// Internal marks everything else.
	Internal Kind = "internal"
)

// Error is the classified error type for the query pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or Internal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsRetryable reports whether the caller may retry the operation later.
// Only dataset unavailability qualifies: the repository is a hard
// dependency that refreshes on a schedule.
func IsRetryable(err error) bool {
	return KindOf(err) == RepositoryUnavailable
}
