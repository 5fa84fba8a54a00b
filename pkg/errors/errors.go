// Package errors provides the error types shared by the transcript analysis engine.
//
// Sentinel errors cover generic domain conditions and can be checked with
// errors.Is. Engine failures that need classification (format problems,
// inference service outages, timeouts) are reported as *EngineError values
// carrying an ErrorCode; see ErrorCodeRegistry for the actionable guidance
// attached to each code.
//
// Usage:
//
//	import tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
//
//	if tserrors.IsFatalToRun(err) {
//	    // abort the run
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("cancelled")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsCancelled reports whether any error in err's chain is ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
