package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified engine error.
type ErrorCode string

const (
	ErrFormat             ErrorCode = "format_error"
	ErrServiceUnreachable ErrorCode = "service_unreachable"
	ErrModelUnavailable   ErrorCode = "model_unavailable"
	ErrInferenceTimeout   ErrorCode = "inference_timeout"
	ErrInference          ErrorCode = "inference_error"
	ErrContextCancelled   ErrorCode = "context_cancelled"
)

// Stage names used when classifying errors.
const (
	StageLoad     = "load"
	StageModels   = "models"
	StagePull     = "pull"
	StageGenerate = "generate"
)

// EngineError is a structured error for analysis engine failures.
type EngineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *EngineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Second), e.Timeout.Truncate(time.Second))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// New creates an EngineError with the given code.
func New(code ErrorCode, stage, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// FormatError reports an unreadable or unsegmentable transcript.
func FormatError(path, message string, cause error) *EngineError {
	return &EngineError{
		Code:    ErrFormat,
		Stage:   StageLoad,
		Message: fmt.Sprintf("%s: %s", path, message),
		Cause:   cause,
	}
}

// ClassifyError inspects an error and returns an *EngineError with the appropriate code.
// Errors that are already classified are returned unchanged. Unknown errors
// become ErrInference.
func ClassifyError(err error, stage string) *EngineError {
	if err == nil {
		return nil
	}

	var existing *EngineError
	if errors.As(err, &existing) {
		return existing
	}

	ee := &EngineError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ee.Code = ErrInferenceTimeout
		if stage == StagePull {
			ee.Code = ErrModelUnavailable
		}
		ee.Message = "operation timed out"
		return ee
	}

	if errors.Is(err, context.Canceled) {
		ee.Code = ErrContextCancelled
		ee.Message = "operation cancelled"
		return ee
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	// Client.Timeout surfaces as a url.Error rather than DeadlineExceeded.
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		ee.Code = ErrInferenceTimeout
		if stage == StagePull {
			ee.Code = ErrModelUnavailable
		}
		ee.Message = msg
		return ee
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "network is unreachable") {
		ee.Code = ErrServiceUnreachable
		ee.Message = msg
		return ee
	}

	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "pull")) {
		ee.Code = ErrModelUnavailable
		ee.Message = msg
		return ee
	}

	ee.Code = ErrInference
	ee.Message = msg
	return ee
}

// CodeOf returns the error code carried by err, or "" if err is not an EngineError.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsTimeout returns true if the error is an inference timeout.
func IsTimeout(err error) bool {
	return IsCode(err, ErrInferenceTimeout)
}

// IsFormat returns true if the error is a transcript format error.
func IsFormat(err error) bool {
	return IsCode(err, ErrFormat)
}

// IsFatalToRun reports whether err means the inference service itself is
// unusable (service down or model missing).
func IsFatalToRun(err error) bool {
	switch CodeOf(err) {
	case ErrServiceUnreachable, ErrModelUnavailable:
		return true
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		if info, ok := ErrorCodeRegistry[ee.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
