// Package errors provides structured error types for the orchestration service.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration subsystem.
var (
	// ErrOutOfBoundsPath is returned when a path resolves outside a project
	// workspace. Never retried, never downgraded.
	ErrOutOfBoundsPath = errors.New("path outside project workspace")

	// ErrCommandNotAllowed is returned for commands missing from the allow-list.
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrCommandTimeout is returned when a subprocess exceeds its wall-clock budget.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrCommandFailed is returned when a subprocess could not be started at all.
	ErrCommandFailed = errors.New("command execution failed")

	// ErrGenerationFailed is returned when the generation backend errors or
	// returns empty text. Fatal to the phase, retryable by the caller.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrFrontendNotReady is returned when a preview is requested before the
	// frontend phase produced a package manifest.
	ErrFrontendNotReady = errors.New("frontend not found; run the frontend development phase first")

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// APIError represents an error from the generation backend.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Sandbox violations and whitelist rejections are never retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
