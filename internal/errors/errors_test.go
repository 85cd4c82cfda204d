package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	e := NewAPIError("gemini", 503, "overloaded")
	assert.Contains(t, e.Error(), "gemini")
	assert.Contains(t, e.Error(), "503")
	assert.Contains(t, e.Error(), "overloaded")
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	e := &APIError{Service: "gemini", StatusCode: 500, Message: "x", Err: inner}
	assert.True(t, errors.Is(e, inner))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("gemini", 429, "rate limited")))
	assert.True(t, IsRetryable(NewAPIError("gemini", 503, "unavailable")))
	assert.False(t, IsRetryable(NewAPIError("gemini", 400, "bad request")))
	assert.False(t, IsRetryable(ErrOutOfBoundsPath))
	assert.False(t, IsRetryable(ErrCommandNotAllowed))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrGenerationFailed)))
}

func TestIsRetryable_WrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", NewAPIError("gemini", 502, "bad gateway"))
	assert.True(t, IsRetryable(wrapped))
}
