package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewRetryableError("request failed", errors.New("connection reset"))
	assert.Contains(t, err.Error(), "RETRYABLE")
	assert.Contains(t, err.Error(), "connection reset")

	err = NewNotFoundError("repository")
	assert.Equal(t, "NOT_FOUND: repository not found", err.Error())
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewFatalError("write failed", inner)
	assert.ErrorIs(t, err, inner)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("x")))
	assert.True(t, IsRetryable(NewRetryableError("x", nil)))
	assert.True(t, IsRetryable(NewRateLimitedError("x", time.Minute)))
	assert.True(t, IsRateLimited(NewRateLimitedError("x", 0)))
	assert.True(t, IsFatal(NewFatalError("x", nil)))
	assert.True(t, IsFatal(NewNotFoundError("x")))

	assert.False(t, IsRetryable(NewFatalError("x", nil)))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestClassifiers_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handle unit: %w", NewRateLimitedError("secondary limit", 30*time.Second))
	assert.True(t, IsRateLimited(wrapped))
	assert.True(t, IsRetryable(wrapped))

	var appErr *AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, 30*time.Second, appErr.RetryAfter)
}
