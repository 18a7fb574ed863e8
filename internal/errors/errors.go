package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound    ErrCode = "NOT_FOUND"
	ErrCodeRetryable   ErrCode = "RETRYABLE"
	ErrCodeRateLimited ErrCode = "RATE_LIMITED"
	ErrCodeFatal       ErrCode = "FATAL"
	ErrCodeBadConfig   ErrCode = "BAD_CONFIG"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error

	// RetryAfter carries a provider-supplied cooldown hint for rate limit
	// errors; zero when the provider gave none.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates an error for a target resource that does not exist
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewRetryableError creates an error for a transient failure worth retrying
func NewRetryableError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRetryable,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitedError creates an error for a provider rate limit response
func NewRateLimitedError(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewFatalError creates an error that must not be retried
func NewFatalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeFatal,
		Message: message,
		Err:     err,
	}
}

// NewBadConfigError creates an error for an operator misconfiguration
func NewBadConfigError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadConfig,
		Message: message,
	}
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsRetryable checks if the error is a transient failure or rate limit
func IsRetryable(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code == ErrCodeRetryable || appErr.Code == ErrCodeRateLimited
	}
	return false
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code == ErrCodeRateLimited
	}
	return false
}

// IsFatal checks if the error must not be retried
func IsFatal(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code == ErrCodeFatal || appErr.Code == ErrCodeNotFound
	}
	return false
}
