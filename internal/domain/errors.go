package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientSpace = errors.New("insufficient space")

	// Download errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNoRemoteJob            = errors.New("download has no remote job")
	ErrUnknownCategory        = errors.New("no destination configured for category")
	ErrJobNotReady            = errors.New("remote job is not ready for transfer")

	// Transfer errors
	ErrResumeUnsupported = errors.New("server does not support resume")
	ErrTransferStalled   = errors.New("transfer stalled")
)

// RetryableError represents an error that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var rm *RemoteError
	return errors.As(err, &rm) && rm.Transient
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// RemoteError is the normalized failure of a debrid service call.
// Transient failures (network, timeouts, 5xx) may succeed on a later attempt.
type RemoteError struct {
	Op        string
	Code      string
	Message   string
	Transient bool
	Err       error
}

// Error returns the error message
func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying error
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ErrorMessage returns the text stored on a failed record.
// Provider errors keep the provider's own message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rm *RemoteError
	if errors.As(err, &rm) && rm.Message != "" {
		return rm.Message
	}
	return err.Error()
}
