package dip

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRateLimited        = errors.New("rate limited")
	ErrTransientNetwork   = errors.New("transient network failure")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrConflictLikely     = errors.New("conflict likely")
	ErrUnknownOutcome     = errors.New("unknown outcome")
)

// Error is a classified failure. Kind is one of the Err* sentinels above;
// Hint is an actionable message for the user, if there is one.
type Error struct {
	Kind error
	Op   string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a classified error.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithHint sets the user-facing hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// RateLimitError reports an exhausted remote quota. Callers should wait
// RetryAfter before trying again; nothing retries it automatically.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter.Round(time.Second))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// Validationf returns an ErrValidation error with a formatted message.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Conflictf returns an ErrConflictLikely error with a formatted message.
func Conflictf(op, format string, args ...any) error {
	return &Error{Kind: ErrConflictLikely, Op: op, Err: fmt.Errorf(format, args...)}
}

// Retryable reports whether nothing was committed remotely and the caller may
// safely try again by hand.
func Retryable(err error) bool {
	if errors.Is(err, ErrUnknownOutcome) {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRateLimited)
}
