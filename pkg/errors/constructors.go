package errors

import (
	"context"
	"errors"
	"fmt"
)

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. It returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a CodeValidation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Unauthenticated creates the collapsed CodeAuthentication error.
func Unauthenticated(message string) *Error {
	return New(CodeAuthentication, message)
}

// Forbidden creates a CodeAuthorizationDenied error.
func Forbidden(message string) *Error {
	return New(CodeAuthorizationDenied, message)
}

// NotFound creates a CodeNotFound error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Conflict creates a CodeConflictAlreadyExists error.
func Conflict(message string) *Error {
	return New(CodeConflictAlreadyExists, message)
}

// Internal creates a CodeInternal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Unavailable creates a CodeUnavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Dependency wraps a failed call to an external dependency. Deadline and
// cancellation errors become CodeTimeoutDependency, everything else
// CodeUnavailableDependency. Both are retryable.
func Dependency(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isNetTimeout(err) {
		return Wrap(err, CodeTimeoutDependency, message)
	}
	return Wrap(err, CodeUnavailableDependency, message)
}

// FromError returns err as an *Error, wrapping foreign errors with
// CodeInternal. It returns nil when err is nil.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return Wrap(err, CodeInternal, "internal error")
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
