// Package errs provides coded errors shared by the services and transports.
//
// Codes are machine-readable and map onto HTTP status codes at the API
// boundary:
//
//	err := errs.New(errs.ErrCodeInvalidInput, "width must be between 1 and %d", cols)
//	if errs.Is(err, errs.ErrCodeInvalidInput) {
//	    // reject the request
//	}
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeLimitExceeded Code = "LIMIT_EXCEEDED"
	ErrCodeConflict      Code = "CONFLICT"
	ErrCodeUnavailable   Code = "UNAVAILABLE"
	ErrCodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound is shorthand for a not-found error on a kind of resource.
func NotFound(kind, id string) *Error {
	return New(ErrCodeNotFound, "%s %s not found", kind, id)
}

// Is reports whether any *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the code of the first *Error in err's chain, or "" if
// there is none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Message returns the human-readable part of a coded error, falling back to
// err.Error() for plain errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
