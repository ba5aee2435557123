package errs

import (
	"errors"
)

// Code is a harness error code.
type Code string

const (
	// Skipped marks a failed precondition that should skip the scenario.
	Skipped Code = "skipped"
	// Optional marks an optional UI element that was absent.
	Optional Code = "optional"
	// Timeout marks a required transition that did not happen in time.
	Timeout Code = "timeout"
	// Navigation marks a navigation that could not complete.
	Navigation      Code = "navigation"
	InvalidArgument Code = "invalid_argument"
	Internal        Code = "internal"
)

// Error is a coded harness error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// MessageOf returns the outermost coded message, or "internal error" when err
// has no typed wrapper.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// Recoverable reports whether a failure with this code may be absorbed
// locally instead of failing the scenario.
func Recoverable(code Code) bool {
	return code == Optional
}

// Outcome maps a code to the test-runner outcome it produces.
func Outcome(code Code) string {
	switch code {
	case Skipped:
		return "skip"
	case Optional:
		return "pass"
	default:
		return "fail"
	}
}
