package tutor

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown        Code = "UNKNOWN"
	CodeNotFound       Code = "SESSION_NOT_FOUND"
	CodeCourseComplete Code = "COURSE_COMPLETE"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeInvalidInput   Code = "INVALID_INPUT"
)

// Error is returned for operations the caller is not allowed to perform
// in the current state.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "session not found"}
	ErrCourseComplete = &Error{Code: CodeCourseComplete, Message: "course finished"}
	ErrRateLimited    = &Error{Code: CodeRateLimited, Message: "too many submissions"}
)

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// GetCode extracts the code from err, or CodeUnknown.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
