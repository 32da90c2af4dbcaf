package ctfbot

import (
	"errors"
	"fmt"
)

// Application error codes.
//
// Codes are stable identifiers that callers switch on; the Discord layer
// turns them into replies and decides what gets logged.
const (
	ECONFLICT    = "conflict"
	EDATABASE    = "database"
	EFORBIDDEN   = "forbidden"
	EGATEWAY     = "gateway"
	EINTERNAL    = "internal"
	EINVALID     = "invalid"
	EINVALIDNAME = "invalid_name"
	EINVALIDTIME = "invalid_time"
	ENOTFOUND    = "not_found"
)

// Error represents an application-specific error. Application errors can be
// unwrapped by the caller to extract out the code & message.
//
// Any non-application error (such as a disk error) should be reported as an
// EINTERNAL error and the human user should only see "Internal error" as the
// message. These low-level internal error details should only be logged and
// reported to the operator of the application (not the end user).
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable error message.
	Message string

	// Underlying cause, if any. Never shown to users.
	Err error
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ctfbot error: code=%s message=%s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("ctfbot error: code=%s message=%s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError attaches err as the cause of a new application error.
func WrapError(err error, code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOperational reports whether the error came from infrastructure rather
// than from user input. Operational errors are logged; the rest are simply
// echoed back to whoever issued the command.
func IsOperational(err error) bool {
	switch ErrorCode(err) {
	case EDATABASE, EGATEWAY, EINTERNAL:
		return true
	}
	return false
}
