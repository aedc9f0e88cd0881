package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the automation core can return.
type ErrorCode string

const (
	// ErrCodeUnreachable covers DNS, connection, deadline and non-OK entry pages.
	ErrCodeUnreachable ErrorCode = "UNREACHABLE"
	// ErrCodeAuthenticationFailed means the post-login page still looked like a login page.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	// ErrCodeFormNotFound means an expected form or control is absent, usually markup drift.
	ErrCodeFormNotFound ErrorCode = "FORM_NOT_FOUND"
	// ErrCodeSubmissionFailed means a POST came back with a non-OK status.
	ErrCodeSubmissionFailed ErrorCode = "SUBMISSION_FAILED"
	// ErrCodeInvalidAction means the request was rejected before any network call.
	ErrCodeInvalidAction ErrorCode = "INVALID_ACTION"
)

// Sentinels for errors.Is checks. Any *Error with the same code matches.
var (
	ErrUnreachable          = &Error{Code: ErrCodeUnreachable}
	ErrAuthenticationFailed = &Error{Code: ErrCodeAuthenticationFailed}
	ErrFormNotFound         = &Error{Code: ErrCodeFormNotFound}
	ErrSubmissionFailed     = &Error{Code: ErrCodeSubmissionFailed}
	ErrInvalidAction        = &Error{Code: ErrCodeInvalidAction}
)

// Error is the typed error returned by the session, page, auth and action layers.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

// NewError builds an *Error.
func NewError(code ErrorCode, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the ErrorCode from err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Errorf is a shorthand for NewError with a formatted message.
func Errorf(code ErrorCode, op string, err error, format string, args ...interface{}) *Error {
	return NewError(code, op, fmt.Sprintf(format, args...), err)
}
