// Package domainerrors carries a transport-neutral failure code alongside an
// error. Handlers turn the code into a status; services never see HTTP.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	CodeInvalidSignature Code = "invalid_signature" // HMAC mismatch on a verification or webhook payload
	CodeUpstream         Code = "upstream_error"    // gateway unreachable or rejected the call
	CodeUnavailable      Code = "unavailable"       // registration store disabled or down
)

// Retryable reports whether a later attempt with the same input may succeed.
func (c Code) Retryable() bool {
	switch c {
	case CodeUnavailable, CodeConflict, CodeTimeout, CodeUpstream:
		return true
	}
	return false
}

// Error is a coded failure. Message is safe to show a client; Err is the
// underlying cause and is only logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and msg to err. A code already present in the chain
// wins over the one passed in.
func Wrap(err error, code Code, msg string) error {
	if existing, ok := CodeOf(err); ok {
		code = existing
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain code in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Code, true
}

func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func IsRetryable(err error) bool {
	c, ok := CodeOf(err)
	return ok && c.Retryable()
}
