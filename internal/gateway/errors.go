package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures so callers can decide between retry,
// fallback and rejection without inspecting messages.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindRejected    Kind = "rejected"
	KindAuth        Kind = "authentication"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindBadResponse Kind = "bad_response"
	KindCircuitOpen Kind = "circuit_open"
)

// ErrCircuitOpen is wrapped by errors returned while the breaker sheds calls.
var ErrCircuitOpen = errors.New("gateway circuit open")

// Error is a classified gateway failure.
type Error struct {
	Kind        Kind
	Op          string
	StatusCode  int
	Code        string // gateway error code, e.g. BAD_REQUEST_ERROR
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s [%s]", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindUnavailable, KindRateLimited, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// KindOf extracts the failure kind, or "" for non-gateway errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Retryable()
}

type apiErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}
