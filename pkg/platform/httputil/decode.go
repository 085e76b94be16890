package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "eventpay/pkg/domain-errors"
)

// Preparer is implemented by request DTOs. Normalize trims and canonicalizes
// fields; Validate runs after it.
type Preparer interface {
	Normalize()
	Validate() error
}

// DecodeJSON reads one JSON value from the body into a new T. On failure it
// has already written the response and returns false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (*T, bool) {
	var req T
	err := json.NewDecoder(r.Body).Decode(&req)
	if err == nil {
		return &req, true
	}

	logger.WarnContext(r.Context(), "request body rejected", "error", err, "request_id", requestID)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:            "payload_too_large",
			ErrorDescription: "request body exceeds the size limit",
		})
	case errors.Is(err, io.EOF):
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is empty"))
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
	}
	return nil, false
}

// DecodeAndPrepare decodes into T, then normalizes and validates it when *T
// implements Preparer. A validation failure without a domain code is
// reported as CodeValidation.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, requestID)
	if !ok {
		return nil, false
	}
	p, prepared := any(req).(Preparer)
	if !prepared {
		return req, true
	}

	p.Normalize()
	if err := p.Validate(); err != nil {
		logger.WarnContext(r.Context(), "request failed validation", "error", err, "request_id", requestID)
		if _, coded := dErrors.CodeOf(err); !coded {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
