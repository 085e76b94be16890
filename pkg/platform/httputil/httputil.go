// Package httputil writes JSON responses and decodes JSON requests for the
// payment API. Every failure goes out in the same {error, error_description}
// envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "eventpay/pkg/domain-errors"
)

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type statusMapping struct {
	status int
	code   string
}

var statusByCode = map[dErrors.Code]statusMapping{
	dErrors.CodeNotFound:           {http.StatusNotFound, "not_found"},
	dErrors.CodeBadRequest:         {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:         {http.StatusBadRequest, "validation_error"},
	dErrors.CodeInvariantViolation: {http.StatusBadRequest, "validation_error"},
	dErrors.CodeInvalidSignature:   {http.StatusBadRequest, "invalid_signature"},
	dErrors.CodeConflict:           {http.StatusConflict, "conflict"},
	dErrors.CodeForbidden:          {http.StatusForbidden, "forbidden"},
	dErrors.CodeUpstream:           {http.StatusBadGateway, "gateway_error"},
	dErrors.CodeUnavailable:        {http.StatusServiceUnavailable, "service_unavailable"},
	dErrors.CodeTimeout:            {http.StatusGatewayTimeout, "timeout"},
}

var internalMapping = statusMapping{http.StatusInternalServerError, "internal_error"}

func lookup(code dErrors.Code) statusMapping {
	if m, ok := statusByCode[code]; ok {
		return m
	}
	return internalMapping
}

// StatusFor returns the HTTP status and envelope code for a domain code.
func StatusFor(code dErrors.Code) (int, string) {
	m := lookup(code)
	return m.status, m.code
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes err in the error envelope. Errors without a domain code
// become a bare 500 so internal detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, internalMapping.status, ErrorResponse{Error: internalMapping.code})
		return
	}
	m := lookup(de.Code)
	WriteJSON(w, m.status, ErrorResponse{Error: m.code, ErrorDescription: de.Message})
}
