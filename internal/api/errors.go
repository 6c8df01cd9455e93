package api

import (
	"encoding/json"
	"net/http"

	"github.com/campioncollege/beadle-core/internal/auth"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PermissionError is the 403 body. It names the canonical roles the route
// asked for so the client can explain the refusal.
type PermissionError struct {
	Error
	Required []string `json:"required_roles"`
	Mode     string   `json:"mode"`
}

// Error codes. Clients switch on these, not on Message.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 response for a well-formed but invalid body.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePermissionDenied writes a 403 naming the roles that would have
// satisfied the requirement.
func writePermissionDenied(w http.ResponseWriter, required []string, mode auth.MatchMode) {
	if required == nil {
		required = []string{}
	}
	writeJSON(w, http.StatusForbidden, PermissionError{
		Error: Error{
			Status:  http.StatusForbidden,
			Code:    ErrCodeForbidden,
			Message: string(auth.ReasonInsufficientPermission),
		},
		Required: required,
		Mode:     mode.String(),
	})
}
