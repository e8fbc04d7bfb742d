// Package httputil provides HTTP response/request helpers shared by all
// storefront service handlers, plus bounded body readers and an outbound
// JSON client.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/internal/logging"
)

// maxRequestBodyBytes bounds inbound JSON bodies.
const maxRequestBodyBytes = 1 << 20

// errorEnvelope is the uniform error body: {"error":{"code","message",...}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteErrorResponse writes the uniform error envelope.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// WriteError flattens any error into the envelope, treating non-service
// errors as internal without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	if se := errors.GetServiceError(err); se != nil {
		WriteErrorResponse(w, se.HTTPStatus, string(se.Code), se.Message, se.Details)
		return
	}
	WriteErrorResponse(w, http.StatusInternalServerError, string(errors.CodeInternal), "internal error", nil)
}

// BadRequest writes a validation error.
func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, string(errors.CodeValidation), message, nil)
}

// Unauthorized writes an authentication error.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}

// Forbidden writes an authorization error.
func Forbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, string(errors.CodeForbidden), message, nil)
}

// NotFound writes a missing-entity error.
func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, string(errors.CodeNotFound), message, nil)
}

// Conflict writes a state-conflict error.
func Conflict(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusConflict, string(errors.CodeConflict), message, nil)
}

// InternalError writes an internal error with a caller-safe message.
func InternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, string(errors.CodeInternal), message, nil)
}

// DecodeJSON decodes the request body into v. On failure it writes a
// validation error and returns false; handlers should return immediately.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// RequireUserID returns the authenticated user ID from the request context.
// When absent it writes an unauthorized response and returns ok=false.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		Unauthorized(w, "authentication required")
		return "", false
	}
	return userID, true
}
