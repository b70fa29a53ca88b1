package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/conversation"
	"github.com/alecgard/entretien/internal/credential"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/user"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// respondError maps domain errors onto the HTTP error envelope. Anything
// unrecognized becomes a 500 and is logged; no error text from the default
// branch reaches the client.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, cycle.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "cycle not found")
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, conversation.ErrNoActiveCycle):
		writeError(w, http.StatusNotFound, "no_active_cycle", "no review cycle is currently active")
	case errors.Is(err, cycle.ErrActivationConflict):
		writeError(w, http.StatusConflict, "activation_conflict", "a concurrent activation won, retry")
	case errors.Is(err, cycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "cycle status transition not allowed")
	case errors.Is(err, conversation.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "conversation transition not allowed")
	case errors.Is(err, credential.ErrPasswordTooShort):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, cycle.ErrNameRequired),
		errors.Is(err, cycle.ErrDateRange),
		errors.Is(err, conversation.ErrInvalidStatus),
		errors.Is(err, conversation.ErrRatingRange),
		errors.Is(err, user.ErrEmailRequired):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
