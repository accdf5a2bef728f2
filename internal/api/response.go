package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/lostfound/internal/workflow"
)

// envelope wraps every JSON response.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// jsonResponse writes a successful envelope with the given status code.
func jsonResponse(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

// jsonError writes a failure envelope.
func jsonError(w http.ResponseWriter, status int, message string, errs ...string) {
	writeEnvelope(w, status, envelope{Message: message, Errors: errs})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps state machine errors onto HTTP statuses. Anything else is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *workflow.ValidationError
		nf       *workflow.NotFoundError
		conflict *workflow.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		jsonError(w, http.StatusBadRequest, "validation failed", verr.Error())
	case errors.As(err, &nf):
		jsonError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &conflict):
		jsonError(w, http.StatusConflict, conflict.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
