package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"prevision/internal/core"
	"prevision/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain and storage errors onto HTTP statuses:
// validation failures are the client's fault, missing rows are 404,
// anything else is a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidCategory,
		core.ErrInvalidDay,
		core.ErrInvalidMonth,
		core.ErrEmptyLabel,
		core.ErrInvalidSharing,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
