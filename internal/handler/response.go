package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tabletap/api/internal/apperr"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// respondError maps err to its status. Errors without a kind are logged and
// reported as a bare 500.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), op,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		fail(w, status, "internal server error")
		return
	}
	fail(w, status, err.Error())
}
