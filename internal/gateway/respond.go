package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

// errBadRequest marks client errors raised by handlers themselves.
var errBadRequest = errors.New("bad request")

// errConflict rejects a request that would duplicate work already in flight.
var errConflict = errors.New("conflict")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("gateway request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, tasks.ErrNotFound),
		errors.Is(err, storyboard.ErrNotFound),
		errors.Is(err, storyboard.ErrUnknownCharacter),
		errors.Is(err, assets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errConflict):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrDisposed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest), errors.Is(err, storyboard.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
