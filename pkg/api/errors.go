package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/scourlabs/scour/pkg/services"
)

// mapStoreError maps session-store errors to an HTTP status and client
// message. Unexpected errors are logged and reported as a generic 500 so
// internal details never reach the client.
func mapStoreError(err error) (int, string) {
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "Session not found"
	}
	if errors.Is(err, services.ErrNotResumable) {
		return http.StatusConflict, "session is not in a resumable state"
	}
	if errors.Is(err, services.ErrIterationOutOfRange) {
		return http.StatusBadRequest, "Could not rollback: iteration out of range"
	}
	if errors.Is(err, services.ErrInvalidRecord) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, services.ErrCorrupt) || errors.Is(err, services.ErrUnsupportedVersion) {
		slog.Error("Session record unreadable", "error", err)
		return http.StatusInternalServerError, "session record is unreadable"
	}

	// Unexpected error
	slog.Error("Unexpected store error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
