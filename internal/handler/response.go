package handler

// RESPONSE HELPERS:
// The HTTP side of the dashboard is small (health and static files), but its
// JSON responses and errors still share one shape:
//
//	{"error": "not_found", "message": "file not found with id /missing.js"}
//
// The error codes are the same ones the realtime "error" event uses.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

// ErrorResponse is the JSON body of every HTTP error.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, see apperror.Code
	Message string `json:"message"` // human-readable
}

// writeJSON sends data as JSON with the given status code. Headers must be
// set before WriteHeader, so the order here matters.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an apperror code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "upstream_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and writes an ErrorResponse. Messages
// of errors that are not *apperror.AppError are never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	code := apperror.Code(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, statusFor(code), ErrorResponse{Error: code, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
