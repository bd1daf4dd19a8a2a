// Package handler implements the HTTP layer: request decoding, validation,
// and the response envelope. All business decisions live in the services.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
)

// fieldError is one entry of the "errors" array in the error envelope.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// envelope is the uniform response shape:
//
//	success: {"success": true,  "message": ..., <payload keys>}
//	failure: {"success": false, "message": ..., "errors": [{field, message}]}
type envelope map[string]any

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// ok writes a success envelope, merging extra payload keys in.
func ok(w http.ResponseWriter, logger *slog.Logger, status int, message string, payload envelope) {
	body := envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, logger, status, body)
}

// fail writes a failure envelope with optional per-field errors.
func fail(w http.ResponseWriter, logger *slog.Logger, status int, message string, fields []fieldError) {
	body := envelope{"success": false, "message": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	writeJSON(w, logger, status, body)
}

// writeError maps a service error onto the envelope via the apperror
// taxonomy. Unknown errors become an opaque 500; the detail goes to the log,
// never to the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := statusFor(appErr.Err)
		var fields []fieldError
		if appErr.Field != "" {
			fields = []fieldError{{Field: appErr.Field, Message: appErr.Message}}
		}
		fail(w, logger, status, appErr.Message, fields)
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	fail(w, logger, http.StatusInternalServerError, "Internal server error", nil)
}

func statusFor(sentinel error) int {
	switch {
	case errors.Is(sentinel, apperror.ErrValidation),
		errors.Is(sentinel, apperror.ErrConflict),
		errors.Is(sentinel, apperror.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(sentinel, apperror.ErrUnauthenticated),
		errors.Is(sentinel, apperror.ErrLocked):
		return http.StatusUnauthorized
	case errors.Is(sentinel, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(sentinel, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(sentinel, apperror.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a JSON request body into dst, capping the body at 1 MB
// and rejecting trailing garbage.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid request body")
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "Invalid request body")
	}
	return nil
}
