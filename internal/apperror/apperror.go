package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain error taxonomy. Services wrap these via
// AppError; handlers translate them to HTTP status codes with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrLocked          = errors.New("account locked")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrUpstream        = errors.New("upstream unavailable")
)

type AppError struct {
	Err     error  // sentinel classifying the error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateKey reports a uniqueness violation (e.g. an email that is already
// registered). Handlers surface it as 400, matching the API contract the
// admin console expects.
func DuplicateKey(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated covers missing/invalid/expired credentials and failed
// login attempts. Always 401.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Locked reports a temporarily locked account. Clients see the same status as
// bad credentials (401) so lock state cannot be probed, but the sentinel stays
// distinct so internal callers and tests can tell the cases apart.
func Locked(message string) *AppError {
	return &AppError{
		Err:     ErrLocked,
		Message: message,
	}
}

// InvalidToken reports a verification or reset token with no live match.
// "Not found" and "expired" are deliberately indistinguishable.
func InvalidToken(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: message,
	}
}

// Upstream reports a failure in an external collaborator (mail relay,
// identity provider). Handlers map it to 502.
func Upstream(message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
	}
}
