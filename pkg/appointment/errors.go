package appointment

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the caller may not see other users' appointments.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnauthenticated means the credential is missing or invalid.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrConflict means the requested interval overlaps an existing appointment.
	ErrConflict = errors.New("time slot already booked")
	// ErrMalformedResponse means the backend answered with something unreadable.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNetwork covers transport failures, timeouts and 5xx answers.
	ErrNetwork = errors.New("network failure")
	// ErrValidation means the request broke a business rule.
	ErrValidation = errors.New("invalid appointment")
	// ErrNotFound means the appointment does not exist or is not visible.
	ErrNotFound = errors.New("appointment not found")
)

// Error codes carried in the JSON error envelope.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
)

// ValidationError explains which rule a request broke.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
