package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

const (
	CodeInvalidInput  = appointment.CodeInvalidInput
	CodeUnauthorized  = appointment.CodeUnauthorized
	CodeForbidden     = appointment.CodeForbidden
	CodeNotFound      = appointment.CodeNotFound
	CodeConflict      = appointment.CodeConflict
	CodeRateLimit     = appointment.CodeRateLimit
	CodeInternalError = appointment.CodeInternalError
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeEmailExists   = "EMAIL_EXISTS"
)

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

// FromError maps the appointment error taxonomy onto a status and envelope.
// Anything unrecognised becomes a 500 without leaking its text.
func FromError(w http.ResponseWriter, err error) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		BadRequest(w, verr.Reason)
	case errors.Is(err, appointment.ErrValidation):
		BadRequest(w, err.Error())
	case errors.Is(err, appointment.ErrConflict):
		Conflict(w, "Time slot is already booked")
	case errors.Is(err, appointment.ErrNotFound):
		NotFound(w, "Appointment not found")
	case errors.Is(err, appointment.ErrPermissionDenied):
		Forbidden(w, "Access denied")
	case errors.Is(err, appointment.ErrUnauthenticated):
		Unauthorized(w, "Authentication required")
	default:
		InternalError(w, "Internal server error")
	}
}
