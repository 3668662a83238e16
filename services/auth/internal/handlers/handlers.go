package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/solaris-scheduler/internal/http/middleware"
	"github.com/diagnosis/solaris-scheduler/internal/http/response"
	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/services/auth/internal/domain"
	"github.com/diagnosis/solaris-scheduler/services/auth/internal/service"
)

type Handlers struct {
	authService service.AuthService
	jwtSecret   string
}

func New(authService service.AuthService, jwtSecret string) *Handlers {
	return &Handlers{authService: authService, jwtSecret: jwtSecret}
}

// Routes mounts /register, /login and /me. limit guards the two
// credential endpoints; nil disables it.
func (h *Handlers) Routes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.With(limit, middleware.OptionalJWT(h.jwtSecret)).Post("/register", h.Register)
	r.With(limit).Post("/login", h.Login)
	r.With(middleware.RequireJWT(h.jwtSecret)).Get("/me", h.Me)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Reason)
	case errors.Is(err, domain.ErrEmailExists):
		response.WriteError(w, http.StatusConflict, "Email is already registered", response.CodeEmailExists)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid credentials")
	case errors.Is(err, appointment.ErrPermissionDenied):
		response.Forbidden(w, "Only admins can create admin accounts")
	case errors.Is(err, appointment.ErrUnauthenticated):
		response.Unauthorized(w, "Authentication required")
	default:
		logger.ErrorContext(r.Context(), "Auth request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}
