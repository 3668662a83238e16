package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/auth"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/metrics"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/domain"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/repository"
)

var tracer = otel.Tracer("solaris/services/appointments")

type AppointmentService interface {
	Create(ctx context.Context, caller *auth.Claims, req appointment.BookingRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, caller *auth.Claims, id int64) (*appointment.Appointment, error)
	ListRange(ctx context.Context, caller *auth.Claims, q appointment.RangeQuery) ([]appointment.Appointment, error)
	ListByUser(ctx context.Context, caller *auth.Claims, userID int64) ([]appointment.Appointment, error)
	Update(ctx context.Context, caller *auth.Claims, id int64, req appointment.BookingRequest) (*appointment.Appointment, error)
	Delete(ctx context.Context, caller *auth.Claims, id int64) error
}

type appointmentService struct {
	repo      repository.AppointmentRepository
	publisher events.Publisher
	rules     domain.Rules
	metrics   *metrics.AppointmentMetrics
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	publisher events.Publisher,
	rules domain.Rules,
	m *metrics.AppointmentMetrics,
) AppointmentService {
	return &appointmentService{
		repo:      repo,
		publisher: publisher,
		rules:     rules,
		metrics:   m,
	}
}

func (s *appointmentService) Create(ctx context.Context, caller *auth.Claims, req appointment.BookingRequest) (a *appointment.Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.Create", caller)
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.Int64("appointment.user_id", req.UserID))

	if caller == nil {
		return nil, appointment.ErrUnauthenticated
	}
	req.Normalize()
	if req.UserID == 0 {
		req.UserID = caller.Sub
	}
	if !caller.CanActFor(req.UserID) {
		return nil, appointment.ErrPermissionDenied
	}
	if err := s.rules.Validate(req); err != nil {
		s.metrics.ObserveBooking(metrics.OutcomeInvalid)
		return nil, err
	}
	if err := s.requireUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	began := time.Now()
	a, err = s.repo.CreateIfFree(ctx, req)
	s.metrics.ObserveQuery("create", time.Since(began).Seconds())
	switch {
	case errors.Is(err, appointment.ErrConflict):
		s.metrics.ObserveBooking(metrics.OutcomeConflict)
		logger.InfoContext(ctx, "Appointment slot taken", "user_id", req.UserID, "start", req.StartTime.String())
		return nil, err
	case err != nil:
		s.metrics.ObserveBooking(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.metrics.ObserveBooking(metrics.OutcomeCreated)
	span.SetAttributes(attribute.Int64("appointment.id", a.ID))

	s.publish(ctx, events.AppointmentBooked, *a)
	logger.InfoContext(ctx, "Appointment created", "appointment_id", a.ID, "user_id", a.UserID)
	return a, nil
}

func (s *appointmentService) Get(ctx context.Context, caller *auth.Claims, id int64) (a *appointment.Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.Get", caller)
	defer func() { finish(span, err) }()

	return s.visible(ctx, caller, id)
}

// ListRange lists every user's appointments for admins. Other callers must
// narrow the query to themselves.
func (s *appointmentService) ListRange(ctx context.Context, caller *auth.Claims, q appointment.RangeQuery) (out []appointment.Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.ListRange", caller)
	defer func() { finish(span, err) }()

	if caller == nil {
		return nil, appointment.ErrUnauthenticated
	}
	if q.UserID == 0 && !caller.IsAdmin() {
		return nil, appointment.ErrPermissionDenied
	}
	if q.UserID != 0 && !caller.CanActFor(q.UserID) {
		return nil, appointment.ErrPermissionDenied
	}
	if err := domain.ValidateRange(q); err != nil {
		return nil, err
	}

	began := time.Now()
	out, err = s.repo.ListRange(ctx, q)
	s.metrics.ObserveQuery("list_range", time.Since(began).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("appointment.count", len(out)))
	return out, nil
}

func (s *appointmentService) ListByUser(ctx context.Context, caller *auth.Claims, userID int64) (out []appointment.Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.ListByUser", caller)
	defer func() { finish(span, err) }()

	if caller == nil {
		return nil, appointment.ErrUnauthenticated
	}
	if !caller.CanActFor(userID) {
		return nil, appointment.ErrPermissionDenied
	}

	began := time.Now()
	out, err = s.repo.ListByUser(ctx, userID)
	s.metrics.ObserveQuery("list_user", time.Since(began).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list user appointments: %w", err)
	}
	return out, nil
}

func (s *appointmentService) Update(ctx context.Context, caller *auth.Claims, id int64, req appointment.BookingRequest) (a *appointment.Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.Update", caller)
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	if _, err := s.visible(ctx, caller, id); err != nil {
		return nil, err
	}
	req.Normalize()
	if !caller.CanActFor(req.UserID) {
		return nil, appointment.ErrPermissionDenied
	}
	if err := s.rules.Validate(req); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	began := time.Now()
	a, err = s.repo.UpdateIfFree(ctx, id, req)
	s.metrics.ObserveQuery("update", time.Since(began).Seconds())
	if err != nil {
		if errors.Is(err, appointment.ErrConflict) || errors.Is(err, appointment.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return a, nil
}

func (s *appointmentService) Delete(ctx context.Context, caller *auth.Claims, id int64) (err error) {
	ctx, span := s.start(ctx, "appointments.Delete", caller)
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	a, err := s.visible(ctx, caller, id)
	if err != nil {
		return err
	}

	began := time.Now()
	ok, err := s.repo.Delete(ctx, id)
	s.metrics.ObserveQuery("delete", time.Since(began).Seconds())
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if !ok {
		return appointment.ErrNotFound
	}
	s.metrics.ObserveDeletion()

	s.publish(ctx, events.AppointmentDeleted, *a)
	logger.InfoContext(ctx, "Appointment deleted", "appointment_id", id, "user_id", a.UserID)
	return nil
}

// visible loads an appointment the caller owns, or any appointment for admins.
func (s *appointmentService) visible(ctx context.Context, caller *auth.Claims, id int64) (*appointment.Appointment, error) {
	if caller == nil {
		return nil, appointment.ErrUnauthenticated
	}
	began := time.Now()
	a, err := s.repo.GetByID(ctx, id)
	s.metrics.ObserveQuery("get", time.Since(began).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}
	if a == nil {
		return nil, appointment.ErrNotFound
	}
	if !caller.CanActFor(a.UserID) {
		return nil, appointment.ErrPermissionDenied
	}
	return a, nil
}

func (s *appointmentService) requireUser(ctx context.Context, userID int64) error {
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if !ok {
		return appointment.Invalid("user %d not found", userID)
	}
	return nil
}

// publish never fails the request: the appointment is already stored.
func (s *appointmentService) publish(ctx context.Context, subject string, a appointment.Appointment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, subject, events.Announce(a)); err != nil {
		logger.ErrorContext(ctx, "Failed to publish appointment event", "error", err, "subject", subject, "appointment_id", a.ID)
	}
}

func (s *appointmentService) start(ctx context.Context, name string, caller *auth.Claims) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if caller != nil {
		span.SetAttributes(
			attribute.Int64("caller.id", caller.Sub),
			attribute.String("caller.role", caller.Role),
		)
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
