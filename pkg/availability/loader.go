// Package availability fetches the appointments that block slots on a day.
//
// The full schedule is only visible to administrators. Everyone else gets
// their own appointments and a ScopeOwnOnly result: slots computed from it may
// still be taken by someone else, and the backend decides when the booking is
// submitted.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

// Scope tells how much of the day's schedule a Result covers.
type Scope int

const (
	ScopeFull Scope = iota
	ScopeOwnOnly
	// ScopeUnknown means nothing was loaded, so no slot is known to be free.
	ScopeUnknown
)

func (s Scope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeOwnOnly:
		return "own-only"
	case ScopeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Backend is the subset of the appointment API the loader needs.
type Backend interface {
	ListAppointments(ctx context.Context, token string, q appointment.RangeQuery) ([]appointment.Appointment, error)
}

// Credentials identify the caller.
type Credentials struct {
	UserID int64
	Token  string
}

type Result struct {
	Appointments []appointment.Appointment
	Scope        Scope
}

type Loader struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
}

func NewLoader(backend Backend, l *slog.Logger) *Loader {
	if l == nil {
		l = logger.Default()
	}
	return &Loader{backend: backend, logger: l}
}

// Load returns the appointments of day. A permission failure on the full range
// falls back to the caller's own appointments. ErrUnauthenticated and every
// other failure are returned unchanged. Identical concurrent loads share one
// round trip.
func (l *Loader) Load(ctx context.Context, day schedule.Date, creds Credentials) (*Result, error) {
	key := fmt.Sprintf("%s|%d|%s", day, creds.UserID, creds.Token)
	v, err, shared := l.group.Do(key, func() (any, error) {
		return l.load(ctx, day, creds)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	if shared {
		res = &Result{Appointments: append([]appointment.Appointment(nil), res.Appointments...), Scope: res.Scope}
	}
	return res, nil
}

func (l *Loader) load(ctx context.Context, day schedule.Date, creds Credentials) (*Result, error) {
	q := appointment.DayRange(day)

	appts, err := l.backend.ListAppointments(ctx, creds.Token, q)
	if err == nil {
		return &Result{Appointments: appts, Scope: ScopeFull}, nil
	}
	if !errors.Is(err, appointment.ErrPermissionDenied) {
		return nil, fmt.Errorf("load %s: %w", day, err)
	}
	if creds.UserID == 0 {
		return nil, fmt.Errorf("load %s: no user to narrow to: %w", day, err)
	}

	l.logger.DebugContext(ctx, "Full schedule not visible, loading own appointments",
		"date", day.String(),
		"user_id", creds.UserID,
	)

	own, err := l.backend.ListAppointments(ctx, creds.Token, q.ForUser(creds.UserID))
	if err != nil {
		return nil, fmt.Errorf("load own %s: %w", day, err)
	}
	return &Result{Appointments: own, Scope: ScopeOwnOnly}, nil
}
