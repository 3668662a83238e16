package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
)

// Lister fetches one user's appointments.
type Lister interface {
	UserAppointments(ctx context.Context, token string, userID int64) ([]appointment.Appointment, error)
}

// SessionSource supplies the current session, typically a Coordinator.
type SessionSource interface {
	Session() Session
}

// MyAppointments is the signed-in user's own list. While mounted it re-fetches
// whenever an appointment is booked or deleted; event payloads are only a hint.
type MyAppointments struct {
	lister  Lister
	bus     *events.Bus
	session SessionSource
	logger  *slog.Logger

	mu      sync.Mutex
	items   []appointment.Appointment
	err     error
	unsubs  []func()
	fetches int
}

func NewMyAppointments(lister Lister, bus *events.Bus, session SessionSource, l *slog.Logger) *MyAppointments {
	if bus == nil {
		bus = events.Default()
	}
	if l == nil {
		l = logger.Default()
	}
	return &MyAppointments{lister: lister, bus: bus, session: session, logger: l}
}

// Mount subscribes to appointment changes and loads the list once.
func (m *MyAppointments) Mount(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubs == nil {
		onChange := func(ctx context.Context, e events.Event) {
			m.logger.DebugContext(ctx, "Appointments changed, reloading list", "topic", e.Topic.String())
			_ = m.Refresh(ctx)
		}
		m.unsubs = []func(){
			m.bus.Subscribe(events.TopicAppointmentBooked, onChange),
			m.bus.Subscribe(events.TopicAppointmentDeleted, onChange),
		}
	}
	m.mu.Unlock()

	return m.Refresh(ctx)
}

// Unmount stops listening. No refresh starts after it returns.
func (m *MyAppointments) Unmount() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Refresh reloads the list for the current session. Anonymous sessions get an
// empty list and ErrUnauthenticated; other failures keep the previous list.
func (m *MyAppointments) Refresh(ctx context.Context) error {
	s := m.session.Session()
	if !s.Authenticated() {
		m.store(nil, appointment.ErrUnauthenticated)
		return appointment.ErrUnauthenticated
	}

	items, err := m.lister.UserAppointments(ctx, s.Token, s.UserID)
	if err != nil {
		m.logger.WarnContext(ctx, "Loading own appointments failed", "user_id", s.UserID, "error", err)
	}
	m.store(items, err)
	return err
}

func (m *MyAppointments) store(items []appointment.Appointment, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	m.err = err
	switch {
	case err == nil:
		m.items = items
	case errors.Is(err, appointment.ErrUnauthenticated):
		m.items = nil
	}
}

// Items returns the last loaded list.
func (m *MyAppointments) Items() []appointment.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]appointment.Appointment(nil), m.items...)
}

// Err is the error of the last refresh, if any.
func (m *MyAppointments) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Fetches counts refreshes since construction.
func (m *MyAppointments) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}
