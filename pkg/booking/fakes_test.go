package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/availability"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

// Tuesday.
var day = schedule.NewDate(2024, time.March, 12)

func dayBefore() time.Time { return time.Date(2024, time.March, 11, 12, 0, 0, 0, time.UTC) }

// fakeStore behaves like the appointment backend: it rejects overlapping
// bookings and can hide other users' appointments from non-admins.
type fakeStore struct {
	mu        sync.Mutex
	appts     []appointment.Appointment
	nextID    int64
	adminOnly bool

	lists   atomic.Int32
	creates atomic.Int32

	listErr error
	// listHook, when set, runs before every list answer.
	listHook func()
	// create, when set, answers instead of the store.
	create func(req appointment.BookingRequest) (appointment.Appointment, error)
}

func (s *fakeStore) add(userID int64, start, end schedule.LocalTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.appts = append(s.appts, appointment.Appointment{ID: s.nextID, UserID: userID, StartTime: &start, EndTime: &end})
}

func (s *fakeStore) ListAppointments(_ context.Context, token string, q appointment.RangeQuery) ([]appointment.Appointment, error) {
	s.lists.Add(1)
	if s.listHook != nil {
		s.listHook()
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.adminOnly && q.UserID == 0 && token != "admin" {
		return nil, appointment.ErrPermissionDenied
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if q.UserID != 0 && a.UserID != q.UserID {
			continue
		}
		if a.StartTime.Before(q.StartDate) || a.StartTime.After(q.EndDate) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) CreateAppointment(_ context.Context, _ string, req appointment.BookingRequest) (appointment.Appointment, error) {
	s.creates.Add(1)
	if s.create != nil {
		return s.create(req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	want := schedule.Interval{Start: req.StartTime, End: req.EndTime}
	for _, a := range s.appts {
		if schedule.Overlaps(want, schedule.Interval{Start: *a.StartTime, End: *a.EndTime}) {
			return appointment.Appointment{}, appointment.ErrConflict
		}
	}
	s.nextID++
	start, end := req.StartTime, req.EndTime
	a := appointment.Appointment{ID: s.nextID, UserID: req.UserID, Title: req.Title, StartTime: &start, EndTime: &end}
	s.appts = append(s.appts, a)
	return a, nil
}

func (s *fakeStore) UserAppointments(ctx context.Context, token string, userID int64) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

var (
	ana   = Session{UserID: 7, Name: "Ana", Token: "user-7"}
	ben   = Session{UserID: 8, Name: "Ben", Token: "user-8"}
	admin = Session{UserID: 1, Name: "Admin", Token: "admin", Role: "admin"}
)

func newCoordinator(store *fakeStore, s Session, bus *events.Bus) *Coordinator {
	if bus == nil {
		bus = events.NewBus(logger.Discard())
	}
	return NewCoordinator(Config{
		Session:      s,
		Loader:       availability.NewLoader(store, logger.Discard()),
		Backend:      store,
		Bus:          bus,
		WeekdaysOnly: true,
		Clock:        dayBefore,
		Logger:       logger.Discard(),
	})
}

func slotAt(v View, clock string) (schedule.TimeSlot, bool) {
	for _, s := range v.Slots {
		if s.Start.Clock() == clock {
			return s, true
		}
	}
	return schedule.TimeSlot{}, false
}
