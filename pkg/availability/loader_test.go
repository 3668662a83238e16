package availability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

var day = schedule.NewDate(2024, time.March, 12)

type fakeBackend struct {
	calls   atomic.Int32
	queries []appointment.RangeQuery
	mu      sync.Mutex
	list    func(q appointment.RangeQuery) ([]appointment.Appointment, error)
}

func (f *fakeBackend) ListAppointments(_ context.Context, _ string, q appointment.RangeQuery) ([]appointment.Appointment, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.list(q)
}

func appt(id, user int64, sh, eh int) appointment.Appointment {
	start, end := day.At(sh, 0), day.At(eh, 0)
	return appointment.Appointment{ID: id, UserID: user, StartTime: &start, EndTime: &end}
}

func TestLoad_FullScope(t *testing.T) {
	backend := &fakeBackend{list: func(q appointment.RangeQuery) ([]appointment.Appointment, error) {
		return []appointment.Appointment{appt(1, 2, 10, 11)}, nil
	}}
	l := NewLoader(backend, logger.Discard())

	res, err := l.Load(context.Background(), day, Credentials{UserID: 1, Token: "admin"})
	require.NoError(t, err)
	assert.Equal(t, ScopeFull, res.Scope)
	assert.Len(t, res.Appointments, 1)

	require.Len(t, backend.queries, 1)
	assert.Equal(t, "2024-03-12T00:00:00", backend.queries[0].StartDate.String())
	assert.Equal(t, "2024-03-12T23:59:59", backend.queries[0].EndDate.String())
	assert.Zero(t, backend.queries[0].UserID)
}

func TestLoad_PermissionDeniedFallsBackToOwnAppointments(t *testing.T) {
	backend := &fakeBackend{list: func(q appointment.RangeQuery) ([]appointment.Appointment, error) {
		if q.UserID == 0 {
			return nil, appointment.ErrPermissionDenied
		}
		return []appointment.Appointment{appt(5, q.UserID, 9, 10)}, nil
	}}
	l := NewLoader(backend, logger.Discard())

	res, err := l.Load(context.Background(), day, Credentials{UserID: 7, Token: "user"})
	require.NoError(t, err)
	assert.Equal(t, ScopeOwnOnly, res.Scope)
	require.Len(t, res.Appointments, 1)
	assert.Equal(t, int64(7), res.Appointments[0].UserID)

	slots := schedule.Available(schedule.GenerateSlots(day, 60, schedule.DefaultHours), res.Appointments)
	assert.Len(t, slots, 6)
	for _, s := range slots {
		assert.NotEqual(t, "09:00", s.Start.Clock())
	}
}

func TestLoad_PassesThroughOtherErrors(t *testing.T) {
	for _, want := range []error{appointment.ErrUnauthenticated, appointment.ErrNetwork, appointment.ErrMalformedResponse} {
		backend := &fakeBackend{list: func(appointment.RangeQuery) ([]appointment.Appointment, error) {
			return nil, want
		}}
		l := NewLoader(backend, logger.Discard())

		_, err := l.Load(context.Background(), day, Credentials{UserID: 7, Token: "t"})
		assert.ErrorIs(t, err, want)
		assert.Equal(t, int32(1), backend.calls.Load())
	}
}

func TestLoad_OwnOnlyFailureIsReturned(t *testing.T) {
	backend := &fakeBackend{list: func(q appointment.RangeQuery) ([]appointment.Appointment, error) {
		if q.UserID == 0 {
			return nil, appointment.ErrPermissionDenied
		}
		return nil, appointment.ErrNetwork
	}}
	l := NewLoader(backend, logger.Discard())

	_, err := l.Load(context.Background(), day, Credentials{UserID: 7, Token: "t"})
	assert.ErrorIs(t, err, appointment.ErrNetwork)
}

func TestLoad_CoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{list: func(appointment.RangeQuery) ([]appointment.Appointment, error) {
		<-release
		return []appointment.Appointment{appt(1, 2, 10, 11)}, nil
	}}
	l := NewLoader(backend, logger.Discard())

	var wg sync.WaitGroup
	results := make([]*Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Load(context.Background(), day, Credentials{UserID: 1, Token: "admin"})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), backend.calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Len(t, r.Appointments, 1)
	}
}
