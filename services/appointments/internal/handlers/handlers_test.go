package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/solaris-scheduler/internal/http/middleware"
	"github.com/diagnosis/solaris-scheduler/internal/http/response"
	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/auth"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

const secret = "test-secret"

type stubService struct {
	caller  *auth.Claims
	query   appointment.RangeQuery
	req     appointment.BookingRequest
	id      int64
	list    []appointment.Appointment
	err     error
	deleted bool
}

func (s *stubService) Create(_ context.Context, caller *auth.Claims, req appointment.BookingRequest) (*appointment.Appointment, error) {
	s.caller, s.req = caller, req
	if s.err != nil {
		return nil, s.err
	}
	start, end := req.StartTime, req.EndTime
	return &appointment.Appointment{ID: 41, UserID: req.UserID, Title: req.Title, StartTime: &start, EndTime: &end}, nil
}

func (s *stubService) Get(_ context.Context, caller *auth.Claims, id int64) (*appointment.Appointment, error) {
	s.caller, s.id = caller, id
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Appointment{ID: id, UserID: caller.Sub}, nil
}

func (s *stubService) ListRange(_ context.Context, caller *auth.Claims, q appointment.RangeQuery) ([]appointment.Appointment, error) {
	s.caller, s.query = caller, q
	return s.list, s.err
}

func (s *stubService) ListByUser(_ context.Context, caller *auth.Claims, userID int64) ([]appointment.Appointment, error) {
	s.caller, s.id = caller, userID
	return s.list, s.err
}

func (s *stubService) Update(_ context.Context, caller *auth.Claims, id int64, req appointment.BookingRequest) (*appointment.Appointment, error) {
	s.caller, s.id, s.req = caller, id, req
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Appointment{ID: id, UserID: req.UserID}, nil
}

func (s *stubService) Delete(_ context.Context, caller *auth.Claims, id int64) error {
	s.caller, s.id = caller, id
	s.deleted = s.err == nil
	return s.err
}

func newServer(t *testing.T, svc *stubService) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/appointments", func(r chi.Router) {
		r.Use(middleware.RequireJWT(secret))
		New(svc).Routes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, sub int64, role string) string {
	t.Helper()
	tok, err := auth.NewAccessToken(sub, "ana@example.com", "Ana", role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, method, url, tok, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeError(t *testing.T, res *http.Response) response.ErrorResponse {
	t.Helper()
	var e response.ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&e))
	return e
}

func TestListAppointmentsParsesRange(t *testing.T) {
	start, end := schedule.NewLocalTime(2024, 3, 12, 9, 0, 0), schedule.NewLocalTime(2024, 3, 12, 10, 0, 0)
	svc := &stubService{list: []appointment.Appointment{{ID: 1, UserID: 7, StartTime: &start, EndTime: &end}}}
	srv := newServer(t, svc)

	res := do(t, http.MethodGet, srv.URL+"/api/appointments?startDate=2024-03-12T00:00:00&endDate=2024-03-12T23:59:59&userId=7", token(t, 7, auth.RoleUser), "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got []appointment.Appointment
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "2024-03-12T09:00:00", got[0].StartTime.String())

	assert.Equal(t, int64(7), svc.caller.Sub)
	assert.Equal(t, "2024-03-12T00:00:00", svc.query.StartDate.String())
	assert.Equal(t, "2024-03-12T23:59:59", svc.query.EndDate.String())
	assert.Equal(t, int64(7), svc.query.UserID)
}

func TestListAppointmentsAcceptsBareDates(t *testing.T) {
	svc := &stubService{list: []appointment.Appointment{}}
	srv := newServer(t, svc)

	res := do(t, http.MethodGet, srv.URL+"/api/appointments?startDate=2024-03-12&endDate=2024-03-12", token(t, 1, auth.RoleAdmin), "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "2024-03-12T00:00:00", svc.query.StartDate.String())
	assert.Equal(t, "2024-03-12T23:59:59", svc.query.EndDate.String())
}

func TestListAppointmentsBadQuery(t *testing.T) {
	srv := newServer(t, &stubService{})
	tok := token(t, 1, auth.RoleAdmin)

	res := do(t, http.MethodGet, srv.URL+"/api/appointments?startDate=tomorrow", tok, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodGet, srv.URL+"/api/appointments?userId=abc", tok, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestListAppointmentsForbidden(t *testing.T) {
	srv := newServer(t, &stubService{err: appointment.ErrPermissionDenied})

	res := do(t, http.MethodGet, srv.URL+"/api/appointments?startDate=2024-03-12", token(t, 7, auth.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, response.CodeForbidden, decodeError(t, res).Code)
}

func TestRequiresToken(t *testing.T) {
	srv := newServer(t, &stubService{})

	res := do(t, http.MethodGet, srv.URL+"/api/appointments/user/7", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = do(t, http.MethodGet, srv.URL+"/api/appointments/user/7", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, response.CodeInvalidToken, decodeError(t, res).Code)
}

func TestCreateAppointment(t *testing.T) {
	svc := &stubService{}
	srv := newServer(t, svc)

	body := `{"userId":7,"startTime":"2024-03-12T10:00:00","endTime":"2024-03-12T11:00:00","title":"Massage","description":""}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/appointments", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, 7, auth.RoleUser))
	req.Header.Set("Idempotency-Key", "k-1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	var a appointment.Appointment
	require.NoError(t, json.NewDecoder(res.Body).Decode(&a))
	assert.Equal(t, int64(41), a.ID)
	assert.Equal(t, "k-1", svc.req.IdempotencyKey)
	assert.Equal(t, "2024-03-12T10:00:00", svc.req.StartTime.String())
}

func TestCreateAppointmentErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"conflict", appointment.ErrConflict, http.StatusConflict, response.CodeConflict, "Time slot is already booked"},
		{"invalid", appointment.Invalid("start time must be before end time"), http.StatusBadRequest, response.CodeInvalidInput, "start time must be before end time"},
		{"forbidden", appointment.ErrPermissionDenied, http.StatusForbidden, response.CodeForbidden, "Access denied"},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError, response.CodeInternalError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &stubService{err: tt.err})
			res := do(t, http.MethodPost, srv.URL+"/api/appointments", token(t, 7, auth.RoleUser),
				`{"userId":7,"startTime":"2024-03-12T10:00:00","endTime":"2024-03-12T11:00:00","title":"Massage"}`)
			assert.Equal(t, tt.status, res.StatusCode)
			e := decodeError(t, res)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.msg, e.Error)
		})
	}
}

func TestCreateAppointmentBadJSON(t *testing.T) {
	srv := newServer(t, &stubService{})

	res := do(t, http.MethodPost, srv.URL+"/api/appointments", token(t, 7, auth.RoleUser), `{"startTime":"2024-03-12 10:00"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetUpdateDelete(t *testing.T) {
	svc := &stubService{}
	srv := newServer(t, svc)
	tok := token(t, 7, auth.RoleUser)

	res := do(t, http.MethodGet, srv.URL+"/api/appointments/41", tok, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(41), svc.id)

	res = do(t, http.MethodPut, srv.URL+"/api/appointments/41", tok,
		`{"userId":7,"startTime":"2024-03-12T12:00:00","endTime":"2024-03-12T13:00:00","title":"Facial"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Facial", svc.req.Title)

	res = do(t, http.MethodDelete, srv.URL+"/api/appointments/41", tok, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.True(t, svc.deleted)

	res = do(t, http.MethodDelete, srv.URL+"/api/appointments/zero", tok, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetMissing(t *testing.T) {
	srv := newServer(t, &stubService{err: appointment.ErrNotFound})

	res := do(t, http.MethodGet, srv.URL+"/api/appointments/9", token(t, 7, auth.RoleUser), "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListUserAppointments(t *testing.T) {
	svc := &stubService{list: []appointment.Appointment{{ID: 1, UserID: 8}}}
	srv := newServer(t, svc)

	res := do(t, http.MethodGet, srv.URL+"/api/appointments/user/8", token(t, 1, auth.RoleAdmin), "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(8), svc.id)
	assert.True(t, svc.caller.IsAdmin())
}
