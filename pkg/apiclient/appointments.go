package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
)

// rangeParams is the query string of GET /api/appointments.
type rangeParams struct {
	StartDate string `url:"startDate"`
	EndDate   string `url:"endDate"`
	UserID    int64  `url:"userId,omitempty"`
}

// ListAppointments returns appointments starting inside q. Without q.UserID
// the backend requires an administrator and answers ErrPermissionDenied
// otherwise.
func (c *Client) ListAppointments(ctx context.Context, token string, q appointment.RangeQuery) ([]appointment.Appointment, error) {
	values, err := query.Values(rangeParams{
		StartDate: q.StartDate.String(),
		EndDate:   q.EndDate.String(),
		UserID:    q.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode range query: %w", err)
	}

	var out []appointment.Appointment
	err = c.do(ctx, request{
		method: http.MethodGet,
		url:    join(c.appointmentsURL, "/api/appointments", values),
		token:  token,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserAppointments lists every appointment of userID.
func (c *Client) UserAppointments(ctx context.Context, token string, userID int64) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	err := c.do(ctx, request{
		method: http.MethodGet,
		url:    join(c.appointmentsURL, "/api/appointments/user/"+strconv.FormatInt(userID, 10), nil),
		token:  token,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetAppointment(ctx context.Context, token string, id int64) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := c.do(ctx, request{
		method: http.MethodGet,
		url:    join(c.appointmentsURL, "/api/appointments/"+strconv.FormatInt(id, 10), nil),
		token:  token,
		out:    &out,
	})
	return out, err
}

// CreateAppointment submits req once. Retries reuse req.IdempotencyKey, which
// is generated when empty, so the backend stores at most one appointment.
// A confirmation without a body yields a zero Appointment and no error.
func (c *Client) CreateAppointment(ctx context.Context, token string, req appointment.BookingRequest) (appointment.Appointment, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	body, err := encode(req)
	if err != nil {
		return appointment.Appointment{}, err
	}

	var out appointment.Appointment
	err = c.do(ctx, request{
		method:         http.MethodPost,
		url:            join(c.appointmentsURL, "/api/appointments", nil),
		token:          token,
		body:           body,
		idempotencyKey: req.IdempotencyKey,
		out:            &out,
		emptyOK:        true,
	})
	return out, err
}

// UpdateAppointment replaces the times and text of appointment id.
func (c *Client) UpdateAppointment(ctx context.Context, token string, id int64, req appointment.BookingRequest) (appointment.Appointment, error) {
	body, err := encode(req)
	if err != nil {
		return appointment.Appointment{}, err
	}
	var out appointment.Appointment
	err = c.do(ctx, request{
		method: http.MethodPut,
		url:    join(c.appointmentsURL, "/api/appointments/"+strconv.FormatInt(id, 10), nil),
		token:  token,
		body:   body,
		out:    &out,
	})
	return out, err
}

func (c *Client) DeleteAppointment(ctx context.Context, token string, id int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		url:    join(c.appointmentsURL, "/api/appointments/"+strconv.FormatInt(id, 10), nil),
		token:  token,
	})
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return buf.Bytes(), nil
}
