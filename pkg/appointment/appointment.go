// Package appointment holds the wire model shared by the appointment store and
// its clients, and the error taxonomy both sides agree on.
package appointment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

// Appointment is a persisted reservation. ID is zero until the store assigns one.
type Appointment struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"userId"`
	UserName    string              `json:"userName"`
	UserEmail   string              `json:"userEmail"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	StartTime   *schedule.LocalTime `json:"startTime"`
	EndTime     *schedule.LocalTime `json:"endTime"`
}

// Bounds implements schedule.Busy. Missing times leave the appointment
// non-blocking.
func (a Appointment) Bounds() (schedule.LocalTime, schedule.LocalTime, bool) {
	if a.StartTime == nil || a.EndTime == nil || a.StartTime.IsZero() || a.EndTime.IsZero() {
		return schedule.LocalTime{}, schedule.LocalTime{}, false
	}
	return *a.StartTime, *a.EndTime, true
}

// UnmarshalJSON reads startTime and endTime leniently. A value that is not a
// LocalLayout string leaves the field nil, so only this appointment stops
// blocking slots while the rest of a list still decodes.
func (a *Appointment) UnmarshalJSON(b []byte) error {
	type plain Appointment
	var wire struct {
		plain
		StartTime json.RawMessage `json:"startTime"`
		EndTime   json.RawMessage `json:"endTime"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*a = Appointment(wire.plain)
	a.StartTime = lenientTime(wire.StartTime)
	a.EndTime = lenientTime(wire.EndTime)
	return nil
}

func lenientTime(raw json.RawMessage) *schedule.LocalTime {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var t schedule.LocalTime
	if err := t.UnmarshalJSON(raw); err != nil {
		return nil
	}
	return &t
}

// Confirmed reports whether the store assigned an identifier.
func (a Appointment) Confirmed() bool { return a.ID > 0 }

// IsOwner reports whether userID owns the appointment.
func (a Appointment) IsOwner(userID int64) bool { return a.UserID == userID }

// BookingRequest is sent once per booking attempt.
type BookingRequest struct {
	UserID      int64              `json:"userId"`
	StartTime   schedule.LocalTime `json:"startTime"`
	EndTime     schedule.LocalTime `json:"endTime"`
	Title       string             `json:"title"`
	Description string             `json:"description"`

	// IdempotencyKey travels as a header so retries cannot create twins.
	IdempotencyKey string `json:"-"`
}

// Normalize trims free-text fields.
func (r *BookingRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

// RangeQuery selects appointments starting inside [StartDate, EndDate]. UserID
// restricts the result to one user's appointments.
type RangeQuery struct {
	StartDate schedule.LocalTime
	EndDate   schedule.LocalTime
	UserID    int64
}

// DayRange covers a full calendar day.
func DayRange(day schedule.Date) RangeQuery {
	return RangeQuery{StartDate: day.StartOfDay(), EndDate: day.EndOfDay()}
}

// ForUser narrows the query to userID.
func (q RangeQuery) ForUser(userID int64) RangeQuery {
	q.UserID = userID
	return q
}

// Event is the payload published when the set of appointments changes.
type Event struct {
	AppointmentID int64               `json:"appointmentId"`
	UserID        int64               `json:"userId"`
	StartTime     *schedule.LocalTime `json:"startTime,omitempty"`
	EndTime       *schedule.LocalTime `json:"endTime,omitempty"`
}

// EventOf builds the event payload for a.
func EventOf(a Appointment) Event {
	return Event{AppointmentID: a.ID, UserID: a.UserID, StartTime: a.StartTime, EndTime: a.EndTime}
}
