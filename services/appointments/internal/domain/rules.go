package domain

import (
	"time"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

// Rules is the business window every stored appointment must fit in.
type Rules struct {
	OpenHour     int
	CloseHour    int
	WeekdaysOnly bool
}

func RulesFromConfig(cfg config.ScheduleConfig) Rules {
	return Rules{OpenHour: cfg.OpenHour, CloseHour: cfg.CloseHour, WeekdaysOnly: cfg.WeekdaysOnly}
}

// Validate checks the request in the order clients see the messages: interval
// shape, weekday, single day, then opening hours.
func (r Rules) Validate(req appointment.BookingRequest) error {
	if req.UserID <= 0 {
		return appointment.Invalid("userId is required")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return appointment.Invalid("startTime and endTime are required")
	}
	if req.Title == "" {
		return appointment.Invalid("title is required")
	}
	return r.ValidateTimes(req.StartTime, req.EndTime)
}

func (r Rules) ValidateTimes(start, end schedule.LocalTime) error {
	if !start.Before(end) {
		return appointment.Invalid("start time must be before end time")
	}
	if r.WeekdaysOnly && (isWeekend(start) || isWeekend(end)) {
		return appointment.Invalid("appointments can only be booked Monday to Friday")
	}
	if !start.Date().Equal(end.Date()) {
		return appointment.Invalid("appointment must start and end on the same day")
	}
	open := start.Date().At(r.OpenHour, 0)
	close := start.Date().At(r.CloseHour, 0)
	if start.Before(open) || end.After(close) {
		return appointment.Invalid("appointments must be between %02d:00 and %02d:00", r.OpenHour, r.CloseHour)
	}
	return nil
}

// ValidateRange rejects an inverted listing window. Open bounds are allowed.
func ValidateRange(q appointment.RangeQuery) error {
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && !q.StartDate.Before(q.EndDate) {
		return appointment.Invalid("startDate must be before endDate")
	}
	return nil
}

func isWeekend(t schedule.LocalTime) bool {
	wd := t.Time().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
