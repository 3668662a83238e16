package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

var rules = Rules{OpenHour: 8, CloseHour: 15, WeekdaysOnly: true}

func at(day, hour, minute int) schedule.LocalTime {
	// March 2024: the 11th is a Monday, the 16th a Saturday.
	return schedule.NewLocalTime(2024, time.March, day, hour, minute, 0)
}

func TestValidateTimes(t *testing.T) {
	tests := []struct {
		name       string
		start, end schedule.LocalTime
		reason     string
	}{
		{"ok", at(12, 10, 0), at(12, 11, 0), ""},
		{"whole window", at(12, 8, 0), at(12, 15, 0), ""},
		{"inverted", at(12, 11, 0), at(12, 10, 0), "start time must be before end time"},
		{"empty", at(12, 10, 0), at(12, 10, 0), "start time must be before end time"},
		{"saturday", at(16, 10, 0), at(16, 11, 0), "appointments can only be booked Monday to Friday"},
		{"two days", at(12, 14, 0), at(13, 9, 0), "appointment must start and end on the same day"},
		{"too early", at(12, 7, 30), at(12, 8, 30), "appointments must be between 08:00 and 15:00"},
		{"too late", at(12, 14, 30), at(12, 15, 30), "appointments must be between 08:00 and 15:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.ValidateTimes(tt.start, tt.end)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, appointment.ErrValidation))
			assert.Equal(t, tt.reason, err.Error())
		})
	}
}

func TestValidateWeekendsAllowed(t *testing.T) {
	open := Rules{OpenHour: 8, CloseHour: 15}
	assert.NoError(t, open.ValidateTimes(at(16, 10, 0), at(16, 11, 0)))
}

func TestValidateRequiredFields(t *testing.T) {
	req := appointment.BookingRequest{UserID: 7, StartTime: at(12, 10, 0), EndTime: at(12, 11, 0), Title: "Massage"}
	assert.NoError(t, rules.Validate(req))

	noUser := req
	noUser.UserID = 0
	assert.ErrorIs(t, rules.Validate(noUser), appointment.ErrValidation)

	noTitle := req
	noTitle.Title = ""
	assert.EqualError(t, rules.Validate(noTitle), "title is required")

	noTimes := req
	noTimes.EndTime = schedule.LocalTime{}
	assert.EqualError(t, rules.Validate(noTimes), "startTime and endTime are required")
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(appointment.RangeQuery{}))
	assert.NoError(t, ValidateRange(appointment.RangeQuery{StartDate: at(12, 0, 0)}))
	assert.NoError(t, ValidateRange(appointment.RangeQuery{StartDate: at(12, 0, 0), EndDate: at(13, 0, 0)}))
	assert.ErrorIs(t, ValidateRange(appointment.RangeQuery{StartDate: at(13, 0, 0), EndDate: at(12, 0, 0)}), appointment.ErrValidation)
}
