package schedule

import (
	"fmt"
	"time"
)

// Hours is the opening window of a day and the alignment of slot starts.
type Hours struct {
	OpenHour    int `json:"openHour"`
	CloseHour   int `json:"closeHour"`
	StepMinutes int `json:"stepMinutes"`
}

// DefaultHours mirrors the business window enforced by the appointment store.
var DefaultHours = Hours{OpenHour: 8, CloseHour: 15, StepMinutes: 60}

// Valid reports whether the window can produce any slot at all.
func (h Hours) Valid() bool {
	return h.OpenHour >= 0 && h.CloseHour <= 24 && h.OpenHour < h.CloseHour && h.StepMinutes > 0
}

// TimeSlot is a candidate bookable interval.
type TimeSlot struct {
	Start LocalTime `json:"startTime"`
	End   LocalTime `json:"endTime"`
	Label string    `json:"label"`
}

// Interval returns the slot as a half-open interval.
func (s TimeSlot) Interval() Interval { return Interval{Start: s.Start, End: s.End} }

func slotLabel(start, end LocalTime) string {
	return fmt.Sprintf("%s - %s", start.Clock(), end.Clock())
}

// GenerateSlots lists every slot of durationMinutes that starts on a step boundary
// after the opening hour and ends no later than the closing hour. The result is
// ascending and empty when nothing fits.
func GenerateSlots(day Date, durationMinutes int, h Hours) []TimeSlot {
	if !h.Valid() || durationMinutes <= 0 {
		return nil
	}

	open := day.At(h.OpenHour, 0)
	closing := day.At(h.CloseHour, 0)
	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(h.StepMinutes) * time.Minute

	var slots []TimeSlot
	for start := open; !start.Add(duration).After(closing); start = start.Add(step) {
		end := start.Add(duration)
		slots = append(slots, TimeSlot{Start: start, End: end, Label: slotLabel(start, end)})
	}
	return slots
}
