package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// LocalLayout is the wire encoding of a wall-clock timestamp. It carries no zone
// so neither end reinterprets the intended local time.
const LocalLayout = "2006-01-02T15:04:05"

// DateLayout is the wire encoding of a calendar day.
const DateLayout = "2006-01-02"

// LocalTime is a floating wall-clock timestamp. The underlying time.Time is pinned
// to UTC and never converted.
type LocalTime struct {
	t time.Time
}

// NewLocalTime builds a wall-clock timestamp from its fields.
func NewLocalTime(year int, month time.Month, day, hour, minute, sec int) LocalTime {
	return LocalTime{t: time.Date(year, month, day, hour, minute, sec, 0, time.UTC)}
}

// LocalTimeOf keeps the wall clock of t and drops its location.
func LocalTimeOf(t time.Time) LocalTime {
	return NewLocalTime(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// ParseLocalTime parses LocalLayout. Fractional seconds are accepted and dropped,
// zone suffixes are rejected.
func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.Parse(LocalLayout, s)
	if err != nil {
		return LocalTime{}, fmt.Errorf("schedule: invalid local time %q: %w", s, err)
	}
	return LocalTimeOf(t), nil
}

func (l LocalTime) Time() time.Time { return l.t }

func (l LocalTime) IsZero() bool { return l.t.IsZero() }

func (l LocalTime) String() string { return l.t.Format(LocalLayout) }

// Clock renders HH:MM.
func (l LocalTime) Clock() string { return l.t.Format("15:04") }

func (l LocalTime) Add(d time.Duration) LocalTime { return LocalTime{t: l.t.Add(d)} }

func (l LocalTime) Sub(o LocalTime) time.Duration { return l.t.Sub(o.t) }

func (l LocalTime) Before(o LocalTime) bool { return l.t.Before(o.t) }

func (l LocalTime) After(o LocalTime) bool { return l.t.After(o.t) }

func (l LocalTime) Equal(o LocalTime) bool { return l.t.Equal(o.t) }

// Date returns the calendar day the timestamp falls on.
func (l LocalTime) Date() Date { return NewDate(l.t.Year(), l.t.Month(), l.t.Day()) }

func (l LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *LocalTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("schedule: local time must be a string: %w", err)
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Date is a calendar day with no time component.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the day of t on its own wall clock.
func DateOf(t time.Time) Date { return NewDate(t.Year(), t.Month(), t.Day()) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("schedule: invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string { return d.t.Format(DateLayout) }

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// At returns the wall-clock timestamp hour:minute on this day.
func (d Date) At(hour, minute int) LocalTime {
	return LocalTime{t: d.t.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)}
}

// StartOfDay and EndOfDay bound the day for range queries.
func (d Date) StartOfDay() LocalTime { return d.At(0, 0) }

func (d Date) EndOfDay() LocalTime { return d.At(23, 59).Add(59 * time.Second) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("schedule: date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
