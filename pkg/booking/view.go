package booking

import (
	"fmt"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/availability"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateBooking
	StateConflict
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateBooking:
		return "booking"
	case StateConflict:
		return "conflict"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NoticeKind classifies the message shown next to the slot list.
type NoticeKind int

const (
	NoticeBooked NoticeKind = iota + 1
	NoticePartialView
	NoticeLoadFailed
	NoticeConflict
	NoticeBookingFailed
	NoticeAuthRequired
	NoticeNoSlots
	NoticePastDay
	NoticeClosed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeBooked:
		return "booked"
	case NoticePartialView:
		return "partial-view"
	case NoticeLoadFailed:
		return "load-failed"
	case NoticeConflict:
		return "conflict"
	case NoticeBookingFailed:
		return "booking-failed"
	case NoticeAuthRequired:
		return "auth-required"
	case NoticeNoSlots:
		return "no-slots"
	case NoticePastDay:
		return "past-day"
	case NoticeClosed:
		return "closed"
	default:
		return fmt.Sprintf("notice(%d)", int(k))
	}
}

// Notice is a short user-facing message. Retryable notices offer a refresh.
type Notice struct {
	Kind      NoticeKind
	Message   string
	Retryable bool
}

// View is a snapshot of what the booking screen shows.
type View struct {
	State        State
	Date         schedule.Date
	Service      schedule.ServiceType
	Scope        availability.Scope
	Appointments []appointment.Appointment
	Slots        []schedule.TimeSlot
	// Pending holds the slots whose bookings are in flight, in start order.
	// Only they are disabled.
	Pending []schedule.TimeSlot
	Notice  *Notice
}

// IsPending reports whether slot is being booked.
func (v View) IsPending(slot schedule.TimeSlot) bool {
	for _, p := range v.Pending {
		if p.Start.Equal(slot.Start) && p.End.Equal(slot.End) {
			return true
		}
	}
	return false
}

// Session is the signed-in user. The zero Session is an anonymous visitor.
type Session struct {
	UserID int64
	Name   string
	Email  string
	Role   string
	Token  string
}

func (s Session) Authenticated() bool { return s.Token != "" && s.UserID != 0 }

func (s Session) credentials() availability.Credentials {
	return availability.Credentials{UserID: s.UserID, Token: s.Token}
}
