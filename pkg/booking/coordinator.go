// Package booking drives the booking screen: it selects a day and a service,
// shows the slots that are still free, and submits reservations.
//
// The backend is authoritative for conflicts. The local overlap check only
// saves a round trip when the screen is visibly stale.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/availability"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

var (
	ErrNoSelection = errors.New("booking: no day selected")
	ErrBusy        = errors.New("booking: slot is already being booked")
)

type Loader interface {
	Load(ctx context.Context, day schedule.Date, creds availability.Credentials) (*availability.Result, error)
}

type Backend interface {
	CreateAppointment(ctx context.Context, token string, req appointment.BookingRequest) (appointment.Appointment, error)
}

type Config struct {
	Session      Session
	Loader       Loader
	Backend      Backend
	Bus          *events.Bus
	Catalog      schedule.Catalog
	WeekdaysOnly bool
	Clock        func() time.Time
	Logger       *slog.Logger
}

type Coordinator struct {
	loader       Loader
	backend      Backend
	bus          *events.Bus
	catalog      schedule.Catalog
	weekdaysOnly bool
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.Mutex
	session Session
	state   State
	// gen changes with every selection; results carrying an older value are
	// dropped.
	gen     uint64
	loadSeq uint64
	day     schedule.Date
	service schedule.ServiceType
	scope   availability.Scope
	appts   []appointment.Appointment
	slots   []schedule.TimeSlot
	// pending holds in-flight bookings keyed by slot start.
	pending map[string]schedule.TimeSlot
	notice  *Notice
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Bus == nil {
		cfg.Bus = events.Default()
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = schedule.DefaultCatalog
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Coordinator{
		loader:       cfg.Loader,
		backend:      cfg.Backend,
		bus:          cfg.Bus,
		catalog:      cfg.Catalog,
		weekdaysOnly: cfg.WeekdaysOnly,
		now:          cfg.Clock,
		logger:       cfg.Logger,
		session:      cfg.Session,
	}
}

func (c *Coordinator) Catalog() schedule.Catalog { return c.catalog }

func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession swaps the signed-in user. Call Refresh afterwards to load what
// the new user may see.
func (c *Coordinator) SetSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a copy of the current screen.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:        c.state,
		Date:         c.day,
		Service:      c.service,
		Scope:        c.scope,
		Appointments: append([]appointment.Appointment(nil), c.appts...),
		Slots:        append([]schedule.TimeSlot(nil), c.slots...),
	}
	for _, p := range c.pending {
		v.Pending = append(v.Pending, p)
	}
	sort.Slice(v.Pending, func(i, j int) bool { return v.Pending[i].Start.Before(v.Pending[j].Start) })
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}
	return v
}

// Select shows serviceID on day. Load failures do not fail Select; they end up
// in the view's notice with the full grid as fallback.
func (c *Coordinator) Select(ctx context.Context, day schedule.Date, serviceID string) error {
	if day.IsZero() {
		return appointment.Invalid("a date is required")
	}
	svc, err := c.catalog.Find(serviceID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.day = day
	c.service = svc
	c.appts = nil
	c.slots = nil
	c.pending = nil
	c.notice = nil
	c.scope = availability.ScopeUnknown
	c.state = StateLoading
	c.mu.Unlock()

	c.reload(ctx, gen, StateReady, nil)
	return nil
}

// Refresh reloads the current selection.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.day.IsZero() {
		c.mu.Unlock()
		return ErrNoSelection
	}
	gen := c.gen
	c.mu.Unlock()

	c.reload(ctx, gen, StateReady, nil)
	return nil
}

// reload fetches appointments for selection gen and rebuilds the slot list.
// It settles in state after; keep overrides the notice the load would set.
func (c *Coordinator) reload(ctx context.Context, gen uint64, after State, keep *Notice) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	day, session := c.day, c.session
	if closed := c.closedNotice(day); closed != nil {
		c.appts = nil
		c.scope = availability.ScopeFull
		c.settle(after)
		c.notice = closed
		c.recompute()
		c.mu.Unlock()
		return
	}
	if !session.Authenticated() {
		c.appts = nil
		c.scope = availability.ScopeOwnOnly
		c.settle(after)
		c.notice = pick(keep, &Notice{Kind: NoticeAuthRequired, Message: "Sign in to see live availability and to book."})
		c.recompute()
		c.mu.Unlock()
		return
	}
	c.loadSeq++
	seq := c.loadSeq
	if len(c.pending) == 0 {
		c.state = StateLoading
	}
	c.mu.Unlock()

	res, err := c.loader.Load(ctx, day, session.credentials())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.loadSeq != seq {
		return
	}
	c.settle(after)

	if err != nil {
		c.appts = nil
		c.scope = availability.ScopeUnknown
		c.notice = pick(keep, c.loadFailure(ctx, day, err))
		if errors.Is(err, appointment.ErrUnauthenticated) {
			c.settle(StateIdle)
		}
		c.recompute()
		return
	}

	c.appts = res.Appointments
	c.scope = res.Scope
	c.notice = keep
	if c.notice == nil && res.Scope == availability.ScopeOwnOnly {
		c.notice = &Notice{
			Kind:    NoticePartialView,
			Message: "Only your own appointments are visible. Other bookings are checked when you confirm.",
		}
	}
	c.recompute()
}

func (c *Coordinator) loadFailure(ctx context.Context, day schedule.Date, err error) *Notice {
	c.logger.WarnContext(ctx, "Availability load failed", "date", day.String(), "error", err)

	switch {
	case errors.Is(err, appointment.ErrUnauthenticated):
		return &Notice{Kind: NoticeAuthRequired, Message: "Your session has expired. Sign in again to book."}
	case errors.Is(err, appointment.ErrMalformedResponse):
		return &Notice{Kind: NoticeLoadFailed, Message: "Availability could not be read. Showing every slot; the booking is checked when you confirm.", Retryable: true}
	default:
		return &Notice{Kind: NoticeLoadFailed, Message: "Availability could not be loaded. Showing every slot; refresh to try again.", Retryable: true}
	}
}

// closedNotice explains days that never have slots.
func (c *Coordinator) closedNotice(day schedule.Date) *Notice {
	today := schedule.DateOf(c.now())
	if day.Before(today) {
		return &Notice{Kind: NoticePastDay, Message: "This day is in the past. Pick today or a later day."}
	}
	if c.weekdaysOnly {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return &Notice{Kind: NoticeClosed, Message: "Appointments are only available Monday to Friday."}
		}
	}
	return nil
}

// recompute rebuilds slots from the selection and known appointments. Callers
// hold c.mu.
func (c *Coordinator) recompute() {
	if n := c.notice; n != nil && (n.Kind == NoticePastDay || n.Kind == NoticeClosed) {
		c.slots = nil
		return
	}

	grid := c.service.Slots(c.day)
	now := schedule.LocalTimeOf(c.now())
	if c.day.Equal(now.Date()) {
		upcoming := grid[:0:0]
		for _, s := range grid {
			if s.Start.After(now) {
				upcoming = append(upcoming, s)
			}
		}
		grid = upcoming
	}

	c.slots = schedule.Available(grid, c.appts)
	if len(c.slots) == 0 && c.notice == nil {
		c.notice = &Notice{Kind: NoticeNoSlots, Message: "No free slots left on this day for " + c.service.Label + ".", Retryable: true}
	}
}

// Book reserves slot for the signed-in user. The returned error is also
// reflected in the view's notice. Other slots stay bookable while a booking
// is in flight; only slot itself is disabled until it resolves.
func (c *Coordinator) Book(ctx context.Context, slot schedule.TimeSlot) (appointment.Appointment, error) {
	c.mu.Lock()
	if !c.session.Authenticated() {
		c.settle(StateIdle)
		c.notice = &Notice{Kind: NoticeAuthRequired, Message: "Sign in to book an appointment."}
		c.mu.Unlock()
		return appointment.Appointment{}, appointment.ErrUnauthenticated
	}
	if c.day.IsZero() {
		c.mu.Unlock()
		return appointment.Appointment{}, ErrNoSelection
	}
	key := slot.Start.String()
	if _, busy := c.pending[key]; busy {
		c.mu.Unlock()
		return appointment.Appointment{}, ErrBusy
	}
	if err := c.checkSlot(slot); err != nil {
		c.mu.Unlock()
		return appointment.Appointment{}, err
	}

	gen := c.gen
	if schedule.Conflicts(slot, c.appts) {
		c.settle(StateReady)
		c.mu.Unlock()
		notice := &Notice{Kind: NoticeConflict, Message: "That slot was just taken. Pick another one.", Retryable: true}
		c.reload(ctx, gen, StateReady, notice)
		return appointment.Appointment{}, fmt.Errorf("slot %s: %w", slot.Label, appointment.ErrConflict)
	}

	session := c.session
	req := appointment.BookingRequest{
		UserID:         session.UserID,
		StartTime:      slot.Start,
		EndTime:        slot.End,
		Title:          c.service.Label,
		Description:    fmt.Sprintf("%s for %s", c.service.Label, session.Name),
		IdempotencyKey: uuid.NewString(),
	}
	req.Normalize()
	if c.pending == nil {
		c.pending = make(map[string]schedule.TimeSlot)
	}
	c.pending[key] = slot
	c.state = StateBooking
	c.notice = nil
	c.mu.Unlock()

	created, err := c.backend.CreateAppointment(ctx, session.Token, req)
	if err == nil {
		c.booked(ctx, gen, slot, created)
		return created, nil
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "Booking finished after selection changed", "slot", slot.Label, "error", err)
		return appointment.Appointment{}, err
	}
	delete(c.pending, key)
	conflict := errors.Is(err, appointment.ErrConflict)
	switch {
	case conflict:
		c.settle(StateConflict)
		c.notice = &Notice{Kind: NoticeConflict, Message: "Someone else booked that slot first. Availability has been refreshed.", Retryable: true}
	case errors.Is(err, appointment.ErrUnauthenticated):
		c.settle(StateIdle)
		c.notice = &Notice{Kind: NoticeAuthRequired, Message: "Your session has expired. Sign in again to book."}
	default:
		c.settle(StateReady)
		c.notice = &Notice{Kind: NoticeBookingFailed, Message: failureMessage(err), Retryable: appointment.Retryable(err)}
	}
	notice := *c.notice
	c.mu.Unlock()

	if conflict {
		c.reload(ctx, gen, StateConflict, &notice)
	} else if notice.Kind == NoticeBookingFailed {
		c.logger.WarnContext(ctx, "Booking failed", "slot", slot.Label, "error", err)
	}
	return appointment.Appointment{}, err
}

// booked applies a successful reservation and announces it.
func (c *Coordinator) booked(ctx context.Context, gen uint64, slot schedule.TimeSlot, created appointment.Appointment) {
	_, _, hasTimes := created.Bounds()
	trusted := created.Confirmed() && hasTimes

	c.mu.Lock()
	current := c.gen == gen
	if current {
		delete(c.pending, slot.Start.String())
		c.settle(StateReady)
		c.notice = &Notice{Kind: NoticeBooked, Message: "Booked " + c.service.Label + " at " + slot.Label + "."}
		if trusted {
			c.appts = append(c.appts, created)
			c.recompute()
		}
	}
	notice := c.notice
	c.mu.Unlock()

	c.bus.Publish(ctx, events.Event{Topic: events.TopicAppointmentBooked, Appointment: appointment.EventOf(created)})

	if current && !trusted {
		c.logger.InfoContext(ctx, "Booking confirmed without an id, reloading", "slot", slot.Label)
		c.reload(ctx, gen, StateReady, notice)
	}
}

// settle moves to s unless other bookings are still in flight. Callers hold
// c.mu.
func (c *Coordinator) settle(s State) {
	if len(c.pending) > 0 {
		c.state = StateBooking
		return
	}
	c.state = s
}

// checkSlot rejects slots that cannot belong to the current selection. Callers
// hold c.mu.
func (c *Coordinator) checkSlot(slot schedule.TimeSlot) error {
	if !slot.Start.Before(slot.End) {
		return appointment.Invalid("slot must end after it starts")
	}
	if !slot.Start.Date().Equal(c.day) {
		return appointment.Invalid("slot %s is not on %s", slot.Label, c.day)
	}
	if !slot.Start.After(schedule.LocalTimeOf(c.now())) {
		return appointment.Invalid("slot %s has already started", slot.Label)
	}
	return nil
}

func failureMessage(err error) string {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Reason
	case errors.Is(err, appointment.ErrValidation):
		return "The backend rejected this booking: " + err.Error()
	case errors.Is(err, appointment.ErrNetwork):
		return "The booking could not be sent. Check your connection and try again."
	default:
		return "The booking failed. Refresh and try again."
	}
}

func pick(preferred, fallback *Notice) *Notice {
	if preferred != nil {
		return preferred
	}
	return fallback
}
