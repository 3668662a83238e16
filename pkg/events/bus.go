package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
)

// Topic names a kind of change announced on the bus.
type Topic int

const (
	TopicAppointmentBooked Topic = iota + 1
	TopicAppointmentDeleted
)

func (t Topic) String() string {
	switch t {
	case TopicAppointmentBooked:
		return "appointment booked"
	case TopicAppointmentDeleted:
		return "appointment deleted"
	default:
		return fmt.Sprintf("topic(%d)", int(t))
	}
}

// Subject is the NATS subject the topic travels on between processes.
func (t Topic) Subject() string {
	switch t {
	case TopicAppointmentBooked:
		return AppointmentBooked
	case TopicAppointmentDeleted:
		return AppointmentDeleted
	default:
		return ""
	}
}

// TopicForSubject is the inverse of Topic.Subject.
func TopicForSubject(subject string) (Topic, bool) {
	switch subject {
	case AppointmentBooked:
		return TopicAppointmentBooked, true
	case AppointmentDeleted:
		return TopicAppointmentDeleted, true
	default:
		return 0, false
	}
}

// Event is what subscribers receive. The payload says what changed; consumers
// re-fetch instead of trusting it.
type Event struct {
	Topic       Topic
	Appointment appointment.Event
	At          time.Time
}

type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	handler Handler
	active  atomic.Bool
}

// Bus is an in-process publish/subscribe channel. Delivery is synchronous and
// follows subscription order; a panicking handler does not stop the others.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]*subscription
	logger *slog.Logger
}

func NewBus(l *slog.Logger) *Bus {
	if l == nil {
		l = logger.Default()
	}
	return &Bus{subs: make(map[Topic][]*subscription), logger: l}
}

var (
	defaultBus     *Bus
	defaultBusOnce sync.Once
)

// Default returns the process-wide bus.
func Default() *Bus {
	defaultBusOnce.Do(func() { defaultBus = NewBus(nil) })
	return defaultBus
}

// Subscribe registers h for topic. The returned function removes it; once it has
// returned h is never called again. Calling it twice is harmless.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	sub.active.Store(true)
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers e to every current subscriber of its topic and returns how
// many handlers ran to completion.
func (b *Bus) Publish(ctx context.Context, e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.Lock()
	snapshot := append([]*subscription(nil), b.subs[e.Topic]...)
	b.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		if b.deliver(ctx, sub, e) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, e Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "subscriber panicked", "topic", e.Topic.String(), "subscription", sub.id, "panic", r)
			ok = false
		}
	}()
	sub.handler(ctx, e)
	return true
}

// Subscribers reports how many handlers listen on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
