package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
)

type importedKey struct{}

// Envelope is the wire form of an Event between processes. Origin is empty
// when a server publishes directly.
type Envelope struct {
	Origin      string            `json:"origin,omitempty"`
	Appointment appointment.Event `json:"appointment"`
	At          time.Time         `json:"at"`
}

// Bridge connects a local Bus to a remote EventBus so views in other processes
// learn about bookings made here, and the other way round.
type Bridge struct {
	local  *Bus
	remote EventBus
	origin string
}

func NewBridge(local *Bus, remote EventBus) *Bridge {
	return &Bridge{local: local, remote: remote, origin: uuid.NewString()}
}

// Forward publishes local events of the given topics on their NATS subjects.
func (br *Bridge) Forward(topics ...Topic) (stop func()) {
	var unsubs []func()
	for _, topic := range topics {
		unsubs = append(unsubs, br.local.Subscribe(topic, func(ctx context.Context, e Event) {
			if ctx.Value(importedKey{}) != nil {
				return
			}
			env := Envelope{Origin: br.origin, Appointment: e.Appointment, At: e.At}
			if err := br.remote.Publish(ctx, e.Topic.Subject(), env); err != nil {
				logger.ErrorContext(ctx, "Failed to forward event", "error", err, "topic", e.Topic.String())
			}
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Import republishes remote messages of the given topics on the local bus.
// Messages this bridge forwarded itself are skipped.
func (br *Bridge) Import(topics ...Topic) error {
	for _, topic := range topics {
		topic := topic
		err := br.remote.Subscribe(topic.Subject(), func(msg *Message) {
			br.receive(topic, msg)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic.Subject(), err)
		}
	}
	return nil
}

func (br *Bridge) receive(topic Topic, msg *Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		logger.Warn("Dropping malformed event", "subject", msg.Subject, "error", err)
		return
	}
	if env.Origin == br.origin {
		return
	}
	ctx := context.WithValue(context.Background(), importedKey{}, msg.ID)
	br.local.Publish(ctx, Event{Topic: topic, Appointment: env.Appointment, At: env.At})
}

// BusPublisher lets server code that speaks subjects publish onto a local Bus
// when no NATS connection is configured.
type BusPublisher struct {
	Bus *Bus
}

func (p BusPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	topic, ok := TopicForSubject(subject)
	if !ok {
		return fmt.Errorf("events: no topic for subject %q", subject)
	}
	env, ok := data.(Envelope)
	if !ok {
		return fmt.Errorf("events: unexpected payload %T for %s", data, subject)
	}
	p.Bus.Publish(ctx, Event{Topic: topic, Appointment: env.Appointment, At: env.At})
	return nil
}

// Announce builds the envelope servers publish after a change is committed.
func Announce(a appointment.Appointment) Envelope {
	return Envelope{Appointment: appointment.EventOf(a), At: time.Now().UTC()}
}

func (p BusPublisher) Close() error { return nil }
