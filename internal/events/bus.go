// Package events is the in-process notification bus. Components publish typed
// events through a Sink handed to them at construction; integrations subscribe
// by event name.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"contentexpiry/internal/domain"
)

const (
	NameScheduleCreated    = "schedule_created"
	NameScheduleUpdated    = "schedule_updated"
	NameScheduleDeleted    = "schedule_deleted"
	NameBeforeExpiryAction = "before_expiry_action"
	NameAfterExpiryAction  = "after_expiry_action"
	NameSweepCompleted     = "sweep_completed"
)

type Event interface {
	Name() string
}

type ScheduleCreated struct {
	ID   int64
	Data domain.ScheduleInput
}

type ScheduleUpdated struct {
	ID   int64
	Data domain.ScheduleInput
}

type ScheduleDeleted struct {
	ID int64
}

type BeforeExpiryAction struct {
	Schedule domain.Schedule
}

type AfterExpiryAction struct {
	Schedule domain.Schedule
	Result   bool
}

type SweepCompleted struct {
	Processed int
}

func (ScheduleCreated) Name() string    { return NameScheduleCreated }
func (ScheduleUpdated) Name() string    { return NameScheduleUpdated }
func (ScheduleDeleted) Name() string    { return NameScheduleDeleted }
func (BeforeExpiryAction) Name() string { return NameBeforeExpiryAction }
func (AfterExpiryAction) Name() string  { return NameAfterExpiryAction }
func (SweepCompleted) Name() string     { return NameSweepCompleted }

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

type Handler func(ctx context.Context, e Event)

// Bus delivers each event synchronously to its subscribers in subscription order.
// A panicking subscriber is logged and does not stop delivery to the others.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[e.Name()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, e)
	}
}

func deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", e.Name()).Msg("event subscriber panicked")
		}
	}()
	h(ctx, e)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}
