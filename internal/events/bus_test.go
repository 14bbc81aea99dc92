package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(NameSweepCompleted, func(_ context.Context, e Event) {
		got = append(got, "first")
	})
	b.Subscribe(NameSweepCompleted, func(_ context.Context, e Event) {
		got = append(got, "second")
		assert.Equal(t, 3, e.(SweepCompleted).Processed)
	})
	b.Subscribe(NameScheduleDeleted, func(_ context.Context, e Event) {
		got = append(got, "wrong")
	})

	b.Publish(context.Background(), SweepCompleted{Processed: 3})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_PanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := NewBus()
	called := false
	b.Subscribe(NameScheduleDeleted, func(context.Context, Event) { panic("boom") })
	b.Subscribe(NameScheduleDeleted, func(context.Context, Event) { called = true })

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), ScheduleDeleted{ID: 1})
	})
	assert.True(t, called)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Publish(context.Background(), ScheduleDeleted{ID: 1})
	})
}
