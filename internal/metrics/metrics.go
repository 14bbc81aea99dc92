// Package metrics turns bus notifications into Prometheus series.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contentexpiry/internal/events"
)

type Collector struct {
	registry *prometheus.Registry

	sweeps         prometheus.Counter
	sweptRecords   prometheus.Counter
	lastSweepCount prometheus.Gauge
	actions        *prometheus.CounterVec
	scheduleEvents *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentexpiry",
			Name:      "sweeps_total",
			Help:      "Completed sweeps, including disabled no-op sweeps.",
		}),
		sweptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentexpiry",
			Name:      "swept_schedules_total",
			Help:      "Schedules marked processed by sweeps.",
		}),
		lastSweepCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentexpiry",
			Name:      "last_sweep_processed",
			Help:      "Schedules processed by the most recent sweep.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentexpiry",
			Name:      "expiry_actions_total",
			Help:      "Expiry actions attempted, by action and result.",
		}, []string{"action", "success"}),
		scheduleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentexpiry",
			Name:      "schedule_changes_total",
			Help:      "Schedule create/update/delete notifications.",
		}, []string{"event"}),
	}
	c.registry.MustRegister(c.sweeps, c.sweptRecords, c.lastSweepCount, c.actions, c.scheduleEvents)
	return c
}

func (c *Collector) Attach(bus *events.Bus) {
	bus.Subscribe(events.NameSweepCompleted, c.observe)
	bus.Subscribe(events.NameAfterExpiryAction, c.observe)
	bus.Subscribe(events.NameScheduleCreated, c.observe)
	bus.Subscribe(events.NameScheduleUpdated, c.observe)
	bus.Subscribe(events.NameScheduleDeleted, c.observe)
}

func (c *Collector) observe(_ context.Context, e events.Event) {
	switch ev := e.(type) {
	case events.SweepCompleted:
		c.sweeps.Inc()
		c.sweptRecords.Add(float64(ev.Processed))
		c.lastSweepCount.Set(float64(ev.Processed))
	case events.AfterExpiryAction:
		c.actions.WithLabelValues(string(ev.Schedule.Action), strconv.FormatBool(ev.Result)).Inc()
	default:
		c.scheduleEvents.WithLabelValues(e.Name()).Inc()
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
