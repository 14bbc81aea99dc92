// Package scheduler decides when due schedules are swept: a recurring timer, one-shot
// timers at each schedule's due time, and opportunistic sweeps piggybacked on content
// views.
package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"contentexpiry/internal/domain"
	"contentexpiry/internal/events"
	"contentexpiry/internal/settings"
	"contentexpiry/internal/store"
	"contentexpiry/internal/timer"
)

// JobName is the recurring timer that drives periodic sweeps.
const JobName = "process_schedules"

const (
	DefaultInterval        = time.Minute
	DefaultBatchSize       = 100
	DefaultRuntimeThrottle = time.Minute
	DefaultOnceMinDelay    = 5 * time.Second
)

const throttleKey = "runtime_sweep"

type Processor interface {
	Process(ctx context.Context, s domain.Schedule) bool
}

type Options struct {
	Interval        time.Duration
	BatchSize       int
	RuntimeThrottle time.Duration
	OnceMinDelay    time.Duration
	// Verbose logs every failed action.
	Verbose bool
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RuntimeThrottle <= 0 {
		o.RuntimeThrottle = DefaultRuntimeThrottle
	}
	if o.OnceMinDelay <= 0 {
		o.OnceMinDelay = DefaultOnceMinDelay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Service struct {
	repo     store.Repository
	exec     Processor
	settings *settings.Manager
	timers   timer.Facility
	sink     events.Sink
	opts     Options

	hint  *cache.Cache
	group singleflight.Group
	// sweepMu is held for the whole of a sweep.
	sweepMu sync.Mutex
}

func NewService(repo store.Repository, exec Processor, sm *settings.Manager, timers timer.Facility, sink events.Sink, opts Options) *Service {
	if sink == nil {
		sink = events.Discard
	}
	opts = opts.withDefaults()
	return &Service{
		repo:     repo,
		exec:     exec,
		settings: sm,
		timers:   timers,
		sink:     sink,
		opts:     opts,
		hint:     cache.New(opts.RuntimeThrottle, 2*opts.RuntimeThrottle),
	}
}

type periodicKey struct{}

// WithPeriodic marks ctx as running inside the periodic trigger.
func WithPeriodic(ctx context.Context) context.Context {
	return context.WithValue(ctx, periodicKey{}, true)
}

func IsPeriodic(ctx context.Context) bool {
	v, _ := ctx.Value(periodicKey{}).(bool)
	return v
}

// Subscribe arms a one-shot timer whenever a schedule is created or updated.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.NameScheduleCreated, s.onScheduleChanged)
	bus.Subscribe(events.NameScheduleUpdated, s.onScheduleChanged)
}

// EnsureScheduled registers the recurring trigger when sweeping is enabled and
// clears it when it is not. Safe to call repeatedly.
func (s *Service) EnsureScheduled(ctx context.Context) error {
	if !s.settings.CronEnabled() {
		if s.timers.IsScheduled(JobName) {
			s.timers.Clear(JobName)
			log.Info().Str("timer", JobName).Msg("periodic sweep disabled")
		}
		return nil
	}
	if s.timers.IsScheduled(JobName) {
		return nil
	}
	if err := s.timers.ScheduleRecurring(JobName, s.opts.Interval, func(ctx context.Context) {
		s.PeriodicSweep(ctx)
	}); err != nil {
		return err
	}
	log.Info().Str("timer", JobName).Dur("interval", s.opts.Interval).Msg("periodic sweep scheduled")
	return nil
}

// PeriodicSweep is the timer entry point. When sweeping is disabled it still
// reports a completed sweep with zero records.
func (s *Service) PeriodicSweep(ctx context.Context) int {
	ctx = WithPeriodic(ctx)
	if !s.settings.CronEnabled() {
		s.sink.Publish(ctx, events.SweepCompleted{Processed: 0})
		return 0
	}
	return s.Sweep(ctx)
}

// MaybeSweep runs an opportunistic sweep unless one ran within the throttle
// window. Concurrent callers in this process share one sweep.
func (s *Service) MaybeSweep(ctx context.Context) bool {
	if IsPeriodic(ctx) || !s.settings.CronEnabled() {
		return false
	}
	if _, throttled := s.hint.Get(throttleKey); throttled {
		return false
	}

	v, _, _ := s.group.Do(throttleKey, func() (any, error) {
		now := s.opts.Now()
		last, err := s.settings.LastRuntimeSweep(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to read last runtime sweep")
			return false, nil
		}
		if !last.IsZero() {
			if elapsed := now.Sub(last); elapsed < s.opts.RuntimeThrottle {
				s.hint.Set(throttleKey, struct{}{}, s.opts.RuntimeThrottle-elapsed)
				return false, nil
			}
		}
		// Written before sweeping, not after.
		if err := s.settings.SetLastRuntimeSweep(ctx, now); err != nil {
			log.Error().Err(err).Msg("failed to record runtime sweep")
			return false, nil
		}
		s.hint.Set(throttleKey, struct{}{}, s.opts.RuntimeThrottle)
		s.Sweep(ctx)
		return true, nil
	})
	ran, _ := v.(bool)
	return ran
}

// Middleware triggers MaybeSweep before serving the wrapped content-view handler.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.MaybeSweep(r.Context())
		next.ServeHTTP(w, r)
	})
}

// Sweep processes every schedule due at the time it starts, in id order, one
// page at a time. A failed record stays unprocessed for the next sweep.
// Cancelling ctx does not stop a sweep that has started.
func (s *Service) Sweep(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	sweepID := uuid.NewString()
	logger := log.With().Str("sweep_id", sweepID).Logger()
	now := s.opts.Now()

	processed := 0
	var after int64
	for {
		batch, err := s.repo.ListDueAfter(ctx, now, after, s.opts.BatchSize)
		if err != nil {
			logger.Error().Err(err).Msg("failed to get due schedules")
			break
		}
		for _, sch := range batch {
			after = sch.ID
			if !s.exec.Process(ctx, sch) {
				if s.opts.Verbose {
					logger.Warn().Int64("schedule_id", sch.ID).Int64("post_id", sch.ContentID).
						Str("action", string(sch.Action)).Msg("expiry action failed, will retry")
				}
				continue
			}
			if err := s.repo.MarkProcessed(ctx, sch.ID); err != nil {
				logger.Error().Err(err).Int64("schedule_id", sch.ID).Msg("failed to mark schedule processed")
				continue
			}
			processed++
		}
		if len(batch) < s.opts.BatchSize {
			break
		}
	}

	logger.Debug().Int("processed", processed).Msg("sweep completed")
	s.sink.Publish(ctx, events.SweepCompleted{Processed: processed})
	return processed
}

func (s *Service) onScheduleChanged(ctx context.Context, e events.Event) {
	if !s.settings.CronEnabled() {
		return
	}
	var (
		id   int64
		data domain.ScheduleInput
	)
	switch ev := e.(type) {
	case events.ScheduleCreated:
		id, data = ev.ID, ev.Data
	case events.ScheduleUpdated:
		id, data = ev.ID, ev.Data
	default:
		return
	}

	due, err := domain.ParseDate(data.ExpiryDate)
	if err != nil {
		return
	}
	if now := s.opts.Now(); !due.After(now) {
		due = now.Add(s.opts.OnceMinDelay)
	}
	if err := s.timers.ScheduleOnce(due, func(ctx context.Context) { s.PeriodicSweep(ctx) }); err != nil {
		log.Error().Err(err).Int64("schedule_id", id).Msg("failed to schedule one-shot sweep")
		return
	}
	log.Debug().Int64("schedule_id", id).Time("at", due).Msg("one-shot sweep scheduled")
}
