// Package timer is the host timer facility: named recurring callbacks and
// anonymous one-shot callbacks, both driven by robfig/cron.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type Func func(ctx context.Context)

type Facility interface {
	ScheduleRecurring(name string, interval time.Duration, fn Func) error
	ScheduleOnce(at time.Time, fn Func) error
	IsScheduled(name string) bool
	Clear(name string)
}

// minOnceDelay keeps a one-shot entry from being computed as already past by the
// cron run loop, which would leave it parked forever.
const minOnceDelay = time.Second

// CronFacility implements Facility. A recurring job never overlaps itself:
// a tick that arrives while the previous run is still going is skipped.
type CronFacility struct {
	mu      sync.Mutex
	cron    *cron.Cron
	named   map[string]cron.EntryID
	locks   map[string]*sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
	pending int
}

func NewCronFacility() *CronFacility {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronFacility{
		cron:   cron.New(),
		named:  make(map[string]cron.EntryID),
		locks:  make(map[string]*sync.Mutex),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

func (f *CronFacility) Start() {
	f.cron.Start()
	log.Info().Msg("timer facility started")
}

// Stop waits for running callbacks, then cancels the callback context. If ctx ends
// first, the callback context is cancelled and ctx's error returned.
func (f *CronFacility) Stop(ctx context.Context) error {
	defer f.cancel()
	select {
	case <-f.cron.Stop().Done():
		log.Info().Msg("timer facility stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *CronFacility) ScheduleRecurring(name string, interval time.Duration, fn Func) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.named[name]; exists {
		return fmt.Errorf("timer: %q is already scheduled", name)
	}
	lock := &sync.Mutex{}
	id := f.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if !lock.TryLock() {
			log.Warn().Str("timer", name).Msg("previous run still in progress, skipping tick")
			return
		}
		defer lock.Unlock()
		fn(f.ctx)
	}))
	f.named[name] = id
	f.locks[name] = lock
	log.Debug().Str("timer", name).Dur("interval", interval).Msg("recurring timer scheduled")
	return nil
}

func (f *CronFacility) ScheduleOnce(at time.Time, fn Func) error {
	if earliest := f.now().Add(minOnceDelay); at.Before(earliest) {
		at = earliest
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var id cron.EntryID
	id = f.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(func() {
		f.mu.Lock()
		f.pending--
		self := id
		f.mu.Unlock()
		f.cron.Remove(self)
		fn(f.ctx)
	}))
	f.pending++
	log.Debug().Time("at", at).Msg("one-shot timer scheduled")
	return nil
}

func (f *CronFacility) IsScheduled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.named[name]
	return ok
}

func (f *CronFacility) Clear(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.named[name]; ok {
		f.cron.Remove(id)
		delete(f.named, name)
		delete(f.locks, name)
		log.Debug().Str("timer", name).Msg("recurring timer cleared")
	}
}

// PendingOnce reports how many one-shot timers have not fired yet.
func (f *CronFacility) PendingOnce() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

type onceSchedule struct {
	at time.Time
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
