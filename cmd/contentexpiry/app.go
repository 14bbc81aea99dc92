package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"contentexpiry/internal/config"
	"contentexpiry/internal/content"
	"contentexpiry/internal/db"
	"contentexpiry/internal/events"
	"contentexpiry/internal/executor"
	"contentexpiry/internal/metrics"
	"contentexpiry/internal/scheduler"
	"contentexpiry/internal/settings"
	"contentexpiry/internal/store"
	"contentexpiry/internal/timer"
)

type app struct {
	db        *sql.DB
	bus       *events.Bus
	items     content.Store
	executor  *executor.Executor
	gate      *executor.Gate
	repo      store.Repository
	settings  *settings.Manager
	timers    *timer.CronFacility
	scheduler *scheduler.Service
	metrics   *metrics.Collector
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, ensure := range []func(*sql.DB) error{content.EnsureSchema, store.EnsureSchema, settings.EnsureSchema} {
		if err := ensure(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	a := &app{db: conn, bus: events.NewBus()}
	a.items = content.NewSQLiteStore(conn)
	a.executor = executor.New(a.items, a.bus)
	a.gate = executor.NewGate(a.items)
	a.repo = store.NewSQLiteRepo(conn, a.items, a.executor, a.bus)
	if a.settings, err = settings.Load(ctx, settings.NewSQLiteStore(conn), a.executor.Has); err != nil {
		_ = conn.Close()
		return nil, err
	}

	a.metrics = metrics.New()
	a.metrics.Attach(a.bus)

	a.timers = timer.NewCronFacility()
	a.scheduler = scheduler.NewService(a.repo, a.executor, a.settings, a.timers, a.bus, scheduler.Options{
		Interval:        cfg.Scheduler.Interval,
		BatchSize:       cfg.Scheduler.BatchSize,
		RuntimeThrottle: cfg.Scheduler.RuntimeThrottle,
		OnceMinDelay:    cfg.Scheduler.OnceMinDelay,
		Verbose:         cfg.Debug,
	})
	a.scheduler.Subscribe(a.bus)
	a.bus.Subscribe(events.NameSweepCompleted, func(_ context.Context, e events.Event) {
		log.Info().Int("processed", e.(events.SweepCompleted).Processed).Msg("sweep completed")
	})

	log.Info().Str("db", cfg.DB.Path).Strs("actions", a.executor.Actions()).Msg("content expiry ready")
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("close db")
	}
}

func setupLogging(c config.Logger) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}
