package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentexpiry/internal/api"
	"contentexpiry/internal/config"
)

func rootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "contentexpiry",
		Short:         "Schedule and run expiry actions against content items",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to config file (default ./config.yaml)")
	root.PersistentFlags().String("addr", "", "HTTP bind address")
	root.PersistentFlags().String("db", "", "SQLite DB path")
	_ = v.BindPFlag("http.addr", root.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("db.path", root.PersistentFlags().Lookup("db"))

	root.AddCommand(serveCmd(v), sweepCmd(v))
	return root
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func serveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.timers.Start()
			if err := a.scheduler.EnsureScheduled(ctx); err != nil {
				return fmt.Errorf("schedule periodic sweep: %w", err)
			}

			srv := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: api.NewServer(api.Deps{
					Repo:      a.repo,
					Items:     a.items,
					Settings:  a.settings,
					Scheduler: a.scheduler,
					Gate:      a.gate,
					Metrics:   a.metrics.Handler(),
					Debug:     cfg.Debug,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errc:
				return fmt.Errorf("http server: %w", err)
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if err := a.timers.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("timer facility did not stop in time")
			}
			return nil
		},
	}
}

func sweepCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Process due schedules once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			n := a.scheduler.PeriodicSweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d schedule(s)\n", n)
			return nil
		},
	}
}
