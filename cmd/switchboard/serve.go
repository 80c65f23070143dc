package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/switchboard/internal/config"
	"github.com/fyrsmithlabs/switchboard/internal/events"
	httpserver "github.com/fyrsmithlabs/switchboard/internal/http"
	"github.com/fyrsmithlabs/switchboard/internal/logging"
	"github.com/fyrsmithlabs/switchboard/internal/specstore"
	"github.com/fyrsmithlabs/switchboard/internal/telemetry"
)

const (
	sweepInterval    = time.Minute
	sessionRetention = 15 * time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the switchboard HTTP API with the registry refresher, the optional
specialists file watcher and the optional NATS session bridge.

Examples:
  # Start with ~/.config/switchboard/config.yaml
  switchboard serve

  # Override the port from the environment
  SWITCHBOARD_SERVER_HTTP_PORT=9300 switchboard serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return err
			}
			if err := serve(ctx, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

// serve runs the HTTP API until ctx is canceled.
//
//  1. Initializes telemetry and logger
//  2. Wires registry, tracker, selection and orchestrator
//  3. Starts the registry refresher and optional file watcher
//  4. Starts the NATS bridge when enabled
//  5. Serves HTTP and shuts everything down on cancellation
func serve(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetry.ConfigFromApp(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.ConfigFromApp(cfg.Logging)
	if err != nil {
		return err
	}
	if tel.IsEnabled() {
		logCfg.Output.OTEL = true
	}
	log, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync() // Best-effort sync on shutdown
	}()
	logger := log.Underlying()

	logger.Info("starting switchboard",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("resources", len(cfg.Resources)),
		zap.Bool("nats", cfg.NATS.Enabled),
	)

	a, err := newApp(cfg, logger, tel, false)
	if err != nil {
		return err
	}
	if err := a.cache.Refresh(ctx, true); err != nil {
		// Serve anyway; queries fall back to whatever the next refresh loads.
		logger.Warn("initial registry load failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	a.cache.Start(gctx, cfg.Registry.RefreshInterval.Duration())
	g.Go(func() error {
		a.sweepSessions(gctx, sweepInterval, sessionRetention)
		return nil
	})

	if cfg.Registry.Watch && cfg.Registry.SpecialistsFile != "" {
		w, err := specstore.NewWatcher(cfg.Registry.SpecialistsFile, 0, func(ctx context.Context) {
			if err := a.cache.Refresh(ctx, true); err != nil {
				logger.Warn("reload after file change failed", zap.Error(err))
			}
		}, logger.Named("watcher"))
		if err != nil {
			return fmt.Errorf("specialists watcher: %w", err)
		}
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	if cfg.NATS.Enabled {
		nc, err := connectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		pub, err := events.NewPublisher(nc, a.tracker,
			events.WithPrefix(cfg.NATS.SubjectPrefix),
			events.WithLogger(logger.Named("events")),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return pub.Run(gctx)
		})
	}

	srv, err := httpserver.NewServer(httpserver.Deps{
		Driver:    a.driver,
		Registry:  a.cache,
		Resources: a.store,
		Scorer:    a.engine,
		Gatherer:  a.registry,
		Health:    tel,
		Tracer:    tel.Tracer("github.com/fyrsmithlabs/switchboard/internal/http"),
		Metrics:   httpserver.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/switchboard/internal/http"), logger),
	}, logger, &httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         version,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}
	g.Go(func() error {
		return srv.Start(gctx)
	})

	err = g.Wait()
	logger.Info("switchboard stopped")
	return err
}
