package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchboard/internal/config"
	"github.com/fyrsmithlabs/switchboard/internal/generator"
	"github.com/fyrsmithlabs/switchboard/internal/metrics"
	"github.com/fyrsmithlabs/switchboard/internal/orchestrator"
	"github.com/fyrsmithlabs/switchboard/internal/registry"
	"github.com/fyrsmithlabs/switchboard/internal/selection"
	"github.com/fyrsmithlabs/switchboard/internal/specstore"
	"github.com/fyrsmithlabs/switchboard/internal/telemetry"
	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

// app holds the wired components shared by serve and run.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tel      *telemetry.Telemetry
	registry *prometheus.Registry

	store   *metrics.Store
	cache   *registry.Cache
	tracker *tracker.Tracker
	engine  *selection.Engine
	driver  *orchestrator.Driver
}

// newApp wires the core components. With offline set every provider is
// served by the static generator and no API keys are needed.
func newApp(cfg *config.Config, logger *zap.Logger, tel *telemetry.Telemetry, offline bool) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := metrics.NewStore(metrics.ResourcesFromConfig(cfg.Resources), cfg.Orchestrator.MetricsWindow)
	if err != nil {
		return nil, fmt.Errorf("metrics store: %w", err)
	}
	reg.MustRegister(store)

	var specs registry.Store
	if cfg.Registry.SpecialistsFile != "" {
		specs = specstore.NewFileStore(cfg.Registry.SpecialistsFile)
	} else {
		specs = specstore.NewMemoryStore(defaultSpecialists()...)
	}

	cache, err := registry.New(specs,
		registry.WithTTL(cfg.Registry.TTL.Duration()),
		registry.WithPromptCacheSize(cfg.Registry.PromptCacheSize),
		registry.WithLogger(logger.Named("registry")),
	)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	reg.MustRegister(cache)

	tr := tracker.New(
		tracker.WithLogger(logger.Named("tracker")),
		tracker.WithLogCapacity(cfg.Tracker.LogCapacity),
		tracker.WithBroadcastTimeout(cfg.Tracker.BroadcastTimeout.Duration()),
		tracker.WithSubscriberBuffer(cfg.Tracker.SubscriberBuffer),
		tracker.WithRegisterer(reg),
	)

	engine := selection.New(store,
		selection.WithLogger(logger.Named("selection")),
		selection.WithRegisterer(reg),
	)

	gens, err := newGenerators(cfg.Generator, logger, offline)
	if err != nil {
		return nil, err
	}

	driver := orchestrator.NewDriver(cache, engine, tr, gens,
		orchestrator.WithConfig(orchestrator.ConfigFromApp(cfg)),
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithTracer(tel.Tracer("github.com/fyrsmithlabs/switchboard/internal/orchestrator")),
		orchestrator.WithRegisterer(reg),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		tel:      tel,
		registry: reg,
		store:    store,
		cache:    cache,
		tracker:  tr,
		engine:   engine,
		driver:   driver,
	}, nil
}

// newGenerators registers one generator per provider. Hosted providers are
// only registered when their key is set and are rate limited.
func newGenerators(cfg config.GeneratorConfig, logger *zap.Logger, offline bool) (*generator.Set, error) {
	gens := generator.NewSet()
	static := generator.NewStatic(0)
	gens.Register(config.ProviderStatic, static)

	if offline {
		gens.Register(config.ProviderAnthropic, static)
		gens.Register(config.ProviderOpenAI, static)
		return gens, nil
	}

	if cfg.AnthropicAPIKey.IsSet() {
		g, err := generator.NewAnthropic(cfg.AnthropicAPIKey.Value())
		if err != nil {
			return nil, fmt.Errorf("anthropic generator: %w", err)
		}
		gens.Register(config.ProviderAnthropic, generator.NewRateLimited(g, cfg.RateLimit, cfg.Burst))
	}
	if cfg.OpenAIAPIKey.IsSet() {
		g, err := generator.NewOpenAI(cfg.OpenAIAPIKey.Value())
		if err != nil {
			return nil, fmt.Errorf("openai generator: %w", err)
		}
		gens.Register(config.ProviderOpenAI, generator.NewRateLimited(g, cfg.RateLimit, cfg.Burst))
	}
	logger.Info("generators registered", zap.Strings("providers", gens.Providers()))
	return gens, nil
}

// connectNATS dials the broker for the session bridge.
func connectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("switchboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// sweepSessions drops terminal sessions older than retention until ctx ends.
func (a *app) sweepSessions(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.tracker.PruneTerminal(now.Add(-retention)); n > 0 {
				a.logger.Debug("pruned finished sessions", zap.Int("count", n))
			}
		}
	}
}
