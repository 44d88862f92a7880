// Package app assembles the orchestrator's components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/availability"
	"github.com/tributary-ai/content-orchestrator/internal/catalog"
	"github.com/tributary-ai/content-orchestrator/internal/config"
	"github.com/tributary-ai/content-orchestrator/internal/cost"
	"github.com/tributary-ai/content-orchestrator/internal/execution"
	"github.com/tributary-ai/content-orchestrator/internal/metrics"
	"github.com/tributary-ai/content-orchestrator/internal/orchestrator"
	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/providers/anthropic"
	"github.com/tributary-ai/content-orchestrator/internal/providers/google"
	"github.com/tributary-ai/content-orchestrator/internal/providers/openai"
	"github.com/tributary-ai/content-orchestrator/internal/providers/runware"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/server"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// App holds every wired component
type App struct {
	Config       *config.Config
	Catalog      *catalog.Catalog
	Detector     *availability.Detector
	Router       *routing.Router
	Registry     *providers.Registry
	Engine       *execution.Engine
	Accountant   *cost.Accountant
	Orchestrator *orchestrator.Orchestrator
	Server       *server.Server
	Metrics      *prometheus.Registry

	redis *redis.Client
}

// New builds the application from a loaded configuration
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg}

	a.Catalog = catalog.Default().WithOverrides(cfg.CatalogOverrides()...)

	a.Detector = availability.NewDetector(
		a.Catalog.Providers(),
		cfg.Credentials(),
		logger,
		availability.WithTTL(cfg.Routing.AvailabilityTTL),
	)

	prefs, err := cfg.PreferenceTable()
	if err != nil {
		return nil, err
	}
	a.Router, err = routing.NewRouter(a.Catalog, a.Detector, prefs, cfg.RoutingProfile(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	a.Registry = providers.NewRegistry(logger)
	if err := registerProviders(ctx, a.Registry, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(a.Metrics)

	a.Engine, err = execution.NewEngine(
		a.Registry,
		cfg.Execution.Retry,
		logger,
		execution.WithPacer(execution.NewPacer(cfg.ProviderRateLimits())),
		execution.WithMetrics(recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution engine: %w", err)
	}

	accountantOpts := []cost.Option{cost.WithMetrics(recorder)}
	var sharedCosts server.SharedCostReader
	if cfg.Cost.RedisURL != "" {
		client, err := cost.NewRedisClient(ctx, cfg.Cost.RedisURL)
		if err != nil {
			// Spend is still tracked in memory
			logger.WithError(err).Warn("Redis usage mirror unavailable")
		} else {
			a.redis = client
			sink := cost.NewRedisSink(client, cfg.Cost.KeyPrefix, cfg.Cost.DailyTTL, cfg.Cost.MaxEntries)
			accountantOpts = append(accountantOpts, cost.WithSink(sink))
			sharedCosts = sink
			logger.WithField("prefix", cfg.Cost.KeyPrefix).Info("Mirroring usage to Redis")
		}
	}
	a.Accountant = cost.NewAccountant(a.Catalog, logger, accountantOpts...)

	a.Orchestrator = orchestrator.New(a.Router, a.Engine, a.Accountant, logger,
		orchestrator.WithRequestTimeout(cfg.Execution.RequestTimeout),
	)

	a.Server = server.NewServer(server.Dependencies{
		Orchestrator: a.Orchestrator,
		Catalog:      a.Catalog,
		Availability: a.Detector,
		Accountant:   a.Accountant,
		SharedCosts:  sharedCosts,
		Gatherer:     a.Metrics,
	}, cfg.ToServerConfig(), logger)

	return a, nil
}

// Close releases connections held outside the HTTP server
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// registerProviders builds an adapter for every provider that has credentials
func registerProviders(ctx context.Context, registry *providers.Registry, cfg *config.Config, logger *logrus.Logger) error {
	lookup := cfg.Credentials()
	registered := 0

	for _, id := range types.AllProviders() {
		key := lookup(id)
		if key == "" {
			logger.WithField("provider", id).Debug("No credentials, provider disabled")
			continue
		}
		pc := cfg.Providers[id]

		adapter, err := newAdapter(ctx, id, key, pc, logger)
		if err != nil {
			return fmt.Errorf("provider %s: %w", id, err)
		}
		registry.Register(adapter)
		registered++

		logger.WithFields(logrus.Fields{
			"provider": id,
			"base_url": pc.BaseURL,
			"timeout":  pc.Timeout.String(),
		}).Debug("Adapter configured")
	}

	if registered == 0 {
		// Not fatal: the detector re-reads credentials and /health reports degraded
		logger.Warn("No provider credentials found; every request will fail until one is configured")
	}

	logger.WithField("count", registered).Info("Provider registration completed")
	return nil
}

func newAdapter(ctx context.Context, id types.ProviderID, key string, pc config.ProviderConfig, logger *logrus.Logger) (providers.Adapter, error) {
	switch {
	case openai.Compatible(id):
		p, err := openai.NewOpenAIProvider(&openai.OpenAIConfig{
			Provider: id,
			APIKey:   key,
			BaseURL:  pc.BaseURL,
			OrgID:    pc.OrgID,
			Timeout:  pc.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case id == types.ProviderAnthropic:
		return anthropic.NewAnthropicProvider(&anthropic.AnthropicConfig{
			APIKey:  key,
			BaseURL: pc.BaseURL,
			Timeout: pc.Timeout,
		}, logger), nil
	case id == types.ProviderGoogle:
		p, err := google.NewGoogleProvider(ctx, &google.GoogleConfig{
			APIKey:  key,
			BaseURL: pc.BaseURL,
			Timeout: pc.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case id == types.ProviderRunware:
		return runware.NewRunwareProvider(&runware.RunwareConfig{
			APIKey:  key,
			BaseURL: pc.BaseURL,
			Timeout: pc.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("no adapter for provider %s", id)
	}
}
