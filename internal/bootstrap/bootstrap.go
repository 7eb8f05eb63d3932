package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/usecase"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/auth"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/content"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/httpcall"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Settings *usecase.PollSettingsStore
	Contents ports.ContentFactory
	Enricher ports.Enricher
	Curator  ports.Curator

	// Queue and Jobs are nil when async jobs are disabled.
	Queue ports.MessageQueue
	Jobs  *usecase.JobUseCase

	closeFn func()
}

// New wires the connector. Connector metrics are registered on registerer so
// they share the /metrics endpoint of the hosting process.
func New(ctx context.Context, cfg config.Config, service string, registerer prometheus.Registerer) (*App, error) {
	for _, warning := range cfg.Warnings() {
		slog.Warn("config_incomplete", "detail", warning)
	}

	observer := metrics.NewConnectorMetrics(service, registerer)

	executor := resilience.NewExecutor(resilienceConfig(cfg)).WithRetryObserver(observer.ObserveRetry)
	caller := httpcall.New(time.Duration(cfg.HTTPTimeoutSeconds)*time.Second, executor, observer)
	tokens := auth.NewTokenManager(cfg.AuthEndpoint, map[domain.Service]domain.ClientCredentials{
		domain.ServiceEnrichment: {ClientID: cfg.EnrichmentClientID, ClientSecret: cfg.EnrichmentClientSecret},
		domain.ServiceCuration:   {ClientID: cfg.CurationClientID, ClientSecret: cfg.CurationClientSecret},
	}, caller, observer)

	settings := usecase.NewPollSettingsStore(domain.PollSettings{
		MaxTries: cfg.PollMaxTries,
		Interval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	})

	spoolStorage, err := localfs.New(cfg.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("init spool storage: %w", err)
	}
	contents := content.NewFactory(content.NewDetector(), content.NewSpool(spoolStorage))

	enricher := usecase.NewEnrichmentUseCase(cfg.EnrichmentEndpoint, caller, tokens, settings, observer)
	curator := usecase.NewCurationUseCase(cfg.CurationEndpoint, caller, tokens, settings, observer)

	app := &App{
		Config:   cfg,
		Settings: settings,
		Contents: contents,
		Enricher: enricher,
		Curator:  curator,
	}
	if !cfg.JobsEnabled {
		slog.Info("async_jobs_disabled")
		return app, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	app.Queue = queue
	app.Jobs = usecase.NewJobUseCase(repo, storage, queue, contents, enricher)
	app.closeFn = func() {
		queue.Close()
		_ = db.Close()
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.HTTPRetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.HTTPRetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.HTTPRetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.HTTPBreakerEnabled
	if cfg.HTTPBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.HTTPBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.HTTPBreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.HTTPBreakerOpenTimeoutSec) * time.Second
	return out
}
