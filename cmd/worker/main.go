package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/bootstrap"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/logging"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	if !cfg.JobsEnabled {
		slog.Error("worker_requires_jobs", "detail", "JOBS_ENABLED is false")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, workerMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	jobTimeout := time.Duration(cfg.WorkerJobTimeoutSeconds) * time.Second
	if jobTimeout <= 0 {
		jobTimeout = 15 * time.Minute
	}
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeEnrichmentRequested(ctx, func(handlerCtx context.Context, jobID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartJob()
		err := app.Jobs.ProcessByID(processCtx, jobID)
		workerMetrics.FinishJob(serviceName, time.Since(started), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err.Error())
		os.Exit(1)
	}
}
