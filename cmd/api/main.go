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

	httpadapter "github.com/kirillkom/knowledge-enrichment-connector/internal/adapters/http"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/bootstrap"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/logging"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, httpMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	var jobs httpadapter.JobService
	if app.Jobs != nil {
		jobs = app.Jobs
	}
	router := httpadapter.NewRouter(cfg, app.Enricher, app.Curator, app.Settings, app.Contents, jobs).
		WithMetrics(httpMetrics).
		Handler()

	// Orchestrations poll the remote services, so writes may take as long as
	// the full poll budget.
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err.Error())
	}
}
