package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taxbridge/taxprep/internal/bootstrap"
	"github.com/taxbridge/taxprep/internal/config"
	"github.com/taxbridge/taxprep/internal/observability/logging"
	"github.com/taxbridge/taxprep/internal/observability/metrics"
	"github.com/taxbridge/taxprep/internal/worker"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		slog.Error("worker_exit", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so all cleanup has happened by the time
// it returns.
func run(ctx context.Context, cfg config.Config) error {
	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithProcessObserver(workerMetrics))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runner := worker.NewRunner(app.ProcessUC, worker.Config{
		AttemptTimeout: time.Duration(cfg.JobAttemptTimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.JobMaxAttempts,
	}, worker.WithObserver(workerMetrics))

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	if err := app.Queue.SubscribeTaxReturnSubmitted(ctx, runner.Handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}
