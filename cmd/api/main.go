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

	httpadapter "github.com/taxbridge/taxprep/internal/adapters/http"
	"github.com/taxbridge/taxprep/internal/bootstrap"
	"github.com/taxbridge/taxprep/internal/config"
	"github.com/taxbridge/taxprep/internal/infrastructure/auth"
	"github.com/taxbridge/taxprep/internal/observability/logging"
	"github.com/taxbridge/taxprep/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		slog.Error("api_exit", "error", err)
		os.Exit(1)
	}
}

// run returns once the server has shut down and the app is closed.
func run(ctx context.Context, cfg config.Config) error {
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Trigger: app.TriggerUC,
		Status:  app.StatusUC,
		Cancel:  app.CancelUC,
		Audit:   app.AuditUC,
	}, verifier, httpadapter.WithMetrics(metrics.NewHTTPServerMetrics("api")))
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
	return nil
}
