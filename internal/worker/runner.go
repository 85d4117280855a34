package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
	"github.com/taxbridge/taxprep/internal/infrastructure/resilience"
)

const (
	DefaultAttemptTimeout = 120 * time.Second
	DefaultMaxAttempts    = 2
	DefaultRetryBackoff   = 2 * time.Second
)

type Config struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

func (c Config) normalize() Config {
	out := c
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = DefaultAttemptTimeout
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = DefaultRetryBackoff
	}
	return out
}

// RunObserver receives run-level measurements.
type RunObserver interface {
	StartRun()
	FinishRun(duration time.Duration, err error)
	ObserveAttempt()
}

type noopObserver struct{}

func (noopObserver) StartRun() {}

func (noopObserver) FinishRun(time.Duration, error) {}

func (noopObserver) ObserveAttempt() {}

// Runner executes one queued tax return: each attempt gets its own deadline
// and only infrastructure failures are attempted again.
type Runner struct {
	processor ports.TaxReturnProcessor
	executor  *resilience.Executor
	observer  RunObserver
	cfg       Config
}

type Option func(*Runner)

func WithObserver(observer RunObserver) Option {
	return func(r *Runner) {
		if observer != nil {
			r.observer = observer
		}
	}
}

func NewRunner(processor ports.TaxReturnProcessor, cfg Config, opts ...Option) *Runner {
	cfg = cfg.normalize()
	r := &Runner{
		processor: processor,
		cfg:       cfg,
		observer:  noopObserver{},
		executor:  resilience.NewExecutor(resilience.JobConfig(cfg.MaxAttempts, cfg.RetryBackoff)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle matches the queue subscription callback.
func (r *Runner) Handle(ctx context.Context, taxReturnID string) error {
	start := time.Now()
	r.observer.StartRun()

	attempt := 0
	err := r.executor.Execute(ctx, "tax_return.process", func(ctx context.Context) error {
		attempt++
		r.observer.ObserveAttempt()
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
		return r.processor.ProcessByID(attemptCtx, taxReturnID)
	}, classifyRunError)

	duration := time.Since(start)
	r.observer.FinishRun(duration, err)
	if err != nil {
		slog.Error("tax_return_job_failed",
			"tax_return_id", taxReturnID,
			"attempts", attempt,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return err
	}
	slog.Info("tax_return_job_done",
		"tax_return_id", taxReturnID,
		"attempts", attempt,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// classifyRunError treats anything but a caller mistake as an infrastructure
// failure. An attempt deadline is retried; a cancelled parent context is
// caught by the executor before the next attempt starts.
func classifyRunError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrInvalidInput) ||
		domain.IsKind(err, domain.ErrForbidden) ||
		domain.IsKind(err, domain.ErrTaxReturnNotFound) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{Retryable: true}
}
