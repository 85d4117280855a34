package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/taxbridge/taxprep/internal/config"
	"github.com/taxbridge/taxprep/internal/core/extraction"
	"github.com/taxbridge/taxprep/internal/core/ports"
	"github.com/taxbridge/taxprep/internal/core/taxcalc"
	"github.com/taxbridge/taxprep/internal/core/usecase"
	"github.com/taxbridge/taxprep/internal/infrastructure/export/xlsx"
	"github.com/taxbridge/taxprep/internal/infrastructure/lease"
	"github.com/taxbridge/taxprep/internal/infrastructure/llm/gemini"
	"github.com/taxbridge/taxprep/internal/infrastructure/llm/ollama"
	"github.com/taxbridge/taxprep/internal/infrastructure/queue/nats"
	"github.com/taxbridge/taxprep/internal/infrastructure/repository/postgres"
	"github.com/taxbridge/taxprep/internal/infrastructure/resilience"
	"github.com/taxbridge/taxprep/internal/infrastructure/storage/localfs"
	"github.com/taxbridge/taxprep/internal/infrastructure/storage/s3store"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	ProcessUC ports.TaxReturnProcessor
	TriggerUC ports.ProcessingTrigger
	StatusUC  ports.AIStatusReader
	CancelUC  ports.ProcessingCanceller
	AuditUC   ports.ExtractionAuditor

	closeFns []func()
}

type Option func(*options)

type options struct {
	processObserver ports.ProcessObserver
}

// WithProcessObserver forwards per-document outcomes, typically to worker metrics.
func WithProcessObserver(observer ports.ProcessObserver) Option {
	return func(o *options) {
		o.processObserver = observer
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	returns := postgres.NewTaxReturnRepository(db)
	ledger := postgres.NewExtractionRepository(db)
	documents := postgres.NewDocumentRepository(db)
	prefs := postgres.NewPreferenceRepository(db)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFns = append(app.closeFns, queue.Close)
	app.Queue = queue

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	normalizer, err := extraction.NewNormalizer()
	if err != nil {
		return nil, fmt.Errorf("init normalizer: %w", err)
	}
	schedule, err := loadSchedule(cfg.TaxSchedulePath)
	if err != nil {
		return nil, err
	}
	runLease, err := newRunLease(ctx, cfg, app)
	if err != nil {
		return nil, fmt.Errorf("init run lease: %w", err)
	}

	processOpts := []usecase.ProcessOption{usecase.WithRunLease(runLease)}
	if o.processObserver != nil {
		processOpts = append(processOpts, usecase.WithProcessObserver(o.processObserver))
	}
	app.ProcessUC = usecase.NewProcessTaxReturnUseCase(
		returns,
		documents,
		storage,
		ledger,
		extractor,
		normalizer,
		taxcalc.NewCalculator(schedule),
		processLimits(cfg),
		processOpts...,
	)
	app.TriggerUC = usecase.NewTriggerProcessingUseCase(returns, documents, prefs, queue)
	app.StatusUC = usecase.NewAIStatusUseCase(returns)
	app.CancelUC = usecase.NewCancelProcessingUseCase(returns)
	app.AuditUC = usecase.NewExtractionAuditUseCase(returns, ledger, xlsx.NewExporter())

	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func processLimits(cfg config.Config) usecase.ProcessLimits {
	return usecase.ProcessLimits{
		MaxFileSize:         cfg.AIMaxFileSizeBytes,
		MaxDocuments:        cfg.AIMaxDocuments,
		SupportedMIMETypes:  cfg.AISupportedMIMETypes,
		SupportedExtensions: cfg.AISupportedExtensions,
		StaleClaimAfter:     time.Duration(cfg.AIStaleClaimSeconds) * time.Second,
		LeaseTTL:            time.Duration(cfg.AILeaseTTLSeconds) * time.Second,
	}
}

func newExtractor(ctx context.Context, cfg config.Config) (ports.DocumentExtractor, error) {
	executor := resilience.NewExecutor(resilience.ExtractorConfig(cfg.ExtractorBreakerEnabled))
	pacer := resilience.NewPacer(cfg.ExtractorRequestsPerMinute)

	switch cfg.ExtractorProvider {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		}, gemini.WithExecutor(executor), gemini.WithPacer(pacer))
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaVisionModel,
			ollama.WithExecutor(executor),
			ollama.WithPacer(pacer),
		), nil
	default:
		return nil, fmt.Errorf("unknown extractor provider %q", cfg.ExtractorProvider)
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "localfs":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newRunLease uses Redis when configured so runs are exclusive across worker
// processes; otherwise exclusion is per process.
func newRunLease(ctx context.Context, cfg config.Config, app *App) (ports.RunLease, error) {
	if cfg.RedisAddr == "" {
		return lease.NewMemoryLease(), nil
	}
	client, err := lease.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	app.closeFns = append(app.closeFns, func() { _ = client.Close() })
	return lease.NewRedisLease(client, ""), nil
}

func loadSchedule(path string) (taxcalc.Schedule, error) {
	if path == "" {
		return taxcalc.DefaultSchedule(), nil
	}
	schedule, err := taxcalc.LoadScheduleFile(path)
	if err != nil {
		return taxcalc.Schedule{}, fmt.Errorf("load tax schedule: %w", err)
	}
	return schedule, nil
}
