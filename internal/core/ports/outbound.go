package ports

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

// TaxReturnRepository persists and reads tax return state.
type TaxReturnRepository interface {
	GetByID(ctx context.Context, id string) (*domain.TaxReturn, error)
	// GetAIStatus always hits storage; callers rely on it to observe cancellation.
	GetAIStatus(ctx context.Context, id string) (domain.AIStatus, error)
	// ClaimProcessing moves the run to processing unless it was cancelled or
	// another run claimed it less than staleAfter ago.
	ClaimProcessing(ctx context.Context, id string, staleAfter time.Duration) (bool, error)
	// MarkPending queues a run; it reports false when a run is already in flight.
	MarkPending(ctx context.Context, id string) (bool, error)
	SetAIStatus(ctx context.Context, id string, status domain.AIStatus, processedAt *time.Time) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TaxReturnTx) error) error
}

// TaxReturnTx is the set of writes that must commit together.
type TaxReturnTx interface {
	LockTaxReturn(ctx context.Context, id string) (*domain.TaxReturn, error)
	ListIncomeSources(ctx context.Context, taxReturnID string) ([]domain.IncomeSource, error)
	CreateIncomeSource(ctx context.Context, src *domain.IncomeSource) error
	UpdateIncomeSource(ctx context.Context, src *domain.IncomeSource) error
	ListDeductions(ctx context.Context, taxReturnID string) ([]domain.Deduction, error)
	CreateDeduction(ctx context.Context, d *domain.Deduction) error
	SaveAggregates(ctx context.Context, taxReturnID string, agg domain.Aggregates) error
	SetAIStatus(ctx context.Context, id string, status domain.AIStatus, processedAt *time.Time) error
	FailProcessingExtractions(ctx context.Context, taxReturnID, message string) (int64, error)
}

// ExtractionLedger records one row per document attempt. Rows are never deleted.
// Complete and Fail only move rows that are still processing; they report
// false when the row was already settled, for example by a cancel.
type ExtractionLedger interface {
	Create(ctx context.Context, row *domain.DocumentExtraction) error
	Complete(ctx context.Context, row *domain.DocumentExtraction) (bool, error)
	Fail(ctx context.Context, id, message string, processedAt time.Time) (bool, error)
	ListByTaxReturn(ctx context.Context, taxReturnID string) ([]domain.DocumentExtraction, error)
}

// DocumentCatalog is the read-only metadata view of the media store.
type DocumentCatalog interface {
	ListByTaxReturn(ctx context.Context, taxReturnID string) ([]domain.Document, error)
}

// ObjectStorage reads stored document bytes.
type ObjectStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentExtractor sends document bytes to the AI provider and returns its raw text.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ResponseNormalizer turns raw model text into a structured result. It never fails.
type ResponseNormalizer interface {
	Normalize(raw string) domain.ExtractionResult
}

// TaxCalculator recomputes derived totals from the current rows.
type TaxCalculator interface {
	Recalculate(incomes []domain.IncomeSource, deductions []domain.Deduction, credits decimal.Decimal) domain.Aggregates
}

// RunLease guards a tax return against concurrent runs across workers.
type RunLease interface {
	Acquire(ctx context.Context, taxReturnID string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// MessageQueue publishes/consumes processing requests.
type MessageQueue interface {
	PublishTaxReturnSubmitted(ctx context.Context, taxReturnID string) error
	SubscribeTaxReturnSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// AIPreferences reads the per-client opt-in for AI processing.
type AIPreferences interface {
	AIEnabled(ctx context.Context, userID string) (bool, error)
}

// ExtractionExporter renders the extraction trail into a downloadable document.
type ExtractionExporter interface {
	WriteExtractions(w io.Writer, taxReturn *domain.TaxReturn, rows []domain.DocumentExtraction) error
}

// ProcessObserver receives per-document outcomes of a run.
type ProcessObserver interface {
	ObserveDocument(outcome string)
}
