package ports

import (
	"context"
	"io"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

// TaxReturnProcessor is the inbound contract for one asynchronous extraction run.
type TaxReturnProcessor interface {
	ProcessByID(ctx context.Context, taxReturnID string) error
}

// ProcessingTrigger starts a run for a tax return with attached documents.
type ProcessingTrigger interface {
	Trigger(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error)
}

// AIStatusReader is the polled read model for run state.
type AIStatusReader interface {
	GetAIStatus(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error)
}

// ProcessingCanceller is the out-of-band cancel command.
type ProcessingCanceller interface {
	Cancel(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error)
}

// ExtractionAuditor exposes the per-document extraction trail.
type ExtractionAuditor interface {
	ListExtractions(ctx context.Context, actor domain.Actor, taxReturnID string) ([]domain.DocumentExtraction, error)
	ExportExtractions(ctx context.Context, actor domain.Actor, taxReturnID string, w io.Writer) error
}
