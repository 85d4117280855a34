package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

type ExtractionAuditUseCase struct {
	returns  ports.TaxReturnRepository
	ledger   ports.ExtractionLedger
	exporter ports.ExtractionExporter
}

func NewExtractionAuditUseCase(
	returns ports.TaxReturnRepository,
	ledger ports.ExtractionLedger,
	exporter ports.ExtractionExporter,
) *ExtractionAuditUseCase {
	return &ExtractionAuditUseCase{
		returns:  returns,
		ledger:   ledger,
		exporter: exporter,
	}
}

func (uc *ExtractionAuditUseCase) ListExtractions(ctx context.Context, actor domain.Actor, taxReturnID string) ([]domain.DocumentExtraction, error) {
	if _, err := loadVisible(ctx, uc.returns, actor, taxReturnID, "list extractions"); err != nil {
		return nil, err
	}
	rows, err := uc.ledger.ListByTaxReturn(ctx, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	return rows, nil
}

func (uc *ExtractionAuditUseCase) ExportExtractions(ctx context.Context, actor domain.Actor, taxReturnID string, w io.Writer) error {
	taxReturn, err := loadVisible(ctx, uc.returns, actor, taxReturnID, "export extractions")
	if err != nil {
		return err
	}
	rows, err := uc.ledger.ListByTaxReturn(ctx, taxReturnID)
	if err != nil {
		return fmt.Errorf("list extractions: %w", err)
	}
	if err := uc.exporter.WriteExtractions(w, taxReturn, rows); err != nil {
		return fmt.Errorf("write extractions export: %w", err)
	}
	return nil
}
