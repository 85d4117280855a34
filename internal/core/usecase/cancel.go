package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

type CancelProcessingUseCase struct {
	returns ports.TaxReturnRepository
}

func NewCancelProcessingUseCase(returns ports.TaxReturnRepository) *CancelProcessingUseCase {
	return &CancelProcessingUseCase{returns: returns}
}

// Cancel stops a pending or running batch. An in-flight extraction finishes;
// the orchestrator observes the new status before its next document.
func (uc *CancelProcessingUseCase) Cancel(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error) {
	const op = "cancel ai processing"

	taxReturn, err := uc.returns.GetByID(ctx, taxReturnID)
	if err != nil {
		return domain.AIStatusView{}, fmt.Errorf("fetch tax return: %w", err)
	}
	if !actor.CanCancel(taxReturn) {
		return domain.AIStatusView{}, domain.WrapError(domain.ErrForbidden, op, errors.New("only the assigned preparer or an admin may cancel"))
	}

	var failedRows int64
	err = uc.returns.WithinTx(ctx, func(ctx context.Context, tx ports.TaxReturnTx) error {
		locked, err := tx.LockTaxReturn(ctx, taxReturnID)
		if err != nil {
			return fmt.Errorf("lock tax return: %w", err)
		}
		if !locked.AIStatus.Cancellable() {
			return domain.WrapError(domain.ErrConflict, op, fmt.Errorf("ai processing is %s", locked.AIStatus))
		}
		if err := tx.SetAIStatus(ctx, taxReturnID, domain.AIStatusCancelled, locked.AIProcessedAt); err != nil {
			return fmt.Errorf("set ai status=cancelled: %w", err)
		}
		failedRows, err = tx.FailProcessingExtractions(ctx, taxReturnID, domain.CancelledByAccountant)
		if err != nil {
			return fmt.Errorf("fail in-flight extractions: %w", err)
		}
		*taxReturn = *locked
		return nil
	})
	if err != nil {
		return domain.AIStatusView{}, err
	}

	slog.Info("ai_processing_cancelled",
		"tax_return_id", taxReturnID,
		"actor_id", actor.UserID,
		"in_flight_rows", failedRows,
	)
	taxReturn.AIStatus = domain.AIStatusCancelled
	return statusView(taxReturn), nil
}
