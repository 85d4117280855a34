package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

type TriggerProcessingUseCase struct {
	returns   ports.TaxReturnRepository
	documents ports.DocumentCatalog
	prefs     ports.AIPreferences
	queue     ports.MessageQueue
}

func NewTriggerProcessingUseCase(
	returns ports.TaxReturnRepository,
	documents ports.DocumentCatalog,
	prefs ports.AIPreferences,
	queue ports.MessageQueue,
) *TriggerProcessingUseCase {
	return &TriggerProcessingUseCase{
		returns:   returns,
		documents: documents,
		prefs:     prefs,
		queue:     queue,
	}
}

// Trigger queues a run. It is fire-and-forget: progress is observed by polling
// the status endpoint.
func (uc *TriggerProcessingUseCase) Trigger(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error) {
	const op = "trigger ai processing"

	taxReturn, err := uc.returns.GetByID(ctx, taxReturnID)
	if err != nil {
		return domain.AIStatusView{}, fmt.Errorf("fetch tax return: %w", err)
	}
	if !actor.CanTrigger(taxReturn) {
		return domain.AIStatusView{}, domain.WrapError(domain.ErrForbidden, op, errors.New("actor may not start processing for this return"))
	}

	docs, err := uc.documents.ListByTaxReturn(ctx, taxReturnID)
	if err != nil {
		return domain.AIStatusView{}, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return domain.AIStatusView{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("no documents attached"))
	}

	enabled, err := uc.prefs.AIEnabled(ctx, taxReturn.ClientID)
	if err != nil {
		return domain.AIStatusView{}, fmt.Errorf("read ai preference: %w", err)
	}
	if !enabled {
		return domain.AIStatusView{}, domain.WrapError(domain.ErrForbidden, op, errors.New("ai processing is disabled for this client"))
	}

	queued, err := uc.returns.MarkPending(ctx, taxReturnID)
	if err != nil {
		return domain.AIStatusView{}, fmt.Errorf("set ai status=pending: %w", err)
	}
	if !queued {
		return domain.AIStatusView{}, domain.WrapError(domain.ErrConflict, op, errors.New("processing already in progress"))
	}

	if err := uc.queue.PublishTaxReturnSubmitted(ctx, taxReturnID); err != nil {
		if markErr := uc.returns.SetAIStatus(context.WithoutCancel(ctx), taxReturnID, domain.AIStatusFailed, nil); markErr != nil {
			slog.Error("ai_trigger_rollback_failed", "tax_return_id", taxReturnID, "error", markErr.Error())
		}
		return domain.AIStatusView{}, domain.WrapError(domain.ErrTemporary, op, fmt.Errorf("publish processing request: %w", err))
	}

	slog.Info("ai_processing_queued", "tax_return_id", taxReturnID, "documents", len(docs), "actor_role", string(actor.Role))
	taxReturn.AIStatus = domain.AIStatusPending
	taxReturn.AIProcessedAt = nil
	return statusView(taxReturn), nil
}
