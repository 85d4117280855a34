package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

type AIStatusUseCase struct {
	returns ports.TaxReturnRepository
}

func NewAIStatusUseCase(returns ports.TaxReturnRepository) *AIStatusUseCase {
	return &AIStatusUseCase{returns: returns}
}

func (uc *AIStatusUseCase) GetAIStatus(ctx context.Context, actor domain.Actor, taxReturnID string) (domain.AIStatusView, error) {
	taxReturn, err := loadVisible(ctx, uc.returns, actor, taxReturnID, "get ai status")
	if err != nil {
		return domain.AIStatusView{}, err
	}
	return statusView(taxReturn), nil
}

// loadVisible fetches a return and checks read access for actor.
func loadVisible(ctx context.Context, returns ports.TaxReturnRepository, actor domain.Actor, taxReturnID, op string) (*domain.TaxReturn, error) {
	taxReturn, err := returns.GetByID(ctx, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("fetch tax return: %w", err)
	}
	if !actor.CanView(taxReturn) {
		return nil, domain.WrapError(domain.ErrForbidden, op, errors.New("tax return belongs to another client"))
	}
	return taxReturn, nil
}

// statusView exposes settlement figures only once a run has completed.
func statusView(r *domain.TaxReturn) domain.AIStatusView {
	view := domain.AIStatusView{
		TaxReturnID: r.ID,
		Status:      r.AIStatus,
		ProcessedAt: r.AIProcessedAt,
	}
	if r.AIStatus == domain.AIStatusCompleted {
		view.TaxableIncome = r.TaxableIncome.StringFixed(2)
		view.TaxLiability = r.TaxLiability.StringFixed(2)
		view.AmountDue = r.AmountDue.StringFixed(2)
		view.RefundAmount = r.RefundAmount.StringFixed(2)
	}
	return view
}
