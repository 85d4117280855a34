package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

const aiExtractedSourceName = "AI Extracted Income"

type MergeSummary struct {
	IncomesUpdated  int
	IncomesCreated  int
	DeductionsAdded int
}

// IncomeMerger folds extracted items into a return's existing rows. Each
// existing income row is overwritten at most once per pass; later items of the
// same type become new rows. Deductions are always appended.
type IncomeMerger struct {
	newID func() string
	now   func() time.Time
}

func NewIncomeMerger() *IncomeMerger {
	return &IncomeMerger{
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *IncomeMerger) Merge(
	ctx context.Context,
	tx ports.TaxReturnTx,
	taxReturnID string,
	incomes []domain.ExtractedIncome,
	deductions []domain.ExtractedDeduction,
) (MergeSummary, error) {
	var summary MergeSummary

	existing, err := tx.ListIncomeSources(ctx, taxReturnID)
	if err != nil {
		return summary, fmt.Errorf("list income sources: %w", err)
	}
	available := make(map[domain.IncomeType]*domain.IncomeSource, len(existing))
	for i := range existing {
		src := &existing[i]
		if _, seen := available[src.Type]; !seen {
			available[src.Type] = src
		}
	}

	now := m.now()
	for _, item := range incomes {
		if src, ok := available[item.Type]; ok {
			overwriteIncome(src, item, now)
			if err := tx.UpdateIncomeSource(ctx, src); err != nil {
				return summary, fmt.Errorf("update income source %s: %w", src.ID, err)
			}
			delete(available, item.Type)
			summary.IncomesUpdated++
			continue
		}
		src := m.newIncome(taxReturnID, item, now)
		if err := tx.CreateIncomeSource(ctx, src); err != nil {
			return summary, fmt.Errorf("create income source: %w", err)
		}
		summary.IncomesCreated++
	}

	for _, item := range deductions {
		category := item.Category
		if category == "" {
			category = domain.DeductionOther
		}
		d := &domain.Deduction{
			ID:          m.newID(),
			TaxReturnID: taxReturnID,
			Category:    category,
			Amount:      item.Amount,
			Description: item.Description,
			CreatedAt:   now,
		}
		if err := tx.CreateDeduction(ctx, d); err != nil {
			return summary, fmt.Errorf("create deduction: %w", err)
		}
		summary.DeductionsAdded++
	}
	return summary, nil
}

func overwriteIncome(src *domain.IncomeSource, item domain.ExtractedIncome, now time.Time) {
	src.Amount = item.Amount
	if item.EmployerName != nil {
		src.EmployerName = item.EmployerName
	}
	if item.EmployerEIN != nil {
		src.PayerEIN = item.EmployerEIN
	}
	src.FederalWithheld = item.FederalWithheld
	src.StateWithheld = item.StateWithheld
	if item.State != nil {
		src.State = item.State
	}
	src.AIExtracted = true
	confidence := item.Confidence
	src.AIConfidence = &confidence
	src.UpdatedAt = now
}

func (m *IncomeMerger) newIncome(taxReturnID string, item domain.ExtractedIncome, now time.Time) *domain.IncomeSource {
	name := item.SourceName
	if name == "" {
		name = aiExtractedSourceName
	}
	confidence := item.Confidence
	return &domain.IncomeSource{
		ID:              m.newID(),
		TaxReturnID:     taxReturnID,
		Type:            item.Type,
		SourceName:      name,
		EmployerName:    item.EmployerName,
		PayerEIN:        item.EmployerEIN,
		Amount:          item.Amount,
		FederalWithheld: item.FederalWithheld,
		StateWithheld:   item.StateWithheld,
		State:           item.State,
		AIExtracted:     true,
		AIConfidence:    &confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
