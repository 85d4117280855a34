package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

const taxReturnColumns = `id, client_id, preparer_id, tax_year, status, total_income, total_deductions, taxable_income,
	tax_liability, total_credits, federal_tax_withheld, amount_due, refund_amount, ai_processing_status,
	ai_processed_at, created_at, updated_at`

type TaxReturnRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaxReturnRepository(db *sql.DB) *TaxReturnRepository {
	return &TaxReturnRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *TaxReturnRepository) GetByID(ctx context.Context, id string) (*domain.TaxReturn, error) {
	return getTaxReturn(ctx, r.db, id, false)
}

func (r *TaxReturnRepository) GetAIStatus(ctx context.Context, id string) (domain.AIStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT ai_processing_status FROM tax_returns WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrTaxReturnNotFound, "get ai status", fmt.Errorf("id=%s", id))
		}
		return "", fmt.Errorf("read ai status: %w", err)
	}
	return domain.AIStatus(status), nil
}

func (r *TaxReturnRepository) ClaimProcessing(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	now := r.now()
	result, err := r.db.ExecContext(ctx, `
UPDATE tax_returns
SET ai_processing_status = 'processing', updated_at = $3
WHERE id = $1
  AND (ai_processing_status NOT IN ('cancelled', 'processing')
       OR (ai_processing_status = 'processing' AND updated_at < $2))
`, id, now.Add(-staleAfter), now)
	if err != nil {
		return false, fmt.Errorf("claim processing: %w", err)
	}
	return r.changedOrExists(ctx, result, id, "claim processing")
}

func (r *TaxReturnRepository) MarkPending(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE tax_returns
SET ai_processing_status = 'pending', ai_processed_at = NULL, updated_at = $2
WHERE id = $1 AND ai_processing_status NOT IN ('pending', 'processing')
`, id, r.now())
	if err != nil {
		return false, fmt.Errorf("mark pending: %w", err)
	}
	return r.changedOrExists(ctx, result, id, "mark pending")
}

func (r *TaxReturnRepository) SetAIStatus(ctx context.Context, id string, status domain.AIStatus, processedAt *time.Time) error {
	return setAIStatus(ctx, r.db, id, status, processedAt, r.now())
}

func (r *TaxReturnRepository) WithinTx(ctx context.Context, fn func(context.Context, ports.TaxReturnTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &taxReturnTx{q: tx, now: r.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// changedOrExists turns a conditional update into (applied, error): zero rows
// means either the guard rejected it or the row does not exist.
func (r *TaxReturnRepository) changedOrExists(ctx context.Context, result sql.Result, id, op string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows > 0 {
		return true, nil
	}
	if err := ensureTaxReturnExists(ctx, r.db, id, op); err != nil {
		return false, err
	}
	return false, nil
}

func ensureTaxReturnExists(ctx context.Context, q dbtx, id, op string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tax_returns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s check existence: %w", op, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrTaxReturnNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

// setAIStatus never overwrites a cancelled run except with cancelled itself.
func setAIStatus(ctx context.Context, q dbtx, id string, status domain.AIStatus, processedAt *time.Time, now time.Time) error {
	result, err := q.ExecContext(ctx, `
UPDATE tax_returns
SET ai_processing_status = $2, ai_processed_at = COALESCE($3, ai_processed_at), updated_at = $4
WHERE id = $1 AND (ai_processing_status <> 'cancelled' OR $2 = 'cancelled')
`, id, string(status), nullableTime(processedAt), now)
	if err != nil {
		return fmt.Errorf("update ai status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ai status rows affected: %w", err)
	}
	if rows == 0 {
		return ensureTaxReturnExists(ctx, q, id, "update ai status")
	}
	return nil
}

func getTaxReturn(ctx context.Context, q dbtx, id string, forUpdate bool) (*domain.TaxReturn, error) {
	query := `SELECT ` + taxReturnColumns + ` FROM tax_returns WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tr, err := scanTaxReturn(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTaxReturnNotFound, "get tax return", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan tax return: %w", err)
	}
	return tr, nil
}

func scanTaxReturn(row rowScanner) (*domain.TaxReturn, error) {
	var tr domain.TaxReturn
	var preparerID sql.NullString
	var status, aiStatus string
	var processedAt sql.NullTime

	err := row.Scan(
		&tr.ID, &tr.ClientID, &preparerID, &tr.TaxYear, &status,
		&tr.TotalIncome, &tr.TotalDeductions, &tr.TaxableIncome, &tr.TaxLiability, &tr.TotalCredits,
		&tr.FederalWithheld, &tr.AmountDue, &tr.RefundAmount, &aiStatus, &processedAt,
		&tr.CreatedAt, &tr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tr.PreparerID = stringPtr(preparerID)
	tr.Status = domain.ReturnStatus(status)
	tr.AIStatus = domain.AIStatus(aiStatus)
	tr.AIProcessedAt = timePtr(processedAt)
	return &tr, nil
}

// taxReturnTx runs the final apply and the cancel command inside one transaction.
type taxReturnTx struct {
	q   dbtx
	now func() time.Time
}

func (t *taxReturnTx) LockTaxReturn(ctx context.Context, id string) (*domain.TaxReturn, error) {
	return getTaxReturn(ctx, t.q, id, true)
}

func (t *taxReturnTx) ListIncomeSources(ctx context.Context, taxReturnID string) ([]domain.IncomeSource, error) {
	rows, err := t.q.QueryContext(ctx, `
SELECT id, tax_return_id, type, source_name, employer_name, payer_ein, amount, federal_tax_withheld,
	state_tax_withheld, state, description, ai_extracted, ai_confidence, created_at, updated_at
FROM income_sources
WHERE tax_return_id = $1
ORDER BY created_at, id
`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("list income sources: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IncomeSource, 0)
	for rows.Next() {
		var src domain.IncomeSource
		var typ string
		var employer, ein, state sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&src.ID, &src.TaxReturnID, &typ, &src.SourceName, &employer, &ein, &src.Amount, &src.FederalWithheld,
			&src.StateWithheld, &state, &src.Description, &src.AIExtracted, &confidence, &src.CreatedAt, &src.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan income source: %w", err)
		}
		src.Type = domain.IncomeType(typ)
		src.EmployerName = stringPtr(employer)
		src.PayerEIN = stringPtr(ein)
		src.State = stringPtr(state)
		src.AIConfidence = floatPtr(confidence)
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate income sources: %w", err)
	}
	return out, nil
}

func (t *taxReturnTx) CreateIncomeSource(ctx context.Context, src *domain.IncomeSource) error {
	_, err := t.q.ExecContext(ctx, `
INSERT INTO income_sources (
	id, tax_return_id, type, source_name, employer_name, payer_ein, amount, federal_tax_withheld,
	state_tax_withheld, state, description, ai_extracted, ai_confidence, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		src.ID, src.TaxReturnID, string(src.Type), src.SourceName, nullableString(src.EmployerName), nullableString(src.PayerEIN),
		src.Amount, src.FederalWithheld, src.StateWithheld, nullableString(src.State), src.Description,
		src.AIExtracted, nullableFloat(src.AIConfidence), src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert income source: %w", err)
	}
	return nil
}

func (t *taxReturnTx) UpdateIncomeSource(ctx context.Context, src *domain.IncomeSource) error {
	result, err := t.q.ExecContext(ctx, `
UPDATE income_sources
SET amount = $2, employer_name = $3, payer_ein = $4, federal_tax_withheld = $5, state_tax_withheld = $6,
	state = $7, ai_extracted = $8, ai_confidence = $9, updated_at = $10
WHERE id = $1
`,
		src.ID, src.Amount, nullableString(src.EmployerName), nullableString(src.PayerEIN), src.FederalWithheld,
		src.StateWithheld, nullableString(src.State), src.AIExtracted, nullableFloat(src.AIConfidence), src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update income source: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update income source rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrConflict, "update income source", fmt.Errorf("income source %s disappeared", src.ID))
	}
	return nil
}

func (t *taxReturnTx) ListDeductions(ctx context.Context, taxReturnID string) ([]domain.Deduction, error) {
	rows, err := t.q.QueryContext(ctx, `
SELECT id, tax_return_id, category, amount, description, created_at
FROM deductions
WHERE tax_return_id = $1
ORDER BY created_at, id
`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("list deductions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Deduction, 0)
	for rows.Next() {
		var d domain.Deduction
		var category string
		if err := rows.Scan(&d.ID, &d.TaxReturnID, &category, &d.Amount, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deduction: %w", err)
		}
		d.Category = domain.DeductionCategory(category)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deductions: %w", err)
	}
	return out, nil
}

func (t *taxReturnTx) CreateDeduction(ctx context.Context, d *domain.Deduction) error {
	_, err := t.q.ExecContext(ctx, `
INSERT INTO deductions (id, tax_return_id, category, amount, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, d.ID, d.TaxReturnID, string(d.Category), d.Amount, d.Description, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert deduction: %w", err)
	}
	return nil
}

func (t *taxReturnTx) SaveAggregates(ctx context.Context, taxReturnID string, agg domain.Aggregates) error {
	result, err := t.q.ExecContext(ctx, `
UPDATE tax_returns
SET total_income = $2, total_deductions = $3, taxable_income = $4, tax_liability = $5,
	federal_tax_withheld = $6, amount_due = $7, refund_amount = $8, updated_at = $9
WHERE id = $1
`,
		taxReturnID, agg.TotalIncome, agg.TotalDeductions, agg.TaxableIncome, agg.TaxLiability,
		agg.FederalWithheld, agg.AmountDue, agg.RefundAmount, t.now(),
	)
	if err != nil {
		return fmt.Errorf("update aggregates: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update aggregates rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrTaxReturnNotFound, "update aggregates", fmt.Errorf("id=%s", taxReturnID))
	}
	return nil
}

func (t *taxReturnTx) SetAIStatus(ctx context.Context, id string, status domain.AIStatus, processedAt *time.Time) error {
	return setAIStatus(ctx, t.q, id, status, processedAt, t.now())
}

func (t *taxReturnTx) FailProcessingExtractions(ctx context.Context, taxReturnID, message string) (int64, error) {
	result, err := t.q.ExecContext(ctx, `
UPDATE document_extractions
SET status = 'failed', error_message = $2, processed_at = $3, updated_at = $3
WHERE tax_return_id = $1 AND status = 'processing'
`, taxReturnID, message, t.now())
	if err != nil {
		return 0, fmt.Errorf("fail processing extractions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail processing extractions rows affected: %w", err)
	}
	return rows, nil
}
