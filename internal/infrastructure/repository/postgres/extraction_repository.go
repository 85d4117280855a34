package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func (r *ExtractionRepository) Create(ctx context.Context, row *domain.DocumentExtraction) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_extractions (
	id, tax_return_id, document_id, status, document_type, extracted_data, confidence_score,
	error_message, processed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		row.ID, row.TaxReturnID, row.DocumentID, string(row.Status), nullableText(row.DocumentType),
		nullableJSON(row.ExtractedData), nullableFloat(row.ConfidenceScore), nullableText(row.ErrorMessage),
		nullableTime(row.ProcessedAt), row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document extraction: %w", err)
	}
	return nil
}

func (r *ExtractionRepository) Complete(ctx context.Context, row *domain.DocumentExtraction) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE document_extractions
SET status = $2, document_type = $3, extracted_data = $4, confidence_score = $5, processed_at = $6, updated_at = $7
WHERE id = $1 AND status = 'processing'
`,
		row.ID, string(domain.ExtractionCompleted), nullableText(row.DocumentType), nullableJSON(row.ExtractedData),
		nullableFloat(row.ConfidenceScore), nullableTime(row.ProcessedAt), row.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("complete document extraction: %w", err)
	}
	return r.settled(ctx, result, "complete document extraction", row.ID)
}

func (r *ExtractionRepository) Fail(ctx context.Context, id, message string, processedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE document_extractions
SET status = $2, error_message = $3, processed_at = $4, updated_at = $4
WHERE id = $1 AND status = 'processing'
`, id, string(domain.ExtractionFailed), message, processedAt)
	if err != nil {
		return false, fmt.Errorf("fail document extraction: %w", err)
	}
	return r.settled(ctx, result, "fail document extraction", id)
}

// settled reports whether the guarded update moved the row. A row that
// exists but was not updated has already left the processing state.
func (r *ExtractionRepository) settled(ctx context.Context, result sql.Result, op, id string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM document_extractions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s lookup: %w", op, err)
	}
	if !exists {
		return false, domain.WrapError(domain.ErrExtractionMissing, op, fmt.Errorf("id=%s", id))
	}
	return false, nil
}

func (r *ExtractionRepository) ListByTaxReturn(ctx context.Context, taxReturnID string) ([]domain.DocumentExtraction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tax_return_id, document_id, status, document_type, extracted_data, confidence_score,
	error_message, processed_at, created_at, updated_at
FROM document_extractions
WHERE tax_return_id = $1
ORDER BY created_at, id
`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("list document extractions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentExtraction, 0)
	for rows.Next() {
		var row domain.DocumentExtraction
		var status string
		var docType, errMessage sql.NullString
		var payload []byte
		var confidence sql.NullFloat64
		var processedAt sql.NullTime
		if err := rows.Scan(
			&row.ID, &row.TaxReturnID, &row.DocumentID, &status, &docType, &payload, &confidence,
			&errMessage, &processedAt, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document extraction: %w", err)
		}
		row.Status = domain.ExtractionStatus(status)
		row.DocumentType = docType.String
		row.ErrorMessage = errMessage.String
		if len(payload) > 0 {
			row.ExtractedData = append([]byte(nil), payload...)
		}
		row.ConfidenceScore = floatPtr(confidence)
		row.ProcessedAt = timePtr(processedAt)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document extractions: %w", err)
	}
	return out, nil
}

func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
