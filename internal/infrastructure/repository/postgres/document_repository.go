package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

// DocumentRepository reads attachment metadata. Uploads are handled elsewhere.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) ListByTaxReturn(ctx context.Context, taxReturnID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tax_return_id, filename, mime_type, size_bytes, storage_key, position, created_at
FROM tax_return_documents
WHERE tax_return_id = $1
ORDER BY position, created_at, id
`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(
			&doc.ID, &doc.TaxReturnID, &doc.Filename, &doc.MimeType, &doc.Size, &doc.StorageKey, &doc.Position, &doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
