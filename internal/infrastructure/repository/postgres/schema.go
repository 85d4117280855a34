package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaLockKey int64 = 2026021801

// EnsureSchema creates the pipeline's tables. Users, returns and documents are
// owned by the wider application; they are created here only so a fresh
// database can run the service on its own.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'client',
	ai_enabled BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS tax_returns (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	preparer_id TEXT,
	tax_year INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	total_income NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_deductions NUMERIC(12,2) NOT NULL DEFAULT 0,
	taxable_income NUMERIC(12,2) NOT NULL DEFAULT 0,
	tax_liability NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_credits NUMERIC(12,2) NOT NULL DEFAULT 0,
	federal_tax_withheld NUMERIC(12,2) NOT NULL DEFAULT 0,
	amount_due NUMERIC(12,2) NOT NULL DEFAULT 0,
	refund_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	ai_processing_status TEXT NOT NULL DEFAULT 'none',
	ai_processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS income_sources (
	id TEXT PRIMARY KEY,
	tax_return_id TEXT NOT NULL REFERENCES tax_returns(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	source_name TEXT NOT NULL,
	employer_name TEXT,
	payer_ein TEXT,
	amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	federal_tax_withheld NUMERIC(12,2) NOT NULL DEFAULT 0,
	state_tax_withheld NUMERIC(12,2) NOT NULL DEFAULT 0,
	state TEXT,
	description TEXT NOT NULL DEFAULT '',
	ai_extracted BOOLEAN NOT NULL DEFAULT FALSE,
	ai_confidence NUMERIC(5,2),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS deductions (
	id TEXT PRIMARY KEY,
	tax_return_id TEXT NOT NULL REFERENCES tax_returns(id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tax_return_documents (
	id TEXT PRIMARY KEY,
	tax_return_id TEXT NOT NULL REFERENCES tax_returns(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_key TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS document_extractions (
	id TEXT PRIMARY KEY,
	tax_return_id TEXT NOT NULL REFERENCES tax_returns(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	document_type TEXT,
	extracted_data JSONB,
	confidence_score NUMERIC(5,2),
	error_message TEXT,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_income_sources_return ON income_sources(tax_return_id, created_at);
CREATE INDEX IF NOT EXISTS idx_deductions_return ON deductions(tax_return_id);
CREATE INDEX IF NOT EXISTS idx_tax_return_documents_return ON tax_return_documents(tax_return_id, position);
CREATE INDEX IF NOT EXISTS idx_document_extractions_return_status ON document_extractions(tax_return_id, status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
