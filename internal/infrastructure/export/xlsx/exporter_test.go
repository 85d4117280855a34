package xlsx

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

func TestWriteExtractionsProducesSummaryAndLedger(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confidence := 0.95
	taxReturn := &domain.TaxReturn{
		ID:              "tr-1",
		TaxYear:         2025,
		AIStatus:        domain.AIStatusCompleted,
		AIProcessedAt:   &created,
		TotalIncome:     decimal.NewFromInt(75000),
		TaxableIncome:   decimal.NewFromInt(75000),
		TaxLiability:    decimal.NewFromInt(11414),
		FederalWithheld: decimal.NewFromInt(12000),
		RefundAmount:    decimal.NewFromInt(586),
	}
	rows := []domain.DocumentExtraction{
		{
			DocumentID:      "doc-1",
			Status:          domain.ExtractionCompleted,
			DocumentType:    "W2",
			ExtractedData:   json.RawMessage(`{"income_items":[{"type":"w2"}],"deductions":[]}`),
			ConfidenceScore: &confidence,
			ProcessedAt:     &created,
			CreatedAt:       created,
		},
		{
			DocumentID:   "doc-2",
			Status:       domain.ExtractionFailed,
			ErrorMessage: "Unsupported file type: application/msword. AI supports PDF, JPEG, PNG, and WebP only.",
			CreatedAt:    created,
		},
	}

	var buf bytes.Buffer
	if err := NewExporter().WriteExtractions(&buf, taxReturn, rows); err != nil {
		t.Fatalf("WriteExtractions() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	values := map[string]string{}
	for _, r := range summary {
		if len(r) == 2 {
			values[r[0]] = r[1]
		}
	}
	if values["Tax Liability"] != "11414.00" || values["Refund Amount"] != "586.00" || values["Extractions"] != "2" {
		t.Fatalf("unexpected summary: %v", values)
	}

	ledger, err := f.GetRows(extractionsSheet)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if len(ledger) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(ledger))
	}
	if ledger[1][1] != "doc-1" || ledger[1][2] != "completed" || ledger[1][5] != "1" || ledger[1][6] != "0" {
		t.Fatalf("unexpected completed row: %v", ledger[1])
	}
	if ledger[2][2] != "failed" || ledger[2][7] == "" {
		t.Fatalf("unexpected failed row: %v", ledger[2])
	}
}
