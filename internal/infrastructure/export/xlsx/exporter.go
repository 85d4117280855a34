package xlsx

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

const (
	summarySheet     = "Summary"
	extractionsSheet = "Extractions"
)

var extractionHeaders = []string{
	"Created At",
	"Document ID",
	"Status",
	"Document Type",
	"Confidence",
	"Income Items",
	"Deductions",
	"Error",
	"Processed At",
}

// Exporter renders a tax return's extraction ledger as a workbook for review.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) WriteExtractions(w io.Writer, taxReturn *domain.TaxReturn, rows []domain.DocumentExtraction) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	writeSummary(f, taxReturn, len(rows))

	index, err := f.NewSheet(extractionsSheet)
	if err != nil {
		return fmt.Errorf("create extractions sheet: %w", err)
	}
	for i, h := range extractionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(extractionsSheet, cell, h)
	}
	for i, row := range rows {
		writeExtractionRow(f, i+2, row)
	}
	_ = f.SetColWidth(extractionsSheet, "A", "A", 20)
	_ = f.SetColWidth(extractionsSheet, "B", "B", 38)
	_ = f.SetColWidth(extractionsSheet, "C", "G", 14)
	_ = f.SetColWidth(extractionsSheet, "H", "H", 60)
	_ = f.SetColWidth(extractionsSheet, "I", "I", 20)
	f.SetActiveSheet(index)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, tr *domain.TaxReturn, extractionCount int) {
	processedAt := ""
	if tr.AIProcessedAt != nil {
		processedAt = formatTime(*tr.AIProcessedAt)
	}
	pairs := [][2]any{
		{"Tax Return", tr.ID},
		{"Tax Year", tr.TaxYear},
		{"AI Status", string(tr.AIStatus)},
		{"AI Processed At", processedAt},
		{"Extractions", extractionCount},
		{"Total Income", tr.TotalIncome.StringFixed(2)},
		{"Total Deductions", tr.TotalDeductions.StringFixed(2)},
		{"Taxable Income", tr.TaxableIncome.StringFixed(2)},
		{"Tax Liability", tr.TaxLiability.StringFixed(2)},
		{"Federal Tax Withheld", tr.FederalWithheld.StringFixed(2)},
		{"Amount Due", tr.AmountDue.StringFixed(2)},
		{"Refund Amount", tr.RefundAmount.StringFixed(2)},
	}
	for i, pair := range pairs {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), pair[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), pair[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 38)
}

func writeExtractionRow(f *excelize.File, rowNum int, row domain.DocumentExtraction) {
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, rowNum)
		_ = f.SetCellValue(extractionsSheet, cell, v)
	}

	incomes, deductions := countItems(row.ExtractedData)
	write(1, formatTime(row.CreatedAt))
	write(2, row.DocumentID)
	write(3, string(row.Status))
	write(4, row.DocumentType)
	if row.ConfidenceScore != nil {
		write(5, *row.ConfidenceScore)
	}
	write(6, incomes)
	write(7, deductions)
	write(8, row.ErrorMessage)
	if row.ProcessedAt != nil {
		write(9, formatTime(*row.ProcessedAt))
	}
}

func countItems(payload json.RawMessage) (int, int) {
	if len(payload) == 0 {
		return 0, 0
	}
	var decoded struct {
		IncomeItems []json.RawMessage `json:"income_items"`
		Deductions  []json.RawMessage `json:"deductions"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0, 0
	}
	return len(decoded.IncomeItems), len(decoded.Deductions)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
