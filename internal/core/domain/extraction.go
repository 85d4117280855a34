package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// CancelledByAccountant is written on in-flight extraction rows by the cancel command.
const CancelledByAccountant = "Cancelled by accountant"

// DocumentExtraction is one ledger row per attempt on a (tax return, document) pair.
type DocumentExtraction struct {
	ID              string           `json:"id"`
	TaxReturnID     string           `json:"tax_return_id"`
	DocumentID      string           `json:"document_id"`
	Status          ExtractionStatus `json:"status"`
	DocumentType    string           `json:"document_type,omitempty"`
	ExtractedData   json.RawMessage  `json:"extracted_data,omitempty"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ExtractionResult is the normalized model output for one document.
type ExtractionResult struct {
	DocumentType string          `json:"document_type"`
	Confidence   float64         `json:"confidence"`
	EmployerName *string         `json:"employer_name"`
	EmployerEIN  *string         `json:"employer_ein"`
	IncomeItems  []IncomeItem    `json:"income_items"`
	Deductions   []DeductionItem `json:"deductions"`
	TaxpayerInfo map[string]any  `json:"taxpayer_info"`
	ParseError   bool            `json:"parse_error"`
	Warnings     []string        `json:"warnings,omitempty"`
}

type IncomeItem struct {
	Type            IncomeType      `json:"type"`
	SourceName      string          `json:"source_name"`
	Amount          decimal.Decimal `json:"amount"`
	FederalWithheld decimal.Decimal `json:"federal_tax_withheld"`
	StateWithheld   decimal.Decimal `json:"state_tax_withheld"`
	State           *string         `json:"state"`
}

type DeductionItem struct {
	Category    DeductionCategory `json:"category"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
}

// ExtractedIncome is an income item tagged with its document's payer details,
// ready for the merge step.
type ExtractedIncome struct {
	IncomeItem
	EmployerName *string
	EmployerEIN  *string
	Confidence   float64
}

type ExtractedDeduction struct {
	DeductionItem
	Confidence float64
}

// EmptyExtractionResult is returned when the model output cannot be decoded.
func EmptyExtractionResult() ExtractionResult {
	return ExtractionResult{
		DocumentType: "other",
		Confidence:   0,
		IncomeItems:  []IncomeItem{},
		Deductions:   []DeductionItem{},
		TaxpayerInfo: map[string]any{},
	}
}
