package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnStatus string

const (
	ReturnStatusDraft       ReturnStatus = "draft"
	ReturnStatusSubmitted   ReturnStatus = "submitted"
	ReturnStatusUnderReview ReturnStatus = "under_review"
	ReturnStatusCompleted   ReturnStatus = "completed"
	ReturnStatusAmended     ReturnStatus = "amended"
)

// AIStatus tracks the extraction pipeline for one tax return.
type AIStatus string

const (
	AIStatusNone       AIStatus = "none"
	AIStatusPending    AIStatus = "pending"
	AIStatusProcessing AIStatus = "processing"
	AIStatusCompleted  AIStatus = "completed"
	AIStatusFailed     AIStatus = "failed"
	AIStatusCancelled  AIStatus = "cancelled"
)

func (s AIStatus) Terminal() bool {
	switch s {
	case AIStatusCompleted, AIStatusFailed, AIStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a cancel command may still move the run to cancelled.
func (s AIStatus) Cancellable() bool {
	return s == AIStatusPending || s == AIStatusProcessing
}

type TaxReturn struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	PreparerID      *string         `json:"preparer_id,omitempty"`
	TaxYear         int             `json:"tax_year"`
	Status          ReturnStatus    `json:"status"`
	TotalIncome     decimal.Decimal `json:"total_income"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TaxableIncome   decimal.Decimal `json:"taxable_income"`
	TaxLiability    decimal.Decimal `json:"tax_liability"`
	TotalCredits    decimal.Decimal `json:"total_credits"`
	FederalWithheld decimal.Decimal `json:"federal_tax_withheld"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	AIStatus        AIStatus        `json:"ai_processing_status"`
	AIProcessedAt   *time.Time      `json:"ai_processed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Aggregates are the derived money fields written back after recalculation.
type Aggregates struct {
	TotalIncome     decimal.Decimal `json:"total_income"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TaxableIncome   decimal.Decimal `json:"taxable_income"`
	TaxLiability    decimal.Decimal `json:"tax_liability"`
	FederalWithheld decimal.Decimal `json:"federal_tax_withheld"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
}

func (r *TaxReturn) ApplyAggregates(agg Aggregates) {
	r.TotalIncome = agg.TotalIncome
	r.TotalDeductions = agg.TotalDeductions
	r.TaxableIncome = agg.TaxableIncome
	r.TaxLiability = agg.TaxLiability
	r.FederalWithheld = agg.FederalWithheld
	r.AmountDue = agg.AmountDue
	r.RefundAmount = agg.RefundAmount
}

// AIStatusView is the polled read model exposed to clients and preparers.
type AIStatusView struct {
	TaxReturnID   string     `json:"tax_return_id"`
	Status        AIStatus   `json:"ai_processing_status"`
	ProcessedAt   *time.Time `json:"ai_processed_at"`
	AmountDue     string     `json:"amount_due,omitempty"`
	RefundAmount  string     `json:"refund_amount,omitempty"`
	TaxLiability  string     `json:"tax_liability,omitempty"`
	TaxableIncome string     `json:"taxable_income,omitempty"`
}

type IncomeType string

const (
	IncomeW2         IncomeType = "w2"
	Income1099NEC    IncomeType = "1099_nec"
	Income1099INT    IncomeType = "1099_int"
	Income1099DIV    IncomeType = "1099_div"
	Income1099K      IncomeType = "1099_k"
	IncomeBusiness   IncomeType = "business"
	IncomeRental     IncomeType = "rental"
	IncomeRetirement IncomeType = "retirement"
	IncomeOther      IncomeType = "other"
)

var incomeTypes = map[IncomeType]struct{}{
	IncomeW2: {}, Income1099NEC: {}, Income1099INT: {}, Income1099DIV: {}, Income1099K: {},
	IncomeBusiness: {}, IncomeRental: {}, IncomeRetirement: {}, IncomeOther: {},
}

// ParseIncomeType maps free text onto the closed enum; unknown values become other.
func ParseIncomeType(raw string) IncomeType {
	t := IncomeType(raw)
	if _, ok := incomeTypes[t]; ok {
		return t
	}
	return IncomeOther
}

type IncomeSource struct {
	ID              string          `json:"id"`
	TaxReturnID     string          `json:"tax_return_id"`
	Type            IncomeType      `json:"type"`
	SourceName      string          `json:"source_name"`
	EmployerName    *string         `json:"employer_name,omitempty"`
	PayerEIN        *string         `json:"payer_ein,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	FederalWithheld decimal.Decimal `json:"federal_tax_withheld"`
	StateWithheld   decimal.Decimal `json:"state_tax_withheld"`
	State           *string         `json:"state,omitempty"`
	Description     string          `json:"description,omitempty"`
	AIExtracted     bool            `json:"ai_extracted"`
	AIConfidence    *float64        `json:"ai_confidence,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type DeductionCategory string

const (
	DeductionMortgageInterest DeductionCategory = "mortgage_interest"
	DeductionPropertyTax      DeductionCategory = "property_tax"
	DeductionCharitable       DeductionCategory = "charitable"
	DeductionMedical          DeductionCategory = "medical"
	DeductionStudentLoan      DeductionCategory = "student_loan"
	DeductionBusinessExpense  DeductionCategory = "business_expense"
	DeductionOther            DeductionCategory = "other"
)

type Deduction struct {
	ID          string            `json:"id"`
	TaxReturnID string            `json:"tax_return_id"`
	Category    DeductionCategory `json:"category"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
}
