package taxcalc

import (
	"github.com/shopspring/decimal"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

type Calculator struct {
	schedule Schedule
}

func NewCalculator(schedule Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

func (c *Calculator) Schedule() Schedule {
	return c.schedule
}

// Recalculate is a pure function of the current rows. Credits reduce the net
// tax before withholding is applied; exactly one of AmountDue and RefundAmount
// is non-zero unless the net is exactly zero.
func (c *Calculator) Recalculate(incomes []domain.IncomeSource, deductions []domain.Deduction, credits decimal.Decimal) domain.Aggregates {
	totalIncome := decimal.Zero
	withheld := decimal.Zero
	for _, src := range incomes {
		totalIncome = totalIncome.Add(src.Amount)
		withheld = withheld.Add(src.FederalWithheld)
	}
	totalDeductions := decimal.Zero
	for _, d := range deductions {
		totalDeductions = totalDeductions.Add(d.Amount)
	}

	taxable := decimal.Max(decimal.Zero, totalIncome.Sub(totalDeductions))
	liability := c.schedule.Tax(taxable)
	net := liability.Sub(credits).Sub(withheld)

	agg := domain.Aggregates{
		TotalIncome:     totalIncome.Round(2),
		TotalDeductions: totalDeductions.Round(2),
		TaxableIncome:   taxable.Round(2),
		TaxLiability:    liability,
		FederalWithheld: withheld.Round(2),
		AmountDue:       decimal.Zero,
		RefundAmount:    decimal.Zero,
	}
	switch {
	case net.IsPositive():
		agg.AmountDue = net.Round(2)
	case net.IsNegative():
		agg.RefundAmount = net.Neg().Round(2)
	}
	return agg
}
