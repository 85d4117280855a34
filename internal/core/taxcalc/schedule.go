// Package taxcalc recomputes a tax return's derived totals from its income and
// deduction rows using a progressive rate schedule.
package taxcalc

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Bracket taxes the slice of income between the previous bracket's upper bound
// and UpTo. A nil UpTo marks the open-ended top bracket.
type Bracket struct {
	UpTo *decimal.Decimal
	Rate decimal.Decimal
}

// Schedule is an ordered set of brackets for one jurisdiction, year and filing status.
type Schedule struct {
	Name     string
	Brackets []Bracket
}

// DefaultSchedule is the 2025 US federal single-filer table used for estimates.
func DefaultSchedule() Schedule {
	return mustSchedule("us-federal-2025-single", []bracketSpec{
		{UpTo: "11925", Rate: "0.10"},
		{UpTo: "48475", Rate: "0.12"},
		{UpTo: "103350", Rate: "0.22"},
		{UpTo: "197300", Rate: "0.24"},
		{UpTo: "250525", Rate: "0.32"},
		{UpTo: "626350", Rate: "0.35"},
		{Rate: "0.37"},
	})
}

// Validate checks that bounds strictly increase, rates are within [0,1] and
// only the last bracket is open-ended.
func (s Schedule) Validate() error {
	if len(s.Brackets) == 0 {
		return errors.New("schedule has no brackets")
	}
	prev := decimal.Zero
	for i, b := range s.Brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("bracket %d: rate %s out of range", i, b.Rate)
		}
		if b.UpTo == nil {
			if i != len(s.Brackets)-1 {
				return fmt.Errorf("bracket %d: only the last bracket may be open-ended", i)
			}
			continue
		}
		if !b.UpTo.GreaterThan(prev) {
			return fmt.Errorf("bracket %d: upper bound %s must exceed %s", i, b.UpTo, prev)
		}
		prev = *b.UpTo
	}
	return nil
}

// Tax walks the brackets in order, taxing min(remaining, width) at each rate,
// and rounds the sum to cents. Income above the last closed bracket with no
// open-ended bracket is taxed at the last rate.
func (s Schedule) Tax(taxable decimal.Decimal) decimal.Decimal {
	remaining := taxable
	lower := decimal.Zero
	tax := decimal.Zero
	for i, b := range s.Brackets {
		if !remaining.IsPositive() {
			break
		}
		portion := remaining
		if b.UpTo != nil && i != len(s.Brackets)-1 {
			portion = decimal.Min(remaining, b.UpTo.Sub(lower))
			lower = *b.UpTo
		}
		tax = tax.Add(portion.Mul(b.Rate))
		remaining = remaining.Sub(portion)
	}
	return tax.Round(2)
}

type bracketSpec struct {
	UpTo string `yaml:"up_to"`
	Rate string `yaml:"rate"`
}

type scheduleFile struct {
	Name     string        `yaml:"name"`
	Brackets []bracketSpec `yaml:"brackets"`
}

// LoadScheduleFile reads a YAML schedule:
//
//	name: us-federal-2025-single
//	brackets:
//	  - {up_to: "11925", rate: "0.10"}
//	  - {rate: "0.37"}
func LoadScheduleFile(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule file: %w", err)
	}
	return ParseSchedule(raw)
}

func ParseSchedule(raw []byte) (Schedule, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Schedule{}, fmt.Errorf("decode schedule yaml: %w", err)
	}
	schedule, err := buildSchedule(file.Name, file.Brackets)
	if err != nil {
		return Schedule{}, err
	}
	if err := schedule.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("validate schedule %q: %w", file.Name, err)
	}
	return schedule, nil
}

func buildSchedule(name string, specs []bracketSpec) (Schedule, error) {
	out := Schedule{Name: name, Brackets: make([]Bracket, 0, len(specs))}
	for i, spec := range specs {
		rate, err := decimal.NewFromString(spec.Rate)
		if err != nil {
			return Schedule{}, fmt.Errorf("bracket %d rate: %w", i, err)
		}
		b := Bracket{Rate: rate}
		if spec.UpTo != "" {
			upTo, err := decimal.NewFromString(spec.UpTo)
			if err != nil {
				return Schedule{}, fmt.Errorf("bracket %d up_to: %w", i, err)
			}
			b.UpTo = &upTo
		}
		out.Brackets = append(out.Brackets, b)
	}
	return out, nil
}

func mustSchedule(name string, specs []bracketSpec) Schedule {
	s, err := buildSchedule(name, specs)
	if err != nil {
		panic(err)
	}
	return s
}
