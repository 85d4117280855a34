package extraction

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return n
}

func TestNormalizeW2Response(t *testing.T) {
	n := newTestNormalizer(t)
	raw := "```json\n" + `{
  "document_type": "w2",
  "confidence": 0.93,
  "employer_name": "Acme Corp",
  "employer_ein": "12-3456789",
  "income_items": [
    {"type": "w2", "source_name": "Wages", "amount": 75000.00, "federal_tax_withheld": "12,000.00", "state_tax_withheld": 3100.5, "state": "CA"}
  ],
  "deductions": [],
  "taxpayer_info": {"name": "Jane Roe", "state": "CA"}
}` + "\n```"

	got := n.Normalize(raw)

	if got.ParseError {
		t.Fatalf("unexpected parse error")
	}
	if got.DocumentType != "w2" || got.Confidence != 0.93 {
		t.Fatalf("unexpected header: %+v", got)
	}
	if got.EmployerName == nil || *got.EmployerName != "Acme Corp" {
		t.Fatalf("unexpected employer name: %v", got.EmployerName)
	}
	if got.EmployerEIN == nil || *got.EmployerEIN != "12-3456789" {
		t.Fatalf("unexpected employer ein: %v", got.EmployerEIN)
	}
	if len(got.IncomeItems) != 1 {
		t.Fatalf("expected one income item, got %d", len(got.IncomeItems))
	}
	item := got.IncomeItems[0]
	if item.Type != domain.IncomeW2 || item.SourceName != "Wages" {
		t.Fatalf("unexpected income item: %+v", item)
	}
	if !item.Amount.Equal(decimal.NewFromInt(75000)) {
		t.Fatalf("unexpected amount: %s", item.Amount)
	}
	if !item.FederalWithheld.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("unexpected federal withheld: %s", item.FederalWithheld)
	}
	if !item.StateWithheld.Equal(decimal.RequireFromString("3100.5")) {
		t.Fatalf("unexpected state withheld: %s", item.StateWithheld)
	}
	if item.State == nil || *item.State != "CA" {
		t.Fatalf("unexpected state: %v", item.State)
	}
	if got.TaxpayerInfo["name"] != "Jane Roe" {
		t.Fatalf("taxpayer info not passed through: %v", got.TaxpayerInfo)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", got.Warnings)
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	n := newTestNormalizer(t)
	inputs := []string{
		"",
		"   ",
		"not json at all",
		"```json\n```",
		"```\n{\"document_type\": \n```",
		"[1, 2, 3]",
		"null",
		"42",
		`{"a": 1} {"b": 2}`,
		"I could not read this document.",
	}
	for _, raw := range inputs {
		got := n.Normalize(raw)
		if !got.ParseError {
			t.Fatalf("expected parse error for %q", raw)
		}
		if got.DocumentType != "other" || got.Confidence != 0 {
			t.Fatalf("unexpected empty result for %q: %+v", raw, got)
		}
		if got.IncomeItems == nil || got.Deductions == nil || got.TaxpayerInfo == nil {
			t.Fatalf("empty result must carry non-nil collections for %q", raw)
		}
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	n := newTestNormalizer(t)
	got := n.Normalize(`{"income_items": [{"type": "crypto"}], "deductions": [{}]}`)

	if got.ParseError {
		t.Fatalf("unexpected parse error")
	}
	if got.DocumentType != "other" {
		t.Fatalf("expected default document type, got %q", got.DocumentType)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("expected default confidence 0.5, got %v", got.Confidence)
	}
	if got.EmployerName != nil || got.EmployerEIN != nil {
		t.Fatalf("expected nil employer fields")
	}
	item := got.IncomeItems[0]
	if item.Type != domain.IncomeOther {
		t.Fatalf("unknown type should map to other, got %q", item.Type)
	}
	if item.SourceName != "Unknown Source" {
		t.Fatalf("unexpected source name: %q", item.SourceName)
	}
	if !item.Amount.IsZero() || !item.FederalWithheld.IsZero() || !item.StateWithheld.IsZero() {
		t.Fatalf("missing amounts should be zero: %+v", item)
	}
	if item.State != nil {
		t.Fatalf("expected nil state")
	}
	ded := got.Deductions[0]
	if ded.Category != domain.DeductionOther || ded.Description != "" || !ded.Amount.IsZero() {
		t.Fatalf("unexpected deduction defaults: %+v", ded)
	}
	if len(got.Warnings) == 0 {
		t.Fatalf("expected schema warnings for unknown income type and missing amounts")
	}
}

func TestNormalizeClampsConfidenceAndAmounts(t *testing.T) {
	n := newTestNormalizer(t)
	cases := map[string]float64{
		`{"confidence": 1.7}`:   1,
		`{"confidence": -0.2}`:  0,
		`{"confidence": "0.8"}`: 0.8,
		`{"confidence": null}`:  0.5,
		`{"confidence": "n/a"}`: 0,
	}
	for raw, want := range cases {
		if got := n.Normalize(raw).Confidence; got != want {
			t.Fatalf("confidence for %s = %v, want %v", raw, got, want)
		}
	}

	got := n.Normalize(`{"income_items": [{"type": "1099_nec", "amount": -250, "federal_tax_withheld": "abc"}], "deductions": [{"category": "charitable", "amount": "$1,200.456"}]}`)
	if !got.IncomeItems[0].Amount.IsZero() || !got.IncomeItems[0].FederalWithheld.IsZero() {
		t.Fatalf("negative or invalid amounts should become zero: %+v", got.IncomeItems[0])
	}
	if !got.Deductions[0].Amount.Equal(decimal.RequireFromString("1200.46")) {
		t.Fatalf("unexpected deduction amount: %s", got.Deductions[0].Amount)
	}
	if !hasWarning(got.Warnings, "/income_items/0/amount") {
		t.Fatalf("expected warning for negative amount, got %v", got.Warnings)
	}
}

func TestNormalizeSkipsNonObjectItems(t *testing.T) {
	n := newTestNormalizer(t)
	got := n.Normalize(`{"income_items": ["w2", {"type": "w2", "amount": 10}], "deductions": [7]}`)

	if len(got.IncomeItems) != 1 || len(got.Deductions) != 0 {
		t.Fatalf("unexpected items: %+v / %+v", got.IncomeItems, got.Deductions)
	}
	if !hasWarning(got.Warnings, "/income_items/0: not an object") {
		t.Fatalf("expected skip warning, got %v", got.Warnings)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q)=%q, want %q", in, got, want)
		}
	}
}

func hasWarning(warnings []string, prefix string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "short", limit: 10, want: "short"},
		{in: "abcdef", limit: 3, want: "abc"},
		{in: "ab€cd", limit: 3, want: "ab"},
		{in: "ab€cd", limit: 4, want: "ab"},
		{in: "ab€cd", limit: 5, want: "ab€"},
		{in: "Müller GmbH", limit: 2, want: "M"},
		{in: "€", limit: 1, want: ""},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.limit)
		if got != tc.want || !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}

	raw := strings.Repeat("é", rawLogLimit)
	if got := truncate(raw, rawLogLimit+1); !utf8.ValidString(got) || len(got) > rawLogLimit+1 {
		t.Fatalf("long multibyte text truncated to invalid UTF-8: %d bytes", len(got))
	}
}
