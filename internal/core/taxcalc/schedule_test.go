package taxcalc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultScheduleIsValid(t *testing.T) {
	if err := DefaultSchedule().Validate(); err != nil {
		t.Fatalf("default schedule invalid: %v", err)
	}
}

func TestTaxZeroAtZero(t *testing.T) {
	if got := DefaultSchedule().Tax(decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero tax, got %s", got)
	}
}

func TestTaxIsNonDecreasingAndContinuous(t *testing.T) {
	s := DefaultSchedule()
	prev := decimal.Zero
	for taxable := int64(0); taxable <= 700000; taxable += 250 {
		got := s.Tax(decimal.NewFromInt(taxable))
		if got.LessThan(prev) {
			t.Fatalf("tax decreased at %d: %s < %s", taxable, got, prev)
		}
		prev = got
	}

	cent := decimal.RequireFromString("0.01")
	for _, b := range s.Brackets {
		if b.UpTo == nil {
			continue
		}
		below := s.Tax(b.UpTo.Sub(cent))
		above := s.Tax(b.UpTo.Add(cent))
		if above.Sub(below).GreaterThan(decimal.RequireFromString("0.02")) {
			t.Fatalf("discontinuity at %s: %s -> %s", b.UpTo, below, above)
		}
	}
}

func TestTaxAtBracketBoundaries(t *testing.T) {
	s := DefaultSchedule()
	cases := map[string]string{
		"11925":  "1192.5",
		"48475":  "5578.5",
		"103350": "17651",
		"197300": "40199",
	}
	for taxable, want := range cases {
		got := s.Tax(decimal.RequireFromString(taxable))
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("tax(%s)=%s, want %s", taxable, got, want)
		}
	}
}

func TestTaxRoundsToCents(t *testing.T) {
	got := DefaultSchedule().Tax(decimal.RequireFromString("100.05"))
	if !got.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("unexpected rounded tax: %s", got)
	}
}

func TestParseScheduleFromYAML(t *testing.T) {
	raw := []byte(`
name: flat-test
brackets:
  - {up_to: "10000", rate: "0.05"}
  - {rate: "0.20"}
`)
	s, err := ParseSchedule(raw)
	if err != nil {
		t.Fatalf("parse schedule: %v", err)
	}
	if s.Name != "flat-test" || len(s.Brackets) != 2 {
		t.Fatalf("unexpected schedule: %+v", s)
	}
	got := s.Tax(decimal.NewFromInt(20000))
	if !got.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected tax: %s", got)
	}
}

func TestParseScheduleRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"empty":            "name: x\nbrackets: []\n",
		"decreasing":       "name: x\nbrackets:\n  - {up_to: \"500\", rate: \"0.1\"}\n  - {up_to: \"100\", rate: \"0.2\"}\n",
		"open in middle":   "name: x\nbrackets:\n  - {rate: \"0.1\"}\n  - {up_to: \"100\", rate: \"0.2\"}\n",
		"rate above one":   "name: x\nbrackets:\n  - {rate: \"1.5\"}\n",
		"non-numeric rate": "name: x\nbrackets:\n  - {rate: \"ten\"}\n",
	}
	for name, raw := range cases {
		if _, err := ParseSchedule([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadScheduleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	content := "name: file-test\nbrackets:\n  - {rate: \"0.1\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	s, err := LoadScheduleFile(path)
	if err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	if s.Name != "file-test" {
		t.Fatalf("unexpected name: %s", s.Name)
	}

	_, err = LoadScheduleFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read schedule file") {
		t.Fatalf("expected read error, got %v", err)
	}
}
