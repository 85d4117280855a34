package extraction

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

const (
	defaultConfidence = 0.5
	unknownSourceName = "Unknown Source"
	rawLogLimit       = 500
)

var (
	openingFence = regexp.MustCompile("(?m)^```(?:json)?\\s*\\n?")
	closingFence = regexp.MustCompile("(?m)\\n?```\\s*$")
)

type Normalizer struct {
	schema *jsonschema.Schema
}

func NewNormalizer() (*Normalizer, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("extraction result schema: %w", err)
	}
	return &Normalizer{schema: schema}, nil
}

// Normalize never fails. Undecodable input yields the empty result with
// ParseError set; schema violations are reported as Warnings only.
func (n *Normalizer) Normalize(raw string) domain.ExtractionResult {
	text := stripFences(raw)

	doc, err := decodeObject(text)
	if err != nil {
		slog.Warn("extraction_parse_failed", "error", err.Error(), "raw_text", truncate(text, rawLogLimit))
		result := domain.EmptyExtractionResult()
		result.ParseError = true
		return result
	}

	result := domain.ExtractionResult{
		DocumentType: stringOr(doc["document_type"], "other"),
		Confidence:   confidence(doc["confidence"]),
		EmployerName: optionalString(doc["employer_name"]),
		EmployerEIN:  optionalString(doc["employer_ein"]),
		IncomeItems:  []domain.IncomeItem{},
		Deductions:   []domain.DeductionItem{},
		TaxpayerInfo: map[string]any{},
	}
	if info, ok := doc["taxpayer_info"].(map[string]any); ok {
		result.TaxpayerInfo = info
	}

	for i, item := range asList(doc["income_items"]) {
		obj, ok := item.(map[string]any)
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("/income_items/%d: not an object, skipped", i))
			continue
		}
		result.IncomeItems = append(result.IncomeItems, domain.IncomeItem{
			Type:            domain.ParseIncomeType(stringOr(obj["type"], string(domain.IncomeOther))),
			SourceName:      stringOr(obj["source_name"], unknownSourceName),
			Amount:          money(obj["amount"]),
			FederalWithheld: money(obj["federal_tax_withheld"]),
			StateWithheld:   money(obj["state_tax_withheld"]),
			State:           optionalString(obj["state"]),
		})
	}

	for i, item := range asList(doc["deductions"]) {
		obj, ok := item.(map[string]any)
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("/deductions/%d: not an object, skipped", i))
			continue
		}
		result.Deductions = append(result.Deductions, domain.DeductionItem{
			Category:    domain.DeductionCategory(stringOr(obj["category"], string(domain.DeductionOther))),
			Amount:      money(obj["amount"]),
			Description: stringOr(obj["description"], ""),
		})
	}

	if n != nil && n.schema != nil {
		if warnings := schemaWarnings(n.schema, doc); len(warnings) > 0 {
			slog.Info("extraction_schema_mismatch", "document_type", result.DocumentType, "warnings", warnings)
			result.Warnings = append(result.Warnings, warnings...)
		}
	}
	return result
}

func stripFences(raw string) string {
	text := openingFence.ReplaceAllString(raw, "")
	text = closingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json: trailing data after object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode json: top-level value is %T, want object", v)
	}
	return obj, nil
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func stringOr(v any, fallback string) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(n)
		d, err := decimal.NewFromString(cleaned)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func money(v any) decimal.Decimal {
	d, ok := number(v)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

func confidence(v any) float64 {
	if v == nil {
		return defaultConfidence
	}
	d, ok := number(v)
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// truncate keeps at most limit bytes of s without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

