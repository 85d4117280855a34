package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

// memoryStore backs the tax return repository, its transactions and the
// extraction ledger. WithinTx restores a snapshot when fn fails.
type memoryStore struct {
	returns     map[string]*domain.TaxReturn
	incomes     []domain.IncomeSource
	deductions  []domain.Deduction
	extractions []domain.DocumentExtraction
	aiEnabled   map[string]bool

	statusCalls []domain.AIStatus
	statusReads int

	getErr        error
	statusReadErr error
	saveAggErr    error
	createRowErr  error
	setStatusErr  error
}

func newMemoryStore(returns ...*domain.TaxReturn) *memoryStore {
	s := &memoryStore{returns: map[string]*domain.TaxReturn{}, aiEnabled: map[string]bool{}}
	for _, r := range returns {
		s.returns[r.ID] = r
	}
	return s
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.TaxReturn, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.returns[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTaxReturnNotFound, "get tax return", fmt.Errorf("id=%s", id))
	}
	copyReturn := *r
	return &copyReturn, nil
}

func (s *memoryStore) GetAIStatus(_ context.Context, id string) (domain.AIStatus, error) {
	s.statusReads++
	if s.statusReadErr != nil {
		return "", s.statusReadErr
	}
	r, ok := s.returns[id]
	if !ok {
		return "", domain.ErrTaxReturnNotFound
	}
	return r.AIStatus, nil
}

func (s *memoryStore) ClaimProcessing(_ context.Context, id string, _ time.Duration) (bool, error) {
	r, ok := s.returns[id]
	if !ok {
		return false, domain.ErrTaxReturnNotFound
	}
	if r.AIStatus == domain.AIStatusCancelled || r.AIStatus == domain.AIStatusProcessing {
		return false, nil
	}
	r.AIStatus = domain.AIStatusProcessing
	s.statusCalls = append(s.statusCalls, domain.AIStatusProcessing)
	return true, nil
}

func (s *memoryStore) MarkPending(_ context.Context, id string) (bool, error) {
	r, ok := s.returns[id]
	if !ok {
		return false, domain.ErrTaxReturnNotFound
	}
	if r.AIStatus == domain.AIStatusPending || r.AIStatus == domain.AIStatusProcessing {
		return false, nil
	}
	r.AIStatus = domain.AIStatusPending
	r.AIProcessedAt = nil
	s.statusCalls = append(s.statusCalls, domain.AIStatusPending)
	return true, nil
}

func (s *memoryStore) SetAIStatus(_ context.Context, id string, status domain.AIStatus, processedAt *time.Time) error {
	s.statusCalls = append(s.statusCalls, status)
	if s.setStatusErr != nil {
		return s.setStatusErr
	}
	r, ok := s.returns[id]
	if !ok {
		return domain.ErrTaxReturnNotFound
	}
	r.AIStatus = status
	if processedAt != nil {
		at := *processedAt
		r.AIProcessedAt = &at
	}
	return nil
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(context.Context, ports.TaxReturnTx) error) error {
	snapshot := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	returns     map[string]domain.TaxReturn
	incomes     []domain.IncomeSource
	deductions  []domain.Deduction
	extractions []domain.DocumentExtraction
}

func (s *memoryStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		returns:     map[string]domain.TaxReturn{},
		incomes:     append([]domain.IncomeSource(nil), s.incomes...),
		deductions:  append([]domain.Deduction(nil), s.deductions...),
		extractions: append([]domain.DocumentExtraction(nil), s.extractions...),
	}
	for id, r := range s.returns {
		snap.returns[id] = *r
	}
	return snap
}

func (s *memoryStore) restore(snap storeSnapshot) {
	for id, r := range snap.returns {
		restored := r
		s.returns[id] = &restored
	}
	s.incomes = snap.incomes
	s.deductions = snap.deductions
	s.extractions = snap.extractions
}

func (s *memoryStore) LockTaxReturn(ctx context.Context, id string) (*domain.TaxReturn, error) {
	return s.GetByID(ctx, id)
}

func (s *memoryStore) ListIncomeSources(_ context.Context, taxReturnID string) ([]domain.IncomeSource, error) {
	var out []domain.IncomeSource
	for _, src := range s.incomes {
		if src.TaxReturnID == taxReturnID {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateIncomeSource(_ context.Context, src *domain.IncomeSource) error {
	s.incomes = append(s.incomes, *src)
	return nil
}

func (s *memoryStore) UpdateIncomeSource(_ context.Context, src *domain.IncomeSource) error {
	for i := range s.incomes {
		if s.incomes[i].ID == src.ID {
			s.incomes[i] = *src
			return nil
		}
	}
	return errors.New("income source not found")
}

func (s *memoryStore) ListDeductions(_ context.Context, taxReturnID string) ([]domain.Deduction, error) {
	var out []domain.Deduction
	for _, d := range s.deductions {
		if d.TaxReturnID == taxReturnID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateDeduction(_ context.Context, d *domain.Deduction) error {
	s.deductions = append(s.deductions, *d)
	return nil
}

func (s *memoryStore) SaveAggregates(_ context.Context, taxReturnID string, agg domain.Aggregates) error {
	if s.saveAggErr != nil {
		return s.saveAggErr
	}
	r, ok := s.returns[taxReturnID]
	if !ok {
		return domain.ErrTaxReturnNotFound
	}
	r.ApplyAggregates(agg)
	return nil
}

func (s *memoryStore) FailProcessingExtractions(_ context.Context, taxReturnID, message string) (int64, error) {
	var n int64
	for i := range s.extractions {
		row := &s.extractions[i]
		if row.TaxReturnID == taxReturnID && row.Status == domain.ExtractionProcessing {
			row.Status = domain.ExtractionFailed
			row.ErrorMessage = message
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Create(_ context.Context, row *domain.DocumentExtraction) error {
	if s.createRowErr != nil {
		return s.createRowErr
	}
	s.extractions = append(s.extractions, *row)
	return nil
}

func (s *memoryStore) Complete(_ context.Context, row *domain.DocumentExtraction) (bool, error) {
	for i := range s.extractions {
		if s.extractions[i].ID == row.ID {
			if s.extractions[i].Status != domain.ExtractionProcessing {
				return false, nil
			}
			s.extractions[i] = *row
			return true, nil
		}
	}
	return false, domain.ErrExtractionMissing
}

func (s *memoryStore) Fail(_ context.Context, id, message string, processedAt time.Time) (bool, error) {
	for i := range s.extractions {
		if s.extractions[i].ID == id {
			if s.extractions[i].Status != domain.ExtractionProcessing {
				return false, nil
			}
			s.extractions[i].Status = domain.ExtractionFailed
			s.extractions[i].ErrorMessage = message
			s.extractions[i].ProcessedAt = &processedAt
			return true, nil
		}
	}
	return false, domain.ErrExtractionMissing
}

func (s *memoryStore) ListByTaxReturn(_ context.Context, taxReturnID string) ([]domain.DocumentExtraction, error) {
	var out []domain.DocumentExtraction
	for _, row := range s.extractions {
		if row.TaxReturnID == taxReturnID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memoryStore) AIEnabled(_ context.Context, userID string) (bool, error) {
	return s.aiEnabled[userID], nil
}

func (s *memoryStore) extractionsFor(documentID string) []domain.DocumentExtraction {
	var out []domain.DocumentExtraction
	for _, row := range s.extractions {
		if row.DocumentID == documentID {
			out = append(out, row)
		}
	}
	return out
}

type catalogFake struct {
	docs []domain.Document
	err  error
}

func (f *catalogFake) ListByTaxReturn(_ context.Context, taxReturnID string) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Document
	for _, d := range f.docs {
		if d.TaxReturnID == taxReturnID {
			out = append(out, d)
		}
	}
	return out, nil
}

type storageFake struct {
	objects map[string]string
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// extractorFake answers by document body; afterCall runs once per call.
type extractorFake struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
	afterCall func(call int)
}

func (f *extractorFake) Extract(_ context.Context, data []byte, mimeType string) (string, error) {
	f.calls = append(f.calls, mimeType)
	if f.afterCall != nil {
		defer f.afterCall(len(f.calls))
	}
	if err, ok := f.errs[string(data)]; ok {
		return "", err
	}
	return f.responses[string(data)], nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishTaxReturnSubmitted(_ context.Context, taxReturnID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, taxReturnID)
	return nil
}

func (f *queueFake) SubscribeTaxReturnSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

type leaseFake struct {
	held     bool
	err      error
	acquired []string
	released int
}

func (f *leaseFake) Acquire(_ context.Context, taxReturnID string, _ time.Duration) (func(context.Context) error, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	f.acquired = append(f.acquired, taxReturnID)
	return func(context.Context) error {
		f.released++
		return nil
	}, true, nil
}

type observerFake struct {
	outcomes []string
}

func (f *observerFake) ObserveDocument(outcome string) {
	f.outcomes = append(f.outcomes, outcome)
}

type exporterFake struct {
	rows int
	err  error
}

func (f *exporterFake) WriteExtractions(w io.Writer, taxReturn *domain.TaxReturn, rows []domain.DocumentExtraction) error {
	if f.err != nil {
		return f.err
	}
	f.rows = len(rows)
	_, err := fmt.Fprintf(w, "%s:%d", taxReturn.ID, len(rows))
	return err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func newTaxReturn(id, clientID string, status domain.AIStatus) *domain.TaxReturn {
	return &domain.TaxReturn{
		ID:       id,
		ClientID: clientID,
		TaxYear:  2025,
		Status:   domain.ReturnStatusSubmitted,
		AIStatus: status,
	}
}
