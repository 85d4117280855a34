package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
)

const (
	OutcomeCompleted    = "completed"
	OutcomeFailed       = "failed"
	OutcomeRejectedSize = "rejected_size"
	OutcomeRejectedType = "rejected_type"
)

var errRunCancelled = errors.New("run cancelled")

// ProcessLimits bounds a single run. Documents above MaxFileSize or outside the
// supported types are rejected without calling the extractor.
type ProcessLimits struct {
	MaxFileSize         int64
	MaxDocuments        int
	SupportedMIMETypes  []string
	SupportedExtensions []string
	// StaleClaimAfter lets a new run take over a processing claim left behind
	// by a crashed worker.
	StaleClaimAfter time.Duration
	LeaseTTL        time.Duration
}

func DefaultProcessLimits() ProcessLimits {
	return ProcessLimits{
		MaxFileSize:         5 * 1024 * 1024,
		MaxDocuments:        10,
		SupportedMIMETypes:  []string{"application/pdf", "image/jpeg", "image/jpg", "image/png", "image/webp"},
		SupportedExtensions: []string{"pdf", "jpg", "jpeg", "png", "webp"},
		StaleClaimAfter:     10 * time.Minute,
		LeaseTTL:            5 * time.Minute,
	}
}

func (l ProcessLimits) withDefaults() ProcessLimits {
	def := DefaultProcessLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = def.MaxFileSize
	}
	if l.MaxDocuments <= 0 {
		l.MaxDocuments = def.MaxDocuments
	}
	if len(l.SupportedMIMETypes) == 0 {
		l.SupportedMIMETypes = def.SupportedMIMETypes
	}
	if len(l.SupportedExtensions) == 0 {
		l.SupportedExtensions = def.SupportedExtensions
	}
	if l.StaleClaimAfter <= 0 {
		l.StaleClaimAfter = def.StaleClaimAfter
	}
	if l.LeaseTTL <= 0 {
		l.LeaseTTL = def.LeaseTTL
	}
	return l
}

func (l ProcessLimits) supports(doc domain.Document) bool {
	mime := strings.ToLower(strings.TrimSpace(doc.MimeType))
	for _, m := range l.SupportedMIMETypes {
		if mime == m {
			return true
		}
	}
	ext := doc.Extension()
	for _, e := range l.SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (l ProcessLimits) sizeMessage() string {
	return fmt.Sprintf("File too large for AI processing (max %s).", humanSize(l.MaxFileSize))
}

func unsupportedTypeMessage(mime string) string {
	return fmt.Sprintf("Unsupported file type: %s. AI supports PDF, JPEG, PNG, and WebP only.", mime)
}

func humanSize(n int64) string {
	const kb, mb = 1024, 1024 * 1024
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%dKB", n/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

type ProcessOption func(*ProcessTaxReturnUseCase)

func WithRunLease(lease ports.RunLease) ProcessOption {
	return func(uc *ProcessTaxReturnUseCase) { uc.lease = lease }
}

func WithProcessObserver(observer ports.ProcessObserver) ProcessOption {
	return func(uc *ProcessTaxReturnUseCase) { uc.observer = observer }
}

type ProcessTaxReturnUseCase struct {
	returns    ports.TaxReturnRepository
	documents  ports.DocumentCatalog
	storage    ports.ObjectStorage
	ledger     ports.ExtractionLedger
	extractor  ports.DocumentExtractor
	normalizer ports.ResponseNormalizer
	calculator ports.TaxCalculator
	merger     *IncomeMerger
	limits     ProcessLimits

	lease    ports.RunLease
	observer ports.ProcessObserver
	now      func() time.Time
	newID    func() string
}

func NewProcessTaxReturnUseCase(
	returns ports.TaxReturnRepository,
	documents ports.DocumentCatalog,
	storage ports.ObjectStorage,
	ledger ports.ExtractionLedger,
	extractor ports.DocumentExtractor,
	normalizer ports.ResponseNormalizer,
	calculator ports.TaxCalculator,
	limits ProcessLimits,
	opts ...ProcessOption,
) *ProcessTaxReturnUseCase {
	uc := &ProcessTaxReturnUseCase{
		returns:    returns,
		documents:  documents,
		storage:    storage,
		ledger:     ledger,
		extractor:  extractor,
		normalizer: normalizer,
		calculator: calculator,
		merger:     NewIncomeMerger(),
		limits:     limits.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// accumulated holds items from successful documents until the final apply.
type accumulated struct {
	incomes    []domain.ExtractedIncome
	deductions []domain.ExtractedDeduction
}

func (a *accumulated) add(result domain.ExtractionResult) {
	for _, item := range result.IncomeItems {
		a.incomes = append(a.incomes, domain.ExtractedIncome{
			IncomeItem:   item,
			EmployerName: result.EmployerName,
			EmployerEIN:  result.EmployerEIN,
			Confidence:   result.Confidence,
		})
	}
	for _, item := range result.Deductions {
		a.deductions = append(a.deductions, domain.ExtractedDeduction{
			DeductionItem: item,
			Confidence:    result.Confidence,
		})
	}
}

func (uc *ProcessTaxReturnUseCase) ProcessByID(ctx context.Context, taxReturnID string) error {
	taxReturn, err := uc.returns.GetByID(ctx, taxReturnID)
	if err != nil {
		if domain.IsKind(err, domain.ErrTaxReturnNotFound) {
			slog.Warn("tax_return_process_missing", "tax_return_id", taxReturnID)
			return nil
		}
		return fmt.Errorf("fetch tax return: %w", err)
	}
	if taxReturn.AIStatus == domain.AIStatusCancelled {
		slog.Info("tax_return_process_skipped", "tax_return_id", taxReturnID, "reason", "cancelled")
		return nil
	}

	release, acquired, err := uc.acquireLease(ctx, taxReturnID)
	if err != nil {
		return fmt.Errorf("acquire run lease: %w", err)
	}
	if !acquired {
		slog.Info("tax_return_process_skipped", "tax_return_id", taxReturnID, "reason", "lease_held")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("run_lease_release_failed", "tax_return_id", taxReturnID, "error", err.Error())
		}
	}()

	claimed, err := uc.returns.ClaimProcessing(ctx, taxReturnID, uc.limits.StaleClaimAfter)
	if err != nil {
		return uc.fail(ctx, taxReturnID, fmt.Errorf("set ai status=processing: %w", err))
	}
	if !claimed {
		slog.Info("tax_return_process_skipped", "tax_return_id", taxReturnID, "reason", "not_claimable")
		return nil
	}

	slog.Info("tax_return_process_start", "tax_return_id", taxReturnID)
	if err := uc.run(ctx, taxReturnID); err != nil {
		return uc.fail(ctx, taxReturnID, err)
	}
	return nil
}

func (uc *ProcessTaxReturnUseCase) run(ctx context.Context, taxReturnID string) error {
	docs, err := uc.documents.ListByTaxReturn(ctx, taxReturnID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		if err := uc.setStatus(ctx, taxReturnID, domain.AIStatusCompleted); err != nil {
			return err
		}
		slog.Info("tax_return_process_done", "tax_return_id", taxReturnID, "documents", 0)
		return nil
	}

	var acc accumulated
	successes := 0
	for _, doc := range docs {
		cancelled, err := uc.isCancelled(ctx, taxReturnID)
		if err != nil {
			return err
		}
		if cancelled {
			slog.Info("tax_return_process_cancelled", "tax_return_id", taxReturnID, "succeeded", successes)
			return nil
		}
		if successes >= uc.limits.MaxDocuments {
			slog.Info("tax_return_process_cap_reached", "tax_return_id", taxReturnID, "limit", uc.limits.MaxDocuments)
			break
		}

		ok, err := uc.processDocument(ctx, taxReturnID, doc, &acc)
		if err != nil {
			return err
		}
		if ok {
			successes++
		}
	}

	cancelled, err := uc.isCancelled(ctx, taxReturnID)
	if err != nil {
		return err
	}
	if cancelled {
		slog.Info("tax_return_process_cancelled", "tax_return_id", taxReturnID, "succeeded", successes)
		return nil
	}

	if successes == 0 {
		if err := uc.setStatus(ctx, taxReturnID, domain.AIStatusFailed); err != nil {
			return err
		}
		slog.Warn("tax_return_process_no_successes", "tax_return_id", taxReturnID, "documents", len(docs))
		return nil
	}

	return uc.apply(ctx, taxReturnID, acc, successes)
}

// processDocument returns an error only for infrastructure failures. Gate
// rejections and extraction failures are recorded on the ledger instead.
// Terminal row writes run detached from ctx so a deadline that interrupts the
// extractor cannot leave the row in processing.
func (uc *ProcessTaxReturnUseCase) processDocument(ctx context.Context, taxReturnID string, doc domain.Document, acc *accumulated) (bool, error) {
	if doc.Size > uc.limits.MaxFileSize {
		uc.observe(OutcomeRejectedSize)
		return false, uc.recordRejection(ctx, taxReturnID, doc, uc.limits.sizeMessage())
	}
	if !uc.limits.supports(doc) {
		uc.observe(OutcomeRejectedType)
		return false, uc.recordRejection(ctx, taxReturnID, doc, unsupportedTypeMessage(doc.MimeType))
	}

	now := uc.now()
	row := &domain.DocumentExtraction{
		ID:          uc.newID(),
		TaxReturnID: taxReturnID,
		DocumentID:  doc.ID,
		Status:      domain.ExtractionProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.ledger.Create(ctx, row); err != nil {
		return false, fmt.Errorf("create extraction row: %w", err)
	}

	result, err := uc.extract(ctx, doc)
	if err != nil {
		slog.Error("document_extraction_failed",
			"tax_return_id", taxReturnID,
			"document_id", doc.ID,
			"error", err.Error(),
		)
		uc.observe(OutcomeFailed)
		if _, failErr := uc.ledger.Fail(context.WithoutCancel(ctx), row.ID, err.Error(), uc.now()); failErr != nil {
			return false, fmt.Errorf("mark extraction failed: %w", failErr)
		}
		return false, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode extraction payload: %w", err)
	}
	processedAt := uc.now()
	confidence := result.Confidence
	row.Status = domain.ExtractionCompleted
	row.DocumentType = result.DocumentType
	row.ExtractedData = payload
	row.ConfidenceScore = &confidence
	row.ProcessedAt = &processedAt
	row.UpdatedAt = processedAt
	updated, err := uc.ledger.Complete(context.WithoutCancel(ctx), row)
	if err != nil {
		return false, fmt.Errorf("complete extraction row: %w", err)
	}
	if !updated {
		slog.Info("document_extraction_superseded", "tax_return_id", taxReturnID, "document_id", doc.ID)
		return false, nil
	}
	if result.ParseError {
		slog.Warn("document_extraction_unparsed", "tax_return_id", taxReturnID, "document_id", doc.ID)
	}

	acc.add(result)
	uc.observe(OutcomeCompleted)
	return true, nil
}

func (uc *ProcessTaxReturnUseCase) extract(ctx context.Context, doc domain.Document) (domain.ExtractionResult, error) {
	data, err := uc.readDocument(ctx, doc)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	raw, err := uc.extractor.Extract(ctx, data, doc.MimeType)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	return uc.normalizer.Normalize(raw), nil
}

func (uc *ProcessTaxReturnUseCase) readDocument(ctx context.Context, doc domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", doc.Filename, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, uc.limits.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.Filename, err)
	}
	if int64(len(data)) > uc.limits.MaxFileSize {
		return nil, errors.New(uc.limits.sizeMessage())
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document %s is empty", doc.Filename)
	}
	return data, nil
}

func (uc *ProcessTaxReturnUseCase) recordRejection(ctx context.Context, taxReturnID string, doc domain.Document, message string) error {
	now := uc.now()
	row := &domain.DocumentExtraction{
		ID:           uc.newID(),
		TaxReturnID:  taxReturnID,
		DocumentID:   doc.ID,
		Status:       domain.ExtractionFailed,
		ErrorMessage: message,
		ProcessedAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.ledger.Create(context.WithoutCancel(ctx), row); err != nil {
		return fmt.Errorf("create rejected extraction row: %w", err)
	}
	slog.Info("document_rejected", "tax_return_id", taxReturnID, "document_id", doc.ID, "reason", message)
	return nil
}

// apply merges and recalculates in one transaction. The row lock also closes
// the window between the last cancellation check and the commit.
func (uc *ProcessTaxReturnUseCase) apply(ctx context.Context, taxReturnID string, acc accumulated, successes int) error {
	var summary MergeSummary
	var agg domain.Aggregates
	err := uc.returns.WithinTx(ctx, func(ctx context.Context, tx ports.TaxReturnTx) error {
		locked, err := tx.LockTaxReturn(ctx, taxReturnID)
		if err != nil {
			return fmt.Errorf("lock tax return: %w", err)
		}
		if locked.AIStatus == domain.AIStatusCancelled {
			return errRunCancelled
		}

		summary, err = uc.merger.Merge(ctx, tx, taxReturnID, acc.incomes, acc.deductions)
		if err != nil {
			return fmt.Errorf("merge extracted data: %w", err)
		}

		incomes, err := tx.ListIncomeSources(ctx, taxReturnID)
		if err != nil {
			return fmt.Errorf("list income sources: %w", err)
		}
		deductions, err := tx.ListDeductions(ctx, taxReturnID)
		if err != nil {
			return fmt.Errorf("list deductions: %w", err)
		}
		agg = uc.calculator.Recalculate(incomes, deductions, locked.TotalCredits)
		if err := tx.SaveAggregates(ctx, taxReturnID, agg); err != nil {
			return fmt.Errorf("save aggregates: %w", err)
		}

		processedAt := uc.now()
		if err := tx.SetAIStatus(ctx, taxReturnID, domain.AIStatusCompleted, &processedAt); err != nil {
			return fmt.Errorf("set ai status=completed: %w", err)
		}
		return nil
	})
	if errors.Is(err, errRunCancelled) {
		slog.Info("tax_return_process_cancelled", "tax_return_id", taxReturnID, "succeeded", successes)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("tax_return_process_done",
		"tax_return_id", taxReturnID,
		"succeeded", successes,
		"incomes_updated", summary.IncomesUpdated,
		"incomes_created", summary.IncomesCreated,
		"deductions_added", summary.DeductionsAdded,
		"tax_liability", agg.TaxLiability.StringFixed(2),
	)
	return nil
}

func (uc *ProcessTaxReturnUseCase) isCancelled(ctx context.Context, taxReturnID string) (bool, error) {
	status, err := uc.returns.GetAIStatus(ctx, taxReturnID)
	if err != nil {
		return false, fmt.Errorf("read ai status: %w", err)
	}
	return status == domain.AIStatusCancelled, nil
}

func (uc *ProcessTaxReturnUseCase) setStatus(ctx context.Context, taxReturnID string, status domain.AIStatus) error {
	processedAt := uc.now()
	if err := uc.returns.SetAIStatus(ctx, taxReturnID, status, &processedAt); err != nil {
		return fmt.Errorf("set ai status=%s: %w", status, err)
	}
	return nil
}

// fail marks the run failed on a context that outlives the caller's deadline
// so a timed-out attempt does not leave the return stuck in processing.
func (uc *ProcessTaxReturnUseCase) fail(ctx context.Context, taxReturnID string, processErr error) error {
	slog.Error("tax_return_process_failed", "tax_return_id", taxReturnID, "error", processErr.Error())
	if err := uc.returns.SetAIStatus(context.WithoutCancel(ctx), taxReturnID, domain.AIStatusFailed, nil); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, err)
	}
	return processErr
}

func (uc *ProcessTaxReturnUseCase) acquireLease(ctx context.Context, taxReturnID string) (func(context.Context) error, bool, error) {
	if uc.lease == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	release, acquired, err := uc.lease.Acquire(ctx, taxReturnID, uc.limits.LeaseTTL)
	if err != nil || !acquired {
		return nil, acquired, err
	}
	return release, true, nil
}

func (uc *ProcessTaxReturnUseCase) observe(outcome string) {
	if uc.observer != nil {
		uc.observer.ObserveDocument(outcome)
	}
}
