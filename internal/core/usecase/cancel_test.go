package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

func newCancelFixture(status domain.AIStatus, preparerID *string) (*memoryStore, *CancelProcessingUseCase) {
	tr := newTaxReturn("tr-1", "client-1", status)
	tr.PreparerID = preparerID
	store := newMemoryStore(tr)
	store.extractions = []domain.DocumentExtraction{
		{ID: "ex-1", TaxReturnID: "tr-1", DocumentID: "doc-1", Status: domain.ExtractionCompleted},
		{ID: "ex-2", TaxReturnID: "tr-1", DocumentID: "doc-2", Status: domain.ExtractionProcessing},
	}
	return store, NewCancelProcessingUseCase(store)
}

func TestCancelByPreparerFailsInFlightRows(t *testing.T) {
	store, uc := newCancelFixture(domain.AIStatusProcessing, nil)

	view, err := uc.Cancel(context.Background(), domain.Actor{UserID: "prep-1", Role: domain.RolePreparer}, "tr-1")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if view.Status != domain.AIStatusCancelled || store.returns["tr-1"].AIStatus != domain.AIStatusCancelled {
		t.Fatalf("expected cancelled, got %s", store.returns["tr-1"].AIStatus)
	}
	if store.extractions[0].Status != domain.ExtractionCompleted {
		t.Fatalf("completed rows must not change")
	}
	if store.extractions[1].Status != domain.ExtractionFailed || store.extractions[1].ErrorMessage != "Cancelled by accountant" {
		t.Fatalf("unexpected in-flight row: %+v", store.extractions[1])
	}
}

func TestCancelPendingRunByAdmin(t *testing.T) {
	store, uc := newCancelFixture(domain.AIStatusPending, strPtr("prep-1"))

	if _, err := uc.Cancel(context.Background(), domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}, "tr-1"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if store.returns["tr-1"].AIStatus != domain.AIStatusCancelled {
		t.Fatalf("expected cancelled")
	}
}

func TestCancelForbidden(t *testing.T) {
	cases := map[string]domain.Actor{
		"client":              {UserID: "client-1", Role: domain.RoleClient},
		"unassigned preparer": {UserID: "prep-2", Role: domain.RolePreparer},
	}
	for name, actor := range cases {
		t.Run(name, func(t *testing.T) {
			store, uc := newCancelFixture(domain.AIStatusProcessing, strPtr("prep-1"))

			_, err := uc.Cancel(context.Background(), actor, "tr-1")
			if !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
			if store.returns["tr-1"].AIStatus != domain.AIStatusProcessing {
				t.Fatalf("status must be unchanged, got %s", store.returns["tr-1"].AIStatus)
			}
			if store.extractions[1].Status != domain.ExtractionProcessing {
				t.Fatalf("rows must be unchanged")
			}
		})
	}
}

func TestCancelAssignedPreparer(t *testing.T) {
	store, uc := newCancelFixture(domain.AIStatusProcessing, strPtr("prep-1"))

	if _, err := uc.Cancel(context.Background(), domain.Actor{UserID: "prep-1", Role: domain.RolePreparer}, "tr-1"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if store.returns["tr-1"].AIStatus != domain.AIStatusCancelled {
		t.Fatalf("expected cancelled")
	}
}

func TestCancelFinishedRunConflicts(t *testing.T) {
	store, uc := newCancelFixture(domain.AIStatusCompleted, nil)

	_, err := uc.Cancel(context.Background(), domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}, "tr-1")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.returns["tr-1"].AIStatus != domain.AIStatusCompleted || store.extractions[1].Status != domain.ExtractionProcessing {
		t.Fatalf("nothing should change on conflict")
	}
}
