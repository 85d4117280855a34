package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/taxbridge/taxprep/internal/config"
	"github.com/taxbridge/taxprep/internal/core/domain"
)

const (
	testReturnID    = "7f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f"
	testClientToken = "client-token"
	testStaffToken  = "preparer-token"
)

type verifierFake struct{}

func (verifierFake) Verify(token string) (domain.Actor, error) {
	switch token {
	case testClientToken:
		return domain.Actor{UserID: "client-1", Role: domain.RoleClient}, nil
	case testStaffToken:
		return domain.Actor{UserID: "preparer-1", Role: domain.RolePreparer}, nil
	default:
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("unknown token"))
	}
}

type servicesFake struct {
	err        error
	rows       []domain.DocumentExtraction
	lastActor  domain.Actor
	lastID     string
	calls      int
	exportBody string
}

func (f *servicesFake) record(actor domain.Actor, id string) {
	f.lastActor = actor
	f.lastID = id
	f.calls++
}

func (f *servicesFake) view(id string, status domain.AIStatus) domain.AIStatusView {
	return domain.AIStatusView{TaxReturnID: id, Status: status}
}

func (f *servicesFake) Trigger(_ context.Context, actor domain.Actor, id string) (domain.AIStatusView, error) {
	f.record(actor, id)
	if f.err != nil {
		return domain.AIStatusView{}, f.err
	}
	return f.view(id, domain.AIStatusPending), nil
}

func (f *servicesFake) GetAIStatus(_ context.Context, actor domain.Actor, id string) (domain.AIStatusView, error) {
	f.record(actor, id)
	if f.err != nil {
		return domain.AIStatusView{}, f.err
	}
	view := f.view(id, domain.AIStatusCompleted)
	view.RefundAmount = "586.00"
	return view, nil
}

func (f *servicesFake) Cancel(_ context.Context, actor domain.Actor, id string) (domain.AIStatusView, error) {
	f.record(actor, id)
	if f.err != nil {
		return domain.AIStatusView{}, f.err
	}
	return f.view(id, domain.AIStatusCancelled), nil
}

func (f *servicesFake) ListExtractions(_ context.Context, actor domain.Actor, id string) ([]domain.DocumentExtraction, error) {
	f.record(actor, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *servicesFake) ExportExtractions(_ context.Context, actor domain.Actor, id string, w io.Writer) error {
	f.record(actor, id)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.exportBody)
	return err
}

func newTestHandler(t *testing.T, cfg config.Config, fake *servicesFake, opts ...Option) http.Handler {
	t.Helper()
	rt, err := NewRouter(cfg, Services{
		Trigger: fake,
		Status:  fake,
		Cancel:  fake,
		Audit:   fake,
	}, verifierFake{}, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return rt.Handler()
}
