package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/tax-returns/abc/ai-status":        "/v1/tax-returns/{id}/ai-status",
		"/v1/tax-returns/abc/extractions.xlsx": "/v1/tax-returns/{id}/extractions.xlsx",
		"/v1/tax-returns/abc":                  "/v1/tax-returns/{id}",
		"/healthz":                             "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPMiddlewareCountsByNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/tax-returns/"+id+"/ai-processing", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/tax-returns/{id}/ai-processing", "202"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if testutil.ToFloat64(m.requestInFlight) != 0 {
		t.Fatalf("in-flight gauge not released")
	}
}

func TestWorkerMetricsRecordRunsAndDocuments(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartRun()
	m.ObserveAttempt()
	m.ObserveDocument("completed")
	m.ObserveDocument("rejected_type")
	m.ObserveDocument("completed")
	m.FinishRun(2*time.Second, nil)

	m.StartRun()
	m.FinishRun(time.Second, errors.New("db down"))

	if got := testutil.ToFloat64(m.documentTotal.WithLabelValues("worker", "completed")); got != 2 {
		t.Fatalf("expected 2 completed documents, got %v", got)
	}
	if got := testutil.ToFloat64(m.runTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if testutil.ToFloat64(m.runInFlight) != 0 {
		t.Fatalf("in-flight gauge not released")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "taxprep_worker_documents_total") {
		t.Fatalf("metrics output missing documents counter")
	}
}
