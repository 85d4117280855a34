package s3store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T, handler http.HandlerFunc) *Storage {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := New(context.Background(), Config{
		Endpoint:     server.URL,
		Bucket:       "documents",
		AccessKey:    "test",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestOpenReadsObjectWithPathStyle(t *testing.T) {
	var path string
	store := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})

	rc, err := store.Open(context.Background(), "tr-1/w2.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.7" {
		t.Fatalf("unexpected body: %q", data)
	}
	if path != "/documents/tr-1/w2.pdf" {
		t.Fatalf("unexpected request path: %s", path)
	}
}

func TestOpenReportsMissingObject(t *testing.T) {
	store := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
	})

	_, err := store.Open(context.Background(), "tr-1/missing.pdf")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
