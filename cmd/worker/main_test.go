package main

import (
	"context"
	"strings"
	"testing"

	"github.com/taxbridge/taxprep/internal/config"
)

func TestRunReturnsBootstrapError(t *testing.T) {
	cfg := config.Config{PostgresDSN: "postgres://taxprep@localhost:notaport/taxprep"}

	err := run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "bootstrap") {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}
