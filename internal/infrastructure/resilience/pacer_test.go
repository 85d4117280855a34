package resilience

import (
	"context"
	"testing"
	"time"
)

func TestNilPacerNeverWaits(t *testing.T) {
	var pacer *Pacer
	if NewPacer(0) != nil {
		t.Fatalf("expected disabled pacer for zero rate")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("nil pacer returned error: %v", err)
	}
}

func TestPacerBlocksSecondCallUntilContextEnds(t *testing.T) {
	pacer := NewPacer(1)
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("first call returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pacer.Wait(ctx); err == nil {
		t.Fatalf("expected second call within the same minute to be rejected")
	}
}
