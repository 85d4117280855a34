package resilience

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out calls to a quota-bound provider. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows perMinute calls with a burst of one. Non-positive rates
// disable pacing.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		return nil
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for call slot: %w", err)
	}
	return nil
}
