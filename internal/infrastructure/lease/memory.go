package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryLease is the single-process variant used when Redis is not configured.
type MemoryLease struct {
	mu     sync.Mutex
	held   map[string]memoryHold
	now    func() time.Time
	serial uint64
}

type memoryHold struct {
	serial    uint64
	expiresAt time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		held: make(map[string]memoryHold),
		now:  time.Now,
	}
}

func (l *MemoryLease) Acquire(_ context.Context, taxReturnID string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if hold, ok := l.held[taxReturnID]; ok && now.Before(hold.expiresAt) {
		return nil, false, nil
	}
	l.serial++
	serial := l.serial
	l.held[taxReturnID] = memoryHold{serial: serial, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if hold, ok := l.held[taxReturnID]; ok && hold.serial == serial {
			delete(l.held, taxReturnID)
		}
		return nil
	}
	return release, true, nil
}
