package locks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLocker is a process-local Locker for single-node deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	lease time.Duration
}

// NewMemoryLocker creates a memory locker. A lease of 0 selects DefaultLease.
func NewMemoryLocker(lease time.Duration) *MemoryLocker {
	if lease <= 0 {
		lease = DefaultLease
	}

	return &MemoryLocker{
		held:  make(map[string]time.Time),
		lease: lease,
	}
}

// Acquire takes the lock unless a live lease already holds it.
func (l *MemoryLocker) Acquire(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	l.held[key] = time.Now().Add(l.lease)

	return nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)

	return nil
}

func (l *MemoryLocker) Close() error {
	return nil
}
