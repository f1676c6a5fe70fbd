// Package locks provides per-instance advisory locks used to serialize
// concurrent submissions against the same workflow instance.
package locks

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired indicates the lock is currently held by another caller.
var ErrNotAcquired = errors.New("lock not acquired")

// DefaultLease bounds how long a crashed holder can keep a lock.
const DefaultLease = 30 * time.Second

// Locker acquires and releases named locks. Acquire fails fast with
// ErrNotAcquired when the lock is held; it does not block.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	Close() error
}
