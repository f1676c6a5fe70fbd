package cmd

import (
	"context"
	"fmt"

	"github.com/flowdesk/flowdesk/pkg/locks"
)

// NewLocker creates the per-instance submission locker. An empty redisURL
// selects the in-process locker, which is only safe for a single API replica.
func NewLocker(ctx context.Context, redisURL string) locks.Locker {
	if redisURL == "" {
		return locks.NewMemoryLocker(locks.DefaultLease)
	}

	locker, err := locks.NewRedisLocker(ctx, redisURL, locks.DefaultLease)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis locker: %w", err))
	}

	return locker
}
