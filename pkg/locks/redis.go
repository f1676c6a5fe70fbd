package locks

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with Redis SET NX leases, suitable for
// multi-node deployments where the API runs more than one replica.
type RedisLocker struct {
	client redis.UniversalClient
	lease  time.Duration
}

// NewRedisLocker connects to Redis using a redis:// URL. A lease of 0 selects
// DefaultLease.
func NewRedisLocker(ctx context.Context, redisURL string, lease time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if lease <= 0 {
		lease = DefaultLease
	}

	return &RedisLocker{client: client, lease: lease}, nil
}

func (l *RedisLocker) lockKey(key string) string {
	return "flowdesk:lock:" + key
}

// Acquire takes the lock with SET NX so only one caller wins. The lease
// expires server-side if the holder crashes before releasing.
func (l *RedisLocker) Acquire(ctx context.Context, key string) error {
	ok, err := l.client.SetNX(ctx, l.lockKey(key), "1", l.lease).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	return nil
}

// Release frees the lock.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	err := l.client.Del(ctx, l.lockKey(key)).Err()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}

	return nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
