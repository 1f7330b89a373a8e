package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLock is a RunLock backed by a Redis lease, so two bot processes
// sharing a database never archive the same month concurrently.
type RedisLock struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLock creates a RedisLock whose leases expire after ttl.
func NewRedisLock(rdb *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return lock.Release, nil
}
