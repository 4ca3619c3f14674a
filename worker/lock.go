package worker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// SweepLock serializes sweeps per store across engine nodes. Two nodes
// sweeping the same store at once could double-send; different stores never
// share conversations and need no coordination.
type SweepLock interface {
	Acquire(ctx context.Context, storeID string) (bool, error)
	Release(ctx context.Context, storeID string)
}

// RedisSweepLock uses a SETNX key with a TTL as the lock. The TTL bounds how
// long a crashed node can block a store.
type RedisSweepLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisSweepLock(client *redis.Client, ttl time.Duration) *RedisSweepLock {
	return &RedisSweepLock{Client: client, TTL: ttl}
}

func (l *RedisSweepLock) Acquire(ctx context.Context, storeID string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(storeID), 1, l.TTL).Result()
}

func (l *RedisSweepLock) Release(ctx context.Context, storeID string) {
	l.Client.Del(ctx, lockKey(storeID))
}

func lockKey(storeID string) string {
	return "sequence_sweep:" + storeID
}

// NoopSweepLock is used when redis is not configured (single-node deployment).
type NoopSweepLock struct{}

func (NoopSweepLock) Acquire(ctx context.Context, storeID string) (bool, error) { return true, nil }
func (NoopSweepLock) Release(ctx context.Context, storeID string)               {}
