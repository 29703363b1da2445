// Package idempotency remembers completed fan-out work across at-least-once
// redeliveries.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a send marker lives. Redeliveries arrive within
// minutes; a week of memory is plenty and keeps the keyspace from growing
// forever.
const DefaultTTL = 7 * 24 * time.Hour

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	_, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("idempotency get: %w", err)
	}
	return true, nil
}

func (s *RedisStore) MarkSent(ctx context.Context, key string) error {
	// SET NX keeps the first marker's TTL if two workers race
	if err := s.rdb.SetNX(ctx, key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency set: %w", err)
	}
	return nil
}
