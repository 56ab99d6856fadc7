package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the multi-instance Store. INCR is the atomic
// increment-and-read primitive; the key TTL is the window. Expired windows
// disappear on their own, so no sweep is needed.
type RedisStore struct {
	client   *redis.Client
	limit    int
	duration time.Duration
	prefix   string
}

func NewRedisStore(client *redis.Client, limit int, duration time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		limit:    limit,
		duration: duration,
		prefix:   "rl:",
	}
}

func (s *RedisStore) Check(ctx context.Context, key string) (Decision, error) {
	count, err := s.client.Get(ctx, s.prefix+key).Int()
	if err != nil && err != redis.Nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	d := s.decision(ctx, key, count)
	d.Allowed = count < s.limit
	return d, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (Decision, error) {
	full := s.prefix + key

	count, err := s.client.Incr(ctx, full).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment: %w", err)
	}
	if count == 1 {
		// First hit opens the window.
		if err := s.client.PExpire(ctx, full, s.duration).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return s.decision(ctx, key, int(count)), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

func (s *RedisStore) decision(ctx context.Context, key string, count int) Decision {
	resetAt := time.Now().Add(s.duration)
	if ttl, err := s.client.PTTL(ctx, s.prefix+key).Result(); err == nil && ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= s.limit,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
