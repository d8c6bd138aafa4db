package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/resilience"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "attribution:cache:"

// RedisStore shares cached responses across replicas. Calls go through a
// circuit breaker so a down Redis degrades to cache misses instead of
// stalling every request on dial timeouts.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		breaker: resilience.NewCircuitBreaker("redis_cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		}),
	}
}

// Get retrieves an item; Redis errors and an open breaker are treated as misses
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	found := false

	err := r.breaker.Call(func() error {
		b, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = b, true
		return nil
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		slog.Warn("Redis cache get failed", "error", err)
	}

	return data, found
}

// Set stores an item with the store TTL
func (r *RedisStore) Set(ctx context.Context, key string, data []byte) error {
	return r.breaker.Call(func() error {
		return r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err()
	})
}

// Delete removes an item
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.breaker.Call(func() error {
		return r.client.Del(ctx, redisKeyPrefix+key).Err()
	})
}

// Clear removes every cached response under the store prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.breaker.Call(func() error {
		iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				if err := r.client.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			return r.client.Del(ctx, batch...).Err()
		}
		return nil
	})
}

// Stats reports the number of cached keys, pool usage and breaker state
func (r *RedisStore) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"backend":         "redis",
		"ttl_seconds":     r.ttl.Seconds(),
		"circuit_breaker": r.breaker.Stats(),
	}

	var count int
	err := r.breaker.Call(func() error {
		iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			count++
		}
		return iter.Err()
	})
	if err != nil {
		stats["error"] = err.Error()
	} else {
		stats["total_items"] = count
	}

	if pool := r.client.PoolStats(); pool != nil {
		stats["pool_hits"] = pool.Hits
		stats["pool_misses"] = pool.Misses
		stats["pool_total_conns"] = pool.TotalConns
	}

	return stats
}
