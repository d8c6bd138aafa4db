package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned by health checks when no Redis is configured
var ErrRedisDisabled = errors.New("redis is disabled")

// RedisClient is the shared connection behind the rate limiter and the
// response cache. A client with no address is disabled and both fall back
// to in-process state.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// RedisOption tunes the connection pool
type RedisOption func(*redis.Options)

// WithPoolSize sets the maximum number of pooled connections
func WithPoolSize(n int) RedisOption {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
			o.MinIdleConns = max(1, n/5)
		}
	}
}

// WithDialTimeout bounds connection setup and the startup ping
func WithDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

// NewRedisClient connects and pings Redis. An unreachable server yields a
// disabled client together with the ping error so callers can keep serving.
func NewRedisClient(addr, password string, db int, opts ...RedisOption) (*RedisClient, error) {
	if addr == "" {
		slog.Warn("Redis address not configured, using in-memory rate limiting and cache")
		return &RedisClient{}, nil
	}

	options := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	slog.Info("Initializing Redis client", "addr", addr, "db", db, "pool_size", options.PoolSize)
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), options.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed, falling back to in-memory rate limiting and cache", "addr", addr, "error", err)
		_ = client.Close()
		return &RedisClient{addr: addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("Redis client connected", "addr", addr)
	return &RedisClient{client: client, enabled: true, addr: addr}, nil
}

// GetClient returns the underlying client, or nil when disabled
func (r *RedisClient) GetClient() *redis.Client {
	if !r.IsEnabled() {
		return nil
	}
	return r.client
}

// IsEnabled reports whether Redis is in use. A nil client is disabled.
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.enabled
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return ErrRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	if !r.IsEnabled() {
		return nil
	}
	slog.Info("Closing Redis client connection")
	return r.client.Close()
}

// GetPoolStats returns connection pool statistics
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() {
		return map[string]interface{}{"enabled": false, "addr": r.addrOrEmpty()}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

func (r *RedisClient) addrOrEmpty() string {
	if r == nil {
		return ""
	}
	return r.addr
}
