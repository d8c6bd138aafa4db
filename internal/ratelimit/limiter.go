package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"

	"github.com/chocobo244/creatingcustomersegment/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin     int // requests per minute per client IP
	TenantLimitPerMin int // attribution requests per minute per tenant
	BurstMultiplier   int // in-memory bucket size as a multiple of the limit
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:     120,
		TenantLimitPerMin: 600,
		BurstMultiplier:   1,
		CleanupInterval:   time.Hour,
	}
}

// Result is the outcome of one limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter enforces limits in Redis when available and in memory otherwise.
// A Redis failure degrades that check to the in-memory buckets.
type RateLimiter struct {
	redisClient  *RedisClient
	redisLimiter *redis_rate.Limiter
	local        *buckets
	config       Config
	metrics      *monitoring.Metrics

	done chan struct{}
	once sync.Once
}

func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.BurstMultiplier < 1 {
		config.BurstMultiplier = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		local:       newBuckets(config.BurstMultiplier),
		config:      config,
		metrics:     metrics,
		done:        make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Rate limiter using Redis", "ip_per_min", config.IPLimitPerMin, "tenant_per_min", config.TenantLimitPerMin)
	} else {
		slog.Warn("Rate limiter using in-memory buckets; limits are per replica")
	}

	go rl.sweepLoop()
	return rl
}

// Config returns the active limits
func (rl *RateLimiter) Config() Config {
	return rl.config
}

// Close stops the background sweep
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.allow(ctx, ScopeIP.key(ip), rl.config.IPLimitPerMin)
}

func (rl *RateLimiter) AllowTenant(ctx context.Context, tenant string) (*Result, error) {
	return rl.allow(ctx, ScopeTenant.key(tenant), rl.config.TenantLimitPerMin)
}

// allow checks one per-minute window; a non-positive limit disables it
func (rl *RateLimiter) allow(ctx context.Context, key string, limit int) (*Result, error) {
	if limit <= 0 {
		return &Result{Allowed: true, ResetAt: time.Now()}, nil
	}

	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.PerMinute(limit))
		if err == nil {
			return &Result{
				Allowed:    res.Allowed > 0,
				Limit:      res.Limit.Rate,
				Remaining:  res.Remaining,
				ResetAt:    time.Now().Add(res.ResetAfter),
				RetryAfter: res.RetryAfter,
			}, nil
		}

		slog.Warn("Redis rate limit check failed, using in-memory bucket", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
		return rl.local.take(key, limit, time.Minute), nil
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.local.take(key, limit, time.Minute), nil
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			if n := rl.local.sweep(maxLocalBuckets); n > 0 {
				slog.Info("Dropped in-memory rate limit buckets", "count", n)
			}
		}
	}
}

// GetStats returns limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"redis_enabled":        rl.redisClient.IsEnabled(),
		"local_buckets":        rl.local.size(),
		"ip_limit_per_min":     rl.config.IPLimitPerMin,
		"tenant_limit_per_min": rl.config.TenantLimitPerMin,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}
