package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/chocobo244/creatingcustomersegment/internal/errors"
)

// Scope is the dimension a limit window is tracked by
type Scope string

const (
	ScopeIP     Scope = "ip"
	ScopeTenant Scope = "tenant"
)

const keyPattern = "rate:ratelimit:*" // redis_rate prefixes keys with "rate:"

func (s Scope) key(id string) string { return fmt.Sprintf("ratelimit:%s:%s", s, id) }

// ParseScope accepts "ip" or "tenant"
func ParseScope(name string) (Scope, error) {
	switch Scope(name) {
	case ScopeIP, ScopeTenant:
		return Scope(name), nil
	}
	return "", fmt.Errorf("unknown rate limit scope %q", name)
}

// Reset clears one limit window
func (rl *RateLimiter) Reset(ctx context.Context, scope Scope, id string) error {
	key := scope.key(id)

	if !rl.redisClient.IsEnabled() {
		rl.local.reset(key)
	} else if err := rl.redisLimiter.Reset(ctx, key); err != nil {
		return fmt.Errorf("failed to reset %s: %w", key, err)
	}

	slog.Info("Rate limit window reset", "scope", scope, "id", id)
	return nil
}

// ResetAll clears every limit window and reports how many were removed
func (rl *RateLimiter) ResetAll(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		n := rl.local.resetAll()
		slog.Warn("All rate limit windows reset", "count", n, "backend", "memory")
		return n, nil
	}

	client := rl.redisClient.GetClient()
	removed := 0
	iter := client.Scan(ctx, 0, keyPattern, 100).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan keys: %w", err)
	}
	if err := flush(); err != nil {
		return removed, err
	}

	slog.Warn("All rate limit windows reset", "count", removed, "backend", "redis")
	return removed, nil
}

// KeyCount reports how many limit windows are tracked
func (rl *RateLimiter) KeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		return rl.local.size(), nil
	}

	count := 0
	iter := rl.redisClient.GetClient().Scan(ctx, 0, keyPattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan keys: %w", err)
	}
	return count, nil
}

// HandleStatus reports the limits that apply to the caller
func (rl *RateLimiter) HandleStatus(c *gin.Context) {
	status := gin.H{
		"ip":                c.ClientIP(),
		"ip_per_minute":     rl.config.IPLimitPerMin,
		"tenant_per_minute": rl.config.TenantLimitPerMin,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
	if tenant := c.GetHeader(tenantHeader); tenant != "" {
		status["tenant"] = tenant
	}
	c.JSON(http.StatusOK, status)
}

// HandleAdminStats returns limiter state and block counters
func (rl *RateLimiter) HandleAdminStats(c *gin.Context) {
	keys, err := rl.KeyCount(c.Request.Context())
	if err != nil {
		c.Error(apperrors.NewUnavailableError("rate limit store unavailable", err))
		return
	}

	resp := gin.H{
		"total_keys": keys,
		"limiter":    rl.GetStats(),
	}
	if rl.metrics != nil {
		resp["blocks"] = rl.metrics.GetRateLimitStats()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleAdminReset clears the window named by the :scope and :id params
func (rl *RateLimiter) HandleAdminReset(c *gin.Context) {
	scope, err := ParseScope(c.Param("scope"))
	if err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}
	id := c.Param("id")

	if err := rl.Reset(c.Request.Context(), scope, id); err != nil {
		c.Error(apperrors.NewUnavailableError("failed to reset rate limit", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "id": id, "reset": true})
}

// HandleAdminResetAll clears every window
func (rl *RateLimiter) HandleAdminResetAll(c *gin.Context) {
	n, err := rl.ResetAll(c.Request.Context())
	if err != nil {
		c.Error(apperrors.NewUnavailableError("failed to reset rate limits", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
