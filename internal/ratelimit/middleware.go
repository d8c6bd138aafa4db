package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const tenantHeader = "X-Tenant-ID"

// IPRateLimitMiddleware limits requests per client IP
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// never block on limiter failure
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			reject(c, result, "rate limit exceeded for IP",
				fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit))
			return
		}

		c.Next()
	}
}

// TenantRateLimitMiddleware limits attribution requests per X-Tenant-ID.
// Requests without a tenant header pass through.
func (rl *RateLimiter) TenantRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(tenantHeader)
		if tenant == "" {
			c.Next()
			return
		}

		result, err := rl.AllowTenant(c.Request.Context(), tenant)
		if err != nil {
			slog.Error("Tenant rate limit check failed", "tenant", tenant, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit-Tenant", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitTenantBlock()
			}
			reject(c, result, "rate limit exceeded for tenant",
				fmt.Sprintf("Tenant %s has exceeded %d attribution requests per minute", tenant, result.Limit))
			return
		}

		c.Next()
	}
}

func setHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header(prefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(prefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(prefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func reject(c *gin.Context, result *Result, errMsg, message string) {
	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       errMsg,
		"message":     message,
		"retry_after": retryAfter,
		"reset_at":    result.ResetAt.Unix(),
	})
}
