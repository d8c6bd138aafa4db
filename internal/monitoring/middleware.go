package monitoring

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	slowRequestThreshold = 5 * time.Second
	tenantHeader         = "X-Tenant-ID"
)

// MonitoringMiddleware records request metrics and logs every request
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		c.Next()

		info := RequestInfo{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Route:     c.FullPath(),
			ClientIP:  c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			RequestID: RequestID(c),
			Tenant:    c.GetHeader(tenantHeader),
			Status:    c.Writer.Status(),
			Duration:  time.Since(start),
		}

		metrics.RecordResponseTime(info.Duration)
		metrics.RecordRequestByStatus(info.Status)
		if p := metrics.Prometheus(); p != nil {
			p.ObserveRequest(info.Route, info.Method, info.Status, info.Duration.Seconds())
		}
		if info.Status >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(info)

		if info.Duration > slowRequestThreshold {
			logger.PerformanceLogger("slow_request", info.Duration.Seconds(), "seconds")
		}
		if info.Status >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", info.Status, info.Method, info.Route))
		}
	}
}
