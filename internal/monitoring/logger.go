package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger provides structured JSON logging with attribution-specific helpers
type Logger struct {
	*slog.Logger
	out   io.Writer
	level *slog.LevelVar
}

// NewLogger creates a JSON logger writing to stdout at info level
func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout, slog.LevelInfo)
}

// NewLoggerWithWriter creates a JSON logger writing to w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lv,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
		out:    w,
		level:  lv,
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestInfo describes one served HTTP request
type RequestInfo struct {
	Method    string
	Path      string
	Route     string
	ClientIP  string
	UserAgent string
	RequestID string
	Tenant    string
	Status    int
	Duration  time.Duration
}

// RequestLogger logs a served request. Health and metrics scrapes are logged at debug.
func (l *Logger) RequestLogger(r RequestInfo) {
	level := slog.LevelInfo
	if isScrape(r.Path) {
		level = slog.LevelDebug
	}
	l.Log(context.Background(), level, "HTTP Request",
		"method", r.Method,
		"path", r.Path,
		"route", r.Route,
		"ip", r.ClientIP,
		"user_agent", r.UserAgent,
		"request_id", r.RequestID,
		"tenant", r.Tenant,
		"status_code", r.Status,
		"duration_ms", r.Duration.Milliseconds(),
	)
}

func isScrape(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/metrics")
}

// AttributionLogger logs one completed attribution run
func (l *Logger) AttributionLogger(opportunityID, method string, touchpoints, dropped int, value float64, duration time.Duration, cacheHit bool) {
	l.Info("Attribution Completed",
		"opportunity_id", opportunityID,
		"method", method,
		"touchpoints", touchpoints,
		"dropped", dropped,
		"conversion_value", value,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// BatchLogger logs a completed batch run
func (l *Logger) BatchLogger(opportunities, workers int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("Batch Attribution Failed",
			"opportunities", opportunities,
			"workers", workers,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	l.Info("Batch Attribution Completed",
		"opportunities", opportunities,
		"workers", workers,
		"duration_ms", duration.Milliseconds(),
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

// SetLevel changes the minimum level without rebuilding the handler
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

var startTime = time.Now()
