package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAttribution(t *testing.T) {
	prom := NewPrometheusMetrics()
	m := NewMetrics().WithPrometheus(prom)

	m.RecordAttribution("weighted", 5, 1, 2*time.Millisecond)
	m.RecordAttribution("equal_split", 3, 0, time.Millisecond)
	m.RecordAttribution("unattributed", 0, 2, time.Millisecond)
	m.RecordAttributionFailure("invalid_weights")

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["attribution_runs"])
	assert.Equal(t, int64(8), stats["touchpoints_processed"])
	assert.Equal(t, int64(3), stats["touchpoints_dropped"])
	assert.Equal(t, int64(1), stats["unattributed_runs"])
	assert.Equal(t, int64(1), stats["equal_split_runs"])
	assert.Equal(t, int64(1), stats["attribution_failures"])

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.AttributionRuns.WithLabelValues("weighted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(prom.TouchpointsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.AttributionFailures.WithLabelValues("invalid_weights")))
}

func TestMetrics_CacheAndRateLimit(t *testing.T) {
	prom := NewPrometheusMetrics()
	m := NewMetrics().WithPrometheus(prom)

	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheMiss()
	m.IncrementRateLimitIPBlock()
	m.IncrementRateLimitTenantBlock()

	stats := m.GetStats()
	assert.InDelta(t, 100.0/3, stats["cache_hit_rate_percent"], 1e-9)
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.CacheLookups.WithLabelValues("miss")))

	rl := m.GetRateLimitStats()
	assert.Equal(t, int64(1), rl["ip_blocks"])
	assert.Equal(t, int64(1), rl["tenant_blocks"])
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.RateLimitBlocks.WithLabelValues("tenant")))

	m.Reset()
	assert.Equal(t, int64(0), m.GetStats()["cache_hits"])
}

func TestMetrics_Percentiles(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.GetPercentileResponseTime(50))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))

	for i := 0; i < 2*maxResponseSamples; i++ {
		m.RecordResponseTime(time.Millisecond)
	}
	assert.Equal(t, maxResponseSamples, m.latency.len())
	assert.Equal(t, time.Millisecond, m.GetPercentileResponseTime(99), "old samples are overwritten")

	m.Reset()
	m.RecordResponseTime(10 * time.Millisecond)
	m.RecordResponseTime(30 * time.Millisecond)
	assert.Equal(t, 20.0, m.GetStats()["avg_response_time_ms"])
}

func TestLogger_AttributionLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.AttributionLogger("opp-1", "weighted", 4, 1, 1000, 3*time.Millisecond, false)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Attribution Completed", entry["msg"])
	assert.Equal(t, "opp-1", entry["opportunity_id"])
	assert.Equal(t, "weighted", entry["method"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "time")
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.CacheLogger("get", "0123456789abcdef", true, 1)
	assert.Empty(t, buf.String())

	logger.SetLevel(slog.LevelDebug)
	logger.CacheLogger("get", "0123456789abcdef", true, 1)
	assert.Contains(t, buf.String(), "01234567...")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)
	prom := NewPrometheusMetrics()
	metrics := NewMetrics().WithPrometheus(prom)

	router := gin.New()
	router.Use(TracingMiddleware(NewTracer("test", logger)), MonitoringMiddleware(metrics, logger))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})
	router.GET("/metrics", gin.WrapH(prom.Handler()))

	t.Run("generates request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		id := w.Header().Get("X-Request-ID")
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagates caller request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Body.String())
		assert.Contains(t, buf.String(), `"request_id":"abc-123"`)
	})

	t.Run("records metrics", func(t *testing.T) {
		assert.Equal(t, 2.0, testutil.ToFloat64(prom.HTTPRequests.WithLabelValues("/ping", "GET", "200")))
		assert.Equal(t, int64(2), metrics.GetStatusCodeDistribution()[200])
	})

	t.Run("exposes prometheus text format", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "attribution_http_requests_total"))
	})

	t.Run("logs tenant and skips health checks at info", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Tenant-ID", "acme")
		router.ServeHTTP(httptest.NewRecorder(), req)
		assert.Contains(t, buf.String(), `"tenant":"acme"`)
		assert.Contains(t, buf.String(), `"route":"/ping"`)

		buf.Reset()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.NotContains(t, buf.String(), "HTTP Request")
	})
}

func TestTracer_NestedSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewTracer("test", NewLoggerWithWriter(&buf, slog.LevelDebug))

	root, ctx := tracer.StartSpan(context.Background(), "root")
	err := tracer.TraceFunction(ctx, "child", func(ctx context.Context) error {
		child := SpanFromContext(ctx)
		require.NotNil(t, child)
		assert.Equal(t, root.TraceID, child.TraceID)
		assert.Equal(t, root.SpanID, child.ParentID)
		return errors.New("child failed")
	})
	tracer.EndSpan(root, nil)

	assert.EqualError(t, err, "child failed")
	assert.Contains(t, buf.String(), `"status":"error"`)
	assert.Nil(t, SpanFromContext(context.Background()))
}
