package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds in-process counters surfaced by /health and /metrics.
// Updates are mirrored into Prometheus collectors when attached.
type Metrics struct {
	RequestCount int64
	ErrorCount   int64
	CacheHits    int64
	CacheMisses  int64

	AttributionRuns      int64
	AttributionFailures  int64
	BatchRuns            int64
	TouchpointsProcessed int64
	TouchpointsDropped   int64
	UnattributedRuns     int64
	EqualSplitRuns       int64
	ModelComparisons     int64

	RateLimitIPBlocks      int64
	RateLimitTenantBlocks  int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	timedRequests int64
	totalLatency  int64 // nanoseconds

	mu        sync.RWMutex
	startTime time.Time
	latency   *latencyWindow
	byStatus  map[int]int64

	prom *PrometheusMetrics
}

// NewMetrics creates an empty metrics set
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		latency:   newLatencyWindow(maxResponseSamples),
		byStatus:  make(map[int]int64),
	}
}

// WithPrometheus mirrors every counter update into the given collectors
func (m *Metrics) WithPrometheus(p *PrometheusMetrics) *Metrics {
	m.prom = p
	return m
}

// Prometheus returns the attached collectors, or nil
func (m *Metrics) Prometheus() *PrometheusMetrics {
	return m.prom
}

func (m *Metrics) IncrementRequest() { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()   { atomic.AddInt64(&m.ErrorCount, 1) }

func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
	if m.prom != nil {
		m.prom.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
	if m.prom != nil {
		m.prom.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// RecordAttribution records one engine run
func (m *Metrics) RecordAttribution(method string, touchpoints, dropped int, duration time.Duration) {
	atomic.AddInt64(&m.AttributionRuns, 1)
	atomic.AddInt64(&m.TouchpointsProcessed, int64(touchpoints))
	atomic.AddInt64(&m.TouchpointsDropped, int64(dropped))

	switch method {
	case "unattributed":
		atomic.AddInt64(&m.UnattributedRuns, 1)
	case "equal_split":
		atomic.AddInt64(&m.EqualSplitRuns, 1)
	}

	if m.prom != nil {
		m.prom.AttributionRuns.WithLabelValues(method).Inc()
		m.prom.AttributionDuration.WithLabelValues(method).Observe(duration.Seconds())
		m.prom.TouchpointsDropped.Add(float64(dropped))
	}
}

// RecordAttributionFailure counts a rejected attribution request by reason
func (m *Metrics) RecordAttributionFailure(reason string) {
	atomic.AddInt64(&m.AttributionFailures, 1)
	if m.prom != nil {
		m.prom.AttributionFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RecordBatch(opportunities int, duration time.Duration) {
	atomic.AddInt64(&m.BatchRuns, 1)
	if m.prom != nil {
		m.prom.BatchSize.Observe(float64(opportunities))
		m.prom.AttributionDuration.WithLabelValues("batch").Observe(duration.Seconds())
	}
}

func (m *Metrics) IncrementModelComparison() { atomic.AddInt64(&m.ModelComparisons, 1) }

// RecordResponseTime adds a sample to the running mean and the percentile window
func (m *Metrics) RecordResponseTime(d time.Duration) {
	atomic.AddInt64(&m.timedRequests, 1)
	atomic.AddInt64(&m.totalLatency, d.Nanoseconds())

	m.mu.Lock()
	m.latency.add(d)
	m.mu.Unlock()
}

func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.mu.Lock()
	m.byStatus[statusCode]++
	m.mu.Unlock()
}

// GetPercentileResponseTime reads the p-th percentile of recent samples
func (m *Metrics) GetPercentileResponseTime(p float64) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latency.percentile(p)
}

// GetStatusCodeDistribution returns a copy of the per-status request counts
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]int64, len(m.byStatus))
	for code, n := range m.byStatus {
		out[code] = n
	}
	return out
}

func (m *Metrics) averageResponseTime() time.Duration {
	n := atomic.LoadInt64(&m.timedRequests)
	if n == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.totalLatency) / n)
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// GetStats returns a snapshot of every counter
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errs := atomic.LoadInt64(&m.ErrorCount)
	hits := atomic.LoadInt64(&m.CacheHits)
	misses := atomic.LoadInt64(&m.CacheMisses)

	m.mu.RLock()
	started := m.startTime
	m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":         time.Since(started).Seconds(),
		"start_time":             started.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            errs,
		"error_rate_percent":     percent(errs, requests),
		"cache_hits":             hits,
		"cache_misses":           misses,
		"cache_hit_rate_percent": percent(hits, hits+misses),

		"avg_response_time_ms":     millis(m.averageResponseTime()),
		"p50_response_time_ms":     millis(m.GetPercentileResponseTime(50)),
		"p95_response_time_ms":     millis(m.GetPercentileResponseTime(95)),
		"p99_response_time_ms":     millis(m.GetPercentileResponseTime(99)),
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"attribution_runs":      atomic.LoadInt64(&m.AttributionRuns),
		"attribution_failures":  atomic.LoadInt64(&m.AttributionFailures),
		"batch_runs":            atomic.LoadInt64(&m.BatchRuns),
		"touchpoints_processed": atomic.LoadInt64(&m.TouchpointsProcessed),
		"touchpoints_dropped":   atomic.LoadInt64(&m.TouchpointsDropped),
		"unattributed_runs":     atomic.LoadInt64(&m.UnattributedRuns),
		"equal_split_runs":      atomic.LoadInt64(&m.EqualSplitRuns),
		"model_comparisons":     atomic.LoadInt64(&m.ModelComparisons),
	}
}

func (m *Metrics) counters() []*int64 {
	return []*int64{
		&m.RequestCount, &m.ErrorCount, &m.CacheHits, &m.CacheMisses,
		&m.AttributionRuns, &m.AttributionFailures, &m.BatchRuns, &m.TouchpointsProcessed,
		&m.TouchpointsDropped, &m.UnattributedRuns, &m.EqualSplitRuns, &m.ModelComparisons,
		&m.RateLimitIPBlocks, &m.RateLimitTenantBlocks, &m.RateLimitRedisErrors, &m.RateLimitFallbackCount,
		&m.timedRequests, &m.totalLatency,
	}
}

// Reset zeroes every counter and restarts the uptime clock
func (m *Metrics) Reset() {
	for _, c := range m.counters() {
		atomic.StoreInt64(c, 0)
	}

	m.mu.Lock()
	m.latency.reset()
	m.byStatus = make(map[int]int64)
	m.startTime = time.Now()
	m.mu.Unlock()
}

func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
	if m.prom != nil {
		m.prom.RateLimitBlocks.WithLabelValues("ip").Inc()
	}
}

func (m *Metrics) IncrementRateLimitTenantBlock() {
	atomic.AddInt64(&m.RateLimitTenantBlocks, 1)
	if m.prom != nil {
		m.prom.RateLimitBlocks.WithLabelValues("tenant").Inc()
	}
}

// IncrementRateLimitRedisError counts a Redis failure that forced the in-memory limiter
func (m *Metrics) IncrementRateLimitRedisError() { atomic.AddInt64(&m.RateLimitRedisErrors, 1) }

// IncrementRateLimitFallback counts a check served by the in-memory limiter
func (m *Metrics) IncrementRateLimitFallback() { atomic.AddInt64(&m.RateLimitFallbackCount, 1) }

// GetRateLimitStats returns rate limiting counters
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":      atomic.LoadInt64(&m.RateLimitIPBlocks),
		"tenant_blocks":  atomic.LoadInt64(&m.RateLimitTenantBlocks),
		"redis_errors":   atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count": atomic.LoadInt64(&m.RateLimitFallbackCount),
	}
}

// latencyWindow keeps the most recent samples in a ring
type latencyWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *latencyWindow) percentile(p float64) time.Duration {
	n := w.len()
	if n == 0 {
		return 0
	}

	sorted := make([]time.Duration, n)
	copy(sorted, w.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(n-1) * p / 100)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func (w *latencyWindow) reset() {
	w.next = 0
	w.full = false
}
