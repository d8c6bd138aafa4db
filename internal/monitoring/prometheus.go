package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "attribution"

// PrometheusMetrics holds the collectors exported on /metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	AttributionRuns     *prometheus.CounterVec
	AttributionFailures *prometheus.CounterVec
	AttributionDuration *prometheus.HistogramVec
	TouchpointsDropped  prometheus.Counter
	BatchSize           prometheus.Histogram
	CacheLookups        *prometheus.CounterVec
	RateLimitBlocks     *prometheus.CounterVec
}

// NewPrometheusMetrics registers all collectors on a fresh registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()

	p := &PrometheusMetrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		AttributionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Attribution runs by blend method.",
		}, []string{"method"}),
		AttributionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Rejected attribution requests by reason.",
		}, []string{"reason"}),
		AttributionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Engine time per attribution or batch.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"method"}),
		TouchpointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "touchpoints_dropped_total",
			Help:      "Touchpoints removed by preprocessing.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_opportunities",
			Help:      "Opportunities per batch request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		RateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.HTTPRequests,
		p.HTTPDuration,
		p.AttributionRuns,
		p.AttributionFailures,
		p.AttributionDuration,
		p.TouchpointsDropped,
		p.BatchSize,
		p.CacheLookups,
		p.RateLimitBlocks,
	)

	return p
}

// Registry exposes the underlying registry
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request
func (p *PrometheusMetrics) ObserveRequest(route, method string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	p.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	p.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
