package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Asset outcomes used as the "outcome" label
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeCached    = "cached"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds all Prometheus metrics for jsonpns
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics (status server)
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Rewrite metrics
	batchesTotal     prometheus.Counter
	batchDuration    prometheus.Histogram
	assetsTotal      *prometheus.CounterVec
	rewriteDuration  *prometheus.HistogramVec
	diagnosticsTotal *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses a
// fresh registry so that several stages can coexist in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonpns_http_requests_total",
				Help: "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsonpns_http_request_duration_seconds",
				Help:    "Status server request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path", "status"},
		),

		batchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jsonpns_batches_total",
				Help: "Total number of processed asset batches",
			},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jsonpns_batch_duration_seconds",
				Help:    "Time to process one asset batch",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		assetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonpns_assets_total",
				Help: "Total number of assets by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		rewriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsonpns_rewrite_duration_seconds",
				Help:    "Time to rewrite one asset",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"engine"},
		),
		diagnosticsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonpns_diagnostics_total",
				Help: "Total number of recorded diagnostics by kind",
			},
			[]string{"kind"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonpns_cache_lookups_total",
				Help: "Asset cache lookups by result",
			},
			[]string{"result"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsonpns_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// RecordBatch records one finished batch
func (m *Metrics) RecordBatch(duration time.Duration) {
	m.batchesTotal.Inc()
	m.batchDuration.Observe(duration.Seconds())
}

// RecordAsset records the outcome of one asset
func (m *Metrics) RecordAsset(engine, outcome string, duration time.Duration) {
	m.assetsTotal.WithLabelValues(engine, outcome).Inc()
	if outcome != OutcomeCached && outcome != OutcomeSkipped {
		m.rewriteDuration.WithLabelValues(engine).Observe(duration.Seconds())
	}
}

// RecordDiagnostic records one diagnostic
func (m *Metrics) RecordDiagnostic(kind string) {
	m.diagnosticsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// MetricsMiddleware records request metrics for the status server
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		status := statusClass(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler returns a Fiber handler that exposes the registered metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
