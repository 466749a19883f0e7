package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the calculation engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	calcDuration   *prometheus.HistogramVec
	calcsTotal     *prometheus.CounterVec
	externalErrors *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cetIterations  prometheus.Histogram
	findingsTotal  *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		calcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revisional_calc_duration_seconds",
				Help:    "Duration of calculations by operation (preview, full, appendices).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		calcsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revisional_calcs_total",
				Help: "Total calculations by loan kind and outcome.",
			},
			[]string{"kind", "status"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revisional_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revisional_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revisional_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		cetIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "revisional_cet_iterations",
				Help:    "Iterations the CET solver needed to converge.",
				Buckets: []float64{2, 4, 8, 16, 32, 64, 100},
			},
		),
		findingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revisional_findings_total",
				Help: "Statutory findings attached to results, by code.",
			},
			[]string{"code"},
		),
	}
}

// RecordCalcDuration records the duration of a calculation operation.
func (m *Metrics) RecordCalcDuration(operation string, d time.Duration) {
	m.calcDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrCalc increments the calculation counter for a loan kind and outcome.
func (m *Metrics) IncrCalc(kind, status string) {
	m.calcsTotal.WithLabelValues(kind, status).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordCETIterations records how many iterations the solver used.
func (m *Metrics) RecordCETIterations(n int) {
	m.cetIterations.Observe(float64(n))
}

// IncrFinding increments the findings counter for a finding code.
func (m *Metrics) IncrFinding(code string) {
	m.findingsTotal.WithLabelValues(code).Inc()
}

// CacheHitRate returns the observed hit rate of a cache, for the health
// endpoint diagnostics.
func (m *Metrics) CacheHitRate(cache string) float64 {
	hits := getCounterValue(m.cacheHits, cache)
	misses := getCounterValue(m.cacheMisses, cache)
	if hits+misses == 0 {
		return 0
	}
	return hits / (hits + misses)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
