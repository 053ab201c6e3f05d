package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics lives on a private registry: a CLI run has no scrape endpoint, so
// values are flushed to a node-exporter textfile instead.
type Metrics struct {
	registry             *prometheus.Registry
	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	queryErrorsTotal     prometheus.Counter
	queryDurationSeconds prometheus.Histogram
	resultRows           prometheus.Gauge
	resultBytes          prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duck_vd_cache_hits_total",
			Help: "Number of runs served from the result cache.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duck_vd_cache_misses_total",
			Help: "Number of runs that executed a query.",
		}),
		queryErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duck_vd_query_errors_total",
			Help: "Number of query executions that failed.",
		}),
		queryDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "duck_vd_query_duration_seconds",
			Help:    "Query execution latency, including result retrieval.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		resultRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duck_vd_result_rows",
			Help: "Rows in the most recently cached result.",
		}),
		resultBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duck_vd_result_bytes",
			Help: "Size of the most recently cached result file.",
		}),
	}
	m.registry.MustRegister(
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.queryErrorsTotal,
		m.queryDurationSeconds,
		m.resultRows,
		m.resultBytes,
	)
	return m
}

func (m *Metrics) ObserveCacheHit() {
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) ObserveQuery(elapsed time.Duration, rows int, bytes int64) {
	m.cacheMissesTotal.Inc()
	m.queryDurationSeconds.Observe(elapsed.Seconds())
	m.resultRows.Set(float64(rows))
	if bytes < 0 {
		bytes = 0
	}
	m.resultBytes.Set(float64(bytes))
}

func (m *Metrics) ObserveQueryError() {
	m.cacheMissesTotal.Inc()
	m.queryErrorsTotal.Inc()
}

// WriteTextfile is a no-op for an empty path.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
