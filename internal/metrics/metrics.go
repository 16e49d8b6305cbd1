// Package metrics exposes Prometheus instrumentation for screening runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the screener's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	SymbolsFetched  *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	BarsPersisted   prometheus.Counter
	RowsPersisted   *prometheus.CounterVec
	ChunkFailures   prometheus.Counter
	Recommendations prometheus.Gauge
	Runs            *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_provider_calls_total",
				Help: "Provider calls by provider, operation and outcome",
			},
			[]string{"provider", "op", "outcome"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screener_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "op"},
		),
		SymbolsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_symbols_fetched_total",
				Help: "Symbols processed by the batch fetcher by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "screener_batch_duration_seconds",
				Help:    "Time spent fetching one batch, excluding cooldown",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		BarsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "screener_bars_persisted_total",
				Help: "Daily bars written to the store",
			},
		),
		RowsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_rows_persisted_total",
				Help: "Rows upserted by table",
			},
			[]string{"table"},
		),
		ChunkFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "screener_chunk_failures_total",
				Help: "Bar chunks that failed to commit",
			},
		),
		Recommendations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "screener_recommendations",
				Help: "Size of the latest recommendation set",
			},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_runs_total",
				Help: "Pipeline runs by status",
			},
			[]string{"status"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "screener_last_run_timestamp_seconds",
				Help: "Unix time of the last finished run",
			},
		),
	}
	m.registry.MustRegister(
		m.ProviderCalls, m.ProviderLatency, m.SymbolsFetched, m.BatchDuration,
		m.BarsPersisted, m.RowsPersisted, m.ChunkFailures, m.Recommendations,
		m.Runs, m.LastRun,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProviderCall(provider, op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(provider, op, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider, op).Observe(d.Seconds())
}

func (m *Metrics) ObserveSymbol(outcome string) {
	if m == nil {
		return
	}
	m.SymbolsFetched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(d.Seconds())
}

func (m *Metrics) AddRows(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsPersisted.WithLabelValues(table).Add(float64(n))
	if table == "stock_daily" {
		m.BarsPersisted.Add(float64(n))
	}
}

func (m *Metrics) IncChunkFailure() {
	if m == nil {
		return
	}
	m.ChunkFailures.Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, recommendations int, at time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.Recommendations.Set(float64(recommendations))
	m.LastRun.Set(float64(at.Unix()))
}
