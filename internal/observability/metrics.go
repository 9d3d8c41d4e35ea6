package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and the read API.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TickDuration   prometheus.Histogram
	SchedulerUp    prometheus.Gauge
	RowsPurged     prometheus.Counter
	BackfillRows   prometheus.Counter
	FetchDuration  prometheus.Histogram
	KeyOutcomes    *prometheus.CounterVec // labels: outcome={committed,skipped,failed}
	FetchErrors    *prometheus.CounterVec // labels: kind={timeout,unreachable,malformed,other}
	StoreErrors    *prometheus.CounterVec // labels: kind={connection,constraint,query}
	RequestsServed *prometheus.CounterVec // labels: route, status
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.SchedulerUp,
		m.RowsPurged,
		m.BackfillRows,
		m.FetchDuration,
		m.KeyOutcomes,
		m.FetchErrors,
		m.StoreErrors,
		m.RequestsServed,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can construct the pipeline repeatedly without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "ingestion_ticks_total",
			Help:      "Total ingestion ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherdash",
			Name:      "ingestion_tick_duration_seconds",
			Help:      "Duration of a complete fetch-and-persist tick.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherdash",
			Name:      "scheduler_up",
			Help:      "1 when the ingestion loop is active, 0 when shut down.",
		}),
		RowsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "rows_purged_total",
			Help:      "Total rows removed by retention purges.",
		}),
		BackfillRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "backfill_rows_total",
			Help:      "Total synthetic history rows inserted by sparse backfill.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherdash",
			Name:      "provider_fetch_duration_seconds",
			Help:      "Weather provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		KeyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "key_outcomes_total",
			Help:      "Per-city ingestion outcomes by kind.",
		}, []string{"outcome"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "fetch_errors_total",
			Help:      "Provider fetch failures by kind.",
		}, []string{"kind"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "store_errors_total",
			Help:      "Persistence failures by kind.",
		}, []string{"kind"}),
		RequestsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Name:      "requests_served_total",
			Help:      "Read API requests by route and status code.",
		}, []string{"route", "status"}),
	}
}
