package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "obs_series"

// Metrics holds the Prometheus collectors for ingestion, series tracking and queries.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	ExtremaPublished prometheus.Counter
	ParseErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge
	IngestEnabled    prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Series tracking metrics.
	ExtremaUpdates  *prometheus.CounterVec // labels: operation={insert,delete}, outcome={changed,unchanged,error}
	ConflictRetries prometheus.Counter
	SeriesCache     *prometheus.CounterVec // labels: result={hit,miss}

	// Query metrics.
	QueryDuration          *prometheus.HistogramVec // labels: mode={plain,first,latest}
	MergeBuckets           prometheus.Histogram
	ResponseSizeRejections prometheus.Counter
}

// NewMetrics creates all collectors and registers them with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as
// many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total observation messages read from the source topic.",
		}),
		ExtremaPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extrema_published_total",
			Help:      "Total series extrema updates written to the sink topic.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total observation messages rejected as invalid.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingest pipeline is active, 0 when shut down.",
		}),
		IngestEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_enabled",
			Help:      "1 when Kafka ingestion is enabled, 0 otherwise.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-track-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ExtremaUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extrema_updates_total",
			Help:      "Tracked inserts and deletes by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extrema_conflict_retries_total",
			Help:      "Read-modify-write cycles retried after a concurrent series update.",
		}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_cache_total",
			Help:      "Series extrema cache lookups by result.",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Observation query duration by temporal mode.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"mode"}),
		MergeBuckets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_buckets",
			Help:      "Number of consolidated series per merged response.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		ResponseSizeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_size_rejections_total",
			Help:      "Queries rejected for exceeding the response value ceiling.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.ExtremaPublished,
		m.ParseErrors,
		m.PipelineRunning,
		m.IngestEnabled,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ExtremaUpdates,
		m.ConflictRetries,
		m.SeriesCache,
		m.QueryDuration,
		m.MergeBuckets,
		m.ResponseSizeRejections,
	}
}
