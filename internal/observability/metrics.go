package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline. Feed-labelled series use the configured feed names,
// e.g. firms-24h, firms-7d, aemet-forecast.
type Metrics struct {
	RecordsFetched      *prometheus.CounterVec
	RecordsNormalized   *prometheus.CounterVec
	NormalizationErrors *prometheus.CounterVec // labels: feed, reason
	RejectedByGeofence  *prometheus.CounterVec
	RecordsInserted     *prometheus.CounterVec
	DuplicatesSkipped   *prometheus.CounterVec
	PrunedByAge         *prometheus.CounterVec
	PrunedByGeofence    *prometheus.CounterVec
	SubUnitFailures     *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	PipelineRunning     prometheus.Gauge

	// Publisher metrics.
	DetectionsPublished prometheus.Counter
	PublisherEnabled    prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsFetched,
		m.RecordsNormalized,
		m.NormalizationErrors,
		m.RejectedByGeofence,
		m.RecordsInserted,
		m.DuplicatesSkipped,
		m.PrunedByAge,
		m.PrunedByGeofence,
		m.SubUnitFailures,
		m.RunDuration,
		m.PipelineRunning,
		m.DetectionsPublished,
		m.PublisherEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	const ns = "hotspot_ingest"
	byFeed := []string{"feed"}

	return &Metrics{
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "records_fetched_total",
			Help:      "Raw rows fetched from a feed before normalization.",
		}, byFeed),
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "records_normalized_total",
			Help:      "Rows successfully coerced into canonical records.",
		}, byFeed),
		NormalizationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "normalization_errors_total",
			Help:      "Rows dropped during normalization, by reason.",
		}, []string{"feed", "reason"}),
		RejectedByGeofence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rejected_by_geofence_total",
			Help:      "Normalized records classified outside the target region.",
		}, byFeed),
		RecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "records_inserted_total",
			Help:      "Records newly written to the store.",
		}, byFeed),
		DuplicatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "duplicates_skipped_total",
			Help:      "Insert attempts absorbed by the uniqueness constraint.",
		}, byFeed),
		PrunedByAge: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pruned_by_age_total",
			Help:      "Stored records deleted for falling outside the retention window.",
		}, byFeed),
		PrunedByGeofence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pruned_by_geofence_total",
			Help:      "Stored records deleted after re-evaluation under the current geofence policy.",
		}, byFeed),
		SubUnitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sub_unit_failures_total",
			Help:      "Per-region fetches that failed permanently or exhausted their attempt budget.",
		}, byFeed),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of one full feed run, pacing included.",
			Buckets:   []float64{1, 5, 15, 60, 120, 300, 600, 1200},
		}, byFeed),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		DetectionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "detections_published_total",
			Help:      "Accepted detections published to the downstream topic.",
		}),
		PublisherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "publisher_enabled",
			Help:      "1 when the Kafka publisher is enabled, 0 otherwise.",
		}),
	}
}
