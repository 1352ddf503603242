// Package metrics provides Prometheus instrumentation for nebula-hub.
// Collectors are registered on the default registry through promauto and
// served by the CLI's /metrics endpoint.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("sync_system")
//	result := orch.SyncSystem(ctx, "crm", opts)
//	metrics.ObserveSync("crm", string(result.Status), timer.Stop())
//
//	metrics.QueueJobs.WithLabelValues("sync", "completed").Inc()
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts finished system syncs.
	// Labels: system, status (success/partial/failed)
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_hub_sync_runs_total",
			Help: "Total number of system syncs by final status",
		},
		[]string{"system", "status"},
	)

	// SyncRows counts rows fetched and normalized per table
	SyncRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_hub_sync_rows_total",
			Help: "Total number of rows synchronized",
		},
		[]string{"system", "table"},
	)

	// SyncTableErrors counts tables whose sync failed
	SyncTableErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_hub_sync_table_errors_total",
			Help: "Total number of per-table sync failures",
		},
		[]string{"system", "table"},
	)

	// SyncDuration tracks wall-clock duration of system syncs
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nebula_hub_sync_duration_seconds",
			Help: "Duration of system syncs in seconds",
			Buckets: []float64{
				0.01, // 10ms - empty or tiny systems
				0.1,  // 100ms
				0.5,
				1,
				5,
				15,
				60,  // 1m - large batch ceilings across many tables
				300, // 5m
			},
		},
		[]string{"system"},
	)

	// ConnectorLatency tracks adapter call latency.
	// Labels: kind (postgresql/mysql/...), operation (connect/list_tables/schema/fetch)
	ConnectorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_hub_connector_latency_seconds",
			Help:    "Latency of connector operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"kind", "operation"},
	)

	// RegisteredSystems is the number of systems held by the orchestrator
	RegisteredSystems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nebula_hub_registered_systems",
			Help: "Number of registered source systems",
		},
	)

	// QueueJobs counts job queue events.
	// Labels: queue (sync/index/embedding), outcome (enqueued/completed/failed/fallback)
	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_hub_queue_jobs_total",
			Help: "Total number of queue job events by outcome",
		},
		[]string{"queue", "outcome"},
	)

	// QueueDepth tracks jobs per queue and state, refreshed on every Stats call
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_hub_queue_depth",
			Help: "Current number of jobs per queue and state",
		},
		[]string{"queue", "state"},
	)

	// DocumentsNormalized counts documents produced by the normalizer
	DocumentsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_hub_documents_normalized_total",
			Help: "Total number of normalized documents by entity type",
		},
		[]string{"entity_type"},
	)
)

// ObserveSync records the outcome and duration of one system sync
func ObserveSync(system, status string, d time.Duration) {
	SyncRuns.WithLabelValues(system, status).Inc()
	SyncDuration.WithLabelValues(system).Observe(d.Seconds())
}

// ObserveConnector records the latency of one adapter call
func ObserveConnector(kind, operation string, d time.Duration) {
	ConnectorLatency.WithLabelValues(kind, operation).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the label the timer was created with
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times, each returning the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
