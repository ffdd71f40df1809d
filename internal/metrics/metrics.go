// Package metrics holds the Prometheus collectors for the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wp_sync_runs_total",
			Help: "Total number of sync runs by terminal status",
		},
		[]string{"status"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wp_sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wp_sync_in_progress",
			Help: "1 while a sync run is in flight",
		},
	)

	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wp_sync_items_total",
			Help: "Total number of source items processed by upsert action",
		},
		[]string{"action"}, // created, updated, skipped
	)

	SyncItemErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sync_item_errors_total",
			Help: "Total number of source items that failed to transform or write",
		},
	)

	SyncPageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sync_page_errors_total",
			Help: "Total number of page fetches that ended a run early",
		},
	)

	SyncPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sync_pages_fetched_total",
			Help: "Total number of source pages fetched",
		},
	)

	SyncSkippedTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wp_sync_skipped_triggers_total",
			Help: "Runs not started because another run was in flight",
		},
		[]string{"trigger"}, // schedule, manual
	)

	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wp_sync_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished sync run",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sync_publish_failures_total",
			Help: "Total number of post events that could not be published",
		},
	)

	// 0 closed, 1 half-open, 2 open
	SourceBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wp_source_circuit_breaker_state",
			Help: "State of the content source circuit breaker",
		},
	)
)

// RecordRun records a finished sync run.
func RecordRun(status string, duration time.Duration, finishedAt time.Time) {
	SyncRunsTotal.WithLabelValues(status).Inc()
	SyncRunDuration.Observe(duration.Seconds())
	LastSyncTimestamp.Set(float64(finishedAt.Unix()))
}

func RecordItem(action string) {
	SyncItemsTotal.WithLabelValues(action).Inc()
}

func RecordSkippedTrigger(trigger string) {
	SyncSkippedTicks.WithLabelValues(trigger).Inc()
}
