// Package metrics provides Prometheus metrics for the resolution pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderScrapes counts provider invocations.
	// Labels: source (logical provider name), outcome (applied, unchanged, skipped, disabled, failed)
	ProviderScrapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plib",
			Subsystem: "provider",
			Name:      "scrapes_total",
			Help:      "Total number of provider scrape attempts by outcome",
		},
		[]string{"source", "outcome"},
	)

	// IngestItems counts per-item results of coordinator operations.
	// Labels: operation (ingest, update, delete), result (success, failure)
	IngestItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plib",
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Total number of items processed by coordinator operations",
		},
		[]string{"operation", "result"},
	)

	// SchedulerRuns counts bulk resolution passes.
	// Labels: trigger (catchup, timer)
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plib",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled bulk resolution passes",
		},
		[]string{"trigger"},
	)

	// SchedulerLastRun is the unix time of the last completed bulk pass.
	SchedulerLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plib",
			Subsystem: "scheduler",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed bulk resolution pass",
		},
	)
)

// RecordItems adds per-item results for one coordinator operation.
func RecordItems(operation string, succeeded, failed int) {
	if succeeded > 0 {
		IngestItems.WithLabelValues(operation, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		IngestItems.WithLabelValues(operation, "failure").Add(float64(failed))
	}
}
