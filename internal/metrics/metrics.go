package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extraction metrics
var (
	RowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockward_rows_extracted_total",
		Help: "Total number of table rows successfully extracted into records",
	})

	RowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockward_rows_skipped_total",
		Help: "Total number of table rows skipped during extraction",
	}, []string{"reason"})
)

// Bulk action metrics
var (
	BulkActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockward_bulk_actions_total",
		Help: "Total number of per-row bulk actions by outcome",
	}, []string{"outcome"})

	BulkBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockward_bulk_batches_total",
		Help: "Total number of bulk removal batches run",
	})

	BulkBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockward_bulk_batch_duration_seconds",
		Help:    "Bulk removal batch duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// State gauges (updated on each reconciliation pass)
var (
	KnownUsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockward_known_users_total",
		Help: "Number of blocked users in the current table snapshot",
	})

	LockedUsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockward_locked_users_total",
		Help: "Number of usernames in the locked set",
	})

	SelectedUsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockward_selected_users_total",
		Help: "Number of currently selected usernames",
	})
)

// Persistence metrics
var (
	PersistenceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockward_persistence_errors_total",
		Help: "Total number of locked-set persistence failures",
	}, []string{"operation"})
)
