package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStoreMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "caskdb_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caskdb_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.KeysTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "caskdb_keys_total",
			Help: "Number of live keys in the index",
		},
	)

	r.SegmentsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "caskdb_segments_total",
			Help: "Number of segment files, including the active one",
		},
	)

	r.DiskUsageBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "caskdb_disk_usage_bytes",
			Help: "Total size of all segment files in bytes",
		},
	)

	r.LiveBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "caskdb_live_bytes",
			Help: "Bytes referenced by live index entries",
		},
	)
}

func (r *Registry) initCompactionMetrics() {
	r.CompactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "caskdb_compactions_total",
			Help: "Total number of compaction runs",
		},
		[]string{"status"},
	)

	r.CompactionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caskdb_compaction_duration_seconds",
			Help:    "Compaction run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.CompactionReclaimedBytes = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "caskdb_compaction_reclaimed_bytes_total",
			Help: "Disk bytes reclaimed by compaction",
		},
	)
}

func (r *Registry) initRecoveryMetrics() {
	r.RecoveryRecordsReplayed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "caskdb_recovery_records_replayed_total",
			Help: "Records replayed into the index during recovery",
		},
	)

	r.RecoveryTruncatedTails = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "caskdb_recovery_truncated_tails_total",
			Help: "Torn segment tails discarded during recovery",
		},
	)
}
