package metrics

import (
	"time"
)

// RecordOperation records a store operation with its duration
func (r *Registry) RecordOperation(operation, status string, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCompaction records a compaction run
func (r *Registry) RecordCompaction(status string, duration time.Duration, reclaimedBytes int64) {
	r.CompactionsTotal.WithLabelValues(status).Inc()
	r.CompactionDuration.Observe(duration.Seconds())
	if reclaimedBytes > 0 {
		r.CompactionReclaimedBytes.Add(float64(reclaimedBytes))
	}
}

// UpdateStoreMetrics updates the store-level gauges
func (r *Registry) UpdateStoreMetrics(keys int, segments int, diskBytes, liveBytes int64) {
	r.KeysTotal.Set(float64(keys))
	r.SegmentsTotal.Set(float64(segments))
	r.DiskUsageBytes.Set(float64(diskBytes))
	r.LiveBytes.Set(float64(liveBytes))
}
