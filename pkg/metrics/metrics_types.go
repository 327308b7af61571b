package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the storage engine
type Registry struct {
	// Operation Metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Store Metrics
	KeysTotal      prometheus.Gauge
	SegmentsTotal  prometheus.Gauge
	DiskUsageBytes prometheus.Gauge
	LiveBytes      prometheus.Gauge

	// Compaction Metrics
	CompactionsTotal         *prometheus.CounterVec
	CompactionDuration       prometheus.Histogram
	CompactionReclaimedBytes prometheus.Counter

	// Recovery Metrics
	RecoveryRecordsReplayed prometheus.Counter
	RecoveryTruncatedTails  prometheus.Counter

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initStoreMetrics()
	r.initCompactionMetrics()
	r.initRecoveryMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying prometheus registry, for
// callers that expose metrics over HTTP or push them elsewhere.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
