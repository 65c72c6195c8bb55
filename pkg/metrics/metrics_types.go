package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the store, scoped to the operations and
// internal subsystems of the LSM coordinator.
type Registry struct {
	// Put/Get path
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Flush / merge
	FlushesTotal     prometheus.Counter
	FlushDuration    prometheus.Histogram
	MergesTotal      *prometheus.CounterVec
	MergeDuration    *prometheus.HistogramVec
	LevelEntriesTotal *prometheus.GaugeVec

	// Buffer pool / page I/O
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	BloomNegativesTotal prometheus.Counter
	PageReadsTotal    prometheus.Counter
	PageWritesTotal   prometheus.Counter

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all store metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initStorageMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
