package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloxdb_operations_total",
			Help: "Total number of store operations by kind and outcome",
		},
		[]string{"operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veloxdb_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)

	r.FlushesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_flushes_total",
			Help: "Total number of memtable flushes to an L1 SSTable",
		},
	)

	r.FlushDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veloxdb_flush_duration_seconds",
			Help:    "Memtable flush duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.MergesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloxdb_merges_total",
			Help: "Total number of level merges by target level",
		},
		[]string{"level"},
	)

	r.MergeDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veloxdb_merge_duration_seconds",
			Help:    "Level merge duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"level"},
	)

	r.LevelEntriesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "veloxdb_level_entries",
			Help: "Number of entries currently held by each level's SSTable",
		},
		[]string{"level"},
	)

	r.CacheHitsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_buffer_pool_hits_total",
			Help: "Total number of buffer pool page cache hits",
		},
	)

	r.CacheMissesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_buffer_pool_misses_total",
			Help: "Total number of buffer pool page cache misses",
		},
	)

	r.BloomNegativesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_bloom_negatives_total",
			Help: "Total number of SSTable lookups short-circuited by a negative Bloom probe",
		},
	)

	r.PageReadsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_page_reads_total",
			Help: "Total number of pages read from disk or mmap",
		},
	)

	r.PageWritesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "veloxdb_page_writes_total",
			Help: "Total number of pages written to disk",
		},
	)
}
