package metrics

import (
	"strconv"
	"time"
)

// RecordOperation records a put/get/scan with its outcome and duration.
func (r *Registry) RecordOperation(operation, status string, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFlush records a memtable flush to an L1 SSTable.
func (r *Registry) RecordFlush(duration time.Duration) {
	r.FlushesTotal.Inc()
	r.FlushDuration.Observe(duration.Seconds())
}

// RecordMerge records a level merge and the resulting entry count for the
// target level.
func (r *Registry) RecordMerge(level int, duration time.Duration, resultEntries int) {
	lbl := levelLabel(level)
	r.MergesTotal.WithLabelValues(lbl).Inc()
	r.MergeDuration.WithLabelValues(lbl).Observe(duration.Seconds())
	r.LevelEntriesTotal.WithLabelValues(lbl).Set(float64(resultEntries))
}

// SetLevelEntries sets the entry count gauge for a level outside of a merge
// (e.g. after an initial install with no merge).
func (r *Registry) SetLevelEntries(level int, entries int) {
	r.LevelEntriesTotal.WithLabelValues(levelLabel(level)).Set(float64(entries))
}

// RecordCacheHit/RecordCacheMiss record buffer pool outcomes.
func (r *Registry) RecordCacheHit()  { r.CacheHitsTotal.Inc() }
func (r *Registry) RecordCacheMiss() { r.CacheMissesTotal.Inc() }

// RecordBloomNegative records a lookup short-circuited by a negative Bloom probe.
func (r *Registry) RecordBloomNegative() { r.BloomNegativesTotal.Inc() }

// RecordPageRead/RecordPageWrite record page I/O.
func (r *Registry) RecordPageRead()  { r.PageReadsTotal.Inc() }
func (r *Registry) RecordPageWrite() { r.PageWritesTotal.Inc() }

func levelLabel(level int) string {
	return strconv.Itoa(level)
}
