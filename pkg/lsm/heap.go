package lsm

import "github.com/kkli08/veloxdb/pkg/record"

// heapItem pairs a record with the index of the per-source vector it came
// from, so the k-way merge can advance only the source that produced the
// most recently popped minimum.
type heapItem struct {
	rec record.Record
	src int
}

// recordHeap is a container/heap min-heap over heapItem, ordered by the
// store's record key comparator. Grounded on the teacher's MergeIterator
// (pkg/lsm/compaction.go), generalized from a linear scan over a handful
// of iterators to a proper heap since the coordinator may merge across
// many sources (memtable plus every level).
type recordHeap []heapItem

func (h recordHeap) Len() int            { return len(h) }
func (h recordHeap) Less(i, j int) bool  { return record.Compare(h[i].rec, h[j].rec) < 0 }
func (h recordHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
