// Package memtable implements the store's in-memory write buffer: ordered
// insertion, point lookup, in-order draining, and range scan, backed by a
// lock-free skip list keyed by the store's own key ordering. Grounded on
// the pack's skipmap-backed memtable (AndrewTheMaster-
// FundamentalsOfDesigningHighLoadApplications/pkg/memtable), adapted from a
// byte-slice key ordering to record.CompareValues.
package memtable

import (
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"github.com/kkli08/veloxdb/pkg/record"
)

type orderedMap = skipmap.FuncMap[record.Value, record.Record]

// Memtable buffers records in key order up to a capacity threshold, after
// which the coordinator drains it into a new level-1 SSTable.
type Memtable struct {
	mu       sync.RWMutex
	sm       *orderedMap
	capacity int
}

// New creates a memtable that signals full once it holds capacity entries.
func New(capacity int) *Memtable {
	return &Memtable{sm: newOrderedMap(), capacity: capacity}
}

func newOrderedMap() *orderedMap {
	return skipmap.NewFunc[record.Value, record.Record](func(a, b record.Value) bool {
		return record.CompareValues(a, b) < 0
	})
}

// Put inserts or overwrites rec, keyed by rec.Key. Callers assign SeqNum
// before calling Put, at admission.
func (m *Memtable) Put(rec record.Record) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.sm.Store(rec.Key, rec)
}

// Get returns the record stored under key, if any.
func (m *Memtable) Get(key record.Value) (record.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sm.Load(key)
}

// Len returns the number of entries currently buffered.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sm.Len()
}

// IsFull reports whether the memtable has reached its capacity threshold.
func (m *Memtable) IsFull() bool {
	return m.Len() >= m.capacity
}

// Drain returns every entry in ascending key order without clearing the
// memtable; callers flush a new SSTable from the result, then call Reset.
func (m *Memtable) Drain() []record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]record.Record, 0, m.sm.Len())
	m.sm.Range(func(_ record.Value, rec record.Record) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// Scan returns every buffered entry with start ≤ key ≤ end, in ascending
// key order.
func (m *Memtable) Scan(start, end record.Value) []record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []record.Record
	m.sm.Range(func(key record.Value, rec record.Record) bool {
		if record.CompareValues(key, start) < 0 {
			return true
		}
		if record.CompareValues(key, end) > 0 {
			return false
		}
		out = append(out, rec)
		return true
	})
	return out
}

// Reset discards all buffered entries, used once a drained memtable's
// contents have been durably flushed to a new SSTable.
func (m *Memtable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sm = newOrderedMap()
}
