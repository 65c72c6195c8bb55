package lsm

import (
	"sync"
	"sync/atomic"

	"github.com/kkli08/veloxdb/pkg/config"
	"github.com/kkli08/veloxdb/pkg/logging"
	"github.com/kkli08/veloxdb/pkg/memtable"
	"github.com/kkli08/veloxdb/pkg/metrics"
	"github.com/kkli08/veloxdb/pkg/sstable"
)

// levelState holds at most one SSTable handle per level, per the
// coordinator's single-handle-per-level invariant.
type levelState struct {
	sst *sstable.SSTable
}

// LSM is the store's single-writer, multi-reader coordinator: a memtable
// feeding a chain of compacted levels, each holding at most one SSTable.
type LSM struct {
	mu sync.RWMutex

	memtable *memtable.Memtable
	levels   []*levelState // index 0 unused; levels[1..] active
	levelMax []int         // index 0 unused; levelMax[i] is level i's entry capacity

	dir string
	cfg config.StoreConfig

	seq     atomic.Uint64 // record sequence number generator
	fileSeq atomic.Uint64 // filename counter

	log     logging.Logger
	metrics *metrics.Registry
}

// LevelSnapshot describes one level's occupancy at the moment Stats was called.
type LevelSnapshot struct {
	Level    int
	Entries  int
	Capacity int
}

// Snapshot is a point-in-time view of the coordinator's state.
type Snapshot struct {
	MemtableSize int
	Levels       []LevelSnapshot
}
