// Package lsm implements the store's coordinator: the memtable and a
// cascade of compacted SSTable levels, tying together bufferpool,
// pagemanager, sstable, merge, and memtable into put/get/scan/close.
// Grounded on the teacher's LSMStorage (pkg/lsm/lsm.go), with one
// deliberate redesign — flush and merge run synchronously in the caller
// of Put rather than on background goroutines, per this store's
// single-writer scheduling model. The copy-on-write level-slice swap from
// the teacher's compaction path is kept as the reader/writer concurrency
// mechanism.
package lsm

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kkli08/veloxdb/pkg/bufferpool"
	"github.com/kkli08/veloxdb/pkg/config"
	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/logging"
	"github.com/kkli08/veloxdb/pkg/memtable"
	"github.com/kkli08/veloxdb/pkg/metrics"
	"github.com/kkli08/veloxdb/pkg/pagemanager"
	"github.com/kkli08/veloxdb/pkg/record"
	"github.com/kkli08/veloxdb/pkg/sstable"
)

// Open starts or reopens a store rooted at cfg.Dir: if a manifest is
// present, every referenced SSTable is opened (concurrently, bounded by
// the level count); otherwise the store starts with empty levels.
func Open(cfg config.StoreConfig) (*LSM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, storeerrors.New("lsm.Open", "directory", storeerrors.ErrIo, err.Error())
	}

	l := &LSM{
		memtable: memtable.New(cfg.MemtableThreshold),
		dir:      cfg.Dir,
		cfg:      cfg,
		log:      logging.DefaultLogger().With(logging.Component("lsm")),
		metrics:  metrics.DefaultRegistry(),
	}

	entries, err := readManifest(manifestPath(cfg.Dir))
	if os.IsNotExist(err) {
		l.levels = []*levelState{nil}
		l.levelMax = []int{0, cfg.MemtableThreshold}
		return l, nil
	}
	if err != nil {
		return nil, err
	}

	levels := make([]*levelState, len(entries)+1)
	levelMax := make([]int, len(entries)+1)

	g, _ := errgroup.WithContext(context.Background())
	for _, e := range entries {
		e := e
		if e.LevelIndex <= 0 || int(e.LevelIndex) >= len(levelMax) {
			return nil, storeerrors.New("lsm.Open", "manifest", storeerrors.ErrCorruptManifest, "level index out of range")
		}
		levelMax[e.LevelIndex] = int(e.LevelCapacity)
		if e.Filename == "" {
			continue
		}
		g.Go(func() error {
			path := filepath.Join(cfg.Dir, e.Filename)
			if _, statErr := os.Stat(path); statErr != nil {
				return storeerrors.New("lsm.Open", "manifest", storeerrors.ErrCorruptManifest, "missing sstable file: "+e.Filename)
			}
			pm, openErr := pagemanager.Open(path, cfg.PageSize, cfg.CompressPages)
			if openErr != nil {
				return openErr
			}
			pm.ConfigureCache(cfg.BufferPoolSize, policyFor(cfg.CachePolicy))
			sst, openErr := sstable.Open(pm)
			if openErr != nil {
				return openErr
			}
			levels[e.LevelIndex] = &levelState{sst: sst}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.levels = levels
	l.levelMax = levelMax
	return l, nil
}

// Put assigns the next sequence number and inserts rec into the memtable.
// When the memtable reaches its threshold, it is drained, flushed to a new
// L1 SSTable, and reset, all synchronously before Put returns.
func (l *LSM) Put(rec record.Record) error {
	start := time.Now()
	rec.SeqNum = l.seq.Add(1)
	l.memtable.Put(rec)

	if !l.memtable.IsFull() {
		l.metrics.RecordOperation("put", "ok", time.Since(start))
		return nil
	}

	err := l.flush()
	status := "ok"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordOperation("put", status, time.Since(start))
	return err
}

func (l *LSM) flush() error {
	drained := l.memtable.Drain()
	if len(drained) == 0 {
		return nil
	}

	start := time.Now()
	seq := l.fileSeq.Add(1)
	path := filepath.Join(l.dir, fmt.Sprintf("L1_SSTable_%d.sst", seq))

	pm, err := pagemanager.Open(path, l.cfg.PageSize, l.cfg.CompressPages)
	if err != nil {
		return err
	}
	pm.ConfigureCache(l.cfg.BufferPoolSize, policyFor(l.cfg.CachePolicy))

	sst, err := sstable.Build(pm, drained)
	if err != nil {
		return err
	}

	l.memtable.Reset()
	l.metrics.RecordFlush(time.Since(start))
	l.log.Info("flushed memtable", logging.Count(len(drained)), logging.Path(path))

	return l.mergeUp(1, sst)
}

// Get returns the record for key, checking the memtable first, then each
// level in order; the first non-tombstone hit wins, and a tombstone hit at
// any level masks any lower-level copy of the same key.
func (l *LSM) Get(key record.Record) (record.Record, bool, error) {
	start := time.Now()
	rec, found, err := l.get(key)
	status := "ok"
	if err != nil {
		status = "error"
	} else if !found {
		status = "miss"
	}
	l.metrics.RecordOperation("get", status, time.Since(start))
	return rec, found, err
}

func (l *LSM) get(key record.Record) (record.Record, bool, error) {
	if rec, ok := l.memtable.Get(key.Key); ok {
		if rec.Tombstone {
			return record.Empty(), false, nil
		}
		return rec, true, nil
	}

	l.mu.RLock()
	levels := l.levels
	l.mu.RUnlock()

	for i := 1; i < len(levels); i++ {
		ls := levels[i]
		if ls == nil {
			continue
		}
		rec, found, err := ls.sst.Get(key)
		if err != nil {
			return record.Empty(), false, err
		}
		if !found {
			continue
		}
		if rec.Tombstone {
			return record.Empty(), false, nil
		}
		return rec, true, nil
	}
	return record.Empty(), false, nil
}

// Scan returns every live key in [start, end], merged across the memtable
// and all levels via a k-way min-heap, collapsing duplicate keys to the
// highest sequence number and dropping tombstones from the final result.
func (l *LSM) Scan(start, end record.Record) ([]record.Record, error) {
	t0 := time.Now()
	out, err := l.scan(start, end)
	status := "ok"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordOperation("scan", status, time.Since(t0))
	return out, err
}

func (l *LSM) scan(start, end record.Record) ([]record.Record, error) {
	sources := [][]record.Record{l.memtable.Scan(start.Key, end.Key)}

	l.mu.RLock()
	levels := l.levels
	l.mu.RUnlock()

	for i := 1; i < len(levels); i++ {
		ls := levels[i]
		if ls == nil {
			continue
		}
		recs, err := ls.sst.Scan(start, end)
		if err != nil {
			return nil, err
		}
		sources = append(sources, recs)
	}

	return kWayMergeCollapsed(sources), nil
}

// Close flushes any buffered memtable entries, writes the manifest, and
// closes every level's SSTable handle. Flush and manifest write failures
// are logged but never block shutdown.
func (l *LSM) Close() error {
	if err := l.flush(); err != nil {
		l.log.Error("failed to flush memtable", logging.Error(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeManifestLocked(); err != nil {
		l.log.Error("failed to persist manifest", logging.Error(err))
	}

	var firstErr error
	for i := 1; i < len(l.levels); i++ {
		if l.levels[i] == nil {
			continue
		}
		if err := l.levels[i].sst.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a point-in-time snapshot of memtable occupancy and each
// level's entry count and capacity.
func (l *LSM) Stats() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{MemtableSize: l.memtable.Len()}
	for i := 1; i < len(l.levels); i++ {
		entries := 0
		if l.levels[i] != nil {
			entries = l.levels[i].sst.NumEntries()
		}
		snap.Levels = append(snap.Levels, LevelSnapshot{Level: i, Entries: entries, Capacity: l.levelMax[i]})
	}
	return snap
}

func policyFor(p config.CachePolicy) bufferpool.Policy {
	switch p {
	case config.CacheClock:
		return bufferpool.NewClockPolicy()
	case config.CacheRandom:
		return bufferpool.NewRandomPolicy()
	default:
		return bufferpool.NewLRUPolicy()
	}
}

func kWayMergeCollapsed(sources [][]record.Record) []record.Record {
	h := &recordHeap{}
	cursors := make([]int, len(sources))
	for i, src := range sources {
		if len(src) > 0 {
			heap.Push(h, heapItem{rec: src[0], src: i})
		}
	}

	var collapsed []record.Record
	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		cursors[top.src]++
		if next := cursors[top.src]; next < len(sources[top.src]) {
			heap.Push(h, heapItem{rec: sources[top.src][next], src: top.src})
		}

		if n := len(collapsed); n > 0 && record.Compare(collapsed[n-1], top.rec) == 0 {
			if top.rec.SeqNum > collapsed[n-1].SeqNum {
				collapsed[n-1] = top.rec
			}
			continue
		}
		collapsed = append(collapsed, top.rec)
	}

	survivors := collapsed[:0]
	for _, r := range collapsed {
		if !r.Tombstone {
			survivors = append(survivors, r)
		}
	}
	return survivors
}
