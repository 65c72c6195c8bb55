// Package merge implements the two-way streaming leaf-page merge that
// drives LSM compaction: reading two SSTables' leaf chains one page at a
// time and writing a new sorted leaf-page stream. Grounded on the teacher's
// MergeIterator/SSTableIterator/Compactor.Compact pattern, generalized from
// a whole-file in-memory sort into a page-at-a-time streaming merge — the
// SSTable's own NextLeaf chain takes the place of the teacher's in-memory
// Entry slice.
package merge

import (
	"github.com/google/uuid"

	"github.com/kkli08/veloxdb/pkg/bloom"
	"github.com/kkli08/veloxdb/pkg/page"
	"github.com/kkli08/veloxdb/pkg/pagemanager"
	"github.com/kkli08/veloxdb/pkg/record"
	"github.com/kkli08/veloxdb/pkg/sstable"
)

// ScratchPath generates a fresh leaf-scratch filename in dir, per the
// merge_<uuid>.leafs convention.
func ScratchPath(dir string) string {
	return dir + "/merge_" + uuid.NewString() + ".leafs"
}

// leafIterator streams one SSTable's leaf chain a page at a time, buffering
// the current page's entries so two-finger merge can peek/advance.
type leafIterator struct {
	pm      *pagemanager.PageManager
	offset  int64
	entries []record.Record
	idx     int
}

func newLeafIterator(sst *sstable.SSTable) (*leafIterator, error) {
	it := &leafIterator{pm: sst.PageManager(), offset: sst.LeafBegin()}
	if err := it.loadPage(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *leafIterator) loadPage() error {
	for it.offset != 0 {
		p, err := it.pm.ReadPage(it.offset)
		if err != nil {
			return err
		}
		leaf, err := p.AsLeaf()
		if err != nil {
			return err
		}
		it.entries = leaf.Entries
		it.idx = 0
		it.offset = leaf.NextLeaf
		if len(it.entries) > 0 {
			return nil
		}
		// empty page (shouldn't occur from Build, but tolerate defensively)
	}
	it.entries = nil
	it.idx = 0
	return nil
}

func (it *leafIterator) peek() (record.Record, bool) {
	for it.idx >= len(it.entries) {
		if it.offset == 0 {
			return record.Record{}, false
		}
		if err := it.loadPage(); err != nil {
			return record.Record{}, false
		}
	}
	return it.entries[it.idx], true
}

func (it *leafIterator) advance() {
	it.idx++
}

// Merge implements the §4.7 two-finger leaf-page merge of SSTables a and b,
// writing the merged, deduplicated leaf-page stream to outPath and
// returning the per-leaf smallest-key vector BuildFromLeaves needs to
// assemble the internal levels.
//
// Duplicate keys are resolved by retaining the entry with the higher
// sequence number. dropTombstones strips tombstoned entries from the
// output entirely — set only when merging into the bottommost level, since
// the source otherwise must retain tombstones to mask stale versions in
// lower levels.
func Merge(a, b *sstable.SSTable, outPath string, dropTombstones bool) ([]record.Record, error) {
	pageSize := a.PageManager().PageSize()
	compress := a.PageManager().Compress()

	outPM, err := pagemanager.Open(outPath, pageSize, compress)
	if err != nil {
		return nil, err
	}
	defer outPM.Close()

	ia, err := newLeafIterator(a)
	if err != nil {
		return nil, err
	}
	ib, err := newLeafIterator(b)
	if err != nil {
		return nil, err
	}

	var current []record.Record
	var leafMins []record.Record

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		f, err := bloom.BuildForRecords(current)
		if err != nil {
			return err
		}
		off, err := outPM.AllocatePage()
		if err != nil {
			return err
		}
		if err := outPM.WritePage(off, page.NewLeaf(&page.LeafPage{Entries: current, Bloom: f})); err != nil {
			return err
		}
		leafMins = append(leafMins, current[0])
		current = nil
		return nil
	}

	emit := func(r record.Record) error {
		if dropTombstones && r.Tombstone {
			return nil
		}
		trial := make([]record.Record, len(current)+1)
		copy(trial, current)
		trial[len(current)] = r

		if fits(pageSize, trial) {
			current = trial
			return nil
		}
		if len(current) == 0 {
			// A single record's own Bloom+trailer overhead exceeds the page —
			// nothing this layer can do, surface it as-is by flushing alone.
			current = trial
			return flush()
		}
		if err := flush(); err != nil {
			return err
		}
		current = []record.Record{r}
		return nil
	}

	for {
		ra, okA := ia.peek()
		rb, okB := ib.peek()

		switch {
		case !okA && !okB:
			if err := flush(); err != nil {
				return nil, err
			}
			return leafMins, nil
		case !okB || (okA && record.Compare(ra, rb) < 0):
			if err := emit(ra); err != nil {
				return nil, err
			}
			ia.advance()
		case !okA || record.Compare(rb, ra) < 0:
			if err := emit(rb); err != nil {
				return nil, err
			}
			ib.advance()
		default:
			// Same key: keep the entry with the higher sequence number.
			winner := ra
			if rb.SeqNum > ra.SeqNum {
				winner = rb
			}
			if err := emit(winner); err != nil {
				return nil, err
			}
			ia.advance()
			ib.advance()
		}
	}
}

func fits(pageSize int, entries []record.Record) bool {
	f, err := bloom.BuildForRecords(entries)
	if err != nil {
		return false
	}
	_, err = page.Serialize(page.NewLeaf(&page.LeafPage{Entries: entries, Bloom: f}), pageSize)
	return err == nil
}
