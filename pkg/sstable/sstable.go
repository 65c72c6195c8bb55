// Package sstable implements the store's static B+-tree SSTable: building
// one from a sorted record stream or from pre-built leaf pages, point
// lookup, and range scan. Grounded on the teacher's NewSSTable/OpenSSTable/
// Get/Scan/Iterator, generalized from a flat sparse-index file into a
// page-addressed tree, and on the B+Tree example's leaf-chain layout.
package sstable

import (
	"errors"
	"sort"

	"github.com/kkli08/veloxdb/pkg/bloom"
	"github.com/kkli08/veloxdb/pkg/bufferpool"
	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/page"
	"github.com/kkli08/veloxdb/pkg/pagemanager"
	"github.com/kkli08/veloxdb/pkg/record"
)

// SSTable is a handle onto one page-addressed static B+-tree file: a root
// offset, the bounds of its leaf chain, and the PageManager serving its I/O.
type SSTable struct {
	pm         *pagemanager.PageManager
	path       string
	rootOffset int64
	leafBegin  int64
	leafEnd    int64
	numEntries int
}

// Build implements construction from a sorted record stream: greedy leaf
// packing with per-leaf Bloom filters, fanout derivation, and bottom-up
// internal levels.
func Build(pm *pagemanager.PageManager, sorted []record.Record) (*SSTable, error) {
	leaves, leafMins, err := packLeaves(pm.PageSize(), sorted)
	if err != nil {
		return nil, err
	}
	return assemble(pm, leaves, leafMins, len(sorted))
}

// BuildFromLeaves implements construction from a page-aligned stream of
// pre-built leaf pages (produced by the merge engine): copies each leaf
// into the destination file, rewriting next-leaf links, then runs the same
// internal-level build as Build using the caller-supplied per-leaf smallest
// keys.
func BuildFromLeaves(pm *pagemanager.PageManager, leafPM *pagemanager.PageManager, leafMins []record.Record) (*SSTable, error) {
	numLeaves := int((leafPM.EOFOffset() - int64(leafPM.PageSize())) / int64(leafPM.PageSize()))
	if numLeaves != len(leafMins) {
		return nil, storeerrors.New("sstable.BuildFromLeaves", "sstable", storeerrors.ErrInvalidArgument, "leaf count does not match smallest-key vector")
	}
	if numLeaves == 0 {
		return nil, storeerrors.New("sstable.BuildFromLeaves", "sstable", storeerrors.ErrInvalidArgument, "no leaves to assemble")
	}

	leafOffsets := make([]int64, numLeaves)
	for i := range leafOffsets {
		off, err := pm.AllocatePage()
		if err != nil {
			return nil, err
		}
		leafOffsets[i] = off
	}

	var allEntries []record.Record
	for i := 0; i < numLeaves; i++ {
		srcOffset := int64(leafPM.PageSize()) * int64(i+1)
		p, err := leafPM.ReadPage(srcOffset)
		if err != nil {
			return nil, err
		}
		leaf, err := p.AsLeaf()
		if err != nil {
			return nil, err
		}

		allEntries = append(allEntries, leaf.Entries...)
		if i+1 < numLeaves {
			leaf.NextLeaf = leafOffsets[i+1]
		} else {
			leaf.NextLeaf = 0
		}
		if err := pm.WritePage(leafOffsets[i], page.NewLeaf(leaf)); err != nil {
			return nil, err
		}
	}

	rootOffset, err := buildInternalLevels(pm, leafOffsets, leafMinKeys(leafMins))
	if err != nil {
		return nil, err
	}

	wholeBloom, err := bloom.BuildForRecords(allEntries)
	if err != nil {
		return nil, err
	}
	meta := &page.MetadataPage{
		RootOffset: rootOffset,
		LeafBegin:  leafOffsets[0],
		LeafEnd:    leafOffsets[numLeaves-1],
		Filename:   pm.Path(),
		Bloom:      wholeBloom,
	}
	// The whole-file filter is omitted when it does not fit the metadata page.
	if _, err := page.Serialize(page.NewMetadata(meta), pm.PageSize()); errors.Is(err, storeerrors.ErrPageOverflow) {
		meta.Bloom = nil
	}
	if err := pm.WritePage(0, page.NewMetadata(meta)); err != nil {
		return nil, err
	}

	return &SSTable{
		pm:         pm,
		path:       pm.Path(),
		rootOffset: rootOffset,
		leafBegin:  meta.LeafBegin,
		leafEnd:    meta.LeafEnd,
		numEntries: len(allEntries),
	}, nil
}

// Open constructs an SSTable handle over an already-open PageManager
// pointing at an existing file, reading its metadata page to recover the
// tree root and leaf-chain bounds.
func Open(pm *pagemanager.PageManager) (*SSTable, error) {
	p, err := pm.ReadPage(0)
	if err != nil {
		return nil, err
	}
	meta, err := p.AsMetadata()
	if err != nil {
		return nil, err
	}

	n, err := countLeafEntries(pm, meta.LeafBegin)
	if err != nil {
		return nil, err
	}

	return &SSTable{
		pm:         pm,
		path:       pm.Path(),
		rootOffset: meta.RootOffset,
		leafBegin:  meta.LeafBegin,
		leafEnd:    meta.LeafEnd,
		numEntries: n,
	}, nil
}

func countLeafEntries(pm *pagemanager.PageManager, leafBegin int64) (int, error) {
	count := 0
	offset := leafBegin
	for offset != 0 {
		p, err := pm.ReadPage(offset)
		if err != nil {
			return 0, err
		}
		leaf, err := p.AsLeaf()
		if err != nil {
			return 0, err
		}
		count += len(leaf.Entries)
		offset = leaf.NextLeaf
	}
	return count, nil
}

// Get performs a point lookup: a whole-file Bloom fast path (when the
// metadata page carries a whole-file filter), then tree
// descent by separator comparison, then a per-leaf Bloom probe and binary
// search.
func (s *SSTable) Get(key record.Record) (record.Record, bool, error) {
	metaPage, err := s.pm.ReadPage(0)
	if err != nil {
		return record.Record{}, false, err
	}
	meta, err := metaPage.AsMetadata()
	if err != nil {
		return record.Record{}, false, err
	}
	if meta.Bloom != nil && !meta.Bloom.PossiblyContains(key) {
		return record.Record{}, false, nil
	}

	leaf, err := s.descend(key.Key)
	if err != nil {
		return record.Record{}, false, err
	}
	if leaf.Bloom != nil && !leaf.Bloom.PossiblyContains(key) {
		return record.Record{}, false, nil
	}

	idx := sort.Search(len(leaf.Entries), func(i int) bool {
		return record.CompareValues(leaf.Entries[i].Key, key.Key) >= 0
	})
	if idx < len(leaf.Entries) && record.CompareValues(leaf.Entries[idx].Key, key.Key) == 0 {
		return leaf.Entries[idx], true, nil
	}
	return record.Record{}, false, nil
}

// Scan returns every entry with start ≤ key ≤ end, located by descending to
// the first candidate leaf and then walking the NextLeaf chain.
func (s *SSTable) Scan(start, end record.Record) ([]record.Record, error) {
	leaf, err := s.descend(start.Key)
	if err != nil {
		return nil, err
	}

	var results []record.Record
	for {
		for _, e := range leaf.Entries {
			if record.CompareValues(e.Key, start.Key) < 0 {
				continue
			}
			if record.CompareValues(e.Key, end.Key) > 0 {
				return results, nil
			}
			results = append(results, e)
		}
		if leaf.NextLeaf == 0 {
			return results, nil
		}
		p, err := s.pm.ReadPage(leaf.NextLeaf)
		if err != nil {
			return nil, err
		}
		leaf, err = p.AsLeaf()
		if err != nil {
			return nil, err
		}
	}
}

// descend walks from the root to the leaf that would hold key, per the
// InternalPage invariant: child i covers keys strictly less than Keys[i],
// the last child covers the rest. Any page kind other than internal/leaf
// along the path fails with ErrCorruptData.
func (s *SSTable) descend(key record.Value) (*page.LeafPage, error) {
	offset := s.rootOffset
	for {
		p, err := s.pm.ReadPage(offset)
		if err != nil {
			return nil, err
		}
		switch p.Kind {
		case page.KindLeaf:
			return p.AsLeaf()
		case page.KindInternal:
			internal, err := p.AsInternal()
			if err != nil {
				return nil, err
			}
			offset = childFor(internal, key)
		default:
			return nil, storeerrors.New("sstable.descend", "page", storeerrors.ErrCorruptData, "expected internal or leaf page")
		}
	}
}

func childFor(internal *page.InternalPage, key record.Value) int64 {
	for i, k := range internal.Keys {
		if record.CompareValues(key, k) < 0 {
			return internal.Children[i]
		}
	}
	return internal.Children[len(internal.Children)-1]
}

// ConfigureCache forwards to the underlying PageManager's buffer pool.
func (s *SSTable) ConfigureCache(capacity int, policy bufferpool.Policy) {
	s.pm.ConfigureCache(capacity, policy)
}

// Rename closes and reopens the PageManager against newPath. The caller is
// responsible for moving the file on disk first — this only re-establishes
// the handle, used when promoting a merged SSTable into a higher level.
func (s *SSTable) Rename(newPath string) error {
	pageSize := s.pm.PageSize()
	compress := s.pm.Compress()
	if err := s.pm.Close(); err != nil {
		return err
	}
	pm, err := pagemanager.Open(newPath, pageSize, compress)
	if err != nil {
		return err
	}
	s.pm = pm
	s.path = newPath
	return nil
}

// Close releases the underlying PageManager.
func (s *SSTable) Close() error { return s.pm.Close() }

// Path returns the file this handle is backed by.
func (s *SSTable) Path() string { return s.path }

// NumEntries returns the total number of live-and-tombstone entries stored
// across this SSTable's leaf chain.
func (s *SSTable) NumEntries() int { return s.numEntries }

// PageManager exposes the underlying PageManager, used by the merge engine
// to stream this SSTable's leaf chain directly.
func (s *SSTable) PageManager() *pagemanager.PageManager { return s.pm }

// LeafBegin returns the offset of this SSTable's first leaf page.
func (s *SSTable) LeafBegin() int64 { return s.leafBegin }

// packLeaves greedily fills leaf pages by appending records while the
// running serialized size stays within the page budget. On overflow it
// finalizes the current page — attaching a Bloom filter built over exactly
// its entries — and starts a new one. Grounded on the teacher's
// maxSSTableSize batching loop in compaction.go, generalized from a
// byte-budgeted file to a byte-budgeted page.
func packLeaves(pageSize int, sorted []record.Record) ([]*page.Page, []record.Record, error) {
	var leaves []*page.Page
	var leafMins []record.Record
	var current []record.Record

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		f, err := bloom.BuildForRecords(current)
		if err != nil {
			return err
		}
		leaves = append(leaves, page.NewLeaf(&page.LeafPage{Entries: current, Bloom: f}))
		leafMins = append(leafMins, current[0])
		current = nil
		return nil
	}

	for _, rec := range sorted {
		trial := make([]record.Record, len(current)+1)
		copy(trial, current)
		trial[len(current)] = rec

		f, err := bloom.BuildForRecords(trial)
		if err != nil {
			return nil, nil, err
		}
		probe := page.NewLeaf(&page.LeafPage{Entries: trial, Bloom: f})
		if _, err := page.Serialize(probe, pageSize); err != nil {
			if !errors.Is(err, storeerrors.ErrPageOverflow) {
				return nil, nil, err
			}
			if len(current) == 0 {
				return nil, nil, err
			}
			if err := flush(); err != nil {
				return nil, nil, err
			}
			current = []record.Record{rec}
			continue
		}
		current = trial
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}
	return leaves, leafMins, nil
}

func assemble(pm *pagemanager.PageManager, leaves []*page.Page, leafMins []record.Record, numEntries int) (*SSTable, error) {
	if len(leaves) == 0 {
		return nil, storeerrors.New("sstable.Build", "sstable", storeerrors.ErrInvalidArgument, "no records to build")
	}

	var allEntries []record.Record
	for _, leaf := range leaves {
		l, err := leaf.AsLeaf()
		if err != nil {
			return nil, err
		}
		allEntries = append(allEntries, l.Entries...)
	}

	leafOffsets := make([]int64, len(leaves))
	for i := range leaves {
		off, err := pm.AllocatePage()
		if err != nil {
			return nil, err
		}
		leafOffsets[i] = off
	}

	for i, leaf := range leaves {
		l, err := leaf.AsLeaf()
		if err != nil {
			return nil, err
		}
		if i+1 < len(leafOffsets) {
			l.NextLeaf = leafOffsets[i+1]
		} else {
			l.NextLeaf = 0
		}
		if err := pm.WritePage(leafOffsets[i], leaf); err != nil {
			return nil, err
		}
	}

	rootOffset, err := buildInternalLevels(pm, leafOffsets, leafMinKeys(leafMins))
	if err != nil {
		return nil, err
	}

	wholeBloom, err := bloom.BuildForRecords(allEntries)
	if err != nil {
		return nil, err
	}
	meta := &page.MetadataPage{
		RootOffset: rootOffset,
		LeafBegin:  leafOffsets[0],
		LeafEnd:    leafOffsets[len(leafOffsets)-1],
		Filename:   pm.Path(),
		Bloom:      wholeBloom,
	}
	// The whole-file filter is omitted when it does not fit the metadata page.
	if _, err := page.Serialize(page.NewMetadata(meta), pm.PageSize()); errors.Is(err, storeerrors.ErrPageOverflow) {
		meta.Bloom = nil
	}
	if err := pm.WritePage(0, page.NewMetadata(meta)); err != nil {
		return nil, err
	}

	return &SSTable{
		pm:         pm,
		path:       pm.Path(),
		rootOffset: rootOffset,
		leafBegin:  meta.LeafBegin,
		leafEnd:    meta.LeafEnd,
		numEntries: numEntries,
	}, nil
}

func leafMinKeys(leafMins []record.Record) []record.Value {
	keys := make([]record.Value, len(leafMins))
	for i, r := range leafMins {
		keys[i] = r.Key
	}
	return keys
}

// buildInternalLevels grows the tree bottom-up from a leaf-index array:
// group up to F children per node, where a node's keys are the smallest
// keys of its 2nd..last children, until one root remains.
func buildInternalLevels(pm *pagemanager.PageManager, childOffsets []int64, childMinKeys []record.Value) (int64, error) {
	if len(childOffsets) == 1 {
		return childOffsets[0], nil
	}

	fanout := deriveFanout(pm.PageSize(), childMinKeys[0])

	for len(childOffsets) > 1 {
		var nextOffsets []int64
		var nextMinKeys []record.Value

		for start := 0; start < len(childOffsets); start += fanout {
			end := start + fanout
			if end > len(childOffsets) {
				end = len(childOffsets)
			}

			node := page.NewInternal(&page.InternalPage{
				Keys:     append([]record.Value{}, childMinKeys[start+1:end]...),
				Children: append([]int64{}, childOffsets[start:end]...),
			})
			off, err := pm.AllocatePage()
			if err != nil {
				return 0, err
			}
			if err := pm.WritePage(off, node); err != nil {
				return 0, err
			}

			nextOffsets = append(nextOffsets, off)
			nextMinKeys = append(nextMinKeys, childMinKeys[start])
		}

		childOffsets = nextOffsets
		childMinKeys = nextMinKeys
	}
	return childOffsets[0], nil
}

// deriveFanout computes the internal-node fanout from the page budget,
// clamped to at least 2.
func deriveFanout(pageSize int, firstKey record.Value) int {
	const childOffsetSize = 8
	overhead := page.BaseSize(page.KindInternal)
	keySize := firstKey.SerializedSize()

	budget := pageSize - overhead - childOffsetSize
	f := budget / (keySize + childOffsetSize)
	if f < 2 {
		f = 2
	}
	return f
}
