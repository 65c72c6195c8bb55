package merge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkli08/veloxdb/pkg/pagemanager"
	"github.com/kkli08/veloxdb/pkg/record"
	"github.com/kkli08/veloxdb/pkg/sstable"
)

func buildSST(t *testing.T, name string, recs []record.Record) *sstable.SSTable {
	t.Helper()
	pm, err := pagemanager.Open(filepath.Join(t.TempDir(), name), 512, false)
	require.NoError(t, err)
	sst, err := sstable.Build(pm, recs)
	require.NoError(t, err)
	return sst
}

func rec(k int64, v int64, seq uint64, tombstone bool) record.Record {
	r := record.New(record.Int64Key(k), record.Int64Key(v))
	r.SeqNum = seq
	r.Tombstone = tombstone
	return r
}

func TestMerge_DisjointKeySetsInterleave(t *testing.T) {
	a := buildSST(t, "a.sst", []record.Record{rec(1, 10, 1, false), rec(3, 30, 2, false), rec(5, 50, 3, false)})
	b := buildSST(t, "b.sst", []record.Record{rec(2, 20, 1, false), rec(4, 40, 2, false)})

	outPath := filepath.Join(t.TempDir(), "merged.leafs")
	leafMins, err := Merge(a, b, outPath, false)
	require.NoError(t, err)
	require.NotEmpty(t, leafMins)

	outPM, err := pagemanager.Open(outPath, 512, false)
	require.NoError(t, err)
	defer outPM.Close()
	sst, err := sstable.BuildFromLeaves(mustAssembleTarget(t), outPM, leafMins)
	require.NoError(t, err)
	assert.Equal(t, 5, sst.NumEntries())

	for i, k := range []int64{1, 2, 3, 4, 5} {
		got, found, err := sst.Get(record.New(record.Int64Key(k), record.Value{}))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(i+1)*10, got.Val.Int64)
	}
}

func mustAssembleTarget(t *testing.T) *pagemanager.PageManager {
	t.Helper()
	pm, err := pagemanager.Open(filepath.Join(t.TempDir(), "out.sst"), 512, false)
	require.NoError(t, err)
	return pm
}

func TestMerge_DuplicateKeyKeepsHigherSeqNum(t *testing.T) {
	a := buildSST(t, "a.sst", []record.Record{rec(1, 100, 5, false)})
	b := buildSST(t, "b.sst", []record.Record{rec(1, 999, 1, false)})

	outPath := filepath.Join(t.TempDir(), "merged.leafs")
	leafMins, err := Merge(a, b, outPath, false)
	require.NoError(t, err)

	outPM, err := pagemanager.Open(outPath, 512, false)
	require.NoError(t, err)
	defer outPM.Close()
	sst, err := sstable.BuildFromLeaves(mustAssembleTarget(t), outPM, leafMins)
	require.NoError(t, err)

	got, found, err := sst.Get(record.New(record.Int64Key(1), record.Value{}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(100), got.Val.Int64, "higher sequence number (5) should win over lower (1)")
}

func TestMerge_RetainsTombstonesByDefault(t *testing.T) {
	a := buildSST(t, "a.sst", []record.Record{rec(7, 70, 1, false)})
	b := buildSST(t, "b.sst", []record.Record{rec(7, 0, 2, true)})

	outPath := filepath.Join(t.TempDir(), "merged.leafs")
	leafMins, err := Merge(a, b, outPath, false)
	require.NoError(t, err)

	outPM, err := pagemanager.Open(outPath, 512, false)
	require.NoError(t, err)
	defer outPM.Close()
	sst, err := sstable.BuildFromLeaves(mustAssembleTarget(t), outPM, leafMins)
	require.NoError(t, err)

	got, found, err := sst.Get(record.New(record.Int64Key(7), record.Value{}))
	require.NoError(t, err)
	require.True(t, found, "tombstone record itself is still present in the output")
	assert.True(t, got.Tombstone)
}

func TestMerge_DropTombstonesAtBottommostLevel(t *testing.T) {
	a := buildSST(t, "a.sst", []record.Record{rec(7, 70, 1, false), rec(8, 80, 1, false)})
	b := buildSST(t, "b.sst", []record.Record{rec(7, 0, 2, true)})

	outPath := filepath.Join(t.TempDir(), "merged.leafs")
	leafMins, err := Merge(a, b, outPath, true)
	require.NoError(t, err)

	outPM, err := pagemanager.Open(outPath, 512, false)
	require.NoError(t, err)
	defer outPM.Close()
	sst, err := sstable.BuildFromLeaves(mustAssembleTarget(t), outPM, leafMins)
	require.NoError(t, err)

	assert.Equal(t, 1, sst.NumEntries())
	_, found, err := sst.Get(record.New(record.Int64Key(7), record.Value{}))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMerge_SpansManyLeavesAcrossBothSides(t *testing.T) {
	var aRecs, bRecs []record.Record
	for i := 0; i < 200; i += 2 {
		aRecs = append(aRecs, rec(int64(i), int64(i*10), 1, false))
	}
	for i := 1; i < 200; i += 2 {
		bRecs = append(bRecs, rec(int64(i), int64(i*10), 1, false))
	}
	a := buildSST(t, "a.sst", aRecs)
	b := buildSST(t, "b.sst", bRecs)

	outPath := filepath.Join(t.TempDir(), "merged.leafs")
	leafMins, err := Merge(a, b, outPath, false)
	require.NoError(t, err)

	outPM, err := pagemanager.Open(outPath, 512, false)
	require.NoError(t, err)
	defer outPM.Close()
	sst, err := sstable.BuildFromLeaves(mustAssembleTarget(t), outPM, leafMins)
	require.NoError(t, err)
	assert.Equal(t, 200, sst.NumEntries())
}

func TestScratchPath_IsUniquePerCall(t *testing.T) {
	dir := t.TempDir()
	p1 := ScratchPath(dir)
	p2 := ScratchPath(dir)
	assert.NotEqual(t, p1, p2)
}
