package lsm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkli08/veloxdb/pkg/config"
	"github.com/kkli08/veloxdb/pkg/record"
)

func testConfig(t *testing.T, threshold int) config.StoreConfig {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.PageSize = 512
	cfg.MemtableThreshold = threshold
	cfg.GrowthRatio = 4
	cfg.BufferPoolSize = 64
	require.NoError(t, cfg.Validate())
	return cfg
}

func rec(k, v int64) record.Record {
	return record.New(record.Int64Key(k), record.Int64Key(v))
}

func tombstoneOf(k int64) record.Record {
	r := rec(k, 0)
	r.Tombstone = true
	return r
}

func TestPutGet_MemtableOnly(t *testing.T) {
	db, err := Open(testConfig(t, 100))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(rec(1, 10)))
	require.NoError(t, db.Put(rec(2, 20)))

	got, found, err := db.Get(rec(1, 0))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), got.Val.Int64)
}

func TestPutGet_FlushesAndSearchesLevel1(t *testing.T) {
	db, err := Open(testConfig(t, 5))
	require.NoError(t, err)
	defer db.Close()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, db.Put(rec(i, i*100)))
	}
	assert.Equal(t, 0, db.memtable.Len(), "memtable should have drained on threshold")

	got, found, err := db.Get(rec(3, 0))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(300), got.Val.Int64)
}

func TestPutGet_CascadesMergeAcrossLevels(t *testing.T) {
	db, err := Open(testConfig(t, 4))
	require.NoError(t, err)
	defer db.Close()

	// First 4 puts flush to L1. Next 4 puts flush again, merging into L1
	// and (since level_max[1] == 4) cascading up to L2.
	for i := int64(0); i < 8; i++ {
		require.NoError(t, db.Put(rec(i, i)))
	}

	for i := int64(0); i < 8; i++ {
		got, found, err := db.Get(rec(i, 0))
		require.NoError(t, err)
		require.True(t, found, "key %d should be found after cascade", i)
		assert.Equal(t, i, got.Val.Int64)
	}

	snap := db.Stats()
	assert.True(t, len(snap.Levels) >= 2, "expected the cascade to grow a second level")
}

func TestScan_MergesAcrossMemtableAndLevels(t *testing.T) {
	db, err := Open(testConfig(t, 3))
	require.NoError(t, err)
	defer db.Close()

	for i := int64(0); i < 9; i++ {
		require.NoError(t, db.Put(rec(i, i*10)))
	}
	require.NoError(t, db.Put(rec(9, 90)))

	got, err := db.Scan(rec(2, 0), rec(7, 0))
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i, r := range got {
		assert.Equal(t, int64(i+2), r.Key.Int64)
	}
}

func TestGet_TombstoneMasksOlderValue(t *testing.T) {
	db, err := Open(testConfig(t, 2))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(rec(5, 50)))
	require.NoError(t, db.Put(rec(1, 1))) // flush triggers; 5 -> L1

	require.NoError(t, db.Put(tombstoneOf(5)))
	require.NoError(t, db.Put(rec(2, 2))) // flush triggers; merge with L1 yields 3 entries, cascades to L2

	_, found, err := db.Get(rec(5, 0))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScan_DropsTombstonesFromResult(t *testing.T) {
	db, err := Open(testConfig(t, 100))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(rec(1, 10)))
	require.NoError(t, db.Put(rec(2, 20)))
	require.NoError(t, db.Put(tombstoneOf(2)))

	got, err := db.Scan(rec(0, 0), rec(10, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Key.Int64)
}

func TestCloseReopen_PersistsThroughManifest(t *testing.T) {
	cfg := testConfig(t, 3)

	db, err := Open(cfg)
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, db.Put(rec(i, i*1000)))
	}
	require.NoError(t, db.Close())

	assert.FileExists(t, filepath.Join(cfg.Dir, manifestFilename))

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	for i := int64(0); i < 5; i++ {
		got, found, err := reopened.Get(rec(i, 0))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, i*1000, got.Val.Int64)
	}
}

func TestOpen_StartsEmptyWithoutManifest(t *testing.T) {
	db, err := Open(testConfig(t, 10))
	require.NoError(t, err)
	defer db.Close()

	_, found, err := db.Get(rec(1, 0))
	require.NoError(t, err)
	assert.False(t, found)
}
