package pagemanager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkli08/veloxdb/pkg/bufferpool"
	"github.com/kkli08/veloxdb/pkg/page"
	"github.com/kkli08/veloxdb/pkg/record"
)

func tempPageManager(t *testing.T, compress bool) *PageManager {
	t.Helper()
	dir := t.TempDir()
	pm, err := Open(filepath.Join(dir, "data.sst"), 4096, compress)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}

func sampleLeaf(n int64) *page.Page {
	return page.NewLeaf(&page.LeafPage{
		Entries: []record.Record{
			record.New(record.Int64Key(n), record.Int64Key(n*10)),
		},
		NextLeaf: n + 1,
	})
}

func TestAllocatePage_NeverReturnsZero(t *testing.T) {
	pm := tempPageManager(t, false)
	off, err := pm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), off)

	off2, err := pm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(8192), off2)
}

func TestWriteThenReadPage_RoundTrips(t *testing.T) {
	pm := tempPageManager(t, false)
	off, err := pm.AllocatePage()
	require.NoError(t, err)

	require.NoError(t, pm.WritePage(off, sampleLeaf(7)))

	got, err := pm.ReadPage(off)
	require.NoError(t, err)
	leaf, err := got.AsLeaf()
	require.NoError(t, err)
	assert.Equal(t, int64(8), leaf.NextLeaf)
}

func TestReadPage_HitsBufferPoolOnSecondRead(t *testing.T) {
	pm := tempPageManager(t, false)
	off, err := pm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, pm.WritePage(off, sampleLeaf(1)))

	_, err = pm.ReadPage(off)
	require.NoError(t, err)
	_, err = pm.ReadPage(off)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, pm.CacheHits(), uint64(1))
}

func TestWritePage_WithCompressionRoundTrips(t *testing.T) {
	pm := tempPageManager(t, true)
	off, err := pm.AllocatePage()
	require.NoError(t, err)

	require.NoError(t, pm.WritePage(off, sampleLeaf(42)))

	pm.ConfigureCache(0, bufferpool.NewLRUPolicy()) // force a read through the mmap path, not the cache
	got, err := pm.ReadPage(off)
	require.NoError(t, err)
	leaf, err := got.AsLeaf()
	require.NoError(t, err)
	assert.Equal(t, int64(43), leaf.NextLeaf)
}

func TestEOFOffset_TracksAllocations(t *testing.T) {
	pm := tempPageManager(t, false)
	assert.Equal(t, int64(4096), pm.EOFOffset())

	_, err := pm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(8192), pm.EOFOffset())
}

func TestWriteRaw_BypassesSerialization(t *testing.T) {
	pm := tempPageManager(t, false)
	off, err := pm.AllocatePage()
	require.NoError(t, err)

	raw := make([]byte, pm.PageSize())
	raw[0] = byte(page.KindLeaf)
	require.NoError(t, pm.WriteRaw(off, raw))

	got, err := pm.ReadPage(off)
	require.NoError(t, err)
	_, err = got.AsLeaf()
	assert.NoError(t, err)
}

func TestReopen_PreservesAllocationCursor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.sst")

	pm, err := Open(path, 4096, false)
	require.NoError(t, err)
	off, err := pm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, pm.WritePage(off, sampleLeaf(5)))
	require.NoError(t, pm.Close())

	pm2, err := Open(path, 4096, false)
	require.NoError(t, err)
	defer pm2.Close()

	got, err := pm2.ReadPage(off)
	require.NoError(t, err)
	leaf, err := got.AsLeaf()
	require.NoError(t, err)
	assert.Equal(t, int64(6), leaf.NextLeaf)
}
