package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkli08/veloxdb/pkg/page"
	"github.com/kkli08/veloxdb/pkg/record"
)

func leafPage(n int64) *page.Page {
	return page.NewLeaf(&page.LeafPage{
		Entries:  []record.Record{record.New(record.Int64Key(n), record.Int64Key(n))},
		NextLeaf: n,
	})
}

func TestBufferPool_PutGet(t *testing.T) {
	bp := New(10, NewLRUPolicy())
	key := Key{FileID: 1, Offset: 4096}

	_, ok := bp.Get(key)
	assert.False(t, ok)

	bp.Put(key, leafPage(1))
	got, ok := bp.Get(key)
	require.True(t, ok)
	leaf, err := got.AsLeaf()
	require.NoError(t, err)
	assert.Equal(t, int64(1), leaf.NextLeaf)

	hits, misses := bp.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestBufferPool_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	bp := New(2, NewLRUPolicy())
	k1, k2, k3 := Key{Offset: 1}, Key{Offset: 2}, Key{Offset: 3}

	bp.Put(k1, leafPage(1))
	bp.Put(k2, leafPage(2))
	bp.Get(k1) // k1 now more recent than k2

	bp.Put(k3, leafPage(3)) // evicts k2, the least recently used

	_, ok := bp.Get(k1)
	assert.True(t, ok)
	_, ok = bp.Get(k2)
	assert.False(t, ok)
	_, ok = bp.Get(k3)
	assert.True(t, ok)
}

func TestBufferPool_ClockEvictsUnreferenced(t *testing.T) {
	bp := New(2, NewClockPolicy())
	k1, k2, k3 := Key{Offset: 1}, Key{Offset: 2}, Key{Offset: 3}

	bp.Put(k1, leafPage(1))
	bp.Put(k2, leafPage(2))
	bp.Get(k1) // sets k1's reference bit

	bp.Put(k3, leafPage(3)) // sweep clears k1's ref bit first, evicts k2

	_, ok := bp.Get(k2)
	assert.False(t, ok)

	hits, _ := bp.Stats()
	assert.GreaterOrEqual(t, hits, uint64(1))
}

func TestBufferPool_RandomEvictsDownToCapacity(t *testing.T) {
	bp := New(3, NewRandomPolicy())
	for i := int64(0); i < 10; i++ {
		bp.Put(Key{Offset: i}, leafPage(i))
	}

	count := 0
	for i := int64(0); i < 10; i++ {
		if _, ok := bp.Get(Key{Offset: i}); ok {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestBufferPool_ReinsertRefreshesRecency(t *testing.T) {
	bp := New(2, NewLRUPolicy())
	k1, k2 := Key{Offset: 1}, Key{Offset: 2}

	bp.Put(k1, leafPage(1))
	bp.Put(k2, leafPage(2))
	bp.Put(k1, leafPage(99)) // refresh k1 to most-recent

	bp.Put(Key{Offset: 3}, leafPage(3)) // evicts k2, not k1

	got, ok := bp.Get(k1)
	require.True(t, ok)
	leaf, _ := got.AsLeaf()
	assert.Equal(t, int64(99), leaf.NextLeaf)

	_, ok = bp.Get(k2)
	assert.False(t, ok)
}

func TestBufferPool_Reconfigure(t *testing.T) {
	bp := New(10, NewLRUPolicy())
	bp.Put(Key{Offset: 1}, leafPage(1))

	bp.Reconfigure(5, NewRandomPolicy())

	_, ok := bp.Get(Key{Offset: 1})
	assert.False(t, ok, "reconfiguring drops all cached pages")
}
