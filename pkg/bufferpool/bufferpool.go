// Package bufferpool caches decoded pages in memory, keyed by the file they
// came from and their offset within it, under a pluggable eviction policy.
// Grounded on the teacher's BlockCache, generalized from a single hard-wired
// LRU list to a Policy interface so LRU/CLOCK/RANDOM can share one pool.
package bufferpool

import (
	"container/list"
	"math/rand"
	"sync"

	"github.com/kkli08/veloxdb/pkg/page"
)

// Key identifies a cached page by the file it belongs to and its offset.
type Key struct {
	FileID uint64
	Offset int64
}

// Policy decides which cached key to evict when a pool is over capacity, and
// is notified on every read/write so it can update its own bookkeeping.
type Policy interface {
	// onAccess records that key was just read (cache hit) or written.
	onAccess(key Key)
	// onInsert records that key was just added to the pool.
	onInsert(key Key)
	// onRemove records that key was evicted or explicitly dropped.
	onRemove(key Key)
	// evict picks a key to remove, or the zero Key and false if none held.
	evict() (Key, bool)
}

// BufferPool caches *page.Page values under a bounded capacity, consulting
// Policy for what to evict once full.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*page.Page
	policy   Policy

	hits   uint64
	misses uint64
}

// New creates a buffer pool holding up to capacity pages under policy.
func New(capacity int, policy Policy) *BufferPool {
	return &BufferPool{
		capacity: capacity,
		items:    make(map[Key]*page.Page),
		policy:   policy,
	}
}

// Get returns the cached page for key, if present.
func (bp *BufferPool) Get(key Key) (*page.Page, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	p, ok := bp.items[key]
	if !ok {
		bp.misses++
		return nil, false
	}
	bp.hits++
	bp.policy.onAccess(key)
	return p, true
}

// Put installs p under key, evicting per Policy if the pool is now over
// capacity. Re-inserting an existing key refreshes its recency.
func (bp *BufferPool) Put(key Key, p *page.Page) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if _, exists := bp.items[key]; exists {
		bp.items[key] = p
		bp.policy.onAccess(key)
		return
	}

	bp.items[key] = p
	bp.policy.onInsert(key)

	for bp.capacity > 0 && len(bp.items) > bp.capacity {
		victim, ok := bp.policy.evict()
		if !ok {
			break
		}
		delete(bp.items, victim)
	}
}

// Stats returns cumulative hit and miss counts.
func (bp *BufferPool) Stats() (hits, misses uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.hits, bp.misses
}

// Reconfigure swaps in a new capacity and policy, dropping all cached pages.
// Used when a store is reopened with a different cache configuration.
func (bp *BufferPool) Reconfigure(capacity int, policy Policy) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.capacity = capacity
	bp.policy = policy
	bp.items = make(map[Key]*page.Page)
}

// lruPolicy evicts the least-recently-accessed key, via container/list —
// the teacher's BlockCache technique, lifted out of BlockCache itself so it
// can be swapped for clock or random eviction.
type lruPolicy struct {
	mu   sync.Mutex
	list *list.List
	elem map[Key]*list.Element
}

// NewLRUPolicy creates a least-recently-used eviction policy.
func NewLRUPolicy() Policy {
	return &lruPolicy{
		list: list.New(),
		elem: make(map[Key]*list.Element),
	}
}

func (p *lruPolicy) onAccess(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.elem[key]; ok {
		p.list.MoveToFront(e)
	}
}

func (p *lruPolicy) onInsert(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elem[key] = p.list.PushFront(key)
}

func (p *lruPolicy) onRemove(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.elem[key]; ok {
		p.list.Remove(e)
		delete(p.elem, key)
	}
}

func (p *lruPolicy) evict() (Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	back := p.list.Back()
	if back == nil {
		return Key{}, false
	}
	key := back.Value.(Key)
	p.list.Remove(back)
	delete(p.elem, key)
	return key, true
}

// clockPolicy evicts via a reference-bit ring buffer (the "second-chance"
// algorithm): a hand sweeps the ring, clearing reference bits until it finds
// one already clear.
type clockPolicy struct {
	mu   sync.Mutex
	ring []clockEntry
	pos  map[Key]int
	hand int
}

type clockEntry struct {
	key Key
	ref bool
}

// NewClockPolicy creates a clock (second-chance) eviction policy.
func NewClockPolicy() Policy {
	return &clockPolicy{pos: make(map[Key]int)}
}

func (p *clockPolicy) onAccess(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.pos[key]; ok {
		p.ring[i].ref = true
	}
}

func (p *clockPolicy) onInsert(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring = append(p.ring, clockEntry{key: key, ref: false})
	p.pos[key] = len(p.ring) - 1
}

func (p *clockPolicy) onRemove(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeAtLocked(key)
}

func (p *clockPolicy) removeAtLocked(key Key) {
	i, ok := p.pos[key]
	if !ok {
		return
	}
	p.ring = append(p.ring[:i], p.ring[i+1:]...)
	delete(p.pos, key)
	for k, idx := range p.pos {
		if idx > i {
			p.pos[k] = idx - 1
		}
	}
	if p.hand > i {
		p.hand--
	}
	if len(p.ring) > 0 {
		p.hand %= len(p.ring)
	} else {
		p.hand = 0
	}
}

func (p *clockPolicy) evict() (Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ring) == 0 {
		return Key{}, false
	}
	for {
		entry := &p.ring[p.hand]
		if !entry.ref {
			key := entry.key
			p.removeAtLocked(key)
			return key, true
		}
		entry.ref = false
		p.hand = (p.hand + 1) % len(p.ring)
	}
}

// randomPolicy evicts a uniformly random cached key — the baseline eviction
// policy a store can fall back to when access locality doesn't warrant
// LRU's or clock's bookkeeping.
type randomPolicy struct {
	mu   sync.Mutex
	keys []Key
	pos  map[Key]int
	rng  *rand.Rand
}

// NewRandomPolicy creates a uniformly-random eviction policy.
func NewRandomPolicy() Policy {
	return &randomPolicy{
		pos: make(map[Key]int),
		rng: rand.New(rand.NewSource(1)),
	}
}

func (p *randomPolicy) onAccess(key Key) {}

func (p *randomPolicy) onInsert(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos[key] = len(p.keys)
	p.keys = append(p.keys, key)
}

func (p *randomPolicy) onRemove(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(key)
}

func (p *randomPolicy) removeLocked(key Key) {
	i, ok := p.pos[key]
	if !ok {
		return
	}
	last := len(p.keys) - 1
	p.keys[i] = p.keys[last]
	p.pos[p.keys[i]] = i
	p.keys = p.keys[:last]
	delete(p.pos, key)
}

func (p *randomPolicy) evict() (Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return Key{}, false
	}
	i := p.rng.Intn(len(p.keys))
	key := p.keys[i]
	p.removeLocked(key)
	return key, true
}
