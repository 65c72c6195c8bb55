// Package pagemanager wraps a single SSTable or leaf-scratch file with
// random-access, page-aligned I/O: allocation past EOF, buffer-pool-backed
// reads via mmap, and durable writes. Grounded on the teacher's
// SSTable/MappedSSTable read paths, fused into one paged-I/O abstraction.
package pagemanager

import (
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/mmap"

	"github.com/golang/snappy"

	"github.com/kkli08/veloxdb/pkg/bufferpool"
	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/page"
	"github.com/kkli08/veloxdb/pkg/pools"
)

var fileIDCounter atomic.Uint64

// PageManager owns paged I/O for exactly one file: allocation, durable
// writes via os.File, and buffer-pool-backed reads via a memory-mapped
// reader that is re-established whenever the file has grown since it was
// last opened.
type PageManager struct {
	mu sync.Mutex

	path     string
	pageSize int
	compress bool
	fileID   uint64

	file       *os.File
	mmapReader *mmap.ReaderAt
	mmapSize   int64
	needsRemap bool

	next int64 // next offset AllocatePage will hand out

	pool      *bufferpool.BufferPool
	cacheHits atomic.Uint64
}

// Open opens (creating if necessary) the file at path for page-aligned I/O
// at pageSize. compress toggles snappy compression of each page's padded
// body — a store-wide setting applied uniformly to every file the store
// writes, per StoreConfig.CompressPages.
func Open(path string, pageSize int, compress bool) (*PageManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, storeerrors.New("pagemanager.Open", "file", storeerrors.ErrIo, err.Error())
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, storeerrors.New("pagemanager.Open", "file", storeerrors.ErrIo, err.Error())
	}

	next := int64(pageSize) // offset 0 is reserved for the metadata page
	if info.Size() > int64(pageSize) {
		next = info.Size()
	}

	pm := &PageManager{
		path:       path,
		pageSize:   pageSize,
		compress:   compress,
		fileID:     fileIDCounter.Add(1),
		file:       f,
		next:       next,
		needsRemap: true,
		pool:       bufferpool.New(1024, bufferpool.NewLRUPolicy()),
	}
	return pm, nil
}

// FileID returns the monotonic identity assigned to this file at Open,
// used as half of the buffer pool's cache key.
func (pm *PageManager) FileID() uint64 { return pm.fileID }

// Path returns the filesystem path this manager was opened against.
func (pm *PageManager) Path() string { return pm.path }

// Compress reports whether pages are snappy-compressed on this file.
func (pm *PageManager) Compress() bool { return pm.compress }

// AllocatePage returns the next page-aligned offset past EOF and advances
// the allocation cursor. Offset 0 is reserved and never returned.
func (pm *PageManager) AllocatePage() (int64, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	offset := pm.next
	pm.next += int64(pm.pageSize)
	return offset, nil
}

// EOFOffset returns the next offset that would be allocated.
func (pm *PageManager) EOFOffset() int64 {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.next
}

// PageSize returns the configured page size.
func (pm *PageManager) PageSize() int { return pm.pageSize }

// CacheHits returns the number of ReadPage calls served from the buffer pool.
func (pm *PageManager) CacheHits() uint64 { return pm.cacheHits.Load() }

// ConfigureCache swaps the buffer pool's capacity and eviction policy.
func (pm *PageManager) ConfigureCache(capacity int, policy bufferpool.Policy) {
	pm.pool.Reconfigure(capacity, policy)
}

// ReadPage reads the page at offset, consulting the buffer pool first. The
// raw byte slice is drawn from the shared size-classed pool and returned
// to it once page.Deserialize has copied everything it needs out of it; a
// decompressed body is a fresh allocation, not a pooled slice.
func (pm *PageManager) ReadPage(offset int64) (*page.Page, error) {
	key := bufferpool.Key{FileID: pm.fileID, Offset: offset}
	if p, ok := pm.pool.Get(key); ok {
		pm.cacheHits.Add(1)
		return p, nil
	}

	raw, err := pm.readRaw(offset)
	if err != nil {
		return nil, err
	}
	defer pools.PutBytes(raw)

	body, pooled, err := pm.decompress(raw)
	if err != nil {
		return nil, err
	}
	if pooled {
		defer pools.PutBytes(body)
	}

	p, err := page.Deserialize(body)
	if err != nil {
		return nil, err
	}

	pm.pool.Put(key, p)
	return p, nil
}

// WritePage serializes p, optionally compresses the padded body, writes it
// durably at offset, and installs it into the buffer pool.
func (pm *PageManager) WritePage(offset int64, p *page.Page) error {
	body, err := page.Serialize(p, pm.pageSize)
	if err != nil {
		return err
	}

	raw, pooled, err := pm.compressBody(body)
	if err != nil {
		return err
	}
	if pooled {
		defer pools.PutBytes(raw)
	}

	if err := pm.writeRaw(offset, raw); err != nil {
		return err
	}

	key := bufferpool.Key{FileID: pm.fileID, Offset: offset}
	pm.pool.Put(key, p)
	return nil
}

// WriteRaw writes already-serialized page bytes verbatim at offset, without
// serializing them and without updating the buffer pool.
func (pm *PageManager) WriteRaw(offset int64, raw []byte) error {
	return pm.writeRaw(offset, raw)
}

func (pm *PageManager) writeRaw(offset int64, raw []byte) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	n, err := pm.file.WriteAt(raw, offset)
	if err != nil {
		return storeerrors.New("pagemanager.WritePage", "file", storeerrors.ErrIo, err.Error())
	}
	if n != len(raw) {
		return storeerrors.New("pagemanager.WritePage", "file", storeerrors.ErrIo, "short write")
	}
	if err := pm.file.Sync(); err != nil {
		return storeerrors.New("pagemanager.WritePage", "file", storeerrors.ErrIo, err.Error())
	}
	pm.needsRemap = true
	return nil
}

func (pm *PageManager) readRaw(offset int64) ([]byte, error) {
	pm.mu.Lock()
	if pm.needsRemap {
		if err := pm.remapLocked(); err != nil {
			pm.mu.Unlock()
			return nil, err
		}
	}
	reader := pm.mmapReader
	pm.mu.Unlock()

	if reader == nil {
		return nil, storeerrors.New("pagemanager.ReadPage", "file", storeerrors.ErrIo, "no mapped reader")
	}

	buf := pools.GetBytesSized(pm.pageSize)
	n, err := reader.ReadAt(buf, offset)
	if err != nil && n != len(buf) {
		pools.PutBytes(buf)
		return nil, storeerrors.New("pagemanager.ReadPage", "file", storeerrors.ErrIo, err.Error())
	}
	return buf, nil
}

// remapLocked tears down the current mmap reader, if any, and re-maps the
// file at its current size. Called with pm.mu held.
func (pm *PageManager) remapLocked() error {
	if pm.mmapReader != nil {
		_ = pm.mmapReader.Close()
		pm.mmapReader = nil
	}

	info, err := pm.file.Stat()
	if err != nil {
		return storeerrors.New("pagemanager.ReadPage", "file", storeerrors.ErrIo, err.Error())
	}
	if info.Size() == 0 {
		pm.needsRemap = false
		return nil
	}

	reader, err := mmap.Open(pm.path)
	if err != nil {
		return storeerrors.New("pagemanager.ReadPage", "file", storeerrors.ErrIo, err.Error())
	}
	pm.mmapReader = reader
	pm.mmapSize = info.Size()
	pm.needsRemap = false
	return nil
}

// compressBody returns the padded, possibly snappy-compressed page body
// ready for a durable write. The second return reports whether the slice
// came from the shared byte pool and must be released with pools.PutBytes
// once the caller is done with it.
func (pm *PageManager) compressBody(body []byte) ([]byte, bool, error) {
	if !pm.compress {
		return body, false, nil
	}
	compressed := snappy.Encode(nil, body)
	if len(compressed)+4 > pm.pageSize {
		return nil, false, storeerrors.New("pagemanager.WritePage", "page", storeerrors.ErrPageOverflow, "compressed page exceeds page size")
	}
	raw := pools.GetBytesSized(pm.pageSize)
	for i := range raw {
		raw[i] = 0
	}
	binary.LittleEndian.PutUint32(raw[0:4], uint32(len(compressed)))
	copy(raw[4:], compressed)
	return raw, true, nil
}

// decompress returns the page body in raw, decompressing it if this file
// compresses pages. The second return reports whether the returned slice
// was drawn from the shared byte pool.
func (pm *PageManager) decompress(raw []byte) ([]byte, bool, error) {
	if !pm.compress {
		return raw, false, nil
	}
	if len(raw) < 4 {
		return nil, false, storeerrors.New("pagemanager.ReadPage", "page", storeerrors.ErrCorruptData, "short compressed header")
	}
	length := int(binary.LittleEndian.Uint32(raw[0:4]))
	if length < 0 || 4+length > len(raw) {
		return nil, false, storeerrors.New("pagemanager.ReadPage", "page", storeerrors.ErrCorruptData, "bad compressed length")
	}
	body, err := snappy.Decode(nil, raw[4:4+length])
	if err != nil {
		return nil, false, storeerrors.New("pagemanager.ReadPage", "page", storeerrors.ErrCorruptData, err.Error())
	}
	return body, false, nil
}

// Close closes both the mmap reader and the underlying file used for
// writes. Reopening after an external rename tears down and re-establishes
// both via a fresh Open.
func (pm *PageManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var firstErr error
	if pm.mmapReader != nil {
		if err := pm.mmapReader.Close(); err != nil {
			firstErr = storeerrors.New("pagemanager.Close", "file", storeerrors.ErrIo, err.Error())
		}
		pm.mmapReader = nil
	}
	if err := pm.file.Close(); err != nil && firstErr == nil {
		firstErr = storeerrors.New("pagemanager.Close", "file", storeerrors.ErrIo, err.Error())
	}
	return firstErr
}
