// Package page implements the store's fixed-size page container: the
// on-disk unit read and written by the page manager, in three variants
// (internal, leaf, metadata).
package page

import (
	"encoding/binary"

	"github.com/kkli08/veloxdb/pkg/bloom"
	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/record"
)

// Kind tags which of the three page variants a serialized page holds. It is
// always the first byte on the wire.
type Kind uint8

const (
	KindInternal Kind = iota
	KindLeaf
	KindMetadata
)

// InternalPage holds separator keys and child page offsets. Invariant:
// len(Children) == len(Keys)+1. Child offset i covers keys strictly less
// than Keys[i]; the last child covers the rest.
type InternalPage struct {
	Keys     []record.Value
	Children []int64
}

// LeafPage holds sorted entries, a forward link to the next leaf (0 at the
// chain terminus), and an optional per-leaf Bloom filter covering exactly
// the keys stored in Entries.
type LeafPage struct {
	Entries  []record.Record
	NextLeaf int64
	Bloom    *bloom.Filter
}

// MetadataPage resides exclusively at file offset 0 and locates the tree
// root and leaf-chain bounds. The optional Bloom field is a whole-file
// filter over every key in the SSTable, used to short-circuit a point
// lookup before any tree descent; the SSTable builder leaves it nil when
// the filter would not fit in the page.
type MetadataPage struct {
	RootOffset int64
	LeafBegin  int64
	LeafEnd    int64
	Filename   string
	Bloom      *bloom.Filter
}

// Page is the tagged union written to and read from a single page-sized
// slot. Only the field matching Kind is populated.
type Page struct {
	Kind     Kind
	Internal *InternalPage
	Leaf     *LeafPage
	Metadata *MetadataPage
}

// AsInternal returns p's internal-page body, failing ErrInvalidPageKind if
// p is not an internal page.
func (p *Page) AsInternal() (*InternalPage, error) {
	if p.Kind != KindInternal || p.Internal == nil {
		return nil, storeerrors.New("page.AsInternal", "page", storeerrors.ErrInvalidPageKind, "")
	}
	return p.Internal, nil
}

// AsLeaf returns p's leaf-page body, failing ErrInvalidPageKind if p is not
// a leaf page.
func (p *Page) AsLeaf() (*LeafPage, error) {
	if p.Kind != KindLeaf || p.Leaf == nil {
		return nil, storeerrors.New("page.AsLeaf", "page", storeerrors.ErrInvalidPageKind, "")
	}
	return p.Leaf, nil
}

// AsMetadata returns p's metadata-page body, failing ErrInvalidPageKind if
// p is not a metadata page.
func (p *Page) AsMetadata() (*MetadataPage, error) {
	if p.Kind != KindMetadata || p.Metadata == nil {
		return nil, storeerrors.New("page.AsMetadata", "page", storeerrors.ErrInvalidPageKind, "")
	}
	return p.Metadata, nil
}

// NewInternal wraps body as a Page.
func NewInternal(body *InternalPage) *Page { return &Page{Kind: KindInternal, Internal: body} }

// NewLeaf wraps body as a Page.
func NewLeaf(body *LeafPage) *Page { return &Page{Kind: KindLeaf, Leaf: body} }

// NewMetadata wraps body as a Page.
func NewMetadata(body *MetadataPage) *Page { return &Page{Kind: KindMetadata, Metadata: body} }

// BaseSize returns the exact fixed overhead of kind's variant — the part of
// a serialized page that doesn't depend on its content — so the SSTable
// leaf packer can run a running size budget without serializing.
func BaseSize(kind Kind) int {
	switch kind {
	case KindInternal:
		return 1 + 4 // kind byte + key count
	case KindLeaf:
		return 1 + 4 + 8 + 1 // kind byte + entry count + next-leaf offset + has-bloom flag
	case KindMetadata:
		return 1 + 8 + 8 + 8 + 4 + 1 // kind byte + 3 offsets + filename length + has-bloom flag
	default:
		return 1
	}
}

// Serialize encodes p and pads to pageSize. If the encoded content exceeds
// pageSize before padding, it fails with ErrPageOverflow.
func Serialize(p *Page, pageSize int) ([]byte, error) {
	var body []byte
	switch p.Kind {
	case KindInternal:
		body = serializeInternal(p.Internal)
	case KindLeaf:
		body = serializeLeaf(p.Leaf)
	case KindMetadata:
		body = serializeMetadata(p.Metadata)
	default:
		return nil, storeerrors.New("page.Serialize", "page", storeerrors.ErrInvalidPageKind, "")
	}

	if len(body)+1 > pageSize {
		return nil, storeerrors.New("page.Serialize", "page", storeerrors.ErrPageOverflow, "")
	}

	buf := make([]byte, pageSize)
	buf[0] = byte(p.Kind)
	copy(buf[1:], body)
	return buf, nil
}

// Deserialize dispatches on the leading page_kind byte and parses the
// matching variant. An unrecognized kind, or content that fails to parse,
// fails with ErrCorruptData.
func Deserialize(buf []byte) (*Page, error) {
	if len(buf) < 1 {
		return nil, storeerrors.New("page.Deserialize", "page", storeerrors.ErrCorruptData, "empty buffer")
	}
	kind := Kind(buf[0])
	body := buf[1:]

	switch kind {
	case KindInternal:
		internal, err := deserializeInternal(body)
		if err != nil {
			return nil, err
		}
		return &Page{Kind: kind, Internal: internal}, nil
	case KindLeaf:
		leaf, err := deserializeLeaf(body)
		if err != nil {
			return nil, err
		}
		return &Page{Kind: kind, Leaf: leaf}, nil
	case KindMetadata:
		meta, err := deserializeMetadata(body)
		if err != nil {
			return nil, err
		}
		return &Page{Kind: kind, Metadata: meta}, nil
	default:
		return nil, storeerrors.New("page.Deserialize", "page", storeerrors.ErrCorruptData, "unknown page kind")
	}
}

func serializeInternal(p *InternalPage) []byte {
	size := 4
	for _, k := range p.Keys {
		size += k.SerializedSize()
	}
	size += 8 * len(p.Children)

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Keys)))
	off := 4
	for _, k := range p.Keys {
		off += k.MarshalTo(buf[off:])
	}
	for _, c := range p.Children {
		binary.LittleEndian.PutUint64(buf[off:], uint64(c))
		off += 8
	}
	return buf
}

func deserializeInternal(buf []byte) (*InternalPage, error) {
	if len(buf) < 4 {
		return nil, corrupt("page.Deserialize", "internal page: short count")
	}
	numKeys := int(binary.LittleEndian.Uint32(buf[0:4]))
	off := 4

	keys := make([]record.Value, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		v, n, err := record.UnmarshalValue(buf[off:])
		if err != nil {
			return nil, corrupt("page.Deserialize", "internal page: key")
		}
		keys = append(keys, v)
		off += n
	}

	numChildren := numKeys + 1
	if len(buf[off:]) < numChildren*8 {
		return nil, corrupt("page.Deserialize", "internal page: short children")
	}
	children := make([]int64, numChildren)
	for i := 0; i < numChildren; i++ {
		children[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}

	return &InternalPage{Keys: keys, Children: children}, nil
}

func serializeLeaf(p *LeafPage) []byte {
	size := 4
	for _, e := range p.Entries {
		size += 4 + e.SerializedSize()
	}
	size += 8 + 1
	var bloomBytes []byte
	if p.Bloom != nil {
		bloomBytes = p.Bloom.Serialize()
		size += 4 + len(bloomBytes)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Entries)))
	off := 4
	for _, e := range p.Entries {
		binary.LittleEndian.PutUint32(buf[off:], uint32(e.SerializedSize()))
		off += 4
		off += e.MarshalTo(buf[off:])
	}
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.NextLeaf))
	off += 8
	if p.Bloom != nil {
		buf[off] = 1
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(bloomBytes)))
		off += 4
		copy(buf[off:], bloomBytes)
	} else {
		buf[off] = 0
	}
	return buf
}

func deserializeLeaf(buf []byte) (*LeafPage, error) {
	if len(buf) < 4 {
		return nil, corrupt("page.Deserialize", "leaf page: short count")
	}
	numEntries := int(binary.LittleEndian.Uint32(buf[0:4]))
	off := 4

	entries := make([]record.Record, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		if len(buf[off:]) < 4 {
			return nil, corrupt("page.Deserialize", "leaf page: entry length")
		}
		entryLen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if len(buf[off:]) < entryLen {
			return nil, corrupt("page.Deserialize", "leaf page: short entry")
		}
		rec, _, err := record.Unmarshal(buf[off : off+entryLen])
		if err != nil {
			return nil, corrupt("page.Deserialize", "leaf page: entry")
		}
		entries = append(entries, rec)
		off += entryLen
	}

	if len(buf[off:]) < 9 {
		return nil, corrupt("page.Deserialize", "leaf page: trailer")
	}
	nextLeaf := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	hasBloom := buf[off] != 0
	off++

	var filter *bloom.Filter
	if hasBloom {
		if len(buf[off:]) < 4 {
			return nil, corrupt("page.Deserialize", "leaf page: bloom length")
		}
		bloomLen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if len(buf[off:]) < bloomLen {
			return nil, corrupt("page.Deserialize", "leaf page: short bloom")
		}
		f, err := bloom.Deserialize(buf[off : off+bloomLen])
		if err != nil {
			return nil, corrupt("page.Deserialize", "leaf page: bloom body")
		}
		filter = f
	}

	return &LeafPage{Entries: entries, NextLeaf: nextLeaf, Bloom: filter}, nil
}

func serializeMetadata(p *MetadataPage) []byte {
	size := 8 + 8 + 8 + 4 + len(p.Filename) + 1
	var bloomBytes []byte
	if p.Bloom != nil {
		bloomBytes = p.Bloom.Serialize()
		size += 4 + len(bloomBytes)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.RootOffset))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.LeafBegin))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(p.LeafEnd))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(p.Filename)))
	off := 28
	copy(buf[off:], p.Filename)
	off += len(p.Filename)

	if p.Bloom != nil {
		buf[off] = 1
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(bloomBytes)))
		off += 4
		copy(buf[off:], bloomBytes)
	} else {
		buf[off] = 0
	}
	return buf
}

func deserializeMetadata(buf []byte) (*MetadataPage, error) {
	if len(buf) < 28 {
		return nil, corrupt("page.Deserialize", "metadata page: short header")
	}
	root := int64(binary.LittleEndian.Uint64(buf[0:8]))
	leafBegin := int64(binary.LittleEndian.Uint64(buf[8:16]))
	leafEnd := int64(binary.LittleEndian.Uint64(buf[16:24]))
	nameLen := int(binary.LittleEndian.Uint32(buf[24:28]))
	off := 28
	if len(buf[off:]) < nameLen+1 {
		return nil, corrupt("page.Deserialize", "metadata page: short filename/flag")
	}
	filename := string(buf[off : off+nameLen])
	off += nameLen
	hasBloom := buf[off] != 0
	off++

	var filter *bloom.Filter
	if hasBloom {
		if len(buf[off:]) < 4 {
			return nil, corrupt("page.Deserialize", "metadata page: bloom length")
		}
		bloomLen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if len(buf[off:]) < bloomLen {
			return nil, corrupt("page.Deserialize", "metadata page: short bloom")
		}
		f, err := bloom.Deserialize(buf[off : off+bloomLen])
		if err != nil {
			return nil, corrupt("page.Deserialize", "metadata page: bloom body")
		}
		filter = f
	}

	return &MetadataPage{
		RootOffset: root,
		LeafBegin:  leafBegin,
		LeafEnd:    leafEnd,
		Filename:   filename,
		Bloom:      filter,
	}, nil
}

func corrupt(op, context string) error {
	return storeerrors.New(op, "page", storeerrors.ErrCorruptData, context)
}
