// Package record implements the store's tagged, totally-ordered key/value
// record: the unit flushed into the memtable, packed into SSTable leaves,
// and streamed through the merge engine.
package record

import (
	"encoding/binary"
	"math"

	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
)

// KeyKind tags the concrete type carried by a Value. The five kinds below
// are the only ones a store ever mixes; cross-kind ordering is defined by
// Kind rank first, typed value second.
type KeyKind uint8

const (
	KeyInt32 KeyKind = iota
	KeyInt64
	KeyDouble
	KeyFixedChar
	KeyString

	// keyNone is the sentinel kind used by the empty-record marker returned
	// by failed lookups. It never appears in a serialized record.
	keyNone KeyKind = 0xFF
)

// Value is a tagged union over the five supported key/value types. Only the
// field matching Kind is meaningful.
type Value struct {
	Kind    KeyKind
	Int32   int32
	Int64   int64
	Float64 float64
	// Bytes backs both KeyFixedChar (fixed-length) and KeyString
	// (variable-length); the two kinds differ only in whether callers treat
	// the length as significant, not in wire representation.
	Bytes []byte
}

// Record is a totally-ordered, tagged key/value pair carrying a sequence
// number and a tombstone flag.
type Record struct {
	Key       Value
	Val       Value
	SeqNum    uint64
	Tombstone bool
}

// New constructs a live (non-tombstone) record. Callers assign SeqNum
// separately, at admission into the memtable.
func New(key, val Value) Record {
	return Record{Key: key, Val: val}
}

// Empty returns the zero-result sentinel returned by failed point lookups.
func Empty() Record {
	return Record{Key: Value{Kind: keyNone}}
}

// IsEmpty reports whether r is the empty-result sentinel.
func (r Record) IsEmpty() bool {
	return r.Key.Kind == keyNone
}

func Int32Key(v int32) Value   { return Value{Kind: KeyInt32, Int32: v} }
func Int64Key(v int64) Value   { return Value{Kind: KeyInt64, Int64: v} }
func DoubleKey(v float64) Value { return Value{Kind: KeyDouble, Float64: v} }
func FixedCharKey(v string) Value {
	return Value{Kind: KeyFixedChar, Bytes: []byte(v)}
}
func StringKey(v string) Value { return Value{Kind: KeyString, Bytes: []byte(v)} }

// Compare orders two records first by key-kind rank, then by the typed key
// value. It ignores Val, SeqNum, and Tombstone — callers needing to break
// ties by sequence number do so explicitly (merge, scan dedup).
func Compare(a, b Record) int {
	return CompareValues(a.Key, b.Key)
}

// Equal reports key equality only, per the dedup contract (§3): sequence
// number and tombstone discriminate versions, not identity.
func Equal(a, b Record) bool {
	return Compare(a, b) == 0
}

// CompareValues orders two tagged values by kind rank, then typed value:
// numeric comparison for int32/int64/double, byte comparison for
// fixed-char/string.
func CompareValues(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KeyInt32:
		return compareInt64(int64(a.Int32), int64(b.Int32))
	case KeyInt64:
		return compareInt64(a.Int64, b.Int64)
	case KeyDouble:
		switch {
		case a.Float64 < b.Float64:
			return -1
		case a.Float64 > b.Float64:
			return 1
		default:
			return 0
		}
	case KeyFixedChar, KeyString:
		return compareBytes(a.Bytes, b.Bytes)
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// valueSize returns the exact encoded size of a tagged value: one kind
// byte, plus a fixed or length-prefixed payload.
func valueSize(v Value) int {
	switch v.Kind {
	case KeyInt32:
		return 1 + 4
	case KeyInt64:
		return 1 + 8
	case KeyDouble:
		return 1 + 8
	case KeyFixedChar, KeyString:
		return 1 + 4 + len(v.Bytes)
	default:
		return 1
	}
}

// SerializedSize returns the exact encoded length of r without allocating,
// used by the SSTable leaf packer to run a size budget.
func (r Record) SerializedSize() int {
	return valueSize(r.Key) + valueSize(r.Val) + 8 + 1
}

// SerializedSize returns the exact encoded length of v alone, used by the
// Bloom filter to render a canonical key-only byte string.
func (v Value) SerializedSize() int {
	return valueSize(v)
}

// MarshalTo encodes v alone into buf and returns the number of bytes written.
func (v Value) MarshalTo(buf []byte) int {
	return marshalValue(buf, v)
}

// MarshalTo encodes r little-endian into buf, which must be at least
// SerializedSize() bytes, and returns the number of bytes written.
func (r Record) MarshalTo(buf []byte) int {
	off := marshalValue(buf, r.Key)
	off += marshalValue(buf[off:], r.Val)
	binary.LittleEndian.PutUint64(buf[off:], r.SeqNum)
	off += 8
	if r.Tombstone {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	return off
}

func marshalValue(buf []byte, v Value) int {
	buf[0] = byte(v.Kind)
	switch v.Kind {
	case KeyInt32:
		binary.LittleEndian.PutUint32(buf[1:], uint32(v.Int32))
		return 1 + 4
	case KeyInt64:
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Int64))
		return 1 + 8
	case KeyDouble:
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.Float64))
		return 1 + 8
	case KeyFixedChar, KeyString:
		binary.LittleEndian.PutUint32(buf[1:], uint32(len(v.Bytes)))
		copy(buf[5:], v.Bytes)
		return 1 + 4 + len(v.Bytes)
	default:
		return 1
	}
}

// Unmarshal decodes a record from buf, returning the record and the number
// of bytes consumed. Truncated input fails with ErrCorruptData.
func Unmarshal(buf []byte) (Record, int, error) {
	key, n, err := unmarshalValue(buf)
	if err != nil {
		return Record{}, 0, err
	}
	off := n

	val, n, err := unmarshalValue(buf[off:])
	if err != nil {
		return Record{}, 0, err
	}
	off += n

	if len(buf[off:]) < 9 {
		return Record{}, 0, storeerrors.New("record.Unmarshal", "record", storeerrors.ErrCorruptData, "truncated trailer")
	}
	seq := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	tombstone := buf[off] != 0
	off++

	return Record{Key: key, Val: val, SeqNum: seq, Tombstone: tombstone}, off, nil
}

func unmarshalValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, storeerrors.New("record.Unmarshal", "value", storeerrors.ErrCorruptData, "missing kind byte")
	}
	kind := KeyKind(buf[0])
	switch kind {
	case KeyInt32:
		if len(buf) < 5 {
			return Value{}, 0, shortValue()
		}
		return Value{Kind: kind, Int32: int32(binary.LittleEndian.Uint32(buf[1:5]))}, 5, nil
	case KeyInt64:
		if len(buf) < 9 {
			return Value{}, 0, shortValue()
		}
		return Value{Kind: kind, Int64: int64(binary.LittleEndian.Uint64(buf[1:9]))}, 9, nil
	case KeyDouble:
		if len(buf) < 9 {
			return Value{}, 0, shortValue()
		}
		return Value{Kind: kind, Float64: math.Float64frombits(binary.LittleEndian.Uint64(buf[1:9]))}, 9, nil
	case KeyFixedChar, KeyString:
		if len(buf) < 5 {
			return Value{}, 0, shortValue()
		}
		length := binary.LittleEndian.Uint32(buf[1:5])
		end := 5 + int(length)
		if len(buf) < end {
			return Value{}, 0, shortValue()
		}
		data := make([]byte, length)
		copy(data, buf[5:end])
		return Value{Kind: kind, Bytes: data}, end, nil
	default:
		return Value{}, 0, storeerrors.New("record.Unmarshal", "value", storeerrors.ErrCorruptData, "unknown key kind")
	}
}

// UnmarshalValue decodes a single tagged value from buf (no seqnum/tombstone
// trailer), returning the value and the number of bytes consumed. Used by
// the page package to parse internal-node separator keys, which carry no
// value, sequence number, or tombstone.
func UnmarshalValue(buf []byte) (Value, int, error) {
	return unmarshalValue(buf)
}

func shortValue() error {
	return storeerrors.New("record.Unmarshal", "value", storeerrors.ErrCorruptData, "truncated value")
}
