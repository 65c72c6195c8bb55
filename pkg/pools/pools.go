// Package pools provides object pooling for reducing GC pressure on the
// page and record serialization hot path.
//
//   - BytePool: size-class based byte slice pooling, sized around the
//     default 4096-byte page
//   - BufferBuilder: little-endian buffer construction with pooling;
//     record and page serialization encode by hand and do not use it
package pools
