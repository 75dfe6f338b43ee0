// Package databin provides the primitive, bounds-checked binary reader and
// writer that every gmdata element codec is built on, plus the two-phase
// pointer resolution scheme and the three list encodings (simple, pointer,
// aligned) that pervade the format.
//
// The Reader owns an immutable byte buffer, a cursor, and a "current chunk"
// window; every typed read is checked against both the buffer and the
// current chunk's bounds. This mirrors the sticky-error, bounds-checked
// Reader/Writer pair in the teacher's lib/rac package, generalized from a
// single compression-chunk window to the FORM container's named chunks.
package databin

import (
	"encoding/binary"
	"math"

	"github.com/modgm/gmdata/gmerr"
)

// byteRange is the half-open range [Start, End), reused from the teacher's
// lib/rac.Range.
type byteRange struct {
	Start, End int64
}

func (r byteRange) Empty() bool    { return r.Start == r.End }
func (r byteRange) Size() int64    { return r.End - r.Start }
func (r byteRange) Contains(pos, size int64) bool {
	return r.Start <= pos && pos+size <= r.End
}

// Endianness selects byte order for all typed reads/writes on a Reader or
// Writer. Little-endian is the default; big-endian is used for certain
// console targets (spec.md §4.1).
type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Reader is the bounds-checked primitive decoder. All typed reads check
// that the current chunk window contains [cursor, cursor+size); an
// out-of-bounds read is gmerr.OutOfBounds.
//
// Do not modify its exported fields after calling any of its methods.
type Reader struct {
	Endianness Endianness

	buf    []byte
	pos    int64
	chunk  byteRange
	chunkName string
	chunkIsLast bool

	// err is the first error encountered. It is sticky: once non-nil, every
	// public method keeps returning it.
	err error

	// nextIdentity hands out the monotonically increasing parse-time
	// identities used as pointer-resolution keys (spec.md §9,
	// "identity-based pointer resolution").
	nextIdentity uint64
}

// NewReader creates a Reader over buf. The current chunk window starts as
// the whole buffer; callers narrow it with SetChunk before parsing chunk
// payloads.
func NewReader(buf []byte) *Reader {
	r := &Reader{buf: buf}
	r.chunk = byteRange{0, int64(len(buf))}
	return r
}

// Err returns the first sticky error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Len returns the total buffer length.
func (r *Reader) Len() int64 { return int64(len(r.buf)) }

// Pos returns the current cursor position.
func (r *Reader) Pos() int64 { return r.pos }

// SeekTo moves the cursor to an absolute position without bounds-checking
// against the current chunk; used when following a resolved pointer into
// another chunk's data (e.g. TPAG into TXTR).
func (r *Reader) SeekTo(pos int64) {
	r.pos = pos
}

// SetChunk narrows the current-chunk window used for bounds checks, and
// records the chunk's name for error breadcrumbs.
func (r *Reader) SetChunk(name string, start, end int64, isLast bool) {
	r.chunkName = name
	r.chunk = byteRange{start, end}
	r.pos = start
	r.chunkIsLast = isLast
}

// ChunkName returns the name of the chunk currently bounding reads.
func (r *Reader) ChunkName() string { return r.chunkName }

// ChunkEnd returns the end of the current chunk window.
func (r *Reader) ChunkEnd() int64 { return r.chunk.End }

// IsLastChunk reports whether the current chunk is the FORM container's
// last child (and so may omit trailing padding).
func (r *Reader) IsLastChunk() bool { return r.chunkIsLast }

// NextIdentity hands out a fresh monotonically increasing identity, used to
// key pointer resolutions for elements that don't otherwise have a stable
// address (spec.md §9).
func (r *Reader) NextIdentity() uint64 {
	r.nextIdentity++
	return r.nextIdentity
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = gmerr.Wrap(err, r.chunkName, r.pos, "")
	}
	return r.err
}

func (r *Reader) checkBounds(size int64) bool {
	if r.err != nil {
		return false
	}
	if !r.chunk.Contains(r.pos, size) {
		r.fail(gmerr.OutOfBounds)
		return false
	}
	return true
}

func (r *Reader) bytes(n int64) []byte {
	if !r.checkBounds(n) {
		return make([]byte, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// U8 reads an unsigned 8-bit integer.
func (r *Reader) U8() uint8 {
	b := r.bytes(1)
	return b[0]
}

// S8 reads a signed 8-bit integer.
func (r *Reader) S8() int8 { return int8(r.U8()) }

// U16 reads an unsigned 16-bit integer using the Reader's endianness.
func (r *Reader) U16() uint16 {
	b := r.bytes(2)
	return r.Endianness.order().Uint16(b)
}

// S16 reads a signed 16-bit integer.
func (r *Reader) S16() int16 { return int16(r.U16()) }

// U32 reads an unsigned 32-bit integer using the Reader's endianness.
func (r *Reader) U32() uint32 {
	b := r.bytes(4)
	return r.Endianness.order().Uint32(b)
}

// S32 reads a signed 32-bit integer.
func (r *Reader) S32() int32 { return int32(r.U32()) }

// U64 reads an unsigned 64-bit integer using the Reader's endianness.
func (r *Reader) U64() uint64 {
	b := r.bytes(8)
	return r.Endianness.order().Uint64(b)
}

// S64 reads a signed 64-bit integer.
func (r *Reader) S64() int64 { return int64(r.U64()) }

// F32 reads an IEEE-754 single-precision float.
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// F64 reads an IEEE-754 double-precision float.
func (r *Reader) F64() float64 { return math.Float64frombits(r.U64()) }

// Bool32 reads a 32-bit boolean. Any value other than 0 or 1 is a corrupt
// structure (spec.md §4.1).
func (r *Reader) Bool32() bool {
	v := r.U32()
	switch v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(gmerr.Wrap(gmerr.CorruptStructure, "", -1, "bool32"))
		return false
	}
}

// Bytes reads n raw bytes. The returned slice aliases the Reader's backing
// buffer and must not be mutated.
func (r *Reader) Bytes(n int) []byte {
	if n < 0 {
		r.fail(gmerr.OutOfBounds)
		return nil
	}
	return r.bytes(int64(n))
}

// Pointer reads a u32 file offset and fails with gmerr.OutOfBounds if it
// exceeds the total buffer length, as a failsafe against corrupted pointers
// (spec.md §4.1).
func (r *Reader) Pointer() uint32 {
	v := r.U32()
	if int64(v) > r.Len() {
		r.fail(gmerr.OutOfBounds)
		return 0
	}
	return v
}

// Align advances the cursor until pos mod n == 0, failing with
// gmerr.CorruptStructure if any skipped byte is non-zero (spec.md §4.1).
func (r *Reader) Align(n int64) {
	for r.pos%n != 0 {
		b := r.U8()
		if r.err != nil {
			return
		}
		if b != 0 {
			r.fail(gmerr.Wrap(gmerr.CorruptStructure, r.chunkName, r.pos-1, "non-zero alignment padding"))
			return
		}
	}
}

// StringRef reads a u32 string-pool byte offset (spec.md §3, §6). Zero means
// absent. Resolving it to a string-pool index is the caller's job via the
// occurrence map built by the strg package.
func (r *Reader) StringRef() uint32 { return r.U32() }

// OptionalRef reads an i32 optional resource reference; -1 means absent.
func (r *Reader) OptionalRef() (idx int32, ok bool) {
	v := r.S32()
	if v < 0 {
		return 0, false
	}
	return v, true
}

// MandatoryRef reads a u32 mandatory resource reference.
func (r *Reader) MandatoryRef() uint32 { return r.U32() }

// Remaining returns how many bytes remain in the current chunk window.
func (r *Reader) Remaining() int64 { return r.chunk.End - r.pos }
