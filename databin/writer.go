package databin

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/modgm/gmdata/gmerr"
)

// PlaceholderSentinel is the u32 written at a pointer's position when its
// target hasn't been emitted yet (spec.md §4.3, GLOSSARY "Placeholder").
const PlaceholderSentinel = uint32(0xDEADC0DE)

// Identity is a stable, unique-per-element key used to match a deferred
// pointer placeholder to the position its target is eventually emitted at.
// gmdata assigns these as a monotonically increasing counter at parse time
// (spec.md §9) rather than keying off Go's (relocatable, GC-moved) object
// addresses the way the Rust original keys off pointer identity.
type Identity uint64

// Writer is the bounds-free, growing-buffer primitive encoder. It owns the
// two-phase pointer resolution tables described in spec.md §4.3: a
// placeholder is recorded as (position, identity) when a pointer to a
// not-yet-emitted element is written; a resolution is recorded as
// (identity, position) when that element is itself emitted. Finish()
// back-patches every placeholder from the resolution table.
type Writer struct {
	Endianness Endianness

	buf []byte
	err error

	placeholders []placeholder
	resolutions  map[Identity]int64

	nextIdentity uint64
}

type placeholder struct {
	pos      int64
	identity Identity
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{resolutions: make(map[Identity]int64)}
}

// Err returns the first sticky error encountered, if any.
func (w *Writer) Err() error { return w.err }

// Bytes returns the buffer written so far. Call only after Finish has
// back-patched all placeholders.
func (w *Writer) Bytes() []byte { return w.buf }

// Pos returns the current write position (== len(w.buf)).
func (w *Writer) Pos() int64 { return int64(len(w.buf)) }

// NextIdentity hands out a fresh identity for an element that has no other
// stable identity assigned yet.
func (w *Writer) NextIdentity() Identity {
	w.nextIdentity++
	return Identity(w.nextIdentity)
}

func (w *Writer) order() binary.ByteOrder { return w.Endianness.order() }

func (w *Writer) append(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// U8 writes an unsigned 8-bit integer.
func (w *Writer) U8(v uint8) { w.append([]byte{v}) }

// S8 writes a signed 8-bit integer.
func (w *Writer) S8(v int8) { w.U8(uint8(v)) }

// U16 writes an unsigned 16-bit integer.
func (w *Writer) U16(v uint16) {
	b := make([]byte, 2)
	w.order().PutUint16(b, v)
	w.append(b)
}

// S16 writes a signed 16-bit integer.
func (w *Writer) S16(v int16) { w.U16(uint16(v)) }

// U32 writes an unsigned 32-bit integer.
func (w *Writer) U32(v uint32) {
	b := make([]byte, 4)
	w.order().PutUint32(b, v)
	w.append(b)
}

// S32 writes a signed 32-bit integer.
func (w *Writer) S32(v int32) { w.U32(uint32(v)) }

// U64 writes an unsigned 64-bit integer.
func (w *Writer) U64(v uint64) {
	b := make([]byte, 8)
	w.order().PutUint64(b, v)
	w.append(b)
}

// S64 writes a signed 64-bit integer.
func (w *Writer) S64(v int64) { w.U64(uint64(v)) }

// F32 writes an IEEE-754 single-precision float.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 writes an IEEE-754 double-precision float.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// Bool32 writes a 32-bit boolean.
func (w *Writer) Bool32(v bool) {
	if v {
		w.U32(1)
	} else {
		w.U32(0)
	}
}

// RawBytes writes raw bytes verbatim.
func (w *Writer) RawBytes(b []byte) { w.append(b) }

// Align writes zero bytes until Pos() mod n == 0.
func (w *Writer) Align(n int64) {
	for w.Pos()%n != 0 {
		w.U8(0)
	}
}

// Placeholder writes the sentinel 0xDEADC0DE at the current position and
// records that this position must later be back-patched with the resolved
// position of the element identified by id. Writing a zero-valued Identity
// means a deliberate null pointer and is written as a literal 0, never
// deferred (spec.md §4.3, "Null pointers are emitted as literal 0").
func (w *Writer) Placeholder(id Identity) {
	if id == 0 {
		w.U32(0)
		return
	}
	pos := w.Pos()
	w.U32(PlaceholderSentinel)
	if w.err != nil {
		return
	}
	w.placeholders = append(w.placeholders, placeholder{pos: pos, identity: id})
}

// Resolve records that the element identified by id is being emitted
// starting at the current position. It must be called exactly once per
// identity, at the point the element's own bytes begin.
func (w *Writer) Resolve(id Identity) {
	if id == 0 {
		return
	}
	w.resolutions[id] = w.Pos()
}

// ResolveAt records a resolution at an explicit position, for elements
// (such as string character data) whose resolvable position is not the
// start of whatever the writer most recently emitted.
func (w *Writer) ResolveAt(id Identity, pos int64) {
	if id == 0 {
		return
	}
	w.resolutions[id] = pos
}

// OverwriteU32 back-patches a u32 at an already-written position.
func (w *Writer) OverwriteU32(pos int64, v uint32) {
	if pos < 0 || pos+4 > int64(len(w.buf)) {
		w.err = gmerr.OutOfBounds
		return
	}
	w.order().PutUint32(w.buf[pos:pos+4], v)
}

// Finish resolves every recorded placeholder against the resolution table.
// An unresolved placeholder is gmerr.UnresolvedPointer. Finish is
// idempotent: calling it twice re-walks the same (now harmless) table.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	// Sort for deterministic error reporting (lowest placeholder position
	// first) when more than one is unresolved.
	sort.Slice(w.placeholders, func(i, j int) bool {
		return w.placeholders[i].pos < w.placeholders[j].pos
	})
	for _, p := range w.placeholders {
		target, ok := w.resolutions[p.identity]
		if !ok {
			return gmerr.Wrap(gmerr.UnresolvedPointer, "", p.pos, "")
		}
		if target > math.MaxUint32 {
			return gmerr.Wrap(gmerr.Failsafe, "", p.pos, "pointer target exceeds u32")
		}
		w.OverwriteU32(p.pos, uint32(target))
		if w.err != nil {
			return w.err
		}
	}
	return nil
}
