package chunk

import (
	"encoding/binary"

	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
)

var formMagic = [4]byte{'F', 'O', 'R', 'M'}

// ReaderOptions configures a Reader, following the teacher's exported-field
// configuration style (lib/rac.Reader.MakeDecompressor etc.) rather than a
// free-standing config package.
type ReaderOptions struct {
	// Endianness is little-endian by default; set BigEndian for certain
	// console targets (spec.md §4.1).
	Endianness databin.Endianness

	// AllowUnreadChunks disables the UnreadChunks failure at the end of
	// parsing, for tolerating unknown chunks (spec.md §4.5).
	AllowUnreadChunks bool
}

// Reader dispatches a FORM container's child chunks by name. It builds the
// name→bounds map once, up front, then each element codec calls Enter to
// get a databin.Reader scoped to its chunk's bytes.
type Reader struct {
	opts ReaderOptions
	buf  []byte

	chunks    map[string]Descriptor
	consumed  map[string]bool
	order     []string // chunk names in on-disk order, for diagnostics

	padding PaddingWidth
}

// Open parses the FORM header and every child chunk header (but not their
// payloads), building the Reader's dispatch table.
func Open(buf []byte, opts ReaderOptions) (*Reader, error) {
	r := &Reader{
		opts:     opts,
		buf:      buf,
		chunks:   make(map[string]Descriptor),
		consumed: make(map[string]bool),
		padding:  Padding16,
	}

	db := databin.NewReader(buf)
	db.Endianness = opts.Endianness
	db.SetChunk("FORM", 0, int64(len(buf)), true)

	magic := db.Bytes(4)
	if db.Err() != nil {
		return nil, db.Err()
	}
	if [4]byte{magic[0], magic[1], magic[2], magic[3]} != formMagic {
		return nil, gmerr.Wrap(gmerr.InvalidMagic, "FORM", 0, "magic")
	}
	totalLen := db.U32()
	if db.Err() != nil {
		return nil, db.Err()
	}
	formEnd := int64(8) + int64(totalLen)
	if formEnd > int64(len(buf)) {
		return nil, gmerr.Wrap(gmerr.OutOfBounds, "FORM", 4, "total_length")
	}

	pos := int64(8)
	for pos < formEnd {
		if pos+8 > formEnd {
			return nil, gmerr.Wrap(gmerr.OutOfBounds, "FORM", pos, "chunk header")
		}
		name := string(buf[pos : pos+4])
		order := binary.ByteOrder(binary.LittleEndian)
		if db.Endianness == databin.BigEndian {
			order = binary.BigEndian
		}
		length := int64(order.Uint32(buf[pos+4 : pos+8]))
		start := pos + 8
		end := start + length
		if end > formEnd {
			return nil, gmerr.Wrap(gmerr.OutOfBounds, name, start, "chunk payload")
		}

		isLast := end == formEnd
		r.chunks[name] = Descriptor{Name: name, Start: start, End: end, IsLast: isLast}
		r.order = append(r.order, name)

		pos = end
		if !isLast {
			pos = r.skipPadding(buf, pos, formEnd)
		}
	}

	// Exactly one chunk is flagged last; fix up if padding arithmetic ever
	// disagreed with formEnd (defensive; in valid files this is a no-op).
	if len(r.order) > 0 {
		last := r.order[len(r.order)-1]
		d := r.chunks[last]
		d.IsLast = true
		r.chunks[last] = d
	}

	return r, nil
}

// skipPadding advances past a chunk's trailing zero padding, inferring the
// padding width by demotion the first time a non-zero byte appears before
// the expected boundary (spec.md §4.5).
func (r *Reader) skipPadding(buf []byte, pos, limit int64) int64 {
	for {
		width := int64(r.padding)
		aligned := (pos + width - 1) / width * width
		if aligned > limit {
			aligned = limit
		}
		ok := true
		for p := pos; p < aligned; p++ {
			if buf[p] != 0 {
				ok = false
				break
			}
		}
		if ok {
			return aligned
		}
		if r.padding == Padding1 {
			// No room left to demote; treat as zero padding.
			return pos
		}
		r.padding = r.padding.Demote()
	}
}

// Has reports whether the named chunk is present.
func (r *Reader) Has(name string) bool {
	_, ok := r.chunks[name]
	return ok
}

// Descriptor returns the named chunk's bounds, if present.
func (r *Reader) Descriptor(name string) (Descriptor, bool) {
	d, ok := r.chunks[name]
	return d, ok
}

// Enter returns a databin.Reader scoped to the named chunk's payload, or
// (nil, false) if the chunk is absent. Calling Enter marks the chunk
// consumed for the UnreadChunks check in Finish.
func (r *Reader) Enter(name string) (*databin.Reader, bool) {
	d, ok := r.chunks[name]
	if !ok {
		return nil, false
	}
	r.consumed[name] = true
	db := databin.NewReader(r.buf)
	db.Endianness = r.opts.Endianness
	db.SetChunk(d.Name, d.Start, d.End, d.IsLast)
	return db, true
}

// MustEnter is Enter for chunks spec.md §4.5 requires (STRG, GEN8); a
// missing required chunk is gmerr.CorruptStructure.
func (r *Reader) MustEnter(name string) (*databin.Reader, error) {
	db, ok := r.Enter(name)
	if !ok {
		return nil, gmerr.Wrap(gmerr.CorruptStructure, name, -1, "required chunk missing")
	}
	return db, nil
}

// PeekBytes returns the named chunk's raw payload bytes without marking it
// consumed, for version-detection probes that must not affect the
// UnreadChunks accounting of real parsing (spec.md §4.8, "probes are
// read-only w.r.t. data").
func (r *Reader) PeekBytes(name string) ([]byte, bool) {
	d, ok := r.chunks[name]
	if !ok {
		return nil, false
	}
	return r.buf[d.Start:d.End], true
}

// PeekReader returns a fresh databin.Reader scoped to the named chunk
// without marking it consumed, for version-detection probes.
func (r *Reader) PeekReader(name string) (*databin.Reader, bool) {
	d, ok := r.chunks[name]
	if !ok {
		return nil, false
	}
	db := databin.NewReader(r.buf)
	db.Endianness = r.opts.Endianness
	db.SetChunk(d.Name, d.Start, d.End, d.IsLast)
	return db, true
}

// FullReader returns a databin.Reader whose bounds span the entire buffer
// rather than a single chunk, for version-detection probes that follow
// pointers across chunk boundaries (spec.md §4.8's structural probes treat
// offsets as absolute file positions, not chunk-relative ones).
func (r *Reader) FullReader() *databin.Reader {
	db := databin.NewReader(r.buf)
	db.Endianness = r.opts.Endianness
	db.SetChunk("", 0, int64(len(r.buf)), true)
	return db
}

// Names returns every present chunk name, in on-disk order.
func (r *Reader) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Finish checks that every present chunk was consumed via Enter, unless
// AllowUnreadChunks is set (spec.md §4.5).
func (r *Reader) Finish() error {
	if r.opts.AllowUnreadChunks {
		return nil
	}
	var unread []string
	for _, name := range r.order {
		if !r.consumed[name] {
			unread = append(unread, name)
		}
	}
	if len(unread) > 0 {
		return gmerr.Atf(gmerr.UnreadChunks, "unread chunks %v", unread)
	}
	return nil
}
