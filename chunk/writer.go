package chunk

import (
	"github.com/modgm/gmdata/databin"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Endianness databin.Endianness

	// Padding is the chunk-padding width to emit between non-last chunks.
	// Zero selects Padding16; Padding1 writes no padding at all (pre-2.0
	// engines; spec.md §4.5).
	Padding PaddingWidth
}

// Writer assembles a FORM container from a fixed-order sequence of chunk
// payloads, all written between BeginChunk/EndChunk into the one
// databin.Writer returned by DB, so that placeholders recorded while
// encoding a chunk are resolved against positions within the whole file,
// not just the chunk.
//
// gmdata encodes each chunk's payload into the *same* databin.Writer used
// for the whole file (rather than a separate buffer per chunk) precisely
// because pointers are absolute file offsets (spec.md §4.3) that must be
// resolved against the final FORM-relative position, matching the
// teacher's ChunkWriter pattern of writing directly to the one underlying
// stream and only padding between chunks.
type Writer struct {
	opts WriterOptions
	db   *databin.Writer

	formLenPos int64
	lastChunkStart int64
}

// NewWriter creates a Writer and writes the "FORM" magic and a placeholder
// total-length field.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Padding == 0 {
		opts.Padding = Padding16
	}
	w := &Writer{opts: opts, db: databin.NewWriter()}
	w.db.Endianness = opts.Endianness
	w.db.RawBytes([]byte("FORM"))
	w.formLenPos = w.db.Pos()
	w.db.U32(0) // patched in Finish
	return w
}

// DB returns the underlying databin.Writer that element codecs should write
// their chunk payloads into, between BeginChunk/EndChunk calls.
func (w *Writer) DB() *databin.Writer { return w.db }

// BeginChunk writes a chunk's 4-byte name and a placeholder length field,
// returning the position of that length field so EndChunk can patch it.
func (w *Writer) BeginChunk(name string) int64 {
	w.db.RawBytes([]byte(name))
	lenPos := w.db.Pos()
	w.db.U32(0)
	return lenPos
}

// EndChunk patches the chunk's length field now that its payload has been
// written, and (unless this is the last chunk written so far) pads the
// output to the configured padding width.
func (w *Writer) EndChunk(lenPos int64, isLast bool) {
	payloadStart := lenPos + 4
	length := w.db.Pos() - payloadStart
	w.db.OverwriteU32(lenPos, uint32(length))
	if !isLast {
		w.padTo(int64(w.opts.Padding))
	}
}

func (w *Writer) padTo(width int64) {
	if width <= 1 {
		return
	}
	for w.db.Pos()%width != 0 {
		w.db.U8(0)
	}
}

// Finish patches the FORM total-length field and resolves every pointer
// placeholder recorded while encoding chunk payloads (spec.md §4.3, "After
// all emission completes, the writer scans placeholders..."). It returns
// the finished file bytes.
func (w *Writer) Finish() ([]byte, error) {
	total := w.db.Pos() - (w.formLenPos + 4)
	w.db.OverwriteU32(w.formLenPos, uint32(total))
	if err := w.db.Finish(); err != nil {
		return nil, err
	}
	return w.db.Bytes(), nil
}
