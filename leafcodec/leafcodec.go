// Package leafcodec declares the boundary between gmdata's structural
// chunk codecs and the leaf image/audio codecs spec.md keeps out of scope
// (PNG/QOI/BZ2 decoding, audio container decoding). Every on-disk blob
// gmdata handles — a TXTR page's pixel data, an embedded AUDO sample — is
// round-tripped as opaque bytes; a caller that wants the decoded pixels or
// samples plugs a concrete Reader/Writer in through this interface rather
// than gmdata importing an image or audio library itself.
package leafcodec

import "io"

// Reader is an io.ReadCloser with a Reset method, letting a caller re-use
// one decoder instance across many blobs instead of allocating a fresh one
// per sprite frame or audio entry.
type Reader interface {
	io.ReadCloser

	// Reset switches this Reader to a new underlying source.
	Reset(r io.Reader) error
}

// Writer is an io.WriteCloser with a Reset method, the encode-side
// counterpart to Reader.
type Writer interface {
	io.WriteCloser

	Reset(w io.Writer) error
}

// Format names a leaf codec a blob is (believed to be) encoded with, purely
// for a caller's dispatch; gmdata never inspects blob contents to determine
// this itself (spec.md §1's "image codec selection... is a leaf dependency").
type Format string

const (
	FormatPNG Format = "png"
	FormatQOI Format = "qoi"
	FormatBZ2 Format = "bz2"
)

// Registry lets a host application register a Reader/Writer factory per
// Format, so the host can ask for a decoder without gmdata hard-wiring one
// in.
type Registry struct {
	readers map[Format]func() Reader
	writers map[Format]func() Writer
}

// NewRegistry returns an empty Registry; RegisterReader/RegisterWriter
// populate it before use.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[Format]func() Reader),
		writers: make(map[Format]func() Writer),
	}
}

func (r *Registry) RegisterReader(f Format, factory func() Reader) { r.readers[f] = factory }
func (r *Registry) RegisterWriter(f Format, factory func() Writer) { r.writers[f] = factory }

// Reader returns a new decoder for format f, or (nil, false) if nothing was
// registered for it — gmdata's own codecs never call this; it exists for
// the host application.
func (r *Registry) Reader(f Format) (Reader, bool) {
	factory, ok := r.readers[f]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func (r *Registry) Writer(f Format) (Writer, bool) {
	factory, ok := r.writers[f]
	if !ok {
		return nil, false
	}
	return factory(), true
}
