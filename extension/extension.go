// Package extension implements the EXTN chunk: extension option records
// (name/value/kind triples) plus a trailing per-extension product-id blob
// present from GameMaker Studio 2 onward (and a handful of GMS1 builds).
package extension

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// productIDSize is the fixed size of each extension's opaque product-id
// blob.
const productIDSize = 16

// OptionKind is an extension option's value type.
type OptionKind uint32

const (
	Boolean OptionKind = 0
	Number  OptionKind = 1
	String  OptionKind = 2
)

// Extension is one EXTN chunk entry.
type Extension struct {
	Name  int
	Value int
	Kind  OptionKind
}

// Extensions is the parsed EXTN chunk.
type Extensions struct {
	Exists bool
	List   []*Extension

	// ProductIDData holds one opaque 16-byte product-id blob per extension,
	// present only on targets where hasProductIDData(target) is true.
	ProductIDData [][productIDSize]byte

	identities []databin.Identity
}

// hasProductIDData reports whether target writes the per-extension
// product-id trailer, per the original's own version check (GMS2+, every
// GMS1 build from 1773 onward, and GMS1 build 1539).
func hasProductIDData(target version.Version) bool {
	if target.Major >= 2 {
		return true
	}
	if target.Major == 1 && target.Build >= 1773 {
		return true
	}
	if target.Major == 1 && target.Build == 1539 {
		return true
	}
	return false
}

// Parse reads the EXTN chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Extensions, error) {
	d, ok := cr.Descriptor("EXTN")
	if !ok {
		return &Extensions{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("EXTN"); err != nil {
			return nil, err
		}
		return &Extensions{Exists: true}, nil
	}

	r, err := cr.MustEnter("EXTN")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "EXTN", -1, "offsets")
	}

	list := make([]*Extension, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		e, err := parseExtension(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "EXTN: extension #%d", i)
		}
		list[i] = e
	}

	es := &Extensions{Exists: true, List: list}
	if hasProductIDData(target) {
		es.ProductIDData = make([][productIDSize]byte, len(list))
		for i := range es.ProductIDData {
			b := r.Bytes(productIDSize)
			if r.Err() != nil {
				return nil, gmerr.Wrap(r.Err(), "EXTN", r.Pos(), "product id data")
			}
			copy(es.ProductIDData[i][:], b)
		}
	}

	return es, nil
}

func parseExtension(r *databin.Reader, pool *strg.Pool) (*Extension, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "EXTN", r.Pos(), "name")
	}
	valueOff := r.StringRef()
	value, _, err := pool.Resolve(valueOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "EXTN", r.Pos(), "value")
	}
	kind := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if kind > uint32(String) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "EXTN", r.Pos(), "kind")
	}
	return &Extension{Name: name, Value: value, Kind: OptionKind(kind)}, nil
}

// Emit writes the EXTN chunk back to w.
func (es *Extensions) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !es.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(es.List))
	for i := range es.List {
		ids[i] = w.NextIdentity()
	}
	es.identities = ids

	w.WriteListCount(len(es.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, e := range es.List {
		w.Resolve(ids[i])
		emitExtension(w, pool, e)
	}

	if hasProductIDData(target) {
		if len(es.ProductIDData) != len(es.List) {
			return gmerr.Atf(gmerr.CorruptStructure, "EXTN: product id data count %d does not match extension count %d", len(es.ProductIDData), len(es.List))
		}
		for _, blob := range es.ProductIDData {
			w.RawBytes(blob[:])
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th extension, for chunks that
// reference an extension by resource index.
func (es *Extensions) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(es.identities) {
		return 0
	}
	return es.identities[i]
}

func emitExtension(w *databin.Writer, pool *strg.Pool, e *Extension) {
	w.Placeholder(pool.IdentityFor(w, e.Name))
	w.Placeholder(pool.IdentityFor(w, e.Value))
	w.U32(uint32(e.Kind))
}
