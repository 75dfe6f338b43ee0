// Package path implements the PATH chunk: GameMaker's room-path assets, a
// named sequence of control points used to drive path-following movement.
//
// No original_source file documents PATH directly (absent from the
// retrieval pack); this codec is built at the same "simple list of typed
// records" depth the pack gives similarly undocumented chunks, following
// the well-established GameMaker data.win layout: a name, smoothing/closed
// flags, a precision value, and a flat list of (x, y, speed) control
// points.
package path

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
)

// Point is one path control point.
type Point struct {
	X, Y  float32
	Speed float32
}

// Path is one PATH chunk entry.
type Path struct {
	Name      int
	Smooth    bool
	Closed    bool
	Precision uint32
	Points    []Point
}

// Paths is the parsed PATH chunk.
type Paths struct {
	Exists bool
	List   []*Path

	identities []databin.Identity
}

// Parse reads the PATH chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool) (*Paths, error) {
	d, ok := cr.Descriptor("PATH")
	if !ok {
		return &Paths{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("PATH"); err != nil {
			return nil, err
		}
		return &Paths{Exists: true}, nil
	}

	r, err := cr.MustEnter("PATH")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "PATH", -1, "offsets")
	}

	list := make([]*Path, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		p, err := parsePath(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "PATH: path #%d", i)
		}
		list[i] = p
	}

	return &Paths{Exists: true, List: list}, nil
}

func parsePath(r *databin.Reader, pool *strg.Pool) (*Path, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "PATH", r.Pos(), "name")
	}

	p := &Path{Name: name}
	p.Smooth = r.Bool32()
	p.Closed = r.Bool32()
	p.Precision = r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	count := r.ReadSimpleListCount(12, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	p.Points = make([]Point, count)
	for i := range p.Points {
		p.Points[i].X = r.F32()
		p.Points[i].Y = r.F32()
		p.Points[i].Speed = r.F32()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	return p, nil
}

// Emit writes the PATH chunk back to w.
func (ps *Paths) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !ps.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ps.List))
	for i := range ps.List {
		ids[i] = w.NextIdentity()
	}
	ps.identities = ids

	w.WriteListCount(len(ps.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, p := range ps.List {
		w.Resolve(ids[i])
		emitPath(w, pool, p)
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th path, for chunks (rooms,
// game objects) that reference a path by resource index.
func (ps *Paths) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ps.identities) {
		return 0
	}
	return ps.identities[i]
}

func emitPath(w *databin.Writer, pool *strg.Pool, p *Path) {
	w.Placeholder(pool.IdentityFor(w, p.Name))
	w.Bool32(p.Smooth)
	w.Bool32(p.Closed)
	w.U32(p.Precision)
	w.WriteListCount(len(p.Points))
	for _, pt := range p.Points {
		w.F32(pt.X)
		w.F32(pt.Y)
		w.F32(pt.Speed)
	}
}
