// Package animcurve implements the ACRV chunk (standalone animation curves)
// and the GMAnimationCurve element embedded as a track's owned resource in
// SEQN (spec.md §3, "Sequences (SEQN) and timelines (TMLN)").
//
// Each curve is a named graph of one or more channels, every channel a list
// of (x, y) control points optionally carrying cubic Bezier handles once the
// engine version supports them.
package animcurve

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// CurveType is a channel's interpolation kind.
type CurveType uint32

const (
	CurveTypeLinear CurveType = 0
	CurveTypeSmooth CurveType = 1
)

// BezierData is a channel point's cubic Bezier handle pair, present from
// 2.3.1 onward.
type BezierData struct {
	X0, Y0, X1, Y1 float32
}

// Point is one control point of a Channel.
type Point struct {
	X, Y   float32
	Bezier *BezierData
}

// Channel is one named curve within a Curve, e.g. the red/green/blue
// channels of a colour curve.
type Channel struct {
	Name       int // string pool index
	CurveType  CurveType
	Iterations uint32
	Points     []Point
}

// Curve is one entry of the ACRV chunk, or one track's owned animation
// curve resource embedded inline in SEQN.
type Curve struct {
	Name      int // string pool index
	GraphType uint32
	Channels  []Channel
}

// Curves is the parsed ACRV chunk.
type Curves struct {
	Exists bool
	List   []*Curve

	identities []databin.Identity
}

// Parse reads the ACRV chunk: a 4-byte-aligned u32 version (must be 1), then
// a pointer list of curves (spec.md §3).
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Curves, error) {
	d, ok := cr.Descriptor("ACRV")
	if !ok {
		return &Curves{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("ACRV"); err != nil {
			return nil, err
		}
		return &Curves{Exists: true}, nil
	}

	r, err := cr.MustEnter("ACRV")
	if err != nil {
		return nil, err
	}

	r.Align(4)
	ver := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "ACRV", -1, "version")
	}
	if ver != 1 {
		return nil, gmerr.Wrap(gmerr.VersionContract, "ACRV", -1, "expected version 1")
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "ACRV", -1, "offsets")
	}

	list := make([]*Curve, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		c, err := ParseElement(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "ACRV: curve #%d", i)
		}
		list[i] = c
	}

	return &Curves{Exists: true, List: list}, nil
}

// ParseElement reads one GMAnimationCurve's fields directly from r, with no
// surrounding version or list framing. Used both by Parse (ACRV) and by a
// track's owned-resource list (sequence package).
func ParseElement(r *databin.Reader, pool *strg.Pool, target version.Version) (*Curve, error) {
	strOff := r.StringRef()
	nameIdx, _, err := pool.Resolve(strOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "", r.Pos(), "curve name")
	}

	graphType := r.U32()
	channelCount := r.ReadSimpleListCount(1, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "channel count")
	}

	channels := make([]Channel, channelCount)
	for i := range channels {
		ch, err := parseChannel(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "channel #%d", i)
		}
		channels[i] = ch
	}

	return &Curve{Name: nameIdx, GraphType: graphType, Channels: channels}, nil
}

func parseChannel(r *databin.Reader, pool *strg.Pool, target version.Version) (Channel, error) {
	strOff := r.StringRef()
	nameIdx, _, err := pool.Resolve(strOff)
	if err != nil {
		return Channel{}, gmerr.Wrap(err, "", r.Pos(), "channel name")
	}

	curveType := CurveType(r.U32())
	if curveType != CurveTypeLinear && curveType != CurveTypeSmooth {
		return Channel{}, gmerr.Wrap(gmerr.InvalidEnum, "", r.Pos(), "curve type")
	}
	iterations := r.U32()

	pointCount := r.ReadSimpleListCount(8, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return Channel{}, gmerr.Wrap(r.Err(), "", r.Pos(), "point count")
	}

	points := make([]Point, pointCount)
	for i := range points {
		x, y := r.F32(), r.F32()
		points[i] = Point{X: x, Y: y, Bezier: readBezierOrPad(r, target)}
	}
	if r.Err() != nil {
		return Channel{}, gmerr.Wrap(r.Err(), "", r.Pos(), "points")
	}

	return Channel{Name: nameIdx, CurveType: curveType, Iterations: iterations, Points: points}, nil
}

// readBezierOrPad reads a point's trailing cubic Bezier handle (2.3.1+) or
// the legacy unused padding i32 it replaced (spec.md's version-gated field
// layout convention, here grounded on GMAnimationCurveChannelPoint).
func readBezierOrPad(r *databin.Reader, target version.Version) *BezierData {
	if !target.AtLeast(version.V2_3_1) {
		r.S32()
		return nil
	}
	return &BezierData{X0: r.F32(), Y0: r.F32(), X1: r.F32(), Y1: r.F32()}
}

// Emit writes the ACRV chunk.
func (c *Curves) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !c.Exists {
		return w.Err()
	}
	w.Align(4)
	w.U32(1)
	ids := make([]databin.Identity, len(c.List))
	for i := range c.List {
		ids[i] = c.IdentityFor(w, i)
	}
	pl := w.BeginPointerList(ids)
	for i, curve := range c.List {
		pl.ResolveElement(i)
		if err := EmitElement(w, pool, target, curve); err != nil {
			return gmerr.Atf(err, "ACRV: curve #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the placeholder Identity for curve i, assigning one
// on first use. A track's owned-resource slot defers to this so the ACRV
// chunk (if curve i is also listed there) and the inline copy agree.
func (c *Curves) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if c.identities == nil {
		c.identities = make([]databin.Identity, len(c.List))
	}
	if c.identities[i] == 0 {
		c.identities[i] = w.NextIdentity()
	}
	return c.identities[i]
}

// EmitElement writes one GMAnimationCurve's fields with no surrounding
// version or list framing, the Emit-side counterpart to ParseElement.
func EmitElement(w *databin.Writer, pool *strg.Pool, target version.Version, c *Curve) error {
	w.Placeholder(pool.IdentityFor(w, c.Name))
	w.U32(c.GraphType)
	w.WriteListCount(len(c.Channels))
	for i, ch := range c.Channels {
		if err := emitChannel(w, pool, target, ch); err != nil {
			return gmerr.Atf(err, "channel #%d", i)
		}
	}
	return w.Err()
}

func emitChannel(w *databin.Writer, pool *strg.Pool, target version.Version, ch Channel) error {
	w.Placeholder(pool.IdentityFor(w, ch.Name))
	w.U32(uint32(ch.CurveType))
	w.U32(ch.Iterations)
	w.WriteListCount(len(ch.Points))
	for _, p := range ch.Points {
		w.F32(p.X)
		w.F32(p.Y)
		if target.AtLeast(version.V2_3_1) {
			b := p.Bezier
			if b == nil {
				b = &BezierData{}
			}
			w.F32(b.X0)
			w.F32(b.Y0)
			w.F32(b.X1)
			w.F32(b.Y1)
		} else {
			w.S32(0)
		}
	}
	return w.Err()
}
