// Package background implements the BGND chunk: background/tileset
// assets, with GMS2's tile-animation metadata appended from 2.0 onward.
package background

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

const listAlignment = 8

// GMS2Data is the tileset animation metadata appended to a background from
// GameMaker 2.0 onward.
type GMS2Data struct {
	TileWidth       uint32
	TileHeight      uint32
	OutputBorderX   uint32
	OutputBorderY   uint32
	TileColumns     uint32
	ItemsPerTile    int
	FrameLengthUsec int64
	TileIDs         []uint32
}

// Background is one BGND chunk entry.
type Background struct {
	Name          int
	Transparent   bool
	Smooth        bool
	Preload       bool
	Texture       int32 // -1 = absent
	GMS2          *GMS2Data
}

// Backgrounds is the parsed BGND chunk.
type Backgrounds struct {
	Exists   bool
	List     []*Background
	IsAligned bool

	identities []databin.Identity
}

// Parse reads the BGND chunk. Each background's offset is checked for 8-byte
// alignment; the first unaligned offset permanently demotes the chunk to
// plain (unaligned) pointer-list emission, matching the original reader's
// own detection.
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Backgrounds, error) {
	d, ok := cr.Descriptor("BGND")
	if !ok {
		return &Backgrounds{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("BGND"); err != nil {
			return nil, err
		}
		return &Backgrounds{Exists: true, IsAligned: true}, nil
	}

	r, err := cr.MustEnter("BGND")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "BGND", -1, "offsets")
	}

	var misalign databin.AlignedListMisalignment
	for _, off := range offsets {
		misalign.Observe(off)
	}

	list := make([]*Background, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		b, err := parseBackground(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "BGND: background #%d", i)
		}
		list[i] = b
	}

	return &Backgrounds{Exists: true, List: list, IsAligned: !misalign.Misaligned}, nil
}

func resolveOptionalResource(r *databin.Reader) int32 {
	idx, ok := r.OptionalRef()
	if !ok {
		return -1
	}
	return idx
}

func writeOptionalResource(w *databin.Writer, idx int32) {
	if idx < 0 {
		w.S32(-1)
		return
	}
	w.U32(uint32(idx))
}

func parseBackground(r *databin.Reader, pool *strg.Pool, target version.Version) (*Background, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "BGND", r.Pos(), "name")
	}

	b := &Background{Name: name}
	b.Transparent = r.Bool32()
	b.Smooth = r.Bool32()
	b.Preload = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	b.Texture = resolveOptionalResource(r)
	if r.Err() != nil {
		return nil, r.Err()
	}

	if target.AtLeast(version.V2) {
		gms2, err := parseGMS2Data(r)
		if err != nil {
			return nil, gmerr.Atf(err, "BGND: GMS2 data")
		}
		b.GMS2 = gms2
	}

	return b, nil
}

func parseGMS2Data(r *databin.Reader) (*GMS2Data, error) {
	unknownAlwaysTwo := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if unknownAlwaysTwo != 2 {
		return nil, gmerr.Atf(gmerr.CorruptStructure, "background GMS2 data: expected constant 2, got %d", unknownAlwaysTwo)
	}

	d := &GMS2Data{}
	d.TileWidth = r.U32()
	d.TileHeight = r.U32()
	d.OutputBorderX = r.U32()
	d.OutputBorderY = r.U32()
	d.TileColumns = r.U32()
	itemsPerTile := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if itemsPerTile == 0 {
		return nil, gmerr.Atf(gmerr.CorruptStructure, "background GMS2 data: items per tile cannot be zero")
	}
	d.ItemsPerTile = int(itemsPerTile)

	tileCount := r.U32()
	unknownAlwaysZero := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if unknownAlwaysZero != 0 {
		return nil, gmerr.Atf(gmerr.CorruptStructure, "background GMS2 data: expected constant 0, got %d", unknownAlwaysZero)
	}
	d.FrameLengthUsec = r.S64()
	if r.Err() != nil {
		return nil, r.Err()
	}

	total := int64(tileCount) * int64(itemsPerTile)
	if total*4 > databin.MaxSimpleListBytes {
		return nil, gmerr.Wrap(gmerr.Failsafe, "BGND", r.Pos(), "tile id count")
	}
	d.TileIDs = make([]uint32, total)
	for i := range d.TileIDs {
		d.TileIDs[i] = r.U32()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	return d, nil
}

// Emit writes the BGND chunk back to w.
func (bs *Backgrounds) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !bs.Exists {
		return nil
	}

	ids := make([]databin.Identity, len(bs.List))
	for i := range bs.List {
		ids[i] = w.NextIdentity()
	}
	bs.identities = ids

	if bs.IsAligned {
		w.WriteListCount(len(bs.List))
		for i := range bs.List {
			w.Placeholder(ids[i])
		}
		for i := range bs.List {
			w.Align(listAlignment)
			w.Resolve(ids[i])
			if err := emitBackground(w, pool, target, bs.List[i]); err != nil {
				return gmerr.Atf(err, "background #%d", i)
			}
		}
		return w.Err()
	}

	list := w.BeginPointerList(ids)
	for i, b := range bs.List {
		list.ResolveElement(i)
		if err := emitBackground(w, pool, target, b); err != nil {
			return gmerr.Atf(err, "background #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th background, for chunks that
// reference a background by resource index (room layer backgrounds, tiles).
func (bs *Backgrounds) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(bs.identities) {
		return 0
	}
	return bs.identities[i]
}

func emitBackground(w *databin.Writer, pool *strg.Pool, target version.Version, b *Background) error {
	w.Placeholder(pool.IdentityFor(w, b.Name))
	w.Bool32(b.Transparent)
	w.Bool32(b.Smooth)
	w.Bool32(b.Preload)
	writeOptionalResource(w, b.Texture)

	if target.AtLeast(version.V2) {
		if b.GMS2 == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "background missing required GMS2 data for target version")
		}
		emitGMS2Data(w, b.GMS2)
	}
	return w.Err()
}

func emitGMS2Data(w *databin.Writer, d *GMS2Data) error {
	w.U32(2)
	w.U32(d.TileWidth)
	w.U32(d.TileHeight)
	w.U32(d.OutputBorderX)
	w.U32(d.OutputBorderY)
	w.U32(d.TileColumns)

	total := len(d.TileIDs)
	if d.ItemsPerTile == 0 {
		return gmerr.Atf(gmerr.CorruptStructure, "background GMS2 data: items per tile is zero")
	}
	if total%d.ItemsPerTile != 0 {
		return gmerr.Atf(gmerr.CorruptStructure, "background GMS2 data: %d total tiles does not divide evenly by %d items per tile", total, d.ItemsPerTile)
	}
	tileCount := total / d.ItemsPerTile
	w.U32(uint32(d.ItemsPerTile))
	w.U32(uint32(tileCount))

	w.U32(0)
	w.S64(d.FrameLengthUsec)
	for _, id := range d.TileIDs {
		w.U32(id)
	}
	return nil
}
