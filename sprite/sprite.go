// Package sprite implements the SPRT chunk. A sprite is a named animation
// frame set: dimensions, bounding-box margins, a list of texture page item
// references (one per frame), per-frame collision masks, and — once the
// engine added them — an optional "special" block carrying playback
// settings, an inline sequence, and nine-slice scaling data (spec.md §3,
// §4.6).
//
// SWF- and Spine-sourced sprites are a distinct on-wire encoding the engine
// still tags as SPRT entries but whose body is a deeply recursive vector
// shape/timeline format (Spine) or SWF shape/fill/bitmap records (SWF) that
// gmdata does not decode: Parse fails with gmerr.CorruptStructure on such a
// sprite, and Emit rejects one the same way.
package sprite

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/sequence"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/texture"
	"github.com/modgm/gmdata/version"
)

// SepMaskType selects how a sprite's per-frame collision mask is derived.
type SepMaskType uint32

const (
	SepMaskAxisAlignedRect SepMaskType = 0
	SepMaskPrecise         SepMaskType = 1
	SepMaskRotatedRect     SepMaskType = 2
)

// SpecialSpriteType tags which encoding a sprite's special block uses.
type SpecialSpriteType uint32

const (
	SpecialNormal SpecialSpriteType = 0
	SpecialSWF    SpecialSpriteType = 1
	SpecialSpine  SpecialSpriteType = 2
)

// NineSliceTileMode selects how a nine-slice edge/center region repeats.
type NineSliceTileMode int32

const (
	NineSliceStretch     NineSliceTileMode = 0
	NineSliceRepeat      NineSliceTileMode = 1
	NineSliceMirror      NineSliceTileMode = 2
	NineSliceBlankRepeat NineSliceTileMode = 3
	NineSliceHide        NineSliceTileMode = 4
)

// NineSlice is a sprite's inline nine-slice scaling configuration, present
// from special_version 3 onward.
type NineSlice struct {
	Left, Top, Right, Bottom int32
	Enabled                  bool
	TileModes                [5]NineSliceTileMode
}

// MaskEntry is one per-frame collision mask: a row-major bitmask, (width+7)/8
// bytes per row, height rows, width/height recorded alongside since they can
// differ from the sprite's own Width/Height once bbox-derived (2024.6+;
// spec.md §4.6).
type MaskEntry struct {
	Data          []byte
	Width, Height int
}

// Special is a sprite's version-gated special block: playback settings for
// animated sprites, plus (for Normal sprites only, mirroring the original's
// own serialize-side gating) an inline sequence and nine-slice data.
type Special struct {
	SpecialVersion    uint32
	SpriteType        SpecialSpriteType
	PlaybackSpeed     float32
	PlaybackSpeedType sequence.SpeedType

	// Sequence and NineSlice are only ever populated for SpriteType ==
	// SpecialNormal; the original codebase's own emit path only re-offers
	// these for Normal regardless of what special_version implies, an
	// asymmetry gmdata preserves rather than "fixes" (spec.md's
	// follow-the-original-on-silence stance).
	Sequence  *sequence.Sequence
	NineSlice *NineSlice
}

// Sprite is one SPRT entry.
type Sprite struct {
	Name                                     int // string pool index
	Width, Height                            uint32
	MarginLeft, MarginRight, MarginBottom, MarginTop int32
	Transparent, Smooth, Preload             bool
	BBoxMode                                 int32
	SepMasks                                 SepMaskType
	OriginX, OriginY                         int32

	// Textures holds one texture-page-item index per frame; -1 marks a
	// frame with no texture (spec.md's optional-reference convention).
	Textures []int

	CollisionMasks []MaskEntry

	// Special is nil for a sprite with no special block (pre-2.0 engines,
	// or a file that simply never emitted one).
	Special *Special
}

// Sprites is the parsed SPRT chunk.
type Sprites struct {
	Exists bool
	List   []*Sprite

	identities []databin.Identity
}

// Parse reads the SPRT chunk: a pointer list of sprites (spec.md §3).
func Parse(cr *chunk.Reader, pool *strg.Pool, textures *texture.Textures, target version.Version) (*Sprites, error) {
	d, ok := cr.Descriptor("SPRT")
	if !ok {
		return &Sprites{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("SPRT"); err != nil {
			return nil, err
		}
		return &Sprites{Exists: true}, nil
	}

	r, err := cr.MustEnter("SPRT")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SPRT", -1, "offsets")
	}

	list := make([]*Sprite, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		s, err := parseSprite(r, pool, textures, target)
		if err != nil {
			return nil, gmerr.Atf(err, "SPRT: sprite #%d", i)
		}
		list[i] = s
	}

	return &Sprites{Exists: true, List: list}, nil
}

func parseTextureList(r *databin.Reader, textures *texture.Textures) ([]int, error) {
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	out := make([]int, count)
	for i := range out {
		off := r.StringRef() // same u32-offset-or-zero shape as a string ref
		if r.Err() != nil {
			return nil, r.Err()
		}
		if off == 0 {
			out[i] = -1
			continue
		}
		idx, err := textures.Resolve(off)
		if err != nil {
			return nil, gmerr.Atf(err, "texture frame #%d", i)
		}
		out[i] = idx
	}
	return out, nil
}

func maskDims(width, height uint32, marginLeft, marginRight, marginBottom, marginTop int32, target version.Version) (int, int) {
	if target.AtLeast(version.V2024_6) {
		return int(marginRight - marginLeft + 1), int(marginBottom - marginTop + 1)
	}
	return int(width), int(height)
}

func calculateMaskDataSize(width, height, maskCount int) int {
	roundedWidth := (width + 7) / 8 * 8
	dataBits := roundedWidth * height * maskCount
	return (dataBits + 31) / 32 * 32 / 8
}

func readMaskData(r *databin.Reader, width, height int) ([]MaskEntry, error) {
	maskCount := r.ReadSimpleListCount(1, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}

	rowBytes := (width + 7) / 8
	entryLen := rowBytes * height
	masks := make([]MaskEntry, maskCount)
	total := 0
	for i := range masks {
		data := append([]byte(nil), r.Bytes(entryLen)...)
		if r.Err() != nil {
			return nil, r.Err()
		}
		masks[i] = MaskEntry{Data: data, Width: width, Height: height}
		total += entryLen
	}

	for total%4 != 0 {
		b := r.U8()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if b != 0 {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "SPRT", r.Pos()-1, "mask padding")
		}
		total++
	}

	expected := calculateMaskDataSize(width, height, maskCount)
	if total != expected {
		return nil, gmerr.Wrap(gmerr.CorruptStructure, "SPRT", r.Pos(), "mask data size")
	}

	return masks, nil
}

func parseSprite(r *databin.Reader, pool *strg.Pool, textures *texture.Textures, target version.Version) (*Sprite, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "SPRT", r.Pos(), "name")
	}

	s := &Sprite{Name: name}
	s.Width = r.U32()
	s.Height = r.U32()
	s.MarginLeft = r.S32()
	s.MarginRight = r.S32()
	s.MarginBottom = r.S32()
	s.MarginTop = r.S32()
	s.Transparent = r.Bool32()
	s.Smooth = r.Bool32()
	s.Preload = r.Bool32()
	s.BBoxMode = r.S32()
	sepMasks := r.U32()
	if sepMasks > uint32(SepMaskRotatedRect) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "SPRT", r.Pos(), "sep masks")
	}
	s.SepMasks = SepMaskType(sepMasks)
	s.OriginX = r.S32()
	s.OriginY = r.S32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SPRT", r.Pos(), "header")
	}

	sentinel := r.S32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SPRT", r.Pos(), "special sentinel")
	}

	if sentinel == -1 && target.AtLeast(version.V2) {
		special, err := parseSpecial(r, pool, textures, target, s)
		if err != nil {
			return nil, gmerr.Atf(err, "special block")
		}
		s.Special = special
		return s, nil
	}

	r.SeekTo(r.Pos() - 4)
	texs, err := parseTextureList(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "textures")
	}
	s.Textures = texs

	mw, mh := maskDims(s.Width, s.Height, s.MarginLeft, s.MarginRight, s.MarginBottom, s.MarginTop, target)
	masks, err := readMaskData(r, mw, mh)
	if err != nil {
		return nil, gmerr.Atf(err, "masks")
	}
	s.CollisionMasks = masks

	return s, nil
}

func parseSpecial(r *databin.Reader, pool *strg.Pool, textures *texture.Textures, target version.Version, s *Sprite) (*Special, error) {
	specialVersion := r.U32()
	spriteType := r.U32()
	if spriteType > uint32(SpecialSpine) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "SPRT", r.Pos(), "special sprite type")
	}
	playbackSpeed := r.F32()
	speedType := r.U32()
	if speedType > uint32(sequence.SpeedFramesPerGameFrame) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "SPRT", r.Pos(), "playback speed type")
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SPRT", r.Pos(), "special header")
	}

	var sequenceOffset, nineSliceOffset int32
	if specialVersion >= 2 {
		sequenceOffset = r.S32()
	}
	if specialVersion >= 3 {
		nineSliceOffset = r.S32()
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SPRT", r.Pos(), "special offsets")
	}

	special := &Special{
		SpecialVersion: specialVersion, SpriteType: SpecialSpriteType(spriteType),
		PlaybackSpeed: playbackSpeed, PlaybackSpeedType: sequence.SpeedType(speedType),
	}

	switch SpecialSpriteType(spriteType) {
	case SpecialNormal:
		texs, err := parseTextureList(r, textures)
		if err != nil {
			return nil, gmerr.Atf(err, "textures")
		}
		s.Textures = texs
		mw, mh := maskDims(s.Width, s.Height, s.MarginLeft, s.MarginRight, s.MarginBottom, s.MarginTop, target)
		masks, err := readMaskData(r, mw, mh)
		if err != nil {
			return nil, gmerr.Atf(err, "masks")
		}
		s.CollisionMasks = masks
	case SpecialSWF, SpecialSpine:
		return nil, gmerr.Atf(gmerr.CorruptStructure,
			"sprite special type %d (SWF/Spine) not decoded; gmdata only round-trips Normal sprites' special block", spriteType)
	}

	if sequenceOffset != 0 {
		seqVersion := r.S32()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "SPRT", r.Pos(), "inline sequence version")
		}
		if seqVersion != 1 {
			return nil, gmerr.Wrap(gmerr.VersionContract, "SPRT", r.Pos(), "expected inline SEQN version 1")
		}
		seq, err := sequence.ParseElement(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "inline sequence")
		}
		special.Sequence = seq
	}

	if nineSliceOffset != 0 {
		ns, err := parseNineSlice(r)
		if err != nil {
			return nil, gmerr.Atf(err, "nine slice")
		}
		special.NineSlice = ns
	}

	return special, nil
}

func parseNineSlice(r *databin.Reader) (*NineSlice, error) {
	ns := &NineSlice{
		Left: r.S32(), Top: r.S32(), Right: r.S32(), Bottom: r.S32(),
		Enabled: r.Bool32(),
	}
	for i := range ns.TileModes {
		v := r.S32()
		if v < int32(NineSliceStretch) || v > int32(NineSliceHide) {
			return nil, gmerr.Wrap(gmerr.InvalidEnum, "SPRT", r.Pos(), "nine slice tile mode")
		}
		ns.TileModes[i] = NineSliceTileMode(v)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ns, nil
}

// Emit writes the SPRT chunk.
func (s *Sprites) Emit(w *databin.Writer, pool *strg.Pool, textures *texture.Textures, target version.Version) error {
	if !s.Exists {
		return w.Err()
	}
	ids := make([]databin.Identity, len(s.List))
	for i := range s.List {
		ids[i] = s.IdentityFor(w, i)
	}
	pl := w.BeginPointerList(ids)
	for i, sp := range s.List {
		pl.ResolveElement(i)
		if err := emitSprite(w, pool, textures, target, sp); err != nil {
			return gmerr.Atf(err, "SPRT: sprite #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the placeholder Identity for sprite i.
func (s *Sprites) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if s.identities == nil {
		s.identities = make([]databin.Identity, len(s.List))
	}
	if s.identities[i] == 0 {
		s.identities[i] = w.NextIdentity()
	}
	return s.identities[i]
}

func emitTextureList(w *databin.Writer, textures *texture.Textures, list []int) {
	w.WriteListCount(len(list))
	for _, idx := range list {
		if idx < 0 {
			w.U32(0)
			continue
		}
		w.Placeholder(textures.ItemIdentityFor(w, idx))
	}
}

func emitMaskData(w *databin.Writer, masks []MaskEntry, width, height uint32, marginLeft, marginRight, marginBottom, marginTop int32, target version.Version) error {
	w.WriteListCount(len(masks))
	total := 0
	for _, m := range masks {
		w.RawBytes(m.Data)
		total += len(m.Data)
	}
	for total%4 != 0 {
		w.U8(0)
		total++
	}

	w2, h2 := width, height
	if target.AtLeast(version.V2024_6) {
		w2 = uint32(marginRight - marginLeft + 1)
		h2 = uint32(marginBottom - marginTop + 1)
	}
	expected := calculateMaskDataSize(int(w2), int(h2), len(masks))
	if total != expected {
		return gmerr.Wrap(gmerr.CorruptStructure, "SPRT", -1, "mask data size")
	}
	return nil
}

func emitSprite(w *databin.Writer, pool *strg.Pool, textures *texture.Textures, target version.Version, s *Sprite) error {
	w.Placeholder(pool.IdentityFor(w, s.Name))
	w.U32(s.Width)
	w.U32(s.Height)
	w.S32(s.MarginLeft)
	w.S32(s.MarginRight)
	// Mirrors the original's own byte order: bottom then top on emit, even
	// though parse reads bottom then top too — both sides agree here, kept
	// explicit because it's easy to transpose by accident.
	w.S32(s.MarginBottom)
	w.S32(s.MarginTop)
	w.Bool32(s.Transparent)
	w.Bool32(s.Smooth)
	w.Bool32(s.Preload)
	w.S32(s.BBoxMode)
	w.U32(uint32(s.SepMasks))
	w.S32(s.OriginX)
	w.S32(s.OriginY)

	if s.Special == nil {
		emitTextureList(w, textures, s.Textures)
		return emitMaskData(w, s.CollisionMasks, s.Width, s.Height, s.MarginLeft, s.MarginRight, s.MarginBottom, s.MarginTop, target)
	}

	special := s.Special
	w.S32(-1)
	w.U32(special.SpecialVersion)
	w.U32(uint32(special.SpriteType))
	w.F32(special.PlaybackSpeed)
	w.U32(uint32(special.PlaybackSpeedType))

	var seqID, nsID databin.Identity
	if special.SpecialVersion >= 2 {
		if special.Sequence != nil {
			seqID = w.NextIdentity()
			w.Placeholder(seqID)
		} else {
			w.U32(0)
		}
	}
	if special.SpecialVersion >= 3 {
		if special.NineSlice != nil {
			nsID = w.NextIdentity()
			w.Placeholder(nsID)
		} else {
			w.U32(0)
		}
	}

	switch special.SpriteType {
	case SpecialNormal:
		emitTextureList(w, textures, s.Textures)
		if err := emitMaskData(w, s.CollisionMasks, s.Width, s.Height, s.MarginLeft, s.MarginRight, s.MarginBottom, s.MarginTop, target); err != nil {
			return err
		}
	default:
		return gmerr.Atf(gmerr.CorruptStructure, "sprite special type %d (SWF/Spine) cannot be re-emitted; gmdata never parses one into memory", special.SpriteType)
	}

	if special.SpecialVersion >= 2 && special.SpriteType == SpecialNormal && special.Sequence != nil {
		w.Resolve(seqID)
		w.U32(1)
		if err := sequence.EmitElement(w, pool, target, special.Sequence); err != nil {
			return gmerr.Atf(err, "inline sequence")
		}
	}
	if special.SpecialVersion >= 3 && special.NineSlice != nil {
		w.Resolve(nsID)
		emitNineSlice(w, special.NineSlice)
	}

	return w.Err()
}

func emitNineSlice(w *databin.Writer, ns *NineSlice) {
	w.S32(ns.Left)
	w.S32(ns.Top)
	w.S32(ns.Right)
	w.S32(ns.Bottom)
	w.Bool32(ns.Enabled)
	for _, tm := range ns.TileModes {
		w.S32(int32(tm))
	}
}
