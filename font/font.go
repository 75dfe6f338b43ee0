// Package font implements the FONT chunk: bitmap font assets, their
// texture-backed glyph atlas, and per-glyph kerning pairs.
package font

import (
	"math"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// legacyPaddingSize is the fixed trailer GameMaker wrote after the font
// pointer list before 2024.14; its contents are opaque and round-tripped
// verbatim.
const legacyPaddingSize = 512

// Size holds a font's requested em size, which GameMaker encodes either as
// a plain integer (pre-2.3) or a negated IEEE-754 float (2.3+, recognizable
// by its sign bit always being set on the wire).
type Size struct {
	IsFloat bool
	Float   float32
	Int     uint32
}

// Glyph is one character's atlas rectangle plus its kerning pairs.
type Glyph struct {
	Character      rune // 0 if unset
	X, Y            uint16
	Width, Height   uint16
	ShiftModifier   int16
	Offset          int16
	Kernings        []Kerning
}

// Kerning is one glyph-pair kerning adjustment.
type Kerning struct {
	Character     rune
	ShiftModifier int16
}

// Font is one FONT chunk entry.
type Font struct {
	Name           int
	DisplayName    int32 // -1 = absent
	EmSize         Size
	Bold           bool
	Italic         bool
	RangeStart     uint16
	Charset        uint8
	AntiAlias      uint8
	RangeEnd       uint32
	Texture        int
	ScaleX, ScaleY float32
	AscenderOffset *int32 // bytecode >= 17
	Ascender       *uint32 // >= 2022.2
	SDFSpread      *uint32 // >= 2023.2
	LineHeight     *uint32 // >= 2023.6
	Glyphs         []*Glyph
}

// Fonts is the parsed FONT chunk.
type Fonts struct {
	Exists  bool
	List    []*Font
	Padding []byte // verbatim trailer, only set before 2024.14

	identities []databin.Identity
}

// Parse reads the FONT chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8) (*Fonts, error) {
	d, ok := cr.Descriptor("FONT")
	if !ok {
		return &Fonts{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("FONT"); err != nil {
			return nil, err
		}
		return &Fonts{Exists: true}, nil
	}

	r, err := cr.MustEnter("FONT")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "FONT", -1, "offsets")
	}

	list := make([]*Font, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		f, err := parseFont(r, pool, target, bytecodeVersion)
		if err != nil {
			return nil, gmerr.Atf(err, "FONT: font #%d", i)
		}
		list[i] = f
	}

	fs := &Fonts{Exists: true, List: list}
	if !target.AtLeast(version.V2024_14) {
		fs.Padding = r.Bytes(legacyPaddingSize)
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "FONT", r.Pos(), "legacy padding")
		}
	}
	return fs, nil
}

func resolveOptionalString(r *databin.Reader, pool *strg.Pool) (int32, error) {
	off := r.StringRef()
	if off == 0 {
		return -1, nil
	}
	idx, _, err := pool.Resolve(off)
	if err != nil {
		return 0, err
	}
	return int32(idx), nil
}

func emitOptionalString(w *databin.Writer, pool *strg.Pool, idx int32) {
	if idx < 0 {
		w.U32(0)
		return
	}
	w.Placeholder(pool.IdentityFor(w, int(idx)))
}

func parseFont(r *databin.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8) (*Font, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "FONT", r.Pos(), "name")
	}

	f := &Font{Name: name}
	displayName, err := resolveOptionalString(r, pool)
	if err != nil {
		return nil, gmerr.Wrap(err, "FONT", r.Pos(), "display name")
	}
	f.DisplayName = displayName

	emSize := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if emSize&(1<<31) != 0 {
		f.EmSize = Size{IsFloat: true, Float: -math.Float32frombits(emSize)}
	} else {
		f.EmSize = Size{Int: emSize}
	}

	f.Bold = r.Bool32()
	f.Italic = r.Bool32()
	f.RangeStart = r.U16()
	f.Charset = r.U8()
	f.AntiAlias = r.U8()
	f.RangeEnd = r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	f.Texture = int(r.MandatoryRef())
	f.ScaleX = r.F32()
	f.ScaleY = r.F32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	if bytecodeVersion >= 17 {
		v := r.S32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		f.AscenderOffset = &v
	}
	if target.AtLeast(version.V2022_2) {
		v := r.U32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		f.Ascender = &v
	}
	if target.AtLeast(version.V2023_2) {
		v := r.U32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		f.SDFSpread = &v
	}
	if target.AtLeast(version.V2023_6) {
		v := r.U32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		f.LineHeight = &v
	}

	glyphOffsets := r.PointerListOffsets(databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "FONT", r.Pos(), "glyph offsets")
	}
	f.Glyphs = make([]*Glyph, len(glyphOffsets))
	for i, off := range glyphOffsets {
		r.SeekTo(int64(off))
		g, err := parseGlyph(r, target)
		if err != nil {
			return nil, gmerr.Atf(err, "FONT: glyph #%d", i)
		}
		f.Glyphs[i] = g
	}

	if target.AtLeast(version.V2024_14) {
		r.Align(4)
	}

	return f, nil
}

func parseGlyph(r *databin.Reader, target version.Version) (*Glyph, error) {
	g := &Glyph{}
	ch := r.U16()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if ch != 0 {
		g.Character = rune(ch)
	}
	g.X = r.U16()
	g.Y = r.U16()
	g.Width = r.U16()
	g.Height = r.U16()
	g.ShiftModifier = r.S16()
	g.Offset = r.S16()
	if r.Err() != nil {
		return nil, r.Err()
	}

	if target.AtLeast(version.V2024_11) {
		unknownAlwaysZero := r.S16()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if unknownAlwaysZero != 0 {
			return nil, gmerr.Atf(gmerr.CorruptStructure, "font glyph: expected constant 0, got %d", unknownAlwaysZero)
		}
	}

	count := r.ReadSimpleListCount(4, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	g.Kernings = make([]Kerning, count)
	for i := range g.Kernings {
		k, err := parseKerning(r)
		if err != nil {
			return nil, gmerr.Atf(err, "kerning #%d", i)
		}
		g.Kernings[i] = k
	}

	return g, nil
}

func parseKerning(r *databin.Reader) (Kerning, error) {
	ch := r.U16()
	if r.Err() != nil {
		return Kerning{}, r.Err()
	}
	if ch == 0 {
		return Kerning{}, gmerr.Atf(gmerr.CorruptStructure, "font kerning: character not set")
	}
	shift := r.S16()
	if r.Err() != nil {
		return Kerning{}, r.Err()
	}
	return Kerning{Character: rune(ch), ShiftModifier: shift}, nil
}

// Emit writes the FONT chunk back to w.
func (fs *Fonts) Emit(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8) error {
	if !fs.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(fs.List))
	for i := range fs.List {
		ids[i] = w.NextIdentity()
	}
	fs.identities = ids

	w.WriteListCount(len(fs.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, f := range fs.List {
		w.Resolve(ids[i])
		if err := emitFont(w, pool, target, bytecodeVersion, f); err != nil {
			return gmerr.Atf(err, "font #%d", i)
		}
	}

	if !target.AtLeast(version.V2024_14) {
		if len(fs.Padding) != legacyPaddingSize {
			return gmerr.Atf(gmerr.CorruptStructure, "FONT chunk padding not set before 2024.14")
		}
		w.RawBytes(fs.Padding)
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th font, for chunks that
// reference a font by resource index.
func (fs *Fonts) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(fs.identities) {
		return 0
	}
	return fs.identities[i]
}

func emitFont(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8, f *Font) error {
	w.Placeholder(pool.IdentityFor(w, f.Name))
	emitOptionalString(w, pool, f.DisplayName)

	if f.EmSize.IsFloat {
		w.F32(-f.EmSize.Float)
	} else {
		w.U32(f.EmSize.Int)
	}

	w.Bool32(f.Bold)
	w.Bool32(f.Italic)
	w.U16(f.RangeStart)
	w.U8(f.Charset)
	w.U8(f.AntiAlias)
	w.U32(f.RangeEnd)
	w.U32(uint32(f.Texture))
	w.F32(f.ScaleX)
	w.F32(f.ScaleY)

	if bytecodeVersion >= 17 {
		if f.AscenderOffset == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "font missing required ascender offset for bytecode >= 17")
		}
		w.S32(*f.AscenderOffset)
	}
	if target.AtLeast(version.V2022_2) {
		if f.Ascender == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "font missing required ascender for target version")
		}
		w.U32(*f.Ascender)
	}
	if target.AtLeast(version.V2023_2) {
		if f.SDFSpread == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "font missing required SDF spread for target version")
		}
		w.U32(*f.SDFSpread)
	}
	if target.AtLeast(version.V2023_6) {
		if f.LineHeight == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "font missing required line height for target version")
		}
		w.U32(*f.LineHeight)
	}

	glyphIDs := make([]databin.Identity, len(f.Glyphs))
	for i := range f.Glyphs {
		glyphIDs[i] = w.NextIdentity()
	}
	w.WriteListCount(len(f.Glyphs))
	for _, id := range glyphIDs {
		w.Placeholder(id)
	}
	for i, g := range f.Glyphs {
		w.Resolve(glyphIDs[i])
		if err := emitGlyph(w, target, g); err != nil {
			return gmerr.Atf(err, "glyph #%d", i)
		}
	}

	if target.AtLeast(version.V2024_14) {
		w.Align(4)
	}
	return w.Err()
}

func emitGlyph(w *databin.Writer, target version.Version, g *Glyph) error {
	w.U16(uint16(g.Character))
	w.U16(g.X)
	w.U16(g.Y)
	w.U16(g.Width)
	w.U16(g.Height)
	w.S16(g.ShiftModifier)
	w.S16(g.Offset)
	if target.AtLeast(version.V2024_11) {
		w.U16(0)
	}
	w.WriteListCount(len(g.Kernings))
	for _, k := range g.Kernings {
		w.U16(uint16(k.Character))
		w.S16(k.ShiftModifier)
	}
	return nil
}
