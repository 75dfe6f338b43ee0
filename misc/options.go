package misc

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/texture"
)

// OptionsFlags are the boolean switches exposed in the game options
// editor. On "new format" OPTN data these are packed into a single u64
// bitmask; "old format" data scatters the same switches as individual
// bool32 fields interleaved with the rest of Options, and never carries
// the last six flags at all (they read back false).
type OptionsFlags struct {
	Fullscreen          bool
	InterpolatePixels   bool
	UseNewAudio         bool
	NoBorder            bool
	ShowCursor          bool
	Sizeable            bool
	StayOnTop           bool
	ChangeResolution    bool
	NoButtons           bool
	ScreenKey           bool
	HelpKey             bool
	QuitKey             bool
	SaveKey             bool
	ScreenshotKey       bool
	CloseSec            bool
	Freeze              bool
	ShowProgress        bool
	LoadTransparent     bool
	ScaleProgress       bool
	DisplayErrors       bool
	WriteErrors         bool
	AbortErrors         bool
	VariableErrors      bool
	CreationEventOrder  bool
	UseFrontTouch       bool
	UseRearTouch        bool
	UseFastCollision    bool
	FastCollisionCompat bool
	DisableSandbox      bool
	EnableCopyOnWrite   bool
}

// OptionsConstant is a user-defined name/value pair from the options
// editor's constants tab.
type OptionsConstant struct {
	Name, Value int
}

// Options is the parsed OPTN chunk. GameMaker rewrote this chunk's layout
// once; IsNewFormat selects which of the two mutually exclusive wire
// shapes Emit reproduces. Unknown1/Unknown2 only exist on the wire in the
// new format — old-format data round-trips them as zero.
type Options struct {
	Exists      bool
	IsNewFormat bool
	Unknown1    uint32
	Unknown2    uint32
	Flags       OptionsFlags
	WindowScale int32
	WindowColor uint32
	ColorDepth  uint32
	Resolution  uint32
	Frequency   uint32
	VertexSync  uint32
	Priority    uint32
	BackImage   int32 // -1 = absent; texture page item index
	FrontImage  int32 // -1 = absent
	LoadImage   int32 // -1 = absent
	LoadAlpha   uint32
	Constants   []OptionsConstant
}

// ParseOptions reads the OPTN chunk. The format switch is read, then
// un-read: the leading u32 is peeked and rewound, matching the original
// reader's own "read then rewind 4 bytes" probe, since the value doubles
// as the first real field (Unknown1) in the new format.
func ParseOptions(cr *chunk.Reader, pool *strg.Pool, textures *texture.Textures) (*Options, error) {
	r, err := cr.MustEnter("OPTN")
	if err != nil {
		return nil, err
	}

	probe := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "OPTN", -1, "format probe")
	}
	r.SeekTo(r.Pos() - 4)
	isNewFormat := probe == 0x80000000

	var o *Options
	if isNewFormat {
		o, err = parseOptionsNew(r, pool, textures)
	} else {
		o, err = parseOptionsOld(r, pool, textures)
	}
	if err != nil {
		return nil, gmerr.Atf(err, "OPTN")
	}
	return o, nil
}

func parseOptionalTextureRef(r *databin.Reader, textures *texture.Textures) (int32, error) {
	off := r.StringRef() // same u32-offset-or-zero shape as a string ref
	if off == 0 {
		return -1, nil
	}
	idx, err := textures.Resolve(off)
	if err != nil {
		return 0, err
	}
	return int32(idx), nil
}

func writeOptionalTextureRef(w *databin.Writer, textures *texture.Textures, idx int32) {
	if idx < 0 {
		w.U32(0)
		return
	}
	w.Placeholder(textures.ItemIdentityFor(w, int(idx)))
}

func parseOptionsFlags(r *databin.Reader) (OptionsFlags, error) {
	raw := r.U64()
	if r.Err() != nil {
		return OptionsFlags{}, r.Err()
	}
	return OptionsFlags{
		Fullscreen:          raw&0x1 != 0,
		InterpolatePixels:   raw&0x2 != 0,
		UseNewAudio:         raw&0x4 != 0,
		NoBorder:            raw&0x8 != 0,
		ShowCursor:          raw&0x10 != 0,
		Sizeable:            raw&0x20 != 0,
		StayOnTop:           raw&0x40 != 0,
		ChangeResolution:    raw&0x80 != 0,
		NoButtons:           raw&0x100 != 0,
		ScreenKey:           raw&0x200 != 0,
		HelpKey:             raw&0x400 != 0,
		QuitKey:             raw&0x800 != 0,
		SaveKey:             raw&0x1000 != 0,
		ScreenshotKey:       raw&0x2000 != 0,
		CloseSec:            raw&0x4000 != 0,
		Freeze:              raw&0x8000 != 0,
		ShowProgress:        raw&0x10000 != 0,
		LoadTransparent:     raw&0x20000 != 0,
		ScaleProgress:       raw&0x40000 != 0,
		DisplayErrors:       raw&0x80000 != 0,
		WriteErrors:         raw&0x100000 != 0,
		AbortErrors:         raw&0x200000 != 0,
		VariableErrors:      raw&0x400000 != 0,
		CreationEventOrder:  raw&0x800000 != 0,
		UseFrontTouch:       raw&0x1000000 != 0,
		UseRearTouch:        raw&0x2000000 != 0,
		UseFastCollision:    raw&0x4000000 != 0,
		FastCollisionCompat: raw&0x8000000 != 0,
		DisableSandbox:      raw&0x10000000 != 0,
		EnableCopyOnWrite:   raw&0x20000000 != 0,
	}, nil
}

func emitOptionsFlags(w *databin.Writer, f OptionsFlags) {
	var raw uint64
	if f.Fullscreen {
		raw |= 0x1
	}
	if f.InterpolatePixels {
		raw |= 0x2
	}
	if f.UseNewAudio {
		raw |= 0x4
	}
	if f.NoBorder {
		raw |= 0x8
	}
	if f.ShowCursor {
		raw |= 0x10
	}
	if f.Sizeable {
		raw |= 0x20
	}
	if f.StayOnTop {
		raw |= 0x40
	}
	if f.ChangeResolution {
		raw |= 0x80
	}
	if f.NoButtons {
		raw |= 0x100
	}
	if f.ScreenKey {
		raw |= 0x200
	}
	if f.HelpKey {
		raw |= 0x400
	}
	if f.QuitKey {
		raw |= 0x800
	}
	if f.SaveKey {
		raw |= 0x1000
	}
	if f.ScreenshotKey {
		raw |= 0x2000
	}
	if f.CloseSec {
		raw |= 0x4000
	}
	if f.Freeze {
		raw |= 0x8000
	}
	if f.ShowProgress {
		raw |= 0x10000
	}
	if f.LoadTransparent {
		raw |= 0x20000
	}
	if f.ScaleProgress {
		raw |= 0x40000
	}
	if f.DisplayErrors {
		raw |= 0x80000
	}
	if f.WriteErrors {
		raw |= 0x100000
	}
	if f.AbortErrors {
		raw |= 0x200000
	}
	if f.VariableErrors {
		raw |= 0x400000
	}
	if f.CreationEventOrder {
		raw |= 0x800000
	}
	if f.UseFrontTouch {
		raw |= 0x1000000
	}
	if f.UseRearTouch {
		raw |= 0x2000000
	}
	if f.UseFastCollision {
		raw |= 0x4000000
	}
	if f.FastCollisionCompat {
		raw |= 0x8000000
	}
	if f.DisableSandbox {
		raw |= 0x10000000
	}
	if f.EnableCopyOnWrite {
		raw |= 0x20000000
	}
	w.U64(raw)
}

func parseOptionsConstants(r *databin.Reader, pool *strg.Pool) ([]OptionsConstant, error) {
	count := r.ReadSimpleListCount(8, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	out := make([]OptionsConstant, count)
	for i := range out {
		nameOff := r.StringRef()
		name, _, err := pool.Resolve(nameOff)
		if err != nil {
			return nil, gmerr.Atf(err, "constant #%d name", i)
		}
		valOff := r.StringRef()
		value, _, err := pool.Resolve(valOff)
		if err != nil {
			return nil, gmerr.Atf(err, "constant #%d value", i)
		}
		out[i] = OptionsConstant{Name: name, Value: value}
	}
	return out, nil
}

func writeOptionsConstants(w *databin.Writer, pool *strg.Pool, list []OptionsConstant) {
	w.WriteListCount(len(list))
	for _, c := range list {
		w.Placeholder(pool.IdentityFor(w, c.Name))
		w.Placeholder(pool.IdentityFor(w, c.Value))
	}
}

func parseOptionsNew(r *databin.Reader, pool *strg.Pool, textures *texture.Textures) (*Options, error) {
	o := &Options{Exists: true, IsNewFormat: true}
	o.Unknown1 = r.U32()
	o.Unknown2 = r.U32()
	flags, err := parseOptionsFlags(r)
	if err != nil {
		return nil, err
	}
	o.Flags = flags
	o.WindowScale = r.S32()
	o.WindowColor = r.U32()
	o.ColorDepth = r.U32()
	o.Resolution = r.U32()
	o.Frequency = r.U32()
	o.VertexSync = r.U32()
	o.Priority = r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	back, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "back image")
	}
	o.BackImage = back
	front, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "front image")
	}
	o.FrontImage = front
	load, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "load image")
	}
	o.LoadImage = load

	o.LoadAlpha = r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	constants, err := parseOptionsConstants(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "constants")
	}
	o.Constants = constants
	return o, nil
}

func parseOptionsOld(r *databin.Reader, pool *strg.Pool, textures *texture.Textures) (*Options, error) {
	o := &Options{Exists: true, IsNewFormat: false}
	var f OptionsFlags

	f.Fullscreen = r.Bool32()
	f.InterpolatePixels = r.Bool32()
	f.UseNewAudio = r.Bool32()
	f.NoBorder = r.Bool32()
	f.ShowCursor = r.Bool32()

	o.WindowScale = r.S32()

	f.Sizeable = r.Bool32()
	f.StayOnTop = r.Bool32()

	o.WindowColor = r.U32()

	f.ChangeResolution = r.Bool32()

	o.ColorDepth = r.U32()
	o.Resolution = r.U32()
	o.Frequency = r.U32()

	f.NoButtons = r.Bool32()

	o.VertexSync = r.U32()

	f.ScreenKey = r.Bool32()
	f.HelpKey = r.Bool32()
	f.QuitKey = r.Bool32()
	f.SaveKey = r.Bool32()
	f.ScreenshotKey = r.Bool32()
	f.CloseSec = r.Bool32()

	o.Priority = r.U32()

	f.Freeze = r.Bool32()
	f.ShowProgress = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	back, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "back image")
	}
	o.BackImage = back
	front, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "front image")
	}
	o.FrontImage = front
	load, err := parseOptionalTextureRef(r, textures)
	if err != nil {
		return nil, gmerr.Atf(err, "load image")
	}
	o.LoadImage = load

	f.LoadTransparent = r.Bool32()

	o.LoadAlpha = r.U32()

	f.ScaleProgress = r.Bool32()
	f.DisplayErrors = r.Bool32()
	f.WriteErrors = r.Bool32()
	f.AbortErrors = r.Bool32()
	f.VariableErrors = r.Bool32()
	f.CreationEventOrder = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	constants, err := parseOptionsConstants(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "constants")
	}
	o.Constants = constants
	o.Flags = f
	return o, nil
}

// Emit writes the OPTN chunk back to w, in whichever of the two wire
// formats o.IsNewFormat selects.
func (o *Options) Emit(w *databin.Writer, pool *strg.Pool, textures *texture.Textures) error {
	if !o.Exists {
		return nil
	}
	if o.IsNewFormat {
		emitOptionsNew(w, pool, textures, o)
	} else {
		emitOptionsOld(w, pool, textures, o)
	}
	return w.Err()
}

func emitOptionsNew(w *databin.Writer, pool *strg.Pool, textures *texture.Textures, o *Options) {
	w.U32(o.Unknown1)
	w.U32(o.Unknown2)
	emitOptionsFlags(w, o.Flags)
	w.S32(o.WindowScale)
	w.U32(o.WindowColor)
	w.U32(o.ColorDepth)
	w.U32(o.Resolution)
	w.U32(o.Frequency)
	w.U32(o.VertexSync)
	w.U32(o.Priority)
	writeOptionalTextureRef(w, textures, o.BackImage)
	writeOptionalTextureRef(w, textures, o.FrontImage)
	writeOptionalTextureRef(w, textures, o.LoadImage)
	w.U32(o.LoadAlpha)
	writeOptionsConstants(w, pool, o.Constants)
}

func emitOptionsOld(w *databin.Writer, pool *strg.Pool, textures *texture.Textures, o *Options) {
	f := o.Flags
	w.Bool32(f.Fullscreen)
	w.Bool32(f.InterpolatePixels)
	w.Bool32(f.UseNewAudio)
	w.Bool32(f.NoBorder)
	w.Bool32(f.ShowCursor)

	w.S32(o.WindowScale)

	w.Bool32(f.Sizeable)
	w.Bool32(f.StayOnTop)

	w.U32(o.WindowColor)

	w.Bool32(f.ChangeResolution)

	w.U32(o.ColorDepth)
	w.U32(o.Resolution)
	w.U32(o.Frequency)

	w.Bool32(f.NoButtons)

	w.U32(o.VertexSync)

	w.Bool32(f.ScreenKey)
	w.Bool32(f.HelpKey)
	w.Bool32(f.QuitKey)
	w.Bool32(f.SaveKey)
	w.Bool32(f.ScreenshotKey)
	w.Bool32(f.CloseSec)

	w.U32(o.Priority)

	w.Bool32(f.Freeze)
	w.Bool32(f.ShowProgress)

	writeOptionalTextureRef(w, textures, o.BackImage)
	writeOptionalTextureRef(w, textures, o.FrontImage)
	writeOptionalTextureRef(w, textures, o.LoadImage)

	w.Bool32(f.LoadTransparent)

	w.U32(o.LoadAlpha)

	w.Bool32(f.ScaleProgress)
	w.Bool32(f.DisplayErrors)
	w.Bool32(f.WriteErrors)
	w.Bool32(f.AbortErrors)
	w.Bool32(f.VariableErrors)
	w.Bool32(f.CreationEventOrder)

	writeOptionsConstants(w, pool, o.Constants)
}
