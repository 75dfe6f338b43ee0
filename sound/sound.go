// Package sound implements the SOND chunk (sound asset metadata:
// volume/pitch/effects, audio group, and embedded-audio reference) and the
// AUDO chunk (the embedded audio bytes SOND's AudioFile field indexes
// into by raw resource id).
package sound

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// Sound is one SOND chunk entry.
type Sound struct {
	Name        int
	Flags       uint32
	FlagRegular bool  // bit 5 of Flags
	AudioType   int32 // -1 = absent; e.g. ".wav"/".mp3"/".ogg"
	File        int
	Effects     uint32
	Volume      float32
	Pitch       float32
	AudioGroup  int      // resource-by-id when FlagRegular && bytecode>=14; else the builtin group
	AudioFile   int32    // -1 = absent; embedded audio resource index
	AudioLength *float32 // present from 2024.6
}

// Sounds is the parsed SOND chunk.
type Sounds struct {
	Exists bool
	List   []*Sound

	identities []databin.Identity
}

// Parse reads the SOND chunk. bytecodeVersion gates whether a regular
// sound's audio group is read as a resource reference or defaults to the
// engine's builtin group; builtinGroupID supplies that default (computed
// by the caller from the data file's detected engine version, per the
// original's own version-range table).
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8, builtinGroupID int) (*Sounds, error) {
	d, ok := cr.Descriptor("SOND")
	if !ok {
		return &Sounds{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("SOND"); err != nil {
			return nil, err
		}
		return &Sounds{Exists: true}, nil
	}

	r, err := cr.MustEnter("SOND")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SOND", -1, "offsets")
	}

	list := make([]*Sound, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		s, err := parseSound(r, pool, target, bytecodeVersion, builtinGroupID)
		if err != nil {
			return nil, gmerr.Atf(err, "SOND: sound #%d", i)
		}
		list[i] = s
	}

	return &Sounds{Exists: true, List: list}, nil
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

func parseSound(r *databin.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8, builtinGroupID int) (*Sound, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "SOND", r.Pos(), "name")
	}

	s := &Sound{Name: name}
	s.Flags = r.U32()
	s.FlagRegular = (s.Flags>>5)&1 == 1

	audioType, err := resolveOptionalString(r, pool)
	if err != nil {
		return nil, gmerr.Wrap(err, "SOND", r.Pos(), "audio type")
	}
	s.AudioType = audioType

	fileOff := r.StringRef()
	file, _, err := pool.Resolve(fileOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "SOND", r.Pos(), "file")
	}
	s.File = file

	s.Effects = r.U32()
	s.Volume = r.F32()
	s.Pitch = r.F32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SOND", r.Pos(), "header")
	}

	if s.FlagRegular && bytecodeVersion >= 14 {
		s.AudioGroup = int(r.MandatoryRef())
	} else {
		preload := r.Bool32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if !preload {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "SOND", r.Pos(), "preload must be true")
		}
		s.AudioGroup = builtinGroupID
	}

	if idx, ok := r.OptionalRef(); ok {
		s.AudioFile = idx
	} else {
		s.AudioFile = -1
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	if target.AtLeast(version.V2024_6) {
		length := r.F32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		s.AudioLength = &length
	}

	return s, nil
}

// Emit writes the SOND chunk back to w.
func (ss *Sounds) Emit(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8) error {
	if !ss.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ss.List))
	for i := range ss.List {
		ids[i] = w.NextIdentity()
	}
	ss.identities = ids
	w.WriteListCount(len(ss.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, s := range ss.List {
		w.Resolve(ids[i])
		if err := emitSound(w, pool, target, bytecodeVersion, s); err != nil {
			return gmerr.Atf(err, "sound #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th sound, for other chunks that
// reference a sound by resource index (e.g. the audio group convention
// above, and any future resource-by-id reader that targets SOND).
func (ss *Sounds) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ss.identities) {
		return 0
	}
	return ss.identities[i]
}

func emitSound(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8, s *Sound) error {
	w.Placeholder(pool.IdentityFor(w, s.Name))
	w.U32(s.Flags)
	emitOptionalString(w, pool, s.AudioType)
	w.Placeholder(pool.IdentityFor(w, s.File))
	w.U32(s.Effects)
	w.F32(s.Volume)
	w.F32(s.Pitch)
	if s.FlagRegular && bytecodeVersion >= 14 {
		w.U32(uint32(s.AudioGroup))
	} else {
		w.Bool32(true)
	}
	if s.AudioFile < 0 {
		w.S32(-1)
	} else {
		w.U32(uint32(s.AudioFile))
	}
	if target.AtLeast(version.V2024_6) {
		if s.AudioLength == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "sound missing required 2024.6 audio length")
		}
		w.F32(*s.AudioLength)
	}
	return w.Err()
}

// Audio is one raw, length-prefixed embedded audio blob.
type Audio struct {
	Data []byte
}

// Audios is the parsed AUDO chunk: the actual audio-file bytes a sound's
// AudioFile field names by plain resource index (not a byte-offset
// pointer), so no cross-chunk Identity bookkeeping is needed here.
type Audios struct {
	Exists bool
	List   []Audio
}

// ParseAudios reads the AUDO chunk: a pointer list of length-prefixed byte
// blobs, the same shape EMBI's image blobs use.
func ParseAudios(cr *chunk.Reader) (*Audios, error) {
	d, ok := cr.Descriptor("AUDO")
	if !ok {
		return &Audios{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("AUDO"); err != nil {
			return nil, err
		}
		return &Audios{Exists: true}, nil
	}

	r, err := cr.MustEnter("AUDO")
	if err != nil {
		return nil, err
	}
	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "AUDO", -1, "offsets")
	}

	list := make([]Audio, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		n := r.U32()
		if r.Err() != nil || int64(n) > databin.MaxSimpleListBytes {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "AUDO", int64(off), "length")
		}
		data := append([]byte(nil), r.Bytes(int(n))...)
		if r.Err() != nil {
			return nil, r.Err()
		}
		list[i] = Audio{Data: data}
	}

	return &Audios{Exists: true, List: list}, nil
}

// EmitAudios writes the AUDO chunk back to w.
func (a *Audios) EmitAudios(w *databin.Writer) error {
	if !a.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(a.List))
	for i := range a.List {
		ids[i] = w.NextIdentity()
	}
	w.WriteListCount(len(a.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, aud := range a.List {
		w.Resolve(ids[i])
		w.U32(uint32(len(aud.Data)))
		w.RawBytes(aud.Data)
	}
	return w.Err()
}
