// Package particle implements the PSYS and PSEM chunks: particle systems
// (each a list of emitter resource ids) and the particle emitters
// themselves, whose field layout has shifted several times across
// GameMaker versions.
package particle

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

const (
	systemsWireVersion  = 1
	emittersWireVersion = 1
)

type EmitMode int32

const (
	Stream EmitMode = 0
	Burst  EmitMode = 1
)

type TimeUnit int32

const (
	Seconds TimeUnit = 0
	Frames  TimeUnit = 1
)

type Distribution int32

const (
	Linear          Distribution = 0
	Gaussian        Distribution = 1
	InverseGaussian Distribution = 2
)

type Shape int32

const (
	Rectangle Shape = 0
	Ellipse   Shape = 1
	Diamond   Shape = 2
	Line      Shape = 3
)

type Texture int32

const (
	TextureNone      Texture = -1
	TexturePixel     Texture = 0
	TextureDisk      Texture = 1
	TextureSquare    Texture = 2
	TextureLine      Texture = 3
	TextureStar      Texture = 4
	TextureCircle    Texture = 5
	TextureRing      Texture = 6
	TextureSphere    Texture = 7
	TextureFlare     Texture = 8
	TextureSpark     Texture = 9
	TextureExplosion Texture = 10
	TextureCloud     Texture = 11
	TextureSmoke     Texture = 12
	TextureSnow      Texture = 13
)

// System is one PSYS chunk entry.
type System struct {
	Name                 int
	OriginX, OriginY     int32
	DrawOrder            int32
	GlobalSpaceParticles *bool // >= 2023.8
	Emitters             []int
}

// Systems is the parsed PSYS chunk.
type Systems struct {
	Exists bool
	List   []*System

	identities []databin.Identity
}

// Timing2023_8 holds the delay/interval fields only present from 2023.8
// onward.
type Timing2023_8 struct {
	EmitRelative bool
	DelayMin     float32
	DelayMax     float32
	DelayUnit    TimeUnit
	IntervalMin  float32
	IntervalMax  float32
	IntervalUnit TimeUnit
}

// Size2023_8 holds the per-axis size fields that replaced the single
// isotropic size fields from 2023.8 onward.
type Size2023_8 struct {
	MinX, MaxX, MinY, MaxY float32
	IncreaseX, IncreaseY   float32
	WiggleX, WiggleY       float32
}

// SizePre2023_8 holds the isotropic size fields used before 2023.8.
type SizePre2023_8 struct {
	Min, Max, Increase, Wiggle float32
}

// Stretch2023_4 holds the texture-stretch flags added in 2023.4.
type Stretch2023_4 struct {
	Animate  bool
	Stretch  bool
	IsRandom bool
}

// Emitter is one PSEM chunk entry.
type Emitter struct {
	Name    int
	Enabled *bool // >= 2023.6
	Mode    EmitMode

	EmitCount int32
	Timing    *Timing2023_8 // >= 2023.8

	Distribution                       Distribution
	Shape                              Shape
	RegionX, RegionY, RegionW, RegionH float32
	Rotation                           float32
	Sprite                             int32 // resource by id, -1 = absent is not valid here; a real ref
	Texture                            Texture
	FrameIndex                         float32

	Stretch *Stretch2023_4 // >= 2023.4

	StartColor, MidColor, EndColor uint32
	AdditiveBlend                  bool
	LifetimeMin, LifetimeMax       float32
	ScaleX, ScaleY                 float32

	Size2023_8    *Size2023_8    // >= 2023.8
	SizePre2023_8 *SizePre2023_8 // < 2023.8

	SpeedMin, SpeedMax, SpeedIncrease, SpeedWiggle                         float32
	GravityForce, GravityDirection                                         float32
	DirectionMin, DirectionMax, DirectionIncrease, DirectionWiggle         float32
	OrientationMin, OrientationMax, OrientationIncrease, OrientationWiggle float32
	OrientationRelative                                                    bool

	SpawnOnDeath       int32 // optional resource by id (self-referential), -1 = absent
	SpawnOnDeathCount  uint32
	SpawnOnUpdate      int32 // optional resource by id (self-referential), -1 = absent
	SpawnOnUpdateCount uint32
}

// Emitters is the parsed PSEM chunk.
type Emitters struct {
	Exists bool
	List   []*Emitter

	identities []databin.Identity
}

func resolveOptionalRef(r *databin.Reader) int32 {
	idx, ok := r.OptionalRef()
	if !ok {
		return -1
	}
	return idx
}

func writeOptionalRef(w *databin.Writer, idx int32) {
	w.S32(idx)
}

// ParseSystems reads the PSYS chunk.
func ParseSystems(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Systems, error) {
	d, ok := cr.Descriptor("PSYS")
	if !ok {
		return &Systems{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("PSYS"); err != nil {
			return nil, err
		}
		return &Systems{Exists: true}, nil
	}

	r, err := cr.MustEnter("PSYS")
	if err != nil {
		return nil, err
	}
	r.Align(4)
	wireVersion := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "PSYS", -1, "version")
	}
	if wireVersion != systemsWireVersion {
		return nil, gmerr.Atf(gmerr.VersionContract, "PSYS: expected wire version %d, got %d", systemsWireVersion, wireVersion)
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "PSYS", -1, "offsets")
	}

	list := make([]*System, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		s, err := parseSystem(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "PSYS: system #%d", i)
		}
		list[i] = s
	}
	return &Systems{Exists: true, List: list}, nil
}

func parseSystem(r *databin.Reader, pool *strg.Pool, target version.Version) (*System, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "PSYS", r.Pos(), "name")
	}
	s := &System{Name: name}
	s.OriginX = r.S32()
	s.OriginY = r.S32()
	s.DrawOrder = r.S32()
	if target.AtLeast(version.V2023_8) {
		v := r.Bool32()
		s.GlobalSpaceParticles = &v
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	s.Emitters = make([]int, count)
	for i := range s.Emitters {
		s.Emitters[i] = int(r.MandatoryRef())
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return s, nil
}

// Emit writes the PSYS chunk back to w.
func (ss *Systems) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !ss.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ss.List))
	for i := range ss.List {
		ids[i] = w.NextIdentity()
	}
	ss.identities = ids

	w.Align(4)
	w.U32(systemsWireVersion)
	w.WriteListCount(len(ss.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, s := range ss.List {
		w.Resolve(ids[i])
		if err := emitSystem(w, pool, target, s); err != nil {
			return gmerr.Atf(err, "system #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th particle system.
func (ss *Systems) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ss.identities) {
		return 0
	}
	return ss.identities[i]
}

func emitSystem(w *databin.Writer, pool *strg.Pool, target version.Version, s *System) error {
	w.Placeholder(pool.IdentityFor(w, s.Name))
	w.S32(s.OriginX)
	w.S32(s.OriginY)
	w.S32(s.DrawOrder)
	if target.AtLeast(version.V2023_8) {
		if s.GlobalSpaceParticles == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "particle system missing required global space particles flag for target version")
		}
		w.Bool32(*s.GlobalSpaceParticles)
	}
	w.WriteListCount(len(s.Emitters))
	for _, id := range s.Emitters {
		w.U32(uint32(id))
	}
	return w.Err()
}

// ParseEmitters reads the PSEM chunk.
func ParseEmitters(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Emitters, error) {
	d, ok := cr.Descriptor("PSEM")
	if !ok {
		return &Emitters{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("PSEM"); err != nil {
			return nil, err
		}
		return &Emitters{Exists: true}, nil
	}

	r, err := cr.MustEnter("PSEM")
	if err != nil {
		return nil, err
	}
	r.Align(4)
	wireVersion := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "PSEM", -1, "version")
	}
	if wireVersion != emittersWireVersion {
		return nil, gmerr.Atf(gmerr.VersionContract, "PSEM: expected wire version %d, got %d", emittersWireVersion, wireVersion)
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "PSEM", -1, "offsets")
	}

	list := make([]*Emitter, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		e, err := parseEmitter(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "PSEM: emitter #%d", i)
		}
		list[i] = e
	}
	return &Emitters{Exists: true, List: list}, nil
}

func parseEmitter(r *databin.Reader, pool *strg.Pool, target version.Version) (*Emitter, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "PSEM", r.Pos(), "name")
	}
	e := &Emitter{Name: name}

	if target.AtLeast(version.V2023_6) {
		v := r.Bool32()
		e.Enabled = &v
	}
	e.Mode = EmitMode(r.S32())

	if target.AtLeast(version.V2023_8) {
		e.EmitCount = int32(r.F32())
		emitRelative := r.Bool32()
		delayMin := r.F32()
		delayMax := r.F32()
		delayUnit := TimeUnit(r.S32())
		intervalMin := r.F32()
		intervalMax := r.F32()
		intervalUnit := TimeUnit(r.S32())
		e.Timing = &Timing2023_8{
			EmitRelative: emitRelative,
			DelayMin:     delayMin,
			DelayMax:     delayMax,
			DelayUnit:    delayUnit,
			IntervalMin:  intervalMin,
			IntervalMax:  intervalMax,
			IntervalUnit: intervalUnit,
		}
	} else {
		e.EmitCount = int32(r.U32())
	}

	e.Distribution = Distribution(r.S32())
	e.Shape = Shape(r.S32())
	e.RegionX = r.F32()
	e.RegionY = r.F32()
	e.RegionW = r.F32()
	e.RegionH = r.F32()
	e.Rotation = r.F32()
	e.Sprite = int32(r.MandatoryRef())
	e.Texture = Texture(r.S32())
	e.FrameIndex = r.F32()

	if target.AtLeast(version.V2023_4) {
		animate := r.Bool32()
		stretch := r.Bool32()
		isRandom := r.Bool32()
		e.Stretch = &Stretch2023_4{Animate: animate, Stretch: stretch, IsRandom: isRandom}
	}

	e.StartColor = r.U32()
	e.MidColor = r.U32()
	e.EndColor = r.U32()
	e.AdditiveBlend = r.Bool32()
	e.LifetimeMin = r.F32()
	e.LifetimeMax = r.F32()
	e.ScaleX = r.F32()
	e.ScaleY = r.F32()

	if target.AtLeast(version.V2023_8) {
		e.Size2023_8 = &Size2023_8{
			MinX: r.F32(), MaxX: r.F32(), MinY: r.F32(), MaxY: r.F32(),
			IncreaseX: r.F32(), IncreaseY: r.F32(),
			WiggleX: r.F32(), WiggleY: r.F32(),
		}
	} else {
		e.SizePre2023_8 = &SizePre2023_8{
			Min: r.F32(), Max: r.F32(), Increase: r.F32(), Wiggle: r.F32(),
		}
	}

	e.SpeedMin = r.F32()
	e.SpeedMax = r.F32()
	e.SpeedIncrease = r.F32()
	e.SpeedWiggle = r.F32()
	e.GravityForce = r.F32()
	e.GravityDirection = r.F32()
	e.DirectionMin = r.F32()
	e.DirectionMax = r.F32()
	e.DirectionIncrease = r.F32()
	e.DirectionWiggle = r.F32()
	e.OrientationMin = r.F32()
	e.OrientationMax = r.F32()
	e.OrientationIncrease = r.F32()
	e.OrientationWiggle = r.F32()
	e.OrientationRelative = r.Bool32()

	e.SpawnOnDeath = resolveOptionalRef(r)
	e.SpawnOnDeathCount = r.U32()
	e.SpawnOnUpdate = resolveOptionalRef(r)
	e.SpawnOnUpdateCount = r.U32()

	if r.Err() != nil {
		return nil, r.Err()
	}
	return e, nil
}

// Emit writes the PSEM chunk back to w.
func (es *Emitters) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !es.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(es.List))
	for i := range es.List {
		ids[i] = w.NextIdentity()
	}
	es.identities = ids

	w.Align(4)
	w.U32(emittersWireVersion)
	w.WriteListCount(len(es.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, e := range es.List {
		w.Resolve(ids[i])
		if err := emitEmitter(w, pool, target, e); err != nil {
			return gmerr.Atf(err, "emitter #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th particle emitter, for the
// emitter list's own self-referential spawn-on-death/spawn-on-update
// fields and for GMParticleSystem.Emitters resource-by-id entries.
func (es *Emitters) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(es.identities) {
		return 0
	}
	return es.identities[i]
}

func emitEmitter(w *databin.Writer, pool *strg.Pool, target version.Version, e *Emitter) error {
	w.Placeholder(pool.IdentityFor(w, e.Name))

	if target.AtLeast(version.V2023_6) {
		if e.Enabled == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "emitter missing required enabled flag for target version")
		}
		w.Bool32(*e.Enabled)
	}
	w.S32(int32(e.Mode))

	if target.AtLeast(version.V2023_8) {
		if e.Timing == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "emitter missing required 2023.8 timing data for target version")
		}
		w.F32(float32(e.EmitCount))
		w.Bool32(e.Timing.EmitRelative)
		w.F32(e.Timing.DelayMin)
		w.F32(e.Timing.DelayMax)
		w.S32(int32(e.Timing.DelayUnit))
		w.F32(e.Timing.IntervalMin)
		w.F32(e.Timing.IntervalMax)
		w.S32(int32(e.Timing.IntervalUnit))
	} else {
		w.U32(uint32(e.EmitCount))
	}

	w.S32(int32(e.Distribution))
	w.S32(int32(e.Shape))
	w.F32(e.RegionX)
	w.F32(e.RegionY)
	w.F32(e.RegionW)
	w.F32(e.RegionH)
	w.F32(e.Rotation)
	w.U32(uint32(e.Sprite))
	w.S32(int32(e.Texture))
	w.F32(e.FrameIndex)

	if target.AtLeast(version.V2023_4) {
		if e.Stretch == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "emitter missing required 2023.4 stretch data for target version")
		}
		w.Bool32(e.Stretch.Animate)
		w.Bool32(e.Stretch.Stretch)
		w.Bool32(e.Stretch.IsRandom)
	}

	w.U32(e.StartColor)
	w.U32(e.MidColor)
	w.U32(e.EndColor)
	w.Bool32(e.AdditiveBlend)
	w.F32(e.LifetimeMin)
	w.F32(e.LifetimeMax)
	w.F32(e.ScaleX)
	w.F32(e.ScaleY)

	if target.AtLeast(version.V2023_8) {
		if e.Size2023_8 == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "emitter missing required 2023.8 size data for target version")
		}
		s := e.Size2023_8
		w.F32(s.MinX)
		w.F32(s.MaxX)
		w.F32(s.MinY)
		w.F32(s.MaxY)
		w.F32(s.IncreaseX)
		w.F32(s.IncreaseY)
		w.F32(s.WiggleX)
		w.F32(s.WiggleY)
	} else {
		if e.SizePre2023_8 == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "emitter missing required pre-2023.8 size data for target version")
		}
		s := e.SizePre2023_8
		w.F32(s.Min)
		w.F32(s.Max)
		w.F32(s.Increase)
		w.F32(s.Wiggle)
	}

	w.F32(e.SpeedMin)
	w.F32(e.SpeedMax)
	w.F32(e.SpeedIncrease)
	w.F32(e.SpeedWiggle)
	w.F32(e.GravityForce)
	w.F32(e.GravityDirection)
	w.F32(e.DirectionMin)
	w.F32(e.DirectionMax)
	w.F32(e.DirectionIncrease)
	w.F32(e.DirectionWiggle)
	w.F32(e.OrientationMin)
	w.F32(e.OrientationMax)
	w.F32(e.OrientationIncrease)
	w.F32(e.OrientationWiggle)
	w.Bool32(e.OrientationRelative)

	writeOptionalRef(w, e.SpawnOnDeath)
	w.U32(e.SpawnOnDeathCount)
	writeOptionalRef(w, e.SpawnOnUpdate)
	w.U32(e.SpawnOnUpdateCount)

	return w.Err()
}
