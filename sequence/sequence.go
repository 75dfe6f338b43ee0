// Package sequence implements the SEQN chunk and the GMSequence element
// embedded inline wherever a sprite, object, or room layer carries its own
// keyframed animation (spec.md §3, "Sequences (SEQN) and timelines (TMLN)").
//
// A sequence is a named, keyframed track list: playback settings, a tree of
// Track nodes (each either holding its own per-channel keyframe data or
// nesting further sub-tracks), and a flat list of broadcast-message/moment
// markers fired during playback.
package sequence

import (
	"github.com/modgm/gmdata/animcurve"
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// PlaybackType is a sequence's overall playback mode.
type PlaybackType uint32

const (
	PlaybackOneshot  PlaybackType = 0
	PlaybackLoop     PlaybackType = 1
	PlaybackPingpong PlaybackType = 2
)

// SpeedType gates whether PlaybackSpeed is frames-per-second or
// frames-per-game-frame.
type SpeedType uint32

const (
	SpeedFramesPerSecond   SpeedType = 0
	SpeedFramesPerGameFrame SpeedType = 1
)

// TrackBuiltinName tags a track's role when it drives a built-in property
// (position, scale, image index, ...) rather than a user-defined channel.
// None (0) covers both "no builtin role" and values GameMaker itself never
// documented a meaning for (spec.md leans on "round-trip opaquely" here,
// same stance as variable.Scuffed).
type TrackBuiltinName int32

const (
	TrackBuiltinNone                      TrackBuiltinName = 0
	TrackBuiltinGain                      TrackBuiltinName = 5
	TrackBuiltinPitch                     TrackBuiltinName = 6
	TrackBuiltinFalloff                   TrackBuiltinName = 7
	TrackBuiltinRotationOrImageAngle      TrackBuiltinName = 8
	TrackBuiltinBlendAdd                  TrackBuiltinName = 9
	TrackBuiltinBlendMultiplyOrImageBlend TrackBuiltinName = 10
	TrackBuiltinMask                      TrackBuiltinName = 12
	TrackBuiltinSubject                   TrackBuiltinName = 13
	TrackBuiltinPosition                  TrackBuiltinName = 14
	TrackBuiltinScale                     TrackBuiltinName = 15
	TrackBuiltinOrigin                    TrackBuiltinName = 16
	TrackBuiltinImageSpeed                TrackBuiltinName = 17
	TrackBuiltinImageIndex                TrackBuiltinName = 18
	TrackBuiltinFrameSize                 TrackBuiltinName = 20
	TrackBuiltinCharacterSpacing          TrackBuiltinName = 21
	TrackBuiltinLineSpacing               TrackBuiltinName = 22
	TrackBuiltinParagraphSpacing          TrackBuiltinName = 23
)

// TrackTraits is a bitless enum (GameMaker only ever emits the two values
// below, not a real bitfield despite the name).
type TrackTraits int32

const (
	TrackTraitsNone                 TrackTraits = 0
	TrackTraitsChildrenIgnoreOrigin TrackTraits = 1
)

// TrackKeyframeKind discriminates the union GMTrackKeyframes represents in
// the original: which concrete channel-value type a Track's KeyframeData
// holds. Dispatched on the Track's ModelName string at parse time (spec.md's
// engine resolves this the same way GameMaker's own track editor does).
type TrackKeyframeKind uint8

const (
	KindAudio TrackKeyframeKind = iota
	KindInstance
	KindGraphic
	KindSequence
	KindSpriteFrames
	KindBool
	KindString
	KindColor
	KindText
	KindParticle
	KindBroadcastMessage
)

var modelNameForKind = map[TrackKeyframeKind]string{
	KindAudio:            "GMAudioTrack",
	KindInstance:         "GMInstanceTrack",
	KindGraphic:          "GMGraphicTrack",
	KindSequence:         "GMSequenceTrack",
	KindSpriteFrames:     "GMSpriteFramesTrack",
	KindBool:             "GMBoolTrack",
	KindString:           "GMStringTrack",
	KindColor:            "GMColourTrack",
	KindText:             "GMTextTrack",
	KindParticle:         "GMParticleTrack",
	KindBroadcastMessage: "", // never a standalone track's model name
}

// ModelNameFor returns the canonical GameMaker model-name string for kind,
// used when constructing a fresh Track rather than round-tripping one
// parsed from the wire.
func ModelNameFor(kind TrackKeyframeKind) (string, bool) {
	name, ok := modelNameForKind[kind]
	return name, ok && name != ""
}

var kindForModelName = map[string]TrackKeyframeKind{
	"GMAudioTrack":        KindAudio,
	"GMInstanceTrack":     KindInstance,
	"GMGraphicTrack":      KindGraphic,
	"GMSequenceTrack":     KindSequence,
	"GMSpriteFramesTrack": KindSpriteFrames,
	"GMBoolTrack":         KindBool,
	"GMStringTrack":       KindString,
	"GMColourTrack":       KindColor,
	"GMRealTrack":         KindColor, // GMRealTrack and GMColourTrack share the same on-wire shape
	"GMTextTrack":         KindText,
	"GMParticleTrack":     KindParticle,
}

// Channel is one entry of a GMKeyframeData<T> list: a time span plus a set
// of per-channel-index values sharing that span. Exactly one of the typed
// value slices on the owning TrackKeyframes holds data for any given
// keyframe; Channel itself only carries the span and the channel-index keys.
type Channel struct {
	Key      float32
	Length   float32
	Stretch  bool
	Disabled bool

	// ChannelIndex keys index the per-channel value map in the same order
	// they're stored on the wire (HashMap<i32, T> in the original; kept as
	// parallel slices here rather than a Go map so emit order is
	// deterministic and round-trips byte-for-byte).
	ChannelIndex []int32
}

// AudioValue is a GMKeyframeAudio.
type AudioValue struct {
	SoundIndex int32
	Mode       int32
}

// InstanceValue is a GMKeyframeInstance.
type InstanceValue struct {
	GameObjectIndex int32
}

// GraphicValue is a GMKeyframeGraphic.
type GraphicValue struct {
	SpriteIndex int32
}

// SequenceValue is a GMKeyframeSequence.
type SequenceValue struct {
	SequenceIndex int32
}

// SpriteFramesValue is a GMKeyframeSpriteFrames.
type SpriteFramesValue struct {
	Value int32
}

// BoolValue is a GMKeyframeBool.
type BoolValue struct {
	Value bool
}

// StringValue is a GMKeyframeString.
type StringValue struct {
	String int // string pool index
}

// ColorValue is a GMKeyframeColor / GMKeyframeReal (same on-wire shape).
type ColorValue struct {
	Value float32
}

// TextValue is a GMKeyframeText. The wire packs AlignmentV/AlignmentH into
// one i32's high/low bytes (spec.md §4.1's bit-packed-field convention).
type TextValue struct {
	Text       int // string pool index
	Wrap       bool
	AlignmentV int8
	AlignmentH int8
	FontIndex  int32
}

// ParticleValue is a GMKeyframeParticle.
type ParticleValue struct {
	ParticleSystemIndex int32
}

// BroadcastMessage is a GMBroadcastMessage: a list of string-pool indices,
// one per message fired at this keyframe.
type BroadcastMessage struct {
	Messages []int // string pool indices
}

// TrackKeyframes holds one Channel envelope per keyframe plus, for each
// keyframe, the concrete per-channel-index values for whichever Kind the
// owning Track carries. Exactly one of the typed slices is populated,
// selected by Kind; all others are nil. A plain discriminated struct (not
// an interface) keeps Parse/Emit's switch exhaustive and visible in one
// place, mirroring the code package's Instruction struct.
type TrackKeyframes struct {
	Kind TrackKeyframeKind

	// Interpolation is only meaningful for Kind == KindColor (spec.md's
	// GMColorTrackKeyframesData carries an extra leading i32 the other
	// variants don't).
	Interpolation int32

	Channels []Channel

	Audio            [][]AudioValue
	Instance         [][]InstanceValue
	Graphic          [][]GraphicValue
	Sequence         [][]SequenceValue
	SpriteFrames     [][]SpriteFramesValue
	Bool             [][]BoolValue
	String           [][]StringValue
	Color            [][]ColorValue
	Text             [][]TextValue
	Particle         [][]ParticleValue
	BroadcastMessage [][]BroadcastMessage
}

// Track is a node in a sequence's track tree (GMTrack).
type Track struct {
	ModelName       int // string pool index; selects Keyframes.Kind on parse
	Name            int // string pool index
	BuiltinName     TrackBuiltinName
	Traits          TrackTraits
	IsCreationTrack bool
	Tags            []int32
	SubTracks       []*Track
	Keyframes       TrackKeyframes

	// OwnedResources is this track's private animation curves (GameMaker
	// stores each preceded by a "GMAnimCurve" tag string, which every
	// track's owned resources share — spec.md doesn't surface that tag
	// itself since it carries no information beyond confirming the slot).
	OwnedResources []*animcurve.Curve
}

// Moment is a GMKeyframeMoment: a playhead position optionally carrying a
// triggered event's string reference.
type Moment struct {
	InternalCount int32
	Event         *int // string pool index; nil when InternalCount <= 0
}

// FunctionID is one entry of a sequence's function-id table.
type FunctionID struct {
	Key          int32
	FunctionName int // string pool index
}

// Sequence is one GMSequence: a named, keyframed animation.
type Sequence struct {
	Name            int // string pool index
	Playback        PlaybackType
	PlaybackSpeed   float32
	PlaybackSpeedType SpeedType
	Length          float32
	OriginX, OriginY int32
	Volume          float32

	// Width/Height are present only from 2024.13 onward (spec.md §4.1's
	// version-gated-field convention); nil on older targets.
	Width, Height *float32

	BroadcastMessages []Channel // key/length/stretch/disabled + BroadcastMessage values, spec below
	BroadcastValues   [][]BroadcastMessage

	Tracks      []*Track
	FunctionIDs []FunctionID
	Moments     []Moment
}

// Sequences is the parsed SEQN chunk.
type Sequences struct {
	Exists bool
	List   []*Sequence

	identities []databin.Identity
}

// Parse reads the SEQN chunk: a 4-byte-aligned u32 version (must be 1), then
// a pointer list of sequences (spec.md §3).
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Sequences, error) {
	d, ok := cr.Descriptor("SEQN")
	if !ok {
		return &Sequences{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("SEQN"); err != nil {
			return nil, err
		}
		return &Sequences{Exists: true}, nil
	}

	r, err := cr.MustEnter("SEQN")
	if err != nil {
		return nil, err
	}

	r.Align(4)
	ver := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SEQN", -1, "version")
	}
	if ver != 1 {
		return nil, gmerr.Wrap(gmerr.VersionContract, "SEQN", -1, "expected version 1")
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SEQN", -1, "offsets")
	}

	list := make([]*Sequence, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		s, err := ParseElement(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "SEQN: sequence #%d", i)
		}
		list[i] = s
	}

	return &Sequences{Exists: true, List: list}, nil
}

func resolveStringField(r *databin.Reader, pool *strg.Pool, field string) (int, error) {
	off := r.StringRef()
	idx, _, err := pool.Resolve(off)
	if err != nil {
		return 0, gmerr.Wrap(err, "", r.Pos(), field)
	}
	return idx, nil
}

// ParseElement reads one GMSequence's fields directly from r, with no
// surrounding version or list framing. Used both by Parse (SEQN) and by a
// sprite's/object's/room layer's inline sequence (spec.md §4.6's "inline
// element" convention, same shape as gen8's embedded substructures).
func ParseElement(r *databin.Reader, pool *strg.Pool, target version.Version) (*Sequence, error) {
	name, err := resolveStringField(r, pool, "name")
	if err != nil {
		return nil, err
	}

	playback := PlaybackType(r.U32())
	if playback > PlaybackPingpong {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "", r.Pos(), "playback")
	}
	playbackSpeed := r.F32()
	speedType := SpeedType(r.U32())
	if speedType > SpeedFramesPerGameFrame {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "", r.Pos(), "playback speed type")
	}
	length := r.F32()
	originX := r.S32()
	originY := r.S32()
	volume := r.F32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "header")
	}

	var width, height *float32
	if target.AtLeast(version.V2024_13) {
		w, h := r.F32(), r.F32()
		width, height = &w, &h
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "width/height")
		}
	}

	broadcastChannels, broadcastValues, err := parseBroadcastMessageList(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "broadcast messages")
	}

	trackCount := r.ReadSimpleListCount(1, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "track count")
	}
	tracks := make([]*Track, trackCount)
	for i := range tracks {
		t, err := parseTrack(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "track #%d", i)
		}
		tracks[i] = t
	}

	functionIDCount := r.ReadSimpleListCount(8, 10000*8)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "function id count")
	}
	functionIDs := make([]FunctionID, functionIDCount)
	for i := range functionIDs {
		key := r.S32()
		fn, err := resolveStringField(r, pool, "function id")
		if err != nil {
			return nil, err
		}
		functionIDs[i] = FunctionID{Key: key, FunctionName: fn}
	}

	momentCount := r.ReadSimpleListCount(4, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "moment count")
	}
	moments := make([]Moment, momentCount)
	for i := range moments {
		internalCount := r.S32()
		var event *int
		if internalCount > 0 {
			e, err := resolveStringField(r, pool, "moment event")
			if err != nil {
				return nil, err
			}
			event = &e
		}
		moments[i] = Moment{InternalCount: internalCount, Event: event}
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "moments")
	}

	return &Sequence{
		Name: name, Playback: playback, PlaybackSpeed: playbackSpeed,
		PlaybackSpeedType: speedType, Length: length, OriginX: originX, OriginY: originY,
		Volume: volume, Width: width, Height: height,
		BroadcastMessages: broadcastChannels, BroadcastValues: broadcastValues,
		Tracks: tracks, FunctionIDs: functionIDs, Moments: moments,
	}, nil
}

func parseKeyframeHeader(r *databin.Reader) (Channel, int, error) {
	key := r.F32()
	length := r.F32()
	stretch := r.Bool32()
	disabled := r.Bool32()
	count := r.ReadSimpleListCount(8, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return Channel{}, 0, r.Err()
	}
	return Channel{Key: key, Length: length, Stretch: stretch, Disabled: disabled}, count, nil
}

func parseBroadcastMessageList(r *databin.Reader, pool *strg.Pool) ([]Channel, [][]BroadcastMessage, error) {
	count := r.ReadSimpleListCount(16, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, nil, r.Err()
	}
	channels := make([]Channel, count)
	values := make([][]BroadcastMessage, count)
	for i := range channels {
		ch, n, err := parseKeyframeHeader(r)
		if err != nil {
			return nil, nil, err
		}
		idx := make([]int32, n)
		vals := make([]BroadcastMessage, n)
		for j := 0; j < n; j++ {
			idx[j] = r.S32()
			msgCount := r.ReadSimpleListCount(8, databin.MaxShortSimpleListBytes)
			if r.Err() != nil {
				return nil, nil, r.Err()
			}
			msgs := make([]int, msgCount)
			for k := range msgs {
				s, err := resolveStringField(r, pool, "broadcast message")
				if err != nil {
					return nil, nil, err
				}
				msgs[k] = s
			}
			vals[j] = BroadcastMessage{Messages: msgs}
		}
		ch.ChannelIndex = idx
		channels[i] = ch
		values[i] = vals
	}
	return channels, values, nil
}

func parseTrack(r *databin.Reader, pool *strg.Pool, target version.Version) (*Track, error) {
	modelNameOff := r.StringRef()
	modelName, _, err := pool.Resolve(modelNameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "", r.Pos(), "model name")
	}
	name, err := resolveStringField(r, pool, "track name")
	if err != nil {
		return nil, err
	}

	builtinName := TrackBuiltinName(r.S32())
	traits := TrackTraits(r.S32())
	isCreationTrack := r.Bool32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "header")
	}

	tagCount := r.S32()
	if tagCount == -1 {
		tagCount = 0
	}
	ownedCount := r.S32()
	if ownedCount == -1 {
		ownedCount = 0
	}
	subTrackCount := r.S32()
	if subTrackCount == -1 {
		subTrackCount = 0
	}
	if tagCount < 0 || ownedCount < 0 || subTrackCount < 0 {
		return nil, gmerr.Wrap(gmerr.CorruptStructure, "", r.Pos(), "track counts")
	}

	tags := make([]int32, tagCount)
	for i := range tags {
		tags[i] = r.S32()
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "", r.Pos(), "tags")
	}

	owned := make([]*animcurve.Curve, ownedCount)
	for i := range owned {
		tagOff := r.StringRef()
		tagIdx, _, err := pool.Resolve(tagOff)
		if err != nil {
			return nil, gmerr.Wrap(err, "", r.Pos(), "owned resource tag")
		}
		if pool.Strings[tagIdx] != "GMAnimCurve" {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "", r.Pos(), "owned resource tag")
		}
		curve, err := animcurve.ParseElement(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "owned resource #%d", i)
		}
		owned[i] = curve
	}

	subTracks := make([]*Track, subTrackCount)
	for i := range subTracks {
		t, err := parseTrack(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "sub-track #%d", i)
		}
		subTracks[i] = t
	}

	modelNameStr := pool.Strings[modelName]
	kind, ok := kindForModelName[modelNameStr]
	if !ok {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "", r.Pos(), "track model name")
	}

	keyframes, err := parseTrackKeyframes(r, pool, kind)
	if err != nil {
		return nil, gmerr.Atf(err, "keyframes")
	}

	return &Track{
		ModelName: modelName, Name: name, BuiltinName: builtinName, Traits: traits,
		IsCreationTrack: isCreationTrack, Tags: tags, SubTracks: subTracks,
		Keyframes: keyframes, OwnedResources: owned,
	}, nil
}

func parseTrackKeyframes(r *databin.Reader, pool *strg.Pool, kind TrackKeyframeKind) (TrackKeyframes, error) {
	tk := TrackKeyframes{Kind: kind}

	if kind == KindColor {
		r.Align(4)
		tk.Interpolation = r.S32()
		if r.Err() != nil {
			return tk, r.Err()
		}
	} else {
		r.Align(4)
	}

	count := r.ReadSimpleListCount(16, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return tk, r.Err()
	}

	tk.Channels = make([]Channel, count)
	for i := 0; i < count; i++ {
		ch, n, err := parseKeyframeHeader(r)
		if err != nil {
			return tk, err
		}
		idx := make([]int32, n)

		switch kind {
		case KindAudio:
			vals := make([]AudioValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = AudioValue{SoundIndex: int32(r.MandatoryRef()), Mode: r.S32()}
			}
			tk.Audio = append(tk.Audio, vals)
		case KindInstance:
			vals := make([]InstanceValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = InstanceValue{GameObjectIndex: int32(r.MandatoryRef())}
			}
			tk.Instance = append(tk.Instance, vals)
		case KindGraphic:
			vals := make([]GraphicValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = GraphicValue{SpriteIndex: int32(r.MandatoryRef())}
			}
			tk.Graphic = append(tk.Graphic, vals)
		case KindSequence:
			vals := make([]SequenceValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = SequenceValue{SequenceIndex: int32(r.MandatoryRef())}
			}
			tk.Sequence = append(tk.Sequence, vals)
		case KindSpriteFrames:
			vals := make([]SpriteFramesValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = SpriteFramesValue{Value: r.S32()}
			}
			tk.SpriteFrames = append(tk.SpriteFrames, vals)
		case KindBool:
			vals := make([]BoolValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = BoolValue{Value: r.Bool32()}
			}
			tk.Bool = append(tk.Bool, vals)
		case KindString:
			vals := make([]StringValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				s, err := resolveStringField(r, pool, "string keyframe")
				if err != nil {
					return tk, err
				}
				vals[j] = StringValue{String: s}
			}
			tk.String = append(tk.String, vals)
		case KindColor:
			vals := make([]ColorValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = ColorValue{Value: r.F32()}
			}
			tk.Color = append(tk.Color, vals)
		case KindText:
			vals := make([]TextValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				text, err := resolveStringField(r, pool, "text keyframe")
				if err != nil {
					return tk, err
				}
				wrap := r.Bool32()
				alignment := r.S32()
				fontIndex := r.S32()
				vals[j] = TextValue{
					Text: text, Wrap: wrap,
					AlignmentV: int8((alignment >> 8) & 0xff),
					AlignmentH: int8(alignment & 0xff),
					FontIndex:  fontIndex,
				}
			}
			tk.Text = append(tk.Text, vals)
		case KindParticle:
			vals := make([]ParticleValue, n)
			for j := 0; j < n; j++ {
				idx[j] = r.S32()
				vals[j] = ParticleValue{ParticleSystemIndex: int32(r.MandatoryRef())}
			}
			tk.Particle = append(tk.Particle, vals)
		default:
			return tk, gmerr.Wrap(gmerr.InvalidEnum, "", r.Pos(), "track keyframe kind")
		}
		if r.Err() != nil {
			return tk, r.Err()
		}
		ch.ChannelIndex = idx
		tk.Channels[i] = ch
	}

	return tk, nil
}

// Emit writes the SEQN chunk.
func (s *Sequences) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !s.Exists {
		return w.Err()
	}
	w.Align(4)
	w.U32(1)
	ids := make([]databin.Identity, len(s.List))
	for i := range s.List {
		ids[i] = s.IdentityFor(w, i)
	}
	pl := w.BeginPointerList(ids)
	for i, seq := range s.List {
		pl.ResolveElement(i)
		if err := EmitElement(w, pool, target, seq); err != nil {
			return gmerr.Atf(err, "SEQN: sequence #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the placeholder Identity for sequence i, assigning
// one on first use, so a sprite's inline GMSequence that happens to also be
// a top-level SEQN entry can share the same placeholder-resolution slot.
func (s *Sequences) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if s.identities == nil {
		s.identities = make([]databin.Identity, len(s.List))
	}
	if s.identities[i] == 0 {
		s.identities[i] = w.NextIdentity()
	}
	return s.identities[i]
}

func writeStringField(w *databin.Writer, pool *strg.Pool, idx int) {
	w.Placeholder(pool.IdentityFor(w, idx))
}

// EmitElement writes one GMSequence's fields with no surrounding version or
// list framing, the Emit-side counterpart to ParseElement.
func EmitElement(w *databin.Writer, pool *strg.Pool, target version.Version, s *Sequence) error {
	writeStringField(w, pool, s.Name)
	w.U32(uint32(s.Playback))
	w.F32(s.PlaybackSpeed)
	w.U32(uint32(s.PlaybackSpeedType))
	w.F32(s.Length)
	w.S32(s.OriginX)
	w.S32(s.OriginY)
	w.F32(s.Volume)
	if target.AtLeast(version.V2024_13) {
		width, height := float32(0), float32(0)
		if s.Width != nil {
			width = *s.Width
		}
		if s.Height != nil {
			height = *s.Height
		}
		w.F32(width)
		w.F32(height)
	}

	emitBroadcastMessageList(w, pool, s.BroadcastMessages, s.BroadcastValues)

	w.WriteListCount(len(s.Tracks))
	for i, t := range s.Tracks {
		if err := emitTrack(w, pool, target, t); err != nil {
			return gmerr.Atf(err, "track #%d", i)
		}
	}

	w.WriteListCount(len(s.FunctionIDs))
	for _, fn := range s.FunctionIDs {
		w.S32(fn.Key)
		writeStringField(w, pool, fn.FunctionName)
	}

	w.WriteListCount(len(s.Moments))
	for _, m := range s.Moments {
		w.S32(m.InternalCount)
		if m.Event != nil {
			writeStringField(w, pool, *m.Event)
		}
	}
	return w.Err()
}

func emitKeyframeHeader(w *databin.Writer, ch Channel, n int) {
	w.F32(ch.Key)
	w.F32(ch.Length)
	w.Bool32(ch.Stretch)
	w.Bool32(ch.Disabled)
	w.WriteListCount(n)
}

func emitBroadcastMessageList(w *databin.Writer, pool *strg.Pool, channels []Channel, values [][]BroadcastMessage) {
	w.WriteListCount(len(channels))
	for i, ch := range channels {
		vals := values[i]
		emitKeyframeHeader(w, ch, len(vals))
		for j, v := range vals {
			w.S32(ch.ChannelIndex[j])
			w.WriteListCount(len(v.Messages))
			for _, m := range v.Messages {
				writeStringField(w, pool, m)
			}
		}
	}
}

func emitTrack(w *databin.Writer, pool *strg.Pool, target version.Version, t *Track) error {
	writeStringField(w, pool, t.ModelName)
	writeStringField(w, pool, t.Name)
	w.S32(int32(t.BuiltinName))
	w.S32(int32(t.Traits))
	w.Bool32(t.IsCreationTrack)
	w.WriteListCount(len(t.Tags))
	w.WriteListCount(len(t.OwnedResources))
	w.WriteListCount(len(t.SubTracks))
	for _, tag := range t.Tags {
		w.S32(tag)
	}
	for i, curve := range t.OwnedResources {
		w.Placeholder(pool.IdentityFor(w, pool.Index("GMAnimCurve")))
		if err := animcurve.EmitElement(w, pool, target, curve); err != nil {
			return gmerr.Atf(err, "owned resource #%d", i)
		}
	}
	for i, sub := range t.SubTracks {
		if err := emitTrack(w, pool, target, sub); err != nil {
			return gmerr.Atf(err, "sub-track #%d", i)
		}
	}
	return emitTrackKeyframes(w, pool, t.Keyframes)
}

func emitTrackKeyframes(w *databin.Writer, pool *strg.Pool, tk TrackKeyframes) error {
	w.Align(4)
	if tk.Kind == KindColor {
		w.S32(tk.Interpolation)
	}
	w.WriteListCount(len(tk.Channels))

	audioIdx, instanceIdx, graphicIdx, seqIdx, spriteFramesIdx := 0, 0, 0, 0, 0
	boolIdx, stringIdx, colorIdx, textIdx, particleIdx := 0, 0, 0, 0, 0

	for _, ch := range tk.Channels {
		switch tk.Kind {
		case KindAudio:
			vals := tk.Audio[audioIdx]
			audioIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.U32(uint32(v.SoundIndex))
				w.S32(v.Mode)
			}
		case KindInstance:
			vals := tk.Instance[instanceIdx]
			instanceIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.U32(uint32(v.GameObjectIndex))
			}
		case KindGraphic:
			vals := tk.Graphic[graphicIdx]
			graphicIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.U32(uint32(v.SpriteIndex))
			}
		case KindSequence:
			vals := tk.Sequence[seqIdx]
			seqIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.U32(uint32(v.SequenceIndex))
			}
		case KindSpriteFrames:
			vals := tk.SpriteFrames[spriteFramesIdx]
			spriteFramesIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.S32(v.Value)
			}
		case KindBool:
			vals := tk.Bool[boolIdx]
			boolIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.Bool32(v.Value)
			}
		case KindString:
			vals := tk.String[stringIdx]
			stringIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				writeStringField(w, pool, v.String)
			}
		case KindColor:
			vals := tk.Color[colorIdx]
			colorIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.F32(v.Value)
			}
		case KindText:
			vals := tk.Text[textIdx]
			textIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				writeStringField(w, pool, v.Text)
				w.Bool32(v.Wrap)
				w.S32(int32(v.AlignmentV)<<8 | int32(v.AlignmentH)&0xff)
				w.S32(v.FontIndex)
			}
		case KindParticle:
			vals := tk.Particle[particleIdx]
			particleIdx++
			emitKeyframeHeader(w, ch, len(vals))
			for j, v := range vals {
				w.S32(ch.ChannelIndex[j])
				w.U32(uint32(v.ParticleSystemIndex))
			}
		default:
			return gmerr.Wrap(gmerr.InvalidEnum, "", -1, "track keyframe kind")
		}
	}
	return w.Err()
}
