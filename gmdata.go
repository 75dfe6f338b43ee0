// Package gmdata is the top-level GameMaker compiled-data codec: it wires
// every element package behind a single Data tree and two entry points,
// Load and Save, that drive the FORM container through the fixed
// dependency order spec.md §4.5 requires on the way in and the fixed
// canonical order spec.md §3 requires on the way out.
//
// This orchestration layer has no direct analog in the teacher
// (google/wuffs's lib/rac has no single "whole archive" tree type, only
// per-leaf Reader/Writer pairs the caller drives itself); it follows the
// same sticky-error, exported-Options-struct shape as chunk.Reader/
// chunk.Writer, generalized one level up to cover the entire file.
package gmdata

import (
	"github.com/modgm/gmdata/animcurve"
	"github.com/modgm/gmdata/background"
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/code"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/extension"
	"github.com/modgm/gmdata/font"
	"github.com/modgm/gmdata/function"
	"github.com/modgm/gmdata/gen8"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/misc"
	"github.com/modgm/gmdata/object"
	"github.com/modgm/gmdata/particle"
	"github.com/modgm/gmdata/path"
	"github.com/modgm/gmdata/room"
	"github.com/modgm/gmdata/script"
	"github.com/modgm/gmdata/sequence"
	"github.com/modgm/gmdata/shader"
	"github.com/modgm/gmdata/sound"
	"github.com/modgm/gmdata/sprite"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/texgroup"
	"github.com/modgm/gmdata/texture"
	"github.com/modgm/gmdata/timeline"
	"github.com/modgm/gmdata/uinode"
	"github.com/modgm/gmdata/variable"
	"github.com/modgm/gmdata/version"
	"github.com/modgm/gmdata/versiondetect"

	"github.com/rs/zerolog"
)

// Data is the fully parsed contents of a data.win FORM container: one field
// per chunk, named after the chunk it round-trips. DetectedVersion is not
// itself a chunk; it is the versiondetect.Detect upgrade of GEN8's
// self-reported version, cached here because every version-gated element
// codec's Emit needs it and re-running detection at Save time would
// require the very chunk bytes Save is about to overwrite.
type Data struct {
	Info      *gen8.Info
	Strings   *strg.Pool
	Textures  *texture.Textures
	Variables *variable.Variables
	Functions *function.Functions
	Code      *code.Codes

	Sprites     *sprite.Sprites
	Rooms       *room.Rooms
	Sounds      *sound.Sounds
	Audios      *sound.Audios
	Backgrounds *background.Backgrounds
	Fonts       *font.Fonts
	Paths       *path.Paths
	Objects     *object.Objects
	Scripts     *script.Scripts
	Shaders     *shader.Shaders
	Extensions  *extension.Extensions
	TexGroups   *texgroup.Infos

	ParticleSystems  *particle.Systems
	ParticleEmitters *particle.Emitters
	Sequences        *sequence.Sequences
	Timelines        *timeline.Timelines
	AnimCurves       *animcurve.Curves
	UINodes          *uinode.Nodes

	Tags              *misc.Tags
	Features          *misc.Features
	FilterEffects     *misc.FilterEffects
	AudioGroups       *misc.AudioGroups
	DataFiles         *misc.DataFiles
	EmbeddedImages    *misc.EmbeddedImages
	LanguageInfo      *misc.LanguageInfo
	GlobalInitScripts *misc.GlobalInitScripts
	GameEndScripts    *misc.GameEndScripts
	Options           *misc.Options

	// DetectedVersion is the upgraded engine version versiondetect.Detect
	// computed at Load time (spec.md §4.8). Building a Data tree from
	// scratch rather than via Load must set this explicitly before Save.
	DetectedVersion version.Version
}

// LoadOptions configures Load, following the teacher's exported-field
// Options-struct convention (chunk.ReaderOptions, databin.Endianness)
// rather than a variadic-functional-options surface.
type LoadOptions struct {
	Endianness databin.Endianness

	// AllowUnreadChunks disables the UnreadChunks failure once every named
	// chunk above has been parsed (spec.md §4.5); set this when reading
	// files from an engine build that emits chunks this package doesn't
	// yet know about.
	AllowUnreadChunks bool

	// Logger, if non-nil, receives the version-detection probe trail
	// (spec.md §2's "core codec stays silent" carve-out for the version
	// detector). A nil Logger disables the trail entirely.
	Logger *zerolog.Logger
}

// Load parses a complete data.win FORM container into a Data tree, driving
// every element package through the dependency order spec.md §4.5/§2
// pins: STRG and GEN8 first (string pool before anything that names a
// string, general info before version detection), then version detection
// itself, then TXTR/TPAG (every sprite/font/background texture reference
// resolves through it), then VARI/FUNC (CODE's operands resolve through
// their occurrence maps), then CODE, then the remaining chunks in any
// order since none of them depend on each other.
func Load(buf []byte, opts LoadOptions) (*Data, error) {
	cr, err := chunk.Open(buf, chunk.ReaderOptions{
		Endianness:        opts.Endianness,
		AllowUnreadChunks: opts.AllowUnreadChunks,
	})
	if err != nil {
		return nil, err
	}

	strings, err := strg.Parse(cr)
	if err != nil {
		return nil, err
	}

	info, err := gen8.Parse(cr, strings)
	if err != nil {
		return nil, err
	}

	detected, err := versiondetect.Detect(cr, info.SelfReportedVersion, info.BytecodeVersion, opts.Logger)
	if err != nil {
		return nil, gmerr.Atf(err, "version detection")
	}

	textures, err := texture.Parse(cr, detected)
	if err != nil {
		return nil, err
	}

	variables, err := variable.Parse(cr, strings, info.BytecodeVersion)
	if err != nil {
		return nil, err
	}

	functions, err := function.Parse(cr, strings, info.BytecodeVersion, detected)
	if err != nil {
		return nil, err
	}

	codes, err := code.Parse(cr, strings, variables, functions, info.BytecodeVersion, detected)
	if err != nil {
		return nil, err
	}

	sprites, err := sprite.Parse(cr, strings, textures, detected)
	if err != nil {
		return nil, err
	}

	rooms, err := room.Parse(cr, strings, detected, info.BytecodeVersion)
	if err != nil {
		return nil, err
	}

	sounds, err := sound.Parse(cr, strings, detected, info.BytecodeVersion, builtinSoundGroupID(detected))
	if err != nil {
		return nil, err
	}

	audios, err := sound.ParseAudios(cr)
	if err != nil {
		return nil, err
	}

	backgrounds, err := background.Parse(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	fonts, err := font.Parse(cr, strings, detected, info.BytecodeVersion)
	if err != nil {
		return nil, err
	}

	paths, err := path.Parse(cr, strings)
	if err != nil {
		return nil, err
	}

	objects, err := object.Parse(cr, strings)
	if err != nil {
		return nil, err
	}

	scripts, err := script.Parse(cr, strings)
	if err != nil {
		return nil, err
	}

	shaders, err := shader.Parse(cr, strings, info.BytecodeVersion)
	if err != nil {
		return nil, err
	}

	extensions, err := extension.Parse(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	texGroups, err := texgroup.Parse(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	particleSystems, err := particle.ParseSystems(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	particleEmitters, err := particle.ParseEmitters(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	sequences, err := sequence.Parse(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	timelines, err := timeline.Parse(cr, strings)
	if err != nil {
		return nil, err
	}

	animCurves, err := animcurve.Parse(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	uiNodes, err := uinode.Parse(cr, strings, detected, info.BytecodeVersion)
	if err != nil {
		return nil, err
	}

	tags, err := misc.ParseTags(cr, strings)
	if err != nil {
		return nil, err
	}

	features, err := misc.ParseFeatures(cr, strings)
	if err != nil {
		return nil, err
	}

	filterEffects, err := misc.ParseFilterEffects(cr, strings)
	if err != nil {
		return nil, err
	}

	audioGroups, err := misc.ParseAudioGroups(cr, strings, detected)
	if err != nil {
		return nil, err
	}

	dataFiles, err := misc.ParseDataFiles(cr)
	if err != nil {
		return nil, err
	}

	embeddedImages, err := misc.ParseEmbeddedImages(cr)
	if err != nil {
		return nil, err
	}

	languageInfo, err := misc.ParseLanguageInfo(cr, strings)
	if err != nil {
		return nil, err
	}

	globalInitScripts, err := misc.ParseGlobalInitScripts(cr)
	if err != nil {
		return nil, err
	}

	gameEndScripts, err := misc.ParseGameEndScripts(cr)
	if err != nil {
		return nil, err
	}

	options, err := misc.ParseOptions(cr, strings, textures)
	if err != nil {
		return nil, err
	}

	if err := cr.Finish(); err != nil {
		return nil, err
	}

	return &Data{
		Info:      info,
		Strings:   strings,
		Textures:  textures,
		Variables: variables,
		Functions: functions,
		Code:      codes,

		Sprites:     sprites,
		Rooms:       rooms,
		Sounds:      sounds,
		Audios:      audios,
		Backgrounds: backgrounds,
		Fonts:       fonts,
		Paths:       paths,
		Objects:     objects,
		Scripts:     scripts,
		Shaders:     shaders,
		Extensions:  extensions,
		TexGroups:   texGroups,

		ParticleSystems:  particleSystems,
		ParticleEmitters: particleEmitters,
		Sequences:        sequences,
		Timelines:        timelines,
		AnimCurves:       animCurves,
		UINodes:          uiNodes,

		Tags:              tags,
		Features:          features,
		FilterEffects:     filterEffects,
		AudioGroups:       audioGroups,
		DataFiles:         dataFiles,
		EmbeddedImages:    embeddedImages,
		LanguageInfo:      languageInfo,
		GlobalInitScripts: globalInitScripts,
		GameEndScripts:    gameEndScripts,
		Options:           options,

		DetectedVersion: detected,
	}, nil
}

// builtinSoundGroupID reproduces the original's get_builtin_sound_group_id,
// the audio group sound.Parse assigns to a sound whose entry carries no
// audio-group reference: group 0 from 1.0.0.1250 onward and in the
// 1.0.0.161–1.0.0.999 window, group 1 for every other version.
func builtinSoundGroupID(v version.Version) int {
	atLeast1250 := v.AtLeast(version.V(1, 0, 0, 1250))
	inOldWindow := v.AtLeast(version.V(1, 0, 0, 161)) && !v.AtLeast(version.V(1, 0, 0, 1000))
	if atLeast1250 || inOldWindow {
		return 0
	}
	return 1
}

// SaveOptions configures Save.
type SaveOptions struct {
	Endianness databin.Endianness

	// Padding is the inter-chunk zero-padding width (spec.md §4.5); zero
	// defaults to chunk.Padding16, matching modern engine builds.
	Padding chunk.PaddingWidth
}

// Save re-emits a Data tree as a complete data.win FORM container in
// spec.md §3's fixed canonical order, regardless of the order Load (or the
// caller) populated it in. Every emitted chunk shares one databin.Writer
// (chunk.Writer.DB) since pointer placeholders are resolved against
// absolute file offsets spanning chunk boundaries (spec.md §4.3).
func Save(d *Data, opts SaveOptions) ([]byte, error) {
	cw := chunk.NewWriter(chunk.WriterOptions{Endianness: opts.Endianness, Padding: opts.Padding})
	w := cw.DB()

	bytecodeVersion := d.Info.BytecodeVersion
	target := d.DetectedVersion

	// CODE must be emitted before VARI/FUNC (its canonical-order position)
	// because it is the only thing that produces the two occurrence-chain
	// tables VARI/FUNC need to round-trip their per-entry reference chains.
	var varOccurrences, fnOccurrences [][]int64

	type entry struct {
		name   string
		exists bool
		emit   func() error
	}

	entries := []entry{
		{"GEN8", true, func() error { gen8.Emit(w, d.Info, d.Strings); return w.Err() }},
		{"OPTN", d.Options.Exists, func() error { return d.Options.Emit(w, d.Strings, d.Textures) }},
		{"EXTN", d.Extensions.Exists, func() error { return d.Extensions.Emit(w, d.Strings, target) }},
		{"SOND", d.Sounds.Exists, func() error { return d.Sounds.Emit(w, d.Strings, target, bytecodeVersion) }},
		{"AGRP", d.AudioGroups.Exists, func() error { return d.AudioGroups.Emit(w, d.Strings, target) }},
		{"SPRT", d.Sprites.Exists, func() error { return d.Sprites.Emit(w, d.Strings, d.Textures, target) }},
		{"BGND", d.Backgrounds.Exists, func() error { return d.Backgrounds.Emit(w, d.Strings, target) }},
		{"PATH", d.Paths.Exists, func() error { return d.Paths.Emit(w, d.Strings) }},
		{"SCPT", d.Scripts.Exists, func() error { return d.Scripts.Emit(w, d.Strings) }},
		{"SHDR", d.Shaders.Exists, func() error { return d.Shaders.Emit(w, d.Strings, bytecodeVersion) }},
		{"FONT", d.Fonts.Exists, func() error { return d.Fonts.Emit(w, d.Strings, target, bytecodeVersion) }},
		{"TMLN", d.Timelines.Exists, func() error { return d.Timelines.Emit(w, d.Strings) }},
		{"OBJT", d.Objects.Exists, func() error { return d.Objects.Emit(w, d.Strings) }},
		{"ROOM", d.Rooms.Exists, func() error { return d.Rooms.Emit(w, d.Strings, target, bytecodeVersion) }},
		{"DAFL", d.DataFiles.Exists, func() error { return d.DataFiles.Emit(w) }},
		{"TPAG", true, func() error { return d.Textures.EmitTPAG(w) }},
		{"CODE", d.Code.Exists, func() error {
			var err error
			varOccurrences, fnOccurrences, err = d.Code.Emit(w, d.Strings, d.Variables, d.Functions, bytecodeVersion, target)
			return err
		}},
		{"VARI", true, func() error { return d.Variables.Emit(w, d.Strings, bytecodeVersion, varOccurrences) }},
		{"FUNC", true, func() error { return d.Functions.Emit(w, d.Strings, bytecodeVersion, target, fnOccurrences) }},
		{"STRG", true, func() error { return d.Strings.Emit(w) }},
		{"TXTR", true, func() error { return d.Textures.EmitTXTR(w, target) }},
		{"AUDO", d.Audios.Exists, func() error { return d.Audios.EmitAudios(w) }},
		{"SEQN", d.Sequences.Exists, func() error { return d.Sequences.Emit(w, d.Strings, target) }},
		{"PSYS", d.ParticleSystems.Exists, func() error { return d.ParticleSystems.Emit(w, d.Strings, target) }},
		{"PSEM", d.ParticleEmitters.Exists, func() error { return d.ParticleEmitters.Emit(w, d.Strings, target) }},
		{"LANG", d.LanguageInfo.Exists, func() error { return d.LanguageInfo.Emit(w, d.Strings) }},
		{"GLOB", d.GlobalInitScripts.Exists, func() error { return d.GlobalInitScripts.Emit(w) }},
		{"GMEN", d.GameEndScripts.Exists, func() error { return d.GameEndScripts.Emit(w) }},
		{"UILR", d.UINodes.Exists, func() error { return d.UINodes.Emit(w, d.Strings, target, bytecodeVersion) }},
		{"EMBI", d.EmbeddedImages.Exists, func() error { return d.EmbeddedImages.Emit(w) }},
		{"TGIN", d.TexGroups.Exists, func() error { return d.TexGroups.Emit(w, d.Strings, target) }},
		{"TAGS", d.Tags.Exists, func() error { return d.Tags.Emit(w, d.Strings) }},
		{"FEAT", d.Features.Exists, func() error { return d.Features.Emit(w, d.Strings) }},
		{"FEDS", d.FilterEffects.Exists, func() error { return d.FilterEffects.Emit(w, d.Strings) }},
		{"ACRV", d.AnimCurves.Exists, func() error { return d.AnimCurves.Emit(w, d.Strings, target) }},
	}

	lastIdx := -1
	for i, e := range entries {
		if e.exists {
			lastIdx = i
		}
	}

	for i, e := range entries {
		if !e.exists {
			continue
		}
		lenPos := cw.BeginChunk(e.name)
		if err := e.emit(); err != nil {
			return nil, gmerr.Atf(err, "emitting %s", e.name)
		}
		cw.EndChunk(lenPos, i == lastIdx)
	}

	return cw.Finish()
}
