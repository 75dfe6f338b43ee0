// Package misc implements the remaining small chunks that don't carry
// enough branching complexity to warrant their own package: tags
// (TAGS), feature flags (FEAT/FEDS), audio groups (AGRP), the
// perpetually-empty data files chunk (DAFL), embedded images (EMBI),
// localization data (LANG), and the global/game-end init script lists
// (GLOB/GMEN). The options editor chunk (OPTN) lives in options.go,
// sharing this package since it leans on the same string-pool and
// texture-reference helpers.
package misc

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

const tagsWireVersion = 1

// parseStringList reads a "simple list of strings": a count followed by
// that many raw string-pool offsets, with no struct wrapper or pointer
// indirection around each entry.
func parseStringList(r *databin.Reader, pool *strg.Pool) ([]int, error) {
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	out := make([]int, count)
	for i := range out {
		off := r.StringRef()
		idx, _, err := pool.Resolve(off)
		if err != nil {
			return nil, gmerr.Atf(err, "string #%d", i)
		}
		out[i] = idx
	}
	return out, nil
}

func writeStringList(w *databin.Writer, pool *strg.Pool, idxs []int) {
	w.WriteListCount(len(idxs))
	for _, idx := range idxs {
		w.Placeholder(pool.IdentityFor(w, idx))
	}
}

// AssetTags is the set of tag strings attached to one asset (by its raw
// resource id, whose asset type is implied by context rather than stored).
type AssetTags struct {
	ID   int32
	Tags []int
}

// Tags is the parsed TAGS chunk: a free-standing pool of tag strings plus
// the per-asset tag assignments.
type Tags struct {
	Exists    bool
	Tags      []int
	AssetTags []AssetTags
}

// ParseTags reads the TAGS chunk.
func ParseTags(cr *chunk.Reader, pool *strg.Pool) (*Tags, error) {
	d, ok := cr.Descriptor("TAGS")
	if !ok {
		return &Tags{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("TAGS"); err != nil {
			return nil, err
		}
		return &Tags{Exists: true}, nil
	}

	r, err := cr.MustEnter("TAGS")
	if err != nil {
		return nil, err
	}

	r.Align(4)
	ver := r.S32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TAGS", -1, "version")
	}
	if ver != tagsWireVersion {
		return nil, gmerr.Wrap(gmerr.VersionContract, "TAGS", r.Pos(), "wire version")
	}

	tags, err := parseStringList(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "TAGS: tags")
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TAGS", -1, "asset tag offsets")
	}
	assetTags := make([]AssetTags, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		id := r.S32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		tagList, err := parseStringList(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "TAGS: asset tag #%d", i)
		}
		assetTags[i] = AssetTags{ID: id, Tags: tagList}
	}

	return &Tags{Exists: true, Tags: tags, AssetTags: assetTags}, nil
}

// Emit writes the TAGS chunk back to w.
func (t *Tags) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !t.Exists {
		return nil
	}
	w.Align(4)
	w.S32(tagsWireVersion)
	writeStringList(w, pool, t.Tags)

	ids := make([]databin.Identity, len(t.AssetTags))
	for i := range t.AssetTags {
		ids[i] = w.NextIdentity()
	}
	w.WriteListCount(len(t.AssetTags))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, at := range t.AssetTags {
		w.Resolve(ids[i])
		w.S32(at.ID)
		writeStringList(w, pool, at.Tags)
	}
	return w.Err()
}

// Features is the parsed FEAT chunk: a flat list of feature-flag strings
// (e.g. the engine capabilities a project opts into).
type Features struct {
	Exists bool
	Flags  []int
}

// ParseFeatures reads the FEAT chunk.
func ParseFeatures(cr *chunk.Reader, pool *strg.Pool) (*Features, error) {
	d, ok := cr.Descriptor("FEAT")
	if !ok {
		return &Features{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("FEAT"); err != nil {
			return nil, err
		}
		return &Features{Exists: true}, nil
	}
	r, err := cr.MustEnter("FEAT")
	if err != nil {
		return nil, err
	}
	flags, err := parseStringList(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "FEAT: flags")
	}
	return &Features{Exists: true, Flags: flags}, nil
}

// Emit writes the FEAT chunk back to w.
func (f *Features) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !f.Exists {
		return nil
	}
	writeStringList(w, pool, f.Flags)
	return w.Err()
}

// FilterEffects is the parsed FEDS chunk: a flat list of shader filter
// effect names available to the project.
type FilterEffects struct {
	Exists bool
	Names  []int
}

// ParseFilterEffects reads the FEDS chunk.
func ParseFilterEffects(cr *chunk.Reader, pool *strg.Pool) (*FilterEffects, error) {
	d, ok := cr.Descriptor("FEDS")
	if !ok {
		return &FilterEffects{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("FEDS"); err != nil {
			return nil, err
		}
		return &FilterEffects{Exists: true}, nil
	}
	r, err := cr.MustEnter("FEDS")
	if err != nil {
		return nil, err
	}
	names, err := parseStringList(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "FEDS: names")
	}
	return &FilterEffects{Exists: true, Names: names}, nil
}

// Emit writes the FEDS chunk back to w.
func (f *FilterEffects) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !f.Exists {
		return nil
	}
	writeStringList(w, pool, f.Names)
	return w.Err()
}

// AudioGroup is one named audio group; Path is the pool index of its
// external audio directory and is only meaningful (never -1) once Emit's
// target is 2024.14 or later, matching the field's addition on that wire
// version.
type AudioGroup struct {
	Name int
	Path int32 // -1 = field not present for this target version
}

// AudioGroups is the parsed AGRP chunk.
type AudioGroups struct {
	Exists bool
	List   []AudioGroup

	identities []databin.Identity
}

// ParseAudioGroups reads the AGRP chunk.
func ParseAudioGroups(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*AudioGroups, error) {
	d, ok := cr.Descriptor("AGRP")
	if !ok {
		return &AudioGroups{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("AGRP"); err != nil {
			return nil, err
		}
		return &AudioGroups{Exists: true}, nil
	}

	r, err := cr.MustEnter("AGRP")
	if err != nil {
		return nil, err
	}
	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "AGRP", -1, "offsets")
	}

	withPath := target.AtLeast(version.V2024_14)
	list := make([]AudioGroup, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		nameOff := r.StringRef()
		name, _, err := pool.Resolve(nameOff)
		if err != nil {
			return nil, gmerr.Atf(err, "AGRP: group #%d name", i)
		}
		g := AudioGroup{Name: name, Path: -1}
		if withPath {
			pathOff := r.StringRef()
			idx, _, err := pool.Resolve(pathOff)
			if err != nil {
				return nil, gmerr.Atf(err, "AGRP: group #%d path", i)
			}
			g.Path = int32(idx)
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		list[i] = g
	}

	return &AudioGroups{Exists: true, List: list}, nil
}

// IdentityFor returns the identity of the i'th audio group, for chunks
// (sound) that reference a group by resource index.
func (g *AudioGroups) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(g.identities) {
		return 0
	}
	return g.identities[i]
}

// Emit writes the AGRP chunk back to w.
func (g *AudioGroups) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !g.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(g.List))
	for i := range g.List {
		ids[i] = w.NextIdentity()
	}
	g.identities = ids

	w.WriteListCount(len(g.List))
	for _, id := range ids {
		w.Placeholder(id)
	}

	withPath := target.AtLeast(version.V2024_14)
	for i, ag := range g.List {
		w.Resolve(ids[i])
		w.Placeholder(pool.IdentityFor(w, ag.Name))
		if withPath {
			if ag.Path < 0 {
				return gmerr.Atf(gmerr.CorruptStructure, "AGRP: group #%d missing path for 2024.14+ target", i)
			}
			w.Placeholder(pool.IdentityFor(w, int(ag.Path)))
		}
	}
	return w.Err()
}

// DataFiles is the parsed DAFL chunk. GameMaker has never written anything
// into it; the only meaningful state is whether the chunk is present at
// all.
type DataFiles struct {
	Exists bool
}

// ParseDataFiles reads the (always-empty) DAFL chunk.
func ParseDataFiles(cr *chunk.Reader) (*DataFiles, error) {
	d, ok := cr.Descriptor("DAFL")
	if !ok {
		return &DataFiles{}, nil
	}
	if _, err := cr.MustEnter("DAFL"); err != nil {
		return nil, err
	}
	_ = d
	return &DataFiles{Exists: true}, nil
}

// Emit writes the DAFL chunk back to w. There is nothing to write beyond
// the chunk header the caller already emits.
func (d *DataFiles) Emit(w *databin.Writer) error {
	return w.Err()
}

// EmbeddedImage is one raw, length-prefixed image blob.
type EmbeddedImage struct {
	Data []byte
}

// EmbeddedImages is the parsed EMBI chunk.
type EmbeddedImages struct {
	Exists bool
	List   []EmbeddedImage
}

// ParseEmbeddedImages reads the EMBI chunk: a pointer list of
// length-prefixed byte blobs, the same shape the neighboring embedded-audio
// chunk uses for its own opaque blobs.
func ParseEmbeddedImages(cr *chunk.Reader) (*EmbeddedImages, error) {
	d, ok := cr.Descriptor("EMBI")
	if !ok {
		return &EmbeddedImages{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("EMBI"); err != nil {
			return nil, err
		}
		return &EmbeddedImages{Exists: true}, nil
	}

	r, err := cr.MustEnter("EMBI")
	if err != nil {
		return nil, err
	}
	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "EMBI", -1, "offsets")
	}

	list := make([]EmbeddedImage, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		n := r.U32()
		if r.Err() != nil || int64(n) > databin.MaxSimpleListBytes {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "EMBI", int64(off), "length")
		}
		data := append([]byte(nil), r.Bytes(int(n))...)
		if r.Err() != nil {
			return nil, r.Err()
		}
		list[i] = EmbeddedImage{Data: data}
	}

	return &EmbeddedImages{Exists: true, List: list}, nil
}

// Emit writes the EMBI chunk back to w.
func (e *EmbeddedImages) Emit(w *databin.Writer) error {
	if !e.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(e.List))
	for i := range e.List {
		ids[i] = w.NextIdentity()
	}
	w.WriteListCount(len(e.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, img := range e.List {
		w.Resolve(ids[i])
		w.U32(uint32(len(img.Data)))
		w.RawBytes(img.Data)
	}
	return w.Err()
}

// LanguageData is one language's localized strings, one per entry id in
// the LanguageInfo it belongs to.
type LanguageData struct {
	Name, Region int
	Entries      []int
}

// LanguageInfo is the parsed LANG chunk: a 2D grid of localized strings,
// rows keyed by language and columns keyed by a shared set of entry ids.
type LanguageInfo struct {
	Exists    bool
	Unknown1  uint32
	EntryIDs  []int
	Languages []LanguageData
}

// ParseLanguageInfo reads the LANG chunk.
func ParseLanguageInfo(cr *chunk.Reader, pool *strg.Pool) (*LanguageInfo, error) {
	d, ok := cr.Descriptor("LANG")
	if !ok {
		return &LanguageInfo{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("LANG"); err != nil {
			return nil, err
		}
		return &LanguageInfo{Exists: true}, nil
	}

	r, err := cr.MustEnter("LANG")
	if err != nil {
		return nil, err
	}

	unknown1 := r.U32()
	languageCount := r.U32()
	entryCount := r.U32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "LANG", -1, "header")
	}
	if int64(entryCount)*4 > databin.MaxSimpleListBytes || int64(languageCount)*4 > databin.MaxSimpleListBytes {
		return nil, gmerr.Wrap(gmerr.Failsafe, "LANG", r.Pos(), "counts")
	}

	entryIDs := make([]int, entryCount)
	for i := range entryIDs {
		off := r.StringRef()
		idx, _, err := pool.Resolve(off)
		if err != nil {
			return nil, gmerr.Atf(err, "LANG: entry id #%d", i)
		}
		entryIDs[i] = idx
	}

	languages := make([]LanguageData, languageCount)
	for i := range languages {
		nameOff := r.StringRef()
		name, _, err := pool.Resolve(nameOff)
		if err != nil {
			return nil, gmerr.Atf(err, "LANG: language #%d name", i)
		}
		regionOff := r.StringRef()
		region, _, err := pool.Resolve(regionOff)
		if err != nil {
			return nil, gmerr.Atf(err, "LANG: language #%d region", i)
		}
		entries := make([]int, entryCount)
		for j := range entries {
			off := r.StringRef()
			idx, _, err := pool.Resolve(off)
			if err != nil {
				return nil, gmerr.Atf(err, "LANG: language #%d entry #%d", i, j)
			}
			entries[j] = idx
		}
		languages[i] = LanguageData{Name: name, Region: region, Entries: entries}
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	return &LanguageInfo{Exists: true, Unknown1: unknown1, EntryIDs: entryIDs, Languages: languages}, nil
}

// Emit writes the LANG chunk back to w.
func (l *LanguageInfo) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !l.Exists {
		return nil
	}
	w.U32(l.Unknown1)
	w.U32(uint32(len(l.Languages)))
	w.U32(uint32(len(l.EntryIDs)))
	for _, idx := range l.EntryIDs {
		w.Placeholder(pool.IdentityFor(w, idx))
	}
	for i, lang := range l.Languages {
		if len(lang.Entries) != len(l.EntryIDs) {
			return gmerr.Atf(gmerr.CorruptStructure, "LANG: language #%d entry count %d != %d entry ids", i, len(lang.Entries), len(l.EntryIDs))
		}
		w.Placeholder(pool.IdentityFor(w, lang.Name))
		w.Placeholder(pool.IdentityFor(w, lang.Region))
		for _, idx := range lang.Entries {
			w.Placeholder(pool.IdentityFor(w, idx))
		}
	}
	return w.Err()
}

// GlobalInit is a single script to run during global-scope initialization
// (GLOB) or at game end (GMEN); both chunks share this exact entry shape,
// each entry being nothing but a raw code resource-by-id.
type GlobalInit struct {
	Code int
}

func parseGlobalInitList(r *databin.Reader) ([]GlobalInit, error) {
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	list := make([]GlobalInit, count)
	for i := range list {
		idx := r.MandatoryRef()
		if r.Err() != nil {
			return nil, r.Err()
		}
		list[i] = GlobalInit{Code: int(idx)}
	}
	return list, nil
}

func writeGlobalInitList(w *databin.Writer, list []GlobalInit) {
	w.WriteListCount(len(list))
	for _, gi := range list {
		w.U32(uint32(gi.Code))
	}
}

// GlobalInitScripts is the parsed GLOB chunk.
type GlobalInitScripts struct {
	Exists bool
	List   []GlobalInit
}

// ParseGlobalInitScripts reads the GLOB chunk.
func ParseGlobalInitScripts(cr *chunk.Reader) (*GlobalInitScripts, error) {
	d, ok := cr.Descriptor("GLOB")
	if !ok {
		return &GlobalInitScripts{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("GLOB"); err != nil {
			return nil, err
		}
		return &GlobalInitScripts{Exists: true}, nil
	}
	r, err := cr.MustEnter("GLOB")
	if err != nil {
		return nil, err
	}
	list, err := parseGlobalInitList(r)
	if err != nil {
		return nil, gmerr.Atf(err, "GLOB")
	}
	return &GlobalInitScripts{Exists: true, List: list}, nil
}

// Emit writes the GLOB chunk back to w.
func (g *GlobalInitScripts) Emit(w *databin.Writer) error {
	if !g.Exists {
		return nil
	}
	writeGlobalInitList(w, g.List)
	return w.Err()
}

// GameEndScripts is the parsed GMEN chunk; identical shape to
// GlobalInitScripts, kept as a distinct type since the two chunks run at
// opposite ends of a game's lifetime and nothing elsewhere conflates them.
type GameEndScripts struct {
	Exists bool
	List   []GlobalInit
}

// ParseGameEndScripts reads the GMEN chunk.
func ParseGameEndScripts(cr *chunk.Reader) (*GameEndScripts, error) {
	d, ok := cr.Descriptor("GMEN")
	if !ok {
		return &GameEndScripts{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("GMEN"); err != nil {
			return nil, err
		}
		return &GameEndScripts{Exists: true}, nil
	}
	r, err := cr.MustEnter("GMEN")
	if err != nil {
		return nil, err
	}
	list, err := parseGlobalInitList(r)
	if err != nil {
		return nil, gmerr.Atf(err, "GMEN")
	}
	return &GameEndScripts{Exists: true, List: list}, nil
}

// Emit writes the GMEN chunk back to w.
func (g *GameEndScripts) Emit(w *databin.Writer) error {
	if !g.Exists {
		return nil
	}
	writeGlobalInitList(w, g.List)
	return w.Err()
}
