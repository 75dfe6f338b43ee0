// Package texgroup implements the TGIN chunk: named texture groups, each
// listing the embedded texture pages, sprites, fonts, and tilesets that
// belong to it, plus (2022.9+) the external-file directory/extension/
// load-type metadata for split texture group packaging.
package texgroup

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// chunkVersion is the only TGIN wire version this codec understands.
const chunkVersion = 1

// LoadType describes where a texture group's textures are physically
// stored.
type LoadType int32

const (
	InFile           LoadType = 0
	SeparateGroup    LoadType = 1
	SeparateTextures LoadType = 2
)

// ExternalPackaging is the 2022.9+ external-file metadata for a texture
// group.
type ExternalPackaging struct {
	Directory int
	Extension int
	LoadType  LoadType
}

// Info is one TGIN chunk entry.
type Info struct {
	Name         int
	External     *ExternalPackaging // >= 2022.9
	TexturePages []int
	Sprites      []int
	SpineSprites []int // only before 2023.1 (folded from the original's LTS-branch-qualified gate)
	Fonts        []int
	Tilesets     []int
}

// Infos is the parsed TGIN chunk.
type Infos struct {
	Exists bool
	List   []*Info

	identities []databin.Identity
}

// hasSpineSprites reports whether target still carries the separate
// spine-sprites list; GameMaker merged it into the ordinary sprites list
// from 2023.1 onward.
func hasSpineSprites(target version.Version) bool {
	return !target.AtLeast(version.V2023_1)
}

// Parse reads the TGIN chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version) (*Infos, error) {
	d, ok := cr.Descriptor("TGIN")
	if !ok {
		return &Infos{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("TGIN"); err != nil {
			return nil, err
		}
		return &Infos{Exists: true}, nil
	}

	r, err := cr.MustEnter("TGIN")
	if err != nil {
		return nil, err
	}

	wireVersion := r.S32()
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TGIN", -1, "version")
	}
	if wireVersion != chunkVersion {
		return nil, gmerr.Atf(gmerr.VersionContract, "TGIN: expected wire version %d, got %d", chunkVersion, wireVersion)
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TGIN", -1, "offsets")
	}

	list := make([]*Info, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		info, err := parseInfo(r, pool, target)
		if err != nil {
			return nil, gmerr.Atf(err, "TGIN: texture group #%d", i)
		}
		list[i] = info
	}

	return &Infos{Exists: true, List: list}, nil
}

func parseResourceIDList(r *databin.Reader) ([]int, error) {
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	ids := make([]int, count)
	for i := range ids {
		ids[i] = int(r.MandatoryRef())
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ids, nil
}

func parseInfo(r *databin.Reader, pool *strg.Pool, target version.Version) (*Info, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "TGIN", r.Pos(), "name")
	}

	info := &Info{Name: name}
	if target.AtLeast(version.V2022_9) {
		ext, err := parseExternalPackaging(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "TGIN: external packaging")
		}
		info.External = ext
	}

	texturePagesPtr := r.U32()
	spritesPtr := r.U32()
	var spineSpritesPtr uint32
	if hasSpineSprites(target) {
		spineSpritesPtr = r.U32()
	}
	fontsPtr := r.U32()
	tilesetsPtr := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	r.SeekTo(int64(texturePagesPtr))
	if info.TexturePages, err = parseResourceIDList(r); err != nil {
		return nil, gmerr.Atf(err, "TGIN: texture pages")
	}
	r.SeekTo(int64(spritesPtr))
	if info.Sprites, err = parseResourceIDList(r); err != nil {
		return nil, gmerr.Atf(err, "TGIN: sprites")
	}
	if hasSpineSprites(target) {
		r.SeekTo(int64(spineSpritesPtr))
		if info.SpineSprites, err = parseResourceIDList(r); err != nil {
			return nil, gmerr.Atf(err, "TGIN: spine sprites")
		}
	}
	r.SeekTo(int64(fontsPtr))
	if info.Fonts, err = parseResourceIDList(r); err != nil {
		return nil, gmerr.Atf(err, "TGIN: fonts")
	}
	r.SeekTo(int64(tilesetsPtr))
	if info.Tilesets, err = parseResourceIDList(r); err != nil {
		return nil, gmerr.Atf(err, "TGIN: tilesets")
	}

	return info, nil
}

func parseExternalPackaging(r *databin.Reader, pool *strg.Pool) (*ExternalPackaging, error) {
	dirOff := r.StringRef()
	dir, _, err := pool.Resolve(dirOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "TGIN", r.Pos(), "directory")
	}
	extOff := r.StringRef()
	ext, _, err := pool.Resolve(extOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "TGIN", r.Pos(), "extension")
	}
	loadType := r.S32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if loadType < int32(InFile) || loadType > int32(SeparateTextures) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "TGIN", r.Pos(), "load type")
	}
	return &ExternalPackaging{Directory: dir, Extension: ext, LoadType: LoadType(loadType)}, nil
}

// Emit writes the TGIN chunk back to w.
func (is *Infos) Emit(w *databin.Writer, pool *strg.Pool, target version.Version) error {
	if !is.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(is.List))
	for i := range is.List {
		ids[i] = w.NextIdentity()
	}
	is.identities = ids

	w.S32(chunkVersion)
	w.WriteListCount(len(is.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, info := range is.List {
		w.Resolve(ids[i])
		if err := emitInfo(w, pool, target, info); err != nil {
			return gmerr.Atf(err, "texture group #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th texture group, referenced
// nowhere else in this codebase today but kept for symmetry with every
// other element codec's resource-by-id convention.
func (is *Infos) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(is.identities) {
		return 0
	}
	return is.identities[i]
}

func writeResourceIDList(w *databin.Writer, ids []int) {
	w.WriteListCount(len(ids))
	for _, id := range ids {
		w.U32(uint32(id))
	}
}

func emitInfo(w *databin.Writer, pool *strg.Pool, target version.Version, info *Info) error {
	w.Placeholder(pool.IdentityFor(w, info.Name))
	if target.AtLeast(version.V2022_9) {
		if info.External == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "texture group missing required external packaging metadata for target version")
		}
		w.Placeholder(pool.IdentityFor(w, info.External.Directory))
		w.Placeholder(pool.IdentityFor(w, info.External.Extension))
		w.S32(int32(info.External.LoadType))
	}

	texturePagesID := w.NextIdentity()
	w.Placeholder(texturePagesID)
	spritesID := w.NextIdentity()
	w.Placeholder(spritesID)
	var spineSpritesID databin.Identity
	if hasSpineSprites(target) {
		spineSpritesID = w.NextIdentity()
		w.Placeholder(spineSpritesID)
	}
	fontsID := w.NextIdentity()
	w.Placeholder(fontsID)
	tilesetsID := w.NextIdentity()
	w.Placeholder(tilesetsID)

	w.Resolve(texturePagesID)
	writeResourceIDList(w, info.TexturePages)
	w.Resolve(spritesID)
	writeResourceIDList(w, info.Sprites)
	if hasSpineSprites(target) {
		w.Resolve(spineSpritesID)
		writeResourceIDList(w, info.SpineSprites)
	}
	w.Resolve(fontsID)
	writeResourceIDList(w, info.Fonts)
	w.Resolve(tilesetsID)
	writeResourceIDList(w, info.Tilesets)

	return w.Err()
}
