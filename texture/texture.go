// Package texture implements the TXTR (embedded texture pages) and TPAG
// (texture page items) chunks. TXTR holds one opaque image blob per texture
// page; TPAG holds the rectangular sub-regions sprites/fonts/backgrounds
// actually reference, each pointing at a TXTR page by index (spec.md §3,
// §4.6).
//
// Image decoding is an external collaborator (spec.md §1): this package
// never interprets the blob bytes, it only locates and round-trips them.
package texture

import (
	"sort"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/version"
)

// Page is one embedded texture page: version-gated metadata plus the raw
// (still-encoded) image blob. GeneratedMips was added in 2.0.6, TextureBlockSize
// in 2022.3; entries from older files leave both at zero (spec.md §4.6,
// "TXTR 2022.3 / 2022.5 / 2.0.6: texture page stride differences").
type Page struct {
	Scaled           int32
	GeneratedMips    int32
	TextureBlockSize uint32
	Data             []byte
}

// Item is one texture page item: a rectangular sub-region of a Page.
type Item struct {
	SourceX, SourceY, SourceWidth, SourceHeight uint16
	TargetX, TargetY, TargetWidth, TargetHeight uint16
	BoundingWidth, BoundingHeight               uint16

	// Page is the index into Textures.Pages this item crops from.
	Page int
}

// Textures holds both chunks' parsed contents plus the TPAG occurrence map
// every later chunk's texture references are resolved through (spec.md
// §3, "Texture page item... references on the wire are absolute offsets
// into the file; resolved via a second occurrence map").
type Textures struct {
	Pages []Page
	Items []Item

	occurrence *databin.OccurrenceMap

	// itemIdentities lets Emit look up the placeholder Identity previously
	// handed out for item i, mirroring strg.Pool.IdentityFor. Pages need no
	// equivalent: nothing outside EmitTXTR itself defers a reference to a
	// page's blob position.
	itemIdentities []databin.Identity
}

// hasGeneratedMips / hasTextureBlockSize gate the Page struct's optional
// fields by the detected engine version (spec.md §4.6).
func hasGeneratedMips(v version.Version) bool    { return v.AtLeast(version.Version{Major: 2, Minor: 0, Release: 6}) }
func hasTextureBlockSize(v version.Version) bool { return v.AtLeast(version.V2022_3) }

// Parse reads TXTR then TPAG, in that dependency order (spec.md §2: "TXTR
// before TPAG"), and builds the occurrence map TPAG's own items are keyed
// under so later chunks (sprites, fonts, backgrounds) can resolve a texture
// reference by absolute byte offset.
func Parse(cr *chunk.Reader, detected version.Version) (*Textures, error) {
	pages, err := parseTXTR(cr, detected)
	if err != nil {
		return nil, err
	}

	items, occ, err := parseTPAG(cr, len(pages))
	if err != nil {
		return nil, err
	}

	return &Textures{Pages: pages, Items: items, occurrence: occ}, nil
}

func parseTXTR(cr *chunk.Reader, detected version.Version) ([]Page, error) {
	r, err := cr.MustEnter("TXTR")
	if err != nil {
		return nil, err
	}

	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TXTR", -1, "count")
	}
	entryOffsets := make([]uint32, count)
	for i := range entryOffsets {
		entryOffsets[i] = r.Pointer()
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TXTR", -1, "entry offsets")
	}

	pages := make([]Page, count)
	dataOffsets := make([]int64, count)
	withMips := hasGeneratedMips(detected)
	withBlockSize := hasTextureBlockSize(detected)

	for i, off := range entryOffsets {
		r.SeekTo(int64(off))
		var p Page
		p.Scaled = r.S32()
		if withMips {
			p.GeneratedMips = r.S32()
		}
		if withBlockSize {
			p.TextureBlockSize = r.U32()
		}
		dataPtr := r.Pointer()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "TXTR", int64(off), "entry header")
		}
		pages[i] = p
		dataOffsets[i] = int64(dataPtr)
	}

	// Blob lengths aren't stored explicitly; each blob runs from its data
	// pointer to whichever recorded data pointer comes next in file order
	// (or the chunk end, for the last one). This mirrors the "only the
	// external image decoder needs to know the true length" framing of
	// spec.md §1 — gmdata only needs to round-trip the bytes, not parse
	// their PNG/QOI/BZ2 header.
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return dataOffsets[order[a]] < dataOffsets[order[b]] })

	chunkEnd := r.ChunkEnd()
	for rank, idx := range order {
		start := dataOffsets[idx]
		end := chunkEnd
		if rank+1 < len(order) {
			end = dataOffsets[order[rank+1]]
		}
		if end < start {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "TXTR", start, "texture data bounds")
		}
		r.SeekTo(start)
		pages[idx].Data = append([]byte(nil), r.Bytes(int(end-start))...)
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TXTR", -1, "texture data")
	}

	return pages, nil
}

func parseTPAG(cr *chunk.Reader, pageCount int) ([]Item, *databin.OccurrenceMap, error) {
	r, err := cr.MustEnter("TPAG")
	if err != nil {
		return nil, nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, nil, gmerr.Wrap(r.Err(), "TPAG", -1, "offsets")
	}

	items := make([]Item, len(offsets))
	occ := databin.NewOccurrenceMap(len(offsets))

	for i, off := range offsets {
		r.SeekTo(int64(off))
		it := Item{
			SourceX:        r.U16(),
			SourceY:        r.U16(),
			SourceWidth:    r.U16(),
			SourceHeight:   r.U16(),
			TargetX:        r.U16(),
			TargetY:        r.U16(),
			TargetWidth:    r.U16(),
			TargetHeight:   r.U16(),
			BoundingWidth:  r.U16(),
			BoundingHeight: r.U16(),
		}
		pageID := r.U16()
		if r.Err() != nil {
			return nil, nil, gmerr.Wrap(r.Err(), "TPAG", int64(off), "item")
		}
		if int(pageID) >= pageCount {
			return nil, nil, gmerr.Wrap(gmerr.CorruptStructure, "TPAG", int64(off), "texture page index")
		}
		it.Page = int(pageID)
		items[i] = it
		occ.Put(off, i)
	}

	return items, occ, nil
}

// Resolve looks up the item index for a texture reference's on-wire byte
// offset. A miss is gmerr.UnknownTextureReference (spec.md §3).
func (t *Textures) Resolve(offset uint32) (idx int, err error) {
	idx, ok := t.occurrence.Lookup(offset)
	if !ok {
		return 0, gmerr.Wrap(gmerr.UnknownTextureReference, "TPAG", int64(offset), "")
	}
	return idx, nil
}

// ItemIdentityFor returns the placeholder Identity for item i's on-wire
// struct, assigning one on first use, mirroring strg.Pool.IdentityFor.
func (t *Textures) ItemIdentityFor(w *databin.Writer, i int) databin.Identity {
	if t.itemIdentities == nil {
		t.itemIdentities = make([]databin.Identity, len(t.Items))
	}
	if t.itemIdentities[i] == 0 {
		t.itemIdentities[i] = w.NextIdentity()
	}
	return t.itemIdentities[i]
}

// EmitTXTR writes the TXTR chunk's payload into w, between the caller's own
// BeginChunk/EndChunk("TXTR", ...). Kept separate from EmitTPAG because the
// two chunks sit far apart in the canonical emit order (spec.md §3: "Chunks
// appear in a fixed canonical order on emit regardless of source order") even
// though TXTR must be *parsed* before TPAG.
func (t *Textures) EmitTXTR(w *databin.Writer, target version.Version) error {
	withMips := hasGeneratedMips(target)
	withBlockSize := hasTextureBlockSize(target)

	w.WriteListCount(len(t.Pages))
	entryIDs := make([]databin.Identity, len(t.Pages))
	for i := range t.Pages {
		entryIDs[i] = w.NextIdentity()
		w.Placeholder(entryIDs[i])
	}
	dataIDs := make([]databin.Identity, len(t.Pages))
	for i, p := range t.Pages {
		w.Resolve(entryIDs[i])
		w.S32(p.Scaled)
		if withMips {
			w.S32(p.GeneratedMips)
		}
		if withBlockSize {
			w.U32(p.TextureBlockSize)
		}
		dataIDs[i] = w.NextIdentity()
		w.Placeholder(dataIDs[i])
	}
	for i, p := range t.Pages {
		w.Resolve(dataIDs[i])
		w.RawBytes(p.Data)
	}
	return w.Err()
}

// EmitTPAG writes the TPAG chunk's payload into w, resolving each item's
// on-wire struct position against ItemIdentityFor so other chunks' deferred
// texture references (recorded while emitting sprites/fonts/backgrounds)
// land on the right offset once TPAG is actually written.
func (t *Textures) EmitTPAG(w *databin.Writer) error {
	w.WriteListCount(len(t.Items))
	itemIDs := make([]databin.Identity, len(t.Items))
	for i := range t.Items {
		itemIDs[i] = t.ItemIdentityFor(w, i)
		w.Placeholder(itemIDs[i])
	}
	for i, it := range t.Items {
		w.Resolve(itemIDs[i])
		w.U16(it.SourceX)
		w.U16(it.SourceY)
		w.U16(it.SourceWidth)
		w.U16(it.SourceHeight)
		w.U16(it.TargetX)
		w.U16(it.TargetY)
		w.U16(it.TargetWidth)
		w.U16(it.TargetHeight)
		w.U16(it.BoundingWidth)
		w.U16(it.BoundingHeight)
		if it.Page < 0 || it.Page > 0xFFFF {
			return gmerr.Wrap(gmerr.CorruptStructure, "TPAG", -1, "texture page index out of u16 range")
		}
		w.U16(uint16(it.Page))
	}
	return w.Err()
}
