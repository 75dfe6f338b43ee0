// Package chunk implements the FORM container: the top-level chunk
// dispatcher that enumerates a data.win file's named 4-byte chunks, builds
// a name→bounds map, and orchestrates the fixed parse order spec.md §4.5
// requires (STRG, GEN8, version detection, TXTR/TPAG, VARI/FUNC, then
// everything else).
//
// This is adapted from the teacher's lib/rac ChunkReader/ChunkWriter: the
// same "read headers up front into a bounds map, then dispatch" shape,
// generalized from RAC's single compressed-chunk-per-leaf-node model to
// FORM's flat sequence of named chunks with cross-chunk dependencies.
package chunk

// Descriptor records one child chunk's name and byte bounds within the
// FORM container, plus whether it is the container's designated "last"
// chunk (spec.md §4.5: "Exactly one chunk is flagged as last; only the
// last chunk may omit trailing chunk-padding.").
type Descriptor struct {
	Name     string
	Start    int64
	End      int64
	IsLast   bool
}

// CanonicalOrder is the fixed sequence chunks are emitted in regardless of
// source order (spec.md §3, "Chunks appear in a fixed canonical order on
// emit regardless of source order").
var CanonicalOrder = []string{
	"GEN8", "OPTN", "EXTN", "SOND", "AGRP", "SPRT", "BGND", "PATH", "SCPT",
	"SHDR", "FONT", "TMLN", "OBJT", "ROOM", "DAFL", "TPAG", "CODE", "VARI",
	"FUNC", "STRG", "TXTR", "AUDO", "SEQN", "PSYS", "PSEM", "LANG", "GLOB",
	"GMEN", "UILR", "EMBI", "TGIN", "TAGS", "FEAT", "FEDS", "ACRV",
}

// ParseOrderGroups expresses the dependency ordering spec.md §4.5 requires
// at parse time: STRG and GEN8 first, then (after version detection runs)
// TXTR/TPAG, then VARI/FUNC, then everything else in CanonicalOrder.
var ParseOrderGroups = [][]string{
	{"STRG"},
	{"GEN8"},
	// --- version detection runs here ---
	{"TXTR", "TPAG"},
	{"VARI", "FUNC"},
}

// PaddingWidth is the zero-padding alignment applied after each non-last
// chunk, in engines that pad chunks at all (spec.md §4.5). It starts at 16
// and is demoted to 4 then 1 the first time a non-zero byte appears before
// the expected alignment boundary.
type PaddingWidth int64

const (
	Padding16 PaddingWidth = 16
	Padding4  PaddingWidth = 4
	Padding1  PaddingWidth = 1
)

// Demote returns the next-smaller padding width, or itself if already at
// the smallest (1).
func (p PaddingWidth) Demote() PaddingWidth {
	switch p {
	case Padding16:
		return Padding4
	case Padding4:
		return Padding1
	default:
		return Padding1
	}
}
