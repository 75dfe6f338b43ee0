// Package function implements the FUNC chunk: the table of every function
// referenced anywhere in the game's bytecode, each with its own occurrence
// chain threaded through CODE (spec.md §3), plus the bytecode-16+
// code-locals sub-table.
package function

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// Function is one entry in the FUNC table.
type Function struct {
	Name         int // string pool index
	NameStringID int32
}

// LocalVariable is one named local slot within a CodeLocal entry. What
// Index actually means is undocumented upstream; gmdata round-trips it
// opaquely.
type LocalVariable struct {
	Index uint32
	Name  int // string pool index
}

// CodeLocal is one code entry's table of local variable slots.
type CodeLocal struct {
	Name      int // string pool index
	Variables []LocalVariable
}

// Functions is the parsed FUNC chunk.
type Functions struct {
	Functions  []Function
	CodeLocals []CodeLocal // present only for bytecode 15..<2024.8 (spec.md §4)

	occurrence *databin.OccurrenceMap
}

// Parse reads the FUNC chunk: the function table (count is implicit for
// bytecode <= 14, an explicit u32 otherwise), then the code-locals
// sub-table.
func Parse(cr *chunk.Reader, pool *strg.Pool, bytecodeVersion uint8, detected version.Version) (*Functions, error) {
	d, ok := cr.Descriptor("FUNC")
	if !ok {
		return nil, gmerr.Wrap(gmerr.CorruptStructure, "FUNC", -1, "required chunk missing")
	}
	r, err := cr.MustEnter("FUNC")
	if err != nil {
		return nil, err
	}

	var count int
	if bytecodeVersion <= 14 {
		count = int((d.End - d.Start) / 12)
	} else {
		count = r.ReadSimpleListCount(12, databin.MaxSimpleListBytes)
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "FUNC", -1, "count")
		}
	}

	codeReader, hasCode := cr.PeekReader("CODE")

	functions := make([]Function, count)
	occ := databin.NewOccurrenceMap(count)

	for i := 0; i < count; i++ {
		strOff := r.StringRef()
		nameIdx, _, err := pool.Resolve(strOff)
		if err != nil {
			return nil, gmerr.Wrap(err, "FUNC", r.Pos(), "name")
		}
		occCount := r.ReadSimpleListCount(1, databin.MaxSimpleListBytes)
		firstOccPos := r.S32()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "FUNC", r.Pos(), "occurrence header")
		}

		var occurrences []int64
		nameStringID := int32(firstOccPos)
		if occCount > 0 {
			if !hasCode {
				return nil, gmerr.Wrap(gmerr.CorruptStructure, "FUNC", r.Pos(), "occurrences present but CODE chunk missing")
			}
			occurrences, nameStringID, err = parseOccurrenceChain(codeReader, int32(firstOccPos), occCount, detected)
			if err != nil {
				return nil, gmerr.Atf(err, "FUNC: function #%d occurrence chain", i)
			}
		}

		for _, pos := range occurrences {
			if existing, ok := occ.Lookup(uint32(pos)); ok {
				return nil, gmerr.Atf(gmerr.CorruptStructure,
					"FUNC: conflicting occurrence at CODE position %d: function #%d vs #%d", pos, existing, i)
			}
			occ.Put(uint32(pos), i)
		}

		functions[i] = Function{Name: nameIdx, NameStringID: nameStringID}
	}

	var locals []CodeLocal
	if bytecodeVersion > 14 && !detected.AtLeast(version.V2024_8) {
		locals, err = parseCodeLocals(r, pool)
		if err != nil {
			return nil, err
		}
	}

	return &Functions{Functions: functions, CodeLocals: locals, occurrence: occ}, nil
}

// parseOccurrenceChain mirrors variable.parseOccurrenceChain; functions'
// first link sits at an offset of 0 from GMS2.3 onward but 4 bytes before
// it, matching the original's versioned first_extra_offset (spec.md §3).
func parseOccurrenceChain(r *databin.Reader, firstOccurrencePos int32, count int, detected version.Version) ([]int64, int32, error) {
	firstExtra := int64(4)
	if detected.AtLeast(version.V2_3) {
		firstExtra = 0
	}

	occurrences := make([]int64, 0, count)
	pos := int64(firstOccurrencePos) + firstExtra
	offset := firstOccurrencePos
	for i := 0; i < count; i++ {
		occurrences = append(occurrences, pos)
		r.SeekTo(pos)
		raw := r.S32()
		if r.Err() != nil {
			return nil, 0, r.Err()
		}
		offset = raw & 0x07FFFFFF
		if offset < 1 {
			return nil, 0, gmerr.Wrap(gmerr.CorruptStructure, "CODE", pos, "occurrence chain offset")
		}
		pos += int64(offset)
	}
	return occurrences, offset & 0xFFFFFF, nil
}

func parseCodeLocals(r *databin.Reader, pool *strg.Pool) ([]CodeLocal, error) {
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "FUNC", -1, "code locals count")
	}
	locals := make([]CodeLocal, count)
	for i := range locals {
		varCount := r.ReadSimpleListCount(8, databin.MaxShortSimpleListBytes)
		nameOff := r.StringRef()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "FUNC", -1, "code local header")
		}
		nameIdx, _, err := pool.Resolve(nameOff)
		if err != nil {
			return nil, gmerr.Wrap(err, "FUNC", r.Pos(), "code local name")
		}
		vars := make([]LocalVariable, varCount)
		for j := range vars {
			index := r.U32()
			vOff := r.StringRef()
			if r.Err() != nil {
				return nil, gmerr.Wrap(r.Err(), "FUNC", -1, "code local variable")
			}
			vIdx, _, err := pool.Resolve(vOff)
			if err != nil {
				return nil, gmerr.Wrap(err, "FUNC", r.Pos(), "code local variable name")
			}
			vars[j] = LocalVariable{Index: index, Name: vIdx}
		}
		locals[i] = CodeLocal{Name: nameIdx, Variables: vars}
	}
	return locals, nil
}

// Resolve looks up the function index for an occurrence's absolute CODE
// byte position.
func (f *Functions) Resolve(pos uint32) (idx int, err error) {
	idx, ok := f.occurrence.Lookup(pos)
	if !ok {
		return 0, gmerr.Wrap(gmerr.CorruptStructure, "CODE", int64(pos), "unknown function occurrence")
	}
	return idx, nil
}

// Emit writes the FUNC chunk. occurrences[i] must hold every CODE-absolute
// byte position function i is referenced at, already threaded by the code
// package's CODE emission (spec.md §2: CODE precedes FUNC in canonical
// emit order).
func (f *Functions) Emit(w *databin.Writer, pool *strg.Pool, bytecodeVersion uint8, target version.Version, occurrences [][]int64) error {
	if bytecodeVersion > 14 {
		w.WriteListCount(len(f.Functions))
	}
	atLeast23 := target.AtLeast(version.V2_3)
	for i, fn := range f.Functions {
		var occList []int64
		if i < len(occurrences) {
			occList = occurrences[i]
		}

		w.Placeholder(pool.IdentityFor(w, fn.Name))
		w.WriteListCount(len(occList))

		first := fn.NameStringID
		if len(occList) > 0 {
			if atLeast23 {
				first = int32(occList[0])
			} else {
				first = int32(occList[0]) - 4
			}
		}
		w.S32(first)
	}

	if bytecodeVersion > 14 && !target.AtLeast(version.V2024_8) {
		w.WriteListCount(len(f.CodeLocals))
		for _, local := range f.CodeLocals {
			w.WriteListCount(len(local.Variables))
			w.Placeholder(pool.IdentityFor(w, local.Name))
			for _, v := range local.Variables {
				w.U32(v.Index)
				w.Placeholder(pool.IdentityFor(w, v.Name))
			}
		}
	}

	return w.Err()
}
