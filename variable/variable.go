// Package variable implements the VARI chunk: the table of every local,
// self, and global variable referenced anywhere in the game's bytecode,
// plus the occurrence-chain machinery that threads a linked list of
// reference positions through the CODE chunk (spec.md §3, "Variables /
// Functions: each has a name... and a chain of occurrences").
package variable

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// B15Data is present on every Variable once bytecode >= 15: the resolved
// instance-type/variable-id pair used to disambiguate variables that share
// a name across different instance scopes.
type B15Data struct {
	InstanceType int16
	VariableID   int32
}

// Variable is one entry in the VARI table.
type Variable struct {
	Name int // string pool index
	B15  *B15Data

	// NameStringID is the value the occurrence chain's final link would
	// store if this variable had zero occurrences (spec.md §3's "last slot
	// stores the variable's name-string-id").
	NameStringID int32
}

// Scuffed holds the three bytecode-15+ header fields nobody has fully
// reverse-engineered the meaning of; gmdata round-trips them opaquely.
type Scuffed struct {
	VarCount1        uint32
	VarCount2        uint32
	MaxLocalVarCount uint32
}

// Variables is the parsed VARI chunk.
type Variables struct {
	Variables []Variable
	Scuffed   *Scuffed

	// YYC marks a present-but-empty VARI chunk, emitted by the YoYo
	// Compiler build which bakes variable names into native code instead
	// (spec.md §4's chunk-existence vs. chunk-content distinction).
	YYC bool

	occurrence *databin.OccurrenceMap
}

// Parse reads the VARI chunk. Occurrence chains are threaded through the
// CODE chunk's bytes, so CODE's header must already be known (but not yet
// parsed itself — spec.md §2: "VARI/FUNC before CODE").
func Parse(cr *chunk.Reader, pool *strg.Pool, bytecodeVersion uint8) (*Variables, error) {
	d, ok := cr.Descriptor("VARI")
	if !ok {
		return nil, gmerr.Wrap(gmerr.CorruptStructure, "VARI", -1, "required chunk missing")
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("VARI"); err != nil {
			return nil, err
		}
		return &Variables{YYC: true}, nil
	}

	r, err := cr.MustEnter("VARI")
	if err != nil {
		return nil, err
	}

	entrySize := int64(12)
	if bytecodeVersion >= 15 {
		entrySize = 20
	}

	var scuffed *Scuffed
	if bytecodeVersion >= 15 {
		scuffed = &Scuffed{
			VarCount1:        r.U32(),
			VarCount2:        r.U32(),
			MaxLocalVarCount: r.U32(),
		}
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "VARI", -1, "scuffed header")
		}
	}

	codeReader, hasCode := cr.PeekReader("CODE")

	variables := make([]Variable, 0, (d.End-d.Start)/entrySize)
	occ := databin.NewOccurrenceMap(int((d.End - d.Start) / entrySize))

	curIndex := 0
	for r.Pos()+entrySize <= r.ChunkEnd() {
		strOff := r.StringRef()
		nameIdx, _, err := pool.Resolve(strOff)
		if err != nil {
			return nil, gmerr.Wrap(err, "VARI", r.Pos(), "name")
		}

		var b15 *B15Data
		if bytecodeVersion >= 15 {
			instanceType := r.S32()
			variableID := r.S32()
			if r.Err() != nil {
				return nil, gmerr.Wrap(r.Err(), "VARI", r.Pos(), "bytecode15 data")
			}
			b15 = &B15Data{InstanceType: int16(instanceType), VariableID: variableID}
		}

		occCount := r.S32()
		firstOccPos := r.S32()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "VARI", r.Pos(), "occurrence header")
		}
		if occCount < 0 {
			occCount = 0
		}

		var occurrences []int64
		var nameStringID int32
		if occCount > 0 {
			if !hasCode {
				return nil, gmerr.Wrap(gmerr.CorruptStructure, "VARI", r.Pos(), "occurrences present but CODE chunk missing")
			}
			occurrences, nameStringID, err = parseOccurrenceChain(codeReader, firstOccPos, int(occCount))
			if err != nil {
				return nil, gmerr.Atf(err, "VARI: variable #%d occurrence chain", curIndex)
			}
		} else {
			nameStringID = firstOccPos
		}

		for _, pos := range occurrences {
			if existing, ok := occ.Lookup(uint32(pos)); ok {
				return nil, gmerr.Atf(gmerr.CorruptStructure,
					"VARI: conflicting occurrence at CODE position %d: variable #%d vs #%d", pos, existing, curIndex)
			}
			occ.Put(uint32(pos), curIndex)
		}

		variables = append(variables, Variable{Name: nameIdx, B15: b15, NameStringID: nameStringID})
		curIndex++
	}

	return &Variables{Variables: variables, Scuffed: scuffed, occurrence: occ}, nil
}

// parseOccurrenceChain walks a variable's reference chain through the CODE
// chunk, starting at firstOccurrencePos (an absolute file position; the
// first link sits 4 bytes past it). Each slot's low 27 bits give the
// byte offset to the next link; the final slot's low 24 bits hold the
// variable's name-string-id instead (spec.md §3).
func parseOccurrenceChain(r *databin.Reader, firstOccurrencePos int32, count int) ([]int64, int32, error) {
	occurrences := make([]int64, 0, count)
	pos := int64(firstOccurrencePos) + 4
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

// Resolve looks up the variable index for an occurrence's absolute CODE
// byte position (spec.md §3; the 5-bit variable-type tag in the high bits
// of the on-wire slot is the code package's concern, not this lookup's).
func (v *Variables) Resolve(pos uint32) (idx int, err error) {
	idx, ok := v.occurrence.Lookup(pos)
	if !ok {
		return 0, gmerr.Wrap(gmerr.CorruptStructure, "CODE", int64(pos), "unknown variable occurrence")
	}
	return idx, nil
}

// Emit writes the VARI chunk. occurrences[i] must hold every CODE-absolute
// byte position variable i is referenced at, in the same order the code
// package wrote and back-patched them while emitting CODE (spec.md §2:
// CODE precedes VARI in canonical emit order, so by the time Emit runs
// every occurrence chain is already fully threaded in the CODE bytes).
func (v *Variables) Emit(w *databin.Writer, pool *strg.Pool, bytecodeVersion uint8, occurrences [][]int64) error {
	if v.YYC {
		return w.Err()
	}
	if bytecodeVersion >= 15 {
		s := v.Scuffed
		if s == nil {
			s = &Scuffed{}
		}
		w.U32(s.VarCount1)
		w.U32(s.VarCount2)
		w.U32(s.MaxLocalVarCount)
	}
	for i, variable := range v.Variables {
		w.Placeholder(pool.IdentityFor(w, variable.Name))
		if bytecodeVersion >= 15 {
			b15 := variable.B15
			if b15 == nil {
				b15 = &B15Data{}
			}
			w.S32(int32(b15.InstanceType))
			w.S32(b15.VariableID)
		}
		var occList []int64
		if i < len(occurrences) {
			occList = occurrences[i]
		}
		first := variable.NameStringID
		if len(occList) > 0 {
			first = int32(occList[0])
		}
		w.S32(int32(len(occList)))
		w.S32(first)
	}
	return w.Err()
}
