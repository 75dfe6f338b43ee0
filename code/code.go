// Package code implements the CODE chunk: the pointer list of named
// bytecode entries and the SingleType/DoubleType/Comparison/Goto/Pop/
// Push/Call/Break instruction codec, including the live threading of the
// variable and function occurrence chains that variable.Emit/function.Emit
// consume (spec.md §3, §4.6). This is the delegation target DESIGN.md's
// `variable`/`function` entry names: CODE is parsed after VARI/FUNC supply
// their occurrence maps, and emitted before them so their chains are fully
// threaded by the time variable.Emit/function.Emit run.
package code

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/function"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/variable"
	"github.com/modgm/gmdata/version"
)

// Opcode is a canonical (bytecode15+) instruction opcode byte.
type Opcode uint8

const (
	OpConv     Opcode = 0x07
	OpMul      Opcode = 0x08
	OpDiv      Opcode = 0x09
	OpRem      Opcode = 0x0A
	OpMod      Opcode = 0x0B
	OpAdd      Opcode = 0x0C
	OpSub      Opcode = 0x0D
	OpAnd      Opcode = 0x0E
	OpOr       Opcode = 0x0F
	OpXor      Opcode = 0x10
	OpNeg      Opcode = 0x11
	OpNot      Opcode = 0x12
	OpShl      Opcode = 0x13
	OpShr      Opcode = 0x14
	OpCmp      Opcode = 0x15
	OpPop      Opcode = 0x45
	OpDup      Opcode = 0x86
	OpRet      Opcode = 0x9C
	OpExit     Opcode = 0x9D
	OpPopz     Opcode = 0x9E
	OpB        Opcode = 0xB6
	OpBt       Opcode = 0xB7
	OpBf       Opcode = 0xB8
	OpPushEnv  Opcode = 0xBA
	OpPopEnv   Opcode = 0xBB
	OpPush     Opcode = 0xC0
	OpPushLoc  Opcode = 0xC1
	OpPushGlb  Opcode = 0xC2
	OpPushBltn Opcode = 0xC3
	OpPushI    Opcode = 0x84
	OpCall     Opcode = 0xD9
	OpCallV    Opcode = 0x99
	OpBreak    Opcode = 0xFF
)

// bytecode14ToCanonical converts a bytecode-14 on-wire opcode byte to its
// bytecode-15+ canonical form, ported one-for-one from
// GMOpcode::convert_bytecode14.
func bytecode14ToCanonical(raw uint8) uint8 {
	switch raw {
	case 0x03:
		return 0x07
	case 0x04:
		return 0x08
	case 0x05:
		return 0x09
	case 0x06:
		return 0x0A
	case 0x07:
		return 0x0B
	case 0x08:
		return 0x0C
	case 0x09:
		return 0x0D
	case 0x0A:
		return 0x0E
	case 0x0B:
		return 0x0F
	case 0x0C:
		return 0x10
	case 0x0D:
		return 0x11
	case 0x0E:
		return 0x12
	case 0x0F:
		return 0x13
	case 0x10:
		return 0x14
	case 0x11, 0x12, 0x13, 0x14, 0x16:
		return 0x15
	case 0xDA:
		return 0xD9
	case 0x41:
		return 0x45
	case 0x82:
		return 0x86
	case 0xB7:
		return 0xB6
	case 0xB8:
		return 0xB7
	case 0xB9:
		return 0xB8
	case 0x9D:
		return 0x9C
	case 0x9E:
		return 0x9D
	case 0x9F:
		return 0x9E
	case 0xBB:
		return 0xBA
	case 0xBC:
		return 0xBB
	default:
		return raw
	}
}

// DataType is the instruction operand data-type tag.
type DataType uint8

const (
	DataDouble DataType = iota
	DataFloat
	DataInt32
	DataInt64
	DataBoolean
	DataVariable
	DataString
	DataInstance
	DataDelete
	DataUndefined
	DataUnsignedInt
	DataInt16 DataType = 0x0f
)

// VariableType is the 5-bit tag stored in the high bits of an occurrence
// slot, identifying how the variable reference is scoped (spec.md §3).
type VariableType uint8

const (
	VarArray        VariableType = 0x00
	VarStackTop     VariableType = 0x80
	VarNormal       VariableType = 0xA0
	VarInstance     VariableType = 0xE0
	VarMultiPush    VariableType = 0x10
	VarMultiPushPop VariableType = 0x90
)

// ComparisonType is the GMS2.3+ Cmp instruction's comparison kind.
type ComparisonType uint8

const (
	CmpLT  ComparisonType = 1
	CmpLTE ComparisonType = 2
	CmpEQ  ComparisonType = 3
	CmpNEQ ComparisonType = 4
	CmpGTE ComparisonType = 5
	CmpGT  ComparisonType = 6
)

// InstanceKind distinguishes the negative well-known instance types from a
// positive, concrete game-object index (spec.md §3 "instance type").
type InstanceKind int

const (
	InstUndefined InstanceKind = iota
	InstSelf                   // optionally carries a concrete object index
	InstOther
	InstAll
	InstNone
	InstGlobal
	InstBuiltin
	InstLocal
	InstStackTop
	InstArgument
	InstStatic
)

// InstanceType is the resolved form of an instruction's i16 instance-type
// field.
type InstanceType struct {
	Kind   InstanceKind
	Object int32 // valid only when Kind == InstSelf and >= 0
}

func parseInstanceType(raw int16) (InstanceType, error) {
	if raw > 0 {
		return InstanceType{Kind: InstSelf, Object: int32(raw)}, nil
	}
	switch raw {
	case 0:
		return InstanceType{Kind: InstUndefined}, nil
	case -1:
		return InstanceType{Kind: InstSelf, Object: -1}, nil
	case -2:
		return InstanceType{Kind: InstOther}, nil
	case -3:
		return InstanceType{Kind: InstAll}, nil
	case -4:
		return InstanceType{Kind: InstNone}, nil
	case -5:
		return InstanceType{Kind: InstGlobal}, nil
	case -6:
		return InstanceType{Kind: InstBuiltin}, nil
	case -7:
		return InstanceType{Kind: InstLocal}, nil
	case -9:
		return InstanceType{Kind: InstStackTop}, nil
	case -15:
		return InstanceType{Kind: InstArgument}, nil
	case -16:
		return InstanceType{Kind: InstStatic}, nil
	default:
		return InstanceType{}, gmerr.Atf(gmerr.InvalidEnum, "invalid instance type %d", raw)
	}
}

func buildInstanceType(t InstanceType) int16 {
	switch t.Kind {
	case InstSelf:
		if t.Object < 0 {
			return -1
		}
		return int16(t.Object)
	case InstOther:
		return -2
	case InstAll:
		return -3
	case InstNone:
		return -4
	case InstGlobal:
		return -5
	case InstBuiltin:
		return -6
	case InstLocal:
		return -7
	case InstStackTop:
		return -8
	case InstArgument:
		return -15
	case InstStatic:
		return -16
	default:
		return 0
	}
}

// CodeVariable is an instruction's resolved variable operand: the index
// into the VARI table plus the 5-bit scoping tag it was tagged with on
// the wire.
type CodeVariable struct {
	Variable int
	Type     VariableType
}

// Value is a Push instruction's constant operand (exactly one field set,
// matching the data_type tag that selected it).
type Value struct {
	Double   *float64
	Float    *float32
	Int32    *int32
	Int64    *int64
	Boolean  *bool
	String   *int // string pool index
	Variable *CodeVariable
	Int16    *int16
}

type SingleTypeData struct {
	Extra    uint8
	DataType DataType
}

type DoubleTypeData struct {
	Type1, Type2 DataType
}

type ComparisonData struct {
	Comparison   ComparisonType
	Type1, Type2 DataType
}

type GotoData struct {
	JumpOffset      int32
	PopenvExitMagic bool
}

type PopData struct {
	InstanceType InstanceType
	Type1, Type2 DataType
	Destination  CodeVariable
}

type PushData struct {
	DataType DataType
	Value    Value
}

type CallData struct {
	ArgumentsCount uint8
	DataType       DataType
	Function       int // index into the FUNC table
}

type BreakData struct {
	Value       int16
	DataType    DataType
	IntArgument *int32
}

// Instruction is a single bytecode instruction. Exactly one of the typed
// payload fields is set, selected by Opcode, matching the original's
// GMInstructionData enum expressed as a Go tagged struct (the same shape
// texture.Page/variable.B15Data use for optional sub-records).
type Instruction struct {
	Opcode Opcode

	SingleType *SingleTypeData
	DoubleType *DoubleTypeData
	Comparison *ComparisonData
	Goto       *GotoData
	Pop        *PopData
	Push       *PushData
	Call       *CallData
	Break      *BreakData
}

// Bytecode15 is the per-entry header bytecode 15+ stores ahead of a code
// entry's instructions (spec.md §3; "nobody has fully reverse-engineered"
// applies equally here as it does to variable.Scuffed).
type Bytecode15 struct {
	LocalsCount     uint16
	ArgumentsCount  uint16
	WeirdLocalFlag  bool
	Offset          int64
}

// Entry is one named code block.
type Entry struct {
	Name         int // string pool index
	Instructions []Instruction
	Bytecode15   *Bytecode15
}

// Codes is the parsed CODE chunk.
type Codes struct {
	Entries []Entry
	Exists  bool
}

// Parse reads the CODE chunk's pointer list of entries, decoding every
// instruction and resolving variable/function operands through the
// already-built occurrence maps (spec.md §2: VARI/FUNC parse before CODE).
func Parse(cr *chunk.Reader, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8, detected version.Version) (*Codes, error) {
	if !cr.Has("CODE") {
		return &Codes{}, nil
	}
	r, err := cr.MustEnter("CODE")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "CODE", -1, "pointer list")
	}

	entries := make([]Entry, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		e, err := parseEntry(r, pool, vars, fns, bytecodeVersion, detected)
		if err != nil {
			return nil, gmerr.Atf(err, "CODE: entry #%d", i)
		}
		entries[i] = e
	}
	return &Codes{Entries: entries, Exists: true}, nil
}

func parseEntry(r *databin.Reader, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8, detected version.Version) (Entry, error) {
	strOff := r.StringRef()
	nameIdx, _, err := pool.Resolve(strOff)
	if err != nil {
		return Entry{}, gmerr.Wrap(err, "CODE", r.Pos(), "name")
	}
	codeLength := int64(r.U32())

	var endPos int64
	var b15 *Bytecode15
	if bytecodeVersion <= 14 {
		endPos = r.Pos() + codeLength
	} else {
		localsCount := r.U16()
		argsRaw := r.U16()
		argumentsCount := argsRaw & 0x7FFF
		weirdLocalFlag := argsRaw&0x8000 != 0
		bytecodeRelativeAddress := r.S32()
		bytecodeStart := int64(bytecodeRelativeAddress) + r.Pos() - 4
		offset := int64(r.U32())
		if r.Err() != nil {
			return Entry{}, gmerr.Wrap(r.Err(), "CODE", r.Pos(), "bytecode15 header")
		}
		b15 = &Bytecode15{LocalsCount: localsCount, ArgumentsCount: argumentsCount, WeirdLocalFlag: weirdLocalFlag, Offset: offset}
		endPos = bytecodeStart + codeLength
		r.SeekTo(bytecodeStart)
	}

	var instructions []Instruction
	for r.Pos() < endPos {
		instr, err := decodeInstruction(r, pool, vars, fns, bytecodeVersion)
		if err != nil {
			return Entry{}, gmerr.Atf(err, "instruction #%d", len(instructions))
		}
		instructions = append(instructions, instr)
	}
	if r.Err() != nil {
		return Entry{}, r.Err()
	}

	return Entry{Name: nameIdx, Instructions: instructions, Bytecode15: b15}, nil
}

func decodeInstruction(r *databin.Reader, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8) (Instruction, error) {
	b0 := r.U8()
	b1 := r.U8()
	b2 := r.U8()
	rawOpcode := r.U8()
	if r.Err() != nil {
		return Instruction{}, r.Err()
	}

	bc14 := bytecodeVersion <= 14
	preConversion := rawOpcode
	opcode := Opcode(rawOpcode)
	if bc14 {
		opcode = Opcode(bytecode14ToCanonical(rawOpcode))
	}

	switch opcode {
	case OpNeg, OpNot, OpDup, OpRet, OpExit, OpPopz, OpCallV:
		dt := DataType(b2 & 0xf)
		return Instruction{Opcode: opcode, SingleType: &SingleTypeData{Extra: b0, DataType: dt}}, nil

	case OpConv, OpMul, OpDiv, OpRem, OpMod, OpAdd, OpSub, OpAnd, OpOr, OpXor, OpShl, OpShr:
		t1 := DataType(b2 & 0xf)
		t2 := DataType(b2 >> 4)
		return Instruction{Opcode: opcode, DoubleType: &DoubleTypeData{Type1: t1, Type2: t2}}, nil

	case OpCmp:
		t1 := DataType(b2 & 0xf)
		t2 := DataType(b2 >> 4)
		var ct ComparisonType
		if bc14 {
			ct = ComparisonType(preConversion - 0x10)
		} else {
			ct = ComparisonType(b1)
		}
		return Instruction{Opcode: opcode, Comparison: &ComparisonData{Comparison: ct, Type1: t1, Type2: t2}}, nil

	case OpB, OpBt, OpBf, OpPushEnv, OpPopEnv:
		if bc14 {
			jumpOffset := int32(b0) | int32(b1)<<8 | int32(int8(b2))<<16
			return Instruction{Opcode: opcode, Goto: &GotoData{JumpOffset: jumpOffset, PopenvExitMagic: jumpOffset == -1048576}}, nil
		}
		v := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
		popenvExitMagic := v&0x800000 != 0
		jumpOffset := v & 0x003FFFFF
		if v&0x00C00000 != 0 {
			jumpOffset |= 0xFFC00000
		}
		return Instruction{Opcode: opcode, Goto: &GotoData{JumpOffset: int32(jumpOffset), PopenvExitMagic: popenvExitMagic}}, nil

	case OpPop:
		t1 := DataType(b2 & 0xf)
		t2 := DataType(b2 >> 4)
		instanceRaw := int16(b0) | int16(b1)<<8
		inst, err := parseInstanceType(instanceRaw)
		if err != nil {
			return Instruction{}, err
		}
		dest, err := readVariable(r, vars)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: opcode, Pop: &PopData{InstanceType: inst, Type1: t1, Type2: t2, Destination: dest}}, nil

	case OpPush, OpPushLoc, OpPushGlb, OpPushBltn, OpPushI:
		dt := DataType(b2)
		val16 := int16(b0) | int16(b1)<<8
		if bc14 {
			switch dt {
			case DataInt16:
				opcode = OpPushI
			case DataVariable:
				switch val16 {
				case -5:
					opcode = OpPushGlb
				case -6:
					opcode = OpPushBltn
				case -7:
					opcode = OpPushLoc
				}
			}
		}
		var value Value
		if dt == DataVariable {
			cv, err := readVariable(r, vars)
			if err != nil {
				return Instruction{}, err
			}
			value.Variable = &cv
		} else {
			var err error
			value, err = readCodeValue(r, pool, dt)
			if err != nil {
				return Instruction{}, err
			}
		}
		return Instruction{Opcode: opcode, Push: &PushData{DataType: dt, Value: value}}, nil

	case OpCall:
		dt := DataType(b2)
		pos := uint32(r.Pos())
		fnIdx, err := fns.Resolve(pos)
		if err != nil {
			return Instruction{}, gmerr.Atf(err, "Call instruction function occurrence")
		}
		r.Bytes(4) // skip next-occurrence offset / name-string-id slot
		return Instruction{Opcode: opcode, Call: &CallData{ArgumentsCount: b0, DataType: dt, Function: fnIdx}}, nil

	case OpBreak:
		val := int16(b0) | int16(b1)<<8
		dt := DataType(b2)
		var intArg *int32
		if dt == DataInt32 {
			v := r.S32()
			intArg = &v
		}
		return Instruction{Opcode: opcode, Break: &BreakData{Value: val, DataType: dt, IntArgument: intArg}}, nil

	default:
		return Instruction{}, gmerr.Atf(gmerr.InvalidEnum, "unknown opcode 0x%02x", uint8(opcode))
	}
}

func readVariable(r *databin.Reader, vars *variable.Variables) (CodeVariable, error) {
	pos := uint32(r.Pos())
	raw := r.S32()
	if r.Err() != nil {
		return CodeVariable{}, r.Err()
	}
	varType := VariableType(uint8((raw >> 24) & 0xF8))
	idx, err := vars.Resolve(pos)
	if err != nil {
		return CodeVariable{}, gmerr.Atf(err, "variable occurrence")
	}
	return CodeVariable{Variable: idx, Type: varType}, nil
}

func readCodeValue(r *databin.Reader, pool *strg.Pool, dt DataType) (Value, error) {
	switch dt {
	case DataDouble:
		v := r.F64()
		return Value{Double: &v}, r.Err()
	case DataFloat:
		v := r.F32()
		return Value{Float: &v}, r.Err()
	case DataInt32:
		v := r.S32()
		return Value{Int32: &v}, r.Err()
	case DataInt64:
		v := r.S64()
		return Value{Int64: &v}, r.Err()
	case DataBoolean:
		raw := r.U8()
		if r.Err() != nil {
			return Value{}, r.Err()
		}
		b := raw == 1
		return Value{Boolean: &b}, nil
	case DataString:
		off := r.StringRef()
		if r.Err() != nil {
			return Value{}, r.Err()
		}
		idx, _, err := pool.Resolve(off)
		if err != nil {
			return Value{}, gmerr.Wrap(err, "CODE", r.Pos(), "string value")
		}
		return Value{String: &idx}, nil
	case DataInt16:
		r.SeekTo(r.Pos() - 4)
		v := r.S16()
		r.SeekTo(r.Pos() + 2)
		return Value{Int16: &v}, r.Err()
	default:
		return Value{}, gmerr.Atf(gmerr.InvalidEnum, "unsupported push value data type %d", dt)
	}
}

// Emit writes the CODE chunk and, as a side effect of threading each
// variable/function reference's occurrence chain live (matching
// write_variable_occurrence/write_function_occurrence), returns the
// per-index occurrence position lists that variable.Emit/function.Emit
// consume.
func (c *Codes) Emit(w *databin.Writer, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8, target version.Version) (varOccurrences, fnOccurrences [][]int64, err error) {
	if !c.Exists {
		return nil, nil, w.Err()
	}

	varOccurrences = make([][]int64, len(vars.Variables))
	fnOccurrences = make([][]int64, len(fns.Functions))

	entryIDs := make([]databin.Identity, len(c.Entries))
	for i := range c.Entries {
		entryIDs[i] = w.NextIdentity()
	}

	plw := w.BeginPointerList(entryIDs)
	for i, entry := range c.Entries {
		plw.ResolveElement(i)
		if err := emitEntry(w, pool, vars, fns, bytecodeVersion, target, entry, varOccurrences, fnOccurrences); err != nil {
			return nil, nil, gmerr.Atf(err, "CODE: entry #%d", i)
		}
	}
	return varOccurrences, fnOccurrences, w.Err()
}

func emitEntry(w *databin.Writer, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8, target version.Version, entry Entry, varOccurrences, fnOccurrences [][]int64) error {
	w.Placeholder(pool.IdentityFor(w, entry.Name))

	if bytecodeVersion <= 14 {
		lenPos := w.Pos()
		w.U32(0)
		start := w.Pos()
		for _, instr := range entry.Instructions {
			if err := emitInstruction(w, pool, vars, fns, bytecodeVersion, instr, varOccurrences, fnOccurrences); err != nil {
				return err
			}
		}
		w.OverwriteU32(lenPos, uint32(w.Pos()-start))
		return w.Err()
	}

	b15 := entry.Bytecode15
	if b15 == nil {
		b15 = &Bytecode15{}
	}
	instrStart := w.Pos()
	for _, instr := range entry.Instructions {
		if err := emitInstruction(w, pool, vars, fns, bytecodeVersion, instr, varOccurrences, fnOccurrences); err != nil {
			return err
		}
	}
	instrEnd := w.Pos()
	w.U32(uint32(instrEnd - instrStart))
	w.U16(b15.LocalsCount)
	argsRaw := b15.ArgumentsCount
	if b15.WeirdLocalFlag {
		argsRaw |= 0x8000
	}
	w.U16(argsRaw)
	w.S32(int32(instrStart - w.Pos()))
	w.U32(uint32(b15.Offset))
	return w.Err()
}

func emitInstruction(w *databin.Writer, pool *strg.Pool, vars *variable.Variables, fns *function.Functions, bytecodeVersion uint8, instr Instruction, varOccurrences, fnOccurrences [][]int64) error {
	bc14 := bytecodeVersion <= 14
	pos := w.Pos()

	switch {
	case instr.SingleType != nil:
		d := instr.SingleType
		op := bytecode14SingleTypeOpcode(bc14, instr.Opcode)
		w.U8(d.Extra)
		w.U8(0)
		w.U8(uint8(d.DataType))
		w.U8(op)

	case instr.DoubleType != nil:
		d := instr.DoubleType
		op := bytecode14DoubleTypeOpcode(bc14, instr.Opcode)
		w.U8(0)
		w.U8(0)
		w.U8(uint8(d.Type1) | uint8(d.Type2)<<4)
		w.U8(op)

	case instr.Comparison != nil:
		d := instr.Comparison
		var op uint8
		if bc14 {
			op = uint8(d.Comparison) + 0x10
		} else {
			op = uint8(OpCmp)
		}
		w.U8(0)
		w.U8(uint8(d.Comparison))
		w.U8(uint8(d.Type1) | uint8(d.Type2)<<4)
		w.U8(op)

	case instr.Goto != nil:
		d := instr.Goto
		op := bytecode14GotoOpcode(bc14, instr.Opcode)
		if bc14 {
			writeI24(w, d.JumpOffset)
		} else if d.PopenvExitMagic {
			writeI24(w, 0xF00000)
		} else {
			writeI24(w, d.JumpOffset&0x7fffff)
		}
		w.U8(op)

	case instr.Pop != nil:
		d := instr.Pop
		op := uint8(OpPop)
		if bc14 {
			op = 0x41
		}
		w.S16(buildInstanceType(d.InstanceType))
		w.U8(uint8(d.Type1) | uint8(d.Type2)<<4)
		w.U8(op)
		if err := writeVariableOccurrence(w, vars, d.Destination, pos, varOccurrences); err != nil {
			return err
		}

	case instr.Push != nil:
		d := instr.Push
		op := bytecode14PushOpcode(bc14, instr.Opcode, d.DataType, d.Value)
		switch {
		case d.Value.Int16 != nil:
			w.S16(*d.Value.Int16)
		case d.Value.Variable != nil && !bc14:
			idx := d.Value.Variable.Variable
			b15 := vars.Variables[idx].B15
			if b15 == nil {
				b15 = &variable.B15Data{}
			}
			w.S16(int16(b15.InstanceType))
		default:
			w.S16(0)
		}
		w.U8(uint8(d.DataType))
		w.U8(op)
		if d.Value.Variable != nil {
			if err := writeVariableOccurrence(w, vars, *d.Value.Variable, pos, varOccurrences); err != nil {
				return err
			}
		} else {
			if err := writeCodeValue(w, pool, d.DataType, d.Value); err != nil {
				return err
			}
		}

	case instr.Call != nil:
		d := instr.Call
		w.U8(d.ArgumentsCount)
		w.U8(0)
		w.U8(uint8(d.DataType))
		w.U8(uint8(OpCall))
		if err := writeFunctionOccurrence(w, fns, d.Function, pos+4, fnOccurrences); err != nil {
			return err
		}

	case instr.Break != nil:
		d := instr.Break
		w.U8(uint8(d.Value))
		w.U8(uint8(d.Value >> 8))
		w.U8(uint8(d.DataType))
		w.U8(uint8(OpBreak))
		if d.DataType == DataInt32 && d.IntArgument != nil {
			w.S32(*d.IntArgument)
		}

	default:
		return gmerr.Atf(gmerr.CorruptStructure, "instruction with no payload set")
	}
	return w.Err()
}

func writeI24(w *databin.Writer, v int32) {
	w.U8(uint8(v))
	w.U8(uint8(v >> 8))
	w.U8(uint8(v >> 16))
}

// writeVariableOccurrence threads the occurrence chain live: if this
// variable was already referenced earlier in this CODE emission, the
// previous slot's "next occurrence" field is back-patched with the
// distance to this one; the slot being written now gets the variable's
// name-string-id, correct only if it turns out to be the last occurrence
// (otherwise a later call overwrites it), ported from
// write_variable_occurrence.
func writeVariableOccurrence(w *databin.Writer, vars *variable.Variables, cv CodeVariable, occurrencePos int64, varOccurrences [][]int64) error {
	if cv.Variable < 0 || cv.Variable >= len(vars.Variables) {
		return gmerr.Atf(gmerr.CorruptStructure, "variable index %d out of bounds", cv.Variable)
	}
	occurrences := varOccurrences[cv.Variable]
	if len(occurrences) > 0 {
		last := occurrences[len(occurrences)-1]
		offset := int32(occurrencePos-last) & 0x07FFFFFF
		full := offset | (int32(uint8(cv.Type)&0xF8) << 24)
		w.OverwriteU32(last+4, uint32(full))
	}
	nameStringID := vars.Variables[cv.Variable].NameStringID
	full := nameStringID&0x07FFFFFF | (int32(uint8(cv.Type)&0xF8) << 24)
	w.S32(full)
	varOccurrences[cv.Variable] = append(occurrences, occurrencePos)
	return w.Err()
}

// writeFunctionOccurrence mirrors writeVariableOccurrence for functions,
// ported from write_function_occurrence (no variable-type tag to encode).
func writeFunctionOccurrence(w *databin.Writer, fns *function.Functions, idx int, occurrencePos int64, fnOccurrences [][]int64) error {
	if idx < 0 || idx >= len(fns.Functions) {
		return gmerr.Atf(gmerr.CorruptStructure, "function index %d out of bounds", idx)
	}
	occurrences := fnOccurrences[idx]
	if len(occurrences) > 0 {
		last := occurrences[len(occurrences)-1]
		offset := int32(occurrencePos-last) & 0x07FFFFFF
		w.OverwriteU32(last, uint32(offset))
	}
	w.S32(fns.Functions[idx].NameStringID & 0x07FFFFFF)
	fnOccurrences[idx] = append(occurrences, occurrencePos)
	return w.Err()
}

func writeCodeValue(w *databin.Writer, pool *strg.Pool, dt DataType, v Value) error {
	switch dt {
	case DataDouble:
		if v.Double != nil {
			w.F64(*v.Double)
		}
	case DataFloat:
		if v.Float != nil {
			w.F32(*v.Float)
		}
	case DataInt32:
		if v.Int32 != nil {
			w.S32(*v.Int32)
		}
	case DataInt64:
		if v.Int64 != nil {
			w.S64(*v.Int64)
		}
	case DataBoolean:
		if v.Boolean != nil && *v.Boolean {
			w.U8(1)
		} else {
			w.U8(0)
		}
	case DataString:
		if v.String != nil {
			w.Placeholder(pool.IdentityFor(w, *v.String))
		}
	case DataInt16:
		// Already packed into the instruction's own operand bytes; nothing
		// further to write (mirrors readCodeValue's DataInt16 rewind).
	default:
		return gmerr.Atf(gmerr.InvalidEnum, "unsupported push value data type %d", dt)
	}
	return w.Err()
}

func bytecode14SingleTypeOpcode(bc14 bool, op Opcode) uint8 {
	if !bc14 {
		return uint8(op)
	}
	switch op {
	case OpNeg:
		return 0x0D
	case OpNot:
		return 0x0E
	case OpDup:
		return 0x82
	case OpRet:
		return 0x9D
	case OpExit:
		return 0x9E
	case OpPopz:
		return 0x9F
	default:
		return uint8(op)
	}
}

func bytecode14DoubleTypeOpcode(bc14 bool, op Opcode) uint8 {
	if !bc14 {
		return uint8(op)
	}
	switch op {
	case OpConv:
		return 0x03
	case OpMul:
		return 0x04
	case OpDiv:
		return 0x05
	case OpRem:
		return 0x06
	case OpMod:
		return 0x07
	case OpAdd:
		return 0x08
	case OpSub:
		return 0x09
	case OpAnd:
		return 0x0A
	case OpOr:
		return 0x0B
	case OpXor:
		return 0x0C
	case OpShl:
		return 0x0F
	case OpShr:
		return 0x10
	default:
		return uint8(op)
	}
}

func bytecode14GotoOpcode(bc14 bool, op Opcode) uint8 {
	if !bc14 {
		return uint8(op)
	}
	switch op {
	case OpB:
		return 0xB7
	case OpBt:
		return 0xB8
	case OpBf:
		return 0xB9
	case OpPushEnv:
		return 0xBB
	case OpPopEnv:
		return 0xBC
	default:
		return uint8(op)
	}
}

func bytecode14PushOpcode(bc14 bool, op Opcode, dt DataType, v Value) uint8 {
	if !bc14 {
		return uint8(op)
	}
	switch {
	case v.Int16 != nil:
		return uint8(OpPush)
	case v.Variable != nil:
		return uint8(OpPush)
	default:
		return uint8(op)
	}
}
