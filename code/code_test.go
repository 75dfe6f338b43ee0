package code

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/function"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/variable"
	"github.com/modgm/gmdata/version"
	"github.com/stretchr/testify/require"
)

func int16p(v int16) *int16 { return &v }

func TestCodeRoundTripBytecode16(t *testing.T) {
	pool := &strg.Pool{Strings: []string{"gml_Script_foo"}}
	vars := &variable.Variables{}
	fns := &function.Functions{}
	target := version.V(2022, 1, 0, 0)

	entry := Entry{
		Name: 0,
		Instructions: []Instruction{
			{Opcode: OpPush, Push: &PushData{DataType: DataInt16, Value: Value{Int16: int16p(42)}}},
			{Opcode: OpRet, SingleType: &SingleTypeData{DataType: DataInt32}},
		},
		Bytecode15: &Bytecode15{LocalsCount: 1, ArgumentsCount: 0},
	}
	codes := &Codes{Exists: true, Entries: []Entry{entry}}

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)

	codePos := cw.BeginChunk("CODE")
	_, _, err := codes.Emit(cw.DB(), pool, vars, fns, 16, target)
	require.NoError(t, err)
	cw.EndChunk(codePos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	parsed, err := Parse(cr, parsedPool, vars, fns, 16, target)
	require.NoError(t, err)
	require.True(t, parsed.Exists)
	require.Len(t, parsed.Entries, 1)

	got := parsed.Entries[0]
	require.Equal(t, 0, got.Name)
	require.Len(t, got.Instructions, 2)

	require.Equal(t, OpPush, got.Instructions[0].Opcode)
	require.NotNil(t, got.Instructions[0].Push)
	require.Equal(t, DataInt16, got.Instructions[0].Push.DataType)
	require.NotNil(t, got.Instructions[0].Push.Value.Int16)
	require.Equal(t, int16(42), *got.Instructions[0].Push.Value.Int16)

	require.Equal(t, OpRet, got.Instructions[1].Opcode)
	require.NotNil(t, got.Instructions[1].SingleType)
	require.Equal(t, DataInt32, got.Instructions[1].SingleType.DataType)

	require.NotNil(t, got.Bytecode15)
	require.Equal(t, uint16(1), got.Bytecode15.LocalsCount)
}

func TestCodeAbsentChunk(t *testing.T) {
	pool := &strg.Pool{}
	vars := &variable.Variables{}
	fns := &function.Functions{}

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	codes, err := Parse(cr, parsedPool, vars, fns, 16, version.V(2022, 1, 0, 0))
	require.NoError(t, err)
	require.False(t, codes.Exists)
	require.Empty(t, codes.Entries)
}

func TestBytecode14OpcodeConversion(t *testing.T) {
	require.Equal(t, uint8(OpConv), bytecode14ToCanonical(0x03))
	require.Equal(t, uint8(OpMul), bytecode14ToCanonical(0x04))
}
