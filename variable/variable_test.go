package variable

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/strg"
	"github.com/stretchr/testify/require"
)

func TestVariablesSingleOccurrenceChain(t *testing.T) {
	pool := &strg.Pool{Strings: []string{"x"}}

	// CODE bytes: one occurrence slot 4 bytes past the chunk start, holding
	// the name string id (0x2A) in its low 24 bits since it's the chain's
	// only (and thus last) link.
	codeBytes := make([]byte, 16)
	le := func(b []byte, off int, v uint32) {
		b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	le(codeBytes, 4, 0x2A)

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)

	codeLenPos := cw.BeginChunk("CODE")
	codeStart := cw.DB().Pos()
	cw.DB().RawBytes(codeBytes)
	cw.EndChunk(codeLenPos, false)

	variPos := cw.BeginChunk("VARI")
	w := cw.DB()
	w.U32(0) // scuffed var_count1
	w.U32(0) // scuffed var_count2
	w.U32(0) // scuffed max_local_var_count
	w.Placeholder(pool.IdentityFor(w, 0)) // name
	w.S32(0)                              // bytecode15 instance type
	w.S32(0)                              // bytecode15 variable id
	w.S32(1)                              // occurrence count
	w.S32(int32(codeStart))               // first_occurrence_pos (absolute; chain slot sits at +4)
	cw.EndChunk(variPos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	vars, err := Parse(cr, parsedPool, 16)
	require.NoError(t, err)
	require.Len(t, vars.Variables, 1)
	require.Equal(t, int32(0x2A), vars.Variables[0].NameStringID)

	idx, err := vars.Resolve(uint32(codeStart) + 4)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestVariablesEmptyChunkIsYYC(t *testing.T) {
	pool := &strg.Pool{Strings: []string{}}
	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)
	variPos := cw.BeginChunk("VARI")
	cw.EndChunk(variPos, true)
	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	vars, err := Parse(cr, parsedPool, 16)
	require.NoError(t, err)
	require.True(t, vars.YYC)
	require.Empty(t, vars.Variables)
}
