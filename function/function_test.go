package function

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
	"github.com/stretchr/testify/require"
)

func TestFunctionsSingleOccurrenceChain(t *testing.T) {
	pool := &strg.Pool{Strings: []string{"my_func"}}

	// CODE bytes: one occurrence slot at the chunk start (GMS >= 2.3 uses a
	// zero first-extra-offset), holding the name string id (0x7 << ...).
	codeBytes := make([]byte, 16)
	le := func(b []byte, off int, v uint32) {
		b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	le(codeBytes, 0, 0x77)

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)

	codeLenPos := cw.BeginChunk("CODE")
	codeStart := cw.DB().Pos()
	cw.DB().RawBytes(codeBytes)
	cw.EndChunk(codeLenPos, false)

	funcPos := cw.BeginChunk("FUNC")
	w := cw.DB()
	w.WriteListCount(1) // bytecode > 14: explicit function count
	w.Placeholder(pool.IdentityFor(w, 0))
	w.WriteListCount(1)             // occurrence count
	w.S32(int32(codeStart))         // first_occurrence_pos, absolute, version >= 2.3 => extra offset 0
	w.WriteListCount(0)             // code-locals count (bytecode > 14, before 2024.8)
	cw.EndChunk(funcPos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	fns, err := Parse(cr, parsedPool, 16, version.V(2023, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, fns.Functions, 1)
	require.Equal(t, int32(0x77), fns.Functions[0].NameStringID)

	idx, err := fns.Resolve(uint32(codeStart))
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestFunctionsBytecode14ImplicitCount(t *testing.T) {
	pool := &strg.Pool{Strings: []string{"f"}}

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)

	funcPos := cw.BeginChunk("FUNC")
	w := cw.DB()
	w.Placeholder(pool.IdentityFor(w, 0))
	w.WriteListCount(0) // zero occurrences
	w.S32(0x55)         // name_string_id fallback
	cw.EndChunk(funcPos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)

	fns, err := Parse(cr, parsedPool, 14, version.V(2, 0, 0, 0))
	require.NoError(t, err)
	require.Len(t, fns.Functions, 1)
	require.Equal(t, int32(0x55), fns.Functions[0].NameStringID)
}
