package chunk

import (
	"testing"

	"github.com/modgm/gmdata/databin"
	"github.com/stretchr/testify/require"
)

func buildMinimalForm(t *testing.T) []byte {
	t.Helper()
	w := NewWriter(WriterOptions{Padding: Padding16})

	lenPos := w.BeginChunk("ALPH")
	w.DB().U32(0x11223344)
	w.EndChunk(lenPos, false)

	lenPos = w.BeginChunk("BETA")
	w.DB().U32(0xAABBCCDD)
	w.EndChunk(lenPos, true)

	buf, err := w.Finish()
	require.NoError(t, err)
	return buf
}

func TestFormDispatchAndOrder(t *testing.T) {
	buf := buildMinimalForm(t)

	r, err := Open(buf, ReaderOptions{})
	require.NoError(t, err)
	require.True(t, r.Has("ALPH"))
	require.True(t, r.Has("BETA"))
	require.Equal(t, []string{"ALPH", "BETA"}, r.Names())

	a, ok := r.Enter("ALPH")
	require.True(t, ok)
	require.Equal(t, uint32(0x11223344), a.U32())

	b, ok := r.Enter("BETA")
	require.True(t, ok)
	require.Equal(t, uint32(0xAABBCCDD), b.U32())

	require.NoError(t, r.Finish())
}

func TestUnreadChunksFailsUnlessAllowed(t *testing.T) {
	buf := buildMinimalForm(t)

	r, err := Open(buf, ReaderOptions{})
	require.NoError(t, err)
	_, _ = r.Enter("ALPH")
	// BETA never entered.
	require.Error(t, r.Finish())

	r2, err := Open(buf, ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)
	_, _ = r2.Enter("ALPH")
	require.NoError(t, r2.Finish())
}

func TestLastChunkHasNoPadding(t *testing.T) {
	buf := buildMinimalForm(t)
	r, err := Open(buf, ReaderOptions{})
	require.NoError(t, err)

	dAlpha, _ := r.Descriptor("ALPH")
	dBeta, _ := r.Descriptor("BETA")
	require.False(t, dAlpha.IsLast)
	require.True(t, dBeta.IsLast)
	require.Equal(t, int64(len(buf)), dBeta.End)
}

func TestMagicMismatchFails(t *testing.T) {
	bad := []byte("NOPE\x00\x00\x00\x00")
	_, err := Open(bad, ReaderOptions{})
	require.Error(t, err)
}

func TestBigEndianRoundTrip(t *testing.T) {
	w := NewWriter(WriterOptions{Endianness: databin.BigEndian, Padding: Padding1})
	lenPos := w.BeginChunk("ALPH")
	w.DB().U32(0x01020304)
	w.EndChunk(lenPos, true)
	buf, err := w.Finish()
	require.NoError(t, err)

	r, err := Open(buf, ReaderOptions{Endianness: databin.BigEndian})
	require.NoError(t, err)
	a, ok := r.Enter("ALPH")
	require.True(t, ok)
	require.Equal(t, uint32(0x01020304), a.U32())
}
