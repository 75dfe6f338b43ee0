package versiondetect

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/version"
	"github.com/stretchr/testify/require"
)

func buildForm(t *testing.T, chunks map[string][]byte, order []string) []byte {
	t.Helper()
	cw := chunk.NewWriter(chunk.WriterOptions{})
	for i, name := range order {
		pos := cw.BeginChunk(name)
		cw.DB().RawBytes(chunks[name])
		cw.EndChunk(pos, i == len(order)-1)
	}
	buf, err := cw.Finish()
	require.NoError(t, err)
	return buf
}

func TestExistenceSignalUpgradesVersion(t *testing.T) {
	buf := buildForm(t, map[string][]byte{
		"TGIN": {1, 0, 0, 0},
	}, []string{"TGIN"})

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)

	got, err := Detect(cr, version.V(2, 0, 0, 0), 16, nil)
	require.NoError(t, err)
	require.True(t, got.AtLeast(version.Version{Major: 2, Minor: 2, Release: 1}))
}

func TestNoSignalsLeavesVersionUnchanged(t *testing.T) {
	buf := buildForm(t, map[string][]byte{
		"OPTN": {0, 0, 0, 0},
	}, []string{"OPTN"})

	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)

	self := version.V(2, 0, 0, 0)
	got, err := Detect(cr, self, 16, nil)
	require.NoError(t, err)
	require.Equal(t, self, got)
}

func TestTXTR206StructuralProbe(t *testing.T) {
	// One texture page whose pointer leads to a nonzero "texture data"
	// pointer at +8, matching the 2.0.6 shape cv_txtr_2_0_6 detects.
	txtr := make([]byte, 64)
	le := func(b []byte, off int, v uint32) {
		b[off] = byte(v)
		b[off+1] = byte(v >> 8)
		b[off+2] = byte(v >> 16)
		b[off+3] = byte(v >> 24)
	}
	le(txtr, 0, 1)  // texture_count
	le(txtr, 4, 8+8+16) // absolute pointer to the (single) texture entry: FORM header + TXTR header + 16
	le(txtr, 16+8, 0xAAAA) // nonzero texture-data pointer at entry+8

	buf := buildForm(t, map[string][]byte{"TXTR": txtr}, []string{"TXTR"})
	cr, err := chunk.Open(buf, chunk.ReaderOptions{AllowUnreadChunks: true})
	require.NoError(t, err)

	got, err := Detect(cr, version.V(2, 0, 0, 0), 16, nil)
	require.NoError(t, err)
	require.True(t, got.AtLeast(version.Version{Major: 2, Minor: 0, Release: 6}))
}
