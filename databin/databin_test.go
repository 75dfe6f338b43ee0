package databin

import (
	"testing"

	"github.com/modgm/gmdata/gmerr"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U8(0x12)
	w.U16(0xBEEF)
	w.U32(0xDEADBEEF)
	w.S32(-5)
	w.F32(3.5)
	w.Bool32(true)
	require.NoError(t, w.Finish())

	r := NewReader(w.Bytes())
	require.Equal(t, uint8(0x12), r.U8())
	require.Equal(t, uint16(0xBEEF), r.U16())
	require.Equal(t, uint32(0xDEADBEEF), r.U32())
	require.Equal(t, int32(-5), r.S32())
	require.Equal(t, float32(3.5), r.F32())
	require.Equal(t, true, r.Bool32())
	require.NoError(t, r.Err())
}

func TestBool32RejectsNonBinary(t *testing.T) {
	w := NewWriter()
	w.U32(7)
	require.NoError(t, w.Finish())

	r := NewReader(w.Bytes())
	r.Bool32()
	require.Error(t, r.Err())
}

func TestOutOfBoundsRead(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	r.SetChunk("TEST", 0, 3, true)
	r.U32()
	require.ErrorIs(t, r.Err(), gmerr.OutOfBounds)
}

func TestAlignFailsOnNonZeroPadding(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 0})
	r.SetChunk("TEST", 0, 4, true)
	r.U8()
	r.Align(4)
	require.Error(t, r.Err())
}

func TestPointerPlaceholderResolution(t *testing.T) {
	w := NewWriter()
	id := w.NextIdentity()
	w.Placeholder(id) // pointer written before the target
	w.U32(0xAAAAAAAA) // some unrelated payload
	w.Resolve(id)
	w.U32(0x11223344) // the target's own payload

	require.NoError(t, w.Finish())

	r := NewReader(w.Bytes())
	ptr := r.U32()
	require.Equal(t, uint32(8), ptr) // position where id was resolved
	r.SetChunk("TEST", 0, int64(len(w.Bytes())), true)
	r.SeekTo(int64(ptr))
	require.Equal(t, uint32(0x11223344), r.U32())
}

func TestUnresolvedPointerFails(t *testing.T) {
	w := NewWriter()
	id := w.NextIdentity()
	w.Placeholder(id)
	require.ErrorIs(t, w.Finish(), gmerr.UnresolvedPointer)
}

func TestNullPointerIsLiteralZero(t *testing.T) {
	w := NewWriter()
	w.Placeholder(0)
	require.NoError(t, w.Finish())
	require.Equal(t, []byte{0, 0, 0, 0}, w.Bytes())
}

func TestSimpleListFailsafe(t *testing.T) {
	w := NewWriter()
	w.U32(1 << 24) // an absurd count
	require.NoError(t, w.Finish())

	r := NewReader(w.Bytes())
	r.SetChunk("TEST", 0, int64(len(w.Bytes())), true)
	r.ReadSimpleListCount(4, MaxSimpleListBytes)
	require.Error(t, r.Err())
}
