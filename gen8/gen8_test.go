package gen8

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
	"github.com/stretchr/testify/require"
)

func TestGen8RoundTrip(t *testing.T) {
	pool := &strg.Pool{Strings: []string{"mygame", "Config1", "mygame", "My Game"}}

	cw := chunk.NewWriter(chunk.WriterOptions{})
	strgPos := cw.BeginChunk("STRG")
	require.NoError(t, pool.Emit(cw.DB()))
	cw.EndChunk(strgPos, false)

	gen8Pos := cw.BeginChunk("GEN8")
	info := &Info{
		BytecodeVersion:     17,
		FilenameStr:         0,
		ConfigStr:           1,
		NameStr:             2,
		DisplayNameStr:      3,
		SelfReportedVersion: version.V(2, 0, 0, 0),
		Windows:             [2]uint32{800, 600},
		RoomOrder:           []int32{0, 2, 1},
	}
	Emit(cw.DB(), info, pool)
	cw.EndChunk(gen8Pos, true)

	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{})
	require.NoError(t, err)

	parsedPool, err := strg.Parse(cr)
	require.NoError(t, err)
	require.Equal(t, pool.Strings, parsedPool.Strings)

	parsed, err := Parse(cr, parsedPool)
	require.NoError(t, err)
	require.Equal(t, info.BytecodeVersion, parsed.BytecodeVersion)
	require.Equal(t, info.SelfReportedVersion, parsed.SelfReportedVersion)
	require.Equal(t, info.Windows, parsed.Windows)
	require.Equal(t, info.RoomOrder, parsed.RoomOrder)
	require.Equal(t, 0, parsed.FilenameStr)
	require.Equal(t, 3, parsed.DisplayNameStr)
}
