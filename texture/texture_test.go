package texture

import (
	"testing"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/version"
	"github.com/stretchr/testify/require"
)

func TestTexturesRoundTrip(t *testing.T) {
	textures := &Textures{
		Pages: []Page{
			{Scaled: 1, GeneratedMips: 0, TextureBlockSize: 0, Data: []byte("fake-png-bytes-page-0")},
			{Scaled: 1, GeneratedMips: 1, TextureBlockSize: 128, Data: []byte("fake-png-bytes-page-1-longer")},
		},
		Items: []Item{
			{SourceX: 0, SourceY: 0, SourceWidth: 32, SourceHeight: 32, TargetX: 0, TargetY: 0, TargetWidth: 32, TargetHeight: 32, BoundingWidth: 32, BoundingHeight: 32, Page: 0},
			{SourceX: 32, SourceY: 0, SourceWidth: 16, SourceHeight: 16, TargetX: 0, TargetY: 0, TargetWidth: 16, TargetHeight: 16, BoundingWidth: 16, BoundingHeight: 16, Page: 1},
		},
	}

	target := version.V(2022, 5, 0, 0)

	cw := chunk.NewWriter(chunk.WriterOptions{})
	tpagPos := cw.BeginChunk("TPAG")
	require.NoError(t, textures.EmitTPAG(cw.DB()))
	cw.EndChunk(tpagPos, false)
	txtrPos := cw.BeginChunk("TXTR")
	require.NoError(t, textures.EmitTXTR(cw.DB(), target))
	cw.EndChunk(txtrPos, true)
	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{})
	require.NoError(t, err)

	parsed, err := Parse(cr, target)
	require.NoError(t, err)

	require.Len(t, parsed.Pages, 2)
	require.Equal(t, textures.Pages[0].Data, parsed.Pages[0].Data)
	require.Equal(t, textures.Pages[1].Data, parsed.Pages[1].Data)
	require.Equal(t, textures.Pages[1].TextureBlockSize, parsed.Pages[1].TextureBlockSize)

	require.Equal(t, textures.Items, parsed.Items)
}

func TestTexturesOldVersionOmitsOptionalFields(t *testing.T) {
	textures := &Textures{
		Pages: []Page{{Scaled: 0, Data: []byte("ab")}},
		Items: []Item{{Page: 0}},
	}
	old := version.V(1, 0, 0, 0)

	cw := chunk.NewWriter(chunk.WriterOptions{})
	tpagPos := cw.BeginChunk("TPAG")
	require.NoError(t, textures.EmitTPAG(cw.DB()))
	cw.EndChunk(tpagPos, false)
	txtrPos := cw.BeginChunk("TXTR")
	require.NoError(t, textures.EmitTXTR(cw.DB(), old))
	cw.EndChunk(txtrPos, true)
	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{})
	require.NoError(t, err)

	parsed, err := Parse(cr, old)
	require.NoError(t, err)
	require.Equal(t, int32(0), parsed.Pages[0].GeneratedMips)
	require.Equal(t, uint32(0), parsed.Pages[0].TextureBlockSize)
	require.Equal(t, []byte("ab"), parsed.Pages[0].Data)
}

func TestResolveUnknownOffsetFails(t *testing.T) {
	textures := &Textures{
		Pages: []Page{{Data: []byte("x")}},
		Items: []Item{{Page: 0}},
	}
	target := version.V(2, 0, 0, 0)

	cw := chunk.NewWriter(chunk.WriterOptions{})
	tpagPos := cw.BeginChunk("TPAG")
	require.NoError(t, textures.EmitTPAG(cw.DB()))
	cw.EndChunk(tpagPos, false)
	txtrPos := cw.BeginChunk("TXTR")
	require.NoError(t, textures.EmitTXTR(cw.DB(), target))
	cw.EndChunk(txtrPos, true)
	buf, err := cw.Finish()
	require.NoError(t, err)

	cr, err := chunk.Open(buf, chunk.ReaderOptions{})
	require.NoError(t, err)

	parsed, err := Parse(cr, target)
	require.NoError(t, err)

	_, err = parsed.Resolve(0xFFFFFFF0)
	require.Error(t, err)
}
