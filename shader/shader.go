// Package shader implements the SHDR chunk: per-target shader source
// (GLSL ES/GLSL/HLSL9 as strings) plus opaque compiled blobs for
// HLSL11/PSSL/Cg-PSVita/Cg-PS3, whose boundaries are inferred from
// neighboring pointer fields rather than carrying explicit lengths.
package shader

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
)

// Type is a shader's target language/platform.
type Type uint32

const (
	GlslES  Type = 1
	GLSL    Type = 2
	HLSL9   Type = 3
	HLSL11  Type = 4
	PSSL    Type = 5
	CgPsvita Type = 6
	CgPs3   Type = 7
)

const shaderTypeSignBit = 0x80000000

// Shader is one SHDR chunk entry.
type Shader struct {
	Name         int
	Type         Type
	GLSLESVertex   int
	GLSLESFragment int
	GLSLVertex     int
	GLSLFragment   int
	HLSL9Vertex    int
	HLSL9Fragment  int

	VertexShaderAttributes []int // string refs

	// Version gates the PSSL/Cg-PSVita/Cg-PS3 console blobs below;
	// defaults to 2 and is only read/written when bytecode version > 13.
	Version int32

	HLSL11Vertex []byte
	HLSL11Pixel  []byte
	PSSLVertex   []byte
	PSSLPixel    []byte
	CgPsvitaVertex []byte
	CgPsvitaPixel  []byte
	CgPs3Vertex    []byte
	CgPs3Pixel     []byte
}

// Shaders is the parsed SHDR chunk.
type Shaders struct {
	Exists bool
	List   []*Shader

	identities []databin.Identity
}

// Parse reads the SHDR chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool, bytecodeVersion uint8) (*Shaders, error) {
	d, ok := cr.Descriptor("SHDR")
	if !ok {
		return &Shaders{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("SHDR"); err != nil {
			return nil, err
		}
		return &Shaders{Exists: true}, nil
	}

	r, err := cr.MustEnter("SHDR")
	if err != nil {
		return nil, err
	}

	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SHDR", -1, "count")
	}

	locations := make([]int64, 0, count+1)
	for i := 0; i < count; i++ {
		ptr := r.U32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if ptr != 0 {
			locations = append(locations, int64(ptr))
		}
	}
	locations = append(locations, d.End)

	list := make([]*Shader, 0, count)
	for i := 0; i+1 < len(locations); i++ {
		r.SeekTo(locations[i])
		s, err := parseShader(r, pool, locations[i+1], bytecodeVersion)
		if err != nil {
			return nil, gmerr.Atf(err, "SHDR: shader #%d", i)
		}
		list = append(list, s)
	}

	return &Shaders{Exists: true, List: list}, nil
}

func resolveString(r *databin.Reader, pool *strg.Pool) (int, error) {
	off := r.StringRef()
	idx, _, err := pool.Resolve(off)
	return idx, err
}

func parseShader(r *databin.Reader, pool *strg.Pool, entryEnd int64, bytecodeVersion uint8) (*Shader, error) {
	s := &Shader{}

	name, err := resolveString(r, pool)
	if err != nil {
		return nil, gmerr.Wrap(err, "SHDR", r.Pos(), "name")
	}
	s.Name = name

	typeRaw := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	s.Type = Type(typeRaw &^ shaderTypeSignBit)

	for _, dst := range []*int{&s.GLSLESVertex, &s.GLSLESFragment, &s.GLSLVertex, &s.GLSLFragment, &s.HLSL9Vertex, &s.HLSL9Fragment} {
		idx, err := resolveString(r, pool)
		if err != nil {
			return nil, gmerr.Wrap(err, "SHDR", r.Pos(), "shader source string")
		}
		*dst = idx
	}

	hlsl11VertexPtr := r.U32()
	hlsl11PixelPtr := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	attrCount := r.ReadSimpleListCount(4, databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	s.VertexShaderAttributes = make([]int, attrCount)
	for i := range s.VertexShaderAttributes {
		idx, err := resolveString(r, pool)
		if err != nil {
			return nil, gmerr.Wrap(err, "SHDR", r.Pos(), "vertex shader attribute")
		}
		s.VertexShaderAttributes[i] = idx
	}

	s.Version = 2
	var psslVertexPtr, psslVertexLen, psslPixelPtr, psslPixelLen uint32
	var cgPsvitaVertexPtr, cgPsvitaVertexLen, cgPsvitaPixelPtr, cgPsvitaPixelLen uint32
	var cgPs3VertexPtr, cgPs3VertexLen, cgPs3PixelPtr, cgPs3PixelLen uint32

	if bytecodeVersion > 13 {
		s.Version = r.S32()
		psslVertexPtr = r.U32()
		psslVertexLen = r.U32()
		psslPixelPtr = r.U32()
		psslPixelLen = r.U32()
		cgPsvitaVertexPtr = r.U32()
		cgPsvitaVertexLen = r.U32()
		cgPsvitaPixelPtr = r.U32()
		cgPsvitaPixelLen = r.U32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if s.Version >= 2 {
			cgPs3VertexPtr = r.U32()
			cgPs3VertexLen = r.U32()
			cgPs3PixelPtr = r.U32()
			cgPs3PixelLen = r.U32()
			if r.Err() != nil {
				return nil, r.Err()
			}
		}
	}

	var err2 error
	s.HLSL11Vertex, err2 = readShaderData(r, entryEnd, 8, hlsl11VertexPtr, 0, hlsl11PixelPtr)
	if err2 != nil {
		return nil, err2
	}
	s.HLSL11Pixel, err2 = readShaderData(r, entryEnd, 8, hlsl11PixelPtr, 0, psslVertexPtr)
	if err2 != nil {
		return nil, err2
	}
	s.PSSLVertex, err2 = readShaderData(r, entryEnd, 8, psslVertexPtr, psslVertexLen, psslPixelPtr)
	if err2 != nil {
		return nil, err2
	}
	s.PSSLPixel, err2 = readShaderData(r, entryEnd, 8, psslPixelPtr, psslPixelLen, cgPsvitaVertexPtr)
	if err2 != nil {
		return nil, err2
	}
	s.CgPsvitaVertex, err2 = readShaderData(r, entryEnd, 8, cgPsvitaVertexPtr, cgPsvitaVertexLen, cgPsvitaPixelPtr)
	if err2 != nil {
		return nil, err2
	}
	s.CgPsvitaPixel, err2 = readShaderData(r, entryEnd, 8, cgPsvitaPixelPtr, cgPsvitaPixelLen, cgPs3VertexPtr)
	if err2 != nil {
		return nil, err2
	}
	s.CgPs3Vertex, err2 = readShaderData(r, entryEnd, 16, cgPs3VertexPtr, cgPs3VertexLen, cgPs3PixelPtr)
	if err2 != nil {
		return nil, err2
	}
	s.CgPs3Pixel, err2 = readShaderData(r, entryEnd, 16, cgPs3PixelPtr, cgPs3PixelLen, 0)
	if err2 != nil {
		return nil, err2
	}

	return s, nil
}

// readShaderData reads a single opaque blob whose boundary is inferred
// from the next field's own pointer (or the shader entry's end, when this
// is the last blob present): GameMaker never writes an explicit length for
// most of these, so the codec has to derive it the same way the original
// reader does.
func readShaderData(r *databin.Reader, entryEnd int64, pad int64, thisPtr, expectedLen uint32, nextPtr uint32) ([]byte, error) {
	if thisPtr == 0 {
		return nil, nil
	}
	r.SeekTo(int64(thisPtr))
	r.Align(pad)
	if r.Err() != nil {
		return nil, r.Err()
	}

	next := entryEnd
	isLast := nextPtr == 0
	if !isLast {
		next = int64(nextPtr)
	}
	actualLength := next - r.Pos()

	if expectedLen == 0 {
		data := r.Bytes(int(actualLength))
		if r.Err() != nil {
			return nil, r.Err()
		}
		return data, nil
	}

	if int64(expectedLen) > actualLength {
		return nil, gmerr.Atf(gmerr.CorruptStructure, "shader data: instructed to read less data than expected")
	}
	if int64(expectedLen) < actualLength {
		pos := r.Pos()
		switch {
		case isLast && (pos+actualLength)%16 == 0:
		case !isLast && (pos+actualLength)%8 == 0:
		case isLast:
			return nil, gmerr.Atf(gmerr.CorruptStructure, "shader data: more data than expected, incorrectly padded as the last entry")
		default:
			return nil, gmerr.Atf(gmerr.CorruptStructure, "shader data: instructed to read more data than expected")
		}
	}

	data := r.Bytes(int(expectedLen))
	if r.Err() != nil {
		return nil, r.Err()
	}
	return data, nil
}

// Emit writes the SHDR chunk back to w.
func (ss *Shaders) Emit(w *databin.Writer, pool *strg.Pool, bytecodeVersion uint8) error {
	if !ss.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ss.List))
	for i := range ss.List {
		ids[i] = w.NextIdentity()
	}
	ss.identities = ids

	w.WriteListCount(len(ss.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, s := range ss.List {
		w.Resolve(ids[i])
		if err := emitShader(w, pool, bytecodeVersion, s); err != nil {
			return gmerr.Atf(err, "shader #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th shader, for chunks that
// reference a shader by resource index.
func (ss *Shaders) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ss.identities) {
		return 0
	}
	return ss.identities[i]
}

func writeBlobPlaceholder(w *databin.Writer, data []byte) databin.Identity {
	if data == nil {
		w.U32(0)
		return 0
	}
	id := w.NextIdentity()
	w.Placeholder(id)
	return id
}

func emitShader(w *databin.Writer, pool *strg.Pool, bytecodeVersion uint8, s *Shader) error {
	w.Placeholder(pool.IdentityFor(w, s.Name))
	w.U32(uint32(s.Type) | shaderTypeSignBit)

	for _, idx := range []int{s.GLSLESVertex, s.GLSLESFragment, s.GLSLVertex, s.GLSLFragment, s.HLSL9Vertex, s.HLSL9Fragment} {
		w.Placeholder(pool.IdentityFor(w, idx))
	}

	hlsl11VertexID := writeBlobPlaceholder(w, s.HLSL11Vertex)
	hlsl11PixelID := writeBlobPlaceholder(w, s.HLSL11Pixel)

	w.WriteListCount(len(s.VertexShaderAttributes))
	for _, idx := range s.VertexShaderAttributes {
		w.Placeholder(pool.IdentityFor(w, idx))
	}

	var psslVertexID, psslPixelID, cgPsvitaVertexID, cgPsvitaPixelID, cgPs3VertexID, cgPs3PixelID databin.Identity
	if bytecodeVersion > 13 {
		w.S32(s.Version)
		psslVertexID = writeBlobPlaceholder(w, s.PSSLVertex)
		w.U32(uint32(len(s.PSSLVertex)))
		psslPixelID = writeBlobPlaceholder(w, s.PSSLPixel)
		w.U32(uint32(len(s.PSSLPixel)))
		cgPsvitaVertexID = writeBlobPlaceholder(w, s.CgPsvitaVertex)
		w.U32(uint32(len(s.CgPsvitaVertex)))
		cgPsvitaPixelID = writeBlobPlaceholder(w, s.CgPsvitaPixel)
		w.U32(uint32(len(s.CgPsvitaPixel)))
		if s.Version >= 2 {
			cgPs3VertexID = writeBlobPlaceholder(w, s.CgPs3Vertex)
			w.U32(uint32(len(s.CgPs3Vertex)))
			cgPs3PixelID = writeBlobPlaceholder(w, s.CgPs3Pixel)
			w.U32(uint32(len(s.CgPs3Pixel)))
		}
	}

	writeShaderData(w, 8, hlsl11VertexID, s.HLSL11Vertex)
	writeShaderData(w, 8, hlsl11PixelID, s.HLSL11Pixel)
	writeShaderData(w, 8, psslVertexID, s.PSSLVertex)
	writeShaderData(w, 8, psslPixelID, s.PSSLPixel)
	writeShaderData(w, 8, cgPsvitaVertexID, s.CgPsvitaVertex)
	writeShaderData(w, 8, cgPsvitaPixelID, s.CgPsvitaPixel)
	writeShaderData(w, 16, cgPs3VertexID, s.CgPs3Vertex)
	writeShaderData(w, 16, cgPs3PixelID, s.CgPs3Pixel)

	return w.Err()
}

func writeShaderData(w *databin.Writer, pad int64, id databin.Identity, data []byte) {
	if data == nil {
		return
	}
	w.Align(pad)
	w.Resolve(id)
	w.RawBytes(data)
}
