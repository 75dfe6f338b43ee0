package versiondetect

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/version"
)

// bz2QOIMagic is the 4-byte wrapper header GameMaker writes before a
// bz2+qoi-compressed texture page blob (spec.md §4.8, TXTR 2022.5 probe).
var bz2QOIMagic = [4]byte{'2', 'z', 'o', 'q'}

// roomLayerType mirrors the on-disk room-layer-type tag (spec.md §4.8's ROOM
// probes inspect specific layer kinds by this tag).
type roomLayerType uint32

const (
	roomLayerPath       roomLayerType = 0
	roomLayerBackground roomLayerType = 1
	roomLayerInstances  roomLayerType = 2
	roomLayerAssets     roomLayerType = 3
	roomLayerTiles      roomLayerType = 4
	roomLayerEffect     roomLayerType = 6
	roomLayerPath2      roomLayerType = 7
)

func checkEXTN2022_6(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 6, 0, 0)
	extCount := r.S32()
	if extCount < 1 {
		return version.Version{}, false, nil
	}
	firstExtPtr := int64(r.U32())
	firstExtEndPtr := chunkEnd
	if extCount >= 2 {
		firstExtEndPtr = int64(r.U32())
	}

	r.SeekTo(firstExtPtr + 12)
	newPointer1 := int64(r.U32())
	newPointer2 := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if newPointer1 != r.Pos() {
		return version.Version{}, false, nil
	}
	if newPointer2 <= r.Pos() || newPointer2 >= chunkEnd {
		return version.Version{}, false, nil
	}

	r.SeekTo(newPointer2)
	optionCount := int64(r.U32())
	if optionCount > 0 {
		newOffsetCheck := r.Pos() + 4*(optionCount-1)
		if newOffsetCheck >= chunkEnd {
			return version.Version{}, false, nil
		}
		r.SeekTo(newOffsetCheck)
		newOffsetCheck = int64(r.U32()) + 12
		if newOffsetCheck >= chunkEnd {
			return version.Version{}, false, nil
		}
		cur := newOffsetCheck
		if extCount == 1 {
			cur += 16
			if cur%16 != 0 {
				cur += 16 - cur%16
			}
		}
		if cur != firstExtEndPtr {
			return version.Version{}, false, nil
		}
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	return target, true, nil
}

func checkEXTN2023_4(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2023, 4, 0, 0)
	extCount := r.S32()
	if extCount < 1 {
		return version.Version{}, false, nil
	}
	ptr := int64(r.U32())
	r.SeekTo(ptr + 4*3)
	filesPointer := r.U32()
	optionsPointer := r.U32()
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if filesPointer > optionsPointer {
		return target, true, nil
	}
	return version.Version{}, false, nil
}

func checkSOND2024_6(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2024, 6, 0, 0)
	count := int64(r.U32())
	var pointers []uint32
	for i := int64(0); i < count && len(pointers) < 2; i++ {
		p := r.U32()
		if p == 0 {
			continue
		}
		pointers = append(pointers, p)
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if len(pointers) >= 2 {
		if pointers[0]+4*9 == pointers[1]-4 {
			return target, true, nil
		}
		return version.Version{}, false, nil
	}
	if len(pointers) == 1 {
		absPos := pointers[0] + 4*9
		if absPos%16 != 4 {
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "SOND 2024.6 probe: expected alignment at %d", absPos)
		}
		r.SeekTo(int64(absPos))
		v := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if v != 0 {
			return target, true, nil
		}
	}
	return version.Version{}, false, nil
}

func checkAGRP2024_14(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2024, 14, 0, 0)
	count := r.U32()
	if count == 0 {
		return version.Version{}, false, nil
	}

	var i uint32
	var position1, position2 uint32
	for position1 == 0 && i < count {
		position1 = r.U32()
		i++
	}
	for position2 == 0 && i < count {
		position2 = r.U32()
		i++
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if position1 == 0 && position2 == 0 {
		return version.Version{}, false, nil
	}
	if position2 == 0 {
		r.SeekTo(int64(position1) + 4)
		if r.Pos()+4 > chunkEnd {
			return version.Version{}, false, nil
		}
		pathPointer := r.U32()
		if r.Err() != nil || pathPointer == 0 {
			return version.Version{}, false, nil
		}
	} else if position2-position1 == 4 {
		return version.Version{}, false, nil
	}
	return target, true, nil
}

func checkSPRT2024_6(r *databin.Reader, chunkStart, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2024, 6, 0, 0)
	count := int64(r.U32())

	for i := int64(0); i < count; i++ {
		r.SeekTo(chunkStart + i*4 + 4)
		spritePointer := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if spritePointer == 0 {
			continue
		}

		var nextSpritePointer int64
		for j := i + 1; j < count; j++ {
			p := int64(r.U32())
			if p != 0 {
				nextSpritePointer = p
				break
			}
		}

		r.SeekTo(spritePointer + 4) // skip name
		width := r.U32()
		height := r.U32()
		marginLeft := r.S32()
		marginRight := r.S32()
		marginBottom := r.S32()
		marginTop := r.S32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		bboxWidth := uint32(marginRight - marginLeft + 1)
		bboxHeight := uint32(marginBottom - marginTop + 1)
		if bboxWidth == width && bboxHeight == height {
			continue
		}

		r.SeekTo(r.Pos() + 28)
		if r.S32() != -1 {
			continue
		}
		specialVersion := r.U32()
		if specialVersion != 3 {
			continue
		}
		spriteType := r.U32()
		if spriteType != 0 {
			continue
		}
		sequenceOffset := int64(r.U32())
		nineSliceOffset := int64(r.U32())
		textureCount := int64(r.U32())
		r.SeekTo(r.Pos() + textureCount*4)
		maskCount := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if maskCount == 0 {
			continue
		}

		fullLength := int64((width+7)/8*height) * maskCount
		if fullLength%4 != 0 {
			fullLength += 4 - fullLength%4
		}
		bboxLength := int64((bboxWidth+7)/8*bboxHeight) * maskCount
		if bboxLength%4 != 0 {
			bboxLength += 4 - bboxLength%4
		}

		fullEndPos := r.Pos() + fullLength
		bboxEndPos := r.Pos() + bboxLength
		var expectedEndOffset int64
		switch {
		case sequenceOffset != 0:
			expectedEndOffset = sequenceOffset
		case nineSliceOffset != 0:
			expectedEndOffset = nineSliceOffset
		case nextSpritePointer != 0:
			expectedEndOffset = nextSpritePointer
		default:
			if fullEndPos%16 != 0 && fullEndPos+(16-fullEndPos%16) == chunkEnd {
				return version.Version{}, false, nil
			}
			if bboxEndPos%16 != 0 && bboxEndPos+(16-bboxEndPos%16) == chunkEnd {
				return target, true, nil
			}
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "SPRT 2024.6 probe: could not determine mask layout")
		}

		if fullEndPos == expectedEndOffset {
			return version.Version{}, false, nil
		}
		if bboxEndPos == expectedEndOffset {
			return target, true, nil
		}
	}
	return version.Version{}, false, nil
}

func checkFont2022_2(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 2, 0, 0)
	count := r.U32()
	if count < 1 {
		return version.Version{}, false, nil
	}

	var firstFontPointer int64
	for i := uint32(0); i < count; i++ {
		p := int64(r.U32())
		if p != 0 {
			firstFontPointer = p
			break
		}
	}
	if firstFontPointer == 0 {
		return version.Version{}, false, nil
	}

	r.SeekTo(firstFontPointer + 48)
	glyphCount := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if glyphCount == 0 {
		return target, true, nil
	}

	glyphPointers := make([]int64, glyphCount)
	for i := range glyphPointers {
		p := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if p == 0 {
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "FONT 2022.2 probe: null glyph pointer")
		}
		glyphPointers[i] = p
	}
	for _, p := range glyphPointers {
		if r.Pos() != p {
			return version.Version{}, false, nil
		}
		r.SeekTo(r.Pos() + 14)
		kerningLength := r.U16()
		r.SeekTo(r.Pos() + int64(kerningLength)*4)
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
	}
	return target, true, nil
}

func checkFont2023_6and2024_11(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, current version.Version) (version.Version, bool, error) {
	if !current.AtLeast(version.V(2022, 8, 0, 0)) {
		return version.Version{}, false, nil
	}
	if current.AtLeast(version.V(2023, 6, 0, 0)) && !current.AtLeast(version.V(2024, 6, 0, 0)) {
		return version.Version{}, false, nil
	}
	if current.AtLeast(version.V(2024, 11, 0, 0)) {
		return version.Version{}, false, nil
	}

	count := r.S32()
	var firstTwo []int64
	for i := int32(0); i < count && len(firstTwo) < 2; i++ {
		p := int64(r.U32())
		if p == 0 {
			continue
		}
		firstTwo = append(firstTwo, p)
	}
	if r.Err() != nil || len(firstTwo) < 1 {
		return version.Version{}, false, nil
	}
	if len(firstTwo) == 1 {
		firstTwo = append(firstTwo, chunkEnd-512)
	}

	r.SeekTo(firstTwo[0] + 52)
	if current.AtLeast(version.Version{Major: 2023, Minor: 2, Branch: version.NonLTS}) {
		r.SeekTo(r.Pos() + 4)
	}
	glyphCount := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if glyphCount*4 > firstTwo[1]-r.Pos() || glyphCount < 1 {
		return version.Version{}, false, nil
	}

	glyphPointers := make([]int64, glyphCount)
	for i := range glyphPointers {
		p := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if p == 0 {
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "FONT 2023.6/2024.11 probe: null glyph pointer")
		}
		glyphPointers[i] = p
	}

	for i, glyphPointer := range glyphPointers {
		if r.Pos() != glyphPointer {
			return version.Version{}, false, nil
		}
		r.SeekTo(r.Pos() + 14)
		kerningCount := int64(r.U16())

		nextGlyphPointer := firstTwo[1]
		if i < len(glyphPointers)-1 {
			nextGlyphPointer = glyphPointers[i+1]
		}
		pointerAfterKerningList := r.Pos() + 4*kerningCount
		if nextGlyphPointer == pointerAfterKerningList {
			return version.V(2023, 6, 0, 0), true, nil
		}

		kerningCount = int64(r.U16())
		pointerAfterKerningList = r.Pos() + 4*kerningCount
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if nextGlyphPointer != pointerAfterKerningList {
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "FONT glyph list: unexpected value count before kerning list")
		}
		return version.V(2024, 11, 0, 0), true, nil
	}
	return version.V(2023, 6, 0, 0), true, nil
}

func checkFont2024_14(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	count := r.U32()
	var lastFontPosition int64
	for i := uint32(0); i < count; i++ {
		p := int64(r.U32())
		if p != 0 {
			lastFontPosition = p
		}
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}

	if lastFontPosition != 0 {
		r.SeekTo(lastFontPosition + 56)
		glyphCount := int64(r.U32())
		r.SeekTo(r.Pos() + (glyphCount-1)*4)
		lastGlyph := int64(r.U32())
		r.SeekTo(lastGlyph + 16)
		kerningCount := int64(r.U16())
		r.SeekTo(r.Pos() + kerningCount*4)
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
	}

	if r.Pos()+512 > chunkEnd {
		return version.V(2024, 14, 0, 0), true, nil
	}
	return version.Version{}, false, nil
}

func checkFunc2024_8(r *databin.Reader, chunkStart, chunkEnd int64, cr *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2024, 8, 0, 0)
	if chunkEnd == chunkStart {
		return version.Version{}, false, nil
	}

	functionCount := int64(r.U32())
	r.SeekTo(r.Pos() + functionCount*3*4)
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if r.Pos() == chunkEnd {
		return target, true, nil
	}

	const chunkPadding = 16
	var paddingBytesRead int64
	for r.Pos()%chunkPadding != 0 {
		if r.Pos() >= chunkEnd {
			return version.Version{}, false, nil
		}
		b := r.U8()
		if r.Err() != nil || b != 0 {
			return version.Version{}, false, nil
		}
		paddingBytesRead++
	}
	if r.Pos() != chunkEnd {
		return version.Version{}, false, nil
	}
	if paddingBytesRead < 4 {
		return target, true, nil
	}

	if d, ok := cr.Descriptor("CODE"); ok {
		cdr := cr.FullReader()
		cdr.SeekTo(d.Start)
		codeCount := cdr.U32()
		if cdr.Err() != nil || codeCount < 1 {
			return version.Version{}, false, nil
		}
	}
	return target, true, nil
}

func checkTXTR2022_3(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 3, 0, 0)
	count := int64(r.U32())
	if count < 1 {
		return version.Version{}, false, nil
	}
	if count == 1 {
		r.SeekTo(r.Pos() + 16)
		v := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if v > 0 {
			return target, true, nil
		}
		return version.Version{}, false, nil
	}
	pointer1 := int64(r.U32())
	pointer2 := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if pointer1+16 == pointer2 {
		return target, true, nil
	}
	return version.Version{}, false, nil
}

func checkTXTR2022_5(r *databin.Reader, chunkStart, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 5, 0, 0)
	count := int64(r.U32())
	for i := int64(0); i < count; i++ {
		r.SeekTo(chunkStart + 4*i + 4)
		p := int64(r.U32())
		r.SeekTo(p + 12)
		p = int64(r.U32())
		r.SeekTo(p)
		header := r.Bytes(4)
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if [4]byte{header[0], header[1], header[2], header[3]} != bz2QOIMagic {
			continue
		}
		r.SeekTo(r.Pos() + 4) // skip width/height
		bzh := r.Bytes(3)
		r.SeekTo(r.Pos() + 1)
		pi := r.Bytes(6)
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if string(bzh) != "BZh" {
			return target, true, nil
		}
		if [6]byte{pi[0], pi[1], pi[2], pi[3], pi[4], pi[5]} != [6]byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59} {
			return target, true, nil
		}
		return version.Version{}, false, nil
	}
	return version.Version{}, false, nil
}

func checkTXTR2_0_6(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.Version{Major: 2, Minor: 0, Release: 6}
	count := int64(r.U32())
	if count < 1 {
		return version.Version{}, false, nil
	}
	if count == 1 {
		p := int64(r.U32())
		r.SeekTo(p + 8)
		v := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if v == 0 {
			return version.Version{}, false, nil
		}
	}
	if count >= 2 {
		pointer1 := r.U32()
		pointer2 := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if pointer2-pointer1 == 8 {
			return version.Version{}, false, nil
		}
	}
	return target, true, nil
}

func checkTGIN2022_9(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, current version.Version) (version.Version, bool, error) {
	if current.AtLeast(version.Version{Major: 2023, Minor: 1, Branch: version.NonLTS}) {
		return version.Version{}, false, nil
	}
	tginVersion := r.U32()
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if tginVersion != 1 {
		return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "TGIN 2022.9 probe: expected tgin version 1, got %d", tginVersion)
	}
	count := int64(r.U32())
	if count < 1 {
		return version.Version{}, false, nil
	}
	pointer1 := int64(r.U32())
	pointer2 := chunkEnd
	if count >= 2 {
		pointer2 = int64(r.U32())
	}
	r.SeekTo(pointer1 + 4)
	ptr := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if ptr < pointer1 || ptr >= pointer2 {
		return version.V(2022, 9, 0, 0), true, nil
	}
	return version.Version{}, false, nil
}

func checkTGIN2023_1(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, current version.Version) (version.Version, bool, error) {
	target := version.Version{Major: 2023, Minor: 1, Branch: version.NonLTS}
	if current.AtLeast(target) {
		return version.Version{}, false, nil
	}
	tginVersion := r.U32()
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if tginVersion != 1 {
		return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "TGIN 2023.1 probe: expected tgin version 1, got %d", tginVersion)
	}
	count := int64(r.U32())
	if count < 1 {
		return version.Version{}, false, nil
	}
	pointer1 := int64(r.U32())
	r.SeekTo(pointer1 + 16 + 4*3)
	pointer4 := int64(r.U32())
	next := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if next <= pointer4 {
		return target, true, nil
	}
	return version.Version{}, false, nil
}

func checkACRV2_3_1(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	count := r.U32()
	if count < 1 {
		return version.Version{}, false, nil
	}
	p := int64(r.U32())
	r.SeekTo(p + 8)
	for i := 0; i < 2; i++ {
		v := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if v != 0 {
			return version.Version{Major: 2, Minor: 3, Release: 1}, true, nil
		}
	}
	return version.Version{}, false, nil
}

func checkSPRT2_3_2(r *databin.Reader, _, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.Version{Major: 2, Minor: 3, Release: 2}
	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	pointers := make([]int64, count)
	for i := range pointers {
		pointers[i] = int64(r.U32())
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	for _, p := range pointers {
		if p == 0 {
			continue
		}
		r.SeekTo(p + 14*4)
		if r.S32() != -1 {
			continue
		}
		specialVersion := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if specialVersion >= 3 {
			return target, true, nil
		}
	}
	return version.Version{}, false, nil
}

func checkOBJT2022_5(r *databin.Reader, _, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 5, 0, 0)
	count := r.U32()
	if count < 1 {
		return version.Version{}, false, nil
	}
	firstObjectPointer := int64(r.U32())
	r.SeekTo(firstObjectPointer + 64)
	vertexCount := int64(r.U32())
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if r.Pos()+12+8*vertexCount >= chunkEnd {
		return target, true, nil
	}

	r.SeekTo(r.Pos() + 12 + 8*vertexCount)
	if r.U32() == 15 {
		subEventPointer := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if r.Pos()+56 == subEventPointer {
			return version.Version{}, false, nil
		}
	}
	return target, true, nil
}

func checkROOM2022_1(r *databin.Reader, chunkStart, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.V(2022, 1, 0, 0)
	roomCount := int64(r.U32())
	for i := int64(0); i < roomCount; i++ {
		r.SeekTo(chunkStart + 4*i + 4)
		roomPointer := int64(r.U32())
		r.SeekTo(roomPointer + 22*4)
		layerListPointer := int64(r.U32())
		sequencePointer := int64(r.U32())
		r.SeekTo(layerListPointer)
		layerCount := r.S32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if layerCount < 1 {
			continue
		}

		jumpPointer := int64(r.U32()) + 8
		nextPointer := sequencePointer
		if layerCount != 1 {
			nextPointer = int64(r.U32())
		}

		r.SeekTo(jumpPointer)
		layerType := roomLayerType(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}

		switch layerType {
		case roomLayerPath, roomLayerPath2:
			continue
		case roomLayerBackground:
			if nextPointer-r.Pos() > 16*4 {
				return target, true, nil
			}
		case roomLayerInstances:
			r.SeekTo(r.Pos() + 6*4)
			instanceCount := int64(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if nextPointer-r.Pos() != instanceCount*4 {
				return target, true, nil
			}
		case roomLayerAssets:
			r.SeekTo(r.Pos() + 6*4)
			tilePointer := int64(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if tilePointer != r.Pos()+8 && tilePointer != r.Pos()+12 {
				return target, true, nil
			}
		case roomLayerTiles:
			r.SeekTo(r.Pos() + 6*4)
			w := int64(r.U32())
			h := int64(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if nextPointer-r.Pos() != w*h*4 {
				return target, true, nil
			}
		case roomLayerEffect:
			r.SeekTo(r.Pos() + 7*4)
			propCount := int64(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if nextPointer-r.Pos() != propCount*3*4 {
				return target, true, nil
			}
		default:
			continue
		}
		return version.Version{}, false, nil
	}
	return version.Version{}, false, nil
}

func checkROOM2_2_2_302(r *databin.Reader, chunkStart, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	target := version.Version{Major: 2, Minor: 2, Release: 2, Build: 302}
	roomCount := int64(r.U32())
	for i := int64(0); i < roomCount; i++ {
		r.SeekTo(chunkStart + 4*i + 4)
		roomPointer := int64(r.U32())
		r.SeekTo(roomPointer + 12*4)
		objectListPointer := int64(r.U32())
		tileListPointer := int64(r.U32())
		r.SeekTo(objectListPointer)
		objectCount := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if objectCount < 1 {
			continue
		}
		pointer1 := int64(r.U32())
		pointer2 := tileListPointer
		if objectCount != 1 {
			pointer2 = int64(r.U32())
		}
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if pointer2-pointer1 == 48 {
			return target, true, nil
		}
	}
	return version.Version{}, false, nil
}

func checkROOM2024_2and2024_4(r *databin.Reader, chunkStart, _ int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	roomCount := int64(r.U32())
	anyMisaligned := false

	for i := int64(0); i < roomCount; i++ {
		r.SeekTo(chunkStart + 4*i + 4)
		roomPointer := int64(r.U32())
		r.SeekTo(roomPointer + 22*4)
		layerListPtr := int64(r.U32())
		sequencePtr := int64(r.U32())
		r.SeekTo(layerListPtr)
		layerCount := int64(r.U32())
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		if layerCount < 1 {
			continue
		}

		checkNextLayerOffset := false
		for layerIndex := int64(0); layerIndex < layerCount; layerIndex++ {
			layerPtr := layerListPtr + 4*layerIndex
			if checkNextLayerOffset && layerPtr%4 != 0 {
				anyMisaligned = true
			}

			r.SeekTo(layerPtr + 4)
			layerDataPtr := int64(r.U32())
			nextPointer := sequencePtr
			if layerIndex != layerCount-1 {
				nextPointer = int64(r.U32())
			}

			r.SeekTo(layerDataPtr + 8)
			layerType := roomLayerType(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if layerType != roomLayerTiles {
				checkNextLayerOffset = false
				continue
			}
			checkNextLayerOffset = true

			r.SeekTo(r.Pos() + 32)
			effectCount := int64(r.U32())
			r.SeekTo(r.Pos() + 12*effectCount + 4)
			w := int64(r.U32())
			h := int64(r.U32())
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			if nextPointer-r.Pos() != w*h*4 {
				if anyMisaligned {
					return version.V(2024, 2, 0, 0), true, nil
				}
				return version.V(2024, 4, 0, 0), true, nil
			}
		}
	}
	return version.Version{}, false, nil
}

func checkPSEM2023x(r *databin.Reader, chunkStart, chunkEnd int64, _ *chunk.Reader, _ uint8, _ version.Version) (version.Version, bool, error) {
	var target version.Version
	var hasTarget bool

	r.Align(4)
	psemVersion := r.U32()
	if r.Err() != nil {
		return version.Version{}, false, nil
	}
	if psemVersion != 1 {
		return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "PSEM probe: expected psem version 1, got %d", psemVersion)
	}

	count := r.U32()
	if count < 11 {
		target, hasTarget = version.V(2023, 4, 0, 0), true
	}
	if count == 0 {
		return target, hasTarget, nil
	}

	if count == 1 {
		switch chunkEnd - chunkStart {
		case 0xF8:
			target, hasTarget = version.V(2023, 8, 0, 0), true
		case 0xD8:
			target, hasTarget = version.V(2023, 6, 0, 0), true
		case 0xC8:
			target, hasTarget = version.V(2023, 4, 0, 0), true
		default:
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "PSEM probe: unrecognized element size %d with one element", chunkEnd-chunkStart)
		}
	} else {
		pointer1 := r.U32()
		pointer2 := r.U32()
		if r.Err() != nil {
			return version.Version{}, false, nil
		}
		switch pointer2 - pointer1 {
		case 0xEC:
			target, hasTarget = version.V(2023, 8, 0, 0), true
		case 0xC0:
			target, hasTarget = version.V(2023, 6, 0, 0), true
		case 0xBC:
			target, hasTarget = version.V(2023, 4, 0, 0), true
		case 0xB0:
			// 2023.2; nothing further to detect.
		default:
			return version.Version{}, false, gmerr.Atf(gmerr.CorruptStructure, "PSEM probe: unrecognized element size %d with %d elements", pointer2-pointer1, count)
		}
	}
	return target, hasTarget, nil
}

func getChunkElemCount(cr *chunk.Reader, name string) (int64, error) {
	d, ok := cr.Descriptor(name)
	if !ok {
		return 0, nil
	}
	r := cr.FullReader()
	r.SeekTo(d.Start)
	count := int64(r.U32())
	if r.Err() != nil {
		return 0, r.Err()
	}
	return count, nil
}

func getChunkElemCountWeird(cr *chunk.Reader, name string) (int64, error) {
	d, ok := cr.Descriptor(name)
	if !ok {
		return 0, nil
	}
	r := cr.FullReader()
	r.SeekTo(d.Start)
	r.Align(4)
	v := r.U32()
	if r.Err() != nil {
		return 0, r.Err()
	}
	if v != 1 {
		return 0, gmerr.Atf(gmerr.CorruptStructure, "expected version 1 in chunk %s, got %d", name, v)
	}
	count := int64(r.U32())
	if r.Err() != nil {
		return 0, r.Err()
	}
	return count, nil
}

func checkCODE2023_8and2024_4(r *databin.Reader, _, _ int64, cr *chunk.Reader, bytecodeVersion uint8, _ version.Version) (version.Version, bool, error) {
	backgroundCount, err := getChunkElemCount(cr, "BGND")
	if err != nil {
		return version.Version{}, false, err
	}
	pathCount, err := getChunkElemCount(cr, "PATH")
	if err != nil {
		return version.Version{}, false, err
	}
	scriptCount, err := getChunkElemCount(cr, "SCPT")
	if err != nil {
		return version.Version{}, false, err
	}
	fontCount, err := getChunkElemCount(cr, "FONT")
	if err != nil {
		return version.Version{}, false, err
	}
	timelineCount, err := getChunkElemCount(cr, "TMLN")
	if err != nil {
		return version.Version{}, false, err
	}
	shaderCount, err := getChunkElemCount(cr, "SHDR")
	if err != nil {
		return version.Version{}, false, err
	}
	sequenceCount, err := getChunkElemCountWeird(cr, "SEQN")
	if err != nil {
		return version.Version{}, false, err
	}
	particleSystemCount, err := getChunkElemCountWeird(cr, "PSYS")
	if err != nil {
		return version.Version{}, false, err
	}

	isAssetType2024_4 := func(word uint32) bool {
		resourceID := int64(word & 0xffffff)
		switch word >> 24 {
		case 4:
			return resourceID >= backgroundCount
		case 5:
			return resourceID >= pathCount
		case 6:
			return resourceID >= scriptCount
		case 7:
			return resourceID >= fontCount
		case 8:
			return resourceID >= timelineCount
		case 9:
			return true
		case 10:
			return resourceID >= shaderCount
		case 11:
			return resourceID >= sequenceCount
		case 13:
			return resourceID >= particleSystemCount
		default:
			return false
		}
	}

	count := int64(r.U32())
	var codePointers []int64
	for i := int64(0); i < count; i++ {
		p := int64(r.U32())
		if p != 0 {
			codePointers = append(codePointers, p)
		}
	}
	if r.Err() != nil {
		return version.Version{}, false, nil
	}

	detected2023_8 := false

	for _, codePtr := range codePointers {
		var instructionsStart, instructionsEnd int64
		if bytecodeVersion <= 14 {
			r.SeekTo(codePtr + 4)
			length := int64(r.U32())
			instructionsStart = r.Pos()
			instructionsEnd = instructionsStart + length
		} else {
			r.SeekTo(codePtr + 4)
			instructionsLength := int64(r.U32())
			r.SeekTo(r.Pos() + 4) // skip locals/arguments count
			instructionsStartRelative := r.S32()
			instructionsStart = r.Pos() - 4 + int64(instructionsStartRelative)
			instructionsEnd = instructionsStart + instructionsLength
		}
		if r.Err() != nil {
			return version.Version{}, false, nil
		}

		r.SeekTo(instructionsStart)
		for r.Pos() < instructionsEnd {
			firstWord := r.U32()
			if r.Err() != nil {
				return version.Version{}, false, nil
			}
			opcode := uint8(firstWord >> 24)
			type1 := uint8((firstWord & 0x00FF0000) >> 16)

			popOpcode, callOpcode := uint8(0x41), uint8(0xDA)
			if bytecodeVersion > 14 {
				popOpcode, callOpcode = 0x45, 0xD9
			}
			if opcode == popOpcode || opcode == callOpcode {
				r.SeekTo(r.Pos() + 4)
			}
			if (opcode == 0xC0 || opcode == 0xC1 || opcode == 0xC2 || opcode == 0xC3) && type1 != 0x0f {
				r.SeekTo(r.Pos() + 4)
			}
			if opcode != 0xFF {
				continue
			}
			if type1 == 2 {
				arg := r.U32()
				if r.Err() != nil {
					return version.Version{}, false, nil
				}
				if isAssetType2024_4(arg) {
					return version.V(2024, 4, 0, 0), true, nil
				}
				detected2023_8 = true
			}
		}
	}

	if detected2023_8 {
		return version.V(2023, 8, 0, 0), true, nil
	}
	return version.Version{}, false, nil
}
