// Package gen8 implements the GEN8 chunk: general game info, including the
// self-reported engine version that the version-detection engine (spec.md
// §4.8) treats as an unreliable starting point rather than ground truth.
package gen8

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// Info is the parsed GEN8 chunk (spec.md §4.7).
type Info struct {
	Debug           bool
	BytecodeVersion uint8

	FilenameStr  int
	ConfigStr    int
	LastObjectID uint32
	LastTileID   uint32
	GameID       uint32
	LegacyGUID   [4]uint32

	NameStr              int
	SelfReportedVersion  version.Version // often inaccurate on newer engines
	Windows              [2]uint32       // width, height
	InfoFlags            uint32

	LicenseCRC32 uint32
	LicenseMD5   [16]byte
	Timestamp    int64

	DisplayNameStr          int
	ActiveTargets           int64
	FunctionClassifications int64
	SteamAppID              int32

	// DebuggerPort is only present in bytecode >= 14 (spec.md §4.7).
	DebuggerPort uint32

	// RoomOrder is the rolling-encoded list of room indices defining load
	// order (spec.md §4.7).
	RoomOrder []int32
}

// Parse reads GEN8, resolving its version-relevant string fields against
// the already-parsed STRG pool.
func Parse(cr *chunk.Reader, strings *strg.Pool) (*Info, error) {
	r, err := cr.MustEnter("GEN8")
	if err != nil {
		return nil, err
	}

	var strErr error
	resolveStr := func() int {
		idx, err := readStringIndex(r, strings)
		if err != nil && strErr == nil {
			strErr = err
		}
		return idx
	}

	info := &Info{}
	info.Debug = r.U8() != 0
	info.BytecodeVersion = r.U8()
	r.U16() // unused alignment field

	info.FilenameStr = resolveStr()
	info.ConfigStr = resolveStr()
	info.LastObjectID = r.U32()
	info.LastTileID = r.U32()
	info.GameID = r.U32()

	for i := range info.LegacyGUID {
		info.LegacyGUID[i] = r.U32()
	}

	info.NameStr = resolveStr()

	major := int(r.U32())
	minor := int(r.U32())
	release := int(r.U32())
	build := int(r.U32())
	info.SelfReportedVersion = version.V(major, minor, release, build)

	info.Windows[0] = r.U32()
	info.Windows[1] = r.U32()
	info.InfoFlags = r.U32()

	info.LicenseCRC32 = r.U32()
	copy(info.LicenseMD5[:], r.Bytes(16))
	info.Timestamp = r.S64()

	info.DisplayNameStr = resolveStr()
	info.ActiveTargets = r.S64()
	info.FunctionClassifications = r.S64()
	info.SteamAppID = r.S32()

	if info.BytecodeVersion >= 14 {
		info.DebuggerPort = r.U32()
	}

	roomCount := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	info.RoomOrder = make([]int32, roomCount)
	prev := int32(0)
	for i := range info.RoomOrder {
		delta := r.S32()
		prev += delta
		info.RoomOrder[i] = prev
	}

	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "GEN8", -1, "")
	}
	if strErr != nil {
		return nil, gmerr.Wrap(strErr, "GEN8", -1, "")
	}
	return info, nil
}

func readStringIndex(r *databin.Reader, pool *strg.Pool) (int, error) {
	off := r.StringRef()
	if r.Err() != nil {
		return -1, nil
	}
	idx, present, err := pool.Resolve(off)
	if err != nil {
		return -1, err
	}
	if !present {
		return -1, nil
	}
	return idx, nil
}

// Emit writes GEN8 back out. The caller is responsible for keeping
// SelfReportedVersion consistent with what the rest of the tree implies;
// gmdata does not silently rewrite it to the detected version, since
// spec.md treats the self-reported field and the detected version as
// distinct concepts.
func Emit(w *databin.Writer, info *Info, strings *strg.Pool) {
	w.U8(boolToU8(info.Debug))
	w.U8(info.BytecodeVersion)
	w.U16(0)

	writeStringIndex(w, strings, info.FilenameStr)
	writeStringIndex(w, strings, info.ConfigStr)
	w.U32(info.LastObjectID)
	w.U32(info.LastTileID)
	w.U32(info.GameID)
	for _, g := range info.LegacyGUID {
		w.U32(g)
	}

	writeStringIndex(w, strings, info.NameStr)

	w.U32(uint32(info.SelfReportedVersion.Major))
	w.U32(uint32(info.SelfReportedVersion.Minor))
	w.U32(uint32(info.SelfReportedVersion.Release))
	w.U32(uint32(info.SelfReportedVersion.Build))

	w.U32(info.Windows[0])
	w.U32(info.Windows[1])
	w.U32(info.InfoFlags)

	w.U32(info.LicenseCRC32)
	w.RawBytes(info.LicenseMD5[:])
	w.S64(info.Timestamp)

	writeStringIndex(w, strings, info.DisplayNameStr)
	w.S64(info.ActiveTargets)
	w.S64(info.FunctionClassifications)
	w.S32(info.SteamAppID)

	if info.BytecodeVersion >= 14 {
		w.U32(info.DebuggerPort)
	}

	w.WriteListCount(len(info.RoomOrder))
	prev := int32(0)
	for _, idx := range info.RoomOrder {
		w.S32(idx - prev)
		prev = idx
	}
}

func writeStringIndex(w *databin.Writer, strings *strg.Pool, idx int) {
	if idx < 0 {
		w.U32(0)
		return
	}
	w.Placeholder(strings.IdentityFor(w, idx))
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
