// Package versiondetect implements the heuristic engine that upgrades a
// self-reported GameMaker engine version by structurally probing chunks the
// main parse hasn't consumed yet (spec.md §4.8). The self-reported version
// in GEN8 is frequently stuck at an old value regardless of the engine that
// actually produced the file, so every later element codec that branches on
// version needs the upgraded value instead.
package versiondetect

import (
	"github.com/rs/zerolog"

	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/version"
)

// checkFunc probes a reader positioned at the start of its target chunk and
// returns the version it detected, or (zero, false) if inconclusive. An
// error means the chunk's bytes contradict every version this probe knows
// how to recognize — a genuine corrupt-structure condition, not a miss.
type checkFunc func(r *databin.Reader, chunkStart, chunkEnd int64, cr *chunk.Reader, bytecodeVersion uint8, current version.Version) (version.Version, bool, error)

// probe pairs a checkFunc with the chunk it reads and the version window in
// which it is meaningful to run (spec.md §4.8: required_version/target_version).
type probe struct {
	chunkName       string
	check           checkFunc
	requiredVersion version.Version
	targetVersion   version.Version
}

// Detect runs the existence-based and structural probes against cr, starting
// from selfReported, and returns the upgraded version. cr must not yet have
// had any of the probed chunks Entered (probes peek without consuming).
//
// logger receives one Debug event per probe that fires an upgrade, and one
// Info event with the final result; a nil logger disables the trail
// entirely, keeping the probe loop itself silent by default (spec.md §2's
// "core codec stays silent" carve-out only grants the version detector and
// the diff exporter an injectable logger).
func Detect(cr *chunk.Reader, selfReported version.Version, bytecodeVersion uint8, logger *zerolog.Logger) (version.Version, error) {
	v := selfReported

	// Chunk-existence signals (spec.md §4.8): presence alone is enough.
	if cr.Has("TGIN") {
		v = version.Max(v, version.Version{Major: 2, Minor: 2, Release: 1, Branch: v.Branch})
	}
	if cr.Has("SEQN") {
		v = version.Max(v, version.Version{Major: 2, Minor: 3, Branch: v.Branch})
	}
	if cr.Has("FEDS") {
		v = version.Max(v, version.Version{Major: 2, Minor: 3, Release: 6, Branch: v.Branch})
	}
	if cr.Has("FEAT") {
		v = version.Max(v, version.Version{Major: 2022, Minor: 8, Branch: v.Branch})
	}
	if cr.Has("PSEM") {
		v = version.Max(v, version.Version{Major: 2023, Minor: 2, Branch: version.NonLTS})
	}
	if cr.Has("UILR") {
		v = version.Max(v, version.Version{Major: 2024, Minor: 13, Branch: version.NonLTS})
	}

	if bytecodeVersion >= 14 {
		if upgraded, ok, err := runOne(cr, "FUNC", checkFunc2024_8, bytecodeVersion, v); err != nil {
			return v, err
		} else if ok {
			logProbe(logger, "FUNC", v, upgraded)
			v = version.Max(v, upgraded)
		}
	}
	if bytecodeVersion >= 17 {
		if upgraded, ok, err := runOne(cr, "FONT", checkFont2022_2, bytecodeVersion, v); err != nil {
			return v, err
		} else if ok {
			logProbe(logger, "FONT", v, upgraded)
			v = version.Max(v, upgraded)
		}
	}

	probes := []probe{
		{"ACRV", checkACRV2_3_1, version.V(2, 3, 0, 0), version.V(2, 3, 1, 0)},
		{"PSEM", checkPSEM2023x, version.V(2023, 2, 0, 0), version.V(2023, 8, 0, 0)},
		{"TXTR", checkTXTR2_0_6, version.V(2, 0, 0, 0), version.V(2, 0, 6, 0)},
		{"TGIN", checkTGIN2022_9, version.V(2, 3, 0, 0), version.V(2022, 9, 0, 0)},
		{"SPRT", checkSPRT2_3_2, version.V(2, 0, 0, 0), version.V(2, 3, 2, 0)},
		{"OBJT", checkOBJT2022_5, version.V(2, 3, 0, 0), version.V(2022, 5, 0, 0)},
		{"TGIN", checkTGIN2023_1, version.V(2022, 9, 0, 0), version.V(2023, 1, 0, 0)},
		{"EXTN", checkEXTN2023_4, version.V(2022, 6, 0, 0), version.V(2023, 4, 0, 0)},
		{"AGRP", checkAGRP2024_14, version.V(2024, 13, 0, 0), version.V(2024, 14, 0, 0)},
		{"FONT", checkFont2024_14, version.V(2024, 13, 0, 0), version.V(2024, 14, 0, 0)},
		{"TXTR", checkTXTR2022_3, version.V(2, 3, 0, 0), version.V(2022, 3, 0, 0)},
		{"TXTR", checkTXTR2022_5, version.V(2022, 3, 0, 0), version.V(2022, 5, 0, 0)},
		{"EXTN", checkEXTN2022_6, version.V(2, 3, 0, 0), version.V(2022, 6, 0, 0)},
		{"ROOM", checkROOM2_2_2_302, version.V(2, 0, 0, 0), version.Version{Major: 2, Minor: 2, Release: 2, Build: 302}},
		{"ROOM", checkROOM2024_2and2024_4, version.V(2023, 2, 0, 0), version.V(2024, 4, 0, 0)},
		{"ROOM", checkROOM2022_1, version.V(2, 3, 0, 0), version.V(2022, 1, 0, 0)},
		{"FONT", checkFont2023_6and2024_11, version.V(2022, 8, 0, 0), version.V(2023, 6, 0, 0)},
		{"FONT", checkFont2023_6and2024_11, version.V(2024, 6, 0, 0), version.V(2024, 11, 0, 0)},
		{"SPRT", checkSPRT2024_6, version.Version{Major: 2022, Minor: 2, Branch: version.NonLTS}, version.V(2024, 6, 0, 0)},
		{"SOND", checkSOND2024_6, version.Version{Major: 2022, Minor: 2, Branch: version.NonLTS}, version.V(2024, 6, 0, 0)},
		{"CODE", checkCODE2023_8and2024_4, version.Version{}, version.V(2024, 4, 0, 0)},
	}

	retired := make([]bool, len(probes))
	for {
		updated := false
		for i := len(probes) - 1; i >= 0; i-- {
			if retired[i] || v.AtLeast(probes[i].targetVersion) {
				retired[i] = true
				continue
			}
			if !v.AtLeast(probes[i].requiredVersion) {
				continue
			}
			retired[i] = true // retired regardless of outcome, per spec.md §4.8

			upgraded, ok, err := runOne(cr, probes[i].chunkName, probes[i].check, bytecodeVersion, v)
			if err != nil {
				return v, gmerr.Atf(err, "version probe for %s against chunk %s", probes[i].targetVersion, probes[i].chunkName)
			}
			if ok {
				logProbe(logger, probes[i].chunkName, v, upgraded)
				v = version.Max(v, upgraded)
				updated = true
			}
		}
		if !updated {
			break
		}
	}

	if v.AtLeast(version.V2023_1) && v.Branch == version.PreLTS {
		v.Branch = version.LTS
	}
	if logger != nil {
		logger.Info().Str("detected", v.String()).Msg("version detection complete")
	}
	return v, nil
}

// logProbe records one probe's upgrade in the trail. A nil logger is a
// no-op, matching zerolog's own nil-safety idiom.
func logProbe(logger *zerolog.Logger, chunkName string, from, to version.Version) {
	if logger == nil {
		return
	}
	logger.Debug().
		Str("chunk", chunkName).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("version probe upgraded detected version")
}

// runOne peeks the named chunk (if present) and runs check against a fresh
// reader scoped to it, leaving the rest of cr's state untouched (spec.md
// §4.8: "Each probe saves and restores the reader's cursor... probes are
// read-only w.r.t. data.").
func runOne(cr *chunk.Reader, chunkName string, check checkFunc, bytecodeVersion uint8, current version.Version) (version.Version, bool, error) {
	d, ok := cr.Descriptor(chunkName)
	if !ok {
		return version.Version{}, false, nil
	}
	r := cr.FullReader()
	r.SeekTo(d.Start)
	return check(r, d.Start, d.End, cr, bytecodeVersion, current)
}
