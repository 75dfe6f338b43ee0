// Package gmerr defines the error taxonomy shared by every gmdata package.
//
// Every error gmdata returns is one of the sentinels below, wrapped with a
// breadcrumb of context (chunk name, byte position, field name) via Wrap.
// Callers should use errors.Is against the sentinels, not string matching.
package gmerr

import (
	"errors"
	"fmt"
)

var (
	// OutOfBounds is returned when a read or write crosses a chunk or buffer
	// boundary.
	OutOfBounds = errors.New("gmdata: out of bounds")

	// InvalidMagic is returned when a FORM/chunk-name literal, or any other
	// expected fixed value, does not match.
	InvalidMagic = errors.New("gmdata: invalid magic")

	// InvalidEnum is returned when an integer tag does not correspond to a
	// known variant.
	InvalidEnum = errors.New("gmdata: invalid enum value")

	// UnknownStringReference is returned when a string occurrence map lookup
	// misses.
	UnknownStringReference = errors.New("gmdata: unknown string reference")

	// UnknownTextureReference is returned when a texture-page-item occurrence
	// map lookup misses.
	UnknownTextureReference = errors.New("gmdata: unknown texture reference")

	// UnresolvedPointer is returned when an emit-time placeholder has no
	// matching resolution once emission completes.
	UnresolvedPointer = errors.New("gmdata: unresolved pointer")

	// VersionContract is returned when a version-gated field is missing when
	// required, or present when forbidden.
	VersionContract = errors.New("gmdata: version contract violation")

	// CorruptStructure is returned when a structural invariant is violated
	// (occurrence offset <= 0, mask size mismatch, misaligned chunk end, ...).
	CorruptStructure = errors.New("gmdata: corrupt structure")

	// UnreadChunks is returned when parsing completes with unread chunk
	// bytes left over and strict mode is enabled.
	UnreadChunks = errors.New("gmdata: unread chunks remain")

	// Failsafe is returned when a count or size exceeds a configured sanity
	// bound, guarding against corrupted length fields.
	Failsafe = errors.New("gmdata: failsafe bound exceeded")
)

// Wrap annotates err with a short context breadcrumb: a chunk name, a byte
// position, and/or a field name. Any of chunk/field may be empty; pos may be
// -1 to omit it. Wrap nests cleanly: each propagation point adds one more
// "at ..." segment, and errors.Is/errors.As still see through to the
// original sentinel.
func Wrap(err error, chunk string, pos int64, field string) error {
	if err == nil {
		return nil
	}
	switch {
	case chunk != "" && pos >= 0 && field != "":
		return fmt.Errorf("%s: at 0x%x: field %s: %w", chunk, pos, field, err)
	case chunk != "" && pos >= 0:
		return fmt.Errorf("%s: at 0x%x: %w", chunk, pos, err)
	case chunk != "" && field != "":
		return fmt.Errorf("%s: field %s: %w", chunk, field, err)
	case chunk != "":
		return fmt.Errorf("%s: %w", chunk, err)
	case field != "":
		return fmt.Errorf("field %s: %w", field, err)
	default:
		return err
	}
}

// Atf wraps err with a printf-formatted breadcrumb, for call sites that
// don't fit the chunk/pos/field shape of Wrap (e.g. version-detection
// probes, diff application).
func Atf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
