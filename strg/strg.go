// Package strg implements the STRG chunk: the game's string pool, plus the
// occurrence map that translates between a string's on-wire byte offset
// and its zero-based pool index (spec.md §3, §4.2).
package strg

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
)

// Pool is the parsed string pool: an ordered sequence of UTF-8 strings,
// plus the occurrence map built while parsing (pos -> index) that every
// later chunk's string references are resolved through.
type Pool struct {
	Strings []string

	// occurrence maps each string's character-data byte offset (spec.md
	// §4.2: "offset-to-length-prefix + 4") to its pool index.
	occurrence *databin.OccurrenceMap

	// identities lets the emitter look up the placeholder Identity assigned
	// to a given pool index, so that other chunks' string references can be
	// deferred with Placeholder and resolved once STRG is (re-)emitted.
	identities []databin.Identity
}

// Parse reads the STRG chunk: a u32 count, then that many u32 offsets to
// each string's length-prefixed, null-terminated character data, then the
// character data itself.
func Parse(cr *chunk.Reader) (*Pool, error) {
	r, err := cr.MustEnter("STRG")
	if err != nil {
		return nil, err
	}

	count := r.ReadSimpleListCount(4, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "STRG", -1, "count")
	}

	offsets := make([]uint32, count)
	for i := range offsets {
		offsets[i] = r.Pointer()
	}
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "STRG", -1, "offsets")
	}

	p := &Pool{
		Strings:    make([]string, count),
		occurrence: databin.NewOccurrenceMap(count),
	}

	for i, off := range offsets {
		// off points at the length prefix; character data starts 4 bytes
		// later (spec.md §4.2).
		r.SeekTo(int64(off))
		length := r.U32()
		charDataPos := r.Pos()
		raw := r.Bytes(int(length))
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "STRG", int64(off), "string data")
		}
		// Expect (and consume) the trailing NUL.
		nul := r.U8()
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "STRG", r.Pos(), "string terminator")
		}
		if nul != 0 {
			return nil, gmerr.Wrap(gmerr.CorruptStructure, "STRG", r.Pos()-1, "missing NUL terminator")
		}

		p.Strings[i] = string(raw)
		p.occurrence.Put(uint32(charDataPos), i)
	}

	if err := r.Err(); err != nil {
		return nil, gmerr.Wrap(err, "STRG", -1, "")
	}
	return p, nil
}

// Resolve looks up the pool index for a string reference's on-wire byte
// offset. A miss is gmerr.UnknownStringReference (spec.md §4.2). Offset 0
// means null/absent and is reported as (0, false, nil).
func (p *Pool) Resolve(offset uint32) (idx int, present bool, err error) {
	if offset == 0 {
		return 0, false, nil
	}
	idx, ok := p.occurrence.Lookup(offset)
	if !ok {
		return 0, false, gmerr.Wrap(gmerr.UnknownStringReference, "STRG", int64(offset), "")
	}
	return idx, true, nil
}

// Index looks up (or adds) a string, returning its pool index. Used when
// building a modified tree between parse and emit.
func (p *Pool) Index(s string) int {
	for i, existing := range p.Strings {
		if existing == s {
			return i
		}
	}
	p.Strings = append(p.Strings, s)
	return len(p.Strings) - 1
}

// IdentityFor returns the placeholder Identity to use when some other chunk
// wants to defer-reference the string at idx; callers obtain it via
// IdentityFor before emitting the referencing field, then call Emit for
// STRG itself (order doesn't matter: Writer.Resolve/Placeholder only
// require that both happen before Writer.Finish).
func (p *Pool) IdentityFor(w *databin.Writer, idx int) databin.Identity {
	if p.identities == nil {
		p.identities = make([]databin.Identity, len(p.Strings))
	}
	if p.identities[idx] == 0 {
		p.identities[idx] = w.NextIdentity()
	}
	return p.identities[idx]
}

// Emit writes the STRG chunk: count, then a pointer-list of offsets (each a
// placeholder resolved at the corresponding string's length prefix), then
// every string's length-prefixed, NUL-terminated bytes. The Identity from
// IdentityFor resolves at the character data, 4 bytes past the prefix.
func (p *Pool) Emit(w *databin.Writer) error {
	w.WriteListCount(len(p.Strings))
	entryIDs := make([]databin.Identity, len(p.Strings))
	for i := range p.Strings {
		entryIDs[i] = w.NextIdentity()
		w.Placeholder(entryIDs[i])
	}
	for i, s := range p.Strings {
		id := p.IdentityFor(w, i)
		w.Resolve(entryIDs[i])
		w.U32(uint32(len(s)))
		w.Resolve(id) // character data starts immediately after the length prefix.
		w.RawBytes([]byte(s))
		w.U8(0)
	}
	return nil
}
