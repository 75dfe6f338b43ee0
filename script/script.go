// Package script implements the SCPT chunk: named GML scripts, each
// optionally backed by a CODE entry and flagged as a constructor.
package script

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
)

// constructorBit marks a script's code id as a constructor on the wire:
// GameMaker stores this as the sign bit of the otherwise-plain code id
// rather than a separate flag field.
const constructorBit = 0x80000000

// Script is one SCPT chunk entry.
type Script struct {
	Name          int
	IsConstructor bool
	Code          int32 // -1 = absent
}

// Scripts is the parsed SCPT chunk.
type Scripts struct {
	Exists bool
	List   []*Script

	identities []databin.Identity
}

// Parse reads the SCPT chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool) (*Scripts, error) {
	d, ok := cr.Descriptor("SCPT")
	if !ok {
		return &Scripts{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("SCPT"); err != nil {
			return nil, err
		}
		return &Scripts{Exists: true}, nil
	}

	r, err := cr.MustEnter("SCPT")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "SCPT", -1, "offsets")
	}

	list := make([]*Script, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		s, err := parseScript(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "SCPT: script #%d", i)
		}
		list[i] = s
	}

	return &Scripts{Exists: true, List: list}, nil
}

func parseScript(r *databin.Reader, pool *strg.Pool) (*Script, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "SCPT", r.Pos(), "name")
	}

	codeID := r.S32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	s := &Script{Name: name}
	if codeID < -1 {
		s.IsConstructor = true
		s.Code = int32(uint32(codeID) &^ constructorBit)
	} else if codeID == -1 {
		s.Code = -1
	} else {
		s.Code = codeID
	}

	return s, nil
}

// Emit writes the SCPT chunk back to w.
func (ss *Scripts) Emit(w *databin.Writer, pool *strg.Pool) error {
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
		emitScript(w, pool, s)
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th script, for chunks (code
// instructions, rooms) that reference a script by resource index.
func (ss *Scripts) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ss.identities) {
		return 0
	}
	return ss.identities[i]
}

func emitScript(w *databin.Writer, pool *strg.Pool, s *Script) {
	w.Placeholder(pool.IdentityFor(w, s.Name))
	if s.IsConstructor {
		if s.Code < 0 {
			w.S32(-1)
			return
		}
		w.U32(uint32(s.Code) | constructorBit)
		return
	}
	w.S32(s.Code)
}
