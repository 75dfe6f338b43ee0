// Package timeline implements the TMLN chunk: named timelines, each a
// sequence of (step, event) moments sharing the same inline
// subtype/actions event layout as an OBJT event slot.
package timeline

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/object"
	"github.com/modgm/gmdata/strg"
)

// Moment is one (step, event) pair within a timeline.
type Moment struct {
	Step  uint32
	Event object.EventSubtype
}

// Timeline is one TMLN chunk entry.
type Timeline struct {
	Name    int
	Moments []Moment
}

// Timelines is the parsed TMLN chunk.
type Timelines struct {
	Exists bool
	List   []*Timeline

	identities []databin.Identity
}

// Parse reads the TMLN chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool) (*Timelines, error) {
	d, ok := cr.Descriptor("TMLN")
	if !ok {
		return &Timelines{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("TMLN"); err != nil {
			return nil, err
		}
		return &Timelines{Exists: true}, nil
	}

	r, err := cr.MustEnter("TMLN")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "TMLN", -1, "offsets")
	}

	list := make([]*Timeline, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		t, err := parseTimeline(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "TMLN: timeline #%d", i)
		}
		list[i] = t
	}
	return &Timelines{Exists: true, List: list}, nil
}

func parseTimeline(r *databin.Reader, pool *strg.Pool) (*Timeline, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "TMLN", r.Pos(), "name")
	}

	count := r.ReadSimpleListCount(8, databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	steps := make([]uint32, count)
	eventPtrs := make([]uint32, count)
	for i := 0; i < count; i++ {
		steps[i] = r.U32()
		eventPtrs[i] = r.U32()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	moments := make([]Moment, count)
	for i := 0; i < count; i++ {
		r.SeekTo(int64(eventPtrs[i]))
		ev, err := object.ParseEventSubtype(r)
		if err != nil {
			return nil, gmerr.Atf(err, "TMLN: moment #%d event", i)
		}
		moments[i] = Moment{Step: steps[i], Event: ev}
	}

	return &Timeline{Name: name, Moments: moments}, nil
}

// Emit writes the TMLN chunk back to w.
func (ts *Timelines) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !ts.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ts.List))
	for i := range ts.List {
		ids[i] = w.NextIdentity()
	}
	ts.identities = ids

	w.WriteListCount(len(ts.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, t := range ts.List {
		w.Resolve(ids[i])
		emitTimeline(w, pool, t)
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th timeline, for chunks
// (rooms, objects) that reference a timeline by resource index.
func (ts *Timelines) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(ts.identities) {
		return 0
	}
	return ts.identities[i]
}

func emitTimeline(w *databin.Writer, pool *strg.Pool, t *Timeline) {
	w.Placeholder(pool.IdentityFor(w, t.Name))
	w.WriteListCount(len(t.Moments))

	eventIDs := make([]databin.Identity, len(t.Moments))
	for i, m := range t.Moments {
		eventIDs[i] = w.NextIdentity()
		w.U32(m.Step)
		w.Placeholder(eventIDs[i])
	}
	for i, m := range t.Moments {
		w.Resolve(eventIDs[i])
		object.EmitEventSubtype(w, m.Event)
	}
}
