// Package object implements the OBJT chunk: GameMaker game-object
// definitions (sprite/visibility/collision flags, optional physics body,
// and the per-event action code hooked onto the object).
//
// No original_source file documents OBJT directly (absent from the
// retrieval pack, same gap as path); this codec is built at the "simple
// list of typed records" depth the pack gives similarly undocumented
// chunks, following the well-known GameMaker data.win OBJT layout: a
// header of resource refs and flags, an optional physics block, then a
// fixed 12-slot event list where each slot holds a variable number of
// subtype entries, each pointing at zero or more CODE entries.
package object

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/strg"
)

// eventTypeCount is the fixed number of event-type slots GameMaker assigns
// a game object (Create, Destroy, Alarm, Step, Collision, Keyboard, Mouse,
// Other, Draw, KeyPress, KeyRelease, Trigger).
const eventTypeCount = 12

// PhysicsVertex is one point of an object's custom collision shape.
type PhysicsVertex struct {
	X, Y float32
}

// Physics holds an object's optional Box2D-style physics body parameters.
type Physics struct {
	Density        float32
	Restitution    float32
	Group          int32
	LinearDamping  float32
	AngularDamping float32
	Friction       float32
	Awake          bool
	Kinematic      bool
	Vertices       []PhysicsVertex
}

// EventAction is one action attached to an event subtype; in practice this
// is almost always exactly one CODE reference.
type EventAction struct {
	Code int32 // -1 = absent
}

// EventSubtype is one (subtype, actions) pair within an event-type slot
// (e.g. a specific alarm index, a specific collided-with object).
type EventSubtype struct {
	Subtype int32
	Actions []EventAction
}

// Object is one OBJT chunk entry.
type Object struct {
	Name           int
	Sprite         int32 // -1 = absent
	Visible        bool
	Managed        bool
	Solid          bool
	Depth          int32
	Persistent     bool
	ParentObject   int32 // -1 = absent
	TextureMask    int32 // -1 = absent
	UsesPhysics    bool
	IsSensor       bool
	CollisionShape int32
	Physics        *Physics
	UsesSpriteMask bool
	Events         [eventTypeCount][]EventSubtype
}

// Objects is the parsed OBJT chunk.
type Objects struct {
	Exists bool
	List   []*Object

	identities []databin.Identity
}

// Parse reads the OBJT chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool) (*Objects, error) {
	d, ok := cr.Descriptor("OBJT")
	if !ok {
		return &Objects{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("OBJT"); err != nil {
			return nil, err
		}
		return &Objects{Exists: true}, nil
	}

	r, err := cr.MustEnter("OBJT")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "OBJT", -1, "offsets")
	}

	list := make([]*Object, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		o, err := parseObject(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "OBJT: object #%d", i)
		}
		list[i] = o
	}

	return &Objects{Exists: true, List: list}, nil
}

func resolveOptionalRef(r *databin.Reader) int32 {
	idx, ok := r.OptionalRef()
	if !ok {
		return -1
	}
	return idx
}

func writeOptionalRef(w *databin.Writer, idx int32) {
	if idx < 0 {
		w.S32(-1)
		return
	}
	w.U32(uint32(idx))
}

func parseObject(r *databin.Reader, pool *strg.Pool) (*Object, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "OBJT", r.Pos(), "name")
	}

	o := &Object{Name: name}
	o.Sprite = resolveOptionalRef(r)
	o.Visible = r.Bool32()
	o.Managed = r.Bool32()
	o.Solid = r.Bool32()
	o.Depth = r.S32()
	o.Persistent = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	o.ParentObject = resolveOptionalRef(r)
	o.TextureMask = resolveOptionalRef(r)
	o.UsesPhysics = r.Bool32()
	o.IsSensor = r.Bool32()
	o.CollisionShape = r.S32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	if o.UsesPhysics {
		phys, err := parsePhysics(r)
		if err != nil {
			return nil, gmerr.Atf(err, "OBJT: physics")
		}
		o.Physics = phys
	}

	o.UsesSpriteMask = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	for slot := 0; slot < eventTypeCount; slot++ {
		subtypeOffsets := r.PointerListOffsets(databin.MaxShortSimpleListBytes)
		if r.Err() != nil {
			return nil, gmerr.Wrap(r.Err(), "OBJT", r.Pos(), "event slot offsets")
		}
		subtypes := make([]EventSubtype, len(subtypeOffsets))
		for i, off := range subtypeOffsets {
			r.SeekTo(int64(off))
			st, err := parseEventSubtype(r)
			if err != nil {
				return nil, gmerr.Atf(err, "OBJT: event slot %d subtype #%d", slot, i)
			}
			subtypes[i] = st
		}
		o.Events[slot] = subtypes
	}

	return o, nil
}

func parsePhysics(r *databin.Reader) (*Physics, error) {
	p := &Physics{}
	p.Density = r.F32()
	p.Restitution = r.F32()
	p.Group = r.S32()
	p.LinearDamping = r.F32()
	p.AngularDamping = r.F32()
	count := r.S32()
	p.Friction = r.F32()
	p.Awake = r.Bool32()
	p.Kinematic = r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if count < 0 || int64(count)*8 > databin.MaxShortSimpleListBytes {
		return nil, gmerr.Wrap(gmerr.Failsafe, "OBJT", r.Pos(), "physics vertex count")
	}
	p.Vertices = make([]PhysicsVertex, count)
	for i := range p.Vertices {
		p.Vertices[i].X = r.F32()
		p.Vertices[i].Y = r.F32()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return p, nil
}

// ParseEventSubtype reads one (subtype, actions) pair using the OBJT
// event-slot wire layout. Exported so other chunks that embed a
// game-object event inline (TMLN timeline moments) can reuse it instead
// of duplicating the layout.
func ParseEventSubtype(r *databin.Reader) (EventSubtype, error) {
	return parseEventSubtype(r)
}

// EmitEventSubtype writes one (subtype, actions) pair using the OBJT
// event-slot wire layout. See ParseEventSubtype.
func EmitEventSubtype(w *databin.Writer, st EventSubtype) {
	emitEventSubtype(w, st)
}

func parseEventSubtype(r *databin.Reader) (EventSubtype, error) {
	st := EventSubtype{Subtype: r.S32()}
	if r.Err() != nil {
		return EventSubtype{}, r.Err()
	}
	actionOffsets := r.PointerListOffsets(databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return EventSubtype{}, r.Err()
	}
	st.Actions = make([]EventAction, len(actionOffsets))
	for i, off := range actionOffsets {
		r.SeekTo(int64(off))
		st.Actions[i] = EventAction{Code: resolveOptionalRef(r)}
		if r.Err() != nil {
			return EventSubtype{}, r.Err()
		}
	}
	return st, nil
}

// Emit writes the OBJT chunk back to w.
func (objs *Objects) Emit(w *databin.Writer, pool *strg.Pool) error {
	if !objs.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(objs.List))
	for i := range objs.List {
		ids[i] = w.NextIdentity()
	}
	objs.identities = ids

	w.WriteListCount(len(objs.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, o := range objs.List {
		w.Resolve(ids[i])
		if err := emitObject(w, pool, o); err != nil {
			return gmerr.Atf(err, "object #%d", i)
		}
	}
	return w.Err()
}

// IdentityFor returns the identity of the i'th object, for chunks (rooms,
// code) that reference an object by resource index.
func (objs *Objects) IdentityFor(w *databin.Writer, i int) databin.Identity {
	if i < 0 || i >= len(objs.identities) {
		return 0
	}
	return objs.identities[i]
}

func emitObject(w *databin.Writer, pool *strg.Pool, o *Object) error {
	w.Placeholder(pool.IdentityFor(w, o.Name))
	writeOptionalRef(w, o.Sprite)
	w.Bool32(o.Visible)
	w.Bool32(o.Managed)
	w.Bool32(o.Solid)
	w.S32(o.Depth)
	w.Bool32(o.Persistent)
	writeOptionalRef(w, o.ParentObject)
	writeOptionalRef(w, o.TextureMask)
	w.Bool32(o.UsesPhysics)
	w.Bool32(o.IsSensor)
	w.S32(o.CollisionShape)

	if o.UsesPhysics {
		if o.Physics == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "object marked UsesPhysics but no physics data set")
		}
		emitPhysics(w, o.Physics)
	}

	w.Bool32(o.UsesSpriteMask)

	for slot := 0; slot < eventTypeCount; slot++ {
		subtypes := o.Events[slot]
		ids := make([]databin.Identity, len(subtypes))
		for i := range subtypes {
			ids[i] = w.NextIdentity()
		}
		w.WriteListCount(len(subtypes))
		for _, id := range ids {
			w.Placeholder(id)
		}
		for i, st := range subtypes {
			w.Resolve(ids[i])
			emitEventSubtype(w, st)
		}
	}
	return w.Err()
}

func emitPhysics(w *databin.Writer, p *Physics) {
	w.F32(p.Density)
	w.F32(p.Restitution)
	w.S32(p.Group)
	w.F32(p.LinearDamping)
	w.F32(p.AngularDamping)
	w.S32(int32(len(p.Vertices)))
	w.F32(p.Friction)
	w.Bool32(p.Awake)
	w.Bool32(p.Kinematic)
	for _, v := range p.Vertices {
		w.F32(v.X)
		w.F32(v.Y)
	}
}

func emitEventSubtype(w *databin.Writer, st EventSubtype) {
	w.S32(st.Subtype)
	ids := make([]databin.Identity, len(st.Actions))
	for i := range st.Actions {
		ids[i] = w.NextIdentity()
	}
	w.WriteListCount(len(st.Actions))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, a := range st.Actions {
		w.Resolve(ids[i])
		writeOptionalRef(w, a.Code)
	}
}
