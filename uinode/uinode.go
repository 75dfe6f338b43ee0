// Package uinode implements the UILR chunk: the GameMaker UI runtime's
// node tree (layers, flex panels, and placed-instance leaves wrapping the
// same game-object/sprite/sequence/text-item instance shapes a room's
// Assets layer uses), plus the flex-layout value types shared by layer
// and panel nodes.
package uinode

import (
	"github.com/modgm/gmdata/chunk"
	"github.com/modgm/gmdata/databin"
	"github.com/modgm/gmdata/gmerr"
	"github.com/modgm/gmdata/room"
	"github.com/modgm/gmdata/strg"
	"github.com/modgm/gmdata/version"
)

// NodeType identifies which concrete payload a Node carries.
type NodeType int32

const (
	TypeLayer            NodeType = 0
	TypeFlexPanel        NodeType = 1
	TypeGameObject       NodeType = 3
	TypeSequenceInstance NodeType = 4
	TypeSpriteInstance   NodeType = 5
	TypeTextItemInstance NodeType = 6
	TypeEffectLayer      NodeType = 7
)

func isContainer(t NodeType) bool {
	return t == TypeLayer || t == TypeFlexPanel
}

// DrawSpace is a UI layer's coordinate space.
type DrawSpace int32

const (
	DrawSpaceGUI  DrawSpace = 1
	DrawSpaceView DrawSpace = 2
)

// Layer is a plain container node with no layout behavior of its own.
type Layer struct {
	Name      int
	DrawSpace DrawSpace
	Visible   bool
}

// FlexValueUnit is the unit a FlexValue's numeric value is expressed in.
type FlexValueUnit int32

const (
	FlexUndefined FlexValueUnit = 0
	FlexPoint     FlexValueUnit = 1
	FlexPercent   FlexValueUnit = 2
	FlexAuto      FlexValueUnit = 3
)

// FlexValue is a single flexbox-style dimension (a number plus its unit).
type FlexValue struct {
	Value float32
	Unit  FlexValueUnit
}

func parseFlexValue(r *databin.Reader) (FlexValue, error) {
	v := FlexValue{Value: r.F32()}
	unit := r.S32()
	if r.Err() != nil {
		return FlexValue{}, r.Err()
	}
	if unit < int32(FlexUndefined) || unit > int32(FlexAuto) {
		return FlexValue{}, gmerr.Wrap(gmerr.InvalidEnum, "UILR", r.Pos(), "flex value unit")
	}
	v.Unit = FlexValueUnit(unit)
	return v, nil
}

func emitFlexValue(w *databin.Writer, v FlexValue) {
	w.F32(v.Value)
	w.S32(int32(v.Unit))
}

// Alignment is a flexbox-style cross/main-axis alignment kind, reused for
// align_items, align_content, and align_self.
type Alignment int32

const (
	AlignAuto         Alignment = 0
	AlignFlexStart    Alignment = 1
	AlignCenter       Alignment = 2
	AlignFlexEnd      Alignment = 3
	AlignStretch      Alignment = 4
	AlignBaseline     Alignment = 5
	AlignSpaceBetween Alignment = 6
	AlignSpaceAround  Alignment = 7
	AlignSpaceEvenly  Alignment = 8
)

// FlexDirection is a flex panel's main-axis direction.
type FlexDirection int32

const (
	FlexColumn        FlexDirection = 0
	FlexColumnReverse FlexDirection = 1
	FlexRow           FlexDirection = 2
	FlexRowReverse    FlexDirection = 3
)

// FlexWrap is a flex panel's line-wrapping behavior.
type FlexWrap int32

const (
	WrapNone    FlexWrap = 0
	Wrap        FlexWrap = 1
	WrapReverse FlexWrap = 2
)

// Justify is a flex panel's main-axis content justification.
type Justify int32

const (
	JustifyFlexStart    Justify = 0
	JustifyCenter       Justify = 1
	JustifyFlexEnd      Justify = 2
	JustifySpaceBetween Justify = 3
	JustifySpaceAround  Justify = 4
	JustifySpaceEvenly  Justify = 5
)

// LayoutDirection is a flex panel's text/layout direction.
type LayoutDirection int32

const (
	LayoutInherit LayoutDirection = 0
	LayoutLTR     LayoutDirection = 1
	LayoutRTL     LayoutDirection = 2
)

// FlexPosition is a flex panel's CSS-style position scheme.
type FlexPosition int32

const (
	PositionStatic   FlexPosition = 0
	PositionRelative FlexPosition = 1
	PositionAbsolute FlexPosition = 2
)

// FlexProperties holds a flex panel's container-level layout parameters.
type FlexProperties struct {
	AlignItems      Alignment
	Direction       FlexDirection
	Wrap            FlexWrap
	AlignContent    Alignment
	GapRow, GapCol  float32
	PaddingLeft     FlexValue
	PaddingRight    FlexValue
	PaddingTop      FlexValue
	PaddingBottom   FlexValue
	Justify         Justify
	LayoutDirection LayoutDirection
}

func parseFlexProperties(r *databin.Reader) (FlexProperties, error) {
	p := FlexProperties{
		AlignItems:   Alignment(r.S32()),
		Direction:    FlexDirection(r.S32()),
		Wrap:         FlexWrap(r.S32()),
		AlignContent: Alignment(r.S32()),
	}
	p.GapRow = r.F32()
	p.GapCol = r.F32()
	var err error
	if p.PaddingLeft, err = parseFlexValue(r); err != nil {
		return FlexProperties{}, err
	}
	if p.PaddingRight, err = parseFlexValue(r); err != nil {
		return FlexProperties{}, err
	}
	if p.PaddingTop, err = parseFlexValue(r); err != nil {
		return FlexProperties{}, err
	}
	if p.PaddingBottom, err = parseFlexValue(r); err != nil {
		return FlexProperties{}, err
	}
	p.Justify = Justify(r.S32())
	p.LayoutDirection = LayoutDirection(r.S32())
	if r.Err() != nil {
		return FlexProperties{}, r.Err()
	}
	return p, nil
}

func emitFlexProperties(w *databin.Writer, p FlexProperties) {
	w.S32(int32(p.AlignItems))
	w.S32(int32(p.Direction))
	w.S32(int32(p.Wrap))
	w.S32(int32(p.AlignContent))
	w.F32(p.GapRow)
	w.F32(p.GapCol)
	emitFlexValue(w, p.PaddingLeft)
	emitFlexValue(w, p.PaddingRight)
	emitFlexValue(w, p.PaddingTop)
	emitFlexValue(w, p.PaddingBottom)
	w.S32(int32(p.Justify))
	w.S32(int32(p.LayoutDirection))
}

// FlexPanel is a container node with full flexbox-style layout
// parameters.
type FlexPanel struct {
	Name                                             int
	Width, Height                                    FlexValue
	MinWidth, MinHeight                              FlexValue
	MaxWidth, MaxHeight                              FlexValue
	OffsetLeft, OffsetRight, OffsetTop, OffsetBottom FlexValue
	ClipsContents                                    bool
	PositionType                                     FlexPosition
	AlignSelf                                        Alignment
	MarginLeft, MarginRight, MarginTop, MarginBottom FlexValue
	FlexGrow, FlexShrink                             float32
	Properties                                       FlexProperties
}

// FlexInstanceProperties are the common placement parameters shared by
// every leaf node that wraps a placed instance.
type FlexInstanceProperties struct {
	Visible         bool
	Anchor          int32
	StretchWidth    bool
	StretchHeight   bool
	TileH, TileV    bool
	KeepAspectRatio bool
}

func parseFlexInstanceProperties(r *databin.Reader) (FlexInstanceProperties, error) {
	p := FlexInstanceProperties{
		Visible: r.Bool32(),
		Anchor:  r.S32(),
	}
	p.StretchWidth = r.Bool32()
	p.StretchHeight = r.Bool32()
	p.TileH = r.Bool32()
	p.TileV = r.Bool32()
	p.KeepAspectRatio = r.Bool32()
	if r.Err() != nil {
		return FlexInstanceProperties{}, r.Err()
	}
	return p, nil
}

func emitFlexInstanceProperties(w *databin.Writer, p FlexInstanceProperties) {
	w.Bool32(p.Visible)
	w.S32(p.Anchor)
	w.Bool32(p.StretchWidth)
	w.Bool32(p.StretchHeight)
	w.Bool32(p.TileH)
	w.Bool32(p.TileV)
	w.Bool32(p.KeepAspectRatio)
}

// GameObjectNode wraps a placed room game object for display in the UI
// tree.
type GameObjectNode struct {
	Instance   FlexInstanceProperties
	GameObject *room.GameObject
}

// SequenceInstanceNode wraps a placed sequence instance.
type SequenceInstanceNode struct {
	Instance FlexInstanceProperties
	Sequence *room.SequenceInstance
}

// SpriteInstanceNode wraps a placed sprite instance.
type SpriteInstanceNode struct {
	Instance FlexInstanceProperties
	Sprite   *room.SpriteInstance
}

// TextItemInstanceNode wraps a placed text item instance.
type TextItemInstanceNode struct {
	Instance FlexInstanceProperties
	TextItem *room.TextItemInstance
}

// EffectLayer is a leaf node applying a named shader effect with a list
// of uniform-like properties.
type EffectLayer struct {
	Enabled    bool
	EffectType int
	Properties []room.LayerEffectProperty
}

// Node is one entry in the UI node tree: a typed payload plus, for
// container types (Layer, FlexPanel), its child nodes.
type Node struct {
	Type NodeType

	Layer            *Layer
	FlexPanel        *FlexPanel
	GameObject       *GameObjectNode
	SequenceInstance *SequenceInstanceNode
	SpriteInstance   *SpriteInstanceNode
	TextItemInstance *TextItemInstanceNode
	EffectLayer      *EffectLayer

	Children []*Node
}

// Nodes is the parsed UILR chunk: the UI tree's root nodes.
type Nodes struct {
	Exists bool
	List   []*Node
}

// Parse reads the UILR chunk.
func Parse(cr *chunk.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8) (*Nodes, error) {
	d, ok := cr.Descriptor("UILR")
	if !ok {
		return &Nodes{}, nil
	}
	if d.End == d.Start {
		if _, err := cr.MustEnter("UILR"); err != nil {
			return nil, err
		}
		return &Nodes{Exists: true}, nil
	}

	r, err := cr.MustEnter("UILR")
	if err != nil {
		return nil, err
	}

	offsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
	if r.Err() != nil {
		return nil, gmerr.Wrap(r.Err(), "UILR", -1, "offsets")
	}

	list := make([]*Node, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		n, err := parseNode(r, pool, target, bytecodeVersion)
		if err != nil {
			return nil, gmerr.Atf(err, "UILR: root node #%d", i)
		}
		list[i] = n
	}
	return &Nodes{Exists: true, List: list}, nil
}

func parseNode(r *databin.Reader, pool *strg.Pool, target version.Version, bytecodeVersion uint8) (*Node, error) {
	typeID := r.S32()
	dataPtr := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	n := &Node{Type: NodeType(typeID)}

	if isContainer(n.Type) {
		childOffsets := r.PointerListOffsets(databin.MaxSimpleListBytes)
		if r.Err() != nil {
			return nil, r.Err()
		}
		n.Children = make([]*Node, len(childOffsets))
		for i, off := range childOffsets {
			r.SeekTo(int64(off))
			child, err := parseNode(r, pool, target, bytecodeVersion)
			if err != nil {
				return nil, gmerr.Atf(err, "UILR: child #%d", i)
			}
			n.Children[i] = child
		}
	} else {
		alwaysZero := r.S32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if alwaysZero != 0 {
			return nil, gmerr.Atf(gmerr.CorruptStructure, "UILR: non-container node expected zero child count, got %d", alwaysZero)
		}
	}

	r.SeekTo(int64(dataPtr))

	var err error
	switch n.Type {
	case TypeLayer:
		n.Layer, err = parseLayer(r, pool)
	case TypeFlexPanel:
		n.FlexPanel, err = parseFlexPanel(r, pool)
	case TypeGameObject:
		n.GameObject, err = parseGameObjectNode(r, target, bytecodeVersion)
	case TypeSequenceInstance:
		n.SequenceInstance, err = parseSequenceInstanceNode(r, pool)
	case TypeSpriteInstance:
		n.SpriteInstance, err = parseSpriteInstanceNode(r, pool)
	case TypeTextItemInstance:
		n.TextItemInstance, err = parseTextItemInstanceNode(r, pool)
	case TypeEffectLayer:
		n.EffectLayer, err = parseEffectLayer(r, pool)
	default:
		return nil, gmerr.Atf(gmerr.InvalidEnum, "UILR: unknown node type %d", typeID)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func parseLayer(r *databin.Reader, pool *strg.Pool) (*Layer, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "UILR", r.Pos(), "layer name")
	}
	drawSpace := r.S32()
	visible := r.Bool32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if drawSpace != int32(DrawSpaceGUI) && drawSpace != int32(DrawSpaceView) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "UILR", r.Pos(), "layer draw space")
	}
	return &Layer{Name: name, DrawSpace: DrawSpace(drawSpace), Visible: visible}, nil
}

func parseFlexPanel(r *databin.Reader, pool *strg.Pool) (*FlexPanel, error) {
	nameOff := r.StringRef()
	name, _, err := pool.Resolve(nameOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "UILR", r.Pos(), "flex panel name")
	}
	p := &FlexPanel{Name: name}

	fields := []*FlexValue{
		&p.Width, &p.Height, &p.MinWidth, &p.MinHeight, &p.MaxWidth, &p.MaxHeight,
		&p.OffsetLeft, &p.OffsetRight, &p.OffsetTop, &p.OffsetBottom,
	}
	for _, f := range fields {
		*f, err = parseFlexValue(r)
		if err != nil {
			return nil, err
		}
	}

	p.ClipsContents = r.Bool32()
	positionType := r.S32()
	alignSelf := r.S32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if positionType < int32(PositionStatic) || positionType > int32(PositionAbsolute) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "UILR", r.Pos(), "flex panel position type")
	}
	p.PositionType = FlexPosition(positionType)
	if alignSelf < int32(AlignAuto) || alignSelf > int32(AlignSpaceEvenly) {
		return nil, gmerr.Wrap(gmerr.InvalidEnum, "UILR", r.Pos(), "flex panel align self")
	}
	p.AlignSelf = Alignment(alignSelf)

	marginFields := []*FlexValue{&p.MarginLeft, &p.MarginRight, &p.MarginTop, &p.MarginBottom}
	for _, f := range marginFields {
		*f, err = parseFlexValue(r)
		if err != nil {
			return nil, err
		}
	}

	p.FlexGrow = r.F32()
	p.FlexShrink = r.F32()
	if r.Err() != nil {
		return nil, r.Err()
	}

	p.Properties, err = parseFlexProperties(r)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseGameObjectNode(r *databin.Reader, target version.Version, bytecodeVersion uint8) (*GameObjectNode, error) {
	g, err := room.ParseGameObject(r, target, bytecodeVersion)
	if err != nil {
		return nil, gmerr.Atf(err, "UILR: game object")
	}
	instance, err := parseFlexInstanceProperties(r)
	if err != nil {
		return nil, err
	}
	return &GameObjectNode{Instance: instance, GameObject: g}, nil
}

func parseSequenceInstanceNode(r *databin.Reader, pool *strg.Pool) (*SequenceInstanceNode, error) {
	s, err := room.ParseSequenceInstance(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "UILR: sequence instance")
	}
	instance, err := parseFlexInstanceProperties(r)
	if err != nil {
		return nil, err
	}
	return &SequenceInstanceNode{Instance: instance, Sequence: s}, nil
}

func parseSpriteInstanceNode(r *databin.Reader, pool *strg.Pool) (*SpriteInstanceNode, error) {
	s, err := room.ParseSpriteInstance(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "UILR: sprite instance")
	}
	instance, err := parseFlexInstanceProperties(r)
	if err != nil {
		return nil, err
	}
	return &SpriteInstanceNode{Instance: instance, Sprite: s}, nil
}

func parseTextItemInstanceNode(r *databin.Reader, pool *strg.Pool) (*TextItemInstanceNode, error) {
	t, err := room.ParseTextItemInstance(r, pool)
	if err != nil {
		return nil, gmerr.Atf(err, "UILR: text item instance")
	}
	instance, err := parseFlexInstanceProperties(r)
	if err != nil {
		return nil, err
	}
	return &TextItemInstanceNode{Instance: instance, TextItem: t}, nil
}

func parseEffectLayer(r *databin.Reader, pool *strg.Pool) (*EffectLayer, error) {
	enabled := r.Bool32()
	effectOff := r.StringRef()
	effectType, _, err := pool.Resolve(effectOff)
	if err != nil {
		return nil, gmerr.Wrap(err, "UILR", r.Pos(), "effect type")
	}
	offsets := r.PointerListOffsets(databin.MaxShortSimpleListBytes)
	if r.Err() != nil {
		return nil, r.Err()
	}
	props := make([]room.LayerEffectProperty, len(offsets))
	for i, off := range offsets {
		r.SeekTo(int64(off))
		p, err := room.ParseLayerEffectProperty(r, pool)
		if err != nil {
			return nil, gmerr.Atf(err, "UILR: effect property #%d", i)
		}
		props[i] = p
	}
	return &EffectLayer{Enabled: enabled, EffectType: effectType, Properties: props}, nil
}

// Emit writes the UILR chunk back to w.
func (ns *Nodes) Emit(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8) error {
	if !ns.Exists {
		return nil
	}
	ids := make([]databin.Identity, len(ns.List))
	for i := range ns.List {
		ids[i] = w.NextIdentity()
	}

	w.WriteListCount(len(ns.List))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, n := range ns.List {
		w.Resolve(ids[i])
		if err := emitNode(w, pool, target, bytecodeVersion, n); err != nil {
			return gmerr.Atf(err, "root node #%d", i)
		}
	}
	return w.Err()
}

func emitNode(w *databin.Writer, pool *strg.Pool, target version.Version, bytecodeVersion uint8, n *Node) error {
	w.S32(int32(n.Type))
	dataID := w.NextIdentity()
	w.Placeholder(dataID)

	if isContainer(n.Type) {
		childIDs := make([]databin.Identity, len(n.Children))
		for i := range n.Children {
			childIDs[i] = w.NextIdentity()
		}
		w.WriteListCount(len(n.Children))
		for _, id := range childIDs {
			w.Placeholder(id)
		}
		for i, child := range n.Children {
			w.Resolve(childIDs[i])
			if err := emitNode(w, pool, target, bytecodeVersion, child); err != nil {
				return gmerr.Atf(err, "child #%d", i)
			}
		}
	} else {
		if len(n.Children) != 0 {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: non-container node type %d has %d children", n.Type, len(n.Children))
		}
		w.S32(0)
	}

	w.Resolve(dataID)
	switch n.Type {
	case TypeLayer:
		if n.Layer == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: layer node missing data")
		}
		emitLayer(w, pool, n.Layer)
	case TypeFlexPanel:
		if n.FlexPanel == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: flex panel node missing data")
		}
		emitFlexPanel(w, pool, n.FlexPanel)
	case TypeGameObject:
		if n.GameObject == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: game object node missing data")
		}
		room.EmitGameObject(w, target, bytecodeVersion, n.GameObject.GameObject)
		emitFlexInstanceProperties(w, n.GameObject.Instance)
	case TypeSequenceInstance:
		if n.SequenceInstance == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: sequence instance node missing data")
		}
		room.EmitSequenceInstance(w, pool, n.SequenceInstance.Sequence)
		emitFlexInstanceProperties(w, n.SequenceInstance.Instance)
	case TypeSpriteInstance:
		if n.SpriteInstance == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: sprite instance node missing data")
		}
		room.EmitSpriteInstance(w, pool, n.SpriteInstance.Sprite)
		emitFlexInstanceProperties(w, n.SpriteInstance.Instance)
	case TypeTextItemInstance:
		if n.TextItemInstance == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: text item instance node missing data")
		}
		room.EmitTextItemInstance(w, pool, n.TextItemInstance.TextItem)
		emitFlexInstanceProperties(w, n.TextItemInstance.Instance)
	case TypeEffectLayer:
		if n.EffectLayer == nil {
			return gmerr.Atf(gmerr.CorruptStructure, "UILR: effect layer node missing data")
		}
		emitEffectLayer(w, pool, n.EffectLayer)
	default:
		return gmerr.Atf(gmerr.InvalidEnum, "UILR: unknown node type %d", n.Type)
	}
	return w.Err()
}

func emitLayer(w *databin.Writer, pool *strg.Pool, l *Layer) {
	w.Placeholder(pool.IdentityFor(w, l.Name))
	w.S32(int32(l.DrawSpace))
	w.Bool32(l.Visible)
}

func emitFlexPanel(w *databin.Writer, pool *strg.Pool, p *FlexPanel) {
	w.Placeholder(pool.IdentityFor(w, p.Name))
	for _, f := range []FlexValue{p.Width, p.Height, p.MinWidth, p.MinHeight, p.MaxWidth, p.MaxHeight,
		p.OffsetLeft, p.OffsetRight, p.OffsetTop, p.OffsetBottom} {
		emitFlexValue(w, f)
	}
	w.Bool32(p.ClipsContents)
	w.S32(int32(p.PositionType))
	w.S32(int32(p.AlignSelf))
	for _, f := range []FlexValue{p.MarginLeft, p.MarginRight, p.MarginTop, p.MarginBottom} {
		emitFlexValue(w, f)
	}
	w.F32(p.FlexGrow)
	w.F32(p.FlexShrink)
	emitFlexProperties(w, p.Properties)
}

func emitEffectLayer(w *databin.Writer, pool *strg.Pool, e *EffectLayer) {
	w.Bool32(e.Enabled)
	w.Placeholder(pool.IdentityFor(w, e.EffectType))
	ids := make([]databin.Identity, len(e.Properties))
	for i := range e.Properties {
		ids[i] = w.NextIdentity()
	}
	w.WriteListCount(len(e.Properties))
	for _, id := range ids {
		w.Placeholder(id)
	}
	for i, p := range e.Properties {
		w.Resolve(ids[i])
		room.EmitLayerEffectProperty(w, pool, p)
	}
}
