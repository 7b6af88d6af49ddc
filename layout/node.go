// Package layout turns a declarative element tree into a LayoutNode
// column: offsets, sizes, text runs broken into glyph child nodes, and
// content centering (ground: original_source/dakota/src/layout/mod.rs).
package layout

import (
	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
)

// Node is one element's resolved layout: its offset and size in parent
// coordinates, whether that offset came from the document or was computed
// by tiling, an optional glyph this node represents, and its children in
// draw order (ground: mod.rs's LayoutNode).
type Node struct {
	GlyphID          uint16
	HasGlyph         bool
	OffsetSpecified  bool
	Offset           dom.Offset[int32]
	Size             dom.Size[int32]
	Children         []ecs.Entity
}

func newNode(offset dom.Offset[int32], size dom.Size[int32]) Node {
	return Node{Offset: offset, Size: size}
}

func glyphNode(glyphID uint16, offset dom.Offset[int32], size dom.Size[int32]) Node {
	n := newNode(offset, size)
	n.GlyphID = glyphID
	n.HasGlyph = true
	return n
}

func (n *Node) addChild(e ecs.Entity) {
	n.Children = append(n.Children, e)
}

// Space is the space available to an element while it is being sized
// (ground: mod.rs's LayoutSpace).
type Space struct {
	AvailWidth, AvailHeight int32
}

// tileInfo tracks the left-to-right, wrap-below tiling cursor while
// children are being placed within their parent (ground: mod.rs's
// TileInfo).
type tileInfo struct {
	lastX, lastY, greatestY uint32
}
