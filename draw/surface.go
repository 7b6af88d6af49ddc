// Package draw walks a LayoutNode tree and turns it into pipeline draw
// calls: one surface per visible node, clipped to whichever viewport
// ancestor it falls under (ground:
// original_source/dakota/src/render/mod.rs).
package draw

import "github.com/NOT-REAL-GAMES/dakota/dom"

// Rect is an axis-aligned pixel rectangle in surface coordinates.
type Rect struct {
	X, Y, Width, Height int32
}

// Surface is everything one draw call needs: where to draw, and what to
// fill it with (ground: thundr's th::Surface, restricted to the
// image-or-color content this pipeline supports).
type Surface struct {
	Rect     Rect
	HasImage bool
	ImageID  uint32
	UseColor bool
	Color    dom.Color
}
