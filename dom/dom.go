// Package dom holds the declarative value types a scene document is built
// from: offsets, sizes, colors, text runs and the constant/relative value
// kind every sizing field accepts (ground: original_source/dakota/src/dom.rs).
package dom

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Value is either an absolute pixel size or a fraction of the available
// space in [0.0, 1.0).
type Value struct {
	relative bool
	constant int32
	fraction float32
}

// Constant builds an absolute-pixel Value.
func Constant(v int32) Value { return Value{constant: v} }

// Relative builds a Value that is a fraction of the available space.
// Panics if frac is outside [0.0, 1.0), matching the teacher's
// RelativeOffset/RelativeSize constructors' assertions.
func Relative(frac float32) Value {
	if frac < 0.0 || frac >= 1.0 {
		panic(fmt.Sprintf("dom: relative value %f out of range [0.0, 1.0)", frac))
	}
	return Value{relative: true, fraction: frac}
}

// IsRelative reports whether this Value was built with Relative.
func (v Value) IsRelative() bool { return v.relative }

// GetValue resolves this Value against the available space in avail.
func (v Value) GetValue(avail int32) int32 {
	if !v.relative {
		return v.constant
	}
	return int32(math32.Round(v.fraction * float32(avail)))
}

// Offset is a 2D position in some numeric unit.
type Offset[T int32 | float32] struct {
	X, Y T
}

// Size is a 2D extent in some numeric unit.
type Size[T int32 | float32] struct {
	Width, Height T
}

// RelativeOffset positions an element by a percentage of its container.
type RelativeOffset struct {
	X, Y float32
}

// Format names the pixel layout of a CPU-side resource buffer passed to
// DefineResourceFromBits (ground: dom.rs's Format).
type Format int

const (
	FormatARGB8888 Format = iota
	FormatXRGB8888
)

// Color is a linear RGBA color used for solid-fill resources.
type Color struct {
	R, G, B, A float32
}

// Font names a face, pixel size, and color for a text run (ground:
// dom.rs's Font record, supplemented per SPEC_FULL.md §3).
type Font struct {
	Face      string
	PixelSize uint32
	Color     Color
}

// TextRunKind distinguishes plain paragraph runs from bold runs.
type TextRunKind int

const (
	TextRunParagraph TextRunKind = iota
	TextRunBold
)

// TextRun is one styled run of text within a Text element.
type TextRun struct {
	Kind  TextRunKind
	Value string

	// cache holds the shaped-glyph sequence produced by font.Instance once
	// laid out; nil until the first layout pass touches this run.
	cache any
}

// Cache returns the cached shaping result, if any.
func (r *TextRun) Cache() any { return r.cache }

// SetCache stores the shaped-glyph sequence for this run.
func (r *TextRun) SetCache(v any) { r.cache = v }

// Text is the `<text>` element payload: an ordered sequence of styled runs.
type Text struct {
	Items []TextRun
}
