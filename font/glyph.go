package font

import "github.com/NOT-REAL-GAMES/dakota/dom"

// Glyph is the rasterized form of one shaped glyph: its bitmap size, the
// pen-relative offset of its top-left corner, and (if it has visible ink)
// an RGBA bitmap ready for GPU upload. Space and other invisible glyphs
// have HasBitmap false (ground: font.rs's Glyph, whose g_image is None for
// characters with no outline).
type Glyph struct {
	BitmapSize dom.Size[float32]
	BitmapLeft float32
	BitmapTop  float32
	HasBitmap  bool
	Pixels     []byte // tightly packed RGBA, len == width*height*4
}

// Cursor tracks the pen position and line-wrap bounds while laying out one
// run of shaped text (ground: font.rs's Cursor).
type Cursor struct {
	I        int
	X, Y     float32
	Min, Max float32
}

// CachedChar is one shaped glyph's layout-independent metrics, produced
// once per distinct text string and reused across recompiles that don't
// change the text (ground: font.rs's CachedChar).
type CachedChar struct {
	GlyphID       uint16
	CursorAdvance [2]float32
	Offset        [2]float32
}
