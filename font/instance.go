// Package font shapes text with HarfBuzz (via go-text/typesetting) and
// rasterizes the glyphs it needs with golang.org/x/image's TrueType
// outline renderer, caching both the shaping result and the glyph bitmaps
// per font instance (ground: original_source/dakota/src/font.rs).
package font

import (
	"fmt"
	"image"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"

	"github.com/NOT-REAL-GAMES/dakota/dom"
)

// Instance is one typeface at one pixel size, with a harfbuzz shaper for
// layout and a per-glyph-id bitmap cache (ground: font.rs's FontInstance).
type Instance struct {
	data      []byte
	face      font.Face
	outline   *sfnt.Font
	shaper    shaping.HarfbuzzShaper
	pixelSize float32
	color     dom.Color

	glyphs map[uint16]*Glyph
	buf    sfnt.Buffer
}

// New parses fontData as a TrueType/OpenType face and prepares it for
// shaping and rasterization at pixelSize.
func New(fontData []byte, pixelSize uint32, color dom.Color) (*Instance, error) {
	face, err := font.ParseTTF(newReader(fontData))
	if err != nil {
		return nil, fmt.Errorf("font: parse face: %w", err)
	}
	outline, err := sfnt.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("font: parse outlines: %w", err)
	}
	return &Instance{
		data:      fontData,
		face:      face,
		outline:   outline,
		pixelSize: float32(pixelSize),
		color:     color,
		glyphs:    make(map[uint16]*Glyph),
	}, nil
}

// VerticalLineSpacing returns the recommended distance between baselines,
// in pixels, at this instance's size (ground: font.rs's
// get_vertical_line_spacing).
func (inst *Instance) VerticalLineSpacing() float32 {
	metrics, ok := inst.outline.Metrics(&inst.buf, fixed.I(int(inst.pixelSize)), 0)
	if !ok {
		return inst.pixelSize * 1.2
	}
	return float32(metrics.Height) / 64
}

// InitializeCachedChars shapes text with HarfBuzz and returns one
// CachedChar per output glyph, rasterizing any glyph not already in the
// bitmap cache (ground: font.rs's initialize_cached_chars).
func (inst *Instance) InitializeCachedChars(text string) []CachedChar {
	runes := []rune(text)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: 0, // left-to-right
		Face:      inst.face,
		Size:      fixed.I(int(inst.pixelSize)),
		Script:    0, // unset — let HarfBuzz infer from text
		Language:  language.NewLanguage("en"),
	}
	out := inst.shaper.Shape(input)

	chars := make([]CachedChar, 0, len(out.Glyphs))
	for _, g := range out.Glyphs {
		id := uint16(g.GlyphID)
		glyph := inst.ensureGlyph(id)
		chars = append(chars, CachedChar{
			GlyphID:       id,
			CursorAdvance: [2]float32{fixedToFloat(g.XAdvance), fixedToFloat(g.YAdvance)},
			Offset:        [2]float32{fixedToFloat(g.XOffset) + glyph.BitmapLeft, fixedToFloat(g.YOffset) - glyph.BitmapTop},
		})
	}
	return chars
}

func fixedToFloat(v fixed.Int26_6) float32 { return float32(v) / 64 }

// ensureGlyph rasterizes glyph id into the bitmap cache if not already
// present (ground: font.rs's ensure_glyph_exists/create_glyph).
func (inst *Instance) ensureGlyph(id uint16) *Glyph {
	if g, ok := inst.glyphs[id]; ok {
		return g
	}
	g := inst.rasterizeGlyph(id)
	inst.glyphs[id] = g
	return g
}

// rasterizeGlyph renders one glyph outline to an RGBA bitmap at this
// instance's pixel size, tinted by the instance's color.
func (inst *Instance) rasterizeGlyph(id uint16) *Glyph {
	ppem := fixed.I(int(inst.pixelSize))
	segments, err := inst.outline.LoadGlyph(&inst.buf, sfnt.GlyphIndex(id), ppem, nil)
	if err != nil || len(segments) == 0 {
		return &Glyph{HasBitmap: false}
	}

	bounds, _ := inst.outline.Bounds(&inst.buf, ppem, nil)
	width := int((bounds.Max.X - bounds.Min.X) >> 6)
	height := int((bounds.Max.Y - bounds.Min.Y) >> 6)
	if width <= 0 || height <= 0 {
		return &Glyph{HasBitmap: false}
	}

	raster := vector.NewRasterizer(width, height)
	originX := float32(bounds.Min.X) / 64
	originY := float32(bounds.Min.Y) / 64
	for _, seg := range segments {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			raster.MoveTo(px(seg.Args[0].X)-originX, px(seg.Args[0].Y)-originY)
		case sfnt.SegmentOpLineTo:
			raster.LineTo(px(seg.Args[0].X)-originX, px(seg.Args[0].Y)-originY)
		case sfnt.SegmentOpQuadTo:
			raster.QuadTo(px(seg.Args[0].X)-originX, px(seg.Args[0].Y)-originY, px(seg.Args[1].X)-originX, px(seg.Args[1].Y)-originY)
		case sfnt.SegmentOpCubeTo:
			raster.CubeTo(
				px(seg.Args[0].X)-originX, px(seg.Args[0].Y)-originY,
				px(seg.Args[1].X)-originX, px(seg.Args[1].Y)-originY,
				px(seg.Args[2].X)-originX, px(seg.Args[2].Y)-originY,
			)
		}
	}

	alpha := image.NewAlpha(image.Rect(0, 0, width, height))
	raster.Draw(alpha, alpha.Bounds(), image.Opaque, image.Point{})

	pixels := make([]byte, width*height*4)
	r, g2, b := byte(inst.color.R * 255), byte(inst.color.G * 255), byte(inst.color.B * 255)
	for i, a := range alpha.Pix {
		pixels[i*4+0] = r
		pixels[i*4+1] = g2
		pixels[i*4+2] = b
		pixels[i*4+3] = a
	}

	return &Glyph{
		BitmapSize: dom.Size[float32]{Width: float32(width), Height: float32(height)},
		BitmapLeft: originX,
		BitmapTop:  -originY,
		HasBitmap:  true,
		Pixels:     pixels,
	}
}

func px(v fixed.Int26_6) float32 { return float32(v) / 64 }

// GlyphSize returns the rasterized bitmap size of id, rasterizing it first
// if needed (ground: font.rs's get_glyph_thundr_size).
func (inst *Instance) GlyphSize(id uint16) dom.Size[float32] {
	return inst.ensureGlyph(id).BitmapSize
}

// GlyphBitmap returns the rasterized RGBA bitmap for id and whether it has
// visible ink (ground: font.rs's get_thundr_surf_for_glyph).
func (inst *Instance) GlyphBitmap(id uint16) (*Glyph, bool) {
	g := inst.ensureGlyph(id)
	return g, g.HasBitmap
}

// LayoutText walks cached glyphs one line at a time, calling fn for each
// with the current cursor, wrapping at the last space boundary or a
// newline glyph when the line would exceed cursor.Max (ground: font.rs's
// layout_text/for_each_text_block/for_one_line).
func (inst *Instance) LayoutText(cursor *Cursor, chars []CachedChar, fn func(*Cursor, CachedChar)) {
	cursor.I = 0
	lineSpace := inst.VerticalLineSpacing()
	spaceGlyph := inst.glyphIndexForRune(' ')
	newlineGlyph := inst.glyphIndexForRune('\n')

	for cursor.I < len(chars) {
		wrapped := inst.layoutOneLine(cursor, chars, spaceGlyph, newlineGlyph, fn)
		if wrapped {
			cursor.X = cursor.Min
			cursor.Y += lineSpace
		}
	}
}

func (inst *Instance) glyphIndexForRune(r rune) uint16 {
	id, _ := inst.face.NominalGlyph(r)
	return uint16(id)
}

func (inst *Instance) layoutOneLine(cursor *Cursor, chars []CachedChar, spaceGlyph, newlineGlyph uint16, fn func(*Cursor, CachedChar)) bool {
	endIndex := cursor.I + 1
	lastWord := endIndex
	wrapNeeded := false
	linePos := cursor.X
	hitNewline := false

	for i := cursor.I; i < len(chars); i++ {
		linePos += chars[i].CursorAdvance[0]
		endIndex = i + 1

		if chars[i].GlyphID == spaceGlyph {
			lastWord = endIndex
		}
		if chars[i].GlyphID == newlineGlyph {
			lastWord = endIndex
			hitNewline = true
			break
		}
		if linePos >= cursor.Max {
			wrapNeeded = true
			hitNewline = true
			break
		}
	}

	endOfLine := endIndex
	if wrapNeeded {
		endOfLine = lastWord
	}

	for i := cursor.I; i < endOfLine; i++ {
		cursor.I++
		inst.ensureGlyph(chars[i].GlyphID)
		fn(cursor, chars[i])
		cursor.X += chars[i].CursorAdvance[0]
		cursor.Y += chars[i].CursorAdvance[1]
	}

	return hitNewline
}
