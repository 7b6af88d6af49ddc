package draw

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/font"
	"github.com/NOT-REAL-GAMES/dakota/renderer"
)

// glyphKey identifies one rasterized glyph within one font instance.
type glyphKey struct {
	font  ecs.Entity
	glyph uint16
}

// glyphImage is one uploaded glyph bitmap and its bindless entity.
type glyphImage struct {
	entity ecs.Entity
	image  device.Image
}

// GlyphCache uploads each distinct (font, glyph) bitmap to the GPU once
// and remembers its bindless entity across frames, so redrawing the same
// text doesn't re-upload its glyphs every time (ground: font.rs's
// FontInstance caching its glyphs CPU-side, extended here with the
// GPU-image half of that cache since this module uploads at draw time
// rather than at shape time).
type GlyphCache struct {
	mu      sync.Mutex
	entries map[glyphKey]glyphImage
}

// NewGlyphCache returns an empty cache.
func NewGlyphCache() *GlyphCache {
	return &GlyphCache{entries: make(map[glyphKey]glyphImage)}
}

// ImageFor returns the bindless entity backing glyphID's bitmap under
// fontEntity, uploading and registering it on first use. The bool return
// is false for glyphs with no visible ink (space, soft hyphen, ...), in
// which case the caller should draw nothing.
func (c *GlyphCache) ImageFor(dev *device.Device, rend *renderer.Renderer, fontEntity ecs.Entity, inst *font.Instance, glyphID uint16) (ecs.Entity, bool, error) {
	key := glyphKey{font: fontEntity, glyph: glyphID}

	c.mu.Lock()
	if gi, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return gi.entity, true, nil
	}
	c.mu.Unlock()

	glyph, ok := inst.GlyphBitmap(glyphID)
	if !ok {
		return ecs.Entity{}, false, nil
	}

	width := uint32(glyph.BitmapSize.Width)
	height := uint32(glyph.BitmapSize.Height)
	if width == 0 || height == 0 {
		return ecs.Entity{}, false, nil
	}

	img, err := dev.CreateImage2D(width, height, vk.FormatR8g8b8a8Unorm, vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit, vk.ImageTilingOptimal)
	if err != nil {
		return ecs.Entity{}, false, err
	}
	if err := dev.UpdateImageFromData(img, 4, glyph.Pixels, width, nil); err != nil {
		dev.DestroyImage(img)
		return ecs.Entity{}, false, err
	}

	entity := rend.RegisterImage(img)

	c.mu.Lock()
	c.entries[key] = glyphImage{entity: entity, image: img}
	c.mu.Unlock()

	return entity, true, nil
}

// Clear releases every cached glyph image, used when a font instance is
// replaced or the scene is torn down.
func (c *GlyphCache) Clear(dev *device.Device, rend *renderer.Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, gi := range c.entries {
		rend.UnregisterImage(gi.entity)
		dev.DestroyImage(gi.image)
	}
	c.entries = make(map[glyphKey]glyphImage)
}
