package draw

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/pipeline"
	"github.com/NOT-REAL-GAMES/dakota/renderer"
)

// Run records one frame's surfaces starting at root into cmd, clipping to
// viewport boundaries as it descends. The caller has already called
// Pipeline.BeginRecord; Run calls SetViewport once for the root (ground:
// mod.rs's Dakota::draw_surfacelists).
func Run(t *Tables, dev *device.Device, rend *renderer.Renderer, pipe *pipeline.Pipeline, cmd vk.CommandBuffer, resolution vk.Extent2D, root ecs.Entity) error {
	trans := newTransaction(t)

	rootViewport := Rect{X: 0, Y: 0, Width: int32(resolution.Width), Height: int32(resolution.Height)}
	pipe.SetViewport(cmd, resolution)

	err := trans.drawNodeRecurse(dev, rend, pipe, cmd, resolution, rootViewport, root, dom.Offset[int32]{})
	trans.commit()
	return err
}

// getDisplayrSurfForEl builds the surface el should draw as, given base
// (the accumulated offset of every non-viewport ancestor) (ground: mod.rs's
// get_displayr_surf_for_el).
func (t *transaction) getDisplayrSurfForEl(dev *device.Device, rend *renderer.Renderer, node ecs.Entity, base dom.Offset[int32]) (Surface, bool, error) {
	layoutNode, ok := t.nodes.Get(node)
	if !ok {
		return Surface{}, false, nil
	}

	offset := dom.Offset[int32]{X: base.X + layoutNode.Offset.X, Y: base.Y + layoutNode.Offset.Y}
	if _, isViewport := t.viewports.Get(node); isViewport {
		offset = dom.Offset[int32]{}
	}

	surf := Surface{Rect: Rect{X: offset.X, Y: offset.Y, Width: layoutNode.Size.Width, Height: layoutNode.Size.Height}}

	if layoutNode.HasGlyph {
		fontEntity, inst := t.fontForElement(node)
		if inst == nil {
			return Surface{}, false, nil
		}
		imageEntity, hasInk, err := t.glyphs.ImageFor(dev, rend, fontEntity, inst, layoutNode.GlyphID)
		if err != nil {
			return Surface{}, false, err
		}
		if !hasInk {
			return surf, false, nil
		}
		surf.HasImage = true
		surf.ImageID = uint32(imageEntity.ID())
		return surf, true, nil
	}

	if resourceID, ok := t.resources.Get(node); ok {
		contentCount := 0
		if imgEntity, ok := t.resourceImages.Get(resourceID); ok {
			surf.HasImage = true
			surf.ImageID = uint32(imgEntity.ID())
			contentCount++
		}
		if color, ok := t.resourceColors.Get(resourceID); ok {
			surf.UseColor = true
			surf.Color = color
			contentCount++
		}
		if contentCount != 1 {
			return Surface{}, false, errInvalidResourceContent
		}
	}

	return surf, true, nil
}

// getDisplayrViewport clips a child viewport's rect to its parent's, so a
// nested scroll region can never draw outside its container (ground:
// mod.rs's get_displayr_viewport / clamp_to_parent_base).
func (t *transaction) getDisplayrViewport(parent Rect, node ecs.Entity, base dom.Offset[int32]) (Rect, bool) {
	layoutNode, ok := t.nodes.Get(node)
	if !ok {
		return Rect{}, false
	}
	if _, ok := t.viewports.Get(node); !ok {
		return Rect{}, false
	}

	ret := Rect{
		X:      base.X + layoutNode.Offset.X,
		Y:      base.Y + layoutNode.Offset.Y,
		Width:  layoutNode.Size.Width,
		Height: layoutNode.Size.Height,
	}

	ret.X, ret.Width = clampToParentBase(layoutNode.Size.Width, ret.X, parent.X, parent.Width)
	ret.Y, ret.Height = clampToParentBase(layoutNode.Size.Height, ret.Y, parent.Y, parent.Height)
	return ret, true
}

// clampToParentBase reduces childSize by however much the child falls
// outside [parentOffset, parentOffset+parentSize), then clamps the
// offset itself into that range (ground: mod.rs's clamp_to_parent_base
// closure).
func clampToParentBase(childOriginalSize, childOffset, parentOffset, parentSize int32) (int32, int32) {
	var childSize int32
	switch {
	case childOffset < parentOffset:
		behind := parentOffset - childOffset
		childSize = childOriginalSize - behind
	case childOffset+childOriginalSize > parentOffset+parentSize:
		childSize = (parentOffset + parentSize) - childOffset
	default:
		childSize = childOriginalSize
	}
	if childOffset < parentOffset {
		childOffset = parentOffset
	} else if childOffset > parentOffset+parentSize {
		childOffset = parentOffset + parentSize
	}
	if childSize < 0 {
		childSize = 0
	}
	return childOffset, childSize
}

// drawNode draws el itself (not its children), skipping it entirely if
// it has scrolled out of viewport's bounds (ground: mod.rs's draw_node).
func (t *transaction) drawNode(dev *device.Device, rend *renderer.Renderer, pipe *pipeline.Pipeline, cmd vk.CommandBuffer, resolution vk.Extent2D, viewport Rect, node ecs.Entity, base dom.Offset[int32]) error {
	layoutNode, ok := t.nodes.Get(node)
	if !ok {
		return nil
	}

	offset := dom.Offset[int32]{X: base.X + layoutNode.Offset.X, Y: base.Y + layoutNode.Offset.Y}
	switch {
	case offset.X > viewport.Width:
		return nil
	case offset.Y > viewport.Height:
		return nil
	case offset.X < 0 && -offset.X > layoutNode.Size.Width:
		return nil
	case offset.Y < 0 && -offset.Y > layoutNode.Size.Height:
		return nil
	}

	surf, visible, err := t.getDisplayrSurfForEl(dev, rend, node, base)
	if err != nil {
		return err
	}
	if !visible {
		return nil
	}

	color := [4]float32{}
	if surf.UseColor {
		color = [4]float32{surf.Color.R, surf.Color.G, surf.Color.B, surf.Color.A}
	}
	dims := [4]float32{float32(surf.Rect.X), float32(surf.Rect.Y), float32(surf.Rect.Width), float32(surf.Rect.Height)}
	pipe.Draw(cmd, resolution, surf.ImageID, surf.UseColor, color, dims)
	return nil
}

// drawNodeRecurse draws node and every descendant that doesn't cross into
// a nested viewport's own traversal, updating the scissor rect whenever a
// viewport boundary is entered (ground: mod.rs's draw_node_recurse).
func (t *transaction) drawNodeRecurse(dev *device.Device, rend *renderer.Renderer, pipe *pipeline.Pipeline, cmd vk.CommandBuffer, resolution vk.Extent2D, viewport Rect, node ecs.Entity, base dom.Offset[int32]) error {
	_, isViewport := t.viewports.Get(node)

	activeViewport := viewport
	if isViewport {
		childViewport, ok := t.getDisplayrViewport(viewport, node, base)
		if ok {
			activeViewport = childViewport
			pipe.SetScissorRect(cmd, vk.Rect2D{
				Offset: vk.Offset2D{X: childViewport.X, Y: childViewport.Y},
				Extent: vk.Extent2D{Width: uint32(childViewport.Width), Height: uint32(childViewport.Height)},
			})
		}
	}

	if err := t.drawNode(dev, rend, pipe, cmd, resolution, activeViewport, node, base); err != nil {
		return err
	}

	layoutNode, ok := t.nodes.Get(node)
	if !ok {
		return nil
	}

	newBase := dom.Offset[int32]{X: base.X + layoutNode.Offset.X, Y: base.Y + layoutNode.Offset.Y}
	if vp, ok := t.viewports.Get(node); ok {
		newBase = vp.ScrollOffset
	}

	for _, child := range layoutNode.Children {
		if err := t.drawNodeRecurse(dev, rend, pipe, cmd, resolution, activeViewport, child, newBase); err != nil {
			return err
		}
	}

	if isViewport {
		pipe.SetScissorRect(cmd, vk.Rect2D{
			Offset: vk.Offset2D{X: viewport.X, Y: viewport.Y},
			Extent: vk.Extent2D{Width: uint32(viewport.Width), Height: uint32(viewport.Height)},
		})
	}
	return nil
}
