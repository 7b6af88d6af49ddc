package dakota

import (
	"github.com/chewxy/math32"

	"github.com/NOT-REAL-GAMES/dakota/dom"
)

// VirtualOutput is a virtual canvas one or more Outputs may present a
// region of, owning its own input event queue and cached pointer position
// (ground: virtual_output.rs's VirtualOutput).
type VirtualOutput struct {
	size     dom.Size[int32]
	mousePos dom.Offset[int32]
	events   eventQueue[PlatformEvent]
}

// NewVirtualOutput creates a virtual canvas of the given size (ground:
// VirtualOutput::new).
func NewVirtualOutput(width, height int32) *VirtualOutput {
	return &VirtualOutput{size: dom.Size[int32]{Width: width, Height: height}}
}

// Size returns the virtual canvas's current dimensions (ground: get_size).
func (v *VirtualOutput) Size() dom.Size[int32] { return v.size }

// SetSize updates the virtual canvas's dimensions, e.g. in response to a
// window resize (ground: set_size).
func (v *VirtualOutput) SetSize(size dom.Size[int32]) { v.size = size }

// MousePos returns the cached pointer position, used by callers that
// receive absolute cursor coordinates (e.g. a GLFW cursor-position
// callback) and need to compute the delta PushEvent expects.
func (v *VirtualOutput) MousePos() dom.Offset[int32] { return v.mousePos }

// PushEvent enqueues a platform input event, updating the cached mouse
// position first for button events that only carry a delta or no position
// of their own (ground: PlatformEventSystem::add_event_mouse_move caching
// es_mouse_pos, consulted by button events' absolute-position stamping).
func (v *VirtualOutput) PushEvent(ev PlatformEvent) {
	switch ev.Kind {
	case PlatformEventInputMouseMove:
		v.mousePos.X += ev.DX
		v.mousePos.Y += ev.DY
	case PlatformEventInputMouseButtonDown, PlatformEventInputMouseButtonUp:
		if ev.X == 0 && ev.Y == 0 {
			ev.X, ev.Y = v.mousePos.X, v.mousePos.Y
		}
	}
	v.events.push(ev)
}

// PopEvent removes and returns the oldest queued platform event, if any
// (ground: pop_event).
func (v *VirtualOutput) PopEvent() (PlatformEvent, bool) { return v.events.pop() }

// HandleScrolling locates the viewport under position and applies
// relativeScroll to its scroll offset, clamped to its scroll region
// (ground: handle_scrolling / thundr's Viewport::update_scroll_amount).
func (v *VirtualOutput) HandleScrolling(scene *Scene, position [2]int32, relativeScroll [2]float32) error {
	v.mousePos = dom.Offset[int32]{X: position[0], Y: position[1]}

	target, err := scene.GetViewportAtPosition(position[0], position[1])
	if err != nil {
		return err
	}

	vp, node, ok := scene.viewportAt(target)
	if !ok {
		return errRootNotViewport
	}

	dx := int32(math32.Round(relativeScroll[0]))
	dy := int32(math32.Round(relativeScroll[1]))
	vp.ScrollOffset = updateScrollAmount(vp.ScrollOffset, vp.ScrollRegion, node.Size, dx, dy)
	scene.setViewportScroll(target, vp)
	return nil
}

// updateScrollAmount clamps offset - (dx, dy) into [-(scrollRegion - size),
// 0] on each axis (ground: thundr's Viewport::update_scroll_amount).
func updateScrollAmount(offset dom.Offset[int32], scrollRegion, size dom.Size[int32], dx, dy int32) dom.Offset[int32] {
	return dom.Offset[int32]{
		X: clampAxis(offset.X-dx, scrollRegion.Width, size.Width),
		Y: clampAxis(offset.Y-dy, scrollRegion.Height, size.Height),
	}
}

func clampAxis(v, scrollRegion, size int32) int32 {
	min := -(scrollRegion - size)
	const max = 0
	switch {
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
