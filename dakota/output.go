package dakota

import (
	"errors"
	"fmt"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/dom"
	dakotadraw "github.com/NOT-REAL-GAMES/dakota/draw"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
	"github.com/NOT-REAL-GAMES/dakota/pipeline"
	"github.com/NOT-REAL-GAMES/dakota/swapchain"
)

// Output is one presentable surface: a swapchain, the pipeline that
// records draws into it, an offset into its VirtualOutput's coordinate
// system, and its own event queue (ground: output.rs's Output).
type Output struct {
	dev  *device.Device
	swap *swapchain.Swapchain
	pipe *pipeline.Pipeline

	offset dom.Offset[int32]
	events eventQueue[OutputEvent]
}

// NewOutput wraps an already-constructed swapchain and pipeline as a
// presentable output (ground: Output::new; window/display construction
// itself is swapchain.Backend's concern, not Output's).
func NewOutput(dev *device.Device, swap *swapchain.Swapchain, pipe *pipeline.Pipeline) *Output {
	return &Output{dev: dev, swap: swap, pipe: pipe}
}

// Resolution returns the swapchain's current presentable extent (ground:
// get_resolution).
func (o *Output) Resolution() dom.Size[int32] {
	res := o.swap.State().Resolution
	return dom.Size[int32]{Width: int32(res.Width), Height: int32(res.Height)}
}

// SetOffset repositions this output within its VirtualOutput's coordinate
// system (ground: set_offset).
func (o *Output) SetOffset(x, y int32) { o.offset = dom.Offset[int32]{X: x, Y: y} }

// Offset returns this output's current virtual-space offset.
func (o *Output) Offset() dom.Offset[int32] { return o.offset }

// PopEvent removes and returns the oldest queued output event, if any
// (ground: pop_event).
func (o *Output) PopEvent() (OutputEvent, bool) { return o.events.pop() }

// RequestRedraw enqueues a Redraw event, used after a scene this output
// presents has changed (ground: request_redraw).
func (o *Output) RequestRedraw() { o.events.push(OutputEvent{Kind: OutputEventRedraw}) }

// HandleResize recreates the swapchain against the window's current size
// and requests a redraw (ground: handle_resize).
func (o *Output) HandleResize() error {
	if err := o.swap.Recreate(); err != nil {
		return logging.Error(fmt.Errorf("dakota: handle resize: %w", err))
	}
	resolution := o.swap.State().Resolution
	if err := o.pipe.HandleOutOfDate(o.swap.State().Views, resolution); err != nil {
		return logging.Error(fmt.Errorf("dakota: handle resize: %w", err))
	}
	o.RequestRedraw()
	return nil
}

// Redraw acquires the next swapchain image, traverses scene from its root
// at the origin, and presents. The output's Offset is not applied to the
// traversal. An out-of-date swapchain is not an error: it enqueues a Resized
// event instead, mirroring redraw's handling of ThundrError::OUT_OF_DATE
// (ground: redraw / draw_surfacelists).
func (o *Output) Redraw(vout *VirtualOutput, scene *Scene) error {
	root, ok := scene.Root()
	if !ok {
		return errNoRootElement
	}

	if err := o.swap.NextImage(); err != nil {
		if errors.Is(err, device.ErrOutOfDate) {
			o.events.push(OutputEvent{Kind: OutputEventResized})
			return nil
		}
		return logging.Error(fmt.Errorf("dakota: redraw: acquire image: %w", err))
	}

	state := o.swap.State()
	cmd, err := o.pipe.BeginRecord(state.CurrentImage, state.Resolution)
	if err != nil {
		return logging.Error(fmt.Errorf("dakota: redraw: begin record: %w", err))
	}

	drawErr := dakotadraw.Run(scene.drawTables(), o.dev, scene.rend, o.pipe, cmd, state.Resolution, root)

	if err := o.pipe.EndRecord(cmd); err != nil {
		return logging.Error(fmt.Errorf("dakota: redraw: end record: %w", err))
	}
	if drawErr != nil {
		return fmt.Errorf("dakota: redraw: %w", drawErr)
	}

	if err := o.swap.Present(); err != nil {
		if errors.Is(err, device.ErrOutOfDate) {
			o.events.push(OutputEvent{Kind: OutputEventResized})
			return nil
		}
		return logging.Error(fmt.Errorf("dakota: redraw: present: %w", err))
	}
	return nil
}
