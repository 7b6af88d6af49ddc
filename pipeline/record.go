package pipeline

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// BeginRecord starts the render pass on the command buffer for imageIndex,
// binds the pipeline, and binds the shared quad vertex/index buffers
// (ground: geometric.rs's begin_record).
func (p *Pipeline) BeginRecord(imageIndex uint32, resolution vk.Extent2D) (vk.CommandBuffer, error) {
	cmd := p.cmdBuffers[imageIndex]
	vk.ResetCommandBuffer(cmd, vk.CommandBufferResetFlags(0))

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("pipeline: begin command buffer: %v", res))
	}

	clear := vk.NewClearValue([]float32{0, 0, 0, 0})
	passInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.pass,
		Framebuffer: p.framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: resolution,
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clear},
	}
	vk.CmdBeginRenderPass(cmd, &passInfo, vk.SubpassContentsInline)
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.handle)

	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{p.vertexBuffer.Handle}, offsets)
	vk.CmdBindIndexBuffer(cmd, p.indexBuffer.Handle, 0, vk.IndexTypeUint32)

	sets := []vk.DescriptorSet{p.descSet, p.renderer.DescriptorSet()}
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, p.layout, 0, uint32(len(sets)), sets, 0, nil)

	return cmd, nil
}

// SetViewport issues the dynamic viewport and scissor state for resolution
// (ground: geometric.rs's set_viewport).
func (p *Pipeline) SetViewport(cmd vk.CommandBuffer, resolution vk.Extent2D) {
	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:  float32(resolution.Width),
		Height: float32(resolution.Height),
		MinDepth: 0, MaxDepth: 1,
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: resolution,
	}
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{scissor})
}

// SetScissorRect narrows the scissor to rect without touching the viewport
// transform, used by the draw traversal to clip a viewport element's
// children to its (possibly scrolled) bounds.
func (p *Pipeline) SetScissorRect(cmd vk.CommandBuffer, rect vk.Rect2D) {
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{rect})
}

// pushConstantsBytes packs a renderer.PushConstants-shaped value into a
// flat byte blob matching pushConstantSize.
func pushConstantsBytes(width, height, imageID uint32, useColor uint32, color [4]float32, dims [4]float32) []byte {
	type layout struct {
		width, height, imageID, useColor uint32
		color                            [4]float32
		dims                              [4]float32
	}
	v := layout{width: width, height: height, imageID: imageID, useColor: useColor, color: color, dims: dims}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v)), int(unsafe.Sizeof(v)))
}

// Draw pushes the per-quad constants and issues the indexed draw call for
// one instance of the shared unit quad (ground: geometric.rs's draw).
func (p *Pipeline) Draw(cmd vk.CommandBuffer, resolution vk.Extent2D, imageID uint32, useColor bool, color, dims [4]float32) {
	uc := uint32(0)
	if useColor {
		uc = 1
	}
	data := pushConstantsBytes(resolution.Width, resolution.Height, imageID, uc, color, dims)
	vk.CmdPushConstants(cmd, p.layout, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit), 0, uint32(len(data)), unsafe.Pointer(&data[0]))
	vk.CmdDrawIndexed(cmd, uint32(len(quadIndices)), 1, 0, 0, 0)
}

// EndRecord ends the render pass and the command buffer recording started
// by BeginRecord (ground: geometric.rs's end_record).
func (p *Pipeline) EndRecord(cmd vk.CommandBuffer) error {
	vk.CmdEndRenderPass(cmd)
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: end command buffer: %v", res))
	}
	return nil
}

// HandleOutOfDate recreates the framebuffers and command buffers and
// rewrites the projection for a new swapchain extent (ground: geometric.rs's
// handle_ood).
func (p *Pipeline) HandleOutOfDate(views []vk.ImageView, resolution vk.Extent2D) error {
	handle := p.dev.Handle()
	for _, fb := range p.framebuffers {
		vk.DestroyFramebuffer(handle, fb, nil)
	}
	p.framebuffers = nil
	if len(p.cmdBuffers) > 0 {
		vk.FreeCommandBuffers(handle, p.cmdPool, uint32(len(p.cmdBuffers)), p.cmdBuffers)
	}

	if err := p.createFramebuffers(views, resolution); err != nil {
		return err
	}
	if err := p.createCommandResources(len(views)); err != nil {
		return err
	}
	return p.writeProjection(resolution)
}
