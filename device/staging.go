package device

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// stagingBuffer is the single per-device host-visible buffer used to upload
// pixel data into device-local images (SPEC_FULL.md §4.2 "Staging
// uploads"). It grows on demand and is never shrunk.
type stagingBuffer struct {
	buffer Buffer
	mapped unsafe.Pointer
}

// copyToMapped copies data into a persistently host-mapped buffer.
func copyToMapped(mapped unsafe.Pointer, data []byte) {
	dst := unsafe.Slice((*byte)(mapped), len(data))
	copy(dst, data)
}

// DamageRect is a sub-rectangle of an image that needs re-uploading,
// expressed in pixels.
type DamageRect struct {
	X, Y          uint32
	Width, Height uint32
}

func (d *Device) initStaging() error {
	const initialSize = 4 * 1024 * 1024

	pool, fence, err := d.createCopyResources()
	if err != nil {
		return err
	}
	d.copyPool = pool
	d.copyFence = fence

	buf, mapped, err := d.allocateStaging(initialSize)
	if err != nil {
		return err
	}
	d.staging = &stagingBuffer{buffer: buf, mapped: mapped}
	return nil
}

func (d *Device) createCopyResources() (vk.CommandPool, vk.Fence, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.transferFamily,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.handle, &poolInfo, nil, &pool); res != vk.Success {
		return nil, nil, logging.Error(fmt.Errorf("device: create staging command pool: %w", Result(res)))
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.handle, &fenceInfo, nil, &fence); res != vk.Success {
		vk.DestroyCommandPool(d.handle, pool, nil)
		return nil, nil, logging.Error(fmt.Errorf("device: create copy fence: %w", Result(res)))
	}
	return pool, fence, nil
}

func (d *Device) allocateStaging(size vk.DeviceSize) (Buffer, unsafe.Pointer, error) {
	buf, err := d.CreateBuffer(size, vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return Buffer{}, nil, err
	}
	var mapped unsafe.Pointer
	if res := vk.MapMemory(d.handle, buf.Memory, 0, size, 0, &mapped); res != vk.Success {
		d.DestroyBuffer(buf)
		return Buffer{}, nil, logging.Error(fmt.Errorf("device: map staging buffer: %w", Result(res)))
	}
	return buf, mapped, nil
}

// growStaging replaces the staging buffer with one at least size bytes,
// discarding the old one. Only called while no copy is in flight (the
// caller has already waited on the copy fence).
func (d *Device) growStaging(size vk.DeviceSize) error {
	if d.staging.buffer.Size >= size {
		return nil
	}
	newSize := d.staging.buffer.Size
	if newSize == 0 {
		newSize = 1
	}
	for newSize < size {
		newSize *= 2
	}

	vk.UnmapMemory(d.handle, d.staging.buffer.Memory)
	d.DestroyBuffer(d.staging.buffer)

	buf, mapped, err := d.allocateStaging(newSize)
	if err != nil {
		return err
	}
	d.staging.buffer = buf
	d.staging.mapped = mapped
	return nil
}

// UpdateImageFromData uploads pixels into img, re-copying only the given
// damage rects. stride is measured in pixels; 0 means the data is tightly
// packed (stride == width). Per SPEC_FULL.md §4.2: wait the prior copy,
// upload to staging (growing it if needed), transition UNDEFINED to
// TRANSFER_DST, copy one region per
// damage rect, transition back to SHADER_READ_ONLY, and submit async on the
// transfer queue signaling the copy fence. The next call to this function,
// or any read of img, must wait on that fence first.
func (d *Device) UpdateImageFromData(img Image, bytesPerPixel uint32, data []byte, stride uint32, damage []DamageRect) error {
	if res := vk.WaitForFences(d.handle, 1, []vk.Fence{d.copyFence}, vk.True, ^uint64(0)); res != vk.Success {
		return logging.Error(fmt.Errorf("device: wait copy fence: %w", Result(res)))
	}
	if res := vk.ResetFences(d.handle, 1, []vk.Fence{d.copyFence}); res != vk.Success {
		return logging.Error(fmt.Errorf("device: reset copy fence: %w", Result(res)))
	}

	if stride == 0 {
		stride = img.Width
	}
	if stride < img.Width {
		return logging.Error(fmt.Errorf("device: %w: stride %d smaller than width %d", ErrInvalidStride, stride, img.Width))
	}

	required := vk.DeviceSize(uint64(stride) * uint64(img.Height) * uint64(bytesPerPixel))
	if err := d.growStaging(required); err != nil {
		return err
	}
	copyToMapped(d.staging.mapped, data)

	if len(damage) == 0 {
		damage = []DamageRect{{X: 0, Y: 0, Width: img.Width, Height: img.Height}}
	}

	cmd, err := d.beginCopyCommand()
	if err != nil {
		return err
	}

	recordImageBarrier(cmd, img.Handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		0, vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit)

	regions := make([]vk.BufferImageCopy, 0, len(damage))
	for _, r := range damage {
		regions = append(regions, vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize((uint64(r.Y)*uint64(stride) + uint64(r.X)) * uint64(bytesPerPixel)),
			BufferRowLength:   stride,
			BufferImageHeight: img.Height,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: int32(r.X), Y: int32(r.Y), Z: 0},
			ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: 1},
		})
	}
	vk.CmdCopyBufferToImage(cmd, d.staging.buffer.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)

	recordImageBarrier(cmd, img.Handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
		vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit)

	return d.submitCopyCommand(cmd)
}

func (d *Device) beginCopyCommand() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.copyPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.handle, &allocInfo, cmds); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("device: allocate copy command buffer: %w", Result(res)))
	}
	cmd := cmds[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		vk.FreeCommandBuffers(d.handle, d.copyPool, 1, cmds)
		return nil, logging.Error(fmt.Errorf("device: begin copy command buffer: %w", Result(res)))
	}
	return cmd, nil
}

func (d *Device) submitCopyCommand(cmd vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return logging.Error(fmt.Errorf("device: end copy command buffer: %w", Result(res)))
	}
	cmds := []vk.CommandBuffer{cmd}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}
	if res := vk.QueueSubmit(d.transferQueue, 1, []vk.SubmitInfo{submit}, d.copyFence); res != vk.Success {
		return logging.Error(fmt.Errorf("device: submit copy command: %w", Result(res)))
	}
	d.deletion.Defer(d.timeline.Latest(), func() {
		vk.FreeCommandBuffers(d.handle, d.copyPool, 1, cmds)
	})
	return nil
}

func recordImageBarrier(cmd vk.CommandBuffer, img vk.Image, oldLayout, newLayout vk.ImageLayout,
	srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlagBits) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
