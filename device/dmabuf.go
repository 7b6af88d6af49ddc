package device

import (
	"fmt"
	"syscall"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// DmabufPlane describes a single plane of an imported dmabuf, as handed to
// this module by a Wayland/DRM compositor-side allocator (SPEC_FULL.md §4.2
// "dmabuf import").
type DmabufPlane struct {
	Fd         int
	PlaneIndex uint32
	Offset     uint32
	Stride     uint32
	Modifier   uint64
}

// Dmabuf is the plane set plus dimensions/format of a buffer imported from
// an external producer. Only the first plane is used; multi-planar formats
// are not supported (ground: original_source/thundr/src/image.rs's own
// "TODO: multiplanar support").
type Dmabuf struct {
	Width, Height uint32
	Format        vk.Format
	Planes        []DmabufPlane
}

// ImportDmabufImage imports dmabuf as a sampled VkImage using the explicit
// DRM format modifier path, and performs the QUEUE_FAMILY_FOREIGN_EXT
// acquire barrier that hands the image to graphicsFamily for reading
// (ground: original_source/thundr/src/image.rs's create_dmabuf_image +
// device.rs's acquire_dmabuf_image_from_external_queue).
func (d *Device) ImportDmabufImage(buf Dmabuf, graphicsFamily uint32) (Image, error) {
	if len(buf.Planes) == 0 {
		return Image{}, logging.Error(fmt.Errorf("device: %w: dmabuf has no planes", ErrInvalidDmabuf))
	}
	plane := buf.Planes[0]
	if plane.Fd < 0 {
		return Image{}, logging.Error(fmt.Errorf("device: %w", ErrInvalidFd))
	}

	img, err := d.createDmabufImage(buf, plane)
	if err != nil {
		return Image{}, err
	}

	mem, err := d.importDmabufMemory(img, plane)
	if err != nil {
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, err
	}

	if res := vk.BindImageMemory(d.handle, img, mem, 0); res != vk.Success {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, logging.Error(fmt.Errorf("device: bind dmabuf image memory: %w", Result(res)))
	}

	view, err := d.createImageView(img, buf.Format)
	if err != nil {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, err
	}

	if err := d.acquireDmabufFromForeignQueue(img, graphicsFamily); err != nil {
		vk.DestroyImageView(d.handle, view, nil)
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, err
	}

	return Image{Handle: img, View: view, Memory: mem, Format: buf.Format, Width: buf.Width, Height: buf.Height}, nil
}

func (d *Device) createDmabufImage(buf Dmabuf, plane DmabufPlane) (vk.Image, error) {
	planeLayout := vk.SubresourceLayout{
		Offset:   vk.DeviceSize(plane.Offset),
		RowPitch: vk.DeviceSize(plane.Stride),
	}
	drmInfo := vk.ImageDrmFormatModifierExplicitCreateInfoEXT{
		SType:               vk.StructureTypeImageDrmFormatModifierExplicitCreateInfoExt,
		DrmFormatModifier:   plane.Modifier,
		DrmFormatModifierPlaneCount: 1,
		PPlaneLayouts:       []vk.SubresourceLayout{planeLayout},
	}
	extMemInfo := vk.ExternalMemoryImageCreateInfo{
		SType:       vk.StructureTypeExternalMemoryImageCreateInfo,
		PNext:       unsafePointer(&drmInfo),
		HandleTypes: vk.ExternalMemoryHandleTypeFlags(vk.ExternalMemoryHandleTypeDmaBufBitExt),
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		PNext:     unsafePointer(&extMemInfo),
		ImageType: vk.ImageType2d,
		Format:    buf.Format,
		Extent: vk.Extent3D{
			Width:  buf.Width,
			Height: buf.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingDrmFormatModifierExt,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(d.handle, &info, nil, &img); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("device: %w: %s", ErrCouldNotCreateImage, Result(res)))
	}
	return img, nil
}

func (d *Device) importDmabufMemory(img vk.Image, plane DmabufPlane) (vk.DeviceMemory, error) {
	dupFd, err := syscall.Dup(plane.Fd)
	if err != nil {
		return nil, logging.Error(fmt.Errorf("device: %w: dup dmabuf fd: %v", ErrInvalidFd, err))
	}

	var fdProps vk.MemoryFdPropertiesKHR
	fdProps.SType = vk.StructureTypeMemoryFdPropertiesKhr
	if res := vk.GetMemoryFdPropertiesKHR(d.handle, vk.ExternalMemoryHandleTypeDmaBufBitExt, dupFd, &fdProps); res != vk.Success {
		syscall.Close(dupFd)
		return nil, logging.Error(fmt.Errorf("device: get memory fd properties: %w", Result(res)))
	}
	fdProps.Deref()

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img, &req)
	req.Deref()

	memTypeIdx, err := d.findMemoryTypeForDmabuf(fdProps.MemoryTypeBits, req.MemoryTypeBits)
	if err != nil {
		syscall.Close(dupFd)
		return nil, err
	}

	dedicated := vk.MemoryDedicatedAllocateInfo{
		SType: vk.StructureTypeMemoryDedicatedAllocateInfo,
		Image: img,
	}
	importInfo := vk.ImportMemoryFdInfoKHR{
		SType:      vk.StructureTypeImportMemoryFdInfoKhr,
		PNext:      unsafePointer(&dedicated),
		HandleType: vk.ExternalMemoryHandleTypeDmaBufBitExt,
		Fd:         int32(dupFd),
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafePointer(&importInfo),
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.handle, &allocInfo, nil, &mem); res != vk.Success {
		syscall.Close(dupFd)
		return nil, logging.Error(fmt.Errorf("device: import dmabuf memory: %w", Result(res)))
	}
	return mem, nil
}

// findMemoryTypeForDmabuf intersects the memory types the fd import
// supports with the ones the image's own memory requirements accept; it
// deliberately does not require DEVICE_LOCAL, since a dmabuf may back
// system memory (ground: thundr's find_memtype_for_dmabuf comment).
func (d *Device) findMemoryTypeForDmabuf(dmabufTypeBits, imageTypeBits uint32) (uint32, error) {
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		if dmabufTypeBits&(1<<i) == 0 {
			continue
		}
		if imageTypeBits&(1<<i) == 0 {
			continue
		}
		return i, nil
	}
	return 0, logging.Error(fmt.Errorf("device: %w: no memory type supports both dmabuf import and image", ErrOutOfMemory))
}

// acquireDmabufFromForeignQueue performs the queue family ownership
// transfer acquire operation that gives this device's graphics queue family
// read access to an externally-produced image.
func (d *Device) acquireDmabufFromForeignQueue(img vk.Image, graphicsFamily uint32) error {
	if res := vk.WaitForFences(d.handle, 1, []vk.Fence{d.copyFence}, vk.True, ^uint64(0)); res != vk.Success {
		return logging.Error(fmt.Errorf("device: wait copy fence: %w", Result(res)))
	}
	if res := vk.ResetFences(d.handle, 1, []vk.Fence{d.copyFence}); res != vk.Success {
		return logging.Error(fmt.Errorf("device: reset copy fence: %w", Result(res)))
	}

	cmd, err := d.beginCopyCommand()
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcQueueFamilyIndex: vk.QueueFamilyForeignExt,
		DstQueueFamilyIndex: graphicsFamily,
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutShaderReadOnlyOptimal,
		Image:               img,
		SrcAccessMask:       0,
		DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	dstStage := vk.PipelineStageFragmentShaderBit | vk.PipelineStageVertexShaderBit | vk.PipelineStageComputeShaderBit
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	return d.submitCopyCommand(cmd)
}

// ReleaseDmabufToForeignQueue hands an imported image's ownership back to
// the foreign queue family, mirroring acquireDmabufFromForeignQueue, so a
// producer can safely reuse or free the underlying dmabuf once the copy
// fence that the release submit signals has been waited on.
func (d *Device) ReleaseDmabufToForeignQueue(img vk.Image, graphicsFamily uint32) error {
	if res := vk.WaitForFences(d.handle, 1, []vk.Fence{d.copyFence}, vk.True, ^uint64(0)); res != vk.Success {
		return logging.Error(fmt.Errorf("device: wait copy fence: %w", Result(res)))
	}
	if res := vk.ResetFences(d.handle, 1, []vk.Fence{d.copyFence}); res != vk.Success {
		return logging.Error(fmt.Errorf("device: reset copy fence: %w", Result(res)))
	}

	cmd, err := d.beginCopyCommand()
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcQueueFamilyIndex: graphicsFamily,
		DstQueueFamilyIndex: vk.QueueFamilyForeignExt,
		OldLayout:           vk.ImageLayoutShaderReadOnlyOptimal,
		NewLayout:           vk.ImageLayoutGeneral,
		Image:               img,
		SrcAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit),
		DstAccessMask:       0,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	srcStage := vk.PipelineStageFragmentShaderBit | vk.PipelineStageVertexShaderBit | vk.PipelineStageComputeShaderBit
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	return d.submitCopyCommand(cmd)
}
