package device

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// Buffer is a VkBuffer with its bound VkDeviceMemory.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
}

// Image is a VkImage with its bound VkDeviceMemory, the view used to sample
// it, and its extent (SPEC_FULL.md §3's GPU Image record, minus the damage
// list and opaque-region rect which are tracked by renderer.Image).
type Image struct {
	Handle vk.Image
	View   vk.ImageView
	Memory vk.DeviceMemory
	Format vk.Format
	Width  uint32
	Height uint32
}

// CreateBuffer allocates and binds a VkBuffer of size bytes, usage and
// memory-property flags as requested.
func (d *Device) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits) (Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(d.handle, &info, nil, &buf); res != vk.Success {
		return Buffer{}, logging.Error(fmt.Errorf("device: create buffer: %w", Result(res)))
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, buf, &req)
	req.Deref()

	memTypeIdx, err := d.FindMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(props))
	if err != nil {
		vk.DestroyBuffer(d.handle, buf, nil)
		return Buffer{}, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.handle, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyBuffer(d.handle, buf, nil)
		return Buffer{}, logging.Error(fmt.Errorf("device: allocate buffer memory: %w", Result(res)))
	}
	if res := vk.BindBufferMemory(d.handle, buf, mem, 0); res != vk.Success {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyBuffer(d.handle, buf, nil)
		return Buffer{}, logging.Error(fmt.Errorf("device: bind buffer memory: %w", Result(res)))
	}

	return Buffer{Handle: buf, Memory: mem, Size: size}, nil
}

// DestroyBuffer frees b immediately. Callers that need deferred destruction
// should route through Device.DeferDestroy instead.
func (d *Device) DestroyBuffer(b Buffer) {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(d.handle, b.Handle, nil)
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.handle, b.Memory, nil)
	}
}

// CreateImage2D allocates a 2D image of the given format/usage, binds
// device-local memory to it, and creates a 2D view over it.
func (d *Device) CreateImage2D(width, height uint32, format vk.Format, usage vk.ImageUsageFlagBits, tiling vk.ImageTiling) (Image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        tiling,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(d.handle, &info, nil, &img); res != vk.Success {
		return Image{}, logging.Error(fmt.Errorf("device: %w: %s", ErrCouldNotCreateImage, Result(res)))
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img, &req)
	req.Deref()

	memTypeIdx, err := d.FindMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.handle, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, logging.Error(fmt.Errorf("device: allocate image memory: %w", Result(res)))
	}
	if res := vk.BindImageMemory(d.handle, img, mem, 0); res != vk.Success {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, logging.Error(fmt.Errorf("device: bind image memory: %w", Result(res)))
	}

	view, err := d.createImageView(img, format)
	if err != nil {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return Image{}, err
	}

	return Image{Handle: img, View: view, Memory: mem, Format: format, Width: width, Height: height}, nil
}

func (d *Device) createImageView(img vk.Image, format vk.Format) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.handle, &info, nil, &view); res != vk.Success {
		return vk.NullImageView, logging.Error(fmt.Errorf("device: create image view: %w", Result(res)))
	}
	return view, nil
}

// DestroyImage frees img immediately.
func (d *Device) DestroyImage(img Image) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(d.handle, img.View, nil)
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(d.handle, img.Handle, nil)
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.handle, img.Memory, nil)
	}
}
