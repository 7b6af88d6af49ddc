package swapchain

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// VkSurface presents to a desktop window via VkSurfaceKHR, created from a
// GLFW window (ground: vulkan-go-asche's CoreSwapchain swapchain creation
// call shape, windowed via glfw instead of asche's raw X11/Win32 surface
// creation since this module targets a GLFW-backed demo window).
type VkSurface struct {
	dev       *device.Device
	window    *glfw.Window
	surface   vk.Surface
	swapchain vk.Swapchain
}

// NewVkSurface creates a VkSurfaceKHR for window and wraps it in a Backend.
func NewVkSurface(dev *device.Device, instance vk.Instance, window *glfw.Window) (*VkSurface, error) {
	surfacePtr, err := window.CreateWindowSurface(instance, nil)
	if err != nil {
		return nil, logging.Error(fmt.Errorf("swapchain: glfw create surface: %w", err))
	}
	return &VkSurface{dev: dev, window: window, surface: vk.SurfaceFromPointer(uintptr(surfacePtr))}, nil
}

func (b *VkSurface) SelectQueueFamily() (uint32, error) {
	graphicsQueue, family := b.dev.GraphicsQueue()
	_ = graphicsQueue
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(b.dev.Physical(), family, b.surface, &supported)
	if supported == vk.False {
		return 0, logging.Error(fmt.Errorf("swapchain: %w", device.ErrVkSurfNotSupported))
	}
	return family, nil
}

func (b *VkSurface) SurfaceInfo() (vk.SurfaceCapabilitiesKHR, vk.SurfaceFormatKHR, error) {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(b.dev.Physical(), b.surface, &caps); res != vk.Success {
		return vk.SurfaceCapabilitiesKHR{}, vk.SurfaceFormatKHR{}, logging.Error(fmt.Errorf("swapchain: surface capabilities: %v", res))
	}
	caps.Deref()

	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(b.dev.Physical(), b.surface, &count, nil)
	if count == 0 {
		return vk.SurfaceCapabilitiesKHR{}, vk.SurfaceFormatKHR{}, logging.Error(fmt.Errorf("swapchain: %w", device.ErrVkSurfNotSupported))
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(b.dev.Physical(), b.surface, &count, formats)
	formats[0].Deref()

	format := formats[0]
	if format.Format == vk.FormatUndefined {
		format.Format = vk.FormatB8g8r8a8Unorm
	}
	return caps, format, nil
}

func (b *VkSurface) DestroySwapchain(state *State) {
	handle := b.dev.Handle()
	for _, view := range state.Views {
		vk.DestroyImageView(handle, view, nil)
	}
	state.Views = nil
	state.Images = nil
	if b.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(handle, b.swapchain, nil)
		b.swapchain = vk.NullSwapchain
	}
}

func (b *VkSurface) Recreate(state *State) error {
	caps, format, err := b.SurfaceInfo()
	if err != nil {
		return err
	}
	state.SurfaceCaps = caps
	state.SurfaceFormat = format

	extent := caps.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		w, h := b.window.GetSize()
		extent = vk.Extent2D{Width: uint32(w), Height: uint32(h)}
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	preTransform := caps.CurrentTransform
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		preTransform = vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit)
	}

	presentMode := vk.PresentModeFifo
	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(b.dev.Physical(), b.surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(b.dev.Physical(), b.surface, &modeCount, modes)
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			presentMode = vk.PresentModeMailbox
			break
		}
	}

	oldSwapchain := b.swapchain
	var newSwapchain vk.Swapchain
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformFlagBits(preTransform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     oldSwapchain,
	}
	if res := vk.CreateSwapchain(b.dev.Handle(), &createInfo, nil, &newSwapchain); res != vk.Success {
		return logging.Error(fmt.Errorf("swapchain: %w: %v", device.ErrCouldNotCreateSwapchain, res))
	}
	if oldSwapchain != vk.NullSwapchain {
		for _, view := range state.Views {
			vk.DestroyImageView(b.dev.Handle(), view, nil)
		}
		vk.DestroySwapchain(b.dev.Handle(), oldSwapchain, nil)
	}
	b.swapchain = newSwapchain

	var count uint32
	vk.GetSwapchainImages(b.dev.Handle(), b.swapchain, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(b.dev.Handle(), b.swapchain, &count, images)

	views := make([]vk.ImageView, count)
	for i, img := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(b.dev.Handle(), &viewInfo, nil, &views[i]); res != vk.Success {
			return logging.Error(fmt.Errorf("swapchain: create image view: %v", res))
		}
	}

	state.Images = images
	state.Views = views
	state.Resolution = extent
	return nil
}

func (b *VkSurface) DPI() (int32, int32, error) {
	monitor := glfw.GetPrimaryMonitor()
	if monitor == nil {
		return 96, 96, nil
	}
	widthMM, heightMM := monitor.GetPhysicalSize()
	mode := monitor.GetVideoMode()
	if widthMM == 0 || heightMM == 0 || mode == nil {
		return 96, 96, nil
	}
	const mmPerInch = 25.4
	dpiX := int32(float64(mode.Width) / (float64(widthMM) / mmPerInch))
	dpiY := int32(float64(mode.Height) / (float64(heightMM) / mmPerInch))
	return dpiX, dpiY, nil
}

func (b *VkSurface) NextImage(state *State) error {
	var index uint32
	for {
		res := vk.AcquireNextImage(b.dev.Handle(), b.swapchain, ^uint64(0), state.PresentSema, vk.NullFence, &index)
		switch res {
		case vk.NotReady, vk.Timeout:
			continue
		case vk.Success, vk.Suboptimal:
			state.CurrentImage = index
			return nil
		case vk.ErrorOutOfDate:
			return logging.Error(fmt.Errorf("swapchain: %w", device.ErrOutOfDate))
		default:
			return logging.Error(fmt.Errorf("swapchain: %w: %v", device.ErrCouldNotAcquireNextImage, res))
		}
	}
}

func (b *VkSurface) Present(state *State) error {
	indices := []uint32{state.CurrentImage}
	swapchains := []vk.Swapchain{b.swapchain}
	semas := []vk.Semaphore{state.FrameSema}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    semas,
		SwapchainCount:     1,
		PSwapchains:        swapchains,
		PImageIndices:      indices,
	}
	res := vk.QueuePresent(state.PresentQueue, &presentInfo)
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return logging.Error(fmt.Errorf("swapchain: %w", device.ErrOutOfDate))
	default:
		return logging.Error(fmt.Errorf("swapchain: %w: %v", device.ErrPresentFailed, res))
	}
}
