package swapchain

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
)

const (
	headlessWidth  = 640
	headlessHeight = 480
)

// Headless is an in-memory backend with no real presentation, used in
// tests and for offscreen rendering (ground:
// original_source/thundr/src/display/headless.rs).
type Headless struct {
	dev    *device.Device
	images []device.Image
}

// NewHeadless returns a Headless backend bound to dev.
func NewHeadless(dev *device.Device) *Headless {
	return &Headless{dev: dev}
}

func (h *Headless) SelectQueueFamily() (uint32, error) {
	_, family := h.dev.GraphicsQueue()
	return family, nil
}

func (h *Headless) SurfaceInfo() (vk.SurfaceCapabilitiesKHR, vk.SurfaceFormatKHR, error) {
	extent := vk.Extent2D{Width: headlessWidth, Height: headlessHeight}
	caps := vk.SurfaceCapabilitiesKHR{
		MinImageCount:      2,
		MaxImageCount:      2,
		CurrentExtent:      extent,
		MinImageExtent:     extent,
		MaxImageExtent:     extent,
		MaxImageArrayLayers: 1,
	}
	format := vk.SurfaceFormatKHR{
		Format:     vk.FormatB8g8r8a8Unorm,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}
	return caps, format, nil
}

func (h *Headless) destroySwapchainImages() {
	for _, img := range h.images {
		h.dev.DestroyImage(img)
	}
	h.images = nil
}

func (h *Headless) DestroySwapchain(state *State) {
	h.destroySwapchainImages()
	state.Images = nil
	state.Views = nil
}

func (h *Headless) Recreate(state *State) error {
	h.destroySwapchainImages()
	state.Images = nil
	state.Views = nil

	for i := 0; i < 2; i++ {
		img, err := h.dev.CreateImage2D(headlessWidth, headlessHeight, vk.FormatB8g8r8a8Unorm,
			vk.ImageUsageTransferSrcBit|vk.ImageUsageColorAttachmentBit, vk.ImageTilingLinear)
		if err != nil {
			return err
		}
		h.images = append(h.images, img)
		state.Images = append(state.Images, img.Handle)
		state.Views = append(state.Views, img.View)
	}
	state.Resolution = vk.Extent2D{Width: headlessWidth, Height: headlessHeight}
	return nil
}

func (h *Headless) DPI() (int32, int32, error) { return 100, 100, nil }

func (h *Headless) NextImage(state *State) error {
	state.CurrentImage = (state.CurrentImage + 1) % uint32(len(h.images))
	return nil
}

func (h *Headless) Present(state *State) error { return nil }
