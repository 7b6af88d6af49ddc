// Package swapchain abstracts over the ways a compositor can get pixels on
// screen: a windowed VkSurfaceKHR, Linux DRM/KMS through the legacy
// (non-atomic) SetCrtc/PageFlip ioctls, or an in-memory headless backend for
// tests.
package swapchain

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// State is the shared swapchain-dependent state consumed by the renderer
// (ground: original_source/thundr/src/display/mod.rs's DisplayState).
type State struct {
	Images        []vk.Image
	Views         []vk.ImageView
	Resolution    vk.Extent2D
	SurfaceCaps   vk.SurfaceCapabilitiesKHR
	SurfaceFormat vk.SurfaceFormatKHR
	CurrentImage  uint32
	PresentSema   vk.Semaphore
	FrameSema     vk.Semaphore
	PresentQueue  vk.Queue
}

// Backend is implemented by each presentation mechanism. Exactly one is
// active per Swapchain (ground: thundr's `trait Swapchain`).
type Backend interface {
	SelectQueueFamily() (uint32, error)
	SurfaceInfo() (vk.SurfaceCapabilitiesKHR, vk.SurfaceFormatKHR, error)
	DestroySwapchain(state *State)
	Recreate(state *State) error
	DPI() (int32, int32, error)
	NextImage(state *State) error
	Present(state *State) error
}

// Swapchain owns a Backend and the shared State the renderer reads images
// and views out of (ground: thundr's `Display`).
type Swapchain struct {
	backend Backend
	state   State
}

// New wraps an already-constructed Backend and performs its first
// recreate, matching thundr's Display::new flow of creating semaphores,
// querying surface info, then doing an initial recreate_swapchain.
func New(handle vk.Device, backend Backend, presentQueue vk.Queue) (*Swapchain, error) {
	caps, format, err := backend.SurfaceInfo()
	if err != nil {
		return nil, err
	}

	presentSema, err := createSemaphore(handle)
	if err != nil {
		return nil, err
	}
	frameSema, err := createSemaphore(handle)
	if err != nil {
		return nil, err
	}

	sc := &Swapchain{
		backend: backend,
		state: State{
			SurfaceCaps:   caps,
			SurfaceFormat: format,
			PresentSema:   presentSema,
			FrameSema:     frameSema,
			PresentQueue:  presentQueue,
		},
	}
	if err := backend.Recreate(&sc.state); err != nil {
		return nil, err
	}
	return sc, nil
}

func createSemaphore(handle vk.Device) (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sema vk.Semaphore
	if res := vk.CreateSemaphore(handle, &info, nil, &sema); res != vk.Success {
		return vk.NullSemaphore, logging.Error(fmt.Errorf("swapchain: create semaphore: %v", res))
	}
	return sema, nil
}

// SelectQueueFamily delegates to the active backend.
func (s *Swapchain) SelectQueueFamily() (uint32, error) { return s.backend.SelectQueueFamily() }

// Recreate tears down and rebuilds the swapchain-dependent Vulkan objects,
// used on VK_ERROR_OUT_OF_DATE_KHR (window resize) per SPEC_FULL.md §4.3.
func (s *Swapchain) Recreate() error {
	return s.backend.Recreate(&s.state)
}

// DPI returns the dots-per-inch of the active output.
func (s *Swapchain) DPI() (int32, int32, error) { return s.backend.DPI() }

// NextImage acquires the next image to render into.
func (s *Swapchain) NextImage() error { return s.backend.NextImage(&s.state) }

// Present flips the current image to the screen.
func (s *Swapchain) Present() error { return s.backend.Present(&s.state) }

// State exposes the shared swapchain state for the renderer/pipeline to
// read image/view handles and resolution from.
func (s *Swapchain) State() *State { return &s.state }

// Destroy tears down the swapchain-dependent Vulkan objects and the
// backend itself.
func (s *Swapchain) Destroy() {
	s.backend.DestroySwapchain(&s.state)
}
