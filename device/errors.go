package device

import "errors"

// Error taxonomy shared by device, swapchain, renderer and pipeline
// (SPEC_FULL.md §6). These are sentinels so callers compare with errors.Is
// even after a call site wraps them with fmt.Errorf("...: %w", err).
var (
	ErrTimeout                   = errors.New("thundr: timeout")
	ErrOutOfMemory                = errors.New("thundr: out of memory")
	ErrNotReady                  = errors.New("thundr: not ready")
	ErrCouldNotAcquireNextImage  = errors.New("thundr: could not acquire next swapchain image")
	ErrPresentFailed             = errors.New("thundr: present failed")
	ErrOutOfDate                 = errors.New("thundr: swapchain out of date")
	ErrVkSurfNotSupported        = errors.New("thundr: surface not supported by device")
	ErrVkExtensionsMissing       = errors.New("thundr: required vulkan extensions missing")
	ErrSurfaceNotFound           = errors.New("thundr: surface not found")
	ErrRecordingAlreadyInProgress = errors.New("thundr: command recording already in progress")
	ErrRecordingNotInProgress    = errors.New("thundr: command recording not in progress")
	ErrInvalidFd                 = errors.New("thundr: invalid file descriptor")
	ErrInvalidDmabuf             = errors.New("thundr: invalid dmabuf")
	ErrCouldNotCreateSwapchain   = errors.New("thundr: could not create swapchain")
	ErrCouldNotCreateImage       = errors.New("thundr: could not create image")
	ErrInvalidFormat             = errors.New("thundr: invalid format")
	ErrNoDisplay                 = errors.New("thundr: no display")
	ErrInvalidStride             = errors.New("thundr: invalid stride")
	ErrInvalid                   = errors.New("thundr: invalid")
	ErrInvalidDocument           = errors.New("thundr: invalid scene document")
)
