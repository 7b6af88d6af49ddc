package swapchain

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// DRM ioctl numbers, lifted from the kernel's include/uapi/drm/drm.h and
// drm_mode.h. There is no Go DRM binding in the pack to reuse, so these are
// issued directly via unix.Syscall(SYS_IOCTL, ...) the way
// golang.org/x/sys/unix callers issue any other ioctl the stdlib doesn't
// wrap (ground: original_source/thundr/src/display/drm/mod.rs drives the
// same resource/connector/crtc/framebuffer/pageflip sequence through the
// drm-rs crate; this is the legacy, non-atomic equivalent of that
// sequence, since no atomic KMS property/blob protocol implementation
// exists anywhere in the pack to adopt).
const (
	drmIoctlModeGetResources  = 0xc04064a0
	drmIoctlModeGetConnector  = 0xc05064a7
	drmIoctlModeGetEncoder    = 0xc01464a6
	drmIoctlModeCreateDumb    = 0xc02064b2
	drmIoctlModeMapDumb       = 0xc01064b3
	drmIoctlModeDestroyDumb   = 0xc00464b4
	drmIoctlModeAddFB2        = 0xc06864b8
	drmIoctlModeRmFB          = 0xc00464af
	drmIoctlModeSetCrtc       = 0xc06864a2
	drmIoctlModePageFlip      = 0xc01864b0
	drmIoctlPrimeHandleToFD   = 0xc00c6465
	drmModePageFlipEvent      = 0x01
	drmEventFlipComplete      = 0x02
	drmModeConnected          = 1
)

type drmModeRes struct {
	FbIDPtr, CrtcIDPtr, ConnectorIDPtr, EncoderIDPtr uint64
	CountFbs, CountCrtcs, CountConnectors, CountEncoders uint32
	MinWidth, MaxWidth, MinHeight, MaxHeight uint32
}

type drmModeGetConnector struct {
	EncodersPtr, ModesPtr, PropsPtr, PropValuesPtr uint64
	CountModes, CountProps, CountEncoders           uint32
	EncoderID, ConnectorID, ConnectorType, ConnectorTypeID uint32
	Connection, MmWidth, MmHeight, Subpixel         uint32
	Pad uint32
}

type drmModeModeInfo struct {
	Clock                                uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan  uint16
	Vrefresh                             uint32
	Flags, Type                          uint32
	Name                                 [32]byte
}

type drmModeGetEncoder struct {
	EncoderID, EncoderType, CrtcID          uint32
	PossibleCrtcs, PossibleClones           uint32
}

type drmModeCreateDumb struct {
	Height, Width uint32
	Bpp, Flags    uint32
	Handle        uint32
	Pitch         uint32
	Size          uint64
}

type drmModeDestroyDumb struct {
	Handle uint32
}

type drmModeAddFB2 struct {
	FbID, Width, Height, PixelFormat uint32
	Handles                          [4]uint32
	Pitches                          [4]uint32
	Offsets                          [4]uint32
	Modifier                         [4]uint64
	Flags                            uint32
	pad                              uint32
}

type drmModeSetCrtc struct {
	CrtcID, FbID, X, Y uint32
	GammaSize          uint32
	ModeValid          uint32
	Mode               drmModeModeInfo
	ConnectorsPtr      uint64
	CountConnectors    uint32
}

type drmModePageFlip struct {
	CrtcID, FbID, Flags, Reserved uint32
	UserData                      uint64
}

type drmPrimeHandle struct {
	Handle uint32
	Flags  uint32
	Fd     int32
}

func drmIoctl(fd int, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// drmFrame is one allocated scanout buffer: a dumb GEM buffer exported and
// imported into Vulkan as a dmabuf (SPEC_FULL.md §4.3's DRM backend).
type drmFrame struct {
	gemHandle uint32
	fbID      uint32
	image     device.Image
}

// DRM presents directly to a KMS connector/CRTC without a compositor.
// Each DRM opens its own card fd and runs one reader goroutine on it that
// hands flip completions to the waiter registered for their CRTC id
// (SPEC_FULL.md §9's DRM multi-CRTC Open Question); nothing is shared
// between DRM values, even when two of them open the same card.
type DRM struct {
	dev  *device.Device
	fd   int
	path string

	connectorID uint32
	crtcID      uint32
	mode        drmModeModeInfo
	widthMM     uint32
	heightMM    uint32

	frames  []drmFrame
	pending *flipWaiter
}

type flipWaiter struct {
	mu   sync.Mutex
	done map[uint32]chan struct{}
}

// NewDRM opens cardPath, picks the first connected connector and the first
// CRTC the card reports (encoders are not consulted), and prepares (without yet allocating
// buffers) a backend that will drive that output.
func NewDRM(dev *device.Device, cardPath string) (*DRM, error) {
	fd, err := unix.Open(cardPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, logging.Error(fmt.Errorf("swapchain: open %s: %w", cardPath, err))
	}

	d := &DRM{dev: dev, fd: fd, path: cardPath, pending: &flipWaiter{done: map[uint32]chan struct{}{}}}
	if err := d.selectOutput(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	go d.pollEvents()
	return d, nil
}

func (d *DRM) selectOutput() error {
	var res drmModeRes
	if err := drmIoctl(d.fd, drmIoctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return logging.Error(fmt.Errorf("swapchain: drm get resources: %w", err))
	}
	if res.CountConnectors == 0 || res.CountCrtcs == 0 {
		return logging.Error(fmt.Errorf("swapchain: %w: no connectors or crtcs", device.ErrNoDisplay))
	}

	connectorIDs := make([]uint32, res.CountConnectors)
	crtcIDs := make([]uint32, res.CountCrtcs)
	res.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectorIDs[0])))
	res.CrtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcIDs[0])))
	if err := drmIoctl(d.fd, drmIoctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return logging.Error(fmt.Errorf("swapchain: drm get resources (ids): %w", err))
	}

	for _, connID := range connectorIDs {
		var conn drmModeGetConnector
		conn.ConnectorID = connID
		if err := drmIoctl(d.fd, drmIoctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			continue
		}
		if conn.Connection != drmModeConnected || conn.CountModes == 0 {
			continue
		}

		modes := make([]drmModeModeInfo, conn.CountModes)
		conn.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
		if err := drmIoctl(d.fd, drmIoctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			continue
		}

		d.connectorID = connID
		d.mode = modes[0]
		d.widthMM = conn.MmWidth
		d.heightMM = conn.MmHeight
		d.crtcID = crtcIDs[0]
		return nil
	}
	return logging.Error(fmt.Errorf("swapchain: %w: no connected connector", device.ErrNoDisplay))
}

func (d *DRM) SelectQueueFamily() (uint32, error) {
	_, family := d.dev.GraphicsQueue()
	return family, nil
}

func (d *DRM) SurfaceInfo() (vk.SurfaceCapabilitiesKHR, vk.SurfaceFormatKHR, error) {
	extent := vk.Extent2D{Width: uint32(d.mode.Hdisplay), Height: uint32(d.mode.Vdisplay)}
	caps := vk.SurfaceCapabilitiesKHR{
		MinImageCount:       2,
		MaxImageCount:       2,
		CurrentExtent:       extent,
		MinImageExtent:      extent,
		MaxImageExtent:      extent,
		MaxImageArrayLayers: 1,
	}
	format := vk.SurfaceFormatKHR{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	return caps, format, nil
}

func (d *DRM) destroyFrames() {
	for _, f := range d.frames {
		drmIoctl(d.fd, drmIoctlModeRmFB, unsafe.Pointer(&f.fbID))
		d.dev.DestroyImage(f.image)
		destroyDumb := drmModeDestroyDumb{Handle: f.gemHandle}
		drmIoctl(d.fd, drmIoctlModeDestroyDumb, unsafe.Pointer(&destroyDumb))
	}
	d.frames = nil
}

func (d *DRM) DestroySwapchain(state *State) {
	d.destroyFrames()
	state.Images = nil
	state.Views = nil
}

// Recreate allocates two dumb GEM buffers sized to the active mode,
// exports each as a dmabuf fd, imports them into Vulkan, and wraps each in
// a DRM framebuffer object ready for SetCrtc/PageFlip.
func (d *DRM) Recreate(state *State) error {
	d.destroyFrames()

	width, height := uint32(d.mode.Hdisplay), uint32(d.mode.Vdisplay)
	graphicsQueue, graphicsFamily := d.dev.GraphicsQueue()
	_ = graphicsQueue

	for i := 0; i < 2; i++ {
		create := drmModeCreateDumb{Width: width, Height: height, Bpp: 32}
		if err := drmIoctl(d.fd, drmIoctlModeCreateDumb, unsafe.Pointer(&create)); err != nil {
			return logging.Error(fmt.Errorf("swapchain: drm create dumb buffer: %w", err))
		}

		prime := drmPrimeHandle{Handle: create.Handle}
		if err := drmIoctl(d.fd, drmIoctlPrimeHandleToFD, unsafe.Pointer(&prime)); err != nil {
			return logging.Error(fmt.Errorf("swapchain: drm prime handle to fd: %w", err))
		}

		img, err := d.dev.ImportDmabufImage(device.Dmabuf{
			Width:  width,
			Height: height,
			Format: vk.FormatB8g8r8a8Unorm,
			Planes: []device.DmabufPlane{{
				Fd:         int(prime.Fd),
				PlaneIndex: 0,
				Offset:     0,
				Stride:     create.Pitch,
				Modifier:   0, // linear; dumb buffers have no explicit modifier
			}},
		}, graphicsFamily)
		unix.Close(int(prime.Fd))
		if err != nil {
			destroyDumb := drmModeDestroyDumb{Handle: create.Handle}
			drmIoctl(d.fd, drmIoctlModeDestroyDumb, unsafe.Pointer(&destroyDumb))
			return err
		}

		addFB := drmModeAddFB2{
			Width:       width,
			Height:      height,
			PixelFormat: fourccArgb8888,
		}
		addFB.Handles[0] = create.Handle
		addFB.Pitches[0] = create.Pitch
		if err := drmIoctl(d.fd, drmIoctlModeAddFB2, unsafe.Pointer(&addFB)); err != nil {
			d.dev.DestroyImage(img)
			destroyDumb := drmModeDestroyDumb{Handle: create.Handle}
			drmIoctl(d.fd, drmIoctlModeDestroyDumb, unsafe.Pointer(&destroyDumb))
			return logging.Error(fmt.Errorf("swapchain: drm add fb: %w", err))
		}

		d.frames = append(d.frames, drmFrame{gemHandle: create.Handle, fbID: addFB.FbID, image: img})
		state.Images = append(state.Images, img.Handle)
		state.Views = append(state.Views, img.View)
	}

	state.Resolution = vk.Extent2D{Width: width, Height: height}

	setCrtc := drmModeSetCrtc{
		CrtcID:    d.crtcID,
		FbID:      d.frames[0].fbID,
		ModeValid: 1,
		Mode:      d.mode,
	}
	connectors := []uint32{d.connectorID}
	setCrtc.ConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	setCrtc.CountConnectors = 1
	if err := drmIoctl(d.fd, drmIoctlModeSetCrtc, unsafe.Pointer(&setCrtc)); err != nil {
		return logging.Error(fmt.Errorf("swapchain: drm set crtc: %w", err))
	}
	return nil
}

const fourccArgb8888 = uint32('A') | uint32('R')<<8 | uint32('2')<<16 | uint32('4')<<24

func (d *DRM) DPI() (int32, int32, error) {
	if d.widthMM == 0 || d.heightMM == 0 {
		return 96, 96, nil
	}
	const mmPerInch = 25.4
	dpiX := int32(float64(d.mode.Hdisplay) / (float64(d.widthMM) / mmPerInch))
	dpiY := int32(float64(d.mode.Vdisplay) / (float64(d.heightMM) / mmPerInch))
	return dpiX, dpiY, nil
}

func (d *DRM) NextImage(state *State) error {
	state.CurrentImage = (state.CurrentImage + 1) % uint32(len(d.frames))
	return nil
}

// Present issues a page flip for the current image and blocks until the
// DRM event demultiplexer observes its completion.
func (d *DRM) Present(state *State) error {
	frame := d.frames[state.CurrentImage]
	done := d.pending.register(d.crtcID)

	flip := drmModePageFlip{CrtcID: d.crtcID, FbID: frame.fbID, Flags: drmModePageFlipEvent}
	if err := drmIoctl(d.fd, drmIoctlModePageFlip, unsafe.Pointer(&flip)); err != nil {
		d.pending.cancel(d.crtcID)
		return logging.Error(fmt.Errorf("swapchain: %w: drm page flip: %v", device.ErrPresentFailed, err))
	}
	<-done
	return nil
}

func (w *flipWaiter) register(crtc uint32) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan struct{}, 1)
	w.done[crtc] = ch
	return ch
}

func (w *flipWaiter) cancel(crtc uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.done, crtc)
}

func (w *flipWaiter) complete(crtc uint32) {
	w.mu.Lock()
	ch, ok := w.done[crtc]
	delete(w.done, crtc)
	w.mu.Unlock()
	if ok {
		ch <- struct{}{}
	}
}

// drmEvent mirrors struct drm_event: a generic header every event on the
// card fd starts with.
type drmEvent struct {
	Type   uint32
	Length uint32
}

type drmEventVblank struct {
	Base                   drmEvent
	UserData               uint64
	TvSec, TvUsec          uint32
	SequenceOrCrtcID       uint32
	CrtcID                 uint32
}

// pollEvents reads page-flip completion events off this DRM's own card fd
// and routes each one to the waiter registered for the CRTC id in the
// event payload (SPEC_FULL.md §9's DRM multi-CRTC demultiplexing Open
// Question).
func (d *DRM) pollEvents() {
	file := os.NewFile(uintptr(d.fd), d.path)
	buf := make([]byte, 1024)
	for {
		n, err := file.Read(buf)
		if err != nil || n < 8 {
			return
		}
		offset := 0
		for offset+8 <= n {
			var ev drmEvent
			ev.Type = leUint32(buf[offset:])
			ev.Length = leUint32(buf[offset+4:])
			if ev.Length == 0 || int(offset)+int(ev.Length) > n {
				break
			}
			if ev.Type == drmEventFlipComplete && int(ev.Length) >= 32 {
				crtc := leUint32(buf[offset+28:])
				d.pending.complete(crtc)
			}
			offset += int(ev.Length)
		}
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
