package dakota

import "sync"

// Modifier is a bitmask of held keyboard modifier keys, matching the SDL
// keymod bit layout the teacher's input code already assumes (ground:
// original_source/dakota/src/event.rs's Watch/Mods handling).
type Modifier uint16

const (
	ModLShift Modifier = 0x0001
	ModRShift Modifier = 0x0002
	ModLCtrl  Modifier = 0x0040
	ModRCtrl  Modifier = 0x0080
	ModLAlt   Modifier = 0x0100
	ModRAlt   Modifier = 0x0200
	ModLGUI   Modifier = 0x0400
	ModRGUI   Modifier = 0x0800
	ModNum    Modifier = 0x1000
	ModCaps   Modifier = 0x2000
	ModMode   Modifier = 0x4000
)

// RawKeycode is a platform scancode. Linux wraps an evdev keycode; other
// platform backends would add their own variant, but this module only
// targets Linux input sources.
type RawKeycode struct {
	Linux uint32
}

// AxisSource distinguishes a scroll wheel click from continuous touchpad
// finger scrolling, mirroring libinput's axis source (ground: event.rs's
// AxisSource).
type AxisSource int

const (
	AxisSourceWheel AxisSource = iota
	AxisSourceFinger
)

// GlobalEvent is process-wide, not tied to any particular output or virtual
// output (ground: event.rs's GlobalEvent).
type GlobalEvent struct {
	Kind        GlobalEventKind
	UserFdValue uint64 // valid when Kind == GlobalEventUserFdReadable
}

type GlobalEventKind int

const (
	GlobalEventUserFdReadable GlobalEventKind = iota
	GlobalEventQuit
)

// OutputEvent is emitted by one Output (ground: event.rs's OutputEvent).
type OutputEvent struct {
	Kind OutputEventKind
}

type OutputEventKind int

const (
	OutputEventResized OutputEventKind = iota
	OutputEventDestroyed
	OutputEventRedraw
)

// PlatformEventKind distinguishes the variants of PlatformEvent.
type PlatformEventKind int

const (
	PlatformEventInputKeyDown PlatformEventKind = iota
	PlatformEventInputKeyUp
	PlatformEventInputKeyboardModifiers
	PlatformEventInputMouseMove
	PlatformEventInputMouseButtonDown
	PlatformEventInputMouseButtonUp
	PlatformEventInputScroll
)

// PlatformEvent is one input event delivered to a VirtualOutput (ground:
// event.rs's PlatformEvent enum, flattened into one Go struct with a Kind
// discriminant since Go has no tagged unions).
type PlatformEvent struct {
	Kind PlatformEventKind

	// InputKeyDown / InputKeyUp
	Key        string
	UTF8       string
	RawKeycode RawKeycode

	// InputKeyboardModifiers
	Mods Modifier

	// InputMouseMove
	DX, DY int32

	// InputMouseButtonDown / InputMouseButtonUp (absolute position, stamped
	// from the VirtualOutput's cached mouse position at event time)
	Button  uint8
	X, Y    int32

	// InputScroll
	Position       [2]int32
	XRel, YRel     float32
	V120Val        int32
	Source         AxisSource
}

// eventQueue is a small mutex-guarded FIFO shared by the three event kinds
// above (ground: event.rs's *EventSystem VecDeque wrappers).
type eventQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *eventQueue[T]) push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, v)
}

// pop removes and returns the oldest queued event, FIFO (ground: event.rs's
// VecDeque::pop_front).
func (q *eventQueue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}
