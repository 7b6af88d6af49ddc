package device

import (
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// Timeline is the single monotonically increasing timeline semaphore a
// device uses to order submits and to gate resource reuse/freeing
// (SPEC_FULL.md §4.2's "Timeline discipline").
type Timeline struct {
	semaphore vk.Semaphore
	next      uint64
}

func newTimeline(handle vk.Device) (*Timeline, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  0,
	}
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafePointer(&typeInfo),
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(handle, &info, nil, &sem); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("device: create timeline semaphore: %w", Result(res)))
	}
	return &Timeline{semaphore: sem, next: 1}, nil
}

// Handle returns the underlying VkSemaphore.
func (t *Timeline) Handle() vk.Semaphore { return t.semaphore }

// Reserve returns the next value a submit should signal, and advances the
// counter. Each submit signals a distinct, increasing value.
func (t *Timeline) Reserve() uint64 {
	v := t.next
	t.next++
	return v
}

// Latest returns the most recently reserved value (the value the most
// recent submit is expected to signal).
func (t *Timeline) Latest() uint64 {
	if t.next == 0 {
		return 0
	}
	return t.next - 1
}

// CurrentValue queries the semaphore's counter value as observed by the
// host right now.
func (t *Timeline) CurrentValue(handle vk.Device) (uint64, error) {
	var value uint64
	if res := vk.GetSemaphoreCounterValue(handle, t.semaphore, &value); res != vk.Success {
		return 0, logging.Error(fmt.Errorf("device: get semaphore counter value: %w", Result(res)))
	}
	return value, nil
}

// WaitAtLeast blocks (with no timeout, per SPEC_FULL.md §5's u64::MAX
// default) until the timeline reaches at least value.
func (t *Timeline) WaitAtLeast(handle vk.Device, value uint64) error {
	return t.wait(handle, value, math.MaxUint64)
}

func (t *Timeline) wait(handle vk.Device, value uint64, timeoutNanos uint64) error {
	values := []uint64{value}
	waitInfo := vk.SemaphoreWaitInfo{
		SType:          vk.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    []vk.Semaphore{t.semaphore},
		PValues:        values,
	}
	res := vk.WaitSemaphores(handle, &waitInfo, timeoutNanos)
	switch vk.Result(res) {
	case vk.Success:
		return nil
	case vk.Timeout:
		return logging.Error(fmt.Errorf("device: wait timeline semaphore: %w", ErrTimeout))
	default:
		return logging.Error(fmt.Errorf("device: wait timeline semaphore: %w", Result(res)))
	}
}

func (t *Timeline) destroy(handle vk.Device) {
	if t.semaphore != vk.NullSemaphore {
		vk.DestroySemaphore(handle, t.semaphore, nil)
	}
}
