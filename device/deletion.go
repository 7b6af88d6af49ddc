package device

// deletionQueue defers vkFreeMemory/vkDestroy* calls until the device
// timeline has reached the value signaled by the submit that last used the
// resource, so in-flight frames never lose a resource out from under them
// (SPEC_FULL.md §4.2, invariant in §8: "its GPU memory is not freed until
// the device timeline reaches the value signaled by the submit that
// consumed it").
type deletionQueue struct {
	dev     *Device
	pending []pendingDeletion
}

type pendingDeletion struct {
	afterTimelineValue uint64
	free               func()
}

func newDeletionQueue(dev *Device) *deletionQueue {
	return &deletionQueue{dev: dev}
}

// Defer schedules free to run once the device timeline has reached
// afterValue (typically the value of the last submit that referenced the
// resource being destroyed).
func (q *deletionQueue) Defer(afterValue uint64, free func()) {
	q.pending = append(q.pending, pendingDeletion{afterTimelineValue: afterValue, free: free})
}

// Collect runs every pending deletion whose timeline value has already
// passed, and drops them from the queue. Intended to be called once per
// frame.
func (q *deletionQueue) Collect() error {
	current, err := q.dev.timeline.CurrentValue(q.dev.handle)
	if err != nil {
		return err
	}
	remaining := q.pending[:0]
	for _, p := range q.pending {
		if current >= p.afterTimelineValue {
			p.free()
		} else {
			remaining = append(remaining, p)
		}
	}
	q.pending = remaining
	return nil
}

// flushAll waits for the timeline to catch up to every pending deletion and
// runs them all, used at device teardown.
func (q *deletionQueue) flushAll() {
	for _, p := range q.pending {
		_ = q.dev.timeline.WaitAtLeast(q.dev.handle, p.afterTimelineValue)
		p.free()
	}
	q.pending = nil
}

// DeferDestroy exposes the deletion queue to other packages in this module
// (renderer, swapchain) that need to defer freeing a Vulkan resource until
// it is safe.
func (d *Device) DeferDestroy(afterTimelineValue uint64, free func()) {
	d.deletion.Defer(afterTimelineValue, free)
}

// CollectGarbage runs any deletions whose timeline value has passed.
func (d *Device) CollectGarbage() error {
	return d.deletion.Collect()
}
