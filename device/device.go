package device

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// Device owns the selected physical/logical Vulkan device, its graphics and
// transfer queues, and the per-device timeline semaphore, memory deletion
// queue and staging buffer described in SPEC_FULL.md §4.2.
type Device struct {
	instance vk.Instance

	physical   vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	memProps   vk.PhysicalDeviceMemoryProperties

	handle vk.Device

	graphicsFamily uint32
	transferFamily uint32
	graphicsQueue  vk.Queue
	transferQueue  vk.Queue

	timeline   *Timeline
	deletion   *deletionQueue
	staging    *stagingBuffer
	copyPool   vk.CommandPool
	copyFence  vk.Fence
}

// New selects the physical device at cfg.PreferredGPUIndex (the first one
// when the index is out of range), picks its graphics-capable and
// transfer-capable queue families (possibly identical), creates a
// logical device with the mandatory extensions, and wires up the timeline
// semaphore and staging buffer (ground: vulkan-go-asche's Init(), extended
// per SPEC_FULL.md §4.2's transfer-queue and timeline requirements).
func New(instance vk.Instance, cfg Config, extraDeviceExts []string) (*Device, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("device: enumerate physical devices: %w", Result(res)))
	}
	if count == 0 {
		return nil, logging.Error(fmt.Errorf("device: %w: no physical devices", ErrNoDisplay))
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, physicalDevices); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("device: enumerate physical devices: %w", Result(res)))
	}

	idx := cfg.PreferredGPUIndex
	if idx < 0 || idx >= int(count) {
		idx = 0
	}
	physical := physicalDevices[idx]

	graphicsFamily, transferFamily, err := selectQueueFamilies(physical)
	if err != nil {
		return nil, err
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProps)
	memProps.Deref()

	exts := append(append([]string{}, requiredDeviceExtensions...), extraDeviceExts...)
	exts = append(exts, cfg.ExtraDeviceExts...)

	queueInfos := buildQueueCreateInfos(graphicsFamily, transferFamily)

	var handle vk.Device
	createInfo := &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: nullTerminatedStrings(exts),
	}
	if res := vk.CreateDevice(physical, createInfo, nil, &handle); res != vk.Success {
		if vk.Result(res) == vk.ErrorExtensionNotPresent {
			return nil, logging.Error(fmt.Errorf("device: %w: %s", ErrVkExtensionsMissing, Result(res)))
		}
		return nil, logging.Error(fmt.Errorf("device: vkCreateDevice: %w", Result(res)))
	}

	d := &Device{
		instance:       instance,
		physical:       physical,
		properties:     properties,
		memProps:       memProps,
		handle:         handle,
		graphicsFamily: graphicsFamily,
		transferFamily: transferFamily,
	}

	vk.GetDeviceQueue(handle, graphicsFamily, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(handle, transferFamily, 0, &d.transferQueue)

	d.timeline, err = newTimeline(handle)
	if err != nil {
		return nil, err
	}
	d.deletion = newDeletionQueue(d)

	if err := d.initStaging(); err != nil {
		return nil, err
	}

	return d, nil
}

// Handle returns the underlying VkDevice.
func (d *Device) Handle() vk.Device { return d.handle }

// Physical returns the underlying VkPhysicalDevice.
func (d *Device) Physical() vk.PhysicalDevice { return d.physical }

// GraphicsQueue returns the selected graphics-capable queue and its family.
func (d *Device) GraphicsQueue() (vk.Queue, uint32) { return d.graphicsQueue, d.graphicsFamily }

// TransferQueue returns the selected transfer-capable queue and its family.
func (d *Device) TransferQueue() (vk.Queue, uint32) { return d.transferQueue, d.transferFamily }

// Timeline returns the device's single monotonically increasing timeline
// semaphore.
func (d *Device) Timeline() *Timeline { return d.timeline }

// WaitIdle blocks until all queued work on this device has completed.
func (d *Device) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.handle); res != vk.Success {
		return logging.Error(fmt.Errorf("device: vkDeviceWaitIdle: %w", Result(res)))
	}
	return nil
}

// Destroy releases the logical device. The caller must have waited for the
// timeline to reach its last signaled value first.
func (d *Device) Destroy() {
	d.deletion.flushAll()
	if d.copyFence != vk.NullFence {
		vk.DestroyFence(d.handle, d.copyFence, nil)
	}
	if d.copyPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.handle, d.copyPool, nil)
	}
	d.timeline.destroy(d.handle)
	vk.DestroyDevice(d.handle, nil)
}

// selectQueueFamilies picks the first graphics-capable family and the first
// transfer-capable family, which may be the same index (ground: SPEC_FULL.md
// §4.2 "selects ... a transfer-capable queue family and a graphics-capable
// queue family (may be identical)").
func selectQueueFamilies(physical vk.PhysicalDevice) (graphics, transfer uint32, err error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	if count == 0 {
		return 0, 0, logging.Error(fmt.Errorf("device: %w: no queue families", ErrInvalid))
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, props)

	graphicsFound, transferFound := false, false
	for i := range props {
		props[i].Deref()
		flags := vk.QueueFlagBits(props[i].QueueFlags)
		if !graphicsFound && flags&vk.QueueGraphicsBit != 0 {
			graphics = uint32(i)
			graphicsFound = true
		}
		if !transferFound && flags&(vk.QueueTransferBit|vk.QueueGraphicsBit|vk.QueueComputeBit) != 0 {
			transfer = uint32(i)
			transferFound = true
		}
	}
	if !graphicsFound {
		return 0, 0, logging.Error(fmt.Errorf("device: %w: no graphics-capable queue family", ErrInvalid))
	}
	if !transferFound {
		transfer = graphics
	}
	return graphics, transfer, nil
}

func buildQueueCreateInfos(graphicsFamily, transferFamily uint32) []vk.DeviceQueueCreateInfo {
	priorities := []float32{1.0}
	infos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphicsFamily,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	if transferFamily != graphicsFamily {
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: transferFamily,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}
	return infos
}

// FindMemoryType returns the index of a memory type matching both the
// typeBits mask returned by a memory-requirements query and the requested
// property flags (ground: SPEC_FULL.md §4.2's memory allocation contract).
func (d *Device) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		memType := d.memProps.MemoryTypes[i]
		if typeBits&(1<<i) == 0 {
			continue
		}
		if vk.MemoryPropertyFlagBits(memType.PropertyFlags)&vk.MemoryPropertyFlagBits(properties) == vk.MemoryPropertyFlagBits(properties) {
			return i, nil
		}
	}
	return 0, logging.Error(fmt.Errorf("device: %w: no matching memory type for bits=%#x properties=%#x", ErrOutOfMemory, typeBits, properties))
}
