// Package device implements the Vulkan instance/physical/logical device
// layer: queue selection, memory allocation, staging uploads, dmabuf import
// and the per-device timeline semaphore discipline (SPEC_FULL.md §4.2).
package device

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// requiredDeviceExtensions are mandatory per SPEC_FULL.md §4.2: descriptor
// indexing (bindless arrays) and timeline semaphores.
var requiredDeviceExtensions = []string{
	"VK_EXT_descriptor_indexing",
	"VK_KHR_timeline_semaphore",
	"VK_KHR_maintenance3",
}

// Config carries tunables for instance/device creation. It has no TOML
// mapping of its own; cmd/dakota-demo fills it from the TOML-loaded
// dakota.Config.
type Config struct {
	ApplicationName    string
	EnableValidation   bool
	PreferredGPUIndex  int
	ExtraInstanceExts  []string
	ExtraDeviceExts    []string
}

// DefaultConfig returns the zero-configuration defaults: validation off,
// first enumerated GPU.
func DefaultConfig() Config {
	return Config{
		ApplicationName:   "dakota",
		EnableValidation:  false,
		PreferredGPUIndex: 0,
	}
}

// NewInstance creates a VkInstance with the given config's validation layer
// and any instance extensions the caller's chosen swapchain backend needs
// (e.g. the VK_KHR_surface family for the vksurface backend), appended via
// extraInstanceExts.
func NewInstance(cfg Config, extraInstanceExts []string) (vk.Instance, error) {
	if err := vk.Init(); err != nil {
		return vk.NullInstance, logging.Error(fmt.Errorf("device: loading vulkan library: %w", err))
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cfg.ApplicationName + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "thundr\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion11,
	}

	exts := append(append([]string{}, extraInstanceExts...), cfg.ExtraInstanceExts...)
	var layers []string
	if cfg.EnableValidation {
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
	}

	createInfo := &vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: nullTerminatedStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     nullTerminatedStrings(layers),
	}

	var instance vk.Instance
	result := vk.CreateInstance(createInfo, nil, &instance)
	if result != vk.Success {
		return vk.NullInstance, logging.Error(fmt.Errorf("device: vkCreateInstance: %w", Result(result)))
	}
	vk.InitInstance(instance)
	return instance, nil
}

func nullTerminatedStrings(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s + "\x00"
	}
	return out
}
