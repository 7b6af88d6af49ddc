// Package renderer owns the bindless descriptor set that gives shaders
// indexed access to every sampled image currently alive in a scene, plus
// the per-frame release queue of resources a completed submit can safely
// drop (ground: original_source/thundr/src/renderer.rs).
package renderer

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// reservedBindlessSlots accounts for the null image and other fixed
// entries this renderer keeps alongside scene content (ground: renderer.rs
// subtracting 3 from the driver's reported max_sampler_count).
const reservedBindlessSlots = 3

// PushConstants mirrors the shader push-constant block (ground:
// renderer.rs's PushConstants).
type PushConstants struct {
	Width, Height      uint32
	ImageID            int32
	UseColor           int32
	ColorR, ColorG, ColorB, ColorA float32
	DimsX, DimsY, DimsW, DimsH     int32
}

// RecordParams carries the per-draw push-constant state a pipeline
// records into a command buffer.
type RecordParams struct {
	Push PushConstants
}

// Releasable is a resource whose teardown can be deferred to the end of a
// frame once the GPU is done referencing it (ground: thundr's
// `Droppable` trait objects in `r_release`).
type Releasable interface {
	Release()
}

// Renderer owns the bindless COMBINED_IMAGE_SAMPLER[] descriptor set and
// the ECS-indexed table of per-image descriptor infos that backs it.
type Renderer struct {
	dev     *device.Device
	sampler vk.Sampler

	descPool   vk.DescriptorPool
	descLayout vk.DescriptorSetLayout
	descSet    vk.DescriptorSet
	descSize   int

	nullImage     device.Image
	nullImageMem  vk.DeviceMemory
	nullEntity    ecs.Entity

	imageECS   *ecs.Instance
	imageInfos *ecs.Component[vk.DescriptorImageInfo]

	release []Releasable
}

// New builds the bindless descriptor pool/layout, a 2x2 null image used to
// back unused descriptor slots, and registers the null image at ECS slot
// 0 so the "no image" array entry is never garbage (ground: renderer.rs's
// Renderer::new).
func New(dev *device.Device, maxSamplerCount uint32, surfaceFormat vk.Format) (*Renderer, error) {
	sampler, err := createSampler(dev)
	if err != nil {
		return nil, err
	}

	maxImages := maxSamplerCount - reservedBindlessSlots
	pool, layout, err := allocateBindlessResources(dev, maxImages)
	if err != nil {
		return nil, err
	}
	descSet, err := allocateBindlessDescriptorSet(dev, pool, layout, 1)
	if err != nil {
		return nil, err
	}

	nullImage, err := dev.CreateImage2D(2, 2, surfaceFormat, vk.ImageUsageSampledBit, vk.ImageTilingLinear)
	if err != nil {
		return nil, err
	}

	imageECS := ecs.NewInstance()
	imageInfos := ecs.AddNonSparseComponent(imageECS, func(ecs.ID) vk.DescriptorImageInfo {
		return vk.DescriptorImageInfo{
			Sampler:     sampler,
			ImageView:   nullImage.View,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
	})

	nullEntity := imageECS.CreateEntity()
	imageInfos.Set(nullEntity, vk.DescriptorImageInfo{
		Sampler:     sampler,
		ImageView:   nullImage.View,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	})

	return &Renderer{
		dev:          dev,
		sampler:      sampler,
		descPool:     pool,
		descLayout:   layout,
		descSet:      descSet,
		nullImage:    nullImage,
		nullEntity:   nullEntity,
		imageECS:     imageECS,
		imageInfos:   imageInfos,
	}, nil
}

func createSampler(dev *device.Device) (vk.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeClampToBorder,
		AddressModeV:            vk.SamplerAddressModeClampToBorder,
		AddressModeW:            vk.SamplerAddressModeClampToBorder,
		BorderColor:             vk.BorderColorFloatTransparentBlack,
		UnnormalizedCoordinates: vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(dev.Handle(), &info, nil, &sampler); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("renderer: create sampler: %v", res))
	}
	return sampler, nil
}

// allocateBindlessResources creates the descriptor pool and set layout for
// the single COMBINED_IMAGE_SAMPLER[maxImageCount] binding, marked
// VARIABLE_DESCRIPTOR_COUNT | PARTIALLY_BOUND so it can be resized without
// recreating the layout.
func allocateBindlessResources(dev *device.Device, maxImageCount uint32) (vk.DescriptorPool, vk.DescriptorSetLayout, error) {
	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxImageCount,
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
		MaxSets:       1,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(dev.Handle(), &poolInfo, nil, &pool); res != vk.Success {
		return nil, nil, logging.Error(fmt.Errorf("renderer: create descriptor pool: %v", res))
	}

	binding := vk.DescriptorSetLayoutBinding{
		Binding:         1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxImageCount,
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit | vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}
	bindingFlags := BindlessDescriptorFlags()
	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  1,
		PBindingFlags: []vk.DescriptorBindingFlags{bindingFlags},
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafePointer(&flagsInfo),
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(dev.Handle(), &layoutInfo, nil, &layout); res != vk.Success {
		vk.DestroyDescriptorPool(dev.Handle(), pool, nil)
		return nil, nil, logging.Error(fmt.Errorf("renderer: create descriptor set layout: %v", res))
	}
	return pool, layout, nil
}

// BindlessDescriptorFlags is the binding-flags value every bindless array
// binding in this module uses.
func BindlessDescriptorFlags() vk.DescriptorBindingFlags {
	return vk.DescriptorBindingFlags(vk.DescriptorBindingVariableDescriptorCountBit | vk.DescriptorBindingPartiallyBoundBit)
}

func allocateBindlessDescriptorSet(dev *device.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout, count uint32) (vk.DescriptorSet, error) {
	layouts := []vk.DescriptorSetLayout{layout}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        layouts,
	}
	counts := []uint32{count}
	variableInfo := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
		DescriptorSetCount: 1,
		PDescriptorCounts:  counts,
	}
	allocInfo.PNext = unsafePointer(&variableInfo)

	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(dev.Handle(), &allocInfo, sets); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("renderer: allocate bindless descriptor set: %v", res))
	}
	return sets[0], nil
}

// Sampler returns the sampler every bindless descriptor entry is written
// with, so a caller registering a new image can reuse it.
func (r *Renderer) Sampler() vk.Sampler { return r.sampler }

// RegisterImage allocates a new bindless slot for img and returns the
// entity whose ID() is the index a pipeline's ImageID push constant
// should carry. The caller must follow with RefreshWindowResources before
// the slot is safe to sample.
func (r *Renderer) RegisterImage(img device.Image) ecs.Entity {
	e := r.imageECS.CreateEntity()
	r.imageInfos.Set(e, vk.DescriptorImageInfo{
		Sampler:     r.sampler,
		ImageView:   img.View,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	})
	return e
}

// UnregisterImage releases the bindless slot e occupies. The slot's
// descriptor entry reverts to the null image once the component value is
// cleared; the caller is responsible for destroying the underlying
// device.Image once the GPU is done referencing it.
func (r *Renderer) UnregisterImage(e ecs.Entity) {
	r.imageInfos.Clear(e)
	e.Release()
}

// ImageECS exposes the ECS instance tracking per-image descriptor infos,
// so a scene graph can attach Entities representing on-screen surfaces.
func (r *Renderer) ImageECS() *ecs.Instance { return r.imageECS }

// ImageInfos exposes the non-sparse component backing the bindless array.
func (r *Renderer) ImageInfos() *ecs.Component[vk.DescriptorImageInfo] { return r.imageInfos }

// DescriptorSet returns the current bindless descriptor set, valid until
// the next RefreshWindowResources call that grows it.
func (r *Renderer) DescriptorSet() vk.DescriptorSet { return r.descSet }

// DescriptorSetLayout returns the layout pipelines build their pipeline
// layout against.
func (r *Renderer) DescriptorSetLayout() vk.DescriptorSetLayout { return r.descLayout }

// RefreshWindowResources regrows the bindless descriptor set if the image
// ECS has grown past the last allocation, then writes the current
// descriptor-image-info slice into binding 1 (ground: renderer.rs's
// refresh_window_resources).
func (r *Renderer) RefreshWindowResources() error {
	if err := r.dev.Timeline().WaitAtLeast(r.dev.Handle(), r.dev.Timeline().Latest()); err != nil {
		return err
	}

	capacity := r.imageECS.EntityCount()
	if r.descSize < capacity {
		if res := vk.ResetDescriptorPool(r.dev.Handle(), r.descPool, 0); res != vk.Success {
			return logging.Error(fmt.Errorf("renderer: reset descriptor pool: %v", res))
		}
		r.descSize = capacity
		descSet, err := allocateBindlessDescriptorSet(r.dev, r.descPool, r.descLayout, uint32(r.descSize))
		if err != nil {
			return err
		}
		r.descSet = descSet
	}

	infos, ok := r.imageInfos.Slice()
	if !ok || len(infos) == 0 {
		return nil
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          r.descSet,
		DstBinding:      1,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: uint32(len(infos)),
		PImageInfo:      infos,
	}
	vk.UpdateDescriptorSets(r.dev.Handle(), 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

// RegisterForRelease defers res's teardown until the next
// ReleasePendingResources call, matching the "drop after the GPU is done
// with last frame's content" discipline the bindless array depends on.
func (r *Renderer) RegisterForRelease(res Releasable) {
	r.release = append(r.release, res)
}

// ReleaseIsEmpty reports whether the release queue has anything pending.
func (r *Renderer) ReleaseIsEmpty() bool { return len(r.release) == 0 }

// ReleasePendingResources drops every resource queued by
// RegisterForRelease since the last call.
func (r *Renderer) ReleasePendingResources() {
	for _, res := range r.release {
		res.Release()
	}
	r.release = r.release[:0]
}

// BeginRecordingOneFrame returns fresh RecordParams for the frame, with no
// image and no color selected. It does not wait on staging uploads.
func (r *Renderer) BeginRecordingOneFrame() RecordParams {
	return RecordParams{Push: PushConstants{ImageID: -1, UseColor: -1}}
}

// Destroy tears down the renderer's own Vulkan resources. The caller must
// have waited for the device to go idle first.
func (r *Renderer) Destroy() {
	r.dev.DestroyImage(r.nullImage)
	vk.DestroySampler(r.dev.Handle(), r.sampler, nil)
	vk.DestroyDescriptorSetLayout(r.dev.Handle(), r.descLayout, nil)
	vk.DestroyDescriptorPool(r.dev.Handle(), r.descPool, nil)
}
