// Package pipeline builds the single graphics pipeline this module draws
// every on-screen quad with: one unit quad vertex/index buffer shared by
// every surface, a uniform buffer for the projection matrix, push
// constants for per-draw state, and alpha blending (ground:
// original_source/thundr/src/pipelines/geometric.rs).
package pipeline

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
	"github.com/NOT-REAL-GAMES/dakota/renderer"
	"github.com/NOT-REAL-GAMES/dakota/shaderc"
)

// vertData is one vertex of the reference unit quad: position plus
// texture coordinate (ground: geometric.rs's VertData).
type vertData struct {
	x, y   float32
	tx, ty float32
}

var quadVertices = [4]vertData{
	{0, 0, 0, 0},
	{1, 0, 1, 0},
	{0, 1, 0, 1},
	{1, 1, 1, 1},
}

var quadIndices = [6]uint32{0, 1, 2, 2, 1, 3}

// shaderConstants mirrors the shader's uniform buffer block: the
// projection matrix plus output resolution (ground: geometric.rs's
// ShaderConstants).
type shaderConstants struct {
	model         [16]float32
	width, height uint32
	_pad          [2]uint32
}

// Pipeline owns the render pass, graphics pipeline, per-swapchain-image
// command buffers and framebuffers, and the shared quad/uniform geometry.
type Pipeline struct {
	dev      *device.Device
	renderer *renderer.Renderer

	pass           vk.RenderPass
	handle         vk.Pipeline
	layout         vk.PipelineLayout
	descPool       vk.DescriptorPool
	descLayout     vk.DescriptorSetLayout
	descSet        vk.DescriptorSet
	shaderModules  []vk.ShaderModule
	framebuffers   []vk.Framebuffer
	cmdPool        vk.CommandPool
	cmdBuffers     []vk.CommandBuffer

	uniformBuffer device.Buffer
	vertexBuffer  device.Buffer
	indexBuffer   device.Buffer
}

// Config selects the shader source and surface format the pipeline is
// built against.
type Config struct {
	SurfaceFormat   vk.Format
	VertexSource    string
	FragmentSource  string
}

// New compiles the shaders, builds the render pass/pipeline, and uploads
// the shared quad geometry and uniform buffer.
func New(dev *device.Device, rend *renderer.Renderer, views []vk.ImageView, resolution vk.Extent2D, cfg Config) (*Pipeline, error) {
	p := &Pipeline{dev: dev, renderer: rend}

	pass, err := p.createRenderPass(cfg.SurfaceFormat)
	if err != nil {
		return nil, err
	}
	p.pass = pass

	if err := p.createUniformResources(); err != nil {
		return nil, err
	}
	if err := p.createQuadGeometry(); err != nil {
		return nil, err
	}
	if err := p.createDescriptorResources(); err != nil {
		return nil, err
	}
	if err := p.createPipeline(cfg); err != nil {
		return nil, err
	}
	if err := p.createFramebuffers(views, resolution); err != nil {
		return nil, err
	}
	if err := p.createCommandResources(len(views)); err != nil {
		return nil, err
	}
	if err := p.writeProjection(resolution); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) createRenderPass(format vk.Format) (vk.RenderPass, error) {
	attachment := vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{attachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(p.dev.Handle(), &info, nil, &pass); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("pipeline: create render pass: %v", res))
	}
	return pass, nil
}

func (p *Pipeline) createUniformResources() error {
	buf, err := p.dev.CreateBuffer(vk.DeviceSize(sizeOfShaderConstants),
		vk.BufferUsageUniformBufferBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return err
	}
	p.uniformBuffer = buf
	return nil
}

const sizeOfShaderConstants = 4*16 + 4 + 4 + 4*2

func (p *Pipeline) createQuadGeometry() error {
	vbSize := vk.DeviceSize(len(quadVertices) * 16)
	vb, err := p.dev.CreateBuffer(vbSize, vk.BufferUsageVertexBufferBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return err
	}
	p.vertexBuffer = vb

	ibSize := vk.DeviceSize(len(quadIndices) * 4)
	ib, err := p.dev.CreateBuffer(ibSize, vk.BufferUsageIndexBufferBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return err
	}
	p.indexBuffer = ib
	return nil
}

func (p *Pipeline) createDescriptorResources() error {
	poolSize := vk.DescriptorPoolSize{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
		MaxSets:       1,
	}
	if res := vk.CreateDescriptorPool(p.dev.Handle(), &poolInfo, nil, &p.descPool); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: create descriptor pool: %v", res))
	}

	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	if res := vk.CreateDescriptorSetLayout(p.dev.Handle(), &layoutInfo, nil, &p.descLayout); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: create descriptor set layout: %v", res))
	}

	layouts := []vk.DescriptorSetLayout{p.descLayout}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.descPool,
		DescriptorSetCount: 1,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(p.dev.Handle(), &allocInfo, sets); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: allocate descriptor set: %v", res))
	}
	p.descSet = sets[0]

	bufInfo := vk.DescriptorBufferInfo{Buffer: p.uniformBuffer.Handle, Offset: 0, Range: vk.DeviceSize(sizeOfShaderConstants)}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          p.descSet,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo:     []vk.DescriptorBufferInfo{bufInfo},
	}
	vk.UpdateDescriptorSets(p.dev.Handle(), 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

// pushConstantSize matches renderer.PushConstants's wire layout.
const pushConstantSize = 4 + 4 + 4 + 4 + 4*4 + 4*4

func (p *Pipeline) createPipeline(cfg Config) error {
	vertSPV, err := compileShader(cfg.VertexSource, "quad.vert", shaderc.VertexShader)
	if err != nil {
		return err
	}
	fragSPV, err := compileShader(cfg.FragmentSource, "quad.frag", shaderc.FragmentShader)
	if err != nil {
		return err
	}

	vertModule, err := p.createShaderModule(vertSPV)
	if err != nil {
		return err
	}
	fragModule, err := p.createShaderModule(fragSPV)
	if err != nil {
		return err
	}
	p.shaderModules = append(p.shaderModules, vertModule, fragModule)

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vertModule, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fragModule, PName: "main\x00"},
	}

	binding := vk.VertexInputBindingDescription{Binding: 0, Stride: 16, InputRate: vk.VertexInputRateVertex}
	attrs := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 8},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:     vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask:      0xf,
	}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	pushRange := vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		Offset:     0,
		Size:       pushConstantSize,
	}
	setLayouts := []vk.DescriptorSetLayout{p.descLayout, p.renderer.DescriptorSetLayout()}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushRange},
	}
	if res := vk.CreatePipelineLayout(p.dev.Handle(), &layoutInfo, nil, &p.layout); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: create pipeline layout: %v", res))
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PColorBlendState:    &blend,
		PDynamicState:       &dynamic,
		Layout:              p.layout,
		RenderPass:          p.pass,
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(p.dev.Handle(), nil, 1, []vk.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: create graphics pipeline: %v", res))
	}
	p.handle = pipelines[0]
	return nil
}

func compileShader(source, filename string, kind shaderc.ShaderKind) ([]byte, error) {
	compiler := shaderc.NewCompiler()
	defer compiler.Release()

	options := shaderc.NewCompileOptions()
	defer options.Release()
	options.SetTargetEnv(shaderc.TargetEnvVulkan, shaderc.EnvVersionVulkan_1_3)
	options.SetOptimizationLevel(shaderc.OptimizationLevelPerformance)

	result, err := compiler.CompileIntoSPV(source, filename, kind, options)
	if err != nil {
		return nil, logging.Error(fmt.Errorf("pipeline: compile %s: %w", filename, err))
	}
	defer result.Release()
	return result.GetBytes(), nil
}

func (p *Pipeline) createShaderModule(spv []byte) (vk.ShaderModule, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spv)),
		PCode:    sliceUint32(spv),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(p.dev.Handle(), &info, nil, &module); res != vk.Success {
		return nil, logging.Error(fmt.Errorf("pipeline: create shader module: %v", res))
	}
	return module, nil
}

func (p *Pipeline) createFramebuffers(views []vk.ImageView, resolution vk.Extent2D) error {
	p.framebuffers = make([]vk.Framebuffer, len(views))
	for i, view := range views {
		attachments := []vk.ImageView{view}
		info := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      p.pass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           resolution.Width,
			Height:          resolution.Height,
			Layers:          1,
		}
		if res := vk.CreateFramebuffer(p.dev.Handle(), &info, nil, &p.framebuffers[i]); res != vk.Success {
			return logging.Error(fmt.Errorf("pipeline: create framebuffer: %v", res))
		}
	}
	return nil
}

func (p *Pipeline) createCommandResources(count int) error {
	_, graphicsFamily := p.dev.GraphicsQueue()
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: graphicsFamily,
	}
	if res := vk.CreateCommandPool(p.dev.Handle(), &poolInfo, nil, &p.cmdPool); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: create command pool: %v", res))
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	p.cmdBuffers = make([]vk.CommandBuffer, count)
	if res := vk.AllocateCommandBuffers(p.dev.Handle(), &allocInfo, p.cmdBuffers); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: allocate command buffers: %v", res))
	}
	return nil
}

func (p *Pipeline) writeProjection(resolution vk.Extent2D) error {
	ortho := orthoProjection(float32(resolution.Width), float32(resolution.Height))
	consts := shaderConstants{model: ortho, width: resolution.Width, height: resolution.Height}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(p.dev.Handle(), p.uniformBuffer.Memory, 0, vk.DeviceSize(sizeOfShaderConstants), 0, &mapped); res != vk.Success {
		return logging.Error(fmt.Errorf("pipeline: map uniform buffer: %v", res))
	}
	dst := unsafe.Slice((*shaderConstants)(mapped), 1)
	dst[0] = consts
	vk.UnmapMemory(p.dev.Handle(), p.uniformBuffer.Memory)
	return nil
}

// orthoProjection builds a column-major orthographic projection matching
// a top-left-origin, pixel-space coordinate system (ground: geometric.rs's
// use of cgmath::ortho for the same transform).
func orthoProjection(width, height float32) [16]float32 {
	var m [16]float32
	m[0] = 2.0 / width
	m[5] = 2.0 / height
	m[10] = -1
	m[12] = -1
	m[13] = -1
	m[15] = 1
	return m
}

func sliceUint32(b []byte) []uint32 {
	out := make([]uint32, (len(b)+3)/4)
	for i := range out {
		base := i * 4
		var v uint32
		for j := 0; j < 4 && base+j < len(b); j++ {
			v |= uint32(b[base+j]) << (8 * j)
		}
		out[i] = v
	}
	return out
}

// Destroy tears down every Vulkan object this pipeline owns.
func (p *Pipeline) Destroy() {
	handle := p.dev.Handle()
	p.dev.DestroyBuffer(p.vertexBuffer)
	p.dev.DestroyBuffer(p.indexBuffer)
	vk.FreeCommandBuffers(handle, p.cmdPool, uint32(len(p.cmdBuffers)), p.cmdBuffers)
	vk.DestroyCommandPool(handle, p.cmdPool, nil)
	p.dev.DestroyBuffer(p.uniformBuffer)
	vk.DestroyRenderPass(handle, p.pass, nil)
	vk.DestroyDescriptorSetLayout(handle, p.descLayout, nil)
	vk.DestroyDescriptorPool(handle, p.descPool, nil)
	vk.DestroyPipelineLayout(handle, p.layout, nil)
	for _, m := range p.shaderModules {
		vk.DestroyShaderModule(handle, m, nil)
	}
	for _, f := range p.framebuffers {
		vk.DestroyFramebuffer(handle, f, nil)
	}
	vk.DestroyPipeline(handle, p.handle, nil)
}
