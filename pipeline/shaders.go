package pipeline

// DefaultVertexSource and DefaultFragmentSource are the GLSL sources a
// caller not supplying its own Config.VertexSource/FragmentSource can pass
// instead. They match quadVertices/quadIndices, the projection uniform
// buffer written by writeProjection, and the push constant layout packed
// by pushConstantsBytes (ground: vala.go's vertexShader/fragmentShader,
// adapted from its per-quad offset/scale push constants to this module's
// pixel-space width/height/imageID/useColor/color/dims layout and its
// bindless combined-image-sampler array instead of a single sampler2D).
const DefaultVertexSource = `
#version 450
#extension GL_EXT_nonuniform_qualifier : enable

layout(location = 0) in vec2 inPosition;
layout(location = 1) in vec2 inTexCoord;

layout(set = 0, binding = 0) uniform Projection {
	mat4 model;
	uint resWidth;
	uint resHeight;
} proj;

layout(push_constant) uniform PushConstants {
	uint width;
	uint height;
	uint imageID;
	uint useColor;
	vec4 color;
	vec4 dims;
} pc;

layout(location = 0) out vec2 fragTexCoord;
layout(location = 1) out flat uint fragImageID;
layout(location = 2) out flat uint fragUseColor;
layout(location = 3) out vec4 fragColor;

void main() {
	vec2 pixelPos = pc.dims.xy + inPosition * pc.dims.zw;
	gl_Position = proj.model * vec4(pixelPos, 0.0, 1.0);
	fragTexCoord = inTexCoord;
	fragImageID = pc.imageID;
	fragUseColor = pc.useColor;
	fragColor = pc.color;
}
`

const DefaultFragmentSource = `
#version 450
#extension GL_EXT_nonuniform_qualifier : enable

layout(location = 0) in vec2 fragTexCoord;
layout(location = 1) in flat uint fragImageID;
layout(location = 2) in flat uint fragUseColor;
layout(location = 3) in vec4 fragColor;

layout(set = 1, binding = 1) uniform sampler2D textures[];

layout(location = 0) out vec4 outColor;

void main() {
	if (fragUseColor != 0u) {
		outColor = fragColor;
	} else {
		outColor = texture(textures[nonuniformEXT(fragImageID)], fragTexCoord);
	}
}
`
