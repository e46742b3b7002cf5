package gpu

import "fmt"

// TextureFormat enumerates the pixel formats the painter understands. The
// set is deliberately small; a native device adapter maps them onto its own
// format enum.
type TextureFormat uint8

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatRGBA8Unorm
	TextureFormatRGBA8UnormSrgb
	TextureFormatBGRA8Unorm
	TextureFormatBGRA8UnormSrgb
	TextureFormatRGBA16Float
	TextureFormatRGBA32Float
	TextureFormatR32Float
	TextureFormatDepth24Plus
	TextureFormatDepth32Float
)

var textureFormatNames = map[TextureFormat]string{
	TextureFormatUndefined:      "undefined",
	TextureFormatRGBA8Unorm:     "rgba8-unorm",
	TextureFormatRGBA8UnormSrgb: "rgba8-unorm-srgb",
	TextureFormatBGRA8Unorm:     "bgra8-unorm",
	TextureFormatBGRA8UnormSrgb: "bgra8-unorm-srgb",
	TextureFormatRGBA16Float:    "rgba16-float",
	TextureFormatRGBA32Float:    "rgba32-float",
	TextureFormatR32Float:       "r32-float",
	TextureFormatDepth24Plus:    "depth24-plus",
	TextureFormatDepth32Float:   "depth32-float",
}

func (f TextureFormat) String() string {
	if name, ok := textureFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("texture-format(%d)", uint8(f))
}

// ParseTextureFormat resolves a config-file format name.
func ParseTextureFormat(name string) (TextureFormat, error) {
	for f, n := range textureFormatNames {
		if n == name {
			return f, nil
		}
	}
	return TextureFormatUndefined, fmt.Errorf("unknown texture format %q", name)
}

// IsDepth reports whether the format is usable as a depth attachment.
func (f TextureFormat) IsDepth() bool {
	return f == TextureFormatDepth24Plus || f == TextureFormatDepth32Float
}

// BytesPerPixel returns the byte footprint of one texel, used for upload
// size validation.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatRGBA8UnormSrgb,
		TextureFormatBGRA8Unorm, TextureFormatBGRA8UnormSrgb,
		TextureFormatR32Float, TextureFormatDepth24Plus, TextureFormatDepth32Float:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageCopySrc
	BufferUsageCopyDst
)

type TextureUsage uint8

const (
	TextureUsageRenderAttachment TextureUsage = 1 << iota
	TextureUsageTextureBinding
	TextureUsageStorageBinding
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// ShaderStage is a bitmask of the pipeline stages a binding is visible to.
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

type FilterMode uint8

const (
	FilterModeNearest FilterMode = iota
	FilterModeLinear
)

type AddressMode uint8

const (
	AddressModeClampToEdge AddressMode = iota
	AddressModeRepeat
	AddressModeMirrorRepeat
)

// BindingType says what kind of resource occupies a binding slot.
type BindingType uint8

const (
	BindingTypeUniformBuffer BindingType = iota
	BindingTypeStorageBuffer
	BindingTypeTexture
	BindingTypeStorageTexture
	BindingTypeSampler
)

// VertexFormat describes one attribute of an interleaved vertex layout.
type VertexFormat uint8

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32
)

// Size returns the attribute footprint in bytes.
func (v VertexFormat) Size() uint64 {
	switch v {
	case VertexFormatFloat32, VertexFormatUint32:
		return 4
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	case VertexFormatFloat32x4:
		return 16
	default:
		return 0
	}
}

// Color is an RGBA clear value in linear space.
type Color struct {
	R, G, B, A float64
}

// Limits carries the subset of device limits the painter validates against.
type Limits struct {
	MaxTextureDimension2D uint32
	MaxBufferSize         uint64
	MaxBindGroups         uint32
	MaxBindingsPerGroup   uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxTextureDimension2D: 8192,
		MaxBufferSize:         1 << 28,
		MaxBindGroups:         4,
		MaxBindingsPerGroup:   16,
	}
}

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

type SamplerDescriptor struct {
	Label     string
	MagFilter FilterMode
	MinFilter FilterMode
	AddressU  AddressMode
	AddressV  AddressMode
}

// BindGroupLayoutEntry declares one slot of a bind group layout.
type BindGroupLayoutEntry struct {
	Binding    uint32
	Visibility ShaderStage
	Type       BindingType
}

// BindGroupEntry assigns a concrete resource to a slot. Exactly one of
// Buffer, Texture or Sampler is set, matching the layout's BindingType.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

type RenderPipelineDescriptor struct {
	Label            string
	VertexModule     ShaderModule
	VertexEntry      string
	FragmentModule   ShaderModule
	FragmentEntry    string
	Layout           BindGroupLayout
	VertexAttributes []VertexFormat
	TargetFormat     TextureFormat
	DepthFormat      TextureFormat
}

type ComputePipelineDescriptor struct {
	Label  string
	Module ShaderModule
	Entry  string
	Layout BindGroupLayout
}

// RenderPassDescriptor opens one render pass on a command encoder. A nil
// ClearColor loads the existing target contents.
type RenderPassDescriptor struct {
	Label       string
	Target      TextureView
	ClearColor  *Color
	DepthTarget TextureView
	ClearDepth  float32
}
