// Package gpu defines the contracts between the painter and its native
// collaborators. The painter never talks to a concrete graphics API; it
// records frames against these interfaces and lets an adapter map them onto
// Vulkan, Metal, wgpu or a headless fake. Object handles returned by a
// Device are opaque capabilities: the painter stores and passes them back,
// nothing more.
package gpu

import "errors"

var (
	// ErrSurfaceLost means the presentable surface is gone (window resize
	// race, monitor change). Transient: reconfigure the surface and retry.
	ErrSurfaceLost = errors.New("surface lost")
	// ErrAcquireTimeout means no surface image became ready in time.
	// Transient: retry next frame.
	ErrAcquireTimeout = errors.New("surface acquire timed out")
	// ErrDeviceLost means the device is unusable. Fatal: tear the painter
	// down, no partial recovery is attempted.
	ErrDeviceLost = errors.New("device lost")
)

type Buffer interface {
	Size() uint64
	Release()
}

type Texture interface {
	Size() (width, height uint32)
	Format() TextureFormat
	View() TextureView
	Release()
}

type Sampler interface {
	Release()
}

// TextureView is an attachment or binding view over a texture or surface
// image.
type TextureView interface {
	Size() (width, height uint32)
	Format() TextureFormat
}

type ShaderModule interface {
	Label() string
	Release()
}

type BindGroupLayout interface {
	Release()
}

type BindGroup interface {
	Release()
}

type Pipeline interface {
	Label() string
	Release()
}

type CommandBuffer interface{}

// Device creates GPU objects and command encoders. Creation calls report
// ErrDeviceLost once the device is gone; CreateShaderModule reports compiler
// diagnostics verbatim in the error text.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateTexture(desc TextureDescriptor) (Texture, error)
	CreateSampler(desc SamplerDescriptor) (Sampler, error)
	CreateShaderModule(label string, code []byte) (ShaderModule, error)
	CreateBindGroupLayout(label string, entries []BindGroupLayoutEntry) (BindGroupLayout, error)
	CreateBindGroup(layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error)
	NewCommandEncoder(label string) CommandEncoder
	Queue() Queue
	Limits() Limits
}

// Queue uploads data and submits recorded command buffers. Submissions on
// one queue complete in submission order.
type Queue interface {
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	WriteTexture(tex Texture, data []byte) error
	Submit(cb CommandBuffer) Submission
}

// Submission tracks one submitted command buffer until the device confirms
// completion. Err is valid once Done is closed; a non-nil Err is always
// ErrDeviceLost.
type Submission interface {
	Done() <-chan struct{}
	Err() error
}

type CommandEncoder interface {
	BeginRenderPass(desc RenderPassDescriptor) RenderPassEncoder
	BeginComputePass(label string) ComputePassEncoder
	Finish() CommandBuffer
}

type RenderPassEncoder interface {
	SetPipeline(p Pipeline)
	SetBindGroup(index uint32, bg BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer)
	SetIndexBuffer(buf Buffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	End()
}

type ComputePassEncoder interface {
	SetPipeline(p Pipeline)
	SetBindGroup(index uint32, bg BindGroup)
	Dispatch(groupsX, groupsY, groupsZ uint32)
	End()
}

type SurfaceEventKind uint8

const (
	SurfaceEventResized SurfaceEventKind = iota
	SurfaceEventClosed
)

// SurfaceEvent is pushed by the window layer when the surface geometry
// changes. Width/Height are only meaningful for SurfaceEventResized.
type SurfaceEvent struct {
	Kind   SurfaceEventKind
	Width  uint32
	Height uint32
}

// DrawTarget is one acquired surface image, valid from Acquire until
// Present.
type DrawTarget interface {
	View() TextureView
}

// Surface is the presentable side of the window collaborator. Acquire
// returns ErrSurfaceLost or ErrAcquireTimeout as transient failures and
// ErrDeviceLost when the device is gone.
type Surface interface {
	Configure(width, height uint32, format TextureFormat) error
	Acquire() (DrawTarget, error)
	Present(target DrawTarget)
	Size() (width, height uint32)
	Format() TextureFormat
	Events() <-chan SurfaceEvent
}
