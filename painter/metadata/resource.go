// Package metadata holds the data model shared between the painter facade
// and its systems: resource handles, binding descriptors, pipeline keys,
// pass descriptions and the error taxonomy.
package metadata

import (
	"math"

	"github.com/spaghettifunk/fresco/painter/gpu"
)

// InvalidID marks an unassigned slot or identifier.
const InvalidID uint32 = math.MaxUint32

// ResourceHandle refers to one slot of the resource table. It stays valid
// until the resource is destroyed; a handle kept across destruction is
// detected through its generation, never dereferenced blindly. The zero
// value is "no handle" and doubles as "the surface target" in a Pass.
// Treat it as opaque.
type ResourceHandle struct {
	index      uint32
	generation uint32
}

// NewResourceHandle is used by the resource table when it assigns a slot.
// Generations start at 1 so the zero handle never aliases a live slot.
func NewResourceHandle(index, generation uint32) ResourceHandle {
	return ResourceHandle{index: index, generation: generation}
}

func (h ResourceHandle) Index() uint32 {
	return h.index
}

func (h ResourceHandle) Generation() uint32 {
	return h.generation
}

// IsNil reports whether the handle refers to nothing.
func (h ResourceHandle) IsNil() bool {
	return h.generation == 0
}

type ResourceKind uint8

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindSampler
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	default:
		return "resource"
	}
}

// Resource describes one GPU allocation request. It is a tagged variant:
// the fields that apply depend on Kind. Labels are optional; the resource
// table derives one when empty.
type Resource struct {
	Kind  ResourceKind
	Label string

	// Buffers.
	Size  uint64
	Usage gpu.BufferUsage

	// Textures.
	Width        uint32
	Height       uint32
	Format       gpu.TextureFormat
	TextureUsage gpu.TextureUsage

	// Samplers.
	Sampler gpu.SamplerDescriptor
}

func NewBuffer(label string, size uint64, usage gpu.BufferUsage) Resource {
	return Resource{
		Kind:  ResourceKindBuffer,
		Label: label,
		Size:  size,
		Usage: usage,
	}
}

func NewTexture(label string, width, height uint32, format gpu.TextureFormat, usage gpu.TextureUsage) Resource {
	return Resource{
		Kind:         ResourceKindTexture,
		Label:        label,
		Width:        width,
		Height:       height,
		Format:       format,
		TextureUsage: usage,
	}
}

func NewSampler(label string, desc gpu.SamplerDescriptor) Resource {
	return Resource{
		Kind:    ResourceKindSampler,
		Label:   label,
		Sampler: desc,
	}
}
