// Package systems holds the painter's moving parts: the resource table,
// the layout registry, the pipeline cache and the frame scheduler. The
// systems are built once, wired together by the facade and driven from a
// single frame-producer goroutine.
package systems

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

type ResourceSystemConfig struct {
	/** @brief The maximum number of resources that can be alive at once. */
	MaxResourceCount uint32
	/** @brief The limits Create validates against. The zero value means
	ask the device. */
	Limits gpu.Limits
}

// resourceEntry is one slot of the table. The generation counts how many
// times the slot was handed out; a handle is valid only while its
// generation matches. A destroyed entry with frames still referencing it
// keeps its GPU object until the last frame completes.
type resourceEntry struct {
	generation     uint32
	live           bool
	pendingDestroy bool
	inFlight       uint32
	desc           metadata.Resource

	buffer  gpu.Buffer
	texture gpu.Texture
	sampler gpu.Sampler
}

// ResourceSystem owns every GPU allocation the caller sees. It is the only
// component that creates or destroys device objects on the caller's behalf,
// so lifetime tracking lives in exactly one place.
type ResourceSystem struct {
	config  *ResourceSystemConfig
	device  gpu.Device
	limits  gpu.Limits
	entries []*resourceEntry
}

func NewResourceSystem(config *ResourceSystemConfig, device gpu.Device) (*ResourceSystem, error) {
	if config.MaxResourceCount == 0 {
		err := fmt.Errorf("func NewResourceSystem - config.MaxResourceCount must be > 0")
		core.LogFatal(err.Error())
		return nil, err
	}
	limits := config.Limits
	if limits == (gpu.Limits{}) {
		limits = device.Limits()
	}

	rs := &ResourceSystem{
		config:  config,
		device:  device,
		limits:  limits,
		entries: make([]*resourceEntry, config.MaxResourceCount),
	}
	for i := uint32(0); i < config.MaxResourceCount; i++ {
		rs.entries[i] = &resourceEntry{}
	}
	return rs, nil
}

// Create allocates the described resource on the device and returns its
// handle. Reusing a freed slot bumps the slot generation, which is what
// invalidates any handle still pointing at the previous occupant.
func (rs *ResourceSystem) Create(res metadata.Resource) (metadata.ResourceHandle, error) {
	if err := rs.validate(&res); err != nil {
		core.LogError(err.Error())
		return metadata.ResourceHandle{}, err
	}
	if res.Label == "" {
		res.Label = fmt.Sprintf("%s-%s", res.Kind, uuid.New().String())
	}

	slot := metadata.InvalidID
	for i := uint32(0); i < rs.config.MaxResourceCount; i++ {
		e := rs.entries[i]
		if !e.live && !e.pendingDestroy && e.inFlight == 0 {
			slot = i
			break
		}
	}
	if slot == metadata.InvalidID {
		err := fmt.Errorf("resource table full (%d entries)", rs.config.MaxResourceCount)
		core.LogError(err.Error())
		return metadata.ResourceHandle{}, err
	}

	entry := rs.entries[slot]
	switch res.Kind {
	case metadata.ResourceKindBuffer:
		buf, err := rs.device.CreateBuffer(gpu.BufferDescriptor{Label: res.Label, Size: res.Size, Usage: res.Usage})
		if err != nil {
			core.LogError("func Create - buffer %s: %s", res.Label, err.Error())
			return metadata.ResourceHandle{}, err
		}
		entry.buffer = buf
	case metadata.ResourceKindTexture:
		tex, err := rs.device.CreateTexture(gpu.TextureDescriptor{
			Label:  res.Label,
			Width:  res.Width,
			Height: res.Height,
			Format: res.Format,
			Usage:  res.TextureUsage,
		})
		if err != nil {
			core.LogError("func Create - texture %s: %s", res.Label, err.Error())
			return metadata.ResourceHandle{}, err
		}
		entry.texture = tex
	case metadata.ResourceKindSampler:
		desc := res.Sampler
		desc.Label = res.Label
		smp, err := rs.device.CreateSampler(desc)
		if err != nil {
			core.LogError("func Create - sampler %s: %s", res.Label, err.Error())
			return metadata.ResourceHandle{}, err
		}
		entry.sampler = smp
	default:
		err := fmt.Errorf("unknown resource kind %d", res.Kind)
		core.LogError(err.Error())
		return metadata.ResourceHandle{}, err
	}

	entry.generation++
	entry.live = true
	entry.pendingDestroy = false
	entry.desc = res

	core.LogDebug("resource %s created in slot %d generation %d", res.Label, slot, entry.generation)
	return metadata.NewResourceHandle(slot, entry.generation), nil
}

func (rs *ResourceSystem) validate(res *metadata.Resource) error {
	limits := rs.limits
	switch res.Kind {
	case metadata.ResourceKindBuffer:
		if res.Size == 0 {
			return fmt.Errorf("buffer %q must have a non-zero size", res.Label)
		}
		if res.Size > limits.MaxBufferSize {
			return fmt.Errorf("buffer %q of %d bytes exceeds the limit of %d", res.Label, res.Size, limits.MaxBufferSize)
		}
	case metadata.ResourceKindTexture:
		if res.Width == 0 || res.Height == 0 {
			return fmt.Errorf("texture %q must have non-zero dimensions", res.Label)
		}
		if res.Width > limits.MaxTextureDimension2D || res.Height > limits.MaxTextureDimension2D {
			return fmt.Errorf("texture %q of %dx%d exceeds the limit of %d", res.Label, res.Width, res.Height, limits.MaxTextureDimension2D)
		}
		if res.Format == gpu.TextureFormatUndefined {
			return fmt.Errorf("texture %q must declare a format", res.Label)
		}
	}
	return nil
}

// Update uploads new contents into an existing resource through the queue.
// Resources never grow: a payload beyond the allocated capacity is an
// ErrSizeMismatch, destroy-and-recreate is the way to resize.
func (rs *ResourceSystem) Update(handle metadata.ResourceHandle, data []byte) error {
	entry, err := rs.resolve(handle)
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	queue := rs.device.Queue()
	switch entry.desc.Kind {
	case metadata.ResourceKindBuffer:
		if uint64(len(data)) > entry.desc.Size {
			err := fmt.Errorf("%w: %d bytes into buffer %q of %d", metadata.ErrSizeMismatch, len(data), entry.desc.Label, entry.desc.Size)
			core.LogError(err.Error())
			return err
		}
		return queue.WriteBuffer(entry.buffer, 0, data)
	case metadata.ResourceKindTexture:
		expected := uint64(entry.desc.Width) * uint64(entry.desc.Height) * uint64(entry.desc.Format.BytesPerPixel())
		if uint64(len(data)) != expected {
			err := fmt.Errorf("%w: %d bytes into texture %q expecting %d", metadata.ErrSizeMismatch, len(data), entry.desc.Label, expected)
			core.LogError(err.Error())
			return err
		}
		return queue.WriteTexture(entry.texture, data)
	default:
		err := fmt.Errorf("resource %q holds no data to update", entry.desc.Label)
		core.LogError(err.Error())
		return err
	}
}

// Destroy releases a resource. While any in-flight frame still references
// the slot the reclaim is deferred to that frame's completion; the handle
// itself dies immediately. Destroying a dead handle is a no-op.
func (rs *ResourceSystem) Destroy(handle metadata.ResourceHandle) {
	if handle.IsNil() || handle.Index() >= rs.config.MaxResourceCount {
		core.LogWarn("func Destroy - invalid resource handle, ignoring")
		return
	}
	entry := rs.entries[handle.Index()]
	if !entry.live || entry.generation != handle.Generation() {
		core.LogWarn("func Destroy - stale or destroyed handle for slot %d, ignoring", handle.Index())
		return
	}

	entry.live = false
	if entry.inFlight > 0 {
		entry.pendingDestroy = true
		core.LogDebug("resource %s destroy deferred, %d frames in flight", entry.desc.Label, entry.inFlight)
		return
	}
	rs.reclaim(entry)
}

// Resolve returns the descriptor behind a live handle.
func (rs *ResourceSystem) Resolve(handle metadata.ResourceHandle) (*metadata.Resource, error) {
	entry, err := rs.resolve(handle)
	if err != nil {
		return nil, err
	}
	return &entry.desc, nil
}

func (rs *ResourceSystem) resolve(handle metadata.ResourceHandle) (*resourceEntry, error) {
	if handle.IsNil() || handle.Index() >= rs.config.MaxResourceCount {
		return nil, fmt.Errorf("%w: slot %d", metadata.ErrStaleHandle, handle.Index())
	}
	entry := rs.entries[handle.Index()]
	if !entry.live || entry.generation != handle.Generation() {
		return nil, fmt.Errorf("%w: slot %d generation %d, table has %d", metadata.ErrStaleHandle, handle.Index(), handle.Generation(), entry.generation)
	}
	return entry, nil
}

// retainInFlight marks the slot as referenced by a recorded frame.
func (rs *ResourceSystem) retainInFlight(index uint32) {
	rs.entries[index].inFlight++
}

// releaseInFlight drops one frame reference and reclaims the slot if a
// destroy was parked on it.
func (rs *ResourceSystem) releaseInFlight(index uint32) {
	entry := rs.entries[index]
	if entry.inFlight == 0 {
		core.LogWarn("func releaseInFlight - slot %d released more often than retained", index)
		return
	}
	entry.inFlight--
	if entry.inFlight == 0 && entry.pendingDestroy {
		rs.reclaim(entry)
	}
}

func (rs *ResourceSystem) reclaim(entry *resourceEntry) {
	switch {
	case entry.buffer != nil:
		entry.buffer.Release()
		entry.buffer = nil
	case entry.texture != nil:
		entry.texture.Release()
		entry.texture = nil
	case entry.sampler != nil:
		entry.sampler.Release()
		entry.sampler = nil
	}
	entry.pendingDestroy = false
	core.LogDebug("resource %s reclaimed", entry.desc.Label)
}

// Shutdown releases everything still alive. In-flight bookkeeping is
// ignored; the scheduler has drained its queue by the time this runs.
func (rs *ResourceSystem) Shutdown() error {
	for _, entry := range rs.entries {
		if entry.live || entry.pendingDestroy {
			entry.live = false
			rs.reclaim(entry)
		}
	}
	return nil
}
