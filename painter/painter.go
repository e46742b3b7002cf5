// Package painter orchestrates rendering and compute above a native GPU
// device and window surface. Callers describe passes, shaders and resources
// declaratively; the painter owns pipeline compilation and caching,
// resource lifetimes, per-frame submission and live shader reload.
//
// A Painter holds no global state: construct one per device/surface pair,
// several can coexist in one process. One goroutine drives RunFrame;
// resource and pipeline registration calls belong to that same goroutine.
package painter

import (
	"fmt"

	"github.com/spaghettifunk/fresco/painter/assets"
	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
	"github.com/spaghettifunk/fresco/painter/systems"
)

// Painter is a thin facade over the systems: the resource table, the
// layout registry, the pipeline cache and the frame scheduler. It wires
// them together and delegates; it owns no rendering logic of its own.
type Painter struct {
	config    *Config
	device    gpu.Device
	surface   gpu.Surface
	library   *assets.Library
	resources *systems.ResourceSystem
	layouts   *systems.LayoutSystem
	pipelines *systems.PipelineSystem
	scheduler *systems.FrameScheduler
}

func New(config *Config, device gpu.Device, surface gpu.Surface) (*Painter, error) {
	if device == nil || surface == nil {
		err := fmt.Errorf("func New - painter needs a device and a surface")
		core.LogError(err.Error())
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()
	core.SetLevel(core.LogLevel(config.LogLevel))

	format, err := config.surfaceFormat(surface.Format())
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	width, height := surface.Size()
	if err := surface.Configure(width, height, format); err != nil {
		core.LogError("func New - configuring surface: %s", err.Error())
		return nil, err
	}

	library, err := assets.NewLibrary(&assets.LibraryConfig{
		WatchShaders: config.WatchShaders,
		EventBuffer:  config.WatchBuffer,
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	limits := config.deviceLimits(device.Limits())
	rs, err := systems.NewResourceSystem(&systems.ResourceSystemConfig{
		MaxResourceCount: config.Capacity.MaxResources,
		Limits:           limits,
	}, device)
	if err != nil {
		return nil, err
	}
	ls, err := systems.NewLayoutSystem(&systems.LayoutSystemConfig{
		MaxLayoutCount: config.Capacity.MaxLayouts,
		Limits:         limits,
	}, device)
	if err != nil {
		return nil, err
	}
	ps, err := systems.NewPipelineSystem(&systems.PipelineSystemConfig{
		MaxPipelineCount: config.Capacity.MaxPipelines,
	}, device, ls, library)
	if err != nil {
		return nil, err
	}
	scheduler, err := systems.NewFrameScheduler(&systems.FrameSchedulerConfig{
		MaxFramesInFlight: config.MaxFramesInFlight,
	}, device, surface, rs, ls, ps, library)
	if err != nil {
		return nil, err
	}

	core.LogInfo("painter %s ready: %dx%d %s, %d frames in flight", config.Name, width, height, format, config.MaxFramesInFlight)
	return &Painter{
		config:    config,
		device:    device,
		surface:   surface,
		library:   library,
		resources: rs,
		layouts:   ls,
		pipelines: ps,
		scheduler: scheduler,
	}, nil
}

// CreateResource allocates a buffer, texture or sampler and returns its
// handle.
func (p *Painter) CreateResource(res metadata.Resource) (metadata.ResourceHandle, error) {
	return p.resources.Create(res)
}

func (p *Painter) CreateBuffer(label string, size uint64, usage gpu.BufferUsage) (metadata.ResourceHandle, error) {
	return p.resources.Create(metadata.NewBuffer(label, size, usage))
}

func (p *Painter) CreateTexture(label string, width, height uint32, format gpu.TextureFormat, usage gpu.TextureUsage) (metadata.ResourceHandle, error) {
	return p.resources.Create(metadata.NewTexture(label, width, height, format, usage))
}

func (p *Painter) CreateSampler(label string, desc gpu.SamplerDescriptor) (metadata.ResourceHandle, error) {
	return p.resources.Create(metadata.NewSampler(label, desc))
}

// UpdateResource uploads new contents into a live resource.
func (p *Painter) UpdateResource(handle metadata.ResourceHandle, data []byte) error {
	return p.resources.Update(handle, data)
}

// DestroyResource releases a resource; the GPU object lingers until the
// last in-flight frame referencing it completes.
func (p *Painter) DestroyResource(handle metadata.ResourceHandle) {
	p.resources.Destroy(handle)
}

// ResolveResource returns the descriptor behind a live handle.
func (p *Painter) ResolveResource(handle metadata.ResourceHandle) (*metadata.Resource, error) {
	return p.resources.Resolve(handle)
}

// RegisterShader binds a shader identity to a binary on disk. With
// watching enabled, edits to the file reach the pipeline cache at the next
// frame boundary.
func (p *Painter) RegisterShader(name, path string) error {
	return p.pipelines.RegisterShader(name, path)
}

// RegisterPipeline stores a pipeline description for use in passes. The
// device pipeline is built lazily on first use and rebuilt after shader
// edits.
func (p *Painter) RegisterPipeline(cfg metadata.PipelineConfig) (metadata.PipelineID, error) {
	return p.pipelines.Register(cfg)
}

// RunFrame records and submits one frame made of the given passes, in
// order.
func (p *Painter) RunFrame(passes ...metadata.Pass) error {
	return p.scheduler.RunFrame(passes)
}

// OnResize registers a hook that runs after the painter reconfigured the
// surface for a window resize, before the next frame records.
func (p *Painter) OnResize(fn func(width, height uint32)) {
	p.scheduler.SetResizeCallback(fn)
}

// OnClose registers a hook for the surface's close event.
func (p *Painter) OnClose(fn func()) {
	p.scheduler.SetCloseCallback(fn)
}

// Closed reports whether the surface asked to close.
func (p *Painter) Closed() bool {
	return p.scheduler.Closed()
}

// Reconfigure rebuilds the surface configuration at its current size.
// Call it after RunFrame returns gpu.ErrSurfaceLost, then retry the frame.
func (p *Painter) Reconfigure() error {
	width, height := p.surface.Size()
	return p.surface.Configure(width, height, p.surface.Format())
}

// Metrics exposes frame timing statistics.
func (p *Painter) Metrics() *core.Metrics {
	return p.scheduler.Metrics()
}

// Close drains in-flight frames and tears the systems down in reverse
// construction order. The device and surface stay with their owner.
func (p *Painter) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(p.scheduler.Shutdown())
	keep(p.pipelines.Shutdown())
	keep(p.layouts.Shutdown())
	keep(p.resources.Shutdown())
	keep(p.library.Close())
	core.LogInfo("painter %s closed", p.config.Name)
	return firstErr
}
