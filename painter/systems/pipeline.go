package systems

import (
	"fmt"
	"slices"
	"time"

	"github.com/spaghettifunk/fresco/painter/assets"
	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

// depthFormat is the single depth format the painter allocates. Pipelines
// that opt into depth testing are built against it.
const depthFormat = gpu.TextureFormatDepth32Float

type PipelineSystemConfig struct {
	/** @brief The maximum number of pipeline registrations. */
	MaxPipelineCount uint32
}

type shaderState struct {
	name       string
	generation uint64
	lastChange time.Time
}

// PipelineSpec is one registration: everything needed to (re)build the
// pipeline except the shader binary itself.
type PipelineSpec struct {
	id       metadata.PipelineID
	config   metadata.PipelineConfig
	layoutID metadata.LayoutID
}

// Pipeline is one built cache entry. Entries are immutable once built; a
// shader edit produces a new entry and retires this one instead of
// mutating it.
type Pipeline struct {
	Key      metadata.PipelineKey
	Raw      gpu.Pipeline
	module   gpu.ShaderModule
	spec     *PipelineSpec
	inFlight uint32
	retired  bool
}

// pipelineBase is the key minus the reload generation: the slot in the
// cache a succession of generations competes for.
type pipelineBase struct {
	shader string
	layout metadata.LayoutID
	kind   metadata.PassKind
	target gpu.TextureFormat
}

func baseOf(key metadata.PipelineKey) pipelineBase {
	return pipelineBase{shader: key.Shader, layout: key.Layout, kind: key.Kind, target: key.Target}
}

// PipelineSystem owns shader reload state and the pipeline cache. Lookups
// happen on the frame thread; a stale generation is a cache miss that
// triggers a rebuild, never an error by itself. A failed rebuild keeps the
// previous good pipeline live so one bad edit cannot blank the output.
type PipelineSystem struct {
	config  *PipelineSystemConfig
	device  gpu.Device
	layouts *LayoutSystem
	library *assets.Library

	shaders map[string]*shaderState
	specs   []*PipelineSpec
	live    map[pipelineBase]*Pipeline
	retired []*Pipeline
	failed  map[metadata.PipelineKey]*metadata.CompileError
}

func NewPipelineSystem(config *PipelineSystemConfig, device gpu.Device, layouts *LayoutSystem, library *assets.Library) (*PipelineSystem, error) {
	if config.MaxPipelineCount == 0 {
		err := fmt.Errorf("func NewPipelineSystem - config.MaxPipelineCount must be > 0")
		core.LogFatal(err.Error())
		return nil, err
	}
	return &PipelineSystem{
		config:  config,
		device:  device,
		layouts: layouts,
		library: library,
		shaders: make(map[string]*shaderState),
		live:    make(map[pipelineBase]*Pipeline),
		failed:  make(map[metadata.PipelineKey]*metadata.CompileError),
	}, nil
}

// RegisterShader binds a shader identity to a file in the library and
// starts tracking its reload generation.
func (ps *PipelineSystem) RegisterShader(name, path string) error {
	if err := ps.library.Register(name, path); err != nil {
		return err
	}
	if _, exists := ps.shaders[name]; !exists {
		ps.shaders[name] = &shaderState{name: name, generation: 1}
	}
	return nil
}

// ShaderSource reports the reload state of a registered shader.
func (ps *PipelineSystem) ShaderSource(name string) (metadata.ShaderSource, bool) {
	s, exists := ps.shaders[name]
	if !exists {
		return metadata.ShaderSource{}, false
	}
	return metadata.ShaderSource{Name: s.name, Generation: s.generation, LastChange: s.lastChange}, true
}

// Invalidate bumps the reload generation of a shader. It is idempotent
// against the watch bridge's at-least-once, possibly reordered delivery:
// an event not strictly newer than the last accepted one is a no-op. It
// never compiles anything; the next GetOrBuild misses and rebuilds.
func (ps *PipelineSystem) Invalidate(name string, at time.Time) bool {
	s, exists := ps.shaders[name]
	if !exists {
		core.LogDebug("invalidate for unknown shader %s, ignoring", name)
		return false
	}
	if !at.After(s.lastChange) {
		return false
	}
	s.lastChange = at
	s.generation++
	core.LogInfo("shader %s invalidated, generation %d", name, s.generation)
	return true
}

// Register stores a pipeline registration and interns its layout. The
// returned id is what passes refer to; the actual build happens lazily on
// first use.
func (ps *PipelineSystem) Register(cfg metadata.PipelineConfig) (metadata.PipelineID, error) {
	if _, exists := ps.shaders[cfg.Shader]; !exists {
		err := fmt.Errorf("func Register - shader %q is not registered", cfg.Shader)
		core.LogError(err.Error())
		return 0, err
	}
	if uint32(len(ps.specs)) >= ps.config.MaxPipelineCount {
		err := fmt.Errorf("pipeline registry full (%d registrations)", ps.config.MaxPipelineCount)
		core.LogError(err.Error())
		return 0, err
	}
	if cfg.TargetFormat.IsDepth() {
		err := fmt.Errorf("func Register - pipeline %q target must be a color format", cfg.Name)
		core.LogError(err.Error())
		return 0, err
	}

	switch cfg.Kind {
	case metadata.PassKindGraphics:
		if cfg.VertexEntry == "" {
			cfg.VertexEntry = "vs_main"
		}
		if cfg.FragmentEntry == "" {
			cfg.FragmentEntry = "fs_main"
		}
	case metadata.PassKindCompute:
		if cfg.ComputeEntry == "" {
			cfg.ComputeEntry = "main"
		}
		if cfg.DepthTest {
			err := fmt.Errorf("func Register - compute pipeline %q cannot depth test", cfg.Name)
			core.LogError(err.Error())
			return 0, err
		}
	default:
		err := fmt.Errorf("func Register - unknown pass kind %d", cfg.Kind)
		core.LogError(err.Error())
		return 0, err
	}

	layoutID, err := ps.layouts.Intern(cfg.Bindings)
	if err != nil {
		return 0, err
	}

	id := metadata.PipelineID(len(ps.specs) + 1)
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("pipeline-%d", id)
	}
	spec := &PipelineSpec{id: id, config: cfg, layoutID: layoutID}

	// Registrations sharing (shader, layout, kind, target) share one cache
	// entry; their remaining fields must agree for that to be sound.
	for _, other := range ps.specs {
		if other.config.Shader == cfg.Shader && other.layoutID == layoutID &&
			other.config.Kind == cfg.Kind && other.config.TargetFormat == cfg.TargetFormat &&
			!slices.Equal(other.config.VertexLayout, cfg.VertexLayout) {
			core.LogWarn("pipelines %s and %s share a cache entry but declare different vertex layouts", other.config.Name, cfg.Name)
		}
	}

	ps.specs = append(ps.specs, spec)
	core.LogDebug("pipeline %s registered as id %d", cfg.Name, id)
	return id, nil
}

// Spec resolves a registration id.
func (ps *PipelineSystem) Spec(id metadata.PipelineID) (*PipelineSpec, error) {
	if id == 0 || int(id) > len(ps.specs) {
		return nil, fmt.Errorf("unknown pipeline id %d", id)
	}
	return ps.specs[id-1], nil
}

// GetOrBuild returns the pipeline for a registration at the shader's
// current reload generation. On a miss it loads the current binary and
// builds; a failed build returns the last good pipeline together with a
// CompileError carrying the raw diagnostic. The error surfaces once per
// failed generation, later calls serve the fallback silently.
func (ps *PipelineSystem) GetOrBuild(id metadata.PipelineID, surfaceFormat gpu.TextureFormat) (*Pipeline, error) {
	spec, err := ps.Spec(id)
	if err != nil {
		return nil, err
	}
	shader := ps.shaders[spec.config.Shader]

	target := spec.config.TargetFormat
	if spec.config.Kind == metadata.PassKindCompute {
		target = gpu.TextureFormatUndefined
	} else if target == gpu.TextureFormatUndefined {
		target = surfaceFormat
	}

	key := metadata.PipelineKey{
		Shader:     shader.name,
		Generation: shader.generation,
		Layout:     spec.layoutID,
		Kind:       spec.config.Kind,
		Target:     target,
	}
	cur := ps.live[baseOf(key)]
	if cur != nil && cur.Key.Generation == shader.generation {
		return cur, nil
	}
	if ce, failedBefore := ps.failed[key]; failedBefore {
		if cur != nil {
			return cur, nil
		}
		return nil, ce
	}

	built, buildErr := ps.build(spec, key)
	if buildErr != nil {
		ce := &metadata.CompileError{Shader: key.Shader, Generation: key.Generation, Diagnostic: buildErr.Error()}
		ps.failed[key] = ce
		core.LogError(ce.Error())
		return cur, ce
	}

	if cur != nil {
		ps.retire(cur)
	}
	ps.live[baseOf(key)] = built
	core.LogInfo("pipeline %s built for shader %s generation %d", spec.config.Name, key.Shader, key.Generation)
	return built, nil
}

func (ps *PipelineSystem) build(spec *PipelineSpec, key metadata.PipelineKey) (*Pipeline, error) {
	code, err := ps.library.Load(key.Shader)
	if err != nil {
		return nil, err
	}
	module, err := ps.device.CreateShaderModule(key.Shader, code)
	if err != nil {
		return nil, err
	}

	layout, err := ps.layouts.Layout(spec.layoutID)
	if err != nil {
		module.Release()
		return nil, err
	}

	var raw gpu.Pipeline
	switch spec.config.Kind {
	case metadata.PassKindGraphics:
		desc := gpu.RenderPipelineDescriptor{
			Label:            spec.config.Name,
			VertexModule:     module,
			VertexEntry:      spec.config.VertexEntry,
			FragmentModule:   module,
			FragmentEntry:    spec.config.FragmentEntry,
			Layout:           layout,
			VertexAttributes: spec.config.VertexLayout,
			TargetFormat:     key.Target,
		}
		if spec.config.DepthTest {
			desc.DepthFormat = depthFormat
		}
		raw, err = ps.device.CreateRenderPipeline(desc)
	case metadata.PassKindCompute:
		raw, err = ps.device.CreateComputePipeline(gpu.ComputePipelineDescriptor{
			Label:  spec.config.Name,
			Module: module,
			Entry:  spec.config.ComputeEntry,
			Layout: layout,
		})
	}
	if err != nil {
		module.Release()
		return nil, err
	}

	return &Pipeline{Key: key, Raw: raw, module: module, spec: spec}, nil
}

// retire moves a superseded entry out of the live cache. Its device objects
// survive until no in-flight frame references it.
func (ps *PipelineSystem) retire(p *Pipeline) {
	p.retired = true
	if p.inFlight == 0 {
		ps.destroy(p)
		return
	}
	ps.retired = append(ps.retired, p)
	core.LogDebug("pipeline %s generation %d retired, %d frames in flight", p.Key.Shader, p.Key.Generation, p.inFlight)
}

func (ps *PipelineSystem) retain(p *Pipeline) {
	p.inFlight++
}

func (ps *PipelineSystem) release(p *Pipeline) {
	if p.inFlight == 0 {
		core.LogWarn("func release - pipeline %s released more often than retained", p.Key.Shader)
		return
	}
	p.inFlight--
	if p.inFlight == 0 && p.retired {
		ps.retired = slices.DeleteFunc(ps.retired, func(other *Pipeline) bool { return other == p })
		ps.destroy(p)
	}
}

func (ps *PipelineSystem) destroy(p *Pipeline) {
	p.Raw.Release()
	p.module.Release()
}

// RetiredCount reports superseded entries still pinned by in-flight frames.
func (ps *PipelineSystem) RetiredCount() int {
	return len(ps.retired)
}

// LiveCount reports built entries currently served by the cache.
func (ps *PipelineSystem) LiveCount() int {
	return len(ps.live)
}

func (ps *PipelineSystem) Shutdown() error {
	for _, p := range ps.live {
		ps.destroy(p)
	}
	ps.live = make(map[pipelineBase]*Pipeline)
	for _, p := range ps.retired {
		ps.destroy(p)
	}
	ps.retired = nil
	return nil
}
