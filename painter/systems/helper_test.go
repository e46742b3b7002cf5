package systems

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/fresco/painter/assets"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/gpu/headless"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

const testSurfaceFormat = gpu.TextureFormatBGRA8UnormSrgb

type harnessConfig struct {
	maxInFlight  int
	manual       bool
	watch        bool
	maxResources uint32
}

// harness wires the systems the way the facade does, against a headless
// device, with every knob a test needs in reach.
type harness struct {
	t         *testing.T
	device    *headless.Device
	surface   *headless.Surface
	library   *assets.Library
	resources *ResourceSystem
	layouts   *LayoutSystem
	pipelines *PipelineSystem
	scheduler *FrameScheduler
	shaderDir string
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	if cfg.maxInFlight == 0 {
		cfg.maxInFlight = 2
	}
	if cfg.maxResources == 0 {
		cfg.maxResources = 64
	}

	device := headless.NewDevice()
	device.SetManualCompletion(cfg.manual)
	surface := headless.NewSurface(device, 800, 600, testSurfaceFormat)

	library, err := assets.NewLibrary(&assets.LibraryConfig{WatchShaders: cfg.watch})
	require.NoError(t, err)
	t.Cleanup(func() { library.Close() })

	resources, err := NewResourceSystem(&ResourceSystemConfig{MaxResourceCount: cfg.maxResources}, device)
	require.NoError(t, err)
	layouts, err := NewLayoutSystem(&LayoutSystemConfig{MaxLayoutCount: 32}, device)
	require.NoError(t, err)
	pipelines, err := NewPipelineSystem(&PipelineSystemConfig{MaxPipelineCount: 32}, device, layouts, library)
	require.NoError(t, err)
	scheduler, err := NewFrameScheduler(&FrameSchedulerConfig{MaxFramesInFlight: cfg.maxInFlight},
		device, surface, resources, layouts, pipelines, library)
	require.NoError(t, err)

	return &harness{
		t:         t,
		device:    device,
		surface:   surface,
		library:   library,
		resources: resources,
		layouts:   layouts,
		pipelines: pipelines,
		scheduler: scheduler,
		shaderDir: t.TempDir(),
	}
}

// registerShader writes a shader file and registers it under name.
func (h *harness) registerShader(name, body string) string {
	h.t.Helper()
	path := filepath.Join(h.shaderDir, name+".wgsl")
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(h.t, h.pipelines.RegisterShader(name, path))
	return path
}

func (h *harness) rewriteShader(name, body string) {
	h.t.Helper()
	path := filepath.Join(h.shaderDir, name+".wgsl")
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0o644))
}

// simplePipeline registers a graphics pipeline with no bindings drawing to
// the surface.
func (h *harness) simplePipeline(name, shader string) metadata.PipelineID {
	h.t.Helper()
	id, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   name,
		Kind:   metadata.PassKindGraphics,
		Shader: shader,
	})
	require.NoError(h.t, err)
	return id
}

// trianglePass is a one-draw graphics pass on the surface target.
func trianglePass(label string, id metadata.PipelineID) metadata.Pass {
	return metadata.Pass{
		Label: label,
		Kind:  metadata.PassKindGraphics,
		Draws: []metadata.Draw{{Pipeline: id, VertexCount: 3}},
	}
}
