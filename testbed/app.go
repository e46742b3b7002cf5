/*
Package testbed is a small scene that exercises the painter end to end: a
compute pass advances a particle buffer, the scene pass draws a textured
quad into an offscreen layer and the post pass composites that layer onto
the surface. Edit the shaders under assets/shaders while it runs to watch
the live reload path.
*/
package testbed

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/spaghettifunk/fresco/painter"
	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

const (
	atlasSize     = 256
	particleCount = 1024
	layerFormat   = gpu.TextureFormatRGBA16Float
)

// App owns the demo scene's resources and drives one painter.
type App struct {
	painter *painter.Painter

	simPipe   metadata.PipelineID
	scenePipe metadata.PipelineID
	postPipe  metadata.PipelineID

	quadVertices metadata.ResourceHandle
	quadIndices  metadata.ResourceHandle
	uniforms     metadata.ResourceHandle
	atlas        metadata.ResourceHandle
	sampler      metadata.ResourceHandle
	particles    metadata.ResourceHandle
	layer        metadata.ResourceHandle

	width   uint32
	height  uint32
	elapsed float64
}

func NewApp(p *painter.Painter, shaderDir string, width, height uint32) (*App, error) {
	app := &App{painter: p, width: width, height: height}

	for _, name := range []string{"scene", "post", "particles"} {
		if err := p.RegisterShader(name, filepath.Join(shaderDir, name+".wgsl")); err != nil {
			return nil, err
		}
	}
	if err := app.registerPipelines(); err != nil {
		return nil, err
	}
	if err := app.createResources(); err != nil {
		return nil, err
	}

	p.OnResize(app.handleResize)
	return app, nil
}

func (app *App) registerPipelines() error {
	var err error

	app.simPipe, err = app.painter.RegisterPipeline(metadata.PipelineConfig{
		Name:   "particle-sim",
		Kind:   metadata.PassKindCompute,
		Shader: "particles",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeStorageBuffer, Visibility: gpu.ShaderStageCompute},
		}},
	})
	if err != nil {
		return err
	}

	app.scenePipe, err = app.painter.RegisterPipeline(metadata.PipelineConfig{
		Name:   "scene",
		Kind:   metadata.PassKindGraphics,
		Shader: "scene",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex | gpu.ShaderStageFragment},
			{Slot: 1, Type: gpu.BindingTypeTexture, Visibility: gpu.ShaderStageFragment},
			{Slot: 2, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
		}},
		VertexLayout: []gpu.VertexFormat{gpu.VertexFormatFloat32x2, gpu.VertexFormatFloat32x2},
		TargetFormat: layerFormat,
		DepthTest:    true,
	})
	if err != nil {
		return err
	}

	// Fullscreen triangle, geometry generated in the vertex shader.
	app.postPipe, err = app.painter.RegisterPipeline(metadata.PipelineConfig{
		Name:   "post",
		Kind:   metadata.PassKindGraphics,
		Shader: "post",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeTexture, Visibility: gpu.ShaderStageFragment},
			{Slot: 1, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
		}},
	})
	return err
}

func (app *App) createResources() error {
	p := app.painter
	var err error

	quad := []float32{
		// x, y, u, v
		-0.5, -0.5, 0, 1,
		0.5, -0.5, 1, 1,
		0.5, 0.5, 1, 0,
		-0.5, 0.5, 0, 0,
	}
	if app.quadVertices, err = p.CreateBuffer("quad-vertices", uint64(len(quad)*4),
		gpu.BufferUsageVertex|gpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if err = p.UpdateResource(app.quadVertices, packFloats(quad)); err != nil {
		return err
	}

	indices := []uint16{0, 1, 2, 2, 3, 0}
	if app.quadIndices, err = p.CreateBuffer("quad-indices", uint64(len(indices)*2),
		gpu.BufferUsageIndex|gpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if err = p.UpdateResource(app.quadIndices, packIndices(indices)); err != nil {
		return err
	}

	// time, aspect and two pad floats, std140-friendly.
	if app.uniforms, err = p.CreateBuffer("frame-uniforms", 16,
		gpu.BufferUsageUniform|gpu.BufferUsageCopyDst); err != nil {
		return err
	}

	if app.atlas, err = p.CreateTexture("checker-atlas", atlasSize, atlasSize,
		gpu.TextureFormatRGBA8Unorm, gpu.TextureUsageTextureBinding|gpu.TextureUsageCopyDst); err != nil {
		return err
	}
	if err = p.UpdateResource(app.atlas, buildAtlas()); err != nil {
		return err
	}

	if app.sampler, err = p.CreateSampler("linear", gpu.SamplerDescriptor{
		MagFilter: gpu.FilterModeLinear,
		MinFilter: gpu.FilterModeLinear,
		AddressU:  gpu.AddressModeRepeat,
		AddressV:  gpu.AddressModeRepeat,
	}); err != nil {
		return err
	}

	// vec2 position + vec2 velocity per particle.
	if app.particles, err = p.CreateBuffer("particles", particleCount*16,
		gpu.BufferUsageStorage|gpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if err = p.UpdateResource(app.particles, seedParticles()); err != nil {
		return err
	}

	return app.createLayer()
}

func (app *App) createLayer() error {
	var err error
	app.layer, err = app.painter.CreateTexture("scene-layer", app.width, app.height,
		layerFormat, gpu.TextureUsageRenderAttachment|gpu.TextureUsageTextureBinding)
	return err
}

// handleResize recreates the offscreen layer at the new surface size. The
// old texture lingers until the frames sampling it complete.
func (app *App) handleResize(width, height uint32) {
	app.width = width
	app.height = height
	app.painter.DestroyResource(app.layer)
	if err := app.createLayer(); err != nil {
		core.LogError("recreating scene layer at %dx%d: %s", width, height, err.Error())
	}
}

// Frame advances the scene by delta seconds and paints it.
func (app *App) Frame(delta float64) error {
	app.elapsed += delta

	aspect := float32(1)
	if app.height > 0 {
		aspect = float32(app.width) / float32(app.height)
	}
	if err := app.painter.UpdateResource(app.uniforms,
		packFloats([]float32{float32(app.elapsed), aspect, 0, 0})); err != nil {
		return err
	}

	sim := metadata.Pass{
		Label: "particle-sim",
		Kind:  metadata.PassKindCompute,
		Dispatches: []metadata.Dispatch{{
			Pipeline: app.simPipe,
			Bindings: []metadata.ResourceBinding{{Slot: 0, Handle: app.particles}},
			GroupsX:  particleCount / 64,
		}},
	}

	pulse := 0.5 + 0.5*math.Sin(app.elapsed)
	scene := metadata.Pass{
		Label:      "scene",
		Kind:       metadata.PassKindGraphics,
		Target:     app.layer,
		ClearColor: &gpu.Color{R: 0.04, G: 0.04, B: 0.08 + 0.04*pulse, A: 1},
		Draws: []metadata.Draw{{
			Pipeline: app.scenePipe,
			Bindings: []metadata.ResourceBinding{
				{Slot: 0, Handle: app.uniforms},
				{Slot: 1, Handle: app.atlas},
				{Slot: 2, Handle: app.sampler},
			},
			Vertices:   app.quadVertices,
			Indices:    app.quadIndices,
			IndexCount: 6,
		}},
	}

	post := metadata.Pass{
		Label:      "post",
		Kind:       metadata.PassKindGraphics,
		ClearColor: &gpu.Color{A: 1},
		Draws: []metadata.Draw{{
			Pipeline: app.postPipe,
			Bindings: []metadata.ResourceBinding{
				{Slot: 0, Handle: app.layer},
				{Slot: 1, Handle: app.sampler},
			},
			VertexCount: 3,
		}},
	}

	return app.painter.RunFrame(sim, scene, post)
}

// buildAtlas scales a tiny checkerboard up to the atlas size, nearest
// neighbor so the checker edges stay crisp.
func buildAtlas() []byte {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			c := color.NRGBA{R: 36, G: 36, B: 46, A: 255}
			if (x+y)%2 == 0 {
				c = color.NRGBA{R: 232, G: 122, B: 62, A: 255}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, atlasSize, atlasSize))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst.Pix
}

func seedParticles() []byte {
	values := make([]float32, particleCount*4)
	for i := 0; i < particleCount; i++ {
		fi := float64(i) / particleCount
		values[i*4+0] = float32(math.Cos(fi * 2 * math.Pi)) // position x
		values[i*4+1] = float32(math.Sin(fi * 2 * math.Pi)) // position y
		values[i*4+2] = float32(-math.Sin(fi*2*math.Pi)) * 0.1
		values[i*4+3] = float32(math.Cos(fi*2*math.Pi)) * 0.1
	}
	return packFloats(values)
}

func packFloats(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func packIndices(values []uint16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}
