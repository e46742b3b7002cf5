package systems

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

func TestSchedulerHonorsInFlightBound(t *testing.T) {
	h := newHarness(t, harnessConfig{maxInFlight: 2, manual: true})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("a", id)}))
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("b", id)}))
	assert.Equal(t, 2, h.scheduler.InFlight())
	assert.Equal(t, 2, h.device.PendingSubmissions())

	// The third frame must wait for the oldest to complete before it can
	// acquire.
	completed := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		h.device.CompleteNext()
		close(completed)
	}()

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("c", id)}))
	<-completed
	assert.Equal(t, 2, h.scheduler.InFlight())
	assert.LessOrEqual(t, h.device.PendingSubmissions(), 2)
	assert.Equal(t, 3, h.surface.Presented())

	h.device.CompleteAll()
	require.NoError(t, h.scheduler.Shutdown())
	assert.Equal(t, 0, h.scheduler.InFlight())
}

func TestSchedulerDefersDestroyUntilFrameCompletes(t *testing.T) {
	h := newHarness(t, harnessConfig{maxInFlight: 2, manual: true})
	h.registerShader("sprite", "v1")

	id, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   "textured",
		Kind:   metadata.PassKindGraphics,
		Shader: "sprite",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex},
		}},
	})
	require.NoError(t, err)

	buf, err := h.resources.Create(metadata.NewBuffer("frame-uniforms", 64, gpu.BufferUsageUniform))
	require.NoError(t, err)

	pass := metadata.Pass{
		Label: "scene",
		Kind:  metadata.PassKindGraphics,
		Draws: []metadata.Draw{{
			Pipeline:    id,
			Bindings:    []metadata.ResourceBinding{{Slot: 0, Handle: buf}},
			VertexCount: 3,
		}},
	}
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{pass}))

	// Destroy while the frame is in flight: the handle dies now, the GPU
	// object later.
	h.resources.Destroy(buf)
	_, err = h.resources.Resolve(buf)
	require.ErrorIs(t, err, metadata.ErrStaleHandle)

	raw := h.device.FindBuffer("frame-uniforms")
	require.NotNil(t, raw)
	assert.False(t, raw.Released())

	h.device.CompleteNext()
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{{Label: "empty", Kind: metadata.PassKindGraphics}}))
	assert.True(t, raw.Released())

	h.device.CompleteAll()
	require.NoError(t, h.scheduler.Shutdown())
}

func TestSchedulerAbandonsFrameOnPassFailure(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	dead, err := h.resources.Create(metadata.NewBuffer("doomed", 16, gpu.BufferUsageUniform))
	require.NoError(t, err)
	h.resources.Destroy(dead)

	brokenPipe, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   "broken",
		Kind:   metadata.PassKindGraphics,
		Shader: "sprite",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex},
		}},
	})
	require.NoError(t, err)

	passes := []metadata.Pass{
		trianglePass("one", id),
		{
			Label: "two",
			Kind:  metadata.PassKindGraphics,
			Draws: []metadata.Draw{{
				Pipeline:    brokenPipe,
				Bindings:    []metadata.ResourceBinding{{Slot: 0, Handle: dead}},
				VertexCount: 3,
			}},
		},
		trianglePass("three", id),
	}

	err = h.scheduler.RunFrame(passes)
	require.Error(t, err)

	var fe *metadata.FrameError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Abandoned)
	// Only the middle pass failed; the others recorded.
	require.Len(t, fe.Passes, 1)
	assert.Equal(t, 1, fe.Passes[0].Index)
	assert.Equal(t, "two", fe.Passes[0].Label)
	require.ErrorIs(t, err, metadata.ErrStaleHandle)

	// Abandoned wholesale: nothing submitted, nothing presented.
	assert.Empty(t, h.device.CommandLog())
	assert.Equal(t, 0, h.surface.Presented())

	// The next healthy frame goes through in declared order.
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("one", id), trianglePass("three", id)}))
	log := h.device.CommandLog()
	require.NotEmpty(t, log)
	assert.Contains(t, log[0], "render-pass one")
	found := false
	for _, op := range log {
		if op == "end-pass three" {
			found = true
		}
	}
	assert.True(t, found, "second pass should have recorded, log: %v", log)
	assert.Equal(t, 1, h.surface.Presented())
}

func TestSchedulerPresentsWithLastGoodOnBadEdit(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))

	h.device.FailCompile("sprite", "error: unexpected token")
	require.True(t, h.pipelines.Invalidate("sprite", time.Now()))

	// The frame still presents on the previous pipeline and carries the
	// diagnostic out.
	err := h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)})
	require.Error(t, err)
	var fe *metadata.FrameError
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Abandoned)
	var ce *metadata.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, h.surface.Presented())

	// Reported once: the next frame is clean.
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))
	assert.Equal(t, 3, h.surface.Presented())
}

func TestSchedulerObservesReloadAtFrameBoundary(t *testing.T) {
	h := newHarness(t, harnessConfig{watch: true})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))
	require.Equal(t, 1, h.device.PipelinesBuilt())

	h.rewriteShader("sprite", "v2")

	// The watch event lands on the channel asynchronously; each frame
	// drains the channel before recording, so some following frame picks
	// the edit up. No rebuild ever happens mid-frame. Editors may fire
	// several notifications per save, hence at-least rather than exact.
	require.Eventually(t, func() bool {
		if err := h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}); err != nil {
			return false
		}
		return h.device.PipelinesBuilt() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	src, ok := h.pipelines.ShaderSource("sprite")
	require.True(t, ok)
	assert.GreaterOrEqual(t, src.Generation, uint64(2))
}

func TestSchedulerSurfaceErrorsAreTransient(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	h.surface.FailNextAcquire(gpu.ErrSurfaceLost)
	err := h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)})
	require.ErrorIs(t, err, gpu.ErrSurfaceLost)

	h.surface.FailNextAcquire(gpu.ErrAcquireTimeout)
	err = h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)})
	require.ErrorIs(t, err, gpu.ErrAcquireTimeout)

	// Both are retryable.
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))
	assert.Equal(t, 1, h.surface.Presented())
}

func TestSchedulerDeviceLossIsFatal(t *testing.T) {
	h := newHarness(t, harnessConfig{maxInFlight: 2, manual: true})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))

	h.device.Lose()

	err := h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)})
	require.ErrorIs(t, err, gpu.ErrDeviceLost)

	// Every later frame fails fast, no recovery is attempted.
	err = h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)})
	require.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Equal(t, 1, h.surface.Presented())
}

func TestSchedulerRecreatesDepthTargetOnResize(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("solid", "v1")

	id, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:      "solid-depth",
		Kind:      metadata.PassKindGraphics,
		Shader:    "solid",
		DepthTest: true,
	})
	require.NoError(t, err)

	resized := 0
	h.scheduler.SetResizeCallback(func(w, hgt uint32) { resized++ })

	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))
	first := h.device.FindTexture("painter-depth-800x600")
	require.NotNil(t, first)
	assert.False(t, first.Released())

	h.surface.Resize(1024, 768)
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass("scene", id)}))

	assert.Equal(t, 1, resized)
	second := h.device.FindTexture("painter-depth-1024x768")
	require.NotNil(t, second)
	assert.False(t, second.Released())
	assert.True(t, first.Released(), "old depth target should be reclaimed once frames drained")

	w, hgt := h.surface.Size()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), hgt)
}

func TestSchedulerOffscreenTargetThenSample(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("scene", "v1")
	h.registerShader("post", "v1")

	offscreen, err := h.resources.Create(metadata.NewTexture("layer", 800, 600,
		gpu.TextureFormatRGBA16Float, gpu.TextureUsageRenderAttachment|gpu.TextureUsageTextureBinding))
	require.NoError(t, err)
	sampler, err := h.resources.Create(metadata.NewSampler("linear", gpu.SamplerDescriptor{MagFilter: gpu.FilterModeLinear}))
	require.NoError(t, err)

	scenePipe, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:         "scene-pipe",
		Kind:         metadata.PassKindGraphics,
		Shader:       "scene",
		TargetFormat: gpu.TextureFormatRGBA16Float,
	})
	require.NoError(t, err)

	postPipe, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   "post-pipe",
		Kind:   metadata.PassKindGraphics,
		Shader: "post",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeTexture, Visibility: gpu.ShaderStageFragment},
			{Slot: 1, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
		}},
	})
	require.NoError(t, err)

	clear := &gpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}
	passes := []metadata.Pass{
		{
			Label:      "offscreen",
			Kind:       metadata.PassKindGraphics,
			Target:     offscreen,
			ClearColor: clear,
			Draws:      []metadata.Draw{{Pipeline: scenePipe, VertexCount: 3}},
		},
		{
			Label: "present",
			Kind:  metadata.PassKindGraphics,
			Draws: []metadata.Draw{{
				Pipeline: postPipe,
				Bindings: []metadata.ResourceBinding{
					{Slot: 0, Handle: offscreen},
					{Slot: 1, Handle: sampler},
				},
				VertexCount: 3,
			}},
		},
	}
	require.NoError(t, h.scheduler.RunFrame(passes))

	log := h.device.CommandLog()
	require.NotEmpty(t, log)
	assert.Equal(t, "render-pass offscreen target=layer clear", log[0])
	idx := -1
	for i, op := range log {
		if op == "render-pass present target=surface load" {
			idx = i
		}
	}
	require.Greater(t, idx, 0, "present pass must record after the offscreen pass, log: %v", log)
}

func TestSchedulerComputePass(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sim", "compute v1")

	simPipe, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   "sim-pipe",
		Kind:   metadata.PassKindCompute,
		Shader: "sim",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeStorageBuffer, Visibility: gpu.ShaderStageCompute},
		}},
	})
	require.NoError(t, err)

	particles, err := h.resources.Create(metadata.NewBuffer("particles", 4096, gpu.BufferUsageStorage))
	require.NoError(t, err)

	pass := metadata.Pass{
		Label: "sim",
		Kind:  metadata.PassKindCompute,
		Dispatches: []metadata.Dispatch{{
			Pipeline: simPipe,
			Bindings: []metadata.ResourceBinding{{Slot: 0, Handle: particles}},
			GroupsX:  8, GroupsY: 8, GroupsZ: 1,
		}},
	}
	require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{pass}))

	log := h.device.CommandLog()
	assert.Contains(t, log, "compute-pass sim")
	assert.Contains(t, log, "dispatch 8x8x1")

	// Kind mismatches abort the pass.
	bad := metadata.Pass{
		Label:      "bad",
		Kind:       metadata.PassKindCompute,
		Dispatches: []metadata.Dispatch{{Pipeline: simPipe}},
		Draws:      []metadata.Draw{{Pipeline: simPipe}},
	}
	err = h.scheduler.RunFrame([]metadata.Pass{bad})
	var fe *metadata.FrameError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Abandoned)
}

func TestSchedulerValidatesBindings(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sprite", "v1")

	id, err := h.pipelines.Register(metadata.PipelineConfig{
		Name:   "textured",
		Kind:   metadata.PassKindGraphics,
		Shader: "sprite",
		Bindings: metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
			{Slot: 0, Type: gpu.BindingTypeTexture, Visibility: gpu.ShaderStageFragment},
		}},
	})
	require.NoError(t, err)

	buf, err := h.resources.Create(metadata.NewBuffer("not-a-texture", 16, gpu.BufferUsageUniform))
	require.NoError(t, err)

	// Wrong resource kind for the declared slot.
	err = h.scheduler.RunFrame([]metadata.Pass{{
		Label: "scene",
		Kind:  metadata.PassKindGraphics,
		Draws: []metadata.Draw{{
			Pipeline:    id,
			Bindings:    []metadata.ResourceBinding{{Slot: 0, Handle: buf}},
			VertexCount: 3,
		}},
	}})
	var fe *metadata.FrameError
	require.True(t, errors.As(err, &fe))
	require.True(t, fe.Abandoned)
	assert.Contains(t, fe.Passes[0].Err.Error(), "wants a texture")

	// Missing bindings entirely.
	err = h.scheduler.RunFrame([]metadata.Pass{{
		Label: "scene",
		Kind:  metadata.PassKindGraphics,
		Draws: []metadata.Draw{{Pipeline: id, VertexCount: 3}},
	}})
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Abandoned)
}

func TestSchedulerFrameMetricsAccumulate(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.registerShader("sprite", "v1")
	id := h.simplePipeline("sprite-pipe", "sprite")

	for i := 0; i < 5; i++ {
		require.NoError(t, h.scheduler.RunFrame([]metadata.Pass{trianglePass(fmt.Sprintf("f%d", i), id)}))
	}
	assert.Equal(t, uint64(5), h.scheduler.Metrics().TotalFrames())
}
