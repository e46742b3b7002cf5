package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/fresco/painter/assets"
	"github.com/spaghettifunk/fresco/painter/containers"
	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

type FrameSchedulerConfig struct {
	/** @brief How many frames may be submitted and not yet completed. */
	MaxFramesInFlight int
}

// frameToken is one in-flight frame: the submission plus everything the
// frame pinned while recording. Releasing the token is what unparks
// deferred destroys and retired-pipeline eviction.
type frameToken struct {
	id         uint64
	submission gpu.Submission
	resources  []uint32
	pipelines  []*Pipeline
	depths     []*depthTarget
	bindGroups []gpu.BindGroup
}

func (t *frameToken) retainResource(rs *ResourceSystem, index uint32) {
	rs.retainInFlight(index)
	t.resources = append(t.resources, index)
}

func (t *frameToken) retainPipeline(ps *PipelineSystem, p *Pipeline) {
	ps.retain(p)
	t.pipelines = append(t.pipelines, p)
}

// depthTarget is the scheduler-owned depth attachment. Like every other
// GPU object it outlives its replacement until the frames using it
// complete.
type depthTarget struct {
	texture  gpu.Texture
	width    uint32
	height   uint32
	inFlight uint32
	retired  bool
}

// FrameScheduler drives the per-frame state machine: drain events, acquire
// a target under the in-flight bound, record the declared passes, submit
// as one unit, present, and release completed frames. One goroutine calls
// RunFrame; that is the painter's threading contract.
type FrameScheduler struct {
	config    *FrameSchedulerConfig
	device    gpu.Device
	surface   gpu.Surface
	resources *ResourceSystem
	layouts   *LayoutSystem
	pipelines *PipelineSystem
	library   *assets.Library

	inFlight    *containers.RingQueue[*frameToken]
	frameNumber uint64
	depth       *depthTarget
	lost        bool
	closed      bool

	clock   *core.Clock
	metrics *core.Metrics

	onResize func(width, height uint32)
	onClose  func()
}

func NewFrameScheduler(config *FrameSchedulerConfig, device gpu.Device, surface gpu.Surface,
	resources *ResourceSystem, layouts *LayoutSystem, pipelines *PipelineSystem, library *assets.Library) (*FrameScheduler, error) {
	if config.MaxFramesInFlight < 1 {
		err := fmt.Errorf("func NewFrameScheduler - config.MaxFramesInFlight must be >= 1")
		core.LogFatal(err.Error())
		return nil, err
	}
	return &FrameScheduler{
		config:    config,
		device:    device,
		surface:   surface,
		resources: resources,
		layouts:   layouts,
		pipelines: pipelines,
		library:   library,
		inFlight:  containers.NewRingQueue[*frameToken](config.MaxFramesInFlight),
		clock:     core.NewClock(),
		metrics:   core.NewMetrics(),
	}, nil
}

func (fs *FrameScheduler) SetResizeCallback(fn func(width, height uint32)) {
	fs.onResize = fn
}

func (fs *FrameScheduler) SetCloseCallback(fn func()) {
	fs.onClose = fn
}

// Metrics exposes the scheduler's frame statistics.
func (fs *FrameScheduler) Metrics() *core.Metrics {
	return fs.metrics
}

// Closed reports whether the surface delivered a close event.
func (fs *FrameScheduler) Closed() bool {
	return fs.closed
}

// RunFrame runs one frame: Idle -> Acquired -> Recording -> Submitted.
// Completion happens asynchronously; the frame after the next MaxFrames
// InFlight-1 waits for it. Shader reloads and surface events are observed
// here, at the frame boundary, and never mid-recording.
//
// A pass that cannot be recorded aborts alone; the remaining passes still
// record for diagnostics, then the whole frame is abandoned with nothing
// submitted or presented. A frame that recorded everything, possibly on
// last-good pipelines, submits as one unit.
func (fs *FrameScheduler) RunFrame(passes []metadata.Pass) error {
	if fs.lost {
		return gpu.ErrDeviceLost
	}

	fs.clock.Start()
	fs.frameNumber++

	fs.drainShaderEvents()
	fs.drainSurfaceEvents()

	if err := fs.reapCompleted(); err != nil {
		core.LogError("func RunFrame - completing finished frames: %s", err.Error())
		return err
	}
	if fs.inFlight.IsFull() {
		if err := fs.completeOldest(); err != nil {
			core.LogError("func RunFrame - waiting on oldest frame: %s", err.Error())
			return err
		}
	}

	target, err := fs.surface.Acquire()
	if err != nil {
		if errors.Is(err, gpu.ErrDeviceLost) {
			fs.lost = true
		}
		core.LogError("func RunFrame - acquire failed: %s", err.Error())
		return err
	}

	encoder := fs.device.NewCommandEncoder(fmt.Sprintf("frame-%d", fs.frameNumber))
	token := &frameToken{id: fs.frameNumber}

	var passErrs []*metadata.PassError
	abandoned := false
	for i := range passes {
		recorded, perr := fs.recordPass(encoder, token, &passes[i], target)
		if perr != nil {
			passErrs = append(passErrs, &metadata.PassError{Index: i, Label: passes[i].Label, Err: perr})
		}
		if !recorded {
			abandoned = true
		}
	}

	if abandoned {
		fs.releaseToken(token)
		fe := &metadata.FrameError{Frame: fs.frameNumber, Abandoned: true, Passes: passErrs}
		core.LogError(fe.Error())
		return fe
	}

	token.submission = fs.device.Queue().Submit(encoder.Finish())
	if err := fs.inFlight.Enqueue(token); err != nil {
		// Cannot happen: room was made above. Complete synchronously rather
		// than leak the token.
		<-token.submission.Done()
		fs.releaseToken(token)
		return err
	}
	fs.surface.Present(target)

	fs.clock.Update()
	fs.metrics.Update(fs.clock.Elapsed())

	if len(passErrs) > 0 {
		fe := &metadata.FrameError{Frame: fs.frameNumber, Abandoned: false, Passes: passErrs}
		core.LogWarn(fe.Error())
		return fe
	}
	return nil
}

// drainShaderEvents folds every pending watch event into the pipeline
// system. The channel is bounded and this never blocks, so a burst of
// editor saves costs one generation bump at the next frame boundary.
func (fs *FrameScheduler) drainShaderEvents() {
	for {
		select {
		case ev, ok := <-fs.library.Events():
			if !ok {
				return
			}
			fs.pipelines.Invalidate(ev.Name, ev.ModTime)
		default:
			return
		}
	}
}

func (fs *FrameScheduler) drainSurfaceEvents() {
	for {
		select {
		case ev := <-fs.surface.Events():
			switch ev.Kind {
			case gpu.SurfaceEventResized:
				fs.handleResize(ev.Width, ev.Height)
			case gpu.SurfaceEventClosed:
				fs.closed = true
				if fs.onClose != nil {
					fs.onClose()
				}
			}
		default:
			return
		}
	}
}

func (fs *FrameScheduler) handleResize(width, height uint32) {
	if width == 0 || height == 0 {
		core.LogDebug("surface minimized, skipping reconfigure")
		return
	}
	if err := fs.surface.Configure(width, height, fs.surface.Format()); err != nil {
		if errors.Is(err, gpu.ErrDeviceLost) {
			fs.lost = true
		}
		core.LogError("func handleResize - reconfigure failed: %s", err.Error())
		return
	}
	// The depth target is sized to the surface; drop it and let the next
	// depth-testing pass recreate it at the new size.
	if fs.depth != nil {
		fs.retireDepth(fs.depth)
		fs.depth = nil
	}
	core.LogInfo("surface resized to %dx%d", width, height)
	if fs.onResize != nil {
		fs.onResize(width, height)
	}
}

// recordedDraw is a fully resolved draw, ready to encode. Resolution and
// encoding are separate phases so a failing draw aborts its pass before
// anything of that pass is recorded.
type recordedDraw struct {
	pipeline      *Pipeline
	bindGroup     gpu.BindGroup
	vertices      gpu.Buffer
	indices       gpu.Buffer
	vertexCount   uint32
	indexCount    uint32
	instanceCount uint32
}

type recordedDispatch struct {
	pipeline  *Pipeline
	bindGroup gpu.BindGroup
	groups    [3]uint32
}

func (fs *FrameScheduler) recordPass(encoder gpu.CommandEncoder, token *frameToken, pass *metadata.Pass, target gpu.DrawTarget) (bool, error) {
	switch pass.Kind {
	case metadata.PassKindGraphics:
		return fs.recordGraphicsPass(encoder, token, pass, target)
	case metadata.PassKindCompute:
		return fs.recordComputePass(encoder, token, pass)
	default:
		return false, fmt.Errorf("unknown pass kind %d", pass.Kind)
	}
}

func (fs *FrameScheduler) recordGraphicsPass(encoder gpu.CommandEncoder, token *frameToken, pass *metadata.Pass, target gpu.DrawTarget) (bool, error) {
	if len(pass.Dispatches) > 0 {
		return false, fmt.Errorf("graphics pass cannot carry dispatches")
	}

	// Resolve the color target: the acquired surface image or an offscreen
	// texture from the table.
	var view gpu.TextureView
	var targetFormat gpu.TextureFormat
	if pass.Target.IsNil() {
		view = target.View()
		targetFormat = fs.surface.Format()
	} else {
		entry, err := fs.resources.resolve(pass.Target)
		if err != nil {
			return false, err
		}
		if entry.texture == nil {
			return false, fmt.Errorf("pass target %q is not a texture", entry.desc.Label)
		}
		view = entry.texture.View()
		targetFormat = entry.desc.Format
		token.retainResource(fs.resources, pass.Target.Index())
	}

	var diag error
	needDepth := false
	draws := make([]recordedDraw, 0, len(pass.Draws))
	for i := range pass.Draws {
		d := &pass.Draws[i]

		p, derr := fs.pipelines.GetOrBuild(d.Pipeline, fs.surface.Format())
		if derr != nil {
			if p == nil {
				return false, derr
			}
			// Last-good fallback: the pass still records, the diagnostic
			// travels up with the frame.
			if diag == nil {
				diag = derr
			}
		}
		if p.Key.Kind != metadata.PassKindGraphics {
			return false, fmt.Errorf("pipeline %s is a %s pipeline in a graphics pass", p.spec.config.Name, p.Key.Kind)
		}
		if p.Key.Target != targetFormat {
			return false, fmt.Errorf("pipeline %s targets %s, pass renders to %s", p.spec.config.Name, p.Key.Target, targetFormat)
		}
		token.retainPipeline(fs.pipelines, p)

		bg, err := fs.buildBindGroup(p.spec, d.Bindings, token)
		if err != nil {
			return false, err
		}

		rd := recordedDraw{
			pipeline:      p,
			bindGroup:     bg,
			vertexCount:   d.VertexCount,
			indexCount:    d.IndexCount,
			instanceCount: max(d.InstanceCount, 1),
		}
		if !d.Vertices.IsNil() {
			buf, err := fs.resolveBuffer(d.Vertices, token)
			if err != nil {
				return false, err
			}
			rd.vertices = buf
		}
		if !d.Indices.IsNil() {
			buf, err := fs.resolveBuffer(d.Indices, token)
			if err != nil {
				return false, err
			}
			rd.indices = buf
		}
		if p.spec.config.DepthTest {
			needDepth = true
		}
		draws = append(draws, rd)
	}

	desc := gpu.RenderPassDescriptor{
		Label:      pass.Label,
		Target:     view,
		ClearColor: pass.ClearColor,
	}
	if needDepth {
		w, h := view.Size()
		depthView, err := fs.ensureDepthTarget(w, h)
		if err != nil {
			return false, err
		}
		token.retainDepth(fs.depth)
		desc.DepthTarget = depthView
		desc.ClearDepth = 1.0
	}

	rp := encoder.BeginRenderPass(desc)
	for i := range draws {
		rd := &draws[i]
		rp.SetPipeline(rd.pipeline.Raw)
		if rd.bindGroup != nil {
			rp.SetBindGroup(0, rd.bindGroup)
		}
		if rd.vertices != nil {
			rp.SetVertexBuffer(0, rd.vertices)
		}
		if rd.indices != nil {
			rp.SetIndexBuffer(rd.indices)
			rp.DrawIndexed(rd.indexCount, rd.instanceCount)
		} else {
			rp.Draw(rd.vertexCount, rd.instanceCount)
		}
	}
	rp.End()

	return true, diag
}

func (fs *FrameScheduler) recordComputePass(encoder gpu.CommandEncoder, token *frameToken, pass *metadata.Pass) (bool, error) {
	if len(pass.Draws) > 0 {
		return false, fmt.Errorf("compute pass cannot carry draws")
	}
	if !pass.Target.IsNil() {
		return false, fmt.Errorf("compute pass cannot have a render target")
	}

	var diag error
	dispatches := make([]recordedDispatch, 0, len(pass.Dispatches))
	for i := range pass.Dispatches {
		d := &pass.Dispatches[i]

		p, derr := fs.pipelines.GetOrBuild(d.Pipeline, fs.surface.Format())
		if derr != nil {
			if p == nil {
				return false, derr
			}
			if diag == nil {
				diag = derr
			}
		}
		if p.Key.Kind != metadata.PassKindCompute {
			return false, fmt.Errorf("pipeline %s is a %s pipeline in a compute pass", p.spec.config.Name, p.Key.Kind)
		}
		token.retainPipeline(fs.pipelines, p)

		bg, err := fs.buildBindGroup(p.spec, d.Bindings, token)
		if err != nil {
			return false, err
		}
		dispatches = append(dispatches, recordedDispatch{
			pipeline:  p,
			bindGroup: bg,
			groups:    [3]uint32{max(d.GroupsX, 1), max(d.GroupsY, 1), max(d.GroupsZ, 1)},
		})
	}

	cp := encoder.BeginComputePass(pass.Label)
	for i := range dispatches {
		rd := &dispatches[i]
		cp.SetPipeline(rd.pipeline.Raw)
		if rd.bindGroup != nil {
			cp.SetBindGroup(0, rd.bindGroup)
		}
		cp.Dispatch(rd.groups[0], rd.groups[1], rd.groups[2])
	}
	cp.End()

	return true, diag
}

// buildBindGroup resolves a draw's bindings against the pipeline's
// declared binding set, pins every resolved resource on the token and
// creates the transient device bind group. Bindings are positional: entry
// i of the draw fills slot i of the declaration.
func (fs *FrameScheduler) buildBindGroup(spec *PipelineSpec, bindings []metadata.ResourceBinding, token *frameToken) (gpu.BindGroup, error) {
	decl := spec.config.Bindings.Entries
	if len(decl) == 0 {
		if len(bindings) > 0 {
			return nil, fmt.Errorf("pipeline %s declares no bindings, draw provides %d", spec.config.Name, len(bindings))
		}
		return nil, nil
	}
	if len(bindings) != len(decl) {
		return nil, fmt.Errorf("pipeline %s declares %d bindings, draw provides %d", spec.config.Name, len(decl), len(bindings))
	}

	entries := make([]gpu.BindGroupEntry, len(decl))
	for i, slot := range decl {
		b := bindings[i]
		if b.Slot != slot.Slot {
			return nil, fmt.Errorf("pipeline %s expects slot %d at position %d, draw binds slot %d", spec.config.Name, slot.Slot, i, b.Slot)
		}
		entry, err := fs.resources.resolve(b.Handle)
		if err != nil {
			return nil, err
		}

		ge := gpu.BindGroupEntry{Binding: slot.Slot}
		switch slot.Type {
		case gpu.BindingTypeUniformBuffer, gpu.BindingTypeStorageBuffer:
			if entry.buffer == nil {
				return nil, fmt.Errorf("slot %d of pipeline %s wants a buffer, %q is a %s", slot.Slot, spec.config.Name, entry.desc.Label, entry.desc.Kind)
			}
			ge.Buffer = entry.buffer
		case gpu.BindingTypeTexture, gpu.BindingTypeStorageTexture:
			if entry.texture == nil {
				return nil, fmt.Errorf("slot %d of pipeline %s wants a texture, %q is a %s", slot.Slot, spec.config.Name, entry.desc.Label, entry.desc.Kind)
			}
			ge.Texture = entry.texture
		case gpu.BindingTypeSampler:
			if entry.sampler == nil {
				return nil, fmt.Errorf("slot %d of pipeline %s wants a sampler, %q is a %s", slot.Slot, spec.config.Name, entry.desc.Label, entry.desc.Kind)
			}
			ge.Sampler = entry.sampler
		}
		entries[i] = ge
		token.retainResource(fs.resources, b.Handle.Index())
	}

	layout, err := fs.layouts.Layout(spec.layoutID)
	if err != nil {
		return nil, err
	}
	bg, err := fs.device.CreateBindGroup(layout, entries)
	if err != nil {
		return nil, err
	}
	token.bindGroups = append(token.bindGroups, bg)
	return bg, nil
}

func (fs *FrameScheduler) resolveBuffer(handle metadata.ResourceHandle, token *frameToken) (gpu.Buffer, error) {
	entry, err := fs.resources.resolve(handle)
	if err != nil {
		return nil, err
	}
	if entry.buffer == nil {
		return nil, fmt.Errorf("resource %q is a %s, not a buffer", entry.desc.Label, entry.desc.Kind)
	}
	token.retainResource(fs.resources, handle.Index())
	return entry.buffer, nil
}

func (t *frameToken) retainDepth(d *depthTarget) {
	d.inFlight++
	t.depths = append(t.depths, d)
}

func (fs *FrameScheduler) ensureDepthTarget(width, height uint32) (gpu.TextureView, error) {
	if fs.depth != nil {
		if fs.depth.width == width && fs.depth.height == height {
			return fs.depth.texture.View(), nil
		}
		fs.retireDepth(fs.depth)
		fs.depth = nil
	}
	tex, err := fs.device.CreateTexture(gpu.TextureDescriptor{
		Label:  fmt.Sprintf("painter-depth-%dx%d", width, height),
		Width:  width,
		Height: height,
		Format: depthFormat,
		Usage:  gpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, err
	}
	fs.depth = &depthTarget{texture: tex, width: width, height: height}
	core.LogDebug("depth target created at %dx%d", width, height)
	return tex.View(), nil
}

func (fs *FrameScheduler) retireDepth(d *depthTarget) {
	d.retired = true
	if d.inFlight == 0 {
		d.texture.Release()
	}
}

// releaseToken returns everything a frame pinned: transient bind groups go
// back to the device, resource and pipeline in-flight counts drop, parked
// destroys and retired entries get their chance to reclaim.
func (fs *FrameScheduler) releaseToken(token *frameToken) {
	for _, bg := range token.bindGroups {
		bg.Release()
	}
	for _, index := range token.resources {
		fs.resources.releaseInFlight(index)
	}
	for _, p := range token.pipelines {
		fs.pipelines.release(p)
	}
	for _, d := range token.depths {
		d.inFlight--
		if d.inFlight == 0 && d.retired {
			d.texture.Release()
		}
	}
}

// reapCompleted releases every finished frame at the head of the queue
// without blocking. Completion is in submission order, so the head is
// always the oldest outstanding frame.
func (fs *FrameScheduler) reapCompleted() error {
	for !fs.inFlight.IsEmpty() {
		token, err := fs.inFlight.Peek()
		if err != nil {
			return err
		}
		select {
		case <-token.submission.Done():
			fs.inFlight.Dequeue()
			serr := token.submission.Err()
			fs.releaseToken(token)
			if serr != nil {
				fs.lost = true
				return serr
			}
		default:
			return nil
		}
	}
	return nil
}

// completeOldest blocks until the oldest in-flight frame finishes. This is
// the backpressure point that keeps the painter at most MaxFramesInFlight
// ahead of the device.
func (fs *FrameScheduler) completeOldest() error {
	token, err := fs.inFlight.Dequeue()
	if err != nil {
		return err
	}
	<-token.submission.Done()
	serr := token.submission.Err()
	fs.releaseToken(token)
	if serr != nil {
		fs.lost = true
		return serr
	}
	return nil
}

// InFlight reports how many frames are submitted but not yet completed.
func (fs *FrameScheduler) InFlight() int {
	return fs.inFlight.Len()
}

// Shutdown drains every outstanding frame and drops the depth target. The
// device may already be lost; draining still releases all tokens.
func (fs *FrameScheduler) Shutdown() error {
	for !fs.inFlight.IsEmpty() {
		if err := fs.completeOldest(); err != nil {
			core.LogWarn("func Shutdown - frame completed with %s", err.Error())
		}
	}
	if fs.depth != nil {
		fs.retireDepth(fs.depth)
		fs.depth = nil
	}
	return nil
}
