// Package headless is an in-memory implementation of the gpu contracts.
// It performs no rendering; it allocates plain byte slices, records command
// streams as readable strings and completes submissions either immediately
// or under test control. It backs the test suite, CI runs and the demo
// binary, and is the reference for what a native adapter must do.
package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/fresco/painter/gpu"
)

type Device struct {
	mu     sync.Mutex
	limits gpu.Limits
	lost   bool

	manualCompletion bool
	pending          []*Submission

	buffers  []*Buffer
	textures []*Texture
	samplers []*Sampler

	failCompile map[string]string

	pipelinesBuilt int
	commandLog     []string
}

func NewDevice() *Device {
	return &Device{
		limits:      gpu.DefaultLimits(),
		failCompile: make(map[string]string),
	}
}

// SetLimits overrides the advertised device limits. Call before handing the
// device to a painter.
func (d *Device) SetLimits(l gpu.Limits) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits = l
}

// SetManualCompletion stops submissions from completing on their own; the
// test drives them with CompleteNext or CompleteAll.
func (d *Device) SetManualCompletion(manual bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manualCompletion = manual
}

// FailCompile makes CreateShaderModule fail for the given label with the
// given diagnostic until ClearCompileFailure is called.
func (d *Device) FailCompile(label, diagnostic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failCompile[label] = diagnostic
}

func (d *Device) ClearCompileFailure(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failCompile, label)
}

// Lose marks the device lost: pending submissions complete with
// gpu.ErrDeviceLost and every later call fails.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	for _, s := range d.pending {
		s.finish(gpu.ErrDeviceLost)
	}
	d.pending = nil
}

// CompleteNext completes the oldest pending submission. It reports whether
// one was pending.
func (d *Device) CompleteNext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return false
	}
	s := d.pending[0]
	d.pending = d.pending[1:]
	s.finish(nil)
	return true
}

func (d *Device) CompleteAll() {
	for d.CompleteNext() {
	}
}

// PendingSubmissions returns how many submissions await completion.
func (d *Device) PendingSubmissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// PipelinesBuilt counts every render and compute pipeline ever created,
// including superseded ones.
func (d *Device) PipelinesBuilt() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelinesBuilt
}

// CommandLog returns the readable command stream of every submitted buffer
// in submission order.
func (d *Device) CommandLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commandLog))
	copy(out, d.commandLog)
	return out
}

// FindBuffer looks a buffer up by label for assertions. Returns nil when no
// buffer carries the label.
func (d *Device) FindBuffer(label string) *Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		if b.label == label {
			return b
		}
	}
	return nil
}

func (d *Device) FindTexture(label string) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.textures {
		if t.label == label {
			return t
		}
	}
	return nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	b := &Buffer{label: desc.Label, data: make([]byte, desc.Size), usage: desc.Usage}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(desc.Format.BytesPerPixel())
	t := &Texture{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		data:   make([]byte, size),
	}
	d.textures = append(d.textures, t)
	return t, nil
}

func (d *Device) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	s := &Sampler{label: desc.Label}
	d.samplers = append(d.samplers, s)
	return s, nil
}

func (d *Device) CreateShaderModule(label string, code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	if diag, ok := d.failCompile[label]; ok {
		return nil, fmt.Errorf("%s", diag)
	}
	snapshot := make([]byte, len(code))
	copy(snapshot, code)
	return &ShaderModule{label: label, code: snapshot}, nil
}

func (d *Device) CreateBindGroupLayout(label string, entries []gpu.BindGroupLayoutEntry) (gpu.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	if uint32(len(entries)) > d.limits.MaxBindingsPerGroup {
		return nil, fmt.Errorf("bind group layout %q has %d bindings, limit is %d", label, len(entries), d.limits.MaxBindingsPerGroup)
	}
	return &BindGroupLayout{label: label, entries: entries}, nil
}

func (d *Device) CreateBindGroup(layout gpu.BindGroupLayout, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	bgl, ok := layout.(*BindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("bind group layout from another device")
	}
	if len(entries) != len(bgl.entries) {
		return nil, fmt.Errorf("bind group for layout %q has %d entries, layout expects %d", bgl.label, len(entries), len(bgl.entries))
	}
	return &BindGroup{layout: bgl, entries: entries}, nil
}

func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	if desc.VertexModule == nil {
		return nil, fmt.Errorf("render pipeline %q has no vertex module", desc.Label)
	}
	d.pipelinesBuilt++
	return &Pipeline{label: desc.Label, module: desc.VertexModule.(*ShaderModule), seq: d.pipelinesBuilt}, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, gpu.ErrDeviceLost
	}
	if desc.Module == nil {
		return nil, fmt.Errorf("compute pipeline %q has no module", desc.Label)
	}
	d.pipelinesBuilt++
	return &Pipeline{label: desc.Label, module: desc.Module.(*ShaderModule), seq: d.pipelinesBuilt}, nil
}

func (d *Device) NewCommandEncoder(label string) gpu.CommandEncoder {
	return &CommandEncoder{label: label}
}

func (d *Device) Queue() gpu.Queue {
	return &Queue{device: d}
}

func (d *Device) Limits() gpu.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limits
}

type Queue struct {
	device *Device
}

func (q *Queue) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("buffer from another device")
	}
	q.device.mu.Lock()
	defer q.device.mu.Unlock()
	if q.device.lost {
		return gpu.ErrDeviceLost
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (q *Queue) WriteTexture(tex gpu.Texture, data []byte) error {
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("texture from another device")
	}
	q.device.mu.Lock()
	defer q.device.mu.Unlock()
	if q.device.lost {
		return gpu.ErrDeviceLost
	}
	if uint64(len(data)) > uint64(len(t.data)) {
		return fmt.Errorf("write of %d bytes overflows texture %q (%d bytes)", len(data), t.label, len(t.data))
	}
	copy(t.data, data)
	return nil
}

func (q *Queue) Submit(cb gpu.CommandBuffer) gpu.Submission {
	buf, _ := cb.(*CommandBuffer)
	s := &Submission{done: make(chan struct{})}

	q.device.mu.Lock()
	if buf != nil {
		q.device.commandLog = append(q.device.commandLog, buf.ops...)
	}
	if q.device.lost {
		q.device.mu.Unlock()
		s.finish(gpu.ErrDeviceLost)
		return s
	}
	if q.device.manualCompletion {
		q.device.pending = append(q.device.pending, s)
		q.device.mu.Unlock()
		return s
	}
	q.device.mu.Unlock()
	s.finish(nil)
	return s
}

type Submission struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (s *Submission) Done() <-chan struct{} {
	return s.done
}

func (s *Submission) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Submission) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
