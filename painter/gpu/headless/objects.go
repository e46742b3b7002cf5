package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/fresco/painter/gpu"
)

type Buffer struct {
	mu       sync.Mutex
	label    string
	data     []byte
	usage    gpu.BufferUsage
	released bool
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// Released reports whether the painter handed the buffer back.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Bytes returns a copy of the buffer contents for assertions.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

type Texture struct {
	mu       sync.Mutex
	label    string
	width    uint32
	height   uint32
	format   gpu.TextureFormat
	data     []byte
	released bool
}

func (t *Texture) Size() (uint32, uint32) {
	return t.width, t.height
}

func (t *Texture) Format() gpu.TextureFormat {
	return t.format
}

func (t *Texture) View() gpu.TextureView {
	return &TextureView{width: t.width, height: t.height, format: t.format, of: t.label}
}

func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
}

func (t *Texture) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func (t *Texture) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

type Sampler struct {
	mu       sync.Mutex
	label    string
	released bool
}

func (s *Sampler) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *Sampler) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// TextureView names its backing object so command logs stay readable.
type TextureView struct {
	width  uint32
	height uint32
	format gpu.TextureFormat
	of     string
}

func (v *TextureView) Size() (uint32, uint32) {
	return v.width, v.height
}

func (v *TextureView) Format() gpu.TextureFormat {
	return v.format
}

type ShaderModule struct {
	label    string
	code     []byte
	released bool
}

func (m *ShaderModule) Label() string {
	return m.label
}

// Code returns the byte snapshot the module was built from, so reload tests
// can prove the rebuilt pipeline saw the new binary.
func (m *ShaderModule) Code() []byte {
	return m.code
}

func (m *ShaderModule) Release() {
	m.released = true
}

type BindGroupLayout struct {
	label    string
	entries  []gpu.BindGroupLayoutEntry
	released bool
}

func (l *BindGroupLayout) Release() {
	l.released = true
}

type BindGroup struct {
	mu       sync.Mutex
	layout   *BindGroupLayout
	entries  []gpu.BindGroupEntry
	released bool
}

func (g *BindGroup) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
}

func (g *BindGroup) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

type Pipeline struct {
	label    string
	module   *ShaderModule
	seq      int
	released bool
}

func (p *Pipeline) Label() string {
	return p.label
}

// ModuleCode exposes the shader snapshot this pipeline was built from.
func (p *Pipeline) ModuleCode() []byte {
	return p.module.code
}

func (p *Pipeline) Release() {
	p.released = true
}

func (p *Pipeline) Released() bool {
	return p.released
}

type CommandBuffer struct {
	ops []string
}

// CommandEncoder records a readable op stream instead of real commands.
type CommandEncoder struct {
	label string
	ops   []string
}

func (e *CommandEncoder) BeginRenderPass(desc gpu.RenderPassDescriptor) gpu.RenderPassEncoder {
	target := "surface"
	if v, ok := desc.Target.(*TextureView); ok && v.of != "" {
		target = v.of
	}
	load := "load"
	if desc.ClearColor != nil {
		load = "clear"
	}
	e.ops = append(e.ops, fmt.Sprintf("render-pass %s target=%s %s", desc.Label, target, load))
	return &renderPass{enc: e, label: desc.Label}
}

func (e *CommandEncoder) BeginComputePass(label string) gpu.ComputePassEncoder {
	e.ops = append(e.ops, fmt.Sprintf("compute-pass %s", label))
	return &computePass{enc: e, label: label}
}

func (e *CommandEncoder) Finish() gpu.CommandBuffer {
	return &CommandBuffer{ops: e.ops}
}

type renderPass struct {
	enc   *CommandEncoder
	label string
}

func (r *renderPass) SetPipeline(p gpu.Pipeline) {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("set-pipeline %s", p.Label()))
}

func (r *renderPass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("set-bind-group %d", index))
}

func (r *renderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("set-vertex-buffer %d", slot))
}

func (r *renderPass) SetIndexBuffer(buf gpu.Buffer) {
	r.enc.ops = append(r.enc.ops, "set-index-buffer")
}

func (r *renderPass) Draw(vertexCount, instanceCount uint32) {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("draw %dx%d", vertexCount, instanceCount))
}

func (r *renderPass) DrawIndexed(indexCount, instanceCount uint32) {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("draw-indexed %dx%d", indexCount, instanceCount))
}

func (r *renderPass) End() {
	r.enc.ops = append(r.enc.ops, fmt.Sprintf("end-pass %s", r.label))
}

type computePass struct {
	enc   *CommandEncoder
	label string
}

func (c *computePass) SetPipeline(p gpu.Pipeline) {
	c.enc.ops = append(c.enc.ops, fmt.Sprintf("set-pipeline %s", p.Label()))
}

func (c *computePass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	c.enc.ops = append(c.enc.ops, fmt.Sprintf("set-bind-group %d", index))
}

func (c *computePass) Dispatch(groupsX, groupsY, groupsZ uint32) {
	c.enc.ops = append(c.enc.ops, fmt.Sprintf("dispatch %dx%dx%d", groupsX, groupsY, groupsZ))
}

func (c *computePass) End() {
	c.enc.ops = append(c.enc.ops, fmt.Sprintf("end-pass %s", c.label))
}
