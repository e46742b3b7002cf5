package headless

import (
	"sync"

	"github.com/spaghettifunk/fresco/painter/gpu"
)

// Surface is a presentable surface with no window behind it. Tests drive
// resize and close through Resize/Close and inject acquire failures with
// FailNextAcquire.
type Surface struct {
	device *Device

	mu          sync.Mutex
	width       uint32
	height      uint32
	format      gpu.TextureFormat
	events      chan gpu.SurfaceEvent
	acquireErrs []error
	acquired    int
	presented   int
	configures  int
}

func NewSurface(device *Device, width, height uint32, format gpu.TextureFormat) *Surface {
	return &Surface{
		device: device,
		width:  width,
		height: height,
		format: format,
		events: make(chan gpu.SurfaceEvent, 16),
	}
}

func (s *Surface) Configure(width, height uint32, format gpu.TextureFormat) error {
	s.device.mu.Lock()
	lost := s.device.lost
	s.device.mu.Unlock()
	if lost {
		return gpu.ErrDeviceLost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
	s.format = format
	s.configures++
	return nil
}

func (s *Surface) Acquire() (gpu.DrawTarget, error) {
	s.device.mu.Lock()
	lost := s.device.lost
	s.device.mu.Unlock()
	if lost {
		return nil, gpu.ErrDeviceLost
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.acquireErrs) > 0 {
		err := s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
		return nil, err
	}
	s.acquired++
	return &drawTarget{
		view: &TextureView{width: s.width, height: s.height, format: s.format, of: ""},
	}, nil
}

func (s *Surface) Present(target gpu.DrawTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented++
}

func (s *Surface) Size() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Surface) Format() gpu.TextureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *Surface) Events() <-chan gpu.SurfaceEvent {
	return s.events
}

// Resize queues a resize event the way a window layer would. The new size
// takes effect when the painter reconfigures in response.
func (s *Surface) Resize(width, height uint32) {
	s.events <- gpu.SurfaceEvent{Kind: gpu.SurfaceEventResized, Width: width, Height: height}
}

// Close queues a close event.
func (s *Surface) Close() {
	s.events <- gpu.SurfaceEvent{Kind: gpu.SurfaceEventClosed}
}

// FailNextAcquire makes the next Acquire return err instead of a target.
// Queue several to fail several acquires in a row.
func (s *Surface) FailNextAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErrs = append(s.acquireErrs, err)
}

// Presented reports how many targets were presented.
func (s *Surface) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Configured reports how many times the surface was reconfigured.
func (s *Surface) Configured() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configures
}

type drawTarget struct {
	view *TextureView
}

func (t *drawTarget) View() gpu.TextureView {
	return t.view
}
