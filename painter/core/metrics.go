package core

const avgCount uint8 = 30

// Metrics accumulates frame timing statistics. Each frame scheduler owns its
// own instance so that multiple painters can coexist in one process.
type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	totalFrames        uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update folds one frame's wall-clock time (in seconds) into the rolling
// statistics.
func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == avgCount-1 {
		sum := 0.0
		for i := uint8(0); i < avgCount; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(avgCount)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= avgCount

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all frames.
	m.frames++
	m.totalFrames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

// TotalFrames reports the number of frames folded in since creation.
func (m *Metrics) TotalFrames() uint64 {
	return m.totalFrames
}

// Frame returns the current frames per second and the averaged frame time in
// milliseconds.
func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
