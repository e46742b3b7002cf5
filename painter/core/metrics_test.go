package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRollingFrameTime(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(avgCount); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 0.001)
	assert.Equal(t, uint64(avgCount), m.TotalFrames())
}

func TestMetricsFPSRollsOverEachSecond(t *testing.T) {
	m := NewMetrics()
	// 101 frames at 10ms cross the one second mark once.
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	fps, _ := m.Frame()
	assert.InDelta(t, 100.0, fps, 1.0)
}
