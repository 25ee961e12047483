package core

import "time"

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame time average plus per-frame draw counters.
type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	drawCalls   uint64
	lastDraws   uint64
	totalFrames uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// CountDraw records one issued draw call for the current frame.
func (m *Metrics) CountDraw() {
	m.drawCalls++
}

// Update closes the current frame.
func (m *Metrics) Update(frameElapsed time.Duration) {
	// Calculate frame ms average
	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.totalFrames++
	m.lastDraws = m.drawCalls
	m.drawCalls = 0
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

// LastFrameDraws is the number of draw calls issued in the last closed frame.
func (m *Metrics) LastFrameDraws() uint64 {
	return m.lastDraws
}

func (m *Metrics) Frames() uint64 {
	return m.totalFrames
}
