// Package framerate estimates the capture framerate over a fixed
// window. The estimate is refreshed once per elapsed window and held
// constant in between.
package framerate

import (
	"time"

	"github.com/banshee-data/passenger.counter/internal/timeutil"
)

// DefaultWindow is the averaging window used by the capture loop.
const DefaultWindow = 500 * time.Millisecond

// Meter counts frames and publishes frames/elapsed each time the
// accumulated elapsed time passes the window. Not safe for concurrent
// use; each stream owns one.
type Meter struct {
	clock  timeutil.Clock
	window time.Duration

	last    time.Time
	elapsed time.Duration
	frames  int
	fps     float64
}

// NewMeter returns a meter with no estimate yet (FPS() == 0). A
// non-positive window falls back to DefaultWindow.
func NewMeter(clock timeutil.Clock, window time.Duration) *Meter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Meter{clock: clock, window: window, last: clock.Now()}
}

// Seed sets an initial estimate, e.g. the rate reported by the camera,
// used until the first window completes.
func (m *Meter) Seed(fps float64) {
	if fps > 0 {
		m.fps = fps
	}
}

// SetWindow changes the averaging window; the partial window in
// progress is kept.
func (m *Meter) SetWindow(window time.Duration) {
	if window > 0 {
		m.window = window
	}
}

// Tick records one captured frame and returns the current estimate.
func (m *Meter) Tick() float64 {
	now := m.clock.Now()
	m.elapsed += now.Sub(m.last)
	m.last = now
	m.frames++
	if m.elapsed > m.window {
		m.fps = float64(m.frames) / m.elapsed.Seconds()
		m.frames = 0
		m.elapsed = 0
	}
	return m.fps
}

// FPS returns the last published estimate.
func (m *Meter) FPS() float64 {
	return m.fps
}
