package counting

import (
	"math"
	"time"
)

// Engine runs the per-frame tracking and counting pass for one video
// stream. It is not safe for concurrent use: a single goroutine owns it
// and hands Snapshot copies to everyone else.
type Engine struct {
	tracks     TrackSet
	associator TrackAssociator
	counter    CrossingCounter
	lifecycle  TrackLifecycleManager

	frames    int64
	lastFrame Frame
}

// NewEngine returns an engine with no tracks and zeroed counters.
func NewEngine() *Engine {
	return &Engine{}
}

// ProcessFrame consumes one frame of detections: association, crossing
// checks for every updated track, then ageing and eviction.
func (e *Engine) ProcessFrame(f Frame, p Params) FrameResult {
	e.frames++
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if math.IsNaN(f.FPS) || math.IsInf(f.FPS, 0) {
		f.FPS = 0
	}
	res := FrameResult{Frame: e.frames}

	for _, d := range f.Detections {
		if !d.qualifies(p.MinArea) {
			res.Discarded++
			continue
		}
		track, created := e.associator.Associate(&e.tracks, d, p)
		if created {
			res.Created++
			continue
		}
		res.Matched++
		if ev, ok := e.counter.Observe(track, d.Area, f, p); ok {
			ev.Frame = e.frames
			res.Crossings = append(res.Crossings, ev)
		}
	}

	res.Evicted = e.lifecycle.Advance(&e.tracks, p.MaxPassengerAgeSeconds, f.FPS)
	res.Counters = e.counter.Counters()
	e.lastFrame = f
	return res
}

// Counters returns the session totals.
func (e *Engine) Counters() Counters {
	return e.counter.Counters()
}

// Tracks returns copies of the live tracks in creation order.
func (e *Engine) Tracks() []PassengerTrack {
	return e.tracks.Copy()
}

// TrackCount returns the number of live tracks.
func (e *Engine) TrackCount() int {
	return e.tracks.Len()
}

// FramesProcessed returns how many frames the engine has consumed.
func (e *Engine) FramesProcessed() int64 {
	return e.frames
}

// Snapshot copies the state left by the most recent frame.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Frame:     e.frames,
		Timestamp: e.lastFrame.Timestamp,
		Width:     e.lastFrame.Width,
		Height:    e.lastFrame.Height,
		Midline:   e.lastFrame.Midline(),
		FPS:       e.lastFrame.FPS,
		Counters:  e.counter.Counters(),
		Tracks:    e.tracks.Copy(),
	}
}
