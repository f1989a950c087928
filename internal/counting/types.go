package counting

import (
	"math"
	"time"
)

// Point is a position in image pixel coordinates. Y grows downwards.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box in pixel coordinates.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Center returns the integer-truncated centre of the box, matching how
// blob centroids are derived from contour bounding rectangles.
func (r Rect) Center() Point {
	return Point{
		X: math.Trunc(r.MinX + (r.MaxX-r.MinX)/2),
		Y: math.Trunc(r.MinY + (r.MaxY-r.MinY)/2),
	}
}

// Detection is a single foreground blob found in one frame.
type Detection struct {
	Centroid Point   `json:"centroid"`
	Area     float64 `json:"area"` // contour area (pixels²)
	Box      Rect    `json:"box"`
}

// finite reports whether the detection carries usable numbers.
func (d Detection) finite() bool {
	for _, v := range []float64{d.Centroid.X, d.Centroid.Y, d.Area} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return d.Area >= 0
}

// qualifies reports whether the detection is well-formed and large
// enough to be tracked.
func (d Detection) qualifies(minArea float64) bool {
	return d.finite() && d.Area > minArea
}

// Frame is the engine input for one processed video frame.
type Frame struct {
	Timestamp  time.Time
	Width      int
	Height     int
	FPS        float64 // current framerate estimate, supplied by the capture side
	Detections []Detection
}

// Midline returns the y coordinate of the counting line.
func (f Frame) Midline() int {
	return f.Height / 2
}

// Counters holds the directional passenger totals for one session.
type Counters struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// Total returns In + Out.
func (c Counters) Total() int {
	return c.In + c.Out
}

// FrameResult summarises what a single ProcessFrame call did.
type FrameResult struct {
	Frame     int64           `json:"frame"`
	Matched   int             `json:"matched"`
	Created   int             `json:"created"`
	Discarded int             `json:"discarded"`
	Evicted   []int           `json:"evicted,omitempty"`
	Crossings []CrossingEvent `json:"crossings,omitempty"`
	Counters  Counters        `json:"counters"`
}

// Snapshot is an immutable copy of the engine state after a frame,
// safe to hand to readers on other goroutines.
type Snapshot struct {
	Frame     int64            `json:"frame"`
	Timestamp time.Time        `json:"timestamp"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Midline   int              `json:"midline"`
	FPS       float64          `json:"fps"`
	Counters  Counters         `json:"counters"`
	Tracks    []PassengerTrack `json:"tracks"`
}
