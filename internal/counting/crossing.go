package counting

import (
	"image"
	"time"
)

// Direction of a midline crossing.
type Direction string

const (
	DirectionIn  Direction = "in"  // upward: bottom half to top half
	DirectionOut Direction = "out" // downward: top half to bottom half
)

// CrossingEvent is emitted once per counted crossing. Anchor is where
// the overlay flashes its indicator.
type CrossingEvent struct {
	Frame     int64       `json:"frame"`
	Timestamp time.Time   `json:"timestamp"`
	TrackID   int         `json:"track_id"`
	Direction Direction   `json:"direction"`
	Increment int         `json:"increment"`
	Area      float64     `json:"area"`
	Point     Point       `json:"point"`
	Anchor    image.Point `json:"anchor"`
}

// CrossingCounter owns the session counters and decides when a track's
// latest step crosses the midline.
type CrossingCounter struct {
	counters Counters
}

// Counters returns the current totals.
func (c *CrossingCounter) Counters() Counters {
	return c.counters
}

// Observe compares the track's previous and current centroid against
// the midline of f. The comparisons pair a strict and an inclusive
// bound on each side, so a point sitting exactly on the line counts
// when its neighbour is strictly off it.
func (c *CrossingCounter) Observe(t *PassengerTrack, area float64, f Frame, p Params) (CrossingEvent, bool) {
	prev, ok := t.PreviousPoint()
	if !ok {
		return CrossingEvent{}, false
	}
	cur := t.CurrentPoint()
	mid := float64(f.Midline())

	var dir Direction
	switch {
	case (prev.Y < mid && cur.Y >= mid) || (prev.Y <= mid && cur.Y > mid):
		dir = DirectionOut
	case (prev.Y > mid && cur.Y <= mid) || (prev.Y >= mid && cur.Y < mid):
		dir = DirectionIn
	default:
		return CrossingEvent{}, false
	}

	inc := occupantIncrement(area, p)
	if dir == DirectionOut {
		c.counters.Out += inc
	} else {
		c.counters.In += inc
	}

	return CrossingEvent{
		Timestamp: f.Timestamp,
		TrackID:   t.ID,
		Direction: dir,
		Increment: inc,
		Area:      area,
		Point:     cur,
		Anchor:    image.Pt(f.Width-20, 20),
	}, true
}

// occupantIncrement estimates how many people a blob holds from its
// area. Bounds are exclusive: an area equal to either threshold counts
// as one.
func occupantIncrement(area float64, p Params) int {
	switch {
	case area > p.OnePersonMaxArea && area < p.TwoPersonMaxArea:
		return 2
	case area > p.TwoPersonMaxArea:
		return 3
	default:
		return 1
	}
}
