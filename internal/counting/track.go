package counting

import (
	"image/color"
	"math"
)

// PassengerTrack is one tracked blob and its history.
type PassengerTrack struct {
	// Identity, assigned at creation and never reused within an engine.
	ID int `json:"id"`

	// Trajectory holds every associated centroid in arrival order.
	Trajectory []Point `json:"trajectory"`

	// Age is the number of frames processed since creation.
	Age int `json:"age"`

	// Color is a presentation hint, stable for the life of the track.
	Color color.RGBA `json:"color"`
}

func newPassengerTrack(id int, p Point) *PassengerTrack {
	return &PassengerTrack{
		ID:         id,
		Trajectory: []Point{p},
		Color:      TrackColor(id),
	}
}

// CurrentPoint returns the most recent centroid.
func (t *PassengerTrack) CurrentPoint() Point {
	return t.Trajectory[len(t.Trajectory)-1]
}

// PreviousPoint returns the centroid before the current one. ok is false
// while the track has a single point.
func (t *PassengerTrack) PreviousPoint() (p Point, ok bool) {
	if len(t.Trajectory) < 2 {
		return Point{}, false
	}
	return t.Trajectory[len(t.Trajectory)-2], true
}

// near reports whether p lies inside the association window around the
// track's current centroid. Bounds are inclusive.
func (t *PassengerTrack) near(p Point, xNear, yNear float64) bool {
	c := t.CurrentPoint()
	return math.Abs(p.X-c.X) <= xNear && math.Abs(p.Y-c.Y) <= yNear
}

func (t *PassengerTrack) clone() PassengerTrack {
	cp := *t
	cp.Trajectory = make([]Point, len(t.Trajectory))
	copy(cp.Trajectory, t.Trajectory)
	return cp
}

// TrackColor derives a display colour from a track id. Consecutive ids
// are spread around the hue circle by the golden angle so neighbouring
// tracks stay distinguishable.
func TrackColor(id int) color.RGBA {
	const goldenAngle = 137.508
	h := math.Mod(float64(id)*goldenAngle, 360)
	r, g, b := hsvToRGB(h, 0.85, 0.95)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8(math.Round((r + m) * 255)), uint8(math.Round((g + m) * 255)), uint8(math.Round((b + m) * 255))
}

// TrackSet is the ordered collection of live tracks for one stream.
// Slice order is creation order, which the association tie-break
// depends on.
type TrackSet struct {
	tracks []*PassengerTrack
	nextID int
}

// Len returns the number of live tracks.
func (s *TrackSet) Len() int {
	return len(s.tracks)
}

// NextID returns the id the next created track will receive.
func (s *TrackSet) NextID() int {
	return s.nextID
}

// Each calls fn for every live track in creation order.
func (s *TrackSet) Each(fn func(*PassengerTrack)) {
	for _, t := range s.tracks {
		fn(t)
	}
}

// Copy returns deep copies of all live tracks in creation order.
func (s *TrackSet) Copy() []PassengerTrack {
	out := make([]PassengerTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.clone())
	}
	return out
}

func (s *TrackSet) create(p Point) *PassengerTrack {
	t := newPassengerTrack(s.nextID, p)
	s.nextID++
	s.tracks = append(s.tracks, t)
	return t
}

// firstNear returns the earliest-created track whose current centroid
// is within the window, or nil.
func (s *TrackSet) firstNear(p Point, xNear, yNear float64) *PassengerTrack {
	for _, t := range s.tracks {
		if t.near(p, xNear, yNear) {
			return t
		}
	}
	return nil
}

// removeIf drops every track for which drop returns true, preserving
// the order of the rest, and returns the removed ids.
func (s *TrackSet) removeIf(drop func(*PassengerTrack) bool) []int {
	var removed []int
	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if drop(t) {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.tracks); i++ {
		s.tracks[i] = nil
	}
	s.tracks = kept
	return removed
}
