package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/security"
)

var (
	Green = color.RGBA{G: 255, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DefaultRecordingFPS is used for recordings when neither the capture
// device nor the meter reports a framerate.
const DefaultRecordingFPS = 15

// Displays selects the preview windows to open.
type Displays struct {
	Color   bool
	Backsub bool
	Denoise bool
}

// Any reports whether at least one window is enabled.
func (d Displays) Any() bool {
	return d.Color || d.Backsub || d.Denoise
}

// ParseDisplays parses a comma separated list such as "color,denoise".
// An empty string disables every window.
func ParseDisplays(s string) (Displays, error) {
	var d Displays
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "color", "colour":
			d.Color = true
		case "backsub":
			d.Backsub = true
		case "denoise":
			d.Denoise = true
		default:
			return Displays{}, fmt.Errorf("unknown display %q (want color, backsub or denoise)", part)
		}
	}
	return d, nil
}

// WindowName names a preview window for one stream.
func WindowName(kind, stream string) string {
	return kind + " " + stream
}

// VideoFileName is where the annotated stream is recorded.
func VideoFileName(dir, stream string) (string, error) {
	return security.JoinWithin(dir, stream, "-color.avi")
}

// PidLabel is drawn next to the current point of a track.
func PidLabel(id int) string {
	return "Pid: " + strconv.Itoa(id)
}

// FPSLabel renders the framerate estimate.
func FPSLabel(fps float64) string {
	return fmt.Sprintf("FPS: %.1f", fps)
}

// CountLabels returns the IN and OUT counter lines.
func CountLabels(c counting.Counters) (in, out string) {
	return "Count IN: " + strconv.Itoa(c.In), "Count OUT: " + strconv.Itoa(c.Out)
}

// IndicatorColor is the fill of the crossing indicator: red for a
// downward crossing, green for upward.
func IndicatorColor(dir counting.Direction) color.RGBA {
	if dir == counting.DirectionOut {
		return Red
	}
	return Green
}

// TrajectoryPoints converts a track's trajectory for drawing. Tracks
// with a single point are not drawn and yield nil.
func TrajectoryPoints(t counting.PassengerTrack) []image.Point {
	if len(t.Trajectory) < 2 {
		return nil
	}
	pts := make([]image.Point, len(t.Trajectory))
	for i, p := range t.Trajectory {
		pts[i] = image.Pt(int(p.X), int(p.Y))
	}
	return pts
}

// DetectionFromBounds builds a detection from a contour's bounding box
// and area. The centroid is the integer centre of the box.
func DetectionFromBounds(r image.Rectangle, area float64) counting.Detection {
	box := counting.Rect{
		MinX: float64(r.Min.X),
		MinY: float64(r.Min.Y),
		MaxX: float64(r.Max.X),
		MaxY: float64(r.Max.Y),
	}
	return counting.Detection{Centroid: box.Center(), Area: area, Box: box}
}

// BoxRect converts a detection box back to image coordinates.
func BoxRect(b counting.Rect) image.Rectangle {
	return image.Rect(int(b.MinX), int(b.MinY), int(b.MaxX), int(b.MaxY))
}

// maxHistory bounds the MOG2 history derived from a learning rate.
const maxHistory = 100000

// HistoryForLearningRate converts a background learning rate into the
// MOG2 history length that yields it (the subtractor learns at
// 1/history once warmed up). A zero rate freezes the model as far as
// the bound allows.
func HistoryForLearningRate(rate float64) int {
	if rate <= 0 || math.IsNaN(rate) {
		return maxHistory
	}
	h := int(math.Round(1 / rate))
	if h < 1 {
		return 1
	}
	if h > maxHistory {
		return maxHistory
	}
	return h
}
