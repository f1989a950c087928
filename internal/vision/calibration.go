package vision

import (
	"math"

	"github.com/banshee-data/passenger.counter/internal/config"
)

// Trackbar is one calibration slider. Get reads the slider position
// from a config and Set writes a position back.
type Trackbar struct {
	Name string
	Max  int
	Get  func(*config.TuningConfig) int
	Set  func(*config.TuningConfig, int)
}

// CalibrationTrackbars returns the sliders shown on the colour window.
// The association windows are bounded by the frame size.
func CalibrationTrackbars(width, height int) []Trackbar {
	return []Trackbar{
		{
			Name: "Learning rate [1/10000]",
			Max:  1000,
			Get:  func(c *config.TuningConfig) int { return int(math.Round(c.GetLearningRate() * 10000)) },
			Set:  func(c *config.TuningConfig, v int) { c.LearningRate = &v },
		},
		{
			Name: "White threshold",
			Max:  255,
			Get:  func(c *config.TuningConfig) int { return c.GetWhiteThreshold() },
			Set:  func(c *config.TuningConfig, v int) { c.WhiteThreshold = &v },
		},
		{
			Name: "Blur [matrix size]",
			Max:  100,
			Get:  func(c *config.TuningConfig) int { return c.GetBlurKSize() },
			Set: func(c *config.TuningConfig, v int) {
				v = max(v, 1)
				c.BlurKSize = &v
			},
		},
		{
			Name: "xNear [pixels]",
			Max:  max(width, 1),
			Get:  func(c *config.TuningConfig) int { return int(c.GetXNear()) },
			Set:  func(c *config.TuningConfig, v int) { c.XNear = floatPtr(v) },
		},
		{
			Name: "yNear [pixels]",
			Max:  max(height, 1),
			Get:  func(c *config.TuningConfig) int { return int(c.GetYNear()) },
			Set:  func(c *config.TuningConfig, v int) { c.YNear = floatPtr(v) },
		},
		{
			Name: "Area min [pixels^2]",
			Max:  100000,
			Get:  func(c *config.TuningConfig) int { return int(c.GetMinArea()) },
			Set:  func(c *config.TuningConfig, v int) { c.MinArea = floatPtr(v) },
		},
		{
			Name: "Passenger age [seconds]",
			Max:  30,
			Get:  func(c *config.TuningConfig) int { return int(c.GetMaxPassengerAgeSeconds()) },
			Set:  func(c *config.TuningConfig, v int) { c.MaxPassengerAgeSeconds = floatPtr(v) },
		},
	}
}

func floatPtr(v int) *float64 {
	f := float64(v)
	return &f
}

// ApplyTrackbars writes slider positions into live as one update. Only
// sliders whose position differs from the current value are written.
// It reports whether anything changed.
func ApplyTrackbars(live *config.Live, bars []Trackbar, positions []int) (bool, error) {
	cur := live.Get()
	var changed []int
	for i, bar := range bars {
		if i < len(positions) && positions[i] != bar.Get(cur) {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return false, nil
	}
	err := live.Update(func(c *config.TuningConfig) {
		for _, i := range changed {
			bars[i].Set(c, positions[i])
		}
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
