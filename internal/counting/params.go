package counting

import "github.com/banshee-data/passenger.counter/internal/config"

// Params are the calibration values the engine reads for one frame.
// They are passed by value on every call so live edits take effect on
// the next frame without any cached state in the engine.
type Params struct {
	MinArea                float64 // detections with area <= MinArea are ignored (pixels²)
	XNear                  float64 // horizontal association window (pixels)
	YNear                  float64 // vertical association window (pixels)
	MaxPassengerAgeSeconds float64 // track lifetime, converted to frames with the current fps
	OnePersonMaxArea       float64 // areas above this (and below TwoPersonMaxArea) count as two people
	TwoPersonMaxArea       float64 // areas above this count as three people
}

// DefaultParams returns the built-in calibration defaults.
func DefaultParams() Params {
	return ParamsFromTuning(config.EmptyTuningConfig())
}

// ParamsFromTuning builds Params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		MinArea:                cfg.GetMinArea(),
		XNear:                  cfg.GetXNear(),
		YNear:                  cfg.GetYNear(),
		MaxPassengerAgeSeconds: cfg.GetMaxPassengerAgeSeconds(),
		OnePersonMaxArea:       cfg.GetOnePersonMaxArea(),
		TwoPersonMaxArea:       cfg.GetTwoPersonMaxArea(),
	}
}

// MaxAgeFrames converts the age limit to frames at the given framerate.
func (p Params) MaxAgeFrames(fps float64) float64 {
	return p.MaxPassengerAgeSeconds * fps
}
