package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for calibration
// parameters. The schema matches the /api/params endpoint so the same
// JSON can be used for both startup configuration and live updates.
type TuningConfig struct {
	// Tracking params
	MinArea                *float64 `json:"min_area,omitempty"`
	XNear                  *float64 `json:"x_near,omitempty"`
	YNear                  *float64 `json:"y_near,omitempty"`
	MaxPassengerAgeSeconds *float64 `json:"max_passenger_age_seconds,omitempty"`

	// Occupancy bands (pixels²)
	OnePersonMaxArea *float64 `json:"one_person_max_area,omitempty"`
	TwoPersonMaxArea *float64 `json:"two_person_max_area,omitempty"`

	// Blob detector params
	LearningRate      *int     `json:"learning_rate,omitempty"` // in 1/10000 units; when set, overrides mog2_history
	WhiteThreshold    *int     `json:"white_threshold,omitempty"`
	ErodeAmount       *int     `json:"erode_amount,omitempty"`
	DilateAmount      *int     `json:"dilate_amount,omitempty"`
	BlurKSize         *int     `json:"blur_ksize,omitempty"`
	MOG2History       *int     `json:"mog2_history,omitempty"`
	MOG2VarThreshold  *float64 `json:"mog2_var_threshold,omitempty"`
	MOG2DetectShadows *bool    `json:"mog2_detect_shadows,omitempty"`

	// Capture params
	FramerateWindow *string `json:"framerate_window,omitempty"` // duration string like "500ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Clone returns a deep copy of the configuration.
func (c *TuningConfig) Clone() *TuningConfig {
	data, err := json.Marshal(c)
	if err != nil {
		// Every field is a plain scalar pointer; Marshal cannot fail.
		panic(fmt.Sprintf("config: marshal tuning config: %v", err))
	}
	out := EmptyTuningConfig()
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("config: unmarshal tuning config: %v", err))
	}
	return out
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := map[string]*float64{
		"min_area":                  c.MinArea,
		"x_near":                    c.XNear,
		"y_near":                    c.YNear,
		"max_passenger_age_seconds": c.MaxPassengerAgeSeconds,
		"one_person_max_area":       c.OnePersonMaxArea,
		"two_person_max_area":       c.TwoPersonMaxArea,
		"mog2_var_threshold":        c.MOG2VarThreshold,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if c.GetOnePersonMaxArea() > c.GetTwoPersonMaxArea() {
		return fmt.Errorf("one_person_max_area (%f) must not exceed two_person_max_area (%f)",
			c.GetOnePersonMaxArea(), c.GetTwoPersonMaxArea())
	}

	if c.LearningRate != nil && (*c.LearningRate < 0 || *c.LearningRate > 10000) {
		return fmt.Errorf("learning_rate must be between 0 and 10000, got %d", *c.LearningRate)
	}
	if c.WhiteThreshold != nil && (*c.WhiteThreshold < 0 || *c.WhiteThreshold > 255) {
		return fmt.Errorf("white_threshold must be between 0 and 255, got %d", *c.WhiteThreshold)
	}

	kernels := map[string]*int{
		"erode_amount":  c.ErodeAmount,
		"dilate_amount": c.DilateAmount,
		"blur_ksize":    c.BlurKSize,
		"mog2_history":  c.MOG2History,
	}
	for name, v := range kernels {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if c.FramerateWindow != nil && *c.FramerateWindow != "" {
		d, err := time.ParseDuration(*c.FramerateWindow)
		if err != nil {
			return fmt.Errorf("invalid framerate_window '%s': %w", *c.FramerateWindow, err)
		}
		if d <= 0 {
			return fmt.Errorf("framerate_window must be positive, got %s", d)
		}
	}

	return nil
}

// GetMinArea returns the min_area value or the default.
func (c *TuningConfig) GetMinArea() float64 {
	if c.MinArea == nil {
		return 500
	}
	return *c.MinArea
}

// GetXNear returns the x_near value or the default.
func (c *TuningConfig) GetXNear() float64 {
	if c.XNear == nil {
		return 40
	}
	return *c.XNear
}

// GetYNear returns the y_near value or the default.
func (c *TuningConfig) GetYNear() float64 {
	if c.YNear == nil {
		return 90
	}
	return *c.YNear
}

// GetMaxPassengerAgeSeconds returns the max_passenger_age_seconds value or the default.
func (c *TuningConfig) GetMaxPassengerAgeSeconds() float64 {
	if c.MaxPassengerAgeSeconds == nil {
		return 2
	}
	return *c.MaxPassengerAgeSeconds
}

// GetOnePersonMaxArea returns the one_person_max_area value or the default.
func (c *TuningConfig) GetOnePersonMaxArea() float64 {
	if c.OnePersonMaxArea == nil {
		return 18000
	}
	return *c.OnePersonMaxArea
}

// GetTwoPersonMaxArea returns the two_person_max_area value or the default.
func (c *TuningConfig) GetTwoPersonMaxArea() float64 {
	if c.TwoPersonMaxArea == nil {
		return 32000
	}
	return *c.TwoPersonMaxArea
}

// GetLearningRate returns the background learning rate as a fraction.
// The stored value is in 1/10000 units so it can drive an integer slider.
func (c *TuningConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 5 / 10000.0
	}
	return float64(*c.LearningRate) / 10000.0
}

// GetWhiteThreshold returns the white_threshold value or the default.
func (c *TuningConfig) GetWhiteThreshold() int {
	if c.WhiteThreshold == nil {
		return 160
	}
	return *c.WhiteThreshold
}

// GetErodeAmount returns the erode_amount value or the default.
func (c *TuningConfig) GetErodeAmount() int {
	if c.ErodeAmount == nil {
		return 1
	}
	return *c.ErodeAmount
}

// GetDilateAmount returns the dilate_amount value or the default.
func (c *TuningConfig) GetDilateAmount() int {
	if c.DilateAmount == nil {
		return 10
	}
	return *c.DilateAmount
}

// GetBlurKSize returns the blur_ksize value or the default.
func (c *TuningConfig) GetBlurKSize() int {
	if c.BlurKSize == nil {
		return 5
	}
	return *c.BlurKSize
}

// GetMOG2History returns the mog2_history value or the default.
func (c *TuningConfig) GetMOG2History() int {
	if c.MOG2History == nil {
		return 1000
	}
	return *c.MOG2History
}

// GetMOG2VarThreshold returns the mog2_var_threshold value or the default.
func (c *TuningConfig) GetMOG2VarThreshold() float64 {
	if c.MOG2VarThreshold == nil {
		return 16
	}
	return *c.MOG2VarThreshold
}

// GetMOG2DetectShadows returns the mog2_detect_shadows value or the default.
func (c *TuningConfig) GetMOG2DetectShadows() bool {
	if c.MOG2DetectShadows == nil {
		return true
	}
	return *c.MOG2DetectShadows
}

// GetFramerateWindow parses and returns the FramerateWindow as a time.Duration.
func (c *TuningConfig) GetFramerateWindow() time.Duration {
	if c.FramerateWindow == nil || *c.FramerateWindow == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.FramerateWindow)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}
