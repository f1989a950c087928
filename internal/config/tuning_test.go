package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	floats := map[string][2]float64{
		"min_area":                  {cfg.GetMinArea(), 500},
		"x_near":                    {cfg.GetXNear(), 40},
		"y_near":                    {cfg.GetYNear(), 90},
		"max_passenger_age_seconds": {cfg.GetMaxPassengerAgeSeconds(), 2},
		"one_person_max_area":       {cfg.GetOnePersonMaxArea(), 18000},
		"two_person_max_area":       {cfg.GetTwoPersonMaxArea(), 32000},
		"mog2_var_threshold":        {cfg.GetMOG2VarThreshold(), 16},
	}
	for name, v := range floats {
		if v[0] != v[1] {
			t.Errorf("%s = %v, want %v", name, v[0], v[1])
		}
	}
	ints := map[string][2]int{
		"white_threshold": {cfg.GetWhiteThreshold(), 160},
		"erode_amount":    {cfg.GetErodeAmount(), 1},
		"dilate_amount":   {cfg.GetDilateAmount(), 10},
		"blur_ksize":      {cfg.GetBlurKSize(), 5},
		"mog2_history":    {cfg.GetMOG2History(), 1000},
	}
	for name, v := range ints {
		if v[0] != v[1] {
			t.Errorf("%s = %d, want %d", name, v[0], v[1])
		}
	}
	if math.Abs(cfg.GetLearningRate()-0.0005) > 1e-12 {
		t.Errorf("GetLearningRate() = %v, want 0.0005", cfg.GetLearningRate())
	}
	if !cfg.GetMOG2DetectShadows() {
		t.Error("GetMOG2DetectShadows() = false, want true")
	}
	if got := cfg.GetFramerateWindow(); got != 500*time.Millisecond {
		t.Errorf("GetFramerateWindow() = %v, want 500ms", got)
	}
}

func TestDefaultsFileMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	// The defaults file and the in-code fallbacks must agree.
	pairs := map[string][2]interface{}{
		"min_area":                  {cfg.GetMinArea(), empty.GetMinArea()},
		"x_near":                    {cfg.GetXNear(), empty.GetXNear()},
		"y_near":                    {cfg.GetYNear(), empty.GetYNear()},
		"max_passenger_age_seconds": {cfg.GetMaxPassengerAgeSeconds(), empty.GetMaxPassengerAgeSeconds()},
		"one_person_max_area":       {cfg.GetOnePersonMaxArea(), empty.GetOnePersonMaxArea()},
		"two_person_max_area":       {cfg.GetTwoPersonMaxArea(), empty.GetTwoPersonMaxArea()},
		"learning_rate":             {cfg.GetLearningRate(), empty.GetLearningRate()},
		"white_threshold":           {cfg.GetWhiteThreshold(), empty.GetWhiteThreshold()},
		"erode_amount":              {cfg.GetErodeAmount(), empty.GetErodeAmount()},
		"dilate_amount":             {cfg.GetDilateAmount(), empty.GetDilateAmount()},
		"blur_ksize":                {cfg.GetBlurKSize(), empty.GetBlurKSize()},
		"mog2_history":              {cfg.GetMOG2History(), empty.GetMOG2History()},
		"mog2_var_threshold":        {cfg.GetMOG2VarThreshold(), empty.GetMOG2VarThreshold()},
		"mog2_detect_shadows":       {cfg.GetMOG2DetectShadows(), empty.GetMOG2DetectShadows()},
		"framerate_window":          {cfg.GetFramerateWindow(), empty.GetFramerateWindow()},
	}
	for name, p := range pairs {
		if p[0] != p[1] {
			t.Errorf("%s: defaults file %v, getter fallback %v", name, p[0], p[1])
		}
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "min_area": 750,
  "x_near": 25,
  "max_passenger_age_seconds": 3.5,
  "mog2_detect_shadows": false,
  "framerate_window": "1s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetMinArea() != 750 {
		t.Errorf("GetMinArea() = %v, want 750", cfg.GetMinArea())
	}
	if cfg.GetXNear() != 25 {
		t.Errorf("GetXNear() = %v, want 25", cfg.GetXNear())
	}
	if cfg.GetMaxPassengerAgeSeconds() != 3.5 {
		t.Errorf("GetMaxPassengerAgeSeconds() = %v, want 3.5", cfg.GetMaxPassengerAgeSeconds())
	}
	if cfg.GetMOG2DetectShadows() {
		t.Error("GetMOG2DetectShadows() = true, want false")
	}
	if cfg.GetFramerateWindow() != time.Second {
		t.Errorf("GetFramerateWindow() = %v, want 1s", cfg.GetFramerateWindow())
	}

	// Omitted fields keep their defaults.
	if cfg.YNear != nil || cfg.GetYNear() != 90 {
		t.Errorf("YNear = %v (getter %v), want unset and 90", cfg.YNear, cfg.GetYNear())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, data string) string {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("config.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"invalid value", write("invalid.json", `{"x_near": -1}`), "x_near must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadTuningConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr string
	}{
		{name: "empty", cfg: TuningConfig{}},
		{name: "negative min area", cfg: TuningConfig{MinArea: f(-5)}, wantErr: "min_area"},
		{name: "bands inverted", cfg: TuningConfig{OnePersonMaxArea: f(40000)}, wantErr: "must not exceed"},
		{name: "bands equal", cfg: TuningConfig{OnePersonMaxArea: f(100), TwoPersonMaxArea: f(100)}},
		{name: "learning rate too high", cfg: TuningConfig{LearningRate: i(10001)}, wantErr: "learning_rate"},
		{name: "white threshold too high", cfg: TuningConfig{WhiteThreshold: i(256)}, wantErr: "white_threshold"},
		{name: "zero blur", cfg: TuningConfig{BlurKSize: i(0)}, wantErr: "blur_ksize"},
		{name: "bad window", cfg: TuningConfig{FramerateWindow: s("soon")}, wantErr: "framerate_window"},
		{name: "negative window", cfg: TuningConfig{FramerateWindow: s("-1s")}, wantErr: "must be positive"},
		{name: "zero age is allowed", cfg: TuningConfig{MaxPassengerAgeSeconds: f(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	v := 10.0
	cfg := &TuningConfig{XNear: &v}
	cp := cfg.Clone()
	*cp.XNear = 99

	if cfg.GetXNear() != 10 || cp.GetXNear() != 99 {
		t.Errorf("original %v clone %v, want 10 and 99", cfg.GetXNear(), cp.GetXNear())
	}
}
