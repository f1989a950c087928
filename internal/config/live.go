package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Live holds the calibration values that may be edited while streams
// are running (HTTP params endpoint, calibration sliders). Readers take
// a copy once per frame; writers validate a candidate before swapping
// it in, so a rejected edit never becomes visible.
type Live struct {
	mu      sync.RWMutex
	cfg     *TuningConfig
	version uint64
}

// NewLive wraps cfg. A nil cfg is treated as an empty config.
func NewLive(cfg *TuningConfig) *Live {
	if cfg == nil {
		cfg = EmptyTuningConfig()
	}
	return &Live{cfg: cfg.Clone()}
}

// Get returns a copy of the current configuration.
func (l *Live) Get() *TuningConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Clone()
}

// Version increases by one on every accepted update.
func (l *Live) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Update applies fn to a copy of the configuration and installs the
// result if it validates.
func (l *Live) Update(fn func(*TuningConfig)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.cfg.Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return err
	}
	l.cfg = next
	l.version++
	return nil
}

// ApplyJSON merges a partial JSON document (same schema as the tuning
// file) over the current configuration. Unknown keys are rejected.
func (l *Live) ApplyJSON(patch []byte) error {
	return l.installJSON(patch, true)
}

// ReplaceJSON installs a complete JSON document as the configuration.
// Keys it omits revert to their defaults.
func (l *Live) ReplaceJSON(doc []byte) error {
	return l.installJSON(doc, false)
}

func (l *Live) installJSON(doc []byte, merge bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := EmptyTuningConfig()
	if merge {
		next = l.cfg.Clone()
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		return fmt.Errorf("failed to parse params JSON: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	l.cfg = next
	l.version++
	return nil
}
