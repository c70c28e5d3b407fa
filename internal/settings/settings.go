// Package settings holds the live reading settings shared by the word
// source and the playback scheduler.
package settings

import (
	"math"
	"sync/atomic"

	"github.com/dgnsrekt/rsvp/internal/prosody"
)

const (
	// MinWPM is the slowest supported reading rate.
	MinWPM = 100
	// MaxWPM is the fastest supported reading rate.
	MaxWPM = 1000
	// WPMStep is the increment used by Faster and Slower.
	WPMStep = 25

	// KeyWPM is the stored setting holding the last chosen rate.
	KeyWPM = "wpm"
)

// Settings is safe for concurrent use. Readers take the accessor methods
// as plain funcs so nothing downstream depends on this type.
type Settings struct {
	wpm         atomic.Int64
	sensitivity atomic.Uint64
}

// New returns settings with wpm clamped and sensitivity limited to [0,1].
func New(wpm int, sensitivity float64) *Settings {
	s := &Settings{}
	s.SetWPM(wpm)
	s.SetSensitivity(sensitivity)
	return s
}

// ClampWPM limits wpm to [MinWPM, MaxWPM].
func ClampWPM(wpm int) int {
	return min(max(wpm, MinWPM), MaxWPM)
}

// WPM returns the current reading rate.
func (s *Settings) WPM() int {
	return int(s.wpm.Load())
}

// SetWPM stores a clamped rate and returns it.
func (s *Settings) SetWPM(wpm int) int {
	wpm = ClampWPM(wpm)
	s.wpm.Store(int64(wpm))
	return wpm
}

// Faster raises the rate by one step.
func (s *Settings) Faster() int {
	return s.SetWPM(s.WPM() + WPMStep)
}

// Slower lowers the rate by one step.
func (s *Settings) Slower() int {
	return s.SetWPM(s.WPM() - WPMStep)
}

// Sensitivity returns the punctuation sensitivity.
func (s *Settings) Sensitivity() float64 {
	return math.Float64frombits(s.sensitivity.Load())
}

// SetSensitivity stores sensitivity limited to [0,1].
func (s *Settings) SetSensitivity(v float64) float64 {
	if math.IsNaN(v) {
		v = prosody.DefaultSensitivity
	}
	v = min(max(v, 0), 1)
	s.sensitivity.Store(math.Float64bits(v))
	return v
}

// Options snapshots the settings as analysis options.
func (s *Settings) Options() prosody.Options {
	return prosody.Options{WPM: s.WPM(), Sensitivity: s.Sensitivity()}
}
