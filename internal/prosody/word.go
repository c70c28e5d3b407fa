package prosody

import (
	"fmt"
	"time"
)

// Emphasis is the stress level attached to a word. Levels are ordered so
// that they can be compared with < and >.
type Emphasis int

const (
	EmphasisNone Emphasis = iota
	EmphasisLow
	EmphasisMedium
	EmphasisHigh
)

var emphasisNames = [...]string{"none", "low", "medium", "high"}

// String returns the wire name of the emphasis level.
func (e Emphasis) String() string {
	if e < EmphasisNone || e > EmphasisHigh {
		return fmt.Sprintf("Emphasis(%d)", int(e))
	}
	return emphasisNames[e]
}

// MarshalText implements encoding.TextMarshaler.
func (e Emphasis) MarshalText() ([]byte, error) {
	if e < EmphasisNone || e > EmphasisHigh {
		return nil, fmt.Errorf("%w: emphasis %d", ErrInvalidWord, int(e))
	}
	return []byte(emphasisNames[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Emphasis) UnmarshalText(b []byte) error {
	for i, name := range emphasisNames {
		if string(b) == name {
			*e = Emphasis(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown emphasis %q", ErrInvalidWord, b)
}

// Tone is the intonation contour hinted by a word's punctuation.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneRising
	ToneFalling
)

var toneNames = [...]string{"neutral", "rising", "falling"}

// String returns the wire name of the tone.
func (t Tone) String() string {
	if t < ToneNeutral || t > ToneFalling {
		return fmt.Sprintf("Tone(%d)", int(t))
	}
	return toneNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tone) MarshalText() ([]byte, error) {
	if t < ToneNeutral || t > ToneFalling {
		return nil, fmt.Errorf("%w: tone %d", ErrInvalidWord, int(t))
	}
	return []byte(toneNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tone) UnmarshalText(b []byte) error {
	for i, name := range toneNames {
		if string(b) == name {
			*t = Tone(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown tone %q", ErrInvalidWord, b)
}

// Info holds the pacing hints for a single word.
type Info struct {
	// Pause multiplies the base delay; 1.0 means no extra dwell.
	Pause float64 `json:"pause"`
	// PauseAfter is extra dwell in milliseconds added after the word.
	PauseAfter float64 `json:"pauseAfter"`
	Emphasis   Emphasis `json:"emphasis"`
	Tone       Tone     `json:"tone"`

	// Pitch and Loudness are passed through from external providers.
	Pitch    *float64 `json:"pitch,omitempty"`
	Loudness *float64 `json:"loudness,omitempty"`
}

// DefaultInfo returns the neutral prosody used when nothing applies.
func DefaultInfo() Info {
	return Info{Pause: 1.0}
}

// Word is a single displayable RSVP unit.
type Word struct {
	Text       string  `json:"text"`
	PivotIndex int     `json:"pivotIndex"`
	BaseDelay  float64 `json:"baseDelay"` // milliseconds
	Prosody    *Info   `json:"prosody,omitempty"`
}

// DisplayMillis returns how long the word stays on screen, in milliseconds:
// baseDelay*pause + pauseAfter.
func (w Word) DisplayMillis() float64 {
	if w.Prosody == nil {
		return w.BaseDelay
	}
	return w.BaseDelay*w.Prosody.Pause + w.Prosody.PauseAfter
}

// Duration is DisplayMillis as a time.Duration.
func (w Word) Duration() time.Duration {
	return Millis(w.DisplayMillis())
}

// Millis converts fractional milliseconds to a time.Duration.
func Millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// info returns the word's prosody, or the neutral default when absent.
func (w Word) info() Info {
	if w.Prosody == nil {
		return DefaultInfo()
	}
	return *w.Prosody
}
