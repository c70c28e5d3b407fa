package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument is returned by Load for a source without words.
	ErrEmptyDocument = errors.New("document has no words")

	// ErrNoDocument is returned when an operation needs a loaded document.
	ErrNoDocument = errors.New("no document loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Phase is the playback state.
type Phase int

const (
	// Stopped is the state after loading, at the first word.
	Stopped Phase = iota
	// Playing advances through words on each due tick.
	Playing
	// Paused holds the current word. A stalled scheduler is also Paused.
	Paused
	// Scrubbing moves through words at a multiple of the reading rate.
	Scrubbing
	// Completed is reached after the last word's dwell.
	Completed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Scrubbing:
		return "scrubbing"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
