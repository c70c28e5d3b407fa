package source

import (
	"context"

	"github.com/dgnsrekt/rsvp/internal/prosody"
)

// Static serves words produced ahead of time by any prosody provider. All
// words are resident, so Ensure only checks bounds.
type Static struct {
	words []prosody.Word
	label string

	// analyzedWPM is the rate the words were timed at; when set, delays
	// are rescaled to the live rate.
	analyzedWPM int
	wpm         func() int
}

// NewStatic returns a Static over a provider result. words must be non-empty.
func NewStatic(res *prosody.Result, label string, wpm func() int) (*Static, error) {
	if res == nil || len(res.Words) == 0 {
		return nil, ErrEmptyDocument
	}
	return &Static{
		words:       res.Words,
		label:       label,
		analyzedWPM: res.WPM,
		wpm:         wpm,
	}, nil
}

// Total returns the number of words.
func (s *Static) Total() int {
	return len(s.words)
}

// Segments returns a single segment spanning every word.
func (s *Static) Segments() []SegmentMeta {
	return []SegmentMeta{{ID: "all", Label: s.label, WordCount: len(s.words)}}
}

// SegmentForIndex returns the single segment when i is in range.
func (s *Static) SegmentForIndex(i int) (int, SegmentMeta, bool) {
	if i < 0 || i >= len(s.words) {
		return 0, SegmentMeta{}, false
	}
	return 0, s.Segments()[0], true
}

// Get returns the word at i, rescaled to the live rate.
func (s *Static) Get(i int) (prosody.Word, bool) {
	if i < 0 || i >= len(s.words) {
		return prosody.Word{}, false
	}
	w := s.words[i]
	if s.analyzedWPM <= 0 || s.wpm == nil {
		return w, true
	}
	scale := float64(s.analyzedWPM) / float64(s.wpm())
	w.BaseDelay *= scale
	if w.Prosody != nil {
		info := *w.Prosody
		info.PauseAfter *= scale
		w.Prosody = &info
	}
	return w, true
}

// Ensure reports ErrOutOfRange for indexes outside the document.
func (s *Static) Ensure(_ context.Context, i int) error {
	if i < 0 || i >= len(s.words) {
		return ErrOutOfRange
	}
	return nil
}

// Prefetch is a no-op.
func (s *Static) Prefetch(int) {}

// SetActive is a no-op.
func (s *Static) SetActive(int) {}

// Close is a no-op.
func (s *Static) Close() error { return nil }
