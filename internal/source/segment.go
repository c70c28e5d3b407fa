package source

import (
	"context"
	"fmt"
	"sort"
)

// SegmentMeta describes one lazily loaded unit of a document.
type SegmentMeta struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	StartWord int    `json:"startWord"`
	WordCount int    `json:"wordCount"`
}

// End returns the index one past the segment's last word.
func (m SegmentMeta) End() int {
	return m.StartWord + m.WordCount
}

// Contains reports whether word index i falls in the segment.
func (m SegmentMeta) Contains(i int) bool {
	return i >= m.StartWord && i < m.End()
}

// Provider fetches the raw text of a segment.
type Provider interface {
	LoadSegment(ctx context.Context, meta SegmentMeta) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, meta SegmentMeta) (string, error)

// LoadSegment implements Provider.
func (f ProviderFunc) LoadSegment(ctx context.Context, meta SegmentMeta) (string, error) {
	return f(ctx, meta)
}

// ValidateSegments checks that segments start at word 0 and are contiguous
// with no gaps or overlaps, and returns the total word count.
func ValidateSegments(segments []SegmentMeta) (int, error) {
	next := 0
	for i, seg := range segments {
		if seg.WordCount < 0 {
			return 0, fmt.Errorf("%w: segment %d has negative word count", ErrInvalidSegments, i)
		}
		if seg.StartWord != next {
			return 0, fmt.Errorf("%w: segment %d starts at %d, want %d", ErrInvalidSegments, i, seg.StartWord, next)
		}
		next = seg.End()
	}
	if next == 0 {
		return 0, ErrEmptyDocument
	}
	return next, nil
}

// findSegment returns the ordinal of the segment holding word i.
func findSegment(segments []SegmentMeta, total, i int) (int, bool) {
	if i < 0 || i >= total {
		return 0, false
	}
	n := sort.Search(len(segments), func(k int) bool {
		return segments[k].End() > i
	})
	if n == len(segments) || !segments[n].Contains(i) {
		return 0, false
	}
	return n, true
}
