// Package source provides random access to the words of a large document
// that is loaded one segment at a time and kept in a small LRU cache.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/cache"
	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is the number of segments kept in memory by default.
const DefaultCapacity = 3

// State is the load state of a segment.
type State int

const (
	NotLoaded State = iota
	Loading
	Loaded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not-loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// cachedSegment is the tokenized text of one segment. Words are kept raw
// and materialized on every Get so rate changes apply immediately.
type cachedSegment struct {
	meta     SegmentMeta
	words    []prosody.RawWord
	loadedAt time.Time
}

// Source serves Words by global index. Get never blocks; Ensure loads the
// owning segment. Concurrent Ensure calls for a segment share one fetch.
type Source struct {
	segments []SegmentMeta
	total    int
	provider Provider

	wpm         func() int
	sensitivity func() float64

	cache *cache.LRU[int, *cachedSegment]
	group singleflight.Group

	mu      sync.Mutex
	loading map[int]struct{}
	active  int // pinned segment ordinal, -1 when none

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Source.
type Option func(*Source)

// WithCapacity sets how many segments stay in memory.
func WithCapacity(n int) Option {
	return func(s *Source) {
		s.cache = cache.NewLRU[int, *cachedSegment](n)
	}
}

// WithWPM sets the live reading rate accessor.
func WithWPM(wpm func() int) Option {
	return func(s *Source) {
		s.wpm = wpm
	}
}

// WithSensitivity sets the live punctuation sensitivity accessor.
func WithSensitivity(sensitivity func() float64) Option {
	return func(s *Source) {
		s.sensitivity = sensitivity
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// WithMetrics records cache and load metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

// New returns a Source over segments. The segment table must be contiguous
// from word 0 and hold at least one word.
func New(segments []SegmentMeta, provider Provider, opts ...Option) (*Source, error) {
	total, err := ValidateSegments(segments)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		segments:    append([]SegmentMeta(nil), segments...),
		total:       total,
		provider:    provider,
		wpm:         func() int { return prosody.DefaultWPM },
		sensitivity: func() float64 { return prosody.DefaultSensitivity },
		cache:       cache.NewLRU[int, *cachedSegment](DefaultCapacity),
		loading:     make(map[int]struct{}),
		active:      -1,
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Total returns the number of words in the document.
func (s *Source) Total() int {
	return s.total
}

// Segments returns a copy of the segment table.
func (s *Source) Segments() []SegmentMeta {
	return append([]SegmentMeta(nil), s.segments...)
}

// SegmentForIndex returns the ordinal and metadata of the segment holding
// word i, or false when i is outside [0, Total).
func (s *Source) SegmentForIndex(i int) (int, SegmentMeta, bool) {
	n, ok := findSegment(s.segments, s.total, i)
	if !ok {
		return 0, SegmentMeta{}, false
	}
	return n, s.segments[n], true
}

// Get returns the Word at i if its segment is loaded. It never fetches.
// Readers call it every frame, so it refreshes recency but only Ensure
// counts toward cache hits and misses.
func (s *Source) Get(i int) (prosody.Word, bool) {
	n, ok := findSegment(s.segments, s.total, i)
	if !ok {
		return prosody.Word{}, false
	}
	seg, ok := s.cache.Touch(n)
	if !ok {
		return prosody.Word{}, false
	}
	raw := seg.words[i-seg.meta.StartWord]
	return prosody.Materialize(raw, prosody.Options{
		WPM:         s.wpm(),
		Sensitivity: s.sensitivity(),
	}), true
}

// Ensure loads the segment holding word i. It returns immediately when the
// segment is cached. A canceled ctx abandons the wait but not a load other
// callers share.
func (s *Source) Ensure(ctx context.Context, i int) error {
	if s.closed.Load() {
		return ErrSourceClosed
	}
	n, ok := findSegment(s.segments, s.total, i)
	if !ok {
		return ErrOutOfRange
	}
	if _, ok := s.cache.Get(n); ok {
		s.metrics.CacheLookup(true)
		return nil
	}
	s.metrics.CacheLookup(false)

	ch := s.group.DoChan(strconv.Itoa(n), func() (any, error) {
		return nil, s.load(n)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prefetch starts loading the segment holding word i in the background.
// Errors are logged and otherwise dropped.
func (s *Source) Prefetch(i int) {
	n, ok := findSegment(s.segments, s.total, i)
	if !ok || s.closed.Load() || s.cache.Contains(n) {
		return
	}
	go func() {
		if err := s.Ensure(s.ctx, i); err != nil && !errors.Is(err, ErrSourceClosed) && !errors.Is(err, context.Canceled) {
			s.logger.Debug("prefetch failed", "index", i, "segment", s.segments[n].ID, "err", err)
		}
	}()
}

// SetActive pins the segment holding word i so eviction cannot drop it,
// releasing the previously active segment.
func (s *Source) SetActive(i int) {
	n, ok := findSegment(s.segments, s.total, i)
	if !ok {
		return
	}

	s.mu.Lock()
	prev := s.active
	if prev == n {
		s.mu.Unlock()
		return
	}
	s.active = n
	s.mu.Unlock()

	s.cache.Pin(n)
	if prev >= 0 {
		s.recordEvictions(s.cache.Unpin(prev))
	}
}

// State returns the load state of segment ordinal n.
func (s *Source) State(n int) State {
	if s.cache.Contains(n) {
		return Loaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loading[n]; ok {
		return Loading
	}
	return NotLoaded
}

// Stats returns segment cache counters.
func (s *Source) Stats() cache.Stats {
	return s.cache.Stats()
}

// Close cancels in-flight loads and drops the cache. Later calls to Ensure
// fail with ErrSourceClosed and Get finds nothing.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	s.cache.Clear()
	s.metrics.SetCachedSegments(0)
	return nil
}

func (s *Source) load(n int) error {
	// another flight may have finished between the cache check and now
	if s.cache.Contains(n) {
		return nil
	}

	s.mu.Lock()
	s.loading[n] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.loading, n)
		s.mu.Unlock()
	}()

	meta := s.segments[n]
	start := time.Now()

	text, err := s.provider.LoadSegment(s.ctx, meta)
	if err != nil {
		s.metrics.SegmentFailed()
		if s.closed.Load() {
			return ErrSourceClosed
		}
		return &SegmentError{Code: CodeParseFailure, Segment: meta.ID, Cause: err}
	}

	words := prosody.Split(text)
	if len(words) != meta.WordCount {
		s.metrics.SegmentFailed()
		return &SegmentError{
			Code:    CodeCountMismatch,
			Segment: meta.ID,
			Cause:   fmt.Errorf("got %d words, want %d", len(words), meta.WordCount),
		}
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	evicted := s.cache.Put(n, &cachedSegment{meta: meta, words: words, loadedAt: time.Now()})
	s.mu.Unlock()
	s.recordEvictions(evicted)

	elapsed := time.Since(start)
	s.metrics.SegmentLoaded(elapsed.Seconds())
	s.logger.Debug("segment loaded", "segment", meta.ID, "words", len(words), "took", elapsed)
	return nil
}

func (s *Source) recordEvictions(evicted []int) {
	for _, n := range evicted {
		s.logger.Debug("segment evicted", "segment", s.segments[n].ID)
	}
	s.metrics.Evicted(len(evicted))
	s.metrics.SetCachedSegments(s.cache.Len())
}
