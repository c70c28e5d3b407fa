// Package playback advances an RSVP reader through a word source in real
// time. The host calls Tick once per frame with a monotonic timestamp; the
// scheduler has no other clock.
package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"golang.org/x/time/rate"
)

// WordSource is what the scheduler reads from. Get must not block.
type WordSource interface {
	Total() int
	Get(i int) (prosody.Word, bool)
	Ensure(ctx context.Context, i int) error
	Prefetch(i int)
	SetActive(i int)
}

// PositionStore persists the reading position.
type PositionStore interface {
	UpdatePosition(ctx context.Context, bookID string, index int) error
}

// Rate reads and sets the reading rate in words per minute.
type Rate interface {
	WPM() int
	SetWPM(wpm int) int
}

type fixedRate struct{ wpm int }

func (r *fixedRate) WPM() int { return r.wpm }

func (r *fixedRate) SetWPM(wpm int) int {
	r.wpm = wpm
	return wpm
}

const (
	// DefaultScrubFactor is how many times faster than reading scrubbing moves.
	DefaultScrubFactor = 4
	// DefaultLookahead is how many words ahead segments are prefetched.
	DefaultLookahead = 50
	// DefaultPersistInterval is the minimum gap between periodic saves.
	DefaultPersistInterval = 5 * time.Second
)

// Snapshot is a consistent view of the scheduler for rendering.
type Snapshot struct {
	Phase   Phase
	Index   int
	Total   int
	Word    prosody.Word
	HasWord bool
	Stalled bool
	BookID  string
	WPM     int
	Scrub   int // -1 or 1 while scrubbing
	Err     error
}

// Scheduler owns the playback position. All state changes happen under one
// mutex, and asynchronous loads carry the generation they were issued in so
// a load finishing after a pause, seek or document switch changes nothing.
type Scheduler struct {
	mu sync.Mutex

	src    WordSource
	bookID string
	gen    uint64

	phase    Phase
	index    int
	nextFire time.Duration

	// anchor makes the next tick start the current word's dwell instead of
	// advancing; due makes the next tick advance without waiting.
	anchor bool
	due    bool

	stalled    bool
	stallIndex int
	lastErr    error

	scrubDir  int
	scrubNext time.Duration

	speed       Rate
	scrubFactor float64
	lookahead   int
	store       PositionStore
	persist     *rate.Limiter
	spawn       func(func())

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRate sets the reading rate holder.
func WithRate(r Rate) Option {
	return func(s *Scheduler) { s.speed = r }
}

// WithStore persists positions on pause, completion and periodically.
func WithStore(store PositionStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithPersistInterval sets the minimum gap between periodic saves.
func WithPersistInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.persist = rate.NewLimiter(rate.Every(d), 1) }
}

// WithScrubFactor sets the scrubbing speed multiple.
func WithScrubFactor(f float64) Option {
	return func(s *Scheduler) {
		if f > 1 {
			s.scrubFactor = f
		}
	}
}

// WithLookahead sets how far ahead segments are prefetched.
func WithLookahead(n int) Option {
	return func(s *Scheduler) { s.lookahead = max(n, 0) }
}

// WithSpawn sets how background work is started. It defaults to a goroutine.
func WithSpawn(spawn func(func())) Option {
	return func(s *Scheduler) { s.spawn = spawn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics records stalls and displayed words.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New returns a scheduler with no document loaded.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		speed:       &fixedRate{wpm: prosody.DefaultWPM},
		scrubFactor: DefaultScrubFactor,
		lookahead:   DefaultLookahead,
		persist:     rate.NewLimiter(rate.Every(DefaultPersistInterval), 1),
		spawn:       func(f func()) { go f() },
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load switches to src at start, invalidating anything in flight for the
// previous document. If the previous source is an io.Closer it is closed.
func (s *Scheduler) Load(src WordSource, bookID string, start int) error {
	total := src.Total()
	if total == 0 {
		return ErrEmptyDocument
	}
	start = min(max(start, 0), total-1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.src
	s.gen++
	s.src = src
	s.bookID = bookID
	s.index = start
	s.phase = Stopped
	if start > 0 {
		s.phase = Paused
	}
	s.resetLocked()
	s.lastErr = nil
	src.SetActive(start)
	src.Prefetch(start)
	s.mu.Unlock()

	if old != nil && old != src {
		if err := s.closeSource(old); err != nil {
			s.logger.Warn("could not close previous document", "err", err)
		}
	}
	s.logger.Debug("document loaded", "book", bookID, "words", total, "start", start)
	return nil
}

// Play starts or resumes playback. The current word is shown for its full
// duration before advancing. Playing a completed document starts over.
func (s *Scheduler) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil || s.closed || s.phase == Playing {
		return
	}
	if s.phase == Completed {
		s.index = 0
	}
	s.gen++
	s.resetLocked()
	s.lastErr = nil
	s.phase = Playing
	s.anchor = true
	s.src.SetActive(s.index)
}

// Pause stops advancement before returning and persists the position.
// Loads issued before the pause can no longer resume playback.
func (s *Scheduler) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.src == nil {
		s.mu.Unlock()
		return nil
	}
	if s.phase == Playing || s.phase == Scrubbing || s.stalled {
		s.gen++
		s.resetLocked()
		s.phase = Paused
	}
	book, index := s.bookID, s.index
	s.mu.Unlock()

	return s.save(ctx, book, index)
}

// Toggle plays when not playing and pauses otherwise.
func (s *Scheduler) Toggle(ctx context.Context) error {
	s.mu.Lock()
	playing := s.phase == Playing
	s.mu.Unlock()

	if playing {
		return s.Pause(ctx)
	}
	s.Play()
	return nil
}

// Seek moves to word i, clamped to the document. Playing continues from
// the new word; other phases become Paused.
func (s *Scheduler) Seek(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(i)
}

// Step moves delta words from the current position.
func (s *Scheduler) Step(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(s.index + delta)
}

func (s *Scheduler) seekLocked(i int) {
	if s.src == nil || s.closed {
		return
	}
	i = min(max(i, 0), s.src.Total()-1)

	dir := s.scrubDir
	s.gen++
	s.resetLocked()
	s.lastErr = nil
	s.index = i
	s.src.SetActive(i)
	s.src.Prefetch(i)

	switch s.phase {
	case Playing:
		s.anchor = true
	case Scrubbing:
		s.scrubDir = dir
	default:
		s.phase = Paused
	}
}

// SetWPM changes the reading rate. While playing, the current word's
// remaining dwell is replaced by one base delay at the new rate.
func (s *Scheduler) SetWPM(wpm int, now time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	wpm = s.speed.SetWPM(wpm)
	if s.phase == Playing && !s.anchor && !s.stalled && !s.due {
		s.nextFire = now + prosody.Millis(prosody.ComputeBaseDelay(wpm))
	}
	if s.phase == Scrubbing {
		s.scrubNext = now + s.scrubIntervalLocked()
	}
	return wpm
}

// EnterScrub starts moving in direction dir (negative for backwards) at
// the scrub factor. Normal playback stops.
func (s *Scheduler) EnterScrub(dir int, now time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil || s.closed {
		return
	}
	s.gen++
	s.resetLocked()
	s.phase = Scrubbing
	s.scrubDir = 1
	if dir < 0 {
		s.scrubDir = -1
	}
	s.scrubNext = now + s.scrubIntervalLocked()
}

// ExitScrub leaves scrubbing, paused at the position reached, and persists it.
func (s *Scheduler) ExitScrub(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != Scrubbing {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.resetLocked()
	s.phase = Paused
	book, index := s.bookID, s.index
	s.mu.Unlock()

	return s.save(ctx, book, index)
}

// Tick advances playback if the current word's dwell has elapsed at now.
func (s *Scheduler) Tick(now time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil || s.closed {
		return
	}
	switch s.phase {
	case Scrubbing:
		s.scrubLocked(now)
		return
	case Playing:
	default:
		return
	}

	if s.anchor {
		w, ok := s.src.Get(s.index)
		if !ok {
			s.stallLocked(s.index)
			return
		}
		s.anchor = false
		s.nextFire = now + w.Duration()
		return
	}
	if !s.due && now < s.nextFire {
		return
	}
	s.due = false

	total := s.src.Total()
	if s.index >= total-1 {
		s.phase = Completed
		s.logger.Debug("playback completed", "book", s.bookID)
		s.saveAsyncLocked()
		return
	}

	next := s.index + 1
	w, ok := s.src.Get(next)
	if !ok {
		s.stallLocked(next)
		return
	}
	s.index = next
	// anchored to now, not to the previous fire time, so a late frame
	// delays one word instead of shortening the ones after it
	s.nextFire = now + w.Duration()
	s.src.SetActive(next)
	if s.lookahead > 0 && next+s.lookahead < total {
		s.src.Prefetch(next + s.lookahead)
	}
	s.metrics.IncWords()

	if s.store != nil && s.persist.Allow() {
		s.saveAsyncLocked()
	}
}

// Snapshot returns the current state and word.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:   s.phase,
		Index:   s.index,
		Stalled: s.stalled,
		BookID:  s.bookID,
		WPM:     s.speed.WPM(),
		Scrub:   s.scrubDir,
		Err:     s.lastErr,
	}
	if s.src != nil {
		snap.Total = s.src.Total()
		snap.Word, snap.HasWord = s.src.Get(s.index)
	}
	return snap
}

// Close pauses, persists the position and releases the source.
func (s *Scheduler) Close(ctx context.Context) error {
	err := s.Pause(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.closed = true
	s.gen++
	src := s.src
	s.mu.Unlock()

	s.cancel()
	return errors.Join(err, s.closeSource(src))
}

// stallLocked pauses on a missing word and loads it. Playback resumes
// only if nothing has changed the generation by the time the load ends.
func (s *Scheduler) stallLocked(target int) {
	s.phase = Paused
	s.stalled = true
	s.stallIndex = target
	s.metrics.IncStalls()
	s.logger.Debug("playback stalled", "index", target)

	gen, src := s.gen, s.src
	s.spawn(func() {
		err := src.Ensure(s.ctx, target)
		s.resolve(gen, target, err)
	})
}

func (s *Scheduler) resolve(gen uint64, target int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || !s.stalled || s.stallIndex != target {
		return
	}
	s.stalled = false
	if err != nil {
		s.lastErr = err
		s.logger.Warn("segment load failed, playback paused", "index", target, "err", err)
		return
	}

	s.phase = Playing
	if target == s.index {
		s.anchor = true
	} else {
		s.due = true
	}
}

func (s *Scheduler) scrubLocked(now time.Duration) {
	if now < s.scrubNext {
		return
	}
	s.scrubNext = now + s.scrubIntervalLocked()

	next := s.index + s.scrubDir
	if next < 0 || next >= s.src.Total() {
		return
	}
	if _, ok := s.src.Get(next); !ok {
		s.src.Prefetch(next)
		return
	}
	s.index = next
	s.src.SetActive(next)
}

func (s *Scheduler) scrubIntervalLocked() time.Duration {
	return prosody.Millis(prosody.ComputeBaseDelay(s.speed.WPM()) / s.scrubFactor)
}

// resetLocked clears transient playback flags.
func (s *Scheduler) resetLocked() {
	s.anchor = false
	s.due = false
	s.stalled = false
	s.scrubDir = 0
}

func (s *Scheduler) saveAsyncLocked() {
	if s.store == nil {
		return
	}
	book, index := s.bookID, s.index
	s.spawn(func() {
		if err := s.save(s.ctx, book, index); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("could not save position", "book", book, "index", index, "err", err)
		}
	})
}

func (s *Scheduler) save(ctx context.Context, book string, index int) error {
	if s.store == nil || book == "" {
		return nil
	}
	return s.store.UpdatePosition(ctx, book, index)
}

func (s *Scheduler) closeSource(src WordSource) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
