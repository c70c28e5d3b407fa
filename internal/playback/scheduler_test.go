package playback

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/settings"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

type fakeSource struct {
	mu        sync.Mutex
	words     []prosody.Word
	segSize   int
	loaded    map[int]bool
	ensureErr error
	ensures   []int
	prefetch  []int
	active    int
	closed    bool
}

// newFakeSource returns n words of 200ms each in segments of segSize.
// Only the listed segments start loaded; with none listed all are.
func newFakeSource(n, segSize int, loaded ...int) *fakeSource {
	f := &fakeSource{segSize: segSize, loaded: make(map[int]bool)}
	for i := 0; i < n; i++ {
		f.words = append(f.words, prosody.Word{Text: fmt.Sprintf("w%d", i), BaseDelay: 200})
	}
	if len(loaded) == 0 {
		for seg := 0; seg*segSize < n; seg++ {
			f.loaded[seg] = true
		}
	}
	for _, seg := range loaded {
		f.loaded[seg] = true
	}
	return f
}

func (f *fakeSource) Total() int { return len(f.words) }

func (f *fakeSource) Get(i int) (prosody.Word, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.words) || !f.loaded[i/f.segSize] {
		return prosody.Word{}, false
	}
	return f.words[i], true
}

func (f *fakeSource) Ensure(_ context.Context, i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures = append(f.ensures, i)
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.loaded[i/f.segSize] = true
	return nil
}

func (f *fakeSource) Prefetch(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = append(f.prefetch, i)
}

func (f *fakeSource) SetActive(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = i
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// queue collects background work so tests decide when it runs.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) spawn(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, f)
}

func (q *queue) run() int {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, f := range fns {
		f()
	}
	return len(fns)
}

type fakeStore struct {
	mu    sync.Mutex
	saves []string
}

func (s *fakeStore) UpdatePosition(_ context.Context, bookID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, fmt.Sprintf("%s@%d", bookID, index))
	return nil
}

func (s *fakeStore) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return ""
	}
	return s.saves[len(s.saves)-1]
}

func newTestScheduler(t *testing.T, src WordSource, opts ...Option) (*Scheduler, *queue) {
	t.Helper()
	q := &queue{}
	s := New(append([]Option{WithSpawn(q.spawn)}, opts...)...)
	if err := s.Load(src, "book", 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, q
}

func expectIndex(t *testing.T, s *Scheduler, want int) {
	t.Helper()
	if got := s.Snapshot().Index; got != want {
		t.Fatalf("index = %d, want %d", got, want)
	}
}

func TestPlayThroughToCompletion(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeSource(5, 5))
	if p := s.Snapshot().Phase; p != Stopped {
		t.Fatalf("phase after load = %v, want stopped", p)
	}

	s.Play()
	s.Tick(0) // starts the first word's dwell
	expectIndex(t, s, 0)
	s.Tick(ms(199))
	expectIndex(t, s, 0)

	for i, now := 1, 200; i < 5; i, now = i+1, now+200 {
		s.Tick(ms(now))
		expectIndex(t, s, i)
	}

	s.Tick(ms(999))
	if p := s.Snapshot().Phase; p != Playing {
		t.Fatalf("phase before last dwell ends = %v, want playing", p)
	}
	s.Tick(ms(1000))
	snap := s.Snapshot()
	if snap.Phase != Completed || snap.Index != 4 {
		t.Fatalf("snapshot = %v@%d, want completed@4", snap.Phase, snap.Index)
	}

	// playing again starts over
	s.Play()
	expectIndex(t, s, 0)
}

func TestLateTickAnchorsToNow(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeSource(5, 5))
	s.Play()
	s.Tick(0)

	s.Tick(ms(350)) // 150ms late
	expectIndex(t, s, 1)

	s.Tick(ms(400))
	expectIndex(t, s, 1)
	s.Tick(ms(549))
	expectIndex(t, s, 1)
	s.Tick(ms(550))
	expectIndex(t, s, 2)
}

// Each word is scheduled from the frame that showed it, so frame lateness
// never accumulates: the average overshoot over a long read matches a short
// one and no single word overshoots by more than a frame.
func TestNoCompoundingDrift(t *testing.T) {
	const (
		frame = 16 * time.Millisecond
		dwell = 200 * time.Millisecond
	)

	// play runs words through frames of frame plus up to jitter and returns
	// the worst and mean time each word stayed past its dwell.
	play := func(t *testing.T, words int, jitter time.Duration) (worst, mean time.Duration) {
		t.Helper()
		rng := rand.New(rand.NewSource(1))
		s, _ := newTestScheduler(t, newFakeSource(words, words))
		s.Play()

		var now, total time.Duration
		s.Tick(now)
		last, lastAt := 0, now
		for s.Snapshot().Phase == Playing {
			now += frame
			if jitter > 0 {
				now += time.Duration(rng.Int63n(int64(jitter)))
			}
			s.Tick(now)
			if idx := s.Snapshot().Index; idx != last {
				shown := now - lastAt
				if shown < dwell {
					t.Fatalf("word %d shown %v, shorter than its %v dwell", last, shown, dwell)
				}
				worst = max(worst, shown-dwell)
				total += shown - dwell
				last, lastAt = idx, now
			}
		}
		if last != words-1 {
			t.Fatalf("finished at %d, want %d", last, words-1)
		}
		return worst, total / time.Duration(words-1)
	}

	t.Run("steady frames", func(t *testing.T) {
		_, short := play(t, 10, 0)
		_, long := play(t, 2000, 0)
		// 200ms is not a multiple of 16ms, so every word waits for the 208ms frame
		if short != 8*time.Millisecond || long != short {
			t.Errorf("mean error %v (10 words) / %v (2000 words), want 8ms for both", short, long)
		}
	})

	t.Run("jittered frames", func(t *testing.T) {
		const jitter = 5 * time.Millisecond
		bound := frame + jitter
		shortWorst, short := play(t, 10, jitter)
		longWorst, long := play(t, 2000, jitter)
		if shortWorst > bound || longWorst > bound {
			t.Errorf("per-word error %v (10 words) / %v (2000 words) exceeds one frame %v", shortWorst, longWorst, bound)
		}
		if long > bound || short > bound {
			t.Errorf("mean error %v (10 words) / %v (2000 words) exceeds one frame %v", short, long, bound)
		}
	})
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	src := newFakeSource(10, 5, 0)
	s, q := newTestScheduler(t, src, WithMetrics(m))

	s.Play()
	s.Tick(0)
	for i := 1; i <= 4; i++ {
		s.Tick(ms(200 * i))
	}
	s.Tick(ms(1000)) // stalls on word 5
	q.run()
	s.Tick(ms(1005))
	s.Tick(ms(1205))
	expectIndex(t, s, 6)

	const want = `
# HELP rsvp_playback_stalls_total Times playback waited for a segment
# TYPE rsvp_playback_stalls_total counter
rsvp_playback_stalls_total 1
# HELP rsvp_words_displayed_total Words advanced through during playback
# TYPE rsvp_words_displayed_total counter
rsvp_words_displayed_total 6
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want),
		"rsvp_playback_stalls_total",
		"rsvp_words_displayed_total",
	)
	if err != nil {
		t.Error(err)
	}
}

func TestStallAndResume(t *testing.T) {
	src := newFakeSource(10, 5, 0)
	s, q := newTestScheduler(t, src)

	s.Play()
	s.Tick(0)
	for i := 1; i <= 4; i++ {
		s.Tick(ms(200 * i))
	}
	expectIndex(t, s, 4)

	s.Tick(ms(1000)) // word 5 is in an unloaded segment
	snap := s.Snapshot()
	if snap.Phase != Paused || !snap.Stalled {
		t.Fatalf("snapshot = %v stalled=%v, want paused and stalled", snap.Phase, snap.Stalled)
	}
	if snap.Index != 4 || !snap.HasWord || snap.Word.Text != "w4" {
		t.Fatalf("stalled on %d %q, want last good word w4", snap.Index, snap.Word.Text)
	}

	if n := q.run(); n != 1 {
		t.Fatalf("ran %d background jobs, want 1", n)
	}
	if len(src.ensures) != 1 || src.ensures[0] != 5 {
		t.Fatalf("ensures = %v, want [5]", src.ensures)
	}
	if snap := s.Snapshot(); snap.Phase != Playing || snap.Stalled {
		t.Fatalf("after load: %v stalled=%v, want playing", snap.Phase, snap.Stalled)
	}

	s.Tick(ms(1005))
	expectIndex(t, s, 5)
	s.Tick(ms(1204))
	expectIndex(t, s, 5)
	s.Tick(ms(1205))
	expectIndex(t, s, 6)
}

func TestStallResolvedAfterPause(t *testing.T) {
	src := newFakeSource(10, 5, 0)
	s, q := newTestScheduler(t, src)

	s.Play()
	s.Tick(0)
	s.Step(4)
	s.Tick(ms(10))
	s.Tick(ms(210)) // stall on 5
	if !s.Snapshot().Stalled {
		t.Fatal("expected stall")
	}

	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	q.run()

	snap := s.Snapshot()
	if snap.Phase != Paused || snap.Stalled || snap.Index != 4 {
		t.Fatalf("snapshot = %v stalled=%v @%d, want paused @4", snap.Phase, snap.Stalled, snap.Index)
	}
	s.Tick(ms(5000))
	expectIndex(t, s, 4)
}

func TestStallResolvedAfterSeek(t *testing.T) {
	src := newFakeSource(20, 5, 0, 2)
	s, q := newTestScheduler(t, src)

	s.Play()
	s.Tick(0)
	s.Step(4)
	s.Tick(ms(10))
	s.Tick(ms(210)) // stall on 5

	s.Seek(12)
	q.run()

	snap := s.Snapshot()
	if snap.Phase != Paused || snap.Index != 12 {
		t.Fatalf("snapshot = %v@%d, want paused@12", snap.Phase, snap.Index)
	}
	s.Tick(ms(10000))
	expectIndex(t, s, 12)
}

func TestStallLoadFailure(t *testing.T) {
	src := newFakeSource(10, 5, 0)
	src.ensureErr = errors.New("bad segment")
	s, q := newTestScheduler(t, src)

	s.Play()
	s.Tick(0)
	s.Step(4)
	s.Tick(ms(10))
	s.Tick(ms(210))
	q.run()

	snap := s.Snapshot()
	if snap.Phase != Paused || snap.Stalled {
		t.Fatalf("snapshot = %v stalled=%v, want paused", snap.Phase, snap.Stalled)
	}
	if !errors.Is(snap.Err, src.ensureErr) {
		t.Fatalf("Err = %v, want load error", snap.Err)
	}
	if snap.Index != 4 || snap.Word.Text != "w4" {
		t.Fatalf("showing %d %q, want w4", snap.Index, snap.Word.Text)
	}

	s.Play()
	if s.Snapshot().Err != nil {
		t.Error("error kept after resuming")
	}
}

func TestPlayWithUnloadedFirstWord(t *testing.T) {
	src := newFakeSource(10, 5, 1)
	s, q := newTestScheduler(t, src)

	s.Play()
	s.Tick(0)
	if !s.Snapshot().Stalled {
		t.Fatal("expected stall on the first word")
	}
	q.run()

	s.Tick(ms(10)) // the first word now gets its full dwell
	expectIndex(t, s, 0)
	s.Tick(ms(209))
	expectIndex(t, s, 0)
	s.Tick(ms(210))
	expectIndex(t, s, 1)
}

func TestPausePersistsAndStops(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestScheduler(t, newFakeSource(10, 10), WithStore(store))

	s.Play()
	s.Tick(0)
	s.Tick(ms(200))
	expectIndex(t, s, 1)

	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := store.last(); got != "book@1" {
		t.Errorf("saved %q, want book@1", got)
	}
	s.Tick(ms(10000))
	expectIndex(t, s, 1)

	s.Play()
	s.Tick(ms(10000))
	s.Tick(ms(10199))
	expectIndex(t, s, 1)
	s.Tick(ms(10200))
	expectIndex(t, s, 2)
}

func TestPauseStopsConcurrentTicks(t *testing.T) {
	src := newFakeSource(100000, 1000)
	for i := range src.words {
		src.words[i].BaseDelay = 1
	}
	s := New()
	if err := s.Load(src, "book", 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Play()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			s.Tick(time.Duration(i) * time.Millisecond)
		}
	}()

	time.Sleep(5 * time.Millisecond)
	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	idx := s.Snapshot().Index
	time.Sleep(5 * time.Millisecond)
	close(stop)
	<-done

	if got := s.Snapshot().Index; got != idx {
		t.Errorf("index moved from %d to %d after Pause returned", idx, got)
	}
}

func TestSetWPMRecomputesDeadline(t *testing.T) {
	rate := settings.New(300, 0.7)
	s, _ := newTestScheduler(t, newFakeSource(5, 5), WithRate(rate))

	s.Play()
	s.Tick(0) // word 0 due at 200ms
	if got := s.SetWPM(600, ms(50)); got != 600 {
		t.Fatalf("SetWPM = %d, want 600", got)
	}
	if rate.WPM() != 600 {
		t.Errorf("rate holder = %d, want 600", rate.WPM())
	}

	s.Tick(ms(149))
	expectIndex(t, s, 0)
	s.Tick(ms(150))
	expectIndex(t, s, 1)

	if got := s.SetWPM(5000, ms(150)); got != settings.MaxWPM {
		t.Errorf("SetWPM(5000) = %d, want clamped %d", got, settings.MaxWPM)
	}
	if got := s.Snapshot().WPM; got != settings.MaxWPM {
		t.Errorf("snapshot WPM = %d", got)
	}
}

func TestScrubbing(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestScheduler(t, newFakeSource(10, 10), WithStore(store), WithScrubFactor(4))

	s.Play()
	s.Tick(0)
	s.EnterScrub(1, ms(0)) // 300 wpm: 200ms / 4
	if p := s.Snapshot().Phase; p != Scrubbing {
		t.Fatalf("phase = %v, want scrubbing", p)
	}
	s.Tick(ms(49))
	expectIndex(t, s, 0)
	s.Tick(ms(50))
	expectIndex(t, s, 1)
	s.Tick(ms(100))
	expectIndex(t, s, 2)

	if err := s.ExitScrub(context.Background()); err != nil {
		t.Fatalf("ExitScrub: %v", err)
	}
	if snap := s.Snapshot(); snap.Phase != Paused || snap.Index != 2 {
		t.Fatalf("after scrub: %v@%d, want paused@2", snap.Phase, snap.Index)
	}
	if got := store.last(); got != "book@2" {
		t.Errorf("saved %q, want book@2", got)
	}

	s.EnterScrub(-1, ms(200))
	s.Tick(ms(250))
	s.Tick(ms(300))
	s.Tick(ms(350)) // clamped at the first word
	expectIndex(t, s, 0)
	if p := s.Snapshot().Phase; p != Scrubbing {
		t.Errorf("phase = %v, want scrubbing at the boundary", p)
	}
}

func TestScrubWaitsForUnloadedSegment(t *testing.T) {
	src := newFakeSource(10, 5, 0)
	s, _ := newTestScheduler(t, src)
	s.Seek(4)

	s.EnterScrub(1, 0)
	s.Tick(ms(50))
	expectIndex(t, s, 4)

	found := false
	for _, i := range src.prefetch {
		found = found || i == 5
	}
	if !found {
		t.Errorf("prefetches = %v, want 5 requested", src.prefetch)
	}
}

func TestLoad(t *testing.T) {
	s := New()
	if err := s.Load(newFakeSource(0, 1), "empty", 0); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("Load(empty) = %v, want ErrEmptyDocument", err)
	}
	s.Play()
	if p := s.Snapshot().Phase; p != Stopped {
		t.Errorf("phase = %v, want stopped with nothing loaded", p)
	}

	if err := s.Load(newFakeSource(10, 10), "book", 42); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap := s.Snapshot(); snap.Index != 9 || snap.Phase != Paused {
		t.Errorf("snapshot = %v@%d, want paused@9", snap.Phase, snap.Index)
	}
}

func TestLoadInvalidatesPreviousDocument(t *testing.T) {
	first := newFakeSource(10, 5, 0)
	s, q := newTestScheduler(t, first)

	s.Play()
	s.Tick(0)
	s.Step(4)
	s.Tick(ms(10))
	s.Tick(ms(210)) // stall in the first document

	second := newFakeSource(3, 3)
	if err := s.Load(second, "other", 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !first.closed {
		t.Error("previous source not closed")
	}
	q.run()

	snap := s.Snapshot()
	if snap.Phase != Stopped || snap.Index != 0 || snap.BookID != "other" {
		t.Fatalf("snapshot = %v@%d %s, want stopped@0 other", snap.Phase, snap.Index, snap.BookID)
	}
}

func TestClose(t *testing.T) {
	store := &fakeStore{}
	src := newFakeSource(5, 5)
	s, _ := newTestScheduler(t, src, WithStore(store))

	s.Play()
	s.Tick(0)
	s.Tick(ms(200))
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	if got := store.last(); got != "book@1" {
		t.Errorf("saved %q, want book@1", got)
	}
	s.Play()
	s.Tick(ms(5000))
	expectIndex(t, s, 1)
	if err := s.Load(newFakeSource(2, 2), "x", 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close = %v, want ErrClosed", err)
	}
}

func TestToggle(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeSource(3, 3))
	ctx := context.Background()

	if err := s.Toggle(ctx); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if p := s.Snapshot().Phase; p != Playing {
		t.Fatalf("phase = %v, want playing", p)
	}
	if err := s.Toggle(ctx); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if p := s.Snapshot().Phase; p != Paused {
		t.Fatalf("phase = %v, want paused", p)
	}
}
