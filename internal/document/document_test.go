package document

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/rsvp/internal/cache"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/source"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func openDoc(t *testing.T, path string, opts Options) *Document {
	t.Helper()
	doc, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { doc.Close() })
	return doc
}

func wordCounts(segs []source.SegmentMeta) []int {
	var counts []int
	for _, s := range segs {
		counts = append(counts, s.WordCount)
	}
	return counts
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpenTextPages(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []int
	}{
		{
			name: "paragraph boundaries",
			content: "one two three four.\n\nfive six seven eight.\n\n" +
				"nine ten eleven twelve.\n",
			want: []int{8, 4},
		},
		{
			name:    "long paragraph cut between words",
			content: strings.Repeat("word ", 25),
			want:    []int{10, 10, 5},
		},
		{
			name:    "single short page",
			content: "just a few words",
			want:    []int{4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := openDoc(t, writeFile(t, "book.txt", tt.content), Options{PageWords: 5})
			if doc.Kind != KindText {
				t.Errorf("kind = %v, want text", doc.Kind)
			}
			if got := wordCounts(doc.Segments); !equalInts(got, tt.want) {
				t.Errorf("page sizes = %v, want %v", got, tt.want)
			}
			if _, err := source.ValidateSegments(doc.Segments); err != nil {
				t.Errorf("segments invalid: %v", err)
			}
			if doc.Title != "book" {
				t.Errorf("title = %q, want book", doc.Title)
			}
		})
	}
}

func TestTextPagesLoadLazily(t *testing.T) {
	content := "one two three four.\n\nfive six seven eight.\n\nnine ten eleven twelve.\n"
	doc := openDoc(t, writeFile(t, "book.txt", content), Options{PageWords: 5})

	r, err := doc.NewReader(func() int { return 300 })
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if r.Total() != 12 {
		t.Fatalf("total = %d, want 12", r.Total())
	}
	if _, ok := r.Get(10); ok {
		t.Fatal("word available before its page was loaded")
	}
	if err := r.Ensure(context.Background(), 10); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	w, ok := r.Get(10)
	if !ok || w.Text != "eleven" {
		t.Errorf("Get(10) = %q, %v, want eleven", w.Text, ok)
	}
	w, _ = r.Get(11)
	if w.Text != "twelve." {
		t.Errorf("Get(11) = %q, want twelve.", w.Text)
	}
}

const sampleMarkdown = `Intro line here.

# Chapter One

Hello *big* world.

- item one
- item two

~~~
code here
~~~

### Still chapter one

More.

Part Two
--------

Last words, really.
`

func TestOpenMarkdownSections(t *testing.T) {
	doc := openDoc(t, writeFile(t, "notes.md", sampleMarkdown), Options{})

	if doc.Kind != KindMarkdown {
		t.Fatalf("kind = %v, want markdown", doc.Kind)
	}
	if doc.Title != "Chapter One" {
		t.Errorf("title = %q, want first heading", doc.Title)
	}

	wantLabels := []string{"", "Chapter One", "Part Two"}
	wantCounts := []int{3, 13, 5}
	if len(doc.Segments) != len(wantLabels) {
		t.Fatalf("segments = %+v, want %d", doc.Segments, len(wantLabels))
	}
	for i, seg := range doc.Segments {
		if seg.Label != wantLabels[i] {
			t.Errorf("segment %d label = %q, want %q", i, seg.Label, wantLabels[i])
		}
	}
	if got := wordCounts(doc.Segments); !equalInts(got, wantCounts) {
		t.Errorf("word counts = %v, want %v", got, wantCounts)
	}

	text, err := doc.Provider.LoadSegment(context.Background(), doc.Segments[1])
	if err != nil {
		t.Fatalf("LoadSegment: %v", err)
	}
	if !strings.Contains(text, "Hello big world.") {
		t.Errorf("section text %q missing paragraph", text)
	}
	if strings.Contains(text, "code here") || strings.Contains(text, "*") {
		t.Errorf("section text %q kept code or markup", text)
	}
	if got := prosody.CountWords(text); got != doc.Segments[1].WordCount {
		t.Errorf("loaded %d words, indexed %d", got, doc.Segments[1].WordCount)
	}
}

func TestPlainTextParagraphs(t *testing.T) {
	words := prosody.Split(plainText([]byte("# Title\n\nFirst paragraph.\nSame paragraph.\n\nSecond.\n")))

	var ends []string
	for _, w := range words {
		if w.ParagraphEnd {
			ends = append(ends, w.Text())
		}
	}
	want := []string{"Title", "paragraph.", "Second."}
	if len(ends) != len(want) {
		t.Fatalf("paragraph ends = %v, want %v", ends, want)
	}
	for i := range want {
		if ends[i] != want[i] {
			t.Errorf("paragraph end %d = %q, want %q", i, ends[i], want[i])
		}
	}
}

func TestReadText(t *testing.T) {
	md := writeFile(t, "notes.md", "# Title\n\n```\ncode here\n```\n\nBody *text*.\n")
	got, err := ReadText(md)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if strings.Contains(got, "code") || strings.Contains(got, "#") || strings.Contains(got, "*") {
		t.Errorf("ReadText kept markup: %q", got)
	}
	if words := prosody.CountWords(got); words != 3 {
		t.Errorf("ReadText words = %d, want 3 in %q", words, got)
	}

	txt := writeFile(t, "plain.txt", "as *is*")
	if got, err := ReadText(txt); err != nil || got != "as *is*" {
		t.Errorf("ReadText(txt) = %q, %v", got, err)
	}

	if _, err := ReadText(writeFile(t, "timed.json", "{}")); err == nil {
		t.Error("ReadText(json) returned no error")
	}
}

func TestOpenProsodyResult(t *testing.T) {
	res := prosody.Result{
		Version: prosody.ResultVersion,
		Method:  "external",
		WPM:     300,
		Words: []prosody.Word{
			{Text: "Hello", PivotIndex: 2, BaseDelay: 200},
			{Text: "there.", PivotIndex: 2, BaseDelay: 200},
		},
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := openDoc(t, writeFile(t, "speech.json", string(data)), Options{})

	if doc.Kind != KindProsody || doc.Result == nil {
		t.Fatalf("kind = %v, result = %v", doc.Kind, doc.Result)
	}
	if doc.Total() != 2 {
		t.Errorf("total = %d, want 2", doc.Total())
	}

	r, err := doc.NewReader(func() int { return 600 })
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	w, ok := r.Get(1)
	if !ok || w.Text != "there." || w.BaseDelay != 100 {
		t.Errorf("Get(1) = %+v, %v, want rescaled to 100ms", w, ok)
	}

	bad := writeFile(t, "bad.json", `{"words":[{"text":"","pivotIndex":0,"baseDelay":200}]}`)
	if _, err := Open(bad, Options{}); !errors.Is(err, prosody.ErrInvalidWord) {
		t.Errorf("Open(bad) = %v, want ErrInvalidWord", err)
	}
}

func TestOpenEmpty(t *testing.T) {
	for _, name := range []string{"empty.txt", "empty.md"} {
		t.Run(name, func(t *testing.T) {
			_, err := Open(writeFile(t, name, "  \n\n ... \n"), Options{})
			if !errors.Is(err, source.ErrEmptyDocument) {
				t.Errorf("Open = %v, want ErrEmptyDocument", err)
			}
		})
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.txt"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBookIDStable(t *testing.T) {
	a := BookID("/books/a.txt")
	if a != BookID("/books/a.txt") {
		t.Error("id not stable")
	}
	if a == BookID("/books/b.txt") {
		t.Error("different paths share an id")
	}
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) LoadSegment(_ context.Context, meta source.SegmentMeta) (string, error) {
	p.calls.Add(1)
	return "text of " + meta.ID, nil
}

func TestCachingProvider(t *testing.T) {
	dc, err := cache.NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	next := &countingProvider{}
	p := NewCachingProvider(next, dc, "doc:1", nil)
	meta := source.SegmentMeta{ID: "page-0", WordCount: 3}

	for i := 0; i < 3; i++ {
		text, err := p.LoadSegment(context.Background(), meta)
		if err != nil {
			t.Fatalf("LoadSegment: %v", err)
		}
		if text != "text of page-0" {
			t.Fatalf("text = %q", text)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}

	other := NewCachingProvider(next, dc, "doc:2", nil)
	if _, err := other.LoadSegment(context.Background(), meta); err != nil {
		t.Fatalf("LoadSegment: %v", err)
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("provider called %d times after prefix change, want 2", n)
	}
}

func TestWatch(t *testing.T) {
	path := writeFile(t, "watched.txt", "first version")
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := Watch(ctx, path, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := os.WriteFile(path, []byte("second version"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}
