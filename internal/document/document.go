// Package document turns files on disk into segmented word sources. Plain
// text is split into pages at paragraph breaks, markdown into sections at
// top-level headings, and JSON files are read as precomputed prosody.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/cache"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/source"
	"github.com/google/uuid"
)

// DefaultPageWords is the target page size for plain text.
const DefaultPageWords = 500

// Kind is how a file is interpreted.
type Kind int

const (
	KindText Kind = iota
	KindMarkdown
	KindProsody
)

func (k Kind) String() string {
	switch k {
	case KindMarkdown:
		return "markdown"
	case KindProsody:
		return "prosody"
	default:
		return "text"
	}
}

// Options configures Open.
type Options struct {
	// PageWords is the target number of words per plain text page.
	PageWords int
	// Cache, when set, keeps extracted segment text on disk.
	Cache  *cache.DiskCache
	Logger *log.Logger
}

// Reader is a word source over an opened document.
type Reader interface {
	Total() int
	Segments() []source.SegmentMeta
	SegmentForIndex(i int) (int, source.SegmentMeta, bool)
	Get(i int) (prosody.Word, bool)
	Ensure(ctx context.Context, i int) error
	Prefetch(i int)
	SetActive(i int)
	Close() error
}

// Document is an indexed file. Only the segment table is held in memory;
// segment text is read from the file when a segment is loaded.
type Document struct {
	ID       string
	Title    string
	Path     string
	Kind     Kind
	Segments []source.SegmentMeta
	Provider source.Provider
	// Result holds the words of a precomputed prosody file.
	Result *prosody.Result

	file *os.File
}

// section is a byte range of the file holding one segment.
type section struct {
	label string
	start int64
	end   int64
	words int
}

// Open indexes the file at path.
func Open(path string, opts Options) (*Document, error) {
	if opts.PageWords <= 0 {
		opts.PageWords = DefaultPageWords
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat document: %w", err)
	}

	doc := &Document{
		ID:    BookID(abs),
		Title: strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Path:  abs,
		Kind:  kindOf(abs),
	}

	if doc.Kind == KindProsody {
		defer f.Close()
		res, err := prosody.DecodeResult(f)
		if err != nil {
			return nil, err
		}
		if len(res.Words) == 0 {
			return nil, source.ErrEmptyDocument
		}
		doc.Result = res
		doc.Segments = []source.SegmentMeta{{ID: "all", Label: doc.Title, WordCount: len(res.Words)}}
		return doc, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read document: %w", err)
	}

	var sections []section
	extract := func(b []byte) string { return string(b) }
	if doc.Kind == KindMarkdown {
		sections = indexMarkdown(data)
		extract = plainText
		for _, s := range sections {
			if s.label != "" {
				doc.Title = s.label
				break
			}
		}
	} else {
		sections = indexText(string(data), opts.PageWords)
	}

	fp := &fileProvider{r: f, ranges: make(map[string]section), extract: extract}
	next := 0
	for i, s := range sections {
		if s.words == 0 {
			continue
		}
		id := fmt.Sprintf("%s-%d", doc.Kind, i)
		fp.ranges[id] = s
		doc.Segments = append(doc.Segments, source.SegmentMeta{
			ID:        id,
			Label:     s.label,
			StartWord: next,
			WordCount: s.words,
		})
		next += s.words
	}
	if next == 0 {
		f.Close()
		return nil, source.ErrEmptyDocument
	}

	doc.file = f
	doc.Provider = fp
	if opts.Cache != nil {
		// size and modification time keep cached text from outliving an edit
		prefix := fmt.Sprintf("%s:%d:%d", doc.ID, info.Size(), info.ModTime().UnixNano())
		doc.Provider = NewCachingProvider(fp, opts.Cache, prefix, opts.Logger)
	}

	opts.Logger.Debug("document indexed", "path", abs, "kind", doc.Kind,
		"segments", len(doc.Segments), "words", next)
	return doc, nil
}

// Total returns the number of words in the document.
func (d *Document) Total() int {
	if len(d.Segments) == 0 {
		return 0
	}
	return d.Segments[len(d.Segments)-1].End()
}

// ReadText returns the readable text of the file at path, with markdown
// markup removed the same way as when the file is read word by word.
func ReadText(path string) (string, error) {
	if kindOf(path) == KindProsody {
		return "", fmt.Errorf("%s already holds word timings", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if kindOf(path) == KindMarkdown {
		return plainText(data), nil
	}
	return string(data), nil
}

// NewReader returns a word source over the document.
func (d *Document) NewReader(wpm func() int, opts ...source.Option) (Reader, error) {
	if d.Result != nil {
		return source.NewStatic(d.Result, d.Title, wpm)
	}
	opts = append([]source.Option{source.WithWPM(wpm)}, opts...)
	return source.New(d.Segments, d.Provider, opts...)
}

// Close releases the underlying file.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// BookID returns a stable identifier for the document at an absolute path.
func BookID(abs string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

func kindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return KindMarkdown
	case ".json":
		return KindProsody
	default:
		return KindText
	}
}

// fileProvider reads a segment's byte range and extracts its text.
type fileProvider struct {
	r       io.ReaderAt
	ranges  map[string]section
	extract func([]byte) string
}

func (p *fileProvider) LoadSegment(ctx context.Context, meta source.SegmentMeta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s, ok := p.ranges[meta.ID]
	if !ok {
		return "", fmt.Errorf("unknown segment %q", meta.ID)
	}

	buf := make([]byte, s.end-s.start)
	n, err := p.r.ReadAt(buf, s.start)
	if n < len(buf) {
		return "", fmt.Errorf("read segment %s: %w", meta.ID, err)
	}
	return p.extract(buf), nil
}
