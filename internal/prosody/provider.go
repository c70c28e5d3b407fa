package prosody

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxTextLength is the largest text, in characters, a provider accepts.
const MaxTextLength = 500000

// ResultVersion is the schema version written into every Result.
const ResultVersion = "1.0"

// Provider produces Words for a text. Any implementation emitting
// conformant Words can stand in for the rule engine.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, text string, opts Options) (*Result, error)
	Capabilities() Capabilities
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	Name             string `json:"name"`
	Offline          bool   `json:"offline"`
	SupportsPitch    bool   `json:"supports_pitch"`
	SupportsLoudness bool   `json:"supports_loudness"`
	MaxTextLength    int    `json:"max_text_length"`
}

// Metadata summarizes an analysis.
type Metadata struct {
	WordCount      int     `json:"wordCount"`
	AvgWordLength  float64 `json:"avgWordLength"`
	TotalPauses    int     `json:"totalPauses"`
	EmphasisCount  int     `json:"emphasisCount"`
	ProcessingTime float64 `json:"processingTime"` // seconds
	Model          string  `json:"model,omitempty"`
}

// Result is the output of a provider.
type Result struct {
	Version  string   `json:"version"`
	Method   string   `json:"method"`
	WPM      int      `json:"wpm,omitempty"`
	Metadata Metadata `json:"metadata"`
	Words    []Word   `json:"words"`
}

// ValidateText checks that text is non-empty and within MaxTextLength.
func ValidateText(text string) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return ErrEmptyText
	}
	if n > MaxTextLength {
		return fmt.Errorf("%w: %d > %d characters", ErrTextTooLong, n, MaxTextLength)
	}
	return nil
}

// RuleBased is the offline punctuation and heuristics provider.
type RuleBased struct{}

// NewRuleBased returns the rule-based provider.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Name implements Provider.
func (*RuleBased) Name() string { return "rule-based" }

// Capabilities implements Provider.
func (p *RuleBased) Capabilities() Capabilities {
	return Capabilities{Name: p.Name(), Offline: true, MaxTextLength: MaxTextLength}
}

// Analyze implements Provider.
func (p *RuleBased) Analyze(ctx context.Context, text string, opts Options) (*Result, error) {
	start := time.Now()
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := Process(text, opts)
	meta := Summarize(words)
	meta.ProcessingTime = math.Round(time.Since(start).Seconds()*10000) / 10000
	meta.Model = "rule-based-v1.0"

	return &Result{
		Version:  ResultVersion,
		Method:   p.Name(),
		WPM:      opts.WPM,
		Metadata: meta,
		Words:    words,
	}, nil
}

// Summarize computes result metadata for words.
func Summarize(words []Word) Metadata {
	m := Metadata{WordCount: len(words)}
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(stripNonWord(w.Text))
		info := w.info()
		if info.PauseAfter > 0 {
			m.TotalPauses++
		}
		if info.Emphasis != EmphasisNone {
			m.EmphasisCount++
		}
	}
	if len(words) > 0 {
		m.AvgWordLength = math.Round(float64(total)/float64(len(words))*100) / 100
	}
	return m
}

// Registry maps provider names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a registry holding the rule-based provider.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.Register(NewRuleBased())
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
