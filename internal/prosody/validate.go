package prosody

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// ValidateWord checks w against the Word schema.
func ValidateWord(w Word) error {
	n := utf8.RuneCountInString(w.Text)
	switch {
	case n == 0:
		return fmt.Errorf("%w: empty text", ErrInvalidWord)
	case w.PivotIndex < 0 || w.PivotIndex >= n:
		return fmt.Errorf("%w: pivot %d outside %q", ErrInvalidWord, w.PivotIndex, w.Text)
	case w.BaseDelay <= 0:
		return fmt.Errorf("%w: base delay %v for %q", ErrInvalidWord, w.BaseDelay, w.Text)
	}
	if w.Prosody == nil {
		return nil
	}
	switch p := w.Prosody; {
	case p.Pause < 0:
		return fmt.Errorf("%w: negative pause for %q", ErrInvalidWord, w.Text)
	case p.PauseAfter < 0:
		return fmt.Errorf("%w: negative pauseAfter for %q", ErrInvalidWord, w.Text)
	case p.Emphasis < EmphasisNone || p.Emphasis > EmphasisHigh:
		return fmt.Errorf("%w: emphasis %d for %q", ErrInvalidWord, p.Emphasis, w.Text)
	case p.Tone < ToneNeutral || p.Tone > ToneFalling:
		return fmt.Errorf("%w: tone %d for %q", ErrInvalidWord, p.Tone, w.Text)
	}
	return nil
}

// DecodeResult reads a provider Result as JSON and validates every word, so
// externally produced analyses are checked once at the boundary.
func DecodeResult(r io.Reader) (*Result, error) {
	var res Result
	dec := json.NewDecoder(r)
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("decode prosody result: %w", err)
	}
	for i, w := range res.Words {
		if err := ValidateWord(w); err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
	}
	return &res, nil
}
