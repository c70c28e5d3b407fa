package prosody

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Token is a whitespace-delimited run of text with its byte offsets.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into whitespace-delimited tokens. Offsets refer to
// text as given; callers wanting normalized tokens pass normalized text.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text)})
	}
	return tokens
}

// RawWord is a displayable word before timing is applied. Parts keeps the
// original tokens so punctuation folded into the word is merged with the
// duration-weighted rules each time it is materialized.
type RawWord struct {
	Parts        []string `json:"parts"`
	ParagraphEnd bool     `json:"paragraphEnd,omitempty"`
}

// Text returns the word as displayed.
func (r RawWord) Text() string {
	return strings.Join(r.Parts, "")
}

// Split normalizes text to NFC, tokenizes it and folds punctuation-only
// tokens into the preceding word. A word followed by a blank line, or the
// last word of text, ends a paragraph.
func Split(text string) []RawWord {
	text = norm.NFC.String(text)
	tokens := Tokenize(text)

	words := make([]RawWord, 0, len(tokens))
	for i, tok := range tokens {
		paraEnd := i == len(tokens)-1 ||
			strings.Count(text[tok.End:tokens[i+1].Start], "\n") >= 2

		if !HasWordRune(tok.Text) {
			if len(words) == 0 {
				continue
			}
			last := &words[len(words)-1]
			last.Parts = append(last.Parts, tok.Text)
			last.ParagraphEnd = last.ParagraphEnd || paraEnd
			continue
		}
		words = append(words, RawWord{Parts: []string{tok.Text}, ParagraphEnd: paraEnd})
	}
	return words
}

// CountWords returns how many words Split would produce for text.
func CountWords(text string) int {
	return len(Split(text))
}

// Materialize computes the Word for raw at the given options.
func Materialize(raw RawWord, opts Options) Word {
	if len(raw.Parts) == 0 {
		return Word{}
	}
	w := Analyze(raw.Parts[0], opts)
	for _, part := range raw.Parts[1:] {
		w = Merge(w, Analyze(part, opts))
	}
	if raw.ParagraphEnd {
		w.Prosody.PauseAfter += ComputeBaseDelay(opts.WPM)
	}
	return w
}

// Process splits text and materializes every word.
func Process(text string, opts Options) []Word {
	raw := Split(text)
	words := make([]Word, len(raw))
	for i, r := range raw {
		words[i] = Materialize(r, opts)
	}
	return words
}
