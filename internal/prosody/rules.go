package prosody

import (
	"strings"
	"unicode"
)

const (
	// DefaultWPM is the reading rate used when none is configured.
	DefaultWPM = 300
	// DefaultSensitivity scales how strongly punctuation stretches a word.
	DefaultSensitivity = 0.7
)

// Options control rule-based analysis.
type Options struct {
	WPM         int     `json:"wpm"`
	Sensitivity float64 `json:"sensitivity"`
}

// DefaultOptions returns the default analysis options.
func DefaultOptions() Options {
	return Options{WPM: DefaultWPM, Sensitivity: DefaultSensitivity}
}

// Punctuation pause multipliers before sensitivity scaling.
const (
	pauseSentence  = 2.5
	pauseSemicolon = 2.0
	pauseColon     = 1.8
	pauseComma     = 1.5
	pauseEllipsis  = 2.0
)

var punctuationPauses = map[rune]float64{
	'.': pauseSentence,
	'!': pauseSentence,
	'?': pauseSentence,
	';': pauseSemicolon,
	':': pauseColon,
	',': pauseComma,
	'-': pauseComma,
	'–': pauseComma,
	'—': pauseComma,
}

var dialogueOpeners = "\"'“‘«"

// ComputeBaseDelay returns the per-word delay in milliseconds for wpm.
// Callers clamp wpm; it is not guarded here.
func ComputeBaseDelay(wpm int) float64 {
	return 60000 / float64(wpm)
}

// ComputePivotIndex returns the fixation rune offset for word. The offset is
// derived from the length of the word without trailing punctuation and is
// always inside the word.
func ComputePivotIndex(word string) int {
	runes := []rune(word)
	if len(runes) == 0 {
		return 0
	}
	p := pivotForLength(len(trimTrailingPunct(runes)))
	if p >= len(runes) {
		p = len(runes) - 1
	}
	return p
}

// pivotForLength is a monotonic step function aiming about a third of the
// way into longer words.
func pivotForLength(n int) int {
	switch {
	case n <= 1:
		return 0
	case n <= 3:
		return 1
	case n <= 8:
		return 2
	case n >= 12:
		return 4
	default:
		return int(0.33 * float64(n))
	}
}

// AnalyzeProsody derives pause, tone and emphasis for a single token.
func AnalyzeProsody(word string, sensitivity float64) Info {
	info := DefaultInfo()

	class := trailingClass(word)
	if class.pause > 1 {
		info.Pause = 1 + (class.pause-1)*sensitivity
	}
	info.Tone = class.tone

	clean := stripNonWord(word)
	n := len([]rune(clean))
	if n > 2 && isAllUpper(clean) {
		info.Emphasis = EmphasisHigh
	}

	switch {
	case n > 15:
		info.Pause *= 1.2
	case n > 10:
		info.Pause *= 1.1
	}

	if first, ok := firstRune(word); ok && strings.ContainsRune(dialogueOpeners, first) {
		info.Emphasis = max(info.Emphasis, EmphasisMedium)
	}
	if isMarkedEmphasis(word) {
		info.Emphasis = max(info.Emphasis, EmphasisMedium)
	}
	return info
}

// Analyze turns a single token into a Word at the given options.
func Analyze(token string, opts Options) Word {
	info := AnalyzeProsody(token, opts.Sensitivity)
	return Word{
		Text:       token,
		PivotIndex: ComputePivotIndex(token),
		BaseDelay:  ComputeBaseDelay(opts.WPM),
		Prosody:    &info,
	}
}

type punctClass struct {
	pause float64
	tone  Tone
}

// trailingClass classifies the trailing punctuation run of word. Closing
// quotes and brackets are skipped so `end."` still reads as a sentence end.
func trailingClass(word string) punctClass {
	runes := []rune(word)
	tail := runes[len(trimTrailingPunct(runes)):]
	if len(tail) == 0 {
		return punctClass{pause: 1, tone: ToneNeutral}
	}
	if s := string(tail); strings.Contains(s, "…") || strings.Contains(s, "...") {
		return punctClass{pause: pauseEllipsis, tone: ToneNeutral}
	}
	for _, r := range tail {
		p, ok := punctuationPauses[r]
		if !ok {
			continue
		}
		c := punctClass{pause: p, tone: ToneNeutral}
		switch r {
		case '?':
			c.tone = ToneRising
		case '.':
			c.tone = ToneFalling
		}
		return c
	}
	return punctClass{pause: 1, tone: ToneNeutral}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func trimTrailingPunct(runes []rune) []rune {
	end := len(runes)
	for end > 0 && !isWordRune(runes[end-1]) {
		end--
	}
	return runes[:end]
}

func stripNonWord(s string) string {
	return strings.Map(func(r rune) rune {
		if isWordRune(r) {
			return r
		}
		return -1
	}, s)
}

// isAllUpper reports whether s has at least one letter and no lowercase ones.
func isAllUpper(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters = true
		}
	}
	return letters
}

func isMarkedEmphasis(word string) bool {
	for _, m := range []string{"*", "_"} {
		if len(word) > 2 && strings.HasPrefix(word, m) && strings.HasSuffix(strings.TrimRight(word, ".,;:!?"), m) {
			return true
		}
	}
	return false
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// HasWordRune reports whether token contains any letter or digit.
func HasWordRune(token string) bool {
	return strings.IndexFunc(token, isWordRune) >= 0
}
