package prosody

// Merge folds a punctuation-only word into the word before it. Durations add
// up, the pause multiplier becomes the duration-weighted average of both,
// emphasis takes the stronger of the two and a non-neutral tone on the
// punctuation wins.
func Merge(prev, punct Word) Word {
	a, b := prev.info(), punct.info()

	delay := prev.BaseDelay + punct.BaseDelay
	merged := Info{
		Pause:      a.Pause,
		PauseAfter: a.PauseAfter + b.PauseAfter,
		Emphasis:   max(a.Emphasis, b.Emphasis),
		Tone:       a.Tone,
		Pitch:      a.Pitch,
		Loudness:   a.Loudness,
	}
	if delay > 0 {
		merged.Pause = (a.Pause*prev.BaseDelay + b.Pause*punct.BaseDelay) / delay
	}
	if b.Tone != ToneNeutral {
		merged.Tone = b.Tone
	}

	text := prev.Text + punct.Text
	return Word{
		Text:       text,
		PivotIndex: ComputePivotIndex(text),
		BaseDelay:  delay,
		Prosody:    &merged,
	}
}

// MergeWords applies the punctuation fold to an already analyzed sequence.
// Punctuation-only words attach to the word before them, left to right;
// those with nothing before them are dropped.
func MergeWords(words []Word) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		if HasWordRune(w.Text) {
			out = append(out, w)
			continue
		}
		if len(out) == 0 {
			continue
		}
		out[len(out)-1] = Merge(out[len(out)-1], w)
	}
	return out
}

// MergeTokens analyzes tokens and folds standalone punctuation. The result
// never has more words than there were tokens.
func MergeTokens(tokens []string, opts Options) []Word {
	words := make([]Word, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		words = append(words, Analyze(tok, opts))
	}
	return MergeWords(words)
}
