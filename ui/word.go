package ui

import (
	"strings"

	"github.com/dgnsrekt/rsvp/internal/prosody"
	runewidth "github.com/mattn/go-runewidth"
)

// pivotIndex clamps the word's pivot into its runes.
func pivotIndex(w prosody.Word, runes []rune) int {
	return min(max(w.PivotIndex, 0), max(len(runes)-1, 0))
}

// pivotOffset returns the column where w starts so that its pivot rune
// lands on the center column of a view width cells wide.
func pivotOffset(w prosody.Word, width int) int {
	runes := []rune(w.Text)
	left := string(runes[:pivotIndex(w, runes)])
	return max(width/2-runewidth.StringWidth(left), 0)
}

// renderWord draws w with its pivot highlighted on the center column.
func renderWord(w prosody.Word, width int) string {
	runes := []rune(w.Text)
	if len(runes) == 0 {
		return ""
	}
	p := pivotIndex(w, runes)

	style := wordStyle
	if w.Prosody != nil {
		switch w.Prosody.Emphasis {
		case prosody.EmphasisHigh:
			style = style.Bold(true)
		case prosody.EmphasisMedium:
			style = style.Italic(true)
		}
	}

	return strings.Repeat(" ", pivotOffset(w, width)) +
		style.Render(string(runes[:p])) +
		pivotStyle.Render(string(runes[p])) +
		style.Render(string(runes[p+1:]))
}

// guideLine marks the pivot column above and below the word.
func guideLine(width int) string {
	return strings.Repeat(" ", width/2) + guideStyle.Render("│")
}
