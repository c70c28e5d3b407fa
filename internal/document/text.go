package document

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/rsvp/internal/prosody"
)

// indexText splits text into pages of at least pageWords tokens ending at a
// paragraph break. A paragraph longer than two pages is cut between words.
func indexText(text string, pageWords int) []section {
	tokens := prosody.Tokenize(text)

	var pages []section
	start, count := 0, 0
	for i, tok := range tokens[:max(len(tokens)-1, 0)] {
		count++
		next := tokens[i+1]
		paraBreak := strings.Count(text[tok.End:next.Start], "\n") >= 2
		hardCut := count >= 2*pageWords && prosody.HasWordRune(next.Text)
		if (paraBreak && count >= pageWords) || hardCut {
			pages = append(pages, section{start: int64(start), end: int64(next.Start)})
			start, count = next.Start, 0
		}
	}
	if start < len(text) {
		pages = append(pages, section{start: int64(start), end: int64(len(text))})
	}

	for i := range pages {
		pages[i].label = fmt.Sprintf("Page %d", i+1)
		pages[i].words = prosody.CountWords(text[pages[i].start:pages[i].end])
	}
	return pages
}
