package document

import (
	"bytes"
	"strings"

	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// sectionLevel is the deepest heading that starts a new section.
const sectionLevel = 2

// indexMarkdown splits a markdown file at top-level headings. Text before
// the first heading is an unlabeled section. Word counts are taken from the
// same extraction used when a section is loaded.
func indexMarkdown(data []byte) []section {
	doc := goldmark.New().Parser().Parse(text.NewReader(data))

	var starts []int
	var labels []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > sectionLevel || h.Lines().Len() == 0 {
			continue
		}
		starts = append(starts, lineStart(data, h.Lines().At(0).Start))
		labels = append(labels, strings.TrimSpace(inlineText(h, data)))
	}

	var sections []section
	if len(starts) == 0 || starts[0] > 0 {
		end := len(data)
		if len(starts) > 0 {
			end = starts[0]
		}
		sections = append(sections, section{start: 0, end: int64(end)})
	}
	for i, start := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sections = append(sections, section{label: labels[i], start: int64(start), end: int64(end)})
	}

	for i := range sections {
		s := &sections[i]
		s.words = prosody.CountWords(plainText(data[s.start:s.end]))
	}
	return sections
}

func lineStart(data []byte, off int) int {
	return bytes.LastIndexByte(data[:off], '\n') + 1
}

// plainText extracts readable text from markdown. Blocks are separated by
// blank lines so paragraph pauses survive; code and HTML are skipped.
func plainText(md []byte) string {
	reader := text.NewReader(md)
	doc := goldmark.New().Parser().Parse(reader)

	var buf strings.Builder
	walkNode(doc, reader.Source(), &buf)
	return buf.String()
}

func inlineText(n ast.Node, source []byte) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		walkNode(c, source, &buf)
	}
	return buf.String()
}

func walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		switch {
		case n.HardLineBreak():
			buf.WriteByte('\n')
		case n.SoftLineBreak():
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walkNode(c, source, buf)
		}
		buf.WriteString("\n\n")
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walkNode(c, source, buf)
	}
}
