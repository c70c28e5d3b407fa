package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/rsvp/internal/source"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
)

const maxJumpResults = 8

// jumpModel picks a segment to jump to by fuzzy matching its label.
type jumpModel struct {
	input    textinput.Model
	segments []source.SegmentMeta
	matches  []int
	cursor   int
	width    int
}

func newJumpModel() jumpModel {
	ti := textinput.New()
	ti.Prompt = "Go to: "
	ti.Placeholder = "chapter"
	ti.CharLimit = 128
	ti.PromptStyle = jumpSelectedStyle
	return jumpModel{input: ti}
}

func (j *jumpModel) open(segments []source.SegmentMeta) tea.Cmd {
	j.segments = segments
	j.input.SetValue("")
	j.filter()
	return j.input.Focus()
}

func (j *jumpModel) close() {
	j.input.Blur()
	j.segments = nil
	j.matches = nil
}

func (j *jumpModel) filter() {
	j.matches = matchSegments(j.input.Value(), j.segments)
	j.cursor = 0
}

func (j *jumpModel) move(delta int) {
	n := min(len(j.matches), maxJumpResults)
	if n == 0 {
		return
	}
	j.cursor = (j.cursor + delta + n) % n
}

func (j jumpModel) selected() (source.SegmentMeta, bool) {
	if j.cursor >= len(j.matches) {
		return source.SegmentMeta{}, false
	}
	return j.segments[j.matches[j.cursor]], true
}

func (j jumpModel) update(msg tea.Msg) (jumpModel, tea.Cmd) {
	prev := j.input.Value()
	var cmd tea.Cmd
	j.input, cmd = j.input.Update(msg)
	if j.input.Value() != prev {
		j.filter()
	}
	return j, cmd
}

func (j jumpModel) view() string {
	var b strings.Builder
	b.WriteString(j.input.View() + "\n\n")

	if len(j.matches) == 0 {
		b.WriteString(dimStyle.Render("  no matching sections"))
		return b.String()
	}
	for i, n := range j.matches[:min(len(j.matches), maxJumpResults)] {
		label := truncate.StringWithTail(segmentLabel(j.segments[n], n), uint(max(j.width-4, 8)), ellipsis) //nolint:gosec
		if i == j.cursor {
			b.WriteString(jumpSelectedStyle.Render("> "+label) + "\n")
			continue
		}
		b.WriteString("  " + label + "\n")
	}
	return b.String()
}

func segmentLabel(seg source.SegmentMeta, n int) string {
	if seg.Label != "" {
		return seg.Label
	}
	return fmt.Sprintf("Section %d", n+1)
}

type segmentLabels []source.SegmentMeta

func (s segmentLabels) String(i int) string { return segmentLabel(s[i], i) }

func (s segmentLabels) Len() int { return len(s) }

// matchSegments returns the ordinals of segments matching query, best
// match first. An empty query matches every segment in order.
func matchSegments(query string, segments []source.SegmentMeta) []int {
	if strings.TrimSpace(query) == "" {
		all := make([]int, len(segments))
		for i := range all {
			all[i] = i
		}
		return all
	}

	found := fuzzy.FindFrom(query, segmentLabels(segments))
	matches := make([]int, len(found))
	for i, m := range found {
		matches[i] = m.Index
	}
	return matches
}
