package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/rsvp/internal/playback"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	runewidth "github.com/mattn/go-runewidth"
)

func (m model) statusBarView(b *strings.Builder) {
	snap := m.snap
	showStatusMessage := m.statusMessage != ""

	logo := logoStyle(" RSVP ")
	icon := " " + m.phaseIcon() + " "

	pos := fmt.Sprintf(" %s/%s  %d wpm  %s left ",
		humanize.Comma(int64(min(snap.Index+1, snap.Total))),
		humanize.Comma(int64(snap.Total)),
		snap.WPM,
		formatDuration(remaining(snap)),
	)
	pos = statusBarPosStyle(pos)
	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage
	case snap.Err != nil:
		note = "load failed: " + snap.Err.Error()
	default:
		note = m.locationNote()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(icon)-
			ansi.PrintableRuneWidth(pos)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	style := statusBarNoteStyle
	switch {
	case showStatusMessage:
		style = statusBarMessageStyle
	case snap.Err != nil:
		style = statusBarErrorStyle
	}
	icon = style(icon)
	note = style(note)

	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(icon)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(pos)-
			ansi.PrintableRuneWidth(helpNote),
	)

	fmt.Fprintf(b, "%s%s%s%s%s%s",
		logo,
		icon,
		note,
		style(strings.Repeat(" ", padding)),
		pos,
		helpNote,
	)
}

func (m model) phaseIcon() string {
	snap := m.snap
	if snap.Stalled {
		return m.spinner.View()
	}
	switch snap.Phase {
	case playback.Playing:
		return "▶"
	case playback.Paused:
		return "⏸"
	case playback.Scrubbing:
		if snap.Scrub < 0 {
			return "⏪"
		}
		return "⏩"
	case playback.Completed:
		return "✓"
	default:
		return "■"
	}
}

// locationNote names the document and the section being read.
func (m model) locationNote() string {
	title := m.session.Doc.Title
	n, seg, ok := m.session.Reader.SegmentForIndex(m.snap.Index)
	if !ok || len(m.session.Reader.Segments()) < 2 {
		return title
	}
	return title + " · " + segmentLabel(seg, n)
}

// remaining estimates the reading time left at the current rate.
func remaining(snap playback.Snapshot) time.Duration {
	words := max(snap.Total-snap.Index-1, 0)
	if snap.WPM <= 0 {
		return 0
	}
	return prosody.Millis(float64(words) * prosody.ComputeBaseDelay(snap.WPM))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func (m model) helpView() (s string) {
	col1 := []string{
		"space    play/pause",
		"←/h      previous word",
		"→/l      next word",
		"↑/k      faster",
		"↓/j      slower",
	}
	col2 := []string{
		"[ ]      scrub back/forward",
		"g        go to section",
		"home/end first/last word",
		"y        copy word",
		"q        quit",
	}

	s += "\n"
	for i := range col1 {
		s += col1[i] + strings.Repeat(" ", max(28-runewidth.StringWidth(col1[i]), 2)) + col2[i] + "\n"
	}
	s = indent.String(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}
