package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dgnsrekt/rsvp/internal/document"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dustin/go-humanize"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	formatAuto = "auto"
	formatJSON = "json"
	formatText = "txt"
)

var (
	analyzeOutput   string
	analyzeFormat   string
	analyzeProvider string

	analyzeCmd = &cobra.Command{
		Use:     "analyze FILE",
		Short:   "Compute word timings for a document",
		Long:    paragraph(fmt.Sprintf("\n%s a text or markdown file into timed words. The JSON output can be read directly by rsvp or any other reader that accepts prosody files.", keyword("Analyze"))),
		Example: paragraph("rsvp analyze book.md -o book.json\nrsvp analyze notes.txt --format txt --wpm 450"),
		Args:    cobra.ExactArgs(1),
		RunE:    runAnalyze,
	}
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	path, err := homedir.Expand(args[0])
	if err != nil {
		return fmt.Errorf("unable to expand path: %w", err)
	}
	text, err := document.ReadText(path)
	if err != nil {
		return err
	}

	provider, err := prosody.NewRegistry().Lookup(analyzeProvider)
	if err != nil {
		return err
	}
	opts := prosody.Options{WPM: cfg.WPM, Sensitivity: cfg.Sensitivity}
	res, err := provider.Analyze(cmd.Context(), text, opts)
	if err != nil {
		return fmt.Errorf("unable to analyze %s: %w", path, err)
	}

	var w io.Writer = os.Stdout
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if analyzeOutput != "" && analyzeOutput != "-" {
		out, err := homedir.Expand(analyzeOutput)
		if err != nil {
			return fmt.Errorf("unable to expand path: %w", err)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("unable to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
		isTerminal = false
	}

	format, err := resolveFormat(analyzeFormat, isTerminal)
	if err != nil {
		return err
	}
	return writeResult(w, res, format)
}

// resolveFormat picks text for terminals and JSON for files and pipes
// when the format is auto.
func resolveFormat(format string, isTerminal bool) (string, error) {
	switch format {
	case formatJSON, formatText:
		return format, nil
	case formatAuto, "":
		if isTerminal {
			return formatText, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q: use %s, %s or %s", format, formatJSON, formatText, formatAuto)
	}
}

func writeResult(w io.Writer, res *prosody.Result, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("unable to write result: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWORD\tMS\tPAUSE\tEMPHASIS\tTONE")
	var total time.Duration
	for i, word := range res.Words {
		info := prosody.DefaultInfo()
		if word.Prosody != nil {
			info = *word.Prosody
		}
		total += word.Duration()
		fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.2f\t%s\t%s\n",
			i+1, word.Text, word.DisplayMillis(), info.Pause, info.Emphasis, info.Tone)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("unable to write result: %w", err)
	}

	summary := []string{
		humanize.Comma(int64(res.Metadata.WordCount)) + " words",
		fmt.Sprintf("%.2f avg length", res.Metadata.AvgWordLength),
		humanize.Comma(int64(res.Metadata.TotalPauses)) + " pauses",
		humanize.Comma(int64(res.Metadata.EmphasisCount)) + " emphasized",
		fmt.Sprintf("%s at %d wpm", total.Round(time.Second), res.WPM),
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", strings.Join(summary, " · ")); err != nil {
		return fmt.Errorf("unable to write result: %w", err)
	}
	return nil
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write to file instead of stdout")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", formatAuto, "output format: json, txt or auto")
	analyzeCmd.Flags().StringVarP(&analyzeProvider, "provider", "p", "rule-based", "prosody provider")
}
