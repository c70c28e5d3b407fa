package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dgnsrekt/rsvp/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var booksCmd = &cobra.Command{
	Use:     "books",
	Short:   "List documents and reading progress",
	Long:    paragraph(fmt.Sprintf("\n%s every document opened with rsvp, most recently read first.", keyword("List"))),
	Args:    cobra.NoArgs,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		books, err := st.Books(cmd.Context())
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books yet. Open one with: rsvp FILE")
			return nil
		}

		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Headers("TITLE", "PROGRESS", "WORDS", "LAST READ", "PATH")
		for _, b := range books {
			pos, err := st.Position(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			last := "never"
			if !pos.UpdatedAt.IsZero() {
				last = humanize.Time(pos.UpdatedAt)
			}
			t.Row(b.Title, progress(pos.Index, b.WordCount), humanize.Comma(int64(b.WordCount)), last, b.Path)
		}
		fmt.Println(t)
		return nil
	},
}

func progress(index, total int) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", min(100, (index+1)*100/total))
}
