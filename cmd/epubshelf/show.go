package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/ingest"
	"github.com/yuanying/epubshelf/internal/library"
)

func newShowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id> [chapter]",
		Short: "Show a book's contents, or one chapter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readLibraryOptions(v, cmd)
			if err != nil {
				return err
			}
			lib, err := opts.open()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return showBook(lib, args[0], cmd.OutOrStdout())
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("chapter must be an integer: %q", args[1])
			}
			return showChapter(lib, args[0], index, v.GetString("anchor"), v.GetBool("html"), cmd.OutOrStdout())
		},
	}
	addLibraryFlags(cmd)
	cmd.Flags().String("anchor", "", "Only show the section starting at this anchor")
	cmd.Flags().Bool("html", false, "Print sanitized markup instead of plain text")
	return cmd
}

func showBook(lib *library.Library, id string, out io.Writer) error {
	b, err := lib.Book(id)
	if err != nil {
		return err
	}
	md := b.Metadata
	fmt.Fprintf(out, "Title:    %s\n", md.Title)
	if len(md.Authors) > 0 {
		fmt.Fprintf(out, "Authors:  %s\n", strings.Join(md.Authors, ", "))
	}
	fmt.Fprintf(out, "Language: %s\n", md.Language)
	for _, scheme := range slices.Sorted(maps.Keys(md.Identifiers)) {
		fmt.Fprintf(out, "ID:       %s %s\n", scheme, md.Identifiers[scheme])
	}
	if b.Cover != "" {
		fmt.Fprintf(out, "Cover:    %s\n", b.Cover)
	}
	if b.CoverColor != "" {
		fmt.Fprintf(out, "Accent:   %s\n", b.CoverColor)
	}
	fmt.Fprintf(out, "Chapters: %d\n\nContents:\n", b.ChapterCount())
	b.Walk(func(n book.TocNode, depth int) {
		fmt.Fprintf(out, "%s%s [%d]\n", strings.Repeat("  ", depth+1), n.Label, n.SpineIndex)
	})
	return nil
}

func showChapter(lib *library.Library, id string, index int, anchor string, markup bool, out io.Writer) error {
	ch, err := lib.Chapter(id, index, anchor)
	if err != nil {
		return err
	}
	b, err := lib.Book(id)
	if err != nil {
		return err
	}
	prev, next, err := library.Neighbors(b, index)
	if err != nil {
		return err
	}

	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("Chapter %d", index+1)
	}
	fmt.Fprintf(out, "# %s (%d/%d)\n\n", title, index+1, b.ChapterCount())
	switch {
	case markup:
		fmt.Fprintln(out, ch.Content)
	case anchor != "":
		// Text covers the whole chapter.
		fmt.Fprintln(out, ingest.ProjectText(ch.Content))
	default:
		fmt.Fprintln(out, ch.Text)
	}
	fmt.Fprintf(out, "\nprev: %s  next: %s\n", chapterRef(prev), chapterRef(next))
	return nil
}

func chapterRef(i int) string {
	if i < 0 {
		return "-"
	}
	return strconv.Itoa(i)
}
