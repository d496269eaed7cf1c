package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuanying/epubshelf/internal/catalog"
	"github.com/yuanying/epubshelf/internal/library"
)

type libraryOptions struct {
	loggingOptions
	BooksDir    string
	CacheSize   int
	CatalogPath string
}

func addLibraryFlags(cmd *cobra.Command) {
	cmd.Flags().String("books-dir", ".", "Books directory holding <name>_data folders")
	cmd.Flags().Int("cache-size", defaultCacheSize, "Number of loaded books kept in memory")
}

func readLibraryOptions(v *viper.Viper, cmd *cobra.Command) (libraryOptions, error) {
	logOpts, err := readLoggingOptions(v, cmd)
	if err != nil {
		return libraryOptions{}, err
	}
	opts := libraryOptions{
		loggingOptions: logOpts,
		BooksDir:       v.GetString("books-dir"),
		CacheSize:      v.GetInt("cache-size"),
		CatalogPath:    v.GetString("catalog"),
	}
	if opts.CacheSize < 1 {
		return libraryOptions{}, fmt.Errorf("--cache-size must be at least 1: %d", opts.CacheSize)
	}
	return opts, nil
}

func (o libraryOptions) open() (*library.Library, error) {
	return library.New(library.Options{
		BooksDir:  o.BooksDir,
		CacheSize: o.CacheSize,
		Logger:    o.Logger,
	})
}

func newListCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readLibraryOptions(v, cmd)
			if err != nil {
				return err
			}
			if opts.CatalogPath != "" {
				return listCatalog(cmd.Context(), opts.CatalogPath, cmd.OutOrStdout())
			}
			return listLibrary(opts, cmd.OutOrStdout())
		},
	}
	addLibraryFlags(cmd)
	cmd.Flags().String("catalog", "", "List from this SQLite catalog instead of scanning --books-dir")
	return cmd
}

func listLibrary(opts libraryOptions, out io.Writer) error {
	lib, err := opts.open()
	if err != nil {
		return err
	}
	books, err := lib.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tCHAPTERS")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.ID, b.Title, b.Author, b.Chapters)
	}
	return tw.Flush()
}

func listCatalog(ctx context.Context, path string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tCHAPTERS\tSTATUS")
	for _, e := range entries {
		status := e.Status
		if e.Reason != "" {
			status += " (" + e.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.ID, e.Title, strings.Join(e.Authors, ", "), e.Chapters, status)
	}
	return tw.Flush()
}
