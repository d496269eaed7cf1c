package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/catalog"
	"github.com/yuanying/epubshelf/internal/ingest"
)

type ingestOptions struct {
	loggingOptions
	Inputs         []string
	OutputDir      string
	Jobs           int
	CatalogPath    string
	ThumbnailWidth int
}

func newIngestCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <epub>...",
		Short: "Ingest one or more EPUB files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readIngestOptions(v, cmd, args)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("out", "o", ".", "Books directory to write <name>_data folders into")
	cmd.Flags().IntP("jobs", "j", defaultJobs, "Number of archives ingested in parallel")
	cmd.Flags().String("catalog", "", "SQLite catalog file recording every run (optional)")
	cmd.Flags().Int("thumbnail-width", defaultThumbnailWidth, "Cover thumbnail width in pixels (0 disables)")
	return cmd
}

func readIngestOptions(v *viper.Viper, cmd *cobra.Command, args []string) (ingestOptions, error) {
	logOpts, err := readLoggingOptions(v, cmd)
	if err != nil {
		return ingestOptions{}, err
	}
	opts := ingestOptions{
		loggingOptions: logOpts,
		Inputs:         args,
		OutputDir:      v.GetString("out"),
		Jobs:           v.GetInt("jobs"),
		CatalogPath:    v.GetString("catalog"),
		ThumbnailWidth: v.GetInt("thumbnail-width"),
	}
	if opts.OutputDir == "" {
		return ingestOptions{}, fmt.Errorf("--out must not be empty")
	}
	if opts.Jobs < 1 {
		return ingestOptions{}, fmt.Errorf("--jobs must be at least 1: %d", opts.Jobs)
	}
	if opts.ThumbnailWidth < 0 {
		return ingestOptions{}, fmt.Errorf("--thumbnail-width must not be negative: %d", opts.ThumbnailWidth)
	}
	return opts, nil
}

// ingestOutcome is the result of one archive.
type ingestOutcome struct {
	input  string
	result *ingest.Result
	err    error
}

// runIngest ingests every input, at most opts.Jobs at a time. A failed
// archive does not stop the others; the returned error counts failures.
func runIngest(ctx context.Context, opts ingestOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Logger

	var cat *catalog.Catalog
	if opts.CatalogPath != "" {
		c, err := catalog.Open(opts.CatalogPath)
		if err != nil {
			return err
		}
		defer c.Close()
		cat = c
	}

	outcomes := make([]ingestOutcome, len(opts.Inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, input := range opts.Inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := ingest.NewPipeline(ingest.Options{
				InputPath:      input,
				OutputDir:      opts.OutputDir,
				ThumbnailWidth: opts.ThumbnailWidth,
				Logger:         log,
			}).Run()
			outcomes[i] = ingestOutcome{input: input, result: res, err: err}
			if cat != nil {
				if cerr := record(ctx, cat, input, res, err); cerr != nil {
					log.WithField("archive", input).WithError(cerr).Warn("failed to update catalog")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", o.input, o.err)
			continue
		}
		r := o.result
		fmt.Fprintf(out, "ok   %s  %q (%d chapters, %d images, %d notes, toc from %s)\n",
			r.BookID, r.Book.Title(), r.Book.ChapterCount(), len(r.Images), len(r.Notes), r.TOCSource)
		for _, n := range r.Notes {
			log.WithFields(logrus.Fields{"book": r.BookID, "stage": n.Stage}).Debug(n.String())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, len(outcomes))
	}
	return nil
}

func record(ctx context.Context, cat *catalog.Catalog, input string, res *ingest.Result, runErr error) error {
	if runErr == nil {
		return cat.Record(ctx, catalog.EntryFromBook(res.BookID, res.Book))
	}
	reason, ok := ingest.ReasonOf(runErr)
	if !ok {
		reason = ingest.ReasonArchive
	}
	return cat.RecordFailure(ctx, book.BookID(input), filepath.Base(input), string(reason))
}
