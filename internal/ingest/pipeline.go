// Package ingest turns an EPUB archive into a book.Book and publishes it.
//
// A run opens the archive, resolves the package manifest, loads the spine,
// builds the table of contents, sanitizes each document, extracts images and
// projects plain text. Only an unreadable archive, a missing manifest or an
// empty spine fail a run; every other problem is recorded as a Note and
// logged as a warning.
package ingest

import (
	"errors"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// Options holds options for an ingestion run.
type Options struct {
	InputPath string
	// OutputDir is the store root; the book is written to <OutputDir>/<id>_data.
	OutputDir string
	// ThumbnailWidth is the cover thumbnail width in pixels. Zero disables it.
	ThumbnailWidth int
	Logger         logrus.FieldLogger
}

// Extraction is an ingested book that has not been written yet.
type Extraction struct {
	Book   *book.Book
	Images []book.ImageAsset
	Notes  []Note
	// TOCSource is the navigation source the tree was built from.
	TOCSource string
}

// Result describes a published book.
type Result struct {
	Book         *book.Book
	BookID       string
	ArtifactPath string
	Images       []string // relative paths of written images
	Notes        []Note
	TOCSource    string
}

// Pipeline orchestrates one ingestion run.
type Pipeline struct {
	Options Options
	log     logrus.FieldLogger
}

// NewPipeline creates a pipeline. A nil logger means the standard logrus logger.
func NewPipeline(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		Options: opts,
		log:     log.WithField("archive", opts.InputPath),
	}
}

// Ingest runs the pipeline and publishes the result under the default
// options for archivePath and outputDir.
func Ingest(archivePath, outputDir string) (*Result, error) {
	return NewPipeline(Options{
		InputPath:      archivePath,
		OutputDir:      outputDir,
		ThumbnailWidth: defaultThumbnailWidth,
	}).Run()
}

// Run extracts the book and writes it to the store. Nothing is written when
// extraction fails.
func (p *Pipeline) Run() (*Result, error) {
	ex, err := p.Extract()
	if err != nil {
		return nil, err
	}

	id := book.BookID(p.Options.InputPath)
	store := book.NewStore(p.Options.OutputDir)
	artifact, err := store.Publish(id, ex.Book, ex.Images)
	if err != nil {
		return nil, p.fail(ReasonPersist, err)
	}

	images := make([]string, 0, len(ex.Images))
	for _, img := range ex.Images {
		images = append(images, img.Path)
	}
	p.log.WithFields(logrus.Fields{
		"book":     id,
		"chapters": len(ex.Book.Spine),
		"images":   len(images),
		"notes":    len(ex.Notes),
	}).Info("book published")

	return &Result{
		Book:         ex.Book,
		BookID:       id,
		ArtifactPath: artifact,
		Images:       images,
		Notes:        ex.Notes,
		TOCSource:    ex.TOCSource,
	}, nil
}

// Extract reads the archive and builds the book in memory.
func (p *Pipeline) Extract() (*Extraction, error) {
	d := newDiagnostics(p.log)

	reader, err := epub.Open(p.Options.InputPath)
	if err != nil {
		if errors.Is(err, epub.ErrManifestNotFound) {
			return nil, p.fail(ReasonManifest, err)
		}
		return nil, p.fail(ReasonArchive, err)
	}
	defer reader.Close()

	for _, w := range reader.Warnings() {
		d.warn(StageArchive, "", "%s", w)
	}

	opfData, err := reader.ReadFile(reader.OPFPath())
	if err != nil {
		return nil, p.fail(ReasonManifest, err)
	}
	opf, err := epub.ParseOPF(opfData, reader.OPFPath())
	if err != nil {
		return nil, p.fail(ReasonManifest, err)
	}

	metadata := extractMetadata(opf.Metadata, d)

	chapters := resolveSpine(reader, opf, d)
	if len(chapters) == 0 {
		return nil, p.fail(ReasonEmptySpine, ErrEmptySpine)
	}

	spine := make([]book.SpineItem, len(chapters))
	for i, ch := range chapters {
		spine[i] = book.SpineItem{
			Index:  ch.Index,
			ID:     ch.Content.ID,
			Href:   ch.Content.Path,
			Title:  ch.Content.Title,
			Linear: ch.Linear,
		}
	}

	toc, source := p.buildTOC(reader, opf, spine, d)

	images := newImageExtractor(reader, d)
	for i, ch := range chapters {
		doc := ch.Content.Document
		Sanitize(doc)
		images.Rewrite(doc, ch.Content.Path)
		spine[i].Content = bodyHTML(doc)
		spine[i].Text = ProjectText(spine[i].Content)
		if spine[i].Text == "" {
			p.log.WithFields(logrus.Fields{"stage": StageContent, "path": ch.Content.Path}).Debug("document has no text")
		}
	}

	b := &book.Book{
		Metadata: metadata,
		Spine:    spine,
		TOC:      toc,
		Source:   filepath.Base(p.Options.InputPath),
	}
	p.attachCover(b, reader, opf, images, d)

	return &Extraction{
		Book:      b,
		Images:    images.Assets(),
		Notes:     d.notes,
		TOCSource: source,
	}, nil
}

// buildTOC prefers the EPUB 3 navigation document, then the NCX, then one
// entry per spine document. Unreadable navigation files are noted and skipped.
func (p *Pipeline) buildTOC(r epub.FileReader, opf *epub.OPF, spine []book.SpineItem, d *diagnostics) ([]book.TocNode, string) {
	nav, err := epub.LoadNav(r, opf)
	if err != nil {
		d.warn(StageTOC, opf.NavPath, "navigation document unusable: %v", err)
		nav = nil
	}
	ncx, err := epub.LoadNCX(r, opf)
	if err != nil {
		d.warn(StageTOC, opf.NCXPath, "NCX unusable: %v", err)
		ncx = nil
	}

	builder := NewTOCBuilder(spine)
	toc, source := builder.Build(nav, ncx)
	if source != SourceFallback {
		for _, np := range builder.Unresolved() {
			target := np.ContentPath
			if target == "" {
				target = "(unresolvable)"
			}
			d.warn(StageTOC, target, "navigation entry %q does not resolve to a spine document, dropped", np.Label)
		}
	}
	if source == SourceFallback && (nav != nil || ncx != nil) {
		d.warn(StageTOC, "", "no navigation entry resolves to a spine document, using spine order")
	}
	return toc, source
}

// attachCover extracts the detected cover and, when enabled, a thumbnail.
func (p *Pipeline) attachCover(b *book.Book, r epub.FileReader, opf *epub.OPF, images *ImageExtractor, d *diagnostics) {
	cover := opf.ResolveCover(r)
	if cover == nil {
		return
	}
	target, ok := images.Extract(cover.Href)
	if !ok {
		return
	}
	b.Cover = target
	p.log.WithFields(logrus.Fields{"stage": StageImages, "path": cover.Href, "method": cover.DetectionMethod}).Debug("cover detected")

	if !epub.IsRasterImage(cover.MediaType) {
		return
	}
	if accent, err := images.AccentColor(cover.Href); err == nil {
		b.CoverColor = accent
	} else {
		p.log.WithFields(logrus.Fields{"stage": StageImages, "path": cover.Href}).WithError(err).Debug("cover color not extracted")
	}

	if p.Options.ThumbnailWidth <= 0 {
		return
	}
	thumb, err := images.Thumbnail(cover.Href, p.Options.ThumbnailWidth)
	if err != nil {
		d.warn(StageImages, cover.Href, "cover thumbnail not generated: %v", err)
		return
	}
	b.CoverThumbnail = thumb
}

func (p *Pipeline) fail(reason Reason, err error) error {
	p.log.WithField("reason", string(reason)).WithError(err).Error("ingestion failed")
	return &Error{Reason: reason, Archive: p.Options.InputPath, Err: err}
}
