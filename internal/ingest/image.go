package ingest

import (
	"bytes"
	"fmt"
	"image"
	"path"
	"strings"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/PuerkitoBio/goquery"
	"github.com/disintegration/imaging"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

const (
	defaultThumbnailWidth = 240
	thumbnailJPEGQuality  = 85
	maxDecodePixels       = 100 * 1000 * 1000 // 100 megapixels
	accentSampleSize      = 80
)

// ImageExtractor copies referenced images out of the archive under unique
// flat names and rewrites references to point at the copies. Each archive
// path is extracted at most once.
type ImageExtractor struct {
	reader   epub.FileReader
	diag     *diagnostics
	bySource map[string]string // archive path -> images/<name>
	failed   map[string]bool
	taken    map[string]bool // lowercased names in use
	assets   []book.ImageAsset
}

func newImageExtractor(r epub.FileReader, d *diagnostics) *ImageExtractor {
	return &ImageExtractor{
		reader:   r,
		diag:     d,
		bySource: make(map[string]string),
		failed:   make(map[string]bool),
		taken:    make(map[string]bool),
	}
}

// Rewrite extracts every image referenced from doc, which lives at docPath
// in the archive, and points the references at the extracted copies.
// References that cannot be resolved are left untouched.
func (x *ImageExtractor) Rewrite(doc *goquery.Document, docPath string) {
	doc.Find("img[src], image").Each(func(_ int, s *goquery.Selection) {
		ref, ok := epub.ImageSource(s)
		if !ok || epub.IsExternal(ref) {
			return
		}
		resolved, _, ok := epub.ResolveHref(docPath, ref)
		if !ok {
			x.diag.warn(StageImages, docPath, "image reference %q cannot be resolved", ref)
			return
		}
		if target, ok := x.Extract(resolved); ok {
			setImageSource(s, target)
		}
	})
}

// Extract copies the archive entry at source and returns its relative
// output path. Repeated calls for the same source return the same path.
func (x *ImageExtractor) Extract(source string) (string, bool) {
	if target, ok := x.bySource[source]; ok {
		return target, true
	}
	if x.failed[source] {
		return "", false
	}
	data, err := x.reader.ReadFile(source)
	if err != nil {
		x.failed[source] = true
		x.diag.warn(StageImages, source, "image not extracted: %v", err)
		return "", false
	}
	target := path.Join(book.ImagesDir, x.reserve(path.Base(source)))
	x.bySource[source] = target
	x.assets = append(x.assets, book.ImageAsset{Source: source, Path: target, Data: data})
	return target, true
}

// Thumbnail decodes the image at source and stores a JPEG copy fitted into
// width x 1.5*width. Smaller images are not enlarged.
func (x *ImageExtractor) Thumbnail(source string, width int) (string, error) {
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	img, err := x.decode(source)
	if err != nil {
		return "", err
	}
	thumb := imaging.Fit(img, width, width*3/2, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return "", fmt.Errorf("jpeg encode failed: %w", err)
	}

	stem := strings.TrimSuffix(path.Base(source), path.Ext(source))
	target := path.Join(book.ImagesDir, x.reserve(stem+"-thumb.jpg"))
	x.assets = append(x.assets, book.ImageAsset{Source: source, Path: target, Data: buf.Bytes()})
	return target, nil
}

// AccentColor returns the most prominent color of a raster image as
// "#rrggbb". Near-white, near-black and green-screen pixels are ignored
// unless nothing else remains.
func (x *ImageExtractor) AccentColor(source string) (string, error) {
	img, err := x.decode(source)
	if err != nil {
		return "", err
	}
	small := imaging.Fit(img, accentSampleSize, accentSampleSize, imaging.Box)

	colors, err := prominentcolor.KmeansWithAll(prominentcolor.DefaultK, small,
		prominentcolor.ArgumentNoCropping, accentSampleSize, prominentcolor.GetDefaultMasks())
	if err != nil || len(colors) == 0 {
		colors, err = prominentcolor.KmeansWithAll(prominentcolor.DefaultK, small,
			prominentcolor.ArgumentNoCropping, accentSampleSize, nil)
	}
	if err != nil {
		return "", fmt.Errorf("color extraction failed: %w", err)
	}
	if len(colors) == 0 {
		return "", fmt.Errorf("no colors extracted")
	}
	c := colors[0].Color
	return fmt.Sprintf("#%02x%02x%02x", uint8(c.R), uint8(c.G), uint8(c.B)), nil
}

// decode reads and decodes a raster image, refusing oversized ones before
// any pixel data is allocated.
func (x *ImageExtractor) decode(source string) (image.Image, error) {
	data, err := x.reader.ReadFile(source)
	if err != nil {
		return nil, err
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if pixels := uint64(cfg.Width) * uint64(cfg.Height); pixels > maxDecodePixels {
			return nil, fmt.Errorf("image too large to decode: %dx%d", cfg.Width, cfg.Height)
		}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	return img, nil
}

// Assets returns the extracted images in extraction order.
func (x *ImageExtractor) Assets() []book.ImageAsset {
	return x.assets
}

// reserve returns a filesystem-safe name derived from base that no earlier
// image uses, ignoring case. Collisions get -1, -2, ... before the extension.
func (x *ImageExtractor) reserve(base string) string {
	name := book.SafeName(base, "image")
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := stem + ext
	for n := 1; x.taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
	x.taken[strings.ToLower(candidate)] = true
	return candidate
}

// setImageSource replaces the reference attribute of an <img> or SVG <image>.
func setImageSource(s *goquery.Selection, target string) {
	if goquery.NodeName(s) == "img" {
		s.SetAttr("src", target)
		return
	}
	node := s.Get(0)
	for i, attr := range node.Attr {
		if attr.Key == "href" || attr.Key == "xlink:href" {
			node.Attr[i].Val = target
		}
	}
}
