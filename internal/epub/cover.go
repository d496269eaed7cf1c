package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "guide-page", "filename"
}

// DetectCover detects the cover image from the OPF manifest using multiple methods.
// Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" (matched to image manifest items)
//  4. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns nil if no cover image is found.
func (opf *OPF) DetectCover() *CoverInfo {
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if item.HasProperty("cover-image") && IsImageMediaType(item.MediaType) {
			return newCoverInfo(item, "properties")
		}
	}

	if opf.Metadata.CoverID != "" {
		if item, ok := opf.Manifest[opf.Metadata.CoverID]; ok && IsImageMediaType(item.MediaType) {
			return newCoverInfo(item, "meta")
		}
	}

	for _, ref := range opf.Guide {
		if ref.Type != "cover" {
			continue
		}
		guideHref, _ := splitFragment(ref.Href)
		for _, id := range opf.ManifestOrder {
			item := opf.Manifest[id]
			if IsRasterImage(item.MediaType) && item.Href == guideHref {
				return newCoverInfo(item, "guide")
			}
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !IsRasterImage(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return newCoverInfo(item, "filename")
		}
	}

	return nil
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// IsImageMediaType reports whether mediaType names any image format.
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// IsRasterImage checks if a media type is a raster image (SVG excluded).
func IsRasterImage(mediaType string) bool {
	return IsImageMediaType(mediaType) && mediaType != "image/svg+xml"
}

// IsXHTML checks if a media type indicates an (X)HTML content document.
func IsXHTML(mediaType string) bool {
	return strings.Contains(mediaType, "html")
}

// ResolveCover is DetectCover with one more source: a guide cover that
// points at an XHTML page yields the first image that page shows. The page
// outranks the filename heuristic.
func (opf *OPF) ResolveCover(r FileReader) *CoverInfo {
	cover := opf.DetectCover()
	if r == nil || (cover != nil && cover.DetectionMethod != "filename") {
		return cover
	}
	if page := opf.coverFromGuidePage(r); page != nil {
		return page
	}
	return cover
}

func (opf *OPF) coverFromGuidePage(r FileReader) *CoverInfo {
	for _, ref := range opf.Guide {
		if ref.Type != "cover" {
			continue
		}
		pagePath, _ := splitFragment(ref.Href)
		page, ok := opf.itemByHref(pagePath)
		if !ok || !IsXHTML(page.MediaType) {
			continue
		}
		data, err := r.ReadFile(page.Href)
		if err != nil {
			continue
		}
		content, err := LoadContent(page.ID, page.Href, data)
		if err != nil || len(content.ImageRefs) == 0 {
			continue
		}
		if img, ok := opf.itemByHref(content.ImageRefs[0]); ok && IsImageMediaType(img.MediaType) {
			return newCoverInfo(img, "guide-page")
		}
	}
	return nil
}

func (opf *OPF) itemByHref(href string) (ManifestItem, bool) {
	for _, id := range opf.ManifestOrder {
		if item := opf.Manifest[id]; item.Href == href {
			return item, true
		}
	}
	return ManifestItem{}, false
}
