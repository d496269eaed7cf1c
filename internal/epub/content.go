package epub

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Content represents a parsed XHTML content file
type Content struct {
	ID        string            // Manifest ID
	Path      string            // File path
	Document  *goquery.Document // Parsed HTML document
	Title     string            // <title> text, else the first heading; whitespace collapsed
	ImageRefs []string          // Referenced image paths, resolved to archive paths
}

// imageSelector matches HTML images and SVG <image> elements.
const imageSelector = "img[src], image"

// LoadContent loads and parses an XHTML content file
// id: manifest item ID
// path: file path within EPUB (used for relative path resolution)
// content: XHTML file content
func LoadContent(id, path string, content []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decodeDocument(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		ID:        id,
		Path:      path,
		Document:  doc,
		ImageRefs: []string{},
	}

	if t := doc.Find("head title").First(); t.Length() > 0 {
		c.Title = collapseSpace(t.Text())
	} else if t := doc.Find("title").First(); t.Length() > 0 {
		c.Title = collapseSpace(t.Text())
	}
	if c.Title == "" {
		c.Title = collapseSpace(doc.Find("body h1, body h2, body h3, body h4, body h5, body h6").First().Text())
	}

	doc.Find(imageSelector).Each(func(_ int, s *goquery.Selection) {
		if ref, ok := ImageSource(s); ok {
			if resolved, _, ok := ResolveHref(path, ref); ok {
				c.ImageRefs = append(c.ImageRefs, resolved)
			}
		}
	})

	return c, nil
}

// ImageSource returns the reference held by an <img> or SVG <image> element.
func ImageSource(s *goquery.Selection) (string, bool) {
	if goquery.NodeName(s) == "img" {
		return s.Attr("src")
	}
	if v, ok := s.Attr("xlink:href"); ok {
		return v, true
	}
	return s.Attr("href")
}
