// Package book holds the normalized representation of an ingested EPUB and
// its persisted form.
//
// A Book is built once by the ingestion pipeline and never mutated
// afterwards. TOC nodes address chapters by spine index, so the tree holds no
// references into the spine.
package book

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is matched by every *IndexError.
var ErrIndexOutOfRange = errors.New("book: spine index out of range")

// Metadata is the descriptive information from the package manifest.
type Metadata struct {
	Title       string            `json:"title"`
	Authors     []string          `json:"authors,omitempty"`
	Language    string            `json:"language"`
	Identifiers map[string]string `json:"identifiers,omitempty"` // scheme -> value
	Subjects    []string          `json:"subjects,omitempty"`    // sorted, unique
	Publisher   string            `json:"publisher,omitempty"`
	Date        string            `json:"date,omitempty"`
	Description string            `json:"description,omitempty"`
	Rights      string            `json:"rights,omitempty"`
}

// SpineItem is one entry of the linear reading order.
type SpineItem struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Href    string `json:"href"` // original archive path
	Title   string `json:"title,omitempty"`
	Linear  bool   `json:"linear"`
	Content string `json:"content"` // sanitized markup, image references rewritten
	Text    string `json:"text"`
}

// TocNode is one entry of the navigation tree.
type TocNode struct {
	Label      string    `json:"label"`
	SpineIndex int       `json:"spine_index"`
	Children   []TocNode `json:"children,omitempty"`
}

// ImageAsset is an image copied out of the archive. Data is only held until
// the asset has been written.
type ImageAsset struct {
	Source string `json:"source"` // archive path
	Path   string `json:"path"`   // "images/<name>"
	Data   []byte `json:"-"`
}

// Book is the root artifact of an ingestion run.
type Book struct {
	Metadata       Metadata    `json:"metadata"`
	Spine          []SpineItem `json:"spine"`
	TOC            []TocNode   `json:"toc"`
	Cover          string      `json:"cover,omitempty"`
	CoverThumbnail string      `json:"cover_thumbnail,omitempty"`
	CoverColor     string      `json:"cover_color,omitempty"` // "#rrggbb"
	Source         string      `json:"source"`                // archive file name
}

// IndexError reports a spine lookup outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("book: spine index %d out of range [0, %d)", e.Index, e.Len)
}

// Is makes errors.Is(err, ErrIndexOutOfRange) hold.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// Title returns the book title, possibly empty.
func (b *Book) Title() string { return b.Metadata.Title }

// Authors returns the authors in manifest order.
func (b *Book) Authors() []string { return b.Metadata.Authors }

// Language returns the declared language or "unknown".
func (b *Book) Language() string { return b.Metadata.Language }

// ChapterCount is the length of the spine.
func (b *Book) ChapterCount() int { return len(b.Spine) }

// Chapter returns the spine item at index i.
func (b *Book) Chapter(i int) (SpineItem, error) {
	if i < 0 || i >= len(b.Spine) {
		return SpineItem{}, &IndexError{Index: i, Len: len(b.Spine)}
	}
	return b.Spine[i], nil
}

// Contents returns the root-level TOC entries.
func (b *Book) Contents() []TocNode { return b.TOC }

// Walk visits every TOC node depth-first in declared order. depth is 0 for
// root entries.
func (b *Book) Walk(fn func(n TocNode, depth int)) {
	var walk func(nodes []TocNode, depth int)
	walk = func(nodes []TocNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(b.TOC, 0)
}
