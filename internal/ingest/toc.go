package ingest

import (
	"fmt"
	"strings"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// maxTOCDepth bounds the depth of the resolved tree.
const maxTOCDepth = 64

// TOC sources, in order of preference.
const (
	SourceNav      = "nav"
	SourceNCX      = "ncx"
	SourceFallback = "spine"
)

// TOCBuilder resolves navigation entries against the reading order.
type TOCBuilder struct {
	spine      []book.SpineItem
	exact      map[string]int
	lower      map[string]int
	unresolved []epub.NavPoint
}

// NewTOCBuilder indexes spine documents by archive path. When a document
// occurs more than once in the spine, its first occurrence wins.
func NewTOCBuilder(spine []book.SpineItem) *TOCBuilder {
	b := &TOCBuilder{
		spine: spine,
		exact: make(map[string]int, len(spine)),
		lower: make(map[string]int, len(spine)),
	}
	for _, item := range spine {
		if _, ok := b.exact[item.Href]; !ok {
			b.exact[item.Href] = item.Index
		}
		key := strings.ToLower(item.Href)
		if _, ok := b.lower[key]; !ok {
			b.lower[key] = item.Index
		}
	}
	return b
}

// Build returns the tree from the first of nav and ncx that resolves at least
// one entry, and the name of that source. Either may be nil. When neither
// resolves, one entry per spine document is produced.
func (b *TOCBuilder) Build(nav, ncx *epub.NCX) ([]book.TocNode, string) {
	if nav != nil {
		if nodes := b.Resolve(nav.NavPoints); len(nodes) > 0 {
			return nodes, SourceNav
		}
	}
	if ncx != nil {
		if nodes := b.Resolve(ncx.NavPoints); len(nodes) > 0 {
			return nodes, SourceNCX
		}
	}
	return b.Fallback(), SourceFallback
}

// Resolve maps navigation points onto spine indices. Entries whose target is
// not in the spine are dropped and their resolved children take their place.
// An entry that repeats a target already open on its branch becomes a leaf.
func (b *TOCBuilder) Resolve(points []epub.NavPoint) []book.TocNode {
	b.unresolved = nil
	return b.resolve(points, make(map[string]bool), 0)
}

// Unresolved returns the entries dropped by the last call to Resolve.
func (b *TOCBuilder) Unresolved() []epub.NavPoint {
	return b.unresolved
}

func (b *TOCBuilder) resolve(points []epub.NavPoint, open map[string]bool, depth int) []book.TocNode {
	if depth >= maxTOCDepth {
		return nil
	}
	var out []book.TocNode
	for _, np := range points {
		idx, ok := b.lookup(np.ContentPath)
		if !ok {
			b.unresolved = append(b.unresolved, np)
			out = append(out, b.resolve(np.Children, open, depth+1)...)
			continue
		}
		node := book.TocNode{Label: b.label(np.Label, idx), SpineIndex: idx}
		key := np.ContentPath + "#" + np.Fragment
		if !open[key] {
			open[key] = true
			node.Children = b.resolve(np.Children, open, depth+1)
			delete(open, key)
		}
		out = append(out, node)
	}
	return out
}

// Fallback produces one flat entry per spine document.
func (b *TOCBuilder) Fallback() []book.TocNode {
	nodes := make([]book.TocNode, 0, len(b.spine))
	for _, item := range b.spine {
		nodes = append(nodes, book.TocNode{Label: b.label("", item.Index), SpineIndex: item.Index})
	}
	return nodes
}

func (b *TOCBuilder) lookup(href string) (int, bool) {
	if href == "" {
		return 0, false
	}
	if idx, ok := b.exact[href]; ok {
		return idx, true
	}
	idx, ok := b.lower[strings.ToLower(href)]
	return idx, ok
}

// label falls back to the document title, then to "Chapter N".
func (b *TOCBuilder) label(label string, idx int) string {
	if label = strings.TrimSpace(label); label != "" {
		return label
	}
	if idx >= 0 && idx < len(b.spine) && b.spine[idx].Title != "" {
		return b.spine[idx].Title
	}
	return fmt.Sprintf("Chapter %d", idx+1)
}
