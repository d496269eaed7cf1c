package ingest

import (
	"github.com/yuanying/epubshelf/internal/epub"
)

// chapter is a spine document that resolved and parsed. Index is dense
// over the accepted documents.
type chapter struct {
	Index   int
	Linear  bool
	Content *epub.Content
}

// resolveSpine loads the reading-order documents. Items naming an unknown
// manifest id, non-markup media, or unreadable entries are skipped and noted.
func resolveSpine(r epub.FileReader, opf *epub.OPF, d *diagnostics) []chapter {
	var chapters []chapter
	for _, ref := range opf.Spine {
		item, ok := opf.Manifest[ref.IDRef]
		if !ok {
			d.warn(StageSpine, ref.IDRef, "spine item not found in manifest, skipping")
			continue
		}
		if !epub.IsXHTML(item.MediaType) {
			d.warn(StageSpine, item.Href, "spine item has media type %q, skipping", item.MediaType)
			continue
		}
		data, err := r.ReadFile(item.Href)
		if err != nil {
			d.warn(StageSpine, item.Href, "failed to read: %v, skipping", err)
			continue
		}
		content, err := epub.LoadContent(item.ID, item.Href, data)
		if err != nil {
			d.warn(StageSpine, item.Href, "failed to parse: %v, skipping", err)
			continue
		}
		chapters = append(chapters, chapter{
			Index:   len(chapters),
			Linear:  ref.Linear,
			Content: content,
		})
	}
	return chapters
}
