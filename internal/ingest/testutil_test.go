package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

type testEntry struct {
	name string
	body []byte
}

func textEntry(name, body string) testEntry {
	return testEntry{name: name, body: []byte(body)}
}

// writeEPUB writes mimetype, container.xml and the given entries into dir/name.
func writeEPUB(t *testing.T, dir, name string, entries ...testEntry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	all := append([]testEntry{
		textEntry("mimetype", "application/epub+zip"),
		textEntry("META-INF/container.xml", testContainerXML),
	}, entries...)
	for i, e := range all {
		method := zip.Deflate
		if i == 0 {
			method = zip.Store
		}
		ew, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", e.name, err)
		}
		if _, err := ew.Write(e.body); err != nil {
			t.Fatalf("failed to write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return p
}

// opfDoc renders a package document. manifest and spine are raw XML.
func opfDoc(metadata, manifest, spine string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">%s</metadata>
  <manifest>%s</manifest>
  <spine>%s</spine>
</package>`, metadata, manifest, spine)
}

// xhtmlDoc renders a content document with the given title and body markup.
func xhtmlDoc(title, body string) string {
	head := ""
	if title != "" {
		head = "<title>" + title + "</title>"
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>` + head + `</head>
<body>` + body + `</body>
</html>`
}

// pngBytes encodes a solid w x h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// mapReader serves archive entries from memory.
type mapReader map[string][]byte

func (m mapReader) ReadFile(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func parseTestHTML(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}
	return doc
}

// testDiagnostics returns diagnostics whose log entries are captured by hook.
func testDiagnostics() (*diagnostics, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return newDiagnostics(logger), hook
}
