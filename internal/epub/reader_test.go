package epub

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_ValidEPUB(t *testing.T) {
	epubPath := createTestEPUB(t, t.TempDir())

	reader, err := Open(epubPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	if reader.OPFPath() != "OEBPS/content.opf" {
		t.Errorf("OPFPath() = %q, want %q", reader.OPFPath(), "OEBPS/content.opf")
	}
	if len(reader.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", reader.Warnings())
	}

	want := []string{"META-INF/container.xml", "OEBPS/chapter1.xhtml", "OEBPS/content.opf", "mimetype"}
	got := reader.Entries()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Entries() = %v, want %v", got, want)
	}

	data, err := reader.ReadFile("OEBPS/chapter1.xhtml")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "Hello, World!") {
		t.Errorf("ReadFile() content mismatch: %s", data)
	}
}

func TestOpen_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.epub")
	if err := os.WriteFile(p, []byte("this is not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(p)
	if !errors.Is(err, ErrArchive) {
		t.Fatalf("Open() error = %v, want ErrArchive", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.epub"))
	if !errors.Is(err, ErrArchive) {
		t.Fatalf("Open() error = %v, want ErrArchive", err)
	}
}

func TestOpen_NoContainer(t *testing.T) {
	p := writeTestZip(t, t.TempDir(), "no_container.epub", []testEntry{
		{name: "mimetype", body: "application/epub+zip", stored: true},
		{name: "OEBPS/content.opf", body: testOPF},
	})

	_, err := Open(p)
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("Open() error = %v, want ErrManifestNotFound", err)
	}
}

func TestOpen_ContainerWithoutRootfile(t *testing.T) {
	p := writeTestZip(t, t.TempDir(), "empty_container.epub", []testEntry{
		{name: "META-INF/container.xml", body: `<container><rootfiles></rootfiles></container>`},
	})

	_, err := Open(p)
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("Open() error = %v, want ErrManifestNotFound", err)
	}
}

func TestOpen_MimetypeProblemsAreWarnings(t *testing.T) {
	tests := []struct {
		name    string
		entries []testEntry
		want    string
	}{
		{
			name: "missing",
			entries: []testEntry{
				{name: "META-INF/container.xml", body: testContainerXML},
			},
			want: "mimetype entry missing",
		},
		{
			name: "compressed",
			entries: []testEntry{
				{name: "mimetype", body: "application/epub+zip"},
				{name: "META-INF/container.xml", body: testContainerXML},
			},
			want: "mimetype entry is compressed",
		},
		{
			name: "wrong value",
			entries: []testEntry{
				{name: "mimetype", body: "text/plain", stored: true},
				{name: "META-INF/container.xml", body: testContainerXML},
			},
			want: `unexpected mimetype "text/plain"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeTestZip(t, t.TempDir(), "book.epub", tt.entries)
			reader, err := Open(p)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer reader.Close()

			found := false
			for _, w := range reader.Warnings() {
				if w == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Warnings() = %v, want %q", reader.Warnings(), tt.want)
			}
		})
	}
}

func TestReadFile_CaseInsensitiveFallback(t *testing.T) {
	reader, err := Open(createTestEPUB(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadFile("oebps/Chapter1.XHTML"); err != nil {
		t.Errorf("ReadFile() case-insensitive lookup error = %v", err)
	}
	if !reader.Has("./OEBPS/chapter1.xhtml") {
		t.Error("Has() should normalize ./ prefix")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	reader, err := Open(createTestEPUB(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	_, err = reader.ReadFile("OEBPS/missing.xhtml")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("ReadFile() error = %v, want ErrEntryNotFound", err)
	}
}

func TestReadFile_SizeLimit(t *testing.T) {
	reader, err := Open(createTestEPUB(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	reader.limit = 8
	if _, err := reader.ReadFile("OEBPS/chapter1.xhtml"); err == nil {
		t.Fatal("ReadFile() should fail for entries above the size limit")
	}
}

func TestResolveHref(t *testing.T) {
	tests := []struct {
		name         string
		base         string
		href         string
		wantPath     string
		wantFragment string
		wantOK       bool
	}{
		{"sibling", "OEBPS/text/ch1.xhtml", "ch2.xhtml", "OEBPS/text/ch2.xhtml", "", true},
		{"parent dir", "OEBPS/text/ch1.xhtml", "../images/a.jpg", "OEBPS/images/a.jpg", "", true},
		{"fragment", "OEBPS/nav.xhtml", "text/ch1.xhtml#sec1", "OEBPS/text/ch1.xhtml", "sec1", true},
		{"same document", "OEBPS/ch1.xhtml", "#note", "OEBPS/ch1.xhtml", "note", true},
		{"percent encoded", "OEBPS/content.opf", "Text/chapter%201.xhtml", "OEBPS/Text/chapter 1.xhtml", "", true},
		{"query dropped", "OEBPS/ch1.xhtml", "img.png?v=2", "OEBPS/img.png", "", true},
		{"escapes root", "OEBPS/ch1.xhtml", "../../etc/passwd", "", "", false},
		{"absolute", "OEBPS/ch1.xhtml", "/etc/passwd", "", "", false},
		{"external", "OEBPS/ch1.xhtml", "https://example.com/a.png", "", "", false},
		{"javascript", "OEBPS/ch1.xhtml", "javascript:alert(1)", "", "", false},
		{"empty", "OEBPS/ch1.xhtml", "  ", "", "", false},
		{"root level base", "content.opf", "ch1.xhtml", "ch1.xhtml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fragment, ok := ResolveHref(tt.base, tt.href)
			if ok != tt.wantOK {
				t.Fatalf("ResolveHref(%q, %q) ok = %v, want %v", tt.base, tt.href, ok, tt.wantOK)
			}
			if got != tt.wantPath {
				t.Errorf("ResolveHref(%q, %q) path = %q, want %q", tt.base, tt.href, got, tt.wantPath)
			}
			if ok && fragment != tt.wantFragment {
				t.Errorf("ResolveHref(%q, %q) fragment = %q, want %q", tt.base, tt.href, fragment, tt.wantFragment)
			}
		})
	}
}

func TestDecodeXML_BOMAndEntities(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<container><rootfiles><rootfile full-path="a&amp;b&nbsp;.opf"/></rootfiles></container>`)...)
	var c container
	if err := decodeXML(data, &c); err != nil {
		t.Fatalf("decodeXML() error = %v", err)
	}
	if got := c.Rootfiles.Rootfile[0].FullPath; got != "a&b\u00a0.opf" {
		t.Errorf("FullPath = %q", got)
	}
}
