package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// maxEntrySize caps the decompressed size of a single archive entry.
const maxEntrySize int64 = 256 * 1024 * 1024

// containerPath is the fixed bootstrap entry that points at the package document.
const containerPath = "META-INF/container.xml"

// EPUBReader provides access to EPUB file contents
type EPUBReader struct {
	zipReader *zip.ReadCloser
	files     map[string]*zip.File
	lower     map[string]*zip.File
	names     []string
	opfPath   string
	warnings  []string
	limit     int64
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

var (
	// ErrArchive reports input that is not a readable zip container.
	ErrArchive = errors.New("epub: not a readable zip archive")
	// ErrManifestNotFound reports a missing or unusable container.xml / package document.
	ErrManifestNotFound = errors.New("epub: package manifest not found")
	// ErrEntryNotFound reports a lookup of a name that is not in the archive.
	ErrEntryNotFound = errors.New("epub: entry not found in archive")
)

// Open opens an EPUB file and resolves the package document location.
// Mimetype problems are recorded as warnings; only an unreadable zip
// (ErrArchive) or an unresolvable container.xml (ErrManifestNotFound) fail.
func Open(path string) (*EPUBReader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchive, path, err)
	}

	reader := &EPUBReader{
		zipReader: zr,
		files:     make(map[string]*zip.File),
		lower:     make(map[string]*zip.File),
		limit:     maxEntrySize,
	}

	// Build file map with normalized paths
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(f.Name)
		if _, dup := reader.files[name]; dup {
			continue
		}
		reader.files[name] = f
		reader.names = append(reader.names, name)
		if _, ok := reader.lower[strings.ToLower(name)]; !ok {
			reader.lower[strings.ToLower(name)] = f
		}
	}
	sort.Strings(reader.names)

	reader.checkMimetype()

	if err := reader.parseContainer(); err != nil {
		zr.Close()
		return nil, err
	}

	return reader, nil
}

// Close closes the EPUB reader
func (r *EPUBReader) Close() error {
	return r.zipReader.Close()
}

// OPFPath returns the path to the OPF file
func (r *EPUBReader) OPFPath() string {
	return r.opfPath
}

// Entries returns the sorted, normalized names of all file entries.
func (r *EPUBReader) Entries() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Warnings returns non-fatal conformance problems noticed while opening.
func (r *EPUBReader) Warnings() []string {
	return r.warnings
}

// Has reports whether the archive holds an entry with the given name.
func (r *EPUBReader) Has(name string) bool {
	return r.lookup(name) != nil
}

// ReadFile reads the contents of a file from the EPUB.
// Lookup is exact first and case-insensitive second.
func (r *EPUBReader) ReadFile(name string) ([]byte, error) {
	f := r.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, normalizePath(name))
	}

	if f.UncompressedSize64 > uint64(r.limit) {
		return nil, fmt.Errorf("entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, r.limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to notice.
	data, err := io.ReadAll(io.LimitReader(rc, r.limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", f.Name, err)
	}
	if int64(len(data)) > r.limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes when decompressed", f.Name, r.limit)
	}
	return data, nil
}

func (r *EPUBReader) lookup(name string) *zip.File {
	name = normalizePath(name)
	if f, ok := r.files[name]; ok {
		return f
	}
	return r.lower[strings.ToLower(name)]
}

// checkMimetype records deviations from the mimetype convention without failing.
func (r *EPUBReader) checkMimetype() {
	f, ok := r.files["mimetype"]
	if !ok {
		r.warnings = append(r.warnings, "mimetype entry missing")
		return
	}
	if f.Method != zip.Store {
		r.warnings = append(r.warnings, "mimetype entry is compressed")
	}
	content, err := r.ReadFile("mimetype")
	if err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("mimetype unreadable: %v", err))
		return
	}
	if got := strings.TrimSpace(string(content)); got != "application/epub+zip" {
		r.warnings = append(r.warnings, fmt.Sprintf("unexpected mimetype %q", got))
	}
}

// parseContainer parses container.xml to extract OPF path
func (r *EPUBReader) parseContainer() error {
	content, err := r.ReadFile(containerPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestNotFound, err)
	}

	var c container
	if err := decodeXML(content, &c); err != nil {
		return fmt.Errorf("%w: failed to parse container.xml: %v", ErrManifestNotFound, err)
	}

	var fallback string
	for _, rf := range c.Rootfiles.Rootfile {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") || rf.MediaType == "" {
			r.opfPath = normalizePath(fullPath)
			return nil
		}
		if fallback == "" {
			fallback = fullPath
		}
	}

	// If no media-type match, use the first one
	if fallback != "" {
		r.opfPath = normalizePath(fallback)
		return nil
	}

	return fmt.Errorf("%w: container.xml names no rootfile", ErrManifestNotFound)
}

// decodeXML unmarshals package-level XML leniently: BOMs are dropped, HTML
// entities are understood and non-UTF-8 declared encodings are converted.
func decodeXML(data []byte, v any) error {
	data = stripBOM(data)
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}

// xmlEncodingDecl captures the encoding label of a leading XML declaration.
var xmlEncodingDecl = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodeDocument converts an (X)HTML document to UTF-8. A byte order mark
// decides first, then the XML declaration. Otherwise valid UTF-8 is kept as
// is and anything else follows <meta charset>, defaulting to windows-1252.
// Sequences that still fail to decode become U+FFFD.
func decodeDocument(data []byte) []byte {
	enc, name, certain := charset.DetermineEncoding(data, "application/xhtml+xml")
	if !certain {
		if m := xmlEncodingDecl.FindSubmatch(data); m != nil {
			// A declaration readable as ASCII cannot be UTF-16 without a BOM.
			if e, n := charset.Lookup(string(m[1])); e != nil && !strings.HasPrefix(n, "utf-16") {
				enc, name, certain = e, n, true
			}
		}
	}
	if !certain && utf8.Valid(data) {
		name = "utf-8"
	}
	if name != "utf-8" {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
			data = decoded
		}
	}
	return bytes.ToValidUTF8(stripBOM(data), []byte("\uFFFD"))
}

// stripBOM removes a leading UTF-8 byte order mark.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// normalizePath normalizes archive paths: "./" and "/" prefixes and
// redundant separators are removed.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// ResolveHref resolves an href found in the document at base to an archive
// path. Fragments and queries are returned separately and percent-encoding is
// decoded. External URLs, absolute paths and paths escaping the archive root
// yield ok == false.
func ResolveHref(base, href string) (resolved, fragment string, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", "", false
	}
	href, fragment = splitFragment(href)
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		// Same-document reference.
		return normalizePath(base), fragment, base != ""
	}
	if hasScheme(href) || strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return "", fragment, false
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	joined := path.Clean(path.Join(path.Dir(base), href))
	if joined == ".." || strings.HasPrefix(joined, "../") || strings.HasPrefix(joined, "/") {
		return "", fragment, false
	}
	return joined, fragment, true
}

// hasScheme reports whether s starts with a URI scheme such as "http:".
func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return i > 0
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return false
}

// IsExternal reports whether href points outside the archive: it carries a
// scheme (http:, data:, mailto:) or is protocol-relative.
func IsExternal(href string) bool {
	href = strings.TrimSpace(href)
	return hasScheme(href) || strings.HasPrefix(href, "//")
}
