package epub

// OPF represents the parsed Open Package Format document
type OPF struct {
	Version       string
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
	Guide         []GuideReference
	NCXPath       string
	NavPath       string
}

// Metadata represents the metadata section of the OPF
type Metadata struct {
	Title       string
	Creators    []Creator
	Language    string
	Identifiers []Identifier
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	Rights      string
	CoverID     string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
	Lang string // xml:lang attribute
}

// Identifier is one dc:identifier together with the scheme hints found for it.
type Identifier struct {
	ID     string // element id attribute
	Value  string
	Scheme string // opf:scheme attribute or EPUB 3 identifier-type refinement
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string // archive path, resolved against the OPF directory
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference is an EPUB 2 guide entry.
type GuideReference struct {
	Type  string
	Title string
	Href  string // archive path, fragment kept
}

// HasProperty reports whether the item declares the given manifest property.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range m.Properties {
		if p == prop {
			return true
		}
	}
	return false
}
