package epub

import (
	"fmt"
	"strings"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

// opfMetadata represents the metadata section
type opfMetadata struct {
	Title       []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language    []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier  []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publisher   []string        `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date        []string        `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description []string        `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subject     []string        `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Rights      []string        `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Meta        []opfMeta       `xml:"meta"`
}

// opfCreator represents a creator element
type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	ID   string `xml:"id,attr"`
}

// opfIdentifier represents an identifier element
type opfIdentifier struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	Scheme string `xml:"http://www.idpf.org/2007/opf scheme,attr"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2.0: attribute value
	Value    string `xml:",chardata"`    // EPUB 3.0: element text content
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Scheme   string `xml:"scheme,attr"`
}

// opfManifest represents the manifest section
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents an item in the manifest
type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// opfSpine represents the spine section
type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

// opfItemRef represents an itemref in the spine
type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParseOPF parses an OPF file content and returns the OPF structure.
// opfPath is the archive path of the OPF file; manifest hrefs are resolved
// against its directory.
func ParseOPF(content []byte, opfPath string) (*OPF, error) {
	var pkg opfPackage
	if err := decodeXML(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	opf := &OPF{
		Version:  strings.TrimSpace(pkg.Version),
		Manifest: make(map[string]ManifestItem),
	}

	opf.Metadata = parseMetadata(&pkg.Metadata)

	for _, item := range pkg.Manifest.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		href, _, ok := ResolveHref(opfPath, item.Href)
		if !ok {
			continue
		}
		manifestItem := ManifestItem{
			ID:         id,
			Href:       href,
			MediaType:  strings.ToLower(strings.TrimSpace(item.MediaType)),
			Properties: strings.Fields(item.Properties),
		}
		if _, seen := opf.Manifest[id]; !seen {
			opf.ManifestOrder = append(opf.ManifestOrder, id)
		}
		opf.Manifest[id] = manifestItem

		if opf.NavPath == "" && manifestItem.HasProperty("nav") {
			opf.NavPath = manifestItem.Href
		}
	}

	for _, itemRef := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, SpineItem{
			IDRef:  strings.TrimSpace(itemRef.IDRef),
			Linear: strings.TrimSpace(itemRef.Linear) != "no",
		})
	}

	for _, ref := range pkg.Guide.References {
		href, fragment, ok := ResolveHref(opfPath, ref.Href)
		if !ok {
			continue
		}
		if fragment != "" {
			href += "#" + fragment
		}
		opf.Guide = append(opf.Guide, GuideReference{
			Type:  strings.ToLower(strings.TrimSpace(ref.Type)),
			Title: strings.TrimSpace(ref.Title),
			Href:  href,
		})
	}

	// Resolve NCX path from toc attribute, falling back to the NCX media type.
	if ncxItem, ok := opf.Manifest[strings.TrimSpace(pkg.Spine.Toc)]; ok {
		opf.NCXPath = ncxItem.Href
	}
	if opf.NCXPath == "" {
		for _, id := range opf.ManifestOrder {
			if opf.Manifest[id].MediaType == "application/x-dtbncx+xml" {
				opf.NCXPath = opf.Manifest[id].Href
				break
			}
		}
	}

	return opf, nil
}

// parseMetadata parses the metadata section
func parseMetadata(meta *opfMetadata) Metadata {
	md := Metadata{
		Title:       firstNonEmpty(meta.Title),
		Language:    firstNonEmpty(meta.Language),
		Publisher:   firstNonEmpty(meta.Publisher),
		Date:        firstNonEmpty(meta.Date),
		Description: firstNonEmpty(meta.Description),
		Rights:      firstNonEmpty(meta.Rights),
	}

	for _, s := range meta.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}

	// EPUB 3.0 refinements keyed by "#id".
	refinements := make(map[string]map[string]string)
	for _, m := range meta.Meta {
		if m.Refines == "" || m.Property == "" {
			continue
		}
		v := strings.TrimSpace(m.Value)
		if v == "" {
			v = strings.TrimSpace(m.Content)
		}
		if refinements[m.Refines] == nil {
			refinements[m.Refines] = make(map[string]string)
		}
		refinements[m.Refines][m.Property] = v
	}

	for _, creator := range meta.Creator {
		name := strings.TrimSpace(creator.Name)
		if name == "" {
			continue
		}
		role := strings.TrimSpace(creator.Role)
		if creator.ID != "" {
			if r := refinements["#"+creator.ID]["role"]; r != "" {
				role = r
			}
		}
		md.Creators = append(md.Creators, Creator{
			Name: name,
			Role: role,
			Lang: creator.Lang,
		})
	}

	for _, id := range meta.Identifier {
		value := strings.TrimSpace(id.Value)
		if value == "" {
			continue
		}
		scheme := strings.TrimSpace(id.Scheme)
		if id.ID != "" {
			if s := refinements["#"+id.ID]["identifier-type"]; s != "" {
				scheme = s
			}
		}
		md.Identifiers = append(md.Identifiers, Identifier{
			ID:     id.ID,
			Value:  value,
			Scheme: scheme,
		})
	}

	// Process EPUB 2.0 cover meta element
	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" {
			md.CoverID = strings.TrimSpace(m.Content)
			break
		}
	}

	return md
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
