package ingest

import (
	"sort"
	"strings"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// UnknownLanguage is reported when the manifest declares no language.
const UnknownLanguage = "unknown"

// onixIdentifierTypes maps ONIX codelist 5 values used by EPUB 3
// identifier-type refinements to scheme names.
var onixIdentifierTypes = map[string]string{
	"02": "isbn",
	"03": "gtin",
	"06": "doi",
	"15": "isbn",
	"22": "urn",
}

// extractMetadata normalizes the manifest metadata. Every field is optional;
// missing ones are noted and defaulted.
func extractMetadata(md epub.Metadata, d *diagnostics) book.Metadata {
	out := book.Metadata{
		Title:       collapse(md.Title),
		Language:    strings.TrimSpace(md.Language),
		Publisher:   collapse(md.Publisher),
		Date:        strings.TrimSpace(md.Date),
		Description: strings.TrimSpace(md.Description),
		Rights:      collapse(md.Rights),
	}
	if out.Title == "" {
		d.warn(StageMetadata, "", "no title declared")
	}
	if out.Language == "" {
		out.Language = UnknownLanguage
		d.warn(StageMetadata, "", "no language declared")
	}

	out.Authors = authors(md.Creators)

	for _, id := range md.Identifiers {
		scheme, value := identifierScheme(id)
		if value == "" {
			continue
		}
		if out.Identifiers == nil {
			out.Identifiers = make(map[string]string)
		}
		out.Identifiers[scheme] = value
	}

	seen := make(map[string]bool, len(md.Subjects))
	for _, s := range md.Subjects {
		s = collapse(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out.Subjects = append(out.Subjects, s)
	}
	sort.Strings(out.Subjects)

	return out
}

// authors returns creators without a role or with role "aut", in order. When
// every creator carries some other role they are all returned.
func authors(creators []epub.Creator) []string {
	var all, aut []string
	for _, c := range creators {
		name := collapse(c.Name)
		if name == "" {
			continue
		}
		all = append(all, name)
		if c.Role == "" || strings.EqualFold(c.Role, "aut") {
			aut = append(aut, name)
		}
	}
	if len(aut) == 0 {
		return all
	}
	return aut
}

// identifierScheme determines the scheme of an identifier: declared scheme
// first, then a URN prefix, then "identifier".
func identifierScheme(id epub.Identifier) (scheme, value string) {
	value = strings.TrimSpace(id.Value)
	if s := strings.ToLower(strings.TrimSpace(id.Scheme)); s != "" {
		if mapped, ok := onixIdentifierTypes[s]; ok {
			s = mapped
		}
		return s, stripURN(value, s)
	}

	if len(value) > len("urn:") && strings.EqualFold(value[:len("urn:")], "urn:") {
		if nid, rest, ok := strings.Cut(value[len("urn:"):], ":"); ok && nid != "" {
			return strings.ToLower(nid), rest
		}
	}
	for _, s := range []string{"isbn", "doi", "uuid"} {
		if len(value) > len(s) && strings.EqualFold(value[:len(s)+1], s+":") {
			return s, strings.TrimSpace(value[len(s)+1:])
		}
	}
	return "identifier", value
}

// stripURN removes a "urn:<scheme>:" prefix that repeats the declared scheme.
func stripURN(value, scheme string) string {
	prefix := "urn:" + scheme + ":"
	if len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		return value[len(prefix):]
	}
	return value
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
