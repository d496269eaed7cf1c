package epub

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxNavDepth bounds nesting accepted from navigation documents.
const maxNavDepth = 64

// NCX represents the parsed navigation control structure from NCX or NAV document.
type NCX struct {
	Source    string // archive path of the navigation document
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free, absolute path within EPUB; empty when unresolvable
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

// FileReader is the subset of EPUBReader needed to load navigation documents.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// ncxDocument represents the root <ncx> element of an NCX file.
type ncxDocument struct {
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

// ncxNavPoint represents a <navPoint> element which may contain nested navPoints.
type ncxNavPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder string `xml:"playOrder,attr"`
	Label     struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// LoadNCX reads and parses the EPUB 2 NCX declared by the OPF.
// It returns (nil, nil) when the OPF declares none.
func LoadNCX(r FileReader, opf *OPF) (*NCX, error) {
	if opf == nil || opf.NCXPath == "" {
		return nil, nil
	}
	data, err := r.ReadFile(opf.NCXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read NCX: %w", err)
	}
	return ParseNCX(data, opf.NCXPath)
}

// LoadNav reads and parses the EPUB 3 navigation document declared by the OPF.
// It returns (nil, nil) when the OPF declares none.
func LoadNav(r FileReader, opf *OPF) (*NCX, error) {
	if opf == nil || opf.NavPath == "" {
		return nil, nil
	}
	data, err := r.ReadFile(opf.NavPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read nav document: %w", err)
	}
	return ParseNav(data, opf.NavPath)
}

// ParseNCX parses NCX data. ncxPath is the archive path of the NCX file and
// is used to resolve content sources.
func ParseNCX(data []byte, ncxPath string) (*NCX, error) {
	var doc ncxDocument
	if err := decodeXML(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX XML: %w", err)
	}
	return &NCX{
		Source:    ncxPath,
		DocTitle:  collapseSpace(doc.DocTitle.Text),
		NavPoints: convertNavPoints(doc.NavMap.NavPoints, ncxPath, 0),
	}, nil
}

func convertNavPoints(points []ncxNavPoint, ncxPath string, depth int) []NavPoint {
	if len(points) == 0 || depth >= maxNavDepth {
		return nil
	}
	out := make([]NavPoint, 0, len(points))
	for _, p := range points {
		np := NavPoint{
			ID:    p.ID,
			Label: collapseSpace(p.Label.Text),
		}
		np.PlayOrder, _ = strconv.Atoi(strings.TrimSpace(p.PlayOrder))
		if resolved, fragment, ok := ResolveHref(ncxPath, p.Content.Src); ok {
			np.ContentPath = resolved
			np.Fragment = fragment
		}
		np.Children = convertNavPoints(p.Children, ncxPath, depth+1)
		out = append(out, np)
	}
	return out
}

// ParseNav parses an EPUB 3 XHTML navigation document. The <nav> carrying
// epub:type="toc" is used; otherwise the first <nav> that is not a landmarks
// or page list.
func ParseNav(data []byte, navPath string) (*NCX, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decodeDocument(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nav document: %w", err)
	}

	var toc *goquery.Selection
	navs := doc.Find("nav")
	navs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasEpubType(s, "toc") {
			toc = s
			return false
		}
		return true
	})
	if toc == nil {
		navs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !hasEpubType(s, "landmarks") && !hasEpubType(s, "page-list") {
				toc = s
				return false
			}
			return true
		})
	}

	nav := &NCX{Source: navPath}
	if t := doc.Find("title").First(); t.Length() > 0 {
		nav.DocTitle = collapseSpace(t.Text())
	}
	if toc == nil {
		return nav, nil
	}
	nav.NavPoints = parseNavList(toc.Find("ol").First(), navPath, 0)
	return nav, nil
}

func parseNavList(ol *goquery.Selection, navPath string, depth int) []NavPoint {
	if ol.Length() == 0 || depth >= maxNavDepth {
		return nil
	}
	var points []NavPoint
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		var np NavPoint
		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			np.Label = collapseSpace(a.Text())
			if href, ok := a.Attr("href"); ok {
				if resolved, fragment, ok := ResolveHref(navPath, href); ok {
					np.ContentPath = resolved
					np.Fragment = fragment
				}
			}
		} else if span := li.ChildrenFiltered("span").First(); span.Length() > 0 {
			np.Label = collapseSpace(span.Text())
		}
		np.Children = parseNavList(li.ChildrenFiltered("ol").First(), navPath, depth+1)
		points = append(points, np)
	})
	return points
}

// hasEpubType reports whether s carries the token in its epub:type attribute.
func hasEpubType(s *goquery.Selection, token string) bool {
	val, _ := s.Attr("epub:type")
	for _, t := range strings.Fields(val) {
		if t == token {
			return true
		}
	}
	return false
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
