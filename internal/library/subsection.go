package library

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Subsection returns the part of content that starts at anchor. The anchor is
// the element whose id or name equals anchor, else a link to "#anchor". When
// that element is inside a heading the heading is the start. The section runs
// over the following siblings until a heading of the same or a higher level;
// a section not starting at a heading ends at the next heading of any level.
// ok is false when anchor is empty or not found.
func Subsection(content, anchor string) (section string, ok bool) {
	if anchor == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", false
	}
	target := findAnchor(doc, anchor)
	if target == nil {
		return "", false
	}

	start, level := target, headingLevel(target)
	if level == 0 {
		for p := target.Parent; p != nil; p = p.Parent {
			if lvl := headingLevel(p); lvl > 0 {
				start, level = p, lvl
				break
			}
		}
	}

	var b strings.Builder
	if err := html.Render(&b, start); err != nil {
		return "", false
	}
	for sib := start.NextSibling; sib != nil; sib = sib.NextSibling {
		if lvl := headingLevel(sib); lvl > 0 && (level == 0 || lvl <= level) {
			break
		}
		if err := html.Render(&b, sib); err != nil {
			return "", false
		}
	}
	return b.String(), true
}

func findAnchor(doc *goquery.Document, anchor string) *html.Node {
	match := func(attr, want string) func(int, *goquery.Selection) bool {
		return func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(attr)
			return v == want
		}
	}
	if s := doc.Find("[id]").FilterFunction(match("id", anchor)).First(); s.Length() > 0 {
		return s.Get(0)
	}
	if s := doc.Find("[name]").FilterFunction(match("name", anchor)).First(); s.Length() > 0 {
		return s.Get(0)
	}
	if s := doc.Find("a[href]").FilterFunction(match("href", "#"+anchor)).First(); s.Length() > 0 {
		return s.Get(0)
	}
	return nil
}

func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}
