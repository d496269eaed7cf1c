package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// strippedElements are removed together with their subtree.
var strippedElements = []string{
	"script", "style", "link", "meta", "base", "noscript", "noembed", "noframes",
	"iframe", "frame", "frameset", "object", "embed", "applet",
	"form", "input", "button", "select", "textarea", "option", "datalist", "output", "keygen",
	"template", "dialog", "portal", "plaintext", "xmp",
}

var strippedSelector = strings.Join(strippedElements, ", ")

// forbiddenAttrs lists attributes that are removed from all elements.
var forbiddenAttrs = map[string]bool{
	"contenteditable": true,
	"draggable":       true,
	"hidden":          true,
	"spellcheck":      true,
	"translate":       true,
	"srcset":          true,
	"ping":            true,
	"formaction":      true,
}

// uriAttrs hold references that must use a safe scheme.
var uriAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"xlink:href": true,
	"poster":     true,
	"background": true,
}

// Sanitize removes executable and interactive content from doc in place:
// stripped elements, comments, event handler and data-* attributes, and
// references with unsafe schemes.
func Sanitize(doc *goquery.Document) {
	doc.Find(strippedSelector).Remove()

	removeComments(doc.Get(0))

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			if dropAttr(attr) {
				continue
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})
}

// SanitizeHTML sanitizes a markup fragment and returns the inner markup of
// its body. The result is a fixed point: sanitizing it again returns it
// unchanged.
func SanitizeHTML(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	Sanitize(doc)
	return bodyHTML(doc)
}

// bodyHTML renders the children of the document body.
func bodyHTML(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	out, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func dropAttr(attr html.Attribute) bool {
	key := strings.ToLower(attr.Key)
	if attr.Namespace != "" {
		key = strings.ToLower(attr.Namespace) + ":" + key
	}
	switch {
	case strings.HasPrefix(key, "on"), strings.HasPrefix(key, "data-"), forbiddenAttrs[key]:
		return true
	case uriAttrs[key], strings.HasSuffix(key, ":href"):
		return !safeURI(attr.Val)
	}
	return false
}

// safeURI accepts relative references, fragments, http(s), mailto and
// inline images.
func safeURI(raw string) bool {
	v := strings.ToLower(strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, raw))
	if v == "" || strings.HasPrefix(v, "#") {
		return true
	}
	colon := strings.IndexByte(v, ':')
	if colon < 0 {
		return true
	}
	// A colon after the first path, query or fragment delimiter is not a scheme.
	if slash := strings.IndexAny(v, "/?#"); slash >= 0 && slash < colon {
		return true
	}
	switch v[:colon] {
	case "http", "https", "mailto":
		return true
	case "data":
		return strings.HasPrefix(v, "data:image/")
	}
	return false
}

func removeComments(n *html.Node) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}
