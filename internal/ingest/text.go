package ingest

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements start a new line in projected text.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Caption: true, atom.Dd: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tr: true, atom.Ul: true, atom.Body: true, atom.Html: true,
}

// cellElements are separated by a space within their row.
var cellElements = map[atom.Atom]bool{atom.Td: true, atom.Th: true}

// silentElements contribute no text.
var silentElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Title: true,
}

// ProjectText returns the readable text of markup. Block boundaries become
// line breaks, runs of whitespace collapse to one space and blank lines are
// dropped. It accepts any input.
func ProjectText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		lines  []string
		line   strings.Builder
		silent int
	)
	flush := func() {
		if s := collapse(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return strings.Join(lines, "\n")
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case silentElements[a]:
				if tt == html.StartTagToken {
					silent++
				} else if tt == html.EndTagToken && silent > 0 {
					silent--
				}
			case blockElements[a]:
				flush()
			case cellElements[a]:
				line.WriteByte(' ')
			}
		case html.TextToken:
			if silent == 0 {
				line.Write(z.Text())
			}
		}
	}
}
