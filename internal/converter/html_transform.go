package converter

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/atom"
)

// tagConversions maps HTML5 semantic tags onto the small element set the PDF
// layout understands.
var tagConversions = map[string]string{
	"article":    "div",
	"section":    "div",
	"aside":      "div",
	"nav":        "div",
	"header":     "div",
	"footer":     "div",
	"main":       "div",
	"figure":     "div",
	"figcaption": "p",
	"dl":         "div",
	"dt":         "p",
	"dd":         "blockquote",
}

// droppedElements carry no printable content.
const droppedElements = "script, style, noscript, iframe, object, embed, form, button, input, select, textarea, audio, video"

// TransformHTML rewrites semantic tags to their layout equivalents, keeping
// the original tag as a class, and removes elements that cannot be printed.
func TransformHTML(sel *goquery.Selection) {
	sel.Find(droppedElements).Remove()

	for from, to := range tagConversions {
		sel.Find(from).Each(func(_ int, s *goquery.Selection) {
			class := from
			if existing, _ := s.Attr("class"); existing != "" {
				class = existing + " " + from
			}
			s.SetAttr("class", class)
			node := s.Get(0)
			node.Data = to
			node.DataAtom = atom.Lookup([]byte(to))
		})
	}
}
