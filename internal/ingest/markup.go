package ingest

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// ChapterAnchor is the in-document anchor id of chapter i.
func ChapterAnchor(i int) string {
	return fmt.Sprintf("chapter-%d", i)
}

// strippedElements never carry readable content.
const strippedElements = "script, noscript, style, link, meta, template"

// forbiddenAttrs lists attributes that should be removed from all elements.
var forbiddenAttrs = map[string]bool{
	"contenteditable": true,
	"draggable":       true,
	"hidden":          true,
	"spellcheck":      true,
	"translate":       true,
}

// chapterMarkup cleans a content document and returns its body markup with
// image references rewritten to asset names and links into other chapters
// rewritten to chapter anchors, keeping their fragment in
// book.LinkAnchorAttr. It returns the asset names referenced.
func chapterMarkup(c *epub.Content, images *ImageSet, spine spineIndex) (string, []string, error) {
	doc := c.Document
	baseDir := path.Dir(c.Path)

	doc.Find(strippedElements).Remove()
	cleanAttributes(doc)

	var refs []string
	doc.Find("img, image").Each(func(_ int, s *goquery.Selection) {
		ref, ok := epub.ImageSource(s)
		if !ok {
			return
		}
		resolved := epub.ResolveReference(baseDir, ref)
		if resolved == "" {
			return
		}
		name := images.AssetName(resolved)
		refs = append(refs, name)
		if goquery.NodeName(s) == "img" {
			s.SetAttr("src", name)
			return
		}
		// SVG <image>: href and xlink:href share the key "href".
		s.SetAttr("href", name)
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "#") {
			return
		}
		target := epub.ResolveReference(baseDir, href)
		if i, ok := spine.lookup(target); ok {
			s.SetAttr("href", "#"+ChapterAnchor(i))
			if _, frag, _ := strings.Cut(href, "#"); frag != "" {
				s.SetAttr(book.LinkAnchorAttr, frag)
			}
		}
	})

	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	markup, err := body.Html()
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize %s: %w", c.Path, err)
	}
	return strings.TrimSpace(markup), refs, nil
}

// cleanAttributes removes event handlers, forbidden attributes and data-* attributes.
func cleanAttributes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		var toRemove []string
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			if forbiddenAttrs[key] || strings.HasPrefix(key, "data-") || strings.HasPrefix(key, "on") {
				toRemove = append(toRemove, attr.Key)
			}
		}
		for _, key := range toRemove {
			s.RemoveAttr(key)
		}
	})
}
