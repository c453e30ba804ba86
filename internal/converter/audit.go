package converter

import (
	"errors"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

// auditImages parses converted Markdown and reports every image destination
// that is not embedded, skipping references already reported in prior.
func auditImages(markdown string, chapter int, prior []error) []error {
	reported := make(map[string]bool)
	for _, w := range prior {
		var missing *book.ImageMissingWarning
		if errors.As(w, &missing) {
			reported[missing.Ref] = true
		}
	}

	src := []byte(markdown)
	doc := markdownParser.Parse(text.NewReader(src))

	var warnings []error
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		dest := string(img.Destination)
		if IsDataURI(dest) || reported[dest] {
			return ast.WalkContinue, nil
		}
		reported[dest] = true
		warnings = append(warnings, &book.ImageMissingWarning{Chapter: chapter, Ref: dest})
		return ast.WalkContinue, nil
	})
	return warnings
}

// ExternalImages lists the image destinations of a Markdown document that
// are not data URIs.
func ExternalImages(markdown string) []string {
	var refs []string
	for _, w := range auditImages(markdown, book.WholeDocument, nil) {
		refs = append(refs, w.(*book.ImageMissingWarning).Ref)
	}
	return refs
}
