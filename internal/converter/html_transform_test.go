package converter

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseTestHTML(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return doc
}

func TestTransformHTML_SemanticTagsToDiv(t *testing.T) {
	tags := []string{"article", "section", "aside", "nav", "header", "footer", "main", "figure"}
	for _, tag := range tags {
		t.Run(tag, func(t *testing.T) {
			doc := parseTestHTML(`<html><body><` + tag + `>content</` + tag + `></body></html>`)
			TransformHTML(doc.Selection)
			sel := doc.Find("div." + tag)
			if sel.Length() == 0 {
				t.Fatalf("expected <%s> to be converted to <div class=%q>", tag, tag)
			}
			if sel.Text() != "content" {
				t.Fatalf("content mismatch: got %q", sel.Text())
			}
		})
	}
}

func TestTransformHTML_FigcaptionToP(t *testing.T) {
	doc := parseTestHTML(`<html><body><figcaption>caption text</figcaption></body></html>`)
	TransformHTML(doc.Selection)
	sel := doc.Find("p.figcaption")
	if sel.Length() == 0 {
		t.Fatal("expected <figcaption> to be converted to <p class=\"figcaption\">")
	}
	if sel.Text() != "caption text" {
		t.Fatalf("content mismatch: got %q", sel.Text())
	}
}

func TestTransformHTML_ExistingClassKept(t *testing.T) {
	doc := parseTestHTML(`<html><body><aside class="note">x</aside></body></html>`)
	TransformHTML(doc.Selection)
	class, _ := doc.Find("div").Attr("class")
	if class != "note aside" {
		t.Fatalf("class = %q, want %q", class, "note aside")
	}
}

func TestTransformHTML_DefinitionList(t *testing.T) {
	doc := parseTestHTML(`<html><body><dl><dt>term</dt><dd>meaning</dd></dl></body></html>`)
	TransformHTML(doc.Selection)
	if doc.Find("div.dl > p.dt").Text() != "term" {
		t.Fatal("expected <dt> to become a paragraph")
	}
	if doc.Find("div.dl > blockquote.dd").Text() != "meaning" {
		t.Fatal("expected <dd> to become an indented block")
	}
}

func TestTransformHTML_DropsUnprintable(t *testing.T) {
	doc := parseTestHTML(`<html><body><p>keep</p><script>x()</script><video src="a.mp4"></video><form><input></form></body></html>`)
	TransformHTML(doc.Selection)
	for _, tag := range []string{"script", "video", "form", "input"} {
		if doc.Find(tag).Length() != 0 {
			t.Errorf("<%s> was not removed", tag)
		}
	}
	if doc.Find("p").Text() != "keep" {
		t.Error("paragraph lost")
	}
}
