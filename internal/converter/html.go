package converter

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/ingest"
)

// UnknownAuthor is printed on the title page of a book without authors.
const UnknownAuthor = "Unknown Author"

// HTMLBuilder builds a single integrated HTML document from a book's chapters:
// a title page section, the table of contents, then one section per chapter
// with images embedded as data URIs.
type HTMLBuilder struct {
	titlePage string
	toc       string
	chapters  []string
	warnings  []error
}

// NewHTMLBuilder creates a new HTMLBuilder instance
func NewHTMLBuilder() *HTMLBuilder {
	return &HTMLBuilder{}
}

// SetTitlePage renders the metadata block printed on the first page.
func (h *HTMLBuilder) SetTitlePage(md book.Metadata) {
	authors := UnknownAuthor
	if len(md.Authors) > 0 {
		authors = strings.Join(md.Authors, ", ")
	}

	var b strings.Builder
	b.WriteString(`<section class="title-page">`)
	fmt.Fprintf(&b, `<h1 class="book-title">%s</h1>`, html.EscapeString(displayTitle(md.Title)))
	fmt.Fprintf(&b, `<p class="book-authors">by %s</p>`, html.EscapeString(authors))
	if md.Publisher != "" {
		fmt.Fprintf(&b, `<p class="book-publisher">%s</p>`, html.EscapeString(md.Publisher))
	}
	if md.Date != "" {
		fmt.Fprintf(&b, `<p class="book-date">%s</p>`, html.EscapeString(md.Date))
	}
	if md.Description != "" {
		fmt.Fprintf(&b, `<p class="book-description">%s</p>`, html.EscapeString(md.Description))
	}
	b.WriteString(`</section>`)
	h.titlePage = b.String()
}

// SetTOC renders the table of contents page.
func (h *HTMLBuilder) SetTOC(nodes []*book.TocNode) {
	h.toc = inlineTOC(nodes)
}

// AddChapter adds a chapter. Its markup is normalized for layout and image
// references are embedded; unresolved images are recorded as warnings. A
// chapter that cannot be processed is replaced by a placeholder paragraph.
func (h *HTMLBuilder) AddChapter(ch book.Chapter, images ImageLookup) {
	body, warnings := chapterSectionBody(ch, images)
	h.warnings = append(h.warnings, warnings...)
	h.chapters = append(h.chapters, fmt.Sprintf(`<section class="chapter" data-index="%d" id="%s">%s</section>`,
		ch.Index, ingest.ChapterAnchor(ch.Index), body))
}

func chapterSectionBody(ch book.Chapter, images ImageLookup) (out string, warnings []error) {
	fail := func(msg string, err error) (string, []error) {
		warnings = append(warnings, &book.ConversionError{Stage: "pdf", Chapter: ch.Index, Message: msg, Err: err})
		return "<p>" + html.EscapeString(strings.TrimPrefix(placeholder(ch.Index), "> ")) + "</p>", warnings
	}
	defer func() {
		if rec := recover(); rec != nil {
			out, warnings = fail("chapter conversion panicked", fmt.Errorf("%v", rec))
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ch.Markup))
	if err != nil {
		return fail("failed to parse chapter", err)
	}
	body := doc.Find("body")
	TransformHTML(body)
	warnings = embedImages(body, images, ch.Index)

	inner, err := body.Html()
	if err != nil {
		return fail("failed to serialize chapter", err)
	}

	// Chapters that open with their own title heading are not titled twice.
	first := body.Find("h1, h2, h3").First().Text()
	if !strings.EqualFold(collapseWhitespace(first), collapseWhitespace(ch.Title)) {
		inner = fmt.Sprintf(`<h1 class="chapter-title">%s</h1>`, html.EscapeString(ch.Title)) + inner
	}
	return inner, warnings
}

// Warnings returns the warnings collected by AddChapter.
func (h *HTMLBuilder) Warnings() []error {
	return h.warnings
}

// Build generates the integrated HTML document
func (h *HTMLBuilder) Build() string {
	var b strings.Builder
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head></head><body>`)
	b.WriteString(h.titlePage)
	b.WriteString(h.toc)
	for _, ch := range h.chapters {
		b.WriteString(ch)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
