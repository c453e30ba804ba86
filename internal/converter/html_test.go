package converter

import (
	"errors"
	"strings"
	"testing"

	"github.com/yuanying/epubshelf/internal/book"
)

func TestHTMLBuilder_Build(t *testing.T) {
	b := draculaBook(t)
	builder := NewHTMLBuilder()
	builder.SetTitlePage(b.Metadata())
	builder.SetTOC(b.Tree())
	for _, ch := range b.Chapters() {
		builder.AddChapter(ch, nil)
	}
	html := builder.Build()

	if !strings.Contains(html, `<h1 class="book-title">Dracula</h1>`) {
		t.Error("expected book title on the title page")
	}
	if !strings.Contains(html, `<p class="book-authors">by Bram Stoker</p>`) {
		t.Error("expected authors on the title page")
	}
	if !strings.Contains(html, `<div id="toc">`) {
		t.Error("expected inline TOC")
	}
	for i := 0; i < 3; i++ {
		if !strings.Contains(html, `data-index="`+string(rune('0'+i))+`" id="chapter-`+string(rune('0'+i))+`"`) {
			t.Errorf("missing section for chapter %d", i)
		}
	}
	if strings.Contains(html, "chapter-title") {
		t.Error("chapters that open with their title should not get another heading")
	}
	if n := len(builder.Warnings()); n != 0 {
		t.Errorf("Warnings() = %d, want 0", n)
	}

	// Title page, TOC and chapters appear in that order.
	title := strings.Index(html, "title-page")
	toc := strings.Index(html, `id="toc"`)
	first := strings.Index(html, `id="chapter-0"`)
	if !(title < toc && toc < first) {
		t.Errorf("unexpected order: title=%d toc=%d chapter=%d", title, toc, first)
	}
}

func TestHTMLBuilder_UnknownAuthor(t *testing.T) {
	builder := NewHTMLBuilder()
	builder.SetTitlePage(book.Metadata{Title: "Anonymous Pamphlet"})
	if html := builder.Build(); !strings.Contains(html, "by "+UnknownAuthor) {
		t.Errorf("expected %q in %s", UnknownAuthor, html)
	}
}

func TestHTMLBuilder_AddsChapterTitle(t *testing.T) {
	builder := NewHTMLBuilder()
	builder.AddChapter(book.Chapter{Index: 0, Title: "Preface", Markup: "<p>No heading here.</p><section><p>inner</p></section>"}, nil)
	html := builder.Build()

	if !strings.Contains(html, `<h1 class="chapter-title">Preface</h1>`) {
		t.Errorf("expected generated chapter title: %s", html)
	}
	if !strings.Contains(html, `<div class="section">`) {
		t.Errorf("nested sections should be normalized to divs: %s", html)
	}
}

func TestHTMLBuilder_EmbedsImagesAndWarns(t *testing.T) {
	builder := NewHTMLBuilder()
	images := imageMap{"images/plate.png": []byte("png")}
	builder.AddChapter(book.Chapter{Index: 2, Title: "Plates", Markup: `<h2>Plates</h2><img src="images/plate.png"/><img src="images/gone.png"/>`}, images)

	html := builder.Build()
	if !strings.Contains(html, "data:image/png;base64,") {
		t.Error("expected embedded image")
	}
	warnings := builder.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("Warnings() = %v", warnings)
	}
	var missing *book.ImageMissingWarning
	if !errors.As(warnings[0], &missing) || missing.Chapter != 2 {
		t.Errorf("warning = %v", warnings[0])
	}
}

func TestHTMLBuilder_ChapterFailureBecomesPlaceholder(t *testing.T) {
	builder := NewHTMLBuilder()
	builder.AddChapter(book.Chapter{Index: 0, Title: "Broken", Markup: `<img src="images/a.png"/>`}, panicLookup{})

	if html := builder.Build(); !strings.Contains(html, "Chapter 1 could not be converted") {
		t.Errorf("expected placeholder: %s", html)
	}
	var convErr *book.ConversionError
	if w := builder.Warnings(); len(w) != 1 || !errors.As(w[0], &convErr) || convErr.Chapter != 0 {
		t.Errorf("Warnings() = %v", w)
	}
}
