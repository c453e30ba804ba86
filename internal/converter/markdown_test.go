package converter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/yuanying/epubshelf/internal/book"
)

func renderMarkdown(t *testing.T, r *MarkdownRenderer, b *book.Book, images ImageLookup) (string, []error) {
	t.Helper()
	var buf bytes.Buffer
	warnings, err := r.Render(b, images, &buf)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String(), warnings
}

func TestMarkdownRenderer_Dracula(t *testing.T) {
	r := NewMarkdownRenderer(MarkdownOptions{})
	out, warnings := renderMarkdown(t, r, draculaBook(t), nil)

	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if !strings.HasPrefix(out, "---\ntitle: Dracula\n") {
		t.Errorf("expected frontmatter first:\n%s", out)
	}
	if !strings.Contains(out, "language: en\n") || !strings.Contains(out, "- Bram Stoker\n") {
		t.Errorf("frontmatter missing fields:\n%s", out)
	}
	if !strings.Contains(out, "\n# Dracula\n") {
		t.Error("expected book title heading")
	}
	if got := strings.Count(out, ChapterBreak); got != 3 {
		t.Errorf("chapter breaks = %d, want 3", got)
	}
	if !strings.Contains(out, "- [Mina Murray's Journal](#chapter-1)\n") {
		t.Errorf("expected TOC link to chapter 1:\n%s", out)
	}
	for _, want := range []string{
		`<a id="chapter-0"></a>`,
		"## Jonathan Harker's Journal",
		"*Miss*",
		"[the first journal](#chapter-0)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	// Chapters appear in reading order after the TOC.
	toc := strings.Index(out, TOCHeading)
	c0 := strings.Index(out, `<a id="chapter-0"></a>`)
	c2 := strings.Index(out, `<a id="chapter-2"></a>`)
	if !(toc < c0 && c0 < c2) {
		t.Errorf("unexpected order: toc=%d c0=%d c2=%d", toc, c0, c2)
	}
}

func TestMarkdownRenderer_Images(t *testing.T) {
	b := newTestBook(t, book.Metadata{Title: "Plates"},
		[]book.Chapter{{Title: "Plates", Markup: `<p><img src="images/plate.png" alt="plate"/></p><p><img src="images/missing.png" alt="gone"/></p>`}},
		nil)
	images := imageMap{"images/plate.png": []byte("png")}

	out, warnings := renderMarkdown(t, NewMarkdownRenderer(MarkdownOptions{}), b, images)

	if !strings.Contains(out, "![plate](data:image/png;base64,") {
		t.Errorf("expected embedded image:\n%s", out)
	}
	if !strings.Contains(out, "images/missing.png") {
		t.Errorf("missing image reference should be kept:\n%s", out)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	var missing *book.ImageMissingWarning
	if !errors.As(warnings[0], &missing) || missing.Ref != "images/missing.png" || missing.Chapter != 0 {
		t.Errorf("warning = %v", warnings[0])
	}
}

func TestMarkdownRenderer_ChapterFailure(t *testing.T) {
	b := newTestBook(t, book.Metadata{Title: "Broken"},
		[]book.Chapter{
			{Title: "One", Markup: `<p>fine</p>`},
			{Title: "Two", Markup: `<img src="images/a.png"/>`},
		}, nil)

	out, warnings := renderMarkdown(t, NewMarkdownRenderer(MarkdownOptions{}), b, panicLookup{})

	if !strings.Contains(out, "> [Chapter 2 could not be converted]") {
		t.Errorf("expected placeholder:\n%s", out)
	}
	if !strings.Contains(out, "fine") {
		t.Error("healthy chapters should still be converted")
	}
	var convErr *book.ConversionError
	if len(warnings) != 1 || !errors.As(warnings[0], &convErr) || convErr.Chapter != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestMarkdownRenderer_SetextHeadings(t *testing.T) {
	b := newTestBook(t, book.Metadata{Title: "Styles"},
		[]book.Chapter{{Title: "One", Markup: `<h1>Heading</h1><p>text</p>`}}, nil)

	out, _ := renderMarkdown(t, NewMarkdownRenderer(MarkdownOptions{HeadingStyle: "setext"}), b, nil)
	if !strings.Contains(out, "Heading\n===") {
		t.Errorf("expected setext heading:\n%s", out)
	}
}

func TestMarkdownRenderer_EmptyMetadata(t *testing.T) {
	b := newTestBook(t, book.Metadata{}, []book.Chapter{{Title: "Chapter 1", Markup: "<p>x</p>"}}, nil)
	out, _ := renderMarkdown(t, NewMarkdownRenderer(MarkdownOptions{}), b, nil)

	if !strings.Contains(out, "authors: []\n") {
		t.Errorf("expected empty authors list:\n%s", out)
	}
	if !strings.Contains(out, "# Untitled\n") {
		t.Errorf("expected fallback title:\n%s", out)
	}
	if strings.Contains(out, TOCHeading) {
		t.Error("no TOC expected for a book without entries")
	}
}

func TestMarkdownRenderer_Filename(t *testing.T) {
	r := NewMarkdownRenderer(MarkdownOptions{})
	if got := r.Filename(draculaBook(t)); got != "Dracula_single.md" {
		t.Errorf("Filename() = %q", got)
	}
	if !strings.HasPrefix(r.MediaType(), "text/markdown") {
		t.Errorf("MediaType() = %q", r.MediaType())
	}
}
