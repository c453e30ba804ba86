package converter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubshelf/internal/book"
)

// IndexFilename is the first entry of a chapter-split bundle.
const IndexFilename = "index.md"

// ChaptersRenderer writes a book as a zip of index.md plus one Markdown file
// per chapter.
type ChaptersRenderer struct {
	md *MarkdownRenderer
}

// NewChaptersRenderer creates a renderer.
func NewChaptersRenderer(opts MarkdownOptions) *ChaptersRenderer {
	return &ChaptersRenderer{md: NewMarkdownRenderer(opts)}
}

func (r *ChaptersRenderer) MediaType() string { return "application/zip" }

func (r *ChaptersRenderer) Filename(b *book.Book) string { return ChaptersFilename(b.Metadata().Title) }

// Render writes exactly ChapterCount()+1 entries: index.md first, then the
// chapters in index order. Links between chapters point at chapter files.
func (r *ChaptersRenderer) Render(b *book.Book, images ImageLookup, w io.Writer) ([]error, error) {
	chapters := b.Chapters()
	names := make([]string, len(chapters))
	for i, ch := range chapters {
		names[i] = ChapterFilename(i, len(chapters), ch.Title)
	}

	zw := zip.NewWriter(w)

	var index bytes.Buffer
	md := b.Metadata()
	if err := writeFrontmatter(&index, md); err != nil {
		return nil, &book.ConversionError{Stage: "markdown", Chapter: book.WholeDocument, Message: "failed to write frontmatter", Err: err}
	}
	fmt.Fprintf(&index, "# %s\n\n", displayTitle(md.Title))
	writeTOC(&index, b.TOC(), func(e book.TocEntry) string {
		target := names[*e.ChapterIndex]
		if e.AnchorID != "" {
			target += "#" + e.AnchorID
		}
		return target
	})
	if err := writeZipEntry(zw, IndexFilename, index.Bytes()); err != nil {
		return nil, err
	}

	relink := func(body *goquery.Selection) {
		body.Find("a[href^='#chapter-']").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			i, err := strconv.Atoi(strings.TrimPrefix(href, "#chapter-"))
			if err != nil || i < 0 || i >= len(names) {
				return
			}
			target := names[i]
			if anchor, _ := s.Attr(book.LinkAnchorAttr); anchor != "" {
				target += "#" + anchor
			}
			s.SetAttr("href", target)
			s.RemoveAttr(book.LinkAnchorAttr)
		})
	}

	var warnings []error
	for i, ch := range chapters {
		body, chWarnings := r.md.convertChapter(ch, images, relink)
		warnings = append(warnings, chWarnings...)

		var buf bytes.Buffer
		fmt.Fprintf(&buf, "# %s\n\n", ch.Title)
		if body != "" {
			buf.WriteString(body)
			buf.WriteString("\n")
		}
		if err := writeZipEntry(zw, names[i], buf.Bytes()); err != nil {
			return warnings, err
		}
	}

	if err := zw.Close(); err != nil {
		return warnings, fmt.Errorf("failed to finalize zip: %w", err)
	}
	return warnings, nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
