package converter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/ingest"
	"gopkg.in/yaml.v3"
)

// ChapterBreak precedes every chapter of a single-document export.
const ChapterBreak = "<!-- chapter-break -->"

// MarkdownOptions tunes Markdown output.
type MarkdownOptions struct {
	// HeadingStyle is "atx" (default) or "setext" for converted chapter bodies.
	HeadingStyle string
}

// frontmatter is the YAML header of Markdown exports.
type frontmatter struct {
	Title       string   `yaml:"title"`
	Authors     []string `yaml:"authors"`
	Language    string   `yaml:"language"`
	Publisher   string   `yaml:"publisher,omitempty"`
	Date        string   `yaml:"date,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// MarkdownRenderer writes a book as one Markdown document.
type MarkdownRenderer struct {
	conv *converter.Converter
}

// NewMarkdownRenderer creates a renderer. The zero MarkdownOptions is valid.
func NewMarkdownRenderer(opts MarkdownOptions) *MarkdownRenderer {
	return &MarkdownRenderer{conv: newHTMLConverter(opts)}
}

func newHTMLConverter(opts MarkdownOptions) *converter.Converter {
	style := commonmark.HeadingStyleATX
	if strings.EqualFold(opts.HeadingStyle, "setext") {
		style = commonmark.HeadingStyleSetext
	}
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle(style),
			),
		),
	)
}

func (r *MarkdownRenderer) MediaType() string { return "text/markdown; charset=utf-8" }

func (r *MarkdownRenderer) Filename(b *book.Book) string { return SingleFilename(b.Metadata().Title) }

// Render writes frontmatter, title, table of contents and every chapter in
// index order. Chapter failures become placeholders and warnings.
func (r *MarkdownRenderer) Render(b *book.Book, images ImageLookup, w io.Writer) ([]error, error) {
	var buf bytes.Buffer
	md := b.Metadata()

	if err := writeFrontmatter(&buf, md); err != nil {
		return nil, &book.ConversionError{Stage: "markdown", Chapter: book.WholeDocument, Message: "failed to write frontmatter", Err: err}
	}
	fmt.Fprintf(&buf, "# %s\n\n", displayTitle(md.Title))
	writeTOC(&buf, b.TOC(), func(e book.TocEntry) string {
		return "#" + ingest.ChapterAnchor(*e.ChapterIndex)
	})

	var warnings []error
	for _, ch := range b.Chapters() {
		body, chWarnings := r.convertChapter(ch, images, nil)
		warnings = append(warnings, chWarnings...)

		buf.WriteString(ChapterBreak + "\n")
		fmt.Fprintf(&buf, "<a id=\"%s\"></a>\n\n", ingest.ChapterAnchor(ch.Index))
		fmt.Fprintf(&buf, "## %s\n\n", ch.Title)
		if body != "" {
			buf.WriteString(body)
			buf.WriteString("\n\n")
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// convertChapter embeds images, rewrites links via relink (when non-nil) and
// converts the chapter to Markdown. A failed conversion yields the
// placeholder text and a *book.ConversionError warning.
func (r *MarkdownRenderer) convertChapter(ch book.Chapter, images ImageLookup, relink func(*goquery.Selection)) (md string, warnings []error) {
	defer func() {
		if rec := recover(); rec != nil {
			md = placeholder(ch.Index)
			warnings = append(warnings, &book.ConversionError{
				Stage:   "markdown",
				Chapter: ch.Index,
				Message: "chapter conversion panicked",
				Err:     fmt.Errorf("%v", rec),
			})
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ch.Markup))
	if err != nil {
		return placeholder(ch.Index), []error{&book.ConversionError{Stage: "markdown", Chapter: ch.Index, Message: "failed to parse chapter", Err: err}}
	}
	body := doc.Find("body")
	warnings = embedImages(body, images, ch.Index)
	if relink != nil {
		relink(body)
	}

	html, err := body.Html()
	if err != nil {
		return placeholder(ch.Index), append(warnings, &book.ConversionError{Stage: "markdown", Chapter: ch.Index, Message: "failed to serialize chapter", Err: err})
	}
	out, err := r.conv.ConvertString(html)
	if err != nil {
		return placeholder(ch.Index), append(warnings, &book.ConversionError{Stage: "markdown", Chapter: ch.Index, Message: "chapter conversion failed", Err: err})
	}
	out = strings.TrimSpace(out)

	warnings = append(warnings, auditImages(out, ch.Index, warnings)...)
	return out, warnings
}

func placeholder(index int) string {
	return fmt.Sprintf("> [Chapter %d could not be converted]", index+1)
}

func writeFrontmatter(buf *bytes.Buffer, md book.Metadata) error {
	fm := frontmatter{
		Title:       md.Title,
		Authors:     md.Authors,
		Language:    md.Language,
		Publisher:   md.Publisher,
		Date:        md.Date,
		Description: md.Description,
	}
	if fm.Authors == nil {
		fm.Authors = []string{}
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	buf.WriteString("---\n")
	buf.Write(out)
	buf.WriteString("---\n\n")
	return nil
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}
