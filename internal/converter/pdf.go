package converter

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/yuanying/epubshelf/internal/book"
	"golang.org/x/net/html"
)

// PDFOptions tunes PDF output. FontPath names a UTF-8 TrueType font; without
// one the core Helvetica and Courier fonts are used with cp1252 text.
type PDFOptions struct {
	FontPath      string
	ImageMaxWidth int
	ImageQuality  int
}

// PDFRenderer lays a book out as an A4 PDF: a title page, the table of
// contents, then every chapter from a new page, with an outline that mirrors
// the TOC.
type PDFRenderer struct {
	opts      PDFOptions
	optimizer *ImageOptimizer
}

// NewPDFRenderer creates a renderer.
func NewPDFRenderer(opts PDFOptions) *PDFRenderer {
	return &PDFRenderer{
		opts:      opts,
		optimizer: NewImageOptimizer(opts.ImageMaxWidth, opts.ImageQuality),
	}
}

func (r *PDFRenderer) MediaType() string { return "application/pdf" }

func (r *PDFRenderer) Filename(b *book.Book) string { return PDFFilename(b.Metadata().Title) }

// Render writes the PDF to w once it has been generated and validated in
// memory. Nothing is written when rendering fails.
func (r *PDFRenderer) Render(b *book.Book, images ImageLookup, w io.Writer) (warnings []error, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &book.ConversionError{Stage: "pdf", Chapter: book.WholeDocument, Message: "PDF rendering failed", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	builder := NewHTMLBuilder()
	builder.SetTitlePage(b.Metadata())
	tree := b.Tree()
	builder.SetTOC(tree)
	chapters := b.Chapters()
	for _, ch := range chapters {
		builder.AddChapter(ch, images)
	}
	warnings = append(warnings, builder.Warnings()...)

	doc, err := html.Parse(strings.NewReader(builder.Build()))
	if err != nil {
		return warnings, &book.ConversionError{Stage: "pdf", Chapter: book.WholeDocument, Message: "failed to parse document", Err: err}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)

	family, mono := "Helvetica", "Courier"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if r.opts.FontPath != "" {
		for _, style := range []string{"", "B", "I", "BI"} {
			pdf.AddUTF8Font("body", style, r.opts.FontPath)
		}
		family, mono = "body", "body"
		tr = func(s string) string { return s }
	}
	if err := pdf.Error(); err != nil {
		return warnings, &book.ConversionError{Stage: "pdf", Chapter: book.WholeDocument, Message: "failed to load font", Err: err}
	}

	md := b.Metadata()
	pdf.SetTitle(displayTitle(md.Title), true)
	pdf.SetAuthor(strings.Join(md.Authors, ", "), true)
	pdf.SetCreator("epubshelf", true)
	pdf.SetFooterFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetY(-15)
		pdf.SetFont(family, "", 9)
		pdf.CellFormat(0, 10, strconv.Itoa(pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.SetFont(family, "", baseFontSize)
	l := newLayout(pdf, tr, family, mono, r.optimizer, len(chapters))
	l.walk(doc)
	warnings = append(warnings, l.warnings...)

	addOutline(pdf, tree, l.starts)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return warnings, &book.ConversionError{Stage: "pdf", Chapter: book.WholeDocument, Message: "failed to write PDF", Err: err}
	}
	if err := ValidatePDF(bytes.NewReader(buf.Bytes())); err != nil {
		return warnings, &book.ConversionError{Stage: "pdf", Chapter: book.WholeDocument, Message: "generated PDF is invalid", Err: err}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return warnings, fmt.Errorf("failed to write PDF: %w", err)
	}
	return warnings, nil
}

var disableConfigDir sync.Once

func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// ValidatePDF checks r against the PDF specification.
func ValidatePDF(r io.ReadSeeker) error {
	ctx, err := api.ReadContext(r, pdfcpuConfig())
	if err != nil {
		return fmt.Errorf("failed to read PDF: %w", err)
	}
	return api.ValidateContext(ctx)
}

// PageCount returns the number of pages of the PDF in r.
func PageCount(r io.ReadSeeker) (int, error) {
	ctx, err := api.ReadContext(r, pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	// The page tree is only walked on demand.
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return ctx.PageCount, nil
}

// OutlineTitles lists the outline of the PDF in r, depth first.
func OutlineTitles(r io.ReadSeeker) ([]string, error) {
	bms, err := api.Bookmarks(r, pdfcpuConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to read outline: %w", err)
	}
	var titles []string
	var visit func([]pdfcpu.Bookmark)
	visit = func(list []pdfcpu.Bookmark) {
		for _, bm := range list {
			titles = append(titles, bm.Title)
			visit(bm.Kids)
		}
	}
	visit(bms)
	return titles, nil
}
