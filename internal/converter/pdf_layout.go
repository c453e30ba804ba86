package converter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuanying/epubshelf/internal/book"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	pageMargin     = 20.0
	baseFontSize   = 11.0
	baseLineHeight = 5.5
	listIndent     = 6.0
	quoteIndent    = 8.0
)

var headingSizes = map[atom.Atom]float64{
	atom.H1: 20, atom.H2: 17, atom.H3: 15, atom.H4: 13, atom.H5: 12, atom.H6: 11,
}

// position is a point on a page, in user units.
type position struct {
	page int
	y    float64
}

type listState struct {
	ordered bool
	n       int
}

// layout walks the integrated document and draws it with fpdf. It keeps the
// inline style state (bold, italic, monospace) the way a text renderer does,
// and records where each chapter starts.
type layout struct {
	pdf       *fpdf.Fpdf
	tr        func(string) string
	family    string
	monoFam   string
	optimizer *ImageOptimizer

	size        float64
	bold        int
	italic      int
	mono        int
	pre         int
	indent      float64
	lists       []listState
	atLineStart bool
	link        int

	chapter      int
	chapterLinks map[int]int
	starts       map[int]position
	images       map[string]string
	warnings     []error
}

func newLayout(pdf *fpdf.Fpdf, tr func(string) string, family, monoFam string, optimizer *ImageOptimizer, chapters int) *layout {
	l := &layout{
		pdf:          pdf,
		tr:           tr,
		family:       family,
		monoFam:      monoFam,
		optimizer:    optimizer,
		size:         baseFontSize,
		atLineStart:  true,
		chapter:      book.WholeDocument,
		chapterLinks: make(map[int]int, chapters),
		starts:       make(map[int]position, chapters),
		images:       make(map[string]string),
	}
	for i := 0; i < chapters; i++ {
		l.chapterLinks[i] = pdf.AddLink()
	}
	return l
}

func (l *layout) updateFont() {
	family := l.family
	if l.mono > 0 {
		family = l.monoFam
	}
	style := ""
	if l.bold > 0 {
		style += "B"
	}
	if l.italic > 0 {
		style += "I"
	}
	l.pdf.SetFont(family, style, l.size)
}

func (l *layout) lineHeight() float64 {
	return baseLineHeight * l.size / baseFontSize
}

func (l *layout) newline() {
	if !l.atLineStart {
		l.pdf.Ln(l.lineHeight())
		l.atLineStart = true
	}
}

func (l *layout) blockStart() {
	l.newline()
	l.pdf.SetLeftMargin(pageMargin + l.indent)
	l.pdf.SetX(pageMargin + l.indent)
}

func (l *layout) blockEnd(gap float64) {
	l.newline()
	l.pdf.Ln(gap)
}

func (l *layout) write(text string) {
	if text == "" {
		return
	}
	if l.link != 0 {
		l.pdf.WriteLinkID(l.lineHeight(), l.tr(text), l.link)
	} else {
		l.pdf.Write(l.lineHeight(), l.tr(text))
	}
	l.atLineStart = false
}

func (l *layout) walk(n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		l.children(n)
	case html.TextNode:
		l.text(n.Data)
	case html.ElementNode:
		l.element(n)
	}
}

func (l *layout) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		l.walk(c)
	}
}

func (l *layout) text(s string) {
	if l.pre > 0 {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if i > 0 {
				l.pdf.Ln(l.lineHeight())
				l.atLineStart = true
			}
			l.write(strings.ReplaceAll(line, "\t", "    "))
		}
		return
	}

	var b strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			space = true
			continue
		}
		if space && (b.Len() > 0 || !l.atLineStart) {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	if space && (b.Len() > 0 || !l.atLineStart) {
		b.WriteByte(' ')
	}
	l.write(b.String())
}

func (l *layout) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Title:
		return
	case atom.Section:
		l.section(n)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		l.heading(n)
	case atom.P, atom.Div:
		if attr(n, "id") == "toc" {
			l.pdf.AddPage()
			l.atLineStart = true
		}
		l.blockStart()
		l.children(n)
		l.blockEnd(2)
	case atom.Blockquote:
		l.indent += quoteIndent
		l.italic++
		l.updateFont()
		l.blockStart()
		l.children(n)
		l.italic--
		l.indent -= quoteIndent
		l.updateFont()
		l.blockEnd(2)
		l.pdf.SetLeftMargin(pageMargin + l.indent)
	case atom.Br:
		l.pdf.Ln(l.lineHeight())
		l.atLineStart = true
	case atom.B, atom.Strong:
		l.inline(n, &l.bold)
	case atom.I, atom.Em, atom.Cite, atom.Var:
		l.inline(n, &l.italic)
	case atom.Code, atom.Tt, atom.Kbd, atom.Samp:
		l.inline(n, &l.mono)
	case atom.Pre:
		l.mono++
		l.pre++
		l.updateFont()
		l.blockStart()
		l.children(n)
		l.pre--
		l.mono--
		l.updateFont()
		l.blockEnd(2)
	case atom.Ul, atom.Ol:
		l.list(n)
	case atom.Li:
		l.listItem(n)
	case atom.Hr:
		l.blockStart()
		y := l.pdf.GetY() + 1
		w, _ := l.pdf.GetPageSize()
		l.pdf.Line(pageMargin+l.indent, y, w-pageMargin, y)
		l.pdf.Ln(3)
	case atom.Img:
		l.image(attr(n, "src"))
	case atom.Table:
		l.table(n)
	case atom.A:
		l.anchor(n)
	default:
		if n.Data == "image" {
			l.image(attr(n, "href"))
			return
		}
		l.children(n)
	}
}

func (l *layout) inline(n *html.Node, counter *int) {
	*counter++
	l.updateFont()
	l.children(n)
	*counter--
	l.updateFont()
}

func (l *layout) section(n *html.Node) {
	class := attr(n, "class")
	switch {
	case strings.Contains(class, "title-page"):
		l.titlePage(n)
	case strings.Contains(class, "chapter"):
		idx, err := strconv.Atoi(attr(n, "data-index"))
		if err != nil {
			l.children(n)
			return
		}
		l.startChapter(idx)
		l.children(n)
		l.newline()
	default:
		l.children(n)
	}
}

// startChapter begins chapter idx on a new page and records its position.
func (l *layout) startChapter(idx int) {
	l.chapter = idx
	l.indent = 0
	l.lists = nil
	l.pdf.SetLeftMargin(pageMargin)
	l.pdf.AddPage()
	l.atLineStart = true
	pos := position{page: l.pdf.PageNo(), y: l.pdf.GetY()}
	l.starts[idx] = pos
	if link, ok := l.chapterLinks[idx]; ok {
		l.pdf.SetLink(link, pos.y, pos.page)
	}
}

func (l *layout) titlePage(n *html.Node) {
	l.pdf.AddPage()
	l.pdf.SetY(70)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		text := strings.TrimSpace(textContent(c))
		if text == "" {
			continue
		}
		switch attr(c, "class") {
		case "book-title":
			l.pdf.SetFont(l.family, "B", 26)
			l.pdf.MultiCell(0, 12, l.tr(text), "", "C", false)
			l.pdf.Ln(6)
		case "book-authors":
			l.pdf.SetFont(l.family, "", 16)
			l.pdf.MultiCell(0, 8, l.tr(text), "", "C", false)
			l.pdf.Ln(4)
		case "book-description":
			l.pdf.Ln(10)
			l.pdf.SetFont(l.family, "", baseFontSize)
			l.pdf.MultiCell(0, baseLineHeight, l.tr(text), "", "L", false)
		default:
			l.pdf.SetFont(l.family, "", 12)
			l.pdf.MultiCell(0, 6, l.tr(text), "", "C", false)
		}
	}
	l.size = baseFontSize
	l.updateFont()
	l.atLineStart = true
}

func (l *layout) heading(n *html.Node) {
	l.blockStart()
	l.pdf.Ln(3)
	prev := l.size
	l.size = headingSizes[n.DataAtom]
	l.bold++
	l.updateFont()
	l.children(n)
	l.bold--
	l.size = prev
	l.updateFont()
	l.blockEnd(2)
}

func (l *layout) list(n *html.Node) {
	l.lists = append(l.lists, listState{ordered: n.DataAtom == atom.Ol})
	l.indent += listIndent
	l.blockStart()
	l.children(n)
	l.indent -= listIndent
	l.lists = l.lists[:len(l.lists)-1]
	l.newline()
	l.pdf.SetLeftMargin(pageMargin + l.indent)
	if len(l.lists) == 0 {
		l.pdf.Ln(2)
	}
}

func (l *layout) listItem(n *html.Node) {
	l.newline()
	l.pdf.SetLeftMargin(pageMargin + l.indent)
	l.pdf.SetX(pageMargin + l.indent)
	marker := "- "
	if len(l.lists) > 0 {
		top := &l.lists[len(l.lists)-1]
		top.n++
		if top.ordered {
			marker = fmt.Sprintf("%d. ", top.n)
		}
	}
	l.write(marker)
	l.children(n)
	l.newline()
}

func (l *layout) anchor(n *html.Node) {
	href := attr(n, "href")
	if rest, ok := strings.CutPrefix(href, "#chapter-"); ok {
		if idx, err := strconv.Atoi(rest); err == nil {
			if link, ok := l.chapterLinks[idx]; ok && l.link == 0 {
				l.link = link
				l.children(n)
				l.link = 0
				return
			}
		}
	}
	l.children(n)
}

// table prints each row as one line of cell texts separated by " | ".
func (l *layout) table(n *html.Node) {
	l.blockStart()
	l.size = baseFontSize - 1
	l.updateFont()
	var rows func(*html.Node)
	rows = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom != atom.Tr {
				rows(c)
				continue
			}
			var cells []string
			header := false
			for td := c.FirstChild; td != nil; td = td.NextSibling {
				if td.DataAtom == atom.Td || td.DataAtom == atom.Th {
					cells = append(cells, collapseWhitespace(textContent(td)))
					header = header || td.DataAtom == atom.Th
				}
			}
			if header {
				l.bold++
				l.updateFont()
			}
			l.newline()
			l.write(strings.Join(cells, " | "))
			if header {
				l.bold--
				l.updateFont()
			}
		}
	}
	rows(n)
	l.size = baseFontSize
	l.updateFont()
	l.blockEnd(2)
}

// image draws an embedded image scaled to the content width. References that
// were not embedded were reported while building the document and are skipped.
func (l *layout) image(src string) {
	if !IsDataURI(src) {
		return
	}
	name, seen := l.images[src]
	if !seen {
		var err error
		name, err = l.registerImage(src)
		if err != nil {
			l.warnings = append(l.warnings, &book.ConversionError{Stage: "pdf", Chapter: l.chapter, Message: "image skipped", Err: err})
		}
		l.images[src] = name
	}
	if name == "" {
		return
	}

	info := l.pdf.GetImageInfo(name)
	w, h := l.fit(info.Width(), info.Height())

	l.newline()
	pageW, pageH := l.pdf.GetPageSize()
	_, _, _, bottom := l.pdf.GetMargins()
	if l.pdf.GetY()+h > pageH-bottom {
		l.pdf.AddPage()
	}
	x := pageMargin + l.indent
	if avail := pageW - pageMargin - x; w < avail {
		x += (avail - w) / 2
	}
	y := l.pdf.GetY()
	l.pdf.ImageOptions(name, x, y, w, h, false, fpdf.ImageOptions{}, 0, "")
	l.pdf.SetY(y + h + 2)
	l.atLineStart = true
}

func (l *layout) registerImage(src string) (string, error) {
	data, _, err := DecodeDataURI(src)
	if err != nil {
		return "", err
	}
	img, err := l.optimizer.Optimize(data)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("img%d", len(l.images))
	l.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: img.Format}, bytes.NewReader(img.Data))
	if err := l.pdf.Error(); err != nil {
		l.pdf.ClearError()
		return "", err
	}
	return name, nil
}

// fit converts an image's size to user units, shrinking it to the content
// box of the current page while keeping its aspect ratio.
func (l *layout) fit(w, h float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	pageW, pageH := l.pdf.GetPageSize()
	maxW := pageW - 2*pageMargin - l.indent
	maxH := pageH - 2*pageMargin - 10
	scale := 1.0
	if w > maxW {
		scale = maxW / w
	}
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}
