package converter

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/ingest"
)

// TOCHeading titles the generated table of contents.
const TOCHeading = "Table of Contents"

// writeTOC writes a Markdown table of contents. Navigable entries become
// links built by target; heading-only entries are plain text. Nesting is two
// spaces per depth.
func writeTOC(buf *bytes.Buffer, entries []book.TocEntry, target func(book.TocEntry) string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(buf, "## %s\n\n", TOCHeading)
	for _, e := range entries {
		buf.WriteString(strings.Repeat("  ", e.Depth))
		title := escapeLinkText(e.Title)
		if e.Navigable() {
			fmt.Fprintf(buf, "- [%s](%s)\n", title, target(e))
		} else {
			fmt.Fprintf(buf, "- %s\n", title)
		}
	}
	buf.WriteString("\n")
}

// escapeLinkText keeps bracket characters in titles from closing the link text.
func escapeLinkText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

// inlineTOC renders the table of contents as nested HTML lists for the PDF
// front matter. Links point at chapter anchors.
func inlineTOC(nodes []*book.TocNode) string {
	if len(nodes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div id="toc">`)
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(TOCHeading))
	writeInlineTOCEntries(&b, nodes)
	b.WriteString("</div>")
	return b.String()
}

func writeInlineTOCEntries(b *strings.Builder, nodes []*book.TocNode) {
	b.WriteString("<ul>")
	for _, n := range nodes {
		b.WriteString("<li>")
		label := html.EscapeString(n.Entry.Title)
		if n.Entry.Navigable() {
			fmt.Fprintf(b, `<a href="#%s">%s</a>`, ingest.ChapterAnchor(*n.Entry.ChapterIndex), label)
		} else {
			b.WriteString(label)
		}
		if len(n.Children) > 0 {
			writeInlineTOCEntries(b, n.Children)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}
