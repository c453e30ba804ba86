// Package epubtest builds small EPUB archives in memory for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"path"
	"strings"
	"testing"
)

// Chapter is one spine item. Body is inserted verbatim inside <body>.
type Chapter struct {
	ID    string
	Href  string // relative to OEBPS; defaults to text/chapterN.xhtml
	Title string
	Body  string
}

// Image is a manifest image. Href is relative to OEBPS.
type Image struct {
	ID        string
	Href      string
	MediaType string
	Data      []byte
}

// Book describes the archive to build.
type Book struct {
	Title       string
	Authors     []string
	Language    string
	Publisher   string
	Date        string
	Description string

	Chapters []Chapter
	Images   []Image

	NCX bool // emit toc.ncx referenced from the spine
	NAV bool // emit an EPUB 3 nav document

	// NavXHTML replaces the generated nav document body when set.
	NavXHTML string

	OmitContainer bool
	OmitOPF       bool
	ExtraSpineIDs []string // idrefs appended to the spine verbatim
	ExtraFiles    map[string]string
}

// Build returns the archive bytes or fails the test.
func Build(t testing.TB, b Book) []byte {
	t.Helper()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("failed to build test epub: %v", err)
	}
	return data
}

// Dracula returns a three chapter book with an NCX.
func Dracula() Book {
	return Book{
		Title:    "Dracula",
		Authors:  []string{"Bram Stoker"},
		Language: "en",
		NCX:      true,
		Chapters: []Chapter{
			{Title: "Jonathan Harker's Journal", Body: "<h1>Jonathan Harker's Journal</h1><p>3 May. Bistritz.</p>"},
			{Title: "Mina Murray's Journal", Body: "<h1>Mina Murray's Journal</h1><p>Letter from Miss Mina Murray.</p>"},
			{Title: "Dr. Seward's Diary", Body: "<h1>Dr. Seward's Diary</h1><p>25 April.</p>"},
		},
	}
}

// PNG encodes a small solid image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func (b Book) chapterHref(i int) string {
	if b.Chapters[i].Href != "" {
		return b.Chapters[i].Href
	}
	return fmt.Sprintf("text/chapter%d.xhtml", i+1)
}

func (b Book) chapterID(i int) string {
	if b.Chapters[i].ID != "" {
		return b.Chapters[i].ID
	}
	return fmt.Sprintf("chapter%d", i+1)
}

// Bytes renders the archive.
func (b Book) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	add := func(name, content string, method uint16) error {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return err
		}
		_, err = fw.Write([]byte(content))
		return err
	}

	if err := add("mimetype", "application/epub+zip", zip.Store); err != nil {
		return nil, err
	}
	if !b.OmitContainer {
		if err := add("META-INF/container.xml", containerXML, zip.Deflate); err != nil {
			return nil, err
		}
	}
	if !b.OmitOPF {
		if err := add("OEBPS/content.opf", b.opf(), zip.Deflate); err != nil {
			return nil, err
		}
	}
	for i, ch := range b.Chapters {
		doc := fmt.Sprintf(chapterXHTML, html.EscapeString(ch.Title), ch.Body)
		if err := add("OEBPS/"+b.chapterHref(i), doc, zip.Deflate); err != nil {
			return nil, err
		}
	}
	for _, img := range b.Images {
		fw, err := w.Create("OEBPS/" + img.Href)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(img.Data); err != nil {
			return nil, err
		}
	}
	if b.NCX {
		if err := add("OEBPS/toc.ncx", b.ncx(), zip.Deflate); err != nil {
			return nil, err
		}
	}
	if b.NAV {
		if err := add("OEBPS/nav.xhtml", b.nav(), zip.Deflate); err != nil {
			return nil, err
		}
	}
	for name, content := range b.ExtraFiles {
		if err := add(name, content, zip.Deflate); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b Book) opf() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">urn:uuid:test</dc:identifier>
`)
	field := func(tag, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "    <dc:%s>%s</dc:%s>\n", tag, html.EscapeString(v), tag)
		}
	}
	field("title", b.Title)
	for _, a := range b.Authors {
		field("creator", a)
	}
	field("language", b.Language)
	field("publisher", b.Publisher)
	field("date", b.Date)
	field("description", b.Description)
	sb.WriteString("  </metadata>\n  <manifest>\n")

	for i := range b.Chapters {
		fmt.Fprintf(&sb, "    <item id=%q href=%q media-type=\"application/xhtml+xml\"/>\n", b.chapterID(i), b.chapterHref(i))
	}
	for i, img := range b.Images {
		id := img.ID
		if id == "" {
			id = fmt.Sprintf("img%d", i+1)
		}
		mt := img.MediaType
		if mt == "" {
			mt = "image/png"
		}
		fmt.Fprintf(&sb, "    <item id=%q href=%q media-type=%q/>\n", id, img.Href, mt)
	}
	if b.NCX {
		sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	}
	if b.NAV {
		sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	}
	sb.WriteString("  </manifest>\n")

	if b.NCX {
		sb.WriteString("  <spine toc=\"ncx\">\n")
	} else {
		sb.WriteString("  <spine>\n")
	}
	for i := range b.Chapters {
		fmt.Fprintf(&sb, "    <itemref idref=%q/>\n", b.chapterID(i))
	}
	for _, id := range b.ExtraSpineIDs {
		fmt.Fprintf(&sb, "    <itemref idref=%q/>\n", id)
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

func (b Book) ncx() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="urn:uuid:test"/></head>
`)
	fmt.Fprintf(&sb, "  <docTitle><text>%s</text></docTitle>\n  <navMap>\n", html.EscapeString(b.Title))
	for i, ch := range b.Chapters {
		fmt.Fprintf(&sb, "    <navPoint id=\"np%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel><content src=%q/></navPoint>\n",
			i+1, i+1, html.EscapeString(ch.Title), b.chapterHref(i))
	}
	sb.WriteString("  </navMap>\n</ncx>\n")
	return sb.String()
}

func (b Book) nav() string {
	body := b.NavXHTML
	if body == "" {
		var sb strings.Builder
		sb.WriteString("<nav epub:type=\"toc\"><ol>\n")
		for i, ch := range b.Chapters {
			fmt.Fprintf(&sb, "<li><a href=%q>%s</a></li>\n", b.chapterHref(i), html.EscapeString(ch.Title))
		}
		sb.WriteString("</ol></nav>")
		body = sb.String()
	}
	return fmt.Sprintf(navXHTML, body)
}

// Path returns the archive path of an OEBPS-relative href.
func Path(href string) string {
	return path.Join("OEBPS", href)
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const chapterXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>%s</body>
</html>`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Navigation</title></head>
<body>%s</body>
</html>`
