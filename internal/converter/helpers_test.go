package converter

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/yuanying/epubshelf/internal/book"
)

// imageMap is an in-memory ImageLookup.
type imageMap map[string][]byte

func (m imageMap) Resolve(name string) ([]byte, string, bool) {
	data, ok := m[name]
	if !ok {
		return nil, "", false
	}
	return data, "image/png", true
}

// panicLookup fails every resolution by panicking.
type panicLookup struct{}

func (panicLookup) Resolve(string) ([]byte, string, bool) { panic("lookup exploded") }

func newTestBook(t *testing.T, md book.Metadata, chapters []book.Chapter, toc []book.TocEntry) *book.Book {
	t.Helper()
	for i := range chapters {
		chapters[i].Index = i
	}
	b, err := book.New(book.Params{
		ID:          "book-1",
		Fingerprint: "fp",
		ImportedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:    md,
		Chapters:    chapters,
		TOC:         toc,
	})
	if err != nil {
		t.Fatalf("book.New() error = %v", err)
	}
	return b
}

// draculaBook is three chapters with a flat TOC.
func draculaBook(t *testing.T) *book.Book {
	return newTestBook(t,
		book.Metadata{Title: "Dracula", Authors: []string{"Bram Stoker"}, Language: "en"},
		[]book.Chapter{
			{Title: "Jonathan Harker's Journal", Markup: "<h1>Jonathan Harker's Journal</h1><p>3 May. Bistritz.</p>"},
			{Title: "Mina Murray's Journal", Markup: `<h1>Mina Murray's Journal</h1><p>Letter from <em>Miss</em> Mina Murray.</p><p>See <a href="#chapter-0">the first journal</a>.</p>`},
			{Title: "Dr. Seward's Diary", Markup: "<h1>Dr. Seward's Diary</h1><p>25 April.</p>"},
		},
		[]book.TocEntry{
			{Title: "Jonathan Harker's Journal", ChapterIndex: book.Index(0)},
			{Title: "Mina Murray's Journal", ChapterIndex: book.Index(1)},
			{Title: "Dr. Seward's Diary", ChapterIndex: book.Index(2)},
		},
	)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}
