package converter

import (
	"io"

	"github.com/yuanying/epubshelf/internal/book"
)

// Renderer produces one export format. Render returns non-fatal warnings
// alongside any error that aborted the export.
type Renderer interface {
	MediaType() string
	Filename(b *book.Book) string
	Render(b *book.Book, images ImageLookup, w io.Writer) ([]error, error)
}

var (
	_ Renderer = (*MarkdownRenderer)(nil)
	_ Renderer = (*ChaptersRenderer)(nil)
	_ Renderer = (*PDFRenderer)(nil)
)
