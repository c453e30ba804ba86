// Package book holds the canonical, read-only representation of an imported EPUB.
package book

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidBook is wrapped by every construction failure from New.
var ErrInvalidBook = errors.New("invalid book")

// Metadata describes the publication. Cover names an image asset.
type Metadata struct {
	Title       string
	Authors     []string
	Publisher   string
	Date        string
	Language    string
	Description string
	Identifier  string
	Cover       string
}

// Chapter is one reading-order item. Markup is the XHTML body.
type Chapter struct {
	Index  int
	Title  string
	Markup string
}

// TocEntry is one row of the flattened table of contents. A nil ChapterIndex
// marks a heading-only entry that points at no chapter.
type TocEntry struct {
	Title        string
	ChapterIndex *int
	AnchorID     string
	Depth        int
}

// LinkAnchorAttr carries the fragment of a link that was rewritten to point
// at a chapter, so per-chapter output can still target the exact element.
const LinkAnchorAttr = "data-anchor"

// Navigable reports whether the entry targets a chapter.
func (e TocEntry) Navigable() bool {
	return e.ChapterIndex != nil
}

// Index returns a pointer to i, for building TocEntry values.
func Index(i int) *int {
	return &i
}

// ImageAsset describes an embedded image. Name is the content-root relative path.
type ImageAsset struct {
	Name      string
	MediaType string
	Size      int64
}

// Summary is the short form returned by imports and listings.
type Summary struct {
	ID           string
	Title        string
	Authors      []string
	ChapterCount int
	ImportedAt   time.Time
}

// Params carries everything New needs.
type Params struct {
	ID          string
	Fingerprint string
	ImportedAt  time.Time
	Metadata    Metadata
	Chapters    []Chapter
	TOC         []TocEntry
	Images      []ImageAsset
}

// Book is immutable once built. Accessors return copies.
type Book struct {
	id          string
	fingerprint string
	importedAt  time.Time
	metadata    Metadata
	chapters    []Chapter
	toc         []TocEntry
	images      map[string]ImageAsset
}

// New validates p and builds a Book.
func New(p Params) (*Book, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidBook)
	}
	for i, ch := range p.Chapters {
		if ch.Index != i {
			return nil, fmt.Errorf("%w: chapter at position %d has index %d", ErrInvalidBook, i, ch.Index)
		}
	}
	if err := validateTOC(p.TOC, len(p.Chapters)); err != nil {
		return nil, err
	}

	b := &Book{
		id:          p.ID,
		fingerprint: p.Fingerprint,
		importedAt:  p.ImportedAt,
		metadata:    copyMetadata(p.Metadata),
		chapters:    append([]Chapter(nil), p.Chapters...),
		toc:         copyTOC(p.TOC),
		images:      make(map[string]ImageAsset, len(p.Images)),
	}
	for _, img := range p.Images {
		if img.Name == "" {
			return nil, fmt.Errorf("%w: image with empty name", ErrInvalidBook)
		}
		if _, dup := b.images[img.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate image %q", ErrInvalidBook, img.Name)
		}
		b.images[img.Name] = img
	}
	if c := b.metadata.Cover; c != "" {
		if _, ok := b.images[c]; !ok {
			b.metadata.Cover = ""
		}
	}
	return b, nil
}

func validateTOC(toc []TocEntry, chapters int) error {
	for i, e := range toc {
		if e.ChapterIndex != nil && (*e.ChapterIndex < 0 || *e.ChapterIndex >= chapters) {
			return fmt.Errorf("%w: toc entry %d references chapter %d of %d", ErrInvalidBook, i, *e.ChapterIndex, chapters)
		}
		if e.Depth < 0 {
			return fmt.Errorf("%w: toc entry %d has negative depth", ErrInvalidBook, i)
		}
		prev := -1
		if i > 0 {
			prev = toc[i-1].Depth
		}
		if e.Depth > prev+1 {
			return fmt.Errorf("%w: toc entry %d jumps from depth %d to %d", ErrInvalidBook, i, prev, e.Depth)
		}
	}
	return nil
}

func (b *Book) ID() string            { return b.id }
func (b *Book) Fingerprint() string   { return b.fingerprint }
func (b *Book) ImportedAt() time.Time { return b.importedAt }
func (b *Book) Metadata() Metadata    { return copyMetadata(b.metadata) }
func (b *Book) ChapterCount() int     { return len(b.chapters) }

// Chapters returns the chapters in index order.
func (b *Book) Chapters() []Chapter {
	return append([]Chapter(nil), b.chapters...)
}

// Chapter returns the chapter at index, if any.
func (b *Book) Chapter(index int) (Chapter, bool) {
	if index < 0 || index >= len(b.chapters) {
		return Chapter{}, false
	}
	return b.chapters[index], true
}

// TOC returns the flattened table of contents.
func (b *Book) TOC() []TocEntry {
	return copyTOC(b.toc)
}

// Images returns the assets sorted by name.
func (b *Book) Images() []ImageAsset {
	out := make([]ImageAsset, 0, len(b.images))
	for _, img := range b.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Image looks up an asset by name.
func (b *Book) Image(name string) (ImageAsset, bool) {
	img, ok := b.images[name]
	return img, ok
}

// Summary returns the listing form of the book.
func (b *Book) Summary() Summary {
	return Summary{
		ID:           b.id,
		Title:        b.metadata.Title,
		Authors:      append([]string(nil), b.metadata.Authors...),
		ChapterCount: len(b.chapters),
		ImportedAt:   b.importedAt,
	}
}

func copyMetadata(m Metadata) Metadata {
	m.Authors = append([]string(nil), m.Authors...)
	return m
}

func copyTOC(toc []TocEntry) []TocEntry {
	out := make([]TocEntry, len(toc))
	for i, e := range toc {
		if e.ChapterIndex != nil {
			e.ChapterIndex = Index(*e.ChapterIndex)
		}
		out[i] = e
	}
	return out
}
