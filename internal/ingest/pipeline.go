// Package ingest turns EPUB archive bytes into a book.Book and its image set.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
	"github.com/yuanying/epubshelf/internal/logging"
)

// Identity is assigned by the caller before parsing.
type Identity struct {
	ID          string
	Fingerprint string
	ImportedAt  time.Time
}

// Result is a parsed book plus the bytes of its images.
type Result struct {
	Book   *book.Book
	Images *ImageSet
	// MissingImages lists referenced asset names absent from the manifest.
	MissingImages []string
}

// Pipeline parses archives. It holds no per-import state and is safe for concurrent use.
type Pipeline struct {
	logger       arbor.ILogger
	maxEntrySize int64
}

// NewPipeline creates a pipeline. maxEntrySize <= 0 uses the reader default.
func NewPipeline(logger arbor.ILogger, maxEntrySize int64) *Pipeline {
	return &Pipeline{logger: logging.OrNop(logger), maxEntrySize: maxEntrySize}
}

// Parse builds a Book from archive bytes. Structural failures are returned as
// *book.ParseError; navigation defects and unreadable images are logged and
// tolerated.
func (p *Pipeline) Parse(ctx context.Context, data []byte, id Identity) (*Result, error) {
	reader, err := epub.OpenBytes(data, epub.WithMaxEntrySize(p.maxEntrySize))
	if err != nil {
		return nil, classify(err)
	}
	defer reader.Close()

	opf := reader.Package()
	items, err := reader.SpineItems()
	if err != nil {
		return nil, classify(err)
	}
	if len(items) == 0 {
		return nil, &book.ParseError{Kind: book.MalformedArchive, Err: errors.New("spine is empty")}
	}

	log := p.logger.WithCorrelationId(id.ID)

	images := loadImages(reader, func(href string, err error) {
		log.Warn().Err(err).Str("image", href).Msg("Skipping unreadable image")
	})

	nav, err := epub.LoadNavigation(reader)
	if err != nil {
		log.Warn().Err(err).Msg("Navigation document unusable, synthesizing table of contents")
		nav = nil
	}
	labels := navLabels(nav)

	spine := make(spineIndex, len(items))
	for i, item := range items {
		key := NormalizeName(item.Href)
		if _, dup := spine[key]; !dup {
			spine[key] = i
		}
	}

	bookTitle := opf.Metadata.Title
	chapters := make([]book.Chapter, 0, len(items))
	missing := make(map[string]bool)
	var missingOrder []string

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := reader.ReadFile(item.Href)
		if err != nil {
			return nil, &book.ParseError{Kind: book.MalformedArchive, Err: fmt.Errorf("spine item %q: %w", item.ID, err)}
		}
		content, err := epub.LoadContent(item.ID, item.Href, raw)
		if err != nil {
			return nil, &book.ParseError{Kind: book.MalformedArchive, Err: err}
		}

		markup, refs, err := chapterMarkup(content, images, spine)
		if err != nil {
			return nil, &book.ParseError{Kind: book.MalformedArchive, Err: err}
		}
		for _, ref := range refs {
			if !images.Has(ref) && !missing[ref] {
				missing[ref] = true
				missingOrder = append(missingOrder, ref)
				log.Warn().Str("image", ref).Int("chapter", i).Msg("Chapter references an image missing from the archive")
			}
		}

		chapters = append(chapters, book.Chapter{
			Index:  i,
			Title:  chapterTitle(content.Title, labels[NormalizeName(item.Href)], bookTitle, i),
			Markup: markup,
		})
	}

	toc := resolveTOC(nav, spine, chapters)

	var cover string
	if href := detectCover(reader); href != "" {
		cover = images.AssetName(href)
	}

	b, err := book.New(book.Params{
		ID:          id.ID,
		Fingerprint: id.Fingerprint,
		ImportedAt:  id.ImportedAt,
		Metadata: book.Metadata{
			Title:       bookTitle,
			Authors:     opf.Metadata.Authors(),
			Publisher:   opf.Metadata.Publisher,
			Date:        opf.Metadata.Date,
			Language:    opf.Metadata.Language,
			Description: opf.Metadata.Description,
			Identifier:  opf.Metadata.Identifier,
			Cover:       cover,
		},
		Chapters: chapters,
		TOC:      toc,
		Images:   images.Assets(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build book: %w", err)
	}

	log.Info().
		Str("title", bookTitle).
		Int("chapters", len(chapters)).
		Int("toc_entries", len(toc)).
		Int("images", images.Len()).
		Msg("Parsed EPUB")

	return &Result{Book: b, Images: images, MissingImages: missingOrder}, nil
}

// chapterTitle prefers the document's own title unless it merely repeats the
// book title, then the navigation label, then a numbered fallback.
func chapterTitle(docTitle, navLabel, bookTitle string, index int) string {
	if docTitle != "" && (navLabel == "" || !strings.EqualFold(docTitle, bookTitle)) {
		return docTitle
	}
	if navLabel != "" {
		return navLabel
	}
	return fmt.Sprintf("Chapter %d", index+1)
}

// classify maps reader failures onto the parse error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, epub.ErrMissingPackage):
		return &book.ParseError{Kind: book.MissingPackage, Err: err}
	case errors.Is(err, epub.ErrDanglingSpineRef):
		return &book.ParseError{Kind: book.DanglingSpineRef, Err: err}
	default:
		return &book.ParseError{Kind: book.MalformedArchive, Err: err}
	}
}
