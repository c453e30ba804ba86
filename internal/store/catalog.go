package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/logging"
)

// BookRecord is the persisted form of a book.Book.
type BookRecord struct {
	ID          string `badgerhold:"key"`
	Fingerprint string
	ImportedAt  time.Time

	Title       string
	Authors     []string
	Publisher   string
	Date        string
	Language    string
	Description string
	Identifier  string
	Cover       string

	Chapters []ChapterRecord
	TOC      []TocRecord
	Images   []book.ImageAsset
}

type ChapterRecord struct {
	Title  string
	Markup string
}

// TocRecord stores a table of contents row. Chapter is -1 for heading-only entries.
type TocRecord struct {
	Title    string
	Chapter  int
	AnchorID string
	Depth    int
}

// NewBookRecord converts a book for storage.
func NewBookRecord(b *book.Book) *BookRecord {
	md := b.Metadata()
	rec := &BookRecord{
		ID:          b.ID(),
		Fingerprint: b.Fingerprint(),
		ImportedAt:  b.ImportedAt(),
		Title:       md.Title,
		Authors:     md.Authors,
		Publisher:   md.Publisher,
		Date:        md.Date,
		Language:    md.Language,
		Description: md.Description,
		Identifier:  md.Identifier,
		Cover:       md.Cover,
		Images:      b.Images(),
	}
	for _, ch := range b.Chapters() {
		rec.Chapters = append(rec.Chapters, ChapterRecord{Title: ch.Title, Markup: ch.Markup})
	}
	for _, e := range b.TOC() {
		tr := TocRecord{Title: e.Title, Chapter: -1, AnchorID: e.AnchorID, Depth: e.Depth}
		if e.ChapterIndex != nil {
			tr.Chapter = *e.ChapterIndex
		}
		rec.TOC = append(rec.TOC, tr)
	}
	return rec
}

// Book rebuilds the domain value.
func (r *BookRecord) Book() (*book.Book, error) {
	p := book.Params{
		ID:          r.ID,
		Fingerprint: r.Fingerprint,
		ImportedAt:  r.ImportedAt,
		Metadata: book.Metadata{
			Title:       r.Title,
			Authors:     r.Authors,
			Publisher:   r.Publisher,
			Date:        r.Date,
			Language:    r.Language,
			Description: r.Description,
			Identifier:  r.Identifier,
			Cover:       r.Cover,
		},
		Images: r.Images,
	}
	for i, ch := range r.Chapters {
		p.Chapters = append(p.Chapters, book.Chapter{Index: i, Title: ch.Title, Markup: ch.Markup})
	}
	for _, tr := range r.TOC {
		e := book.TocEntry{Title: tr.Title, AnchorID: tr.AnchorID, Depth: tr.Depth}
		if tr.Chapter >= 0 {
			e.ChapterIndex = book.Index(tr.Chapter)
		}
		p.TOC = append(p.TOC, e)
	}
	return book.New(p)
}

// Summary returns the listing form without rebuilding the book.
func (r *BookRecord) Summary() book.Summary {
	return book.Summary{
		ID:           r.ID,
		Title:        r.Title,
		Authors:      append([]string(nil), r.Authors...),
		ChapterCount: len(r.Chapters),
		ImportedAt:   r.ImportedAt,
	}
}

// Catalog stores books by id.
type Catalog struct {
	db     *DB
	logger arbor.ILogger
}

// NewCatalog creates a catalog over db.
func NewCatalog(db *DB, logger arbor.ILogger) *Catalog {
	return &Catalog{db: db, logger: logging.OrNop(logger)}
}

// Save inserts or replaces a book.
func (c *Catalog) Save(ctx context.Context, b *book.Book) error {
	rec := NewBookRecord(b)
	if err := c.db.Store().Upsert(rec.ID, rec); err != nil {
		return fmt.Errorf("failed to save book %s: %w", rec.ID, err)
	}
	c.logger.Debug().Str("book_id", rec.ID).Int("chapters", len(rec.Chapters)).Msg("Saved book")
	return nil
}

// Load returns the book with id, or *book.BookNotFoundError.
func (c *Catalog) Load(ctx context.Context, id string) (*book.Book, error) {
	var rec BookRecord
	err := c.db.Store().Get(id, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, &book.BookNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book %s: %w", id, err)
	}
	b, err := rec.Book()
	if err != nil {
		return nil, fmt.Errorf("stored book %s is corrupt: %w", id, err)
	}
	return b, nil
}

// List returns summaries ordered by import time, oldest first.
func (c *Catalog) List(ctx context.Context) ([]book.Summary, error) {
	var recs []BookRecord
	if err := c.db.Store().Find(&recs, nil); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].ImportedAt.Equal(recs[j].ImportedAt) {
			return recs[i].ImportedAt.Before(recs[j].ImportedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	out := make([]book.Summary, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].Summary())
	}
	return out, nil
}

// Delete removes a book. Deleting an unknown id returns *book.BookNotFoundError.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	err := c.db.Store().Delete(id, &BookRecord{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return &book.BookNotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to delete book %s: %w", id, err)
	}
	return nil
}
