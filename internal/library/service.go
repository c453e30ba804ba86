// Package library is the entry point collaborators use: it imports EPUB
// archives once, serves the stored books and runs exports.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/yuanying/epubshelf/internal/blob"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/config"
	"github.com/yuanying/epubshelf/internal/converter"
	"github.com/yuanying/epubshelf/internal/export"
	"github.com/yuanying/epubshelf/internal/ingest"
	"github.com/yuanying/epubshelf/internal/logging"
	"github.com/yuanying/epubshelf/internal/store"
)

// Service is safe for concurrent use.
type Service struct {
	logger   arbor.ILogger
	db       *store.DB
	catalog  *store.Catalog
	registry *store.Registry
	blobs    blob.Adapter
	pipeline *ingest.Pipeline
	exporter *export.Orchestrator
}

// New opens the catalog and blob store named by cfg.
func New(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (*Service, error) {
	logger = logging.OrNop(logger)

	db, err := store.Open(logger, cfg.DatabaseDir())
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewAdapter(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	s := &Service{
		logger:   logger,
		db:       db,
		catalog:  store.NewCatalog(db, logger),
		registry: store.NewRegistry(db, logger),
		blobs:    blobs,
		pipeline: ingest.NewPipeline(logger, cfg.Ingest.MaxEntrySize),
	}
	s.exporter = export.NewOrchestrator(s.catalog, s.imageLookup, export.Options{
		TempDir:  cfg.Storage.TempDir,
		Markdown: converter.MarkdownOptions{HeadingStyle: cfg.Export.Markdown.HeadingStyle},
		PDF: converter.PDFOptions{
			FontPath:      cfg.Export.PDF.FontPath,
			ImageMaxWidth: cfg.Export.PDF.ImageMaxWidth,
			ImageQuality:  cfg.Export.PDF.ImageQuality,
		},
	}, logger)
	return s, nil
}

// Close releases the blob store and the database.
func (s *Service) Close() error {
	return errors.Join(s.blobs.Close(), s.db.Close())
}

func (s *Service) imageLookup(ctx context.Context, b *book.Book) converter.ImageLookup {
	return blob.NewImages(ctx, s.blobs, b, s.logger)
}

// Fingerprint identifies archive content for duplicate detection.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ImportArchive parses and stores an EPUB archive. A second import of the
// same bytes fails with *book.DuplicateImportError; an unreadable archive
// fails with *book.ParseError. Nothing is kept from a failed import: images
// are written first and removed again unless the book is registered.
func (s *Service) ImportArchive(ctx context.Context, data []byte) (book.Summary, error) {
	fp := Fingerprint(data)
	if rec, ok, err := s.registry.Lookup(ctx, fp); err != nil {
		return book.Summary{}, err
	} else if ok {
		return book.Summary{}, &book.DuplicateImportError{BookID: rec.BookID, Title: rec.Title}
	}

	id := uuid.NewString()
	res, err := s.pipeline.Parse(ctx, data, ingest.Identity{ID: id, Fingerprint: fp, ImportedAt: time.Now().UTC()})
	if err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fp).Msg("Import rejected")
		return book.Summary{}, err
	}
	b := res.Book

	src := func(name string) ([]byte, bool) {
		data, _, ok := res.Images.Resolve(name)
		return data, ok
	}
	if err := blob.SaveImages(ctx, s.blobs, b, src); err != nil {
		return book.Summary{}, s.rollback(ctx, b, err)
	}
	// The fingerprint and the catalog record commit together.
	if err := s.registry.Register(ctx, b); err != nil {
		return book.Summary{}, s.rollback(ctx, b, err)
	}

	s.logger.Info().
		Str("book_id", id).
		Str("title", b.Metadata().Title).
		Int("chapters", b.ChapterCount()).
		Int("images", len(b.Images())).
		Int("missing_images", len(res.MissingImages)).
		Msg("Imported book")
	return b.Summary(), nil
}

// rollback removes the images of an import that was not registered and
// returns cause.
func (s *Service) rollback(ctx context.Context, b *book.Book, cause error) error {
	if err := blob.DeletePrefix(ctx, s.blobs, blob.BookPrefix(b.ID())); err != nil {
		s.logger.Warn().Err(err).Str("book_id", b.ID()).Msg("Failed to remove images of aborted import")
	}
	return cause
}

// ImportFile imports the archive at path.
func (s *Service) ImportFile(ctx context.Context, path string) (book.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return book.Summary{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.ImportArchive(ctx, data)
}

// GetBook returns a stored book or *book.BookNotFoundError.
func (s *Service) GetBook(ctx context.Context, id string) (*book.Book, error) {
	return s.catalog.Load(ctx, id)
}

// GetChapter returns chapter index of book id. Both a missing book and an
// index out of range match book.ErrNotFound.
func (s *Service) GetChapter(ctx context.Context, id string, index int) (book.Chapter, error) {
	b, err := s.catalog.Load(ctx, id)
	if err != nil {
		return book.Chapter{}, err
	}
	ch, ok := b.Chapter(index)
	if !ok {
		return book.Chapter{}, &book.ChapterNotFoundError{ID: id, Index: index}
	}
	return ch, nil
}

// ListBooks returns every stored book, oldest import first.
func (s *Service) ListBooks(ctx context.Context) ([]book.Summary, error) {
	return s.catalog.List(ctx)
}

// ExportBook renders book id. format is "markdown" or "pdf"; mode selects
// "single" or "chapters" for markdown. The caller must call Cleanup on the
// result.
func (s *Service) ExportBook(ctx context.Context, id, format, mode string) (*export.Result, error) {
	target, err := export.ParseTarget(format, mode)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, id, target)
}

// DeleteBook removes a book, its images and its fingerprint, so the same
// archive can be imported again.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	b, err := s.catalog.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}
	err = errors.Join(
		blob.DeletePrefix(ctx, s.blobs, blob.BookPrefix(id)),
		s.registry.Release(ctx, b.Fingerprint()),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("book_id", id).Msg("Book deleted with leftovers")
		return err
	}
	s.logger.Info().Str("book_id", id).Msg("Deleted book")
	return nil
}
