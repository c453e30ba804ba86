package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/logging"
)

// FingerprintRecord maps an archive fingerprint to the book imported from it.
type FingerprintRecord struct {
	Fingerprint string `badgerhold:"key"`
	BookID      string
	Title       string
	ClaimedAt   time.Time
}

// Registry rejects a second import of the same archive. A fingerprint is
// claimed in the same transaction that saves the book, so a claim never
// outlives a book that was not stored. Claims are serialized in process so
// concurrent imports of one fingerprint see exactly one winner.
type Registry struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewRegistry creates a registry over db.
func NewRegistry(db *DB, logger arbor.ILogger) *Registry {
	return &Registry{db: db, logger: logging.OrNop(logger)}
}

// Lookup returns the record for fingerprint, if any. A record whose book is
// no longer stored is reported as absent.
func (r *Registry) Lookup(ctx context.Context, fingerprint string) (*FingerprintRecord, bool, error) {
	store := r.db.Store()
	var rec FingerprintRecord
	err := store.Get(fingerprint, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	err = store.Get(rec.BookID, &BookRecord{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up book %s: %w", rec.BookID, err)
	}
	return &rec, true, nil
}

// Register claims the fingerprint of b and saves b in one transaction. If
// the fingerprint already belongs to a stored book it returns
// *book.DuplicateImportError naming that book and saves nothing. A stale
// claim left without its book is taken over.
func (r *Registry) Register(ctx context.Context, b *book.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.db.Store()
	tx := store.Badger().NewTransaction(true)
	defer tx.Discard()

	fp := b.Fingerprint()
	var existing FingerprintRecord
	err := store.TxGet(tx, fp, &existing)
	switch {
	case err == nil:
		err = store.TxGet(tx, existing.BookID, &BookRecord{})
		if err == nil {
			r.logger.Info().Str("book_id", existing.BookID).Str("title", existing.Title).Msg("Rejected duplicate import")
			return &book.DuplicateImportError{BookID: existing.BookID, Title: existing.Title}
		}
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("failed to look up book %s: %w", existing.BookID, err)
		}
		r.logger.Warn().Str("fingerprint", fp).Str("book_id", existing.BookID).Msg("Replacing stale fingerprint claim")
	case !errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	rec := &FingerprintRecord{
		Fingerprint: fp,
		BookID:      b.ID(),
		Title:       b.Metadata().Title,
		ClaimedAt:   time.Now().UTC(),
	}
	if err := store.TxUpsert(tx, fp, rec); err != nil {
		return fmt.Errorf("failed to register fingerprint: %w", err)
	}
	bookRec := NewBookRecord(b)
	if err := store.TxUpsert(tx, bookRec.ID, bookRec); err != nil {
		return fmt.Errorf("failed to save book %s: %w", bookRec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import of %s: %w", bookRec.ID, err)
	}
	r.logger.Debug().Str("book_id", bookRec.ID).Int("chapters", len(bookRec.Chapters)).Msg("Registered book")
	return nil
}

// Release removes fingerprint. Releasing an unknown fingerprint is a no-op.
func (r *Registry) Release(ctx context.Context, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Store().Delete(fingerprint, &FingerprintRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to release fingerprint: %w", err)
	}
	return nil
}
