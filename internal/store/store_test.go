package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanying/epubshelf/internal/book"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(nil, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleBook(t *testing.T, id string, importedAt time.Time) *book.Book {
	t.Helper()
	b, err := book.New(book.Params{
		ID:          id,
		Fingerprint: "fp-" + id,
		ImportedAt:  importedAt,
		Metadata: book.Metadata{
			Title:   "Dracula " + id,
			Authors: []string{"Bram Stoker"},
			Cover:   "images/cover.png",
		},
		Chapters: []book.Chapter{
			{Index: 0, Title: "One", Markup: "<p>one</p>"},
			{Index: 1, Title: "Two", Markup: "<p>two</p>"},
		},
		TOC: []book.TocEntry{
			{Title: "Part", Depth: 0},
			{Title: "One", ChapterIndex: book.Index(0), Depth: 1},
			{Title: "Two", ChapterIndex: book.Index(1), AnchorID: "x", Depth: 1},
		},
		Images: []book.ImageAsset{{Name: "images/cover.png", MediaType: "image/png", Size: 3}},
	})
	require.NoError(t, err)
	return b
}

func TestCatalog_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cat := NewCatalog(openTestDB(t), nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleBook(t, "b1", at)

	require.NoError(t, cat.Save(ctx, want))

	got, err := cat.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, want.Metadata(), got.Metadata())
	assert.Equal(t, want.Chapters(), got.Chapters())
	assert.Equal(t, want.TOC(), got.TOC())
	assert.Equal(t, want.Images(), got.Images())
	assert.Equal(t, "fp-b1", got.Fingerprint())
	assert.True(t, at.Equal(got.ImportedAt()))

	// Heading-only entries and chapter 0 survive encoding.
	assert.Nil(t, got.TOC()[0].ChapterIndex)
	require.NotNil(t, got.TOC()[1].ChapterIndex)
	assert.Equal(t, 0, *got.TOC()[1].ChapterIndex)
}

func TestCatalog_LoadMissing(t *testing.T) {
	cat := NewCatalog(openTestDB(t), nil)
	_, err := cat.Load(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, book.ErrNotFound))
	var nf *book.BookNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.ID)
}

func TestCatalog_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	cat := NewCatalog(openTestDB(t), nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, cat.Save(ctx, sampleBook(t, "late", base.Add(2*time.Hour))))
	require.NoError(t, cat.Save(ctx, sampleBook(t, "early", base)))

	list, err := cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)
	assert.Equal(t, 2, list[0].ChapterCount)
	assert.Equal(t, []string{"Bram Stoker"}, list[0].Authors)

	require.NoError(t, cat.Delete(ctx, "early"))
	err = cat.Delete(ctx, "early")
	assert.True(t, errors.Is(err, book.ErrNotFound))

	list, err = cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "late", list[0].ID)
}

// claimant is a minimal book carrying fingerprint fp.
func claimant(t *testing.T, id, fp, title string) *book.Book {
	t.Helper()
	b, err := book.New(book.Params{
		ID:          id,
		Fingerprint: fp,
		ImportedAt:  time.Now().UTC(),
		Metadata:    book.Metadata{Title: title},
		Chapters:    []book.Chapter{{Index: 0, Title: "One", Markup: "<p>one</p>"}},
	})
	require.NoError(t, err)
	return b
}

func TestRegistry_RegisterLookupRelease(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db, nil)
	cat := NewCatalog(db, nil)

	_, ok, err := reg.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Register(ctx, claimant(t, "book-1", "abc", "Dracula")))

	rec, ok, err := reg.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "book-1", rec.BookID)
	stored, err := cat.Load(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", stored.Fingerprint())

	err = reg.Register(ctx, claimant(t, "book-2", "abc", "Dracula again"))
	var dup *book.DuplicateImportError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "book-1", dup.BookID)
	assert.Equal(t, "Dracula", dup.Title)
	assert.Equal(t, "book already imported: Dracula", err.Error())

	// The rejected book is not stored either.
	_, err = cat.Load(ctx, "book-2")
	assert.True(t, errors.Is(err, book.ErrNotFound))

	require.NoError(t, reg.Release(ctx, "abc"))
	require.NoError(t, reg.Release(ctx, "abc"))
	require.NoError(t, reg.Register(ctx, claimant(t, "book-3", "abc", "Dracula")))
}

func TestRegistry_StaleClaimIsReplaced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db, nil)

	// A claim whose book was never stored, as left by an interrupted import.
	require.NoError(t, db.Store().Insert("abc", &FingerprintRecord{Fingerprint: "abc", BookID: "ghost", Title: "Dracula"}))

	_, ok, err := reg.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Register(ctx, claimant(t, "book-1", "abc", "Dracula")))
	rec, ok, err := reg.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "book-1", rec.BookID)
}

func TestRegistry_ConcurrentRegistrationsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db, nil)

	const n = 8
	books := make([]*book.Book, n)
	for i := range books {
		books[i] = claimant(t, fmt.Sprintf("book-%d", i), "same", "Dracula")
	}
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reg.Register(ctx, books[i])
		}(i)
	}
	wg.Wait()

	winners, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, book.ErrDuplicate):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, duplicates)

	list, err := NewCatalog(db, nil).List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
