package export

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/converter"
)

type memLoader map[string]*book.Book

func (m memLoader) Load(_ context.Context, id string) (*book.Book, error) {
	b, ok := m[id]
	if !ok {
		return nil, &book.BookNotFoundError{ID: id}
	}
	return b, nil
}

// cancelingLoader cancels the request while the book is being loaded.
type cancelingLoader struct {
	memLoader
	cancel context.CancelFunc
}

func (c cancelingLoader) Load(ctx context.Context, id string) (*book.Book, error) {
	c.cancel()
	return c.memLoader.Load(ctx, id)
}

type imageMap map[string][]byte

func (m imageMap) Resolve(name string) ([]byte, string, bool) {
	data, ok := m[name]
	return data, "image/png", ok
}

func testBook(t *testing.T) *book.Book {
	t.Helper()
	b, err := book.New(book.Params{
		ID:         "dracula",
		ImportedAt: time.Now(),
		Metadata:   book.Metadata{Title: "Dracula", Authors: []string{"Bram Stoker"}, Language: "en"},
		Chapters: []book.Chapter{
			{Index: 0, Title: "Jonathan Harker's Journal", Markup: "<p>3 May. Bistritz.</p>"},
			{Index: 1, Title: "Mina Murray's Journal", Markup: `<p>Letter.</p><img src="images/missing.png"/>`},
			{Index: 2, Title: "Dr. Seward's Diary", Markup: "<p>25 April.</p>"},
		},
		TOC: []book.TocEntry{
			{Title: "Jonathan Harker's Journal", ChapterIndex: book.Index(0)},
			{Title: "Mina Murray's Journal", ChapterIndex: book.Index(1)},
			{Title: "Dr. Seward's Diary", ChapterIndex: book.Index(2)},
		},
	})
	require.NoError(t, err)
	return b
}

func newTestOrchestrator(t *testing.T, loader BookLoader, opts Options) *Orchestrator {
	t.Helper()
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	images := func(context.Context, *book.Book) converter.ImageLookup { return imageMap{} }
	return NewOrchestrator(loader, images, opts, nil)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary artifacts left behind")
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		format, mode string
		want         Target
		wantErr      bool
	}{
		{"markdown", "", MarkdownSingle, false},
		{"markdown", "single", MarkdownSingle, false},
		{"Markdown", "Chapters", MarkdownChapters, false},
		{"pdf", "", PDF, false},
		{"pdf", "chapters", PDF, false},
		{"markdown", "pages", 0, true},
		{"docx", "", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.format, tt.mode)
		if tt.wantErr {
			var unsupported *UnsupportedTargetError
			assert.True(t, errors.As(err, &unsupported), "ParseTarget(%q, %q) error = %v", tt.format, tt.mode, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestExport_MarkdownSingle(t *testing.T) {
	tempDir := t.TempDir()
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{TempDir: tempDir})

	res, err := o.Export(context.Background(), "dracula", MarkdownSingle)
	require.NoError(t, err)

	assert.Equal(t, "Dracula_single.md", res.Filename)
	assert.Equal(t, "Dracula_single.md", filepath.Base(res.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(res.Path)), "export-"+res.ID+"-"))
	assert.True(t, res.CleanupRequired)
	assert.Contains(t, res.MediaType, "text/markdown")

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), converter.ChapterBreak))

	require.Len(t, res.Warnings, 1)
	var missing *book.ImageMissingWarning
	require.True(t, errors.As(res.Warnings[0], &missing))
	assert.Equal(t, "images/missing.png", missing.Ref)

	require.NoError(t, res.Cleanup())
	assert.NoFileExists(t, res.Path)
	assertEmptyDir(t, tempDir)
	assert.NoError(t, res.Cleanup())
}

func TestExport_MarkdownChapters(t *testing.T) {
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{})

	res, err := o.Export(context.Background(), "dracula", MarkdownChapters)
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Equal(t, "application/zip", res.MediaType)
	zr, err := zip.OpenReader(res.Path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 4)
	assert.Equal(t, converter.IndexFilename, zr.File[0].Name)
}

func TestExport_PDF(t *testing.T) {
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{})

	res, err := o.Export(context.Background(), "dracula", PDF)
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Equal(t, "Dracula.pdf", res.Filename)
	f, err := os.Open(res.Path)
	require.NoError(t, err)
	defer f.Close()
	pages, err := converter.PageCount(f)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pages, 5)
	assert.Len(t, res.Warnings, 1)
}

func TestExport_BookNotFound(t *testing.T) {
	tempDir := t.TempDir()
	o := newTestOrchestrator(t, memLoader{}, Options{TempDir: tempDir})

	_, err := o.Export(context.Background(), "nope", PDF)
	var notFound *book.BookNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.True(t, errors.Is(err, book.ErrNotFound))
	assertEmptyDir(t, tempDir)
}

func TestExport_RenderFailureLeavesNothing(t *testing.T) {
	tempDir := t.TempDir()
	opts := Options{TempDir: tempDir, PDF: converter.PDFOptions{FontPath: filepath.Join(t.TempDir(), "missing.ttf")}}
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, opts)

	_, err := o.Export(context.Background(), "dracula", PDF)
	var convErr *book.ConversionError
	require.True(t, errors.As(err, &convErr), "error = %v", err)
	assert.Equal(t, book.WholeDocument, convErr.Chapter)
	assertEmptyDir(t, tempDir)
}

func TestExport_TempDirUnavailable(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{TempDir: notADir})

	_, err := o.Export(context.Background(), "dracula", MarkdownSingle)
	var fsErr *book.FileSystemError
	require.True(t, errors.As(err, &fsErr), "error = %v", err)
	assert.Equal(t, "mkdir", fsErr.Op)
}

func TestExport_Canceled(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("before start", func(t *testing.T) {
		o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{TempDir: tempDir})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := o.Export(ctx, "dracula", MarkdownSingle)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("during export", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		loader := cancelingLoader{memLoader: memLoader{"dracula": testBook(t)}, cancel: cancel}
		o := newTestOrchestrator(t, loader, Options{TempDir: tempDir})

		_, err := o.Export(ctx, "dracula", MarkdownChapters)
		assert.ErrorIs(t, err, context.Canceled)
	})

	assertEmptyDir(t, tempDir)
}

func TestExport_ConcurrentRequests(t *testing.T) {
	tempDir := t.TempDir()
	o := newTestOrchestrator(t, memLoader{"dracula": testBook(t)}, Options{TempDir: tempDir})

	const n = 6
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Export(context.Background(), "dracula", Target(i%3))
		}(i)
	}
	wg.Wait()

	paths := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, paths[results[i].Path], "duplicate artifact path")
		paths[results[i].Path] = true
	}

	// Concurrent cleanup of the same result is safe and idempotent.
	var cwg sync.WaitGroup
	for _, res := range results {
		for j := 0; j < 3; j++ {
			cwg.Add(1)
			go func(r *Result) {
				defer cwg.Done()
				assert.NoError(t, r.Cleanup())
			}(res)
		}
	}
	cwg.Wait()
	assertEmptyDir(t, tempDir)
}
