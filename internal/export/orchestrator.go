package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/converter"
	"github.com/yuanying/epubshelf/internal/logging"
)

// State is a step of an export request.
type State string

const (
	StateRequested State = "requested"
	StateLoading   State = "loading"
	StateRendering State = "rendering"
	StateReady     State = "ready"
	StateFailed    State = "failed"
)

// BookLoader loads a stored book.
type BookLoader interface {
	Load(ctx context.Context, id string) (*book.Book, error)
}

// ImageSource returns the image lookup used while rendering b.
type ImageSource func(ctx context.Context, b *book.Book) converter.ImageLookup

// Options configures the renderers and where artifacts are written.
type Options struct {
	TempDir  string
	Markdown converter.MarkdownOptions
	PDF      converter.PDFOptions
}

// Result is a rendered artifact in its own temporary directory.
type Result struct {
	ID              string
	Path            string
	Filename        string
	MediaType       string
	CleanupRequired bool
	Warnings        []error

	dir        string
	once       sync.Once
	cleanupErr error
}

// Cleanup removes the artifact and its directory. Only the first call does
// any work; later calls return the first result.
func (r *Result) Cleanup() error {
	r.once.Do(func() {
		if r.dir == "" {
			return
		}
		if err := os.RemoveAll(r.dir); err != nil {
			r.cleanupErr = &book.FileSystemError{Op: "cleanup", Path: r.dir, Err: err}
		}
	})
	return r.cleanupErr
}

// Orchestrator runs export requests. It is safe for concurrent use.
type Orchestrator struct {
	books     BookLoader
	images    ImageSource
	renderers map[Target]converter.Renderer
	tempDir   string
	logger    arbor.ILogger
}

// NewOrchestrator creates an orchestrator with one renderer per Target.
func NewOrchestrator(books BookLoader, images ImageSource, opts Options, logger arbor.ILogger) *Orchestrator {
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Orchestrator{
		books:  books,
		images: images,
		renderers: map[Target]converter.Renderer{
			MarkdownSingle:   converter.NewMarkdownRenderer(opts.Markdown),
			MarkdownChapters: converter.NewChaptersRenderer(opts.Markdown),
			PDF:              converter.NewPDFRenderer(opts.PDF),
		},
		tempDir: tempDir,
		logger:  logging.OrNop(logger),
	}
}

// Export renders book id as target. On success the caller owns the result
// and must call Cleanup; on any failure nothing is left on disk.
func (o *Orchestrator) Export(ctx context.Context, id string, target Target) (*Result, error) {
	renderer, ok := o.renderers[target]
	if !ok {
		return nil, &UnsupportedTargetError{Format: target.String()}
	}

	exportID := uuid.NewString()
	log := o.logger.WithCorrelationId(exportID)
	start := time.Now()
	state := StateRequested
	log.Debug().Str("book_id", id).Str("target", target.String()).Str("state", string(state)).Msg("Export requested")

	fail := func(err error) (*Result, error) {
		log.Warn().Err(err).Str("book_id", id).Str("from", string(state)).Str("state", string(StateFailed)).Msg("Export failed")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	state = StateLoading
	b, err := o.books.Load(ctx, id)
	if err != nil {
		return fail(err)
	}

	state = StateRendering
	dir, err := os.MkdirTemp(o.tempDir, "export-"+exportID+"-*")
	if err != nil {
		return fail(&book.FileSystemError{Op: "mkdir", Path: o.tempDir, Err: err})
	}
	res := &Result{
		ID:              exportID,
		Filename:        renderer.Filename(b),
		MediaType:       renderer.MediaType(),
		CleanupRequired: true,
		dir:             dir,
	}
	res.Path = filepath.Join(dir, res.Filename)

	var images converter.ImageLookup
	if o.images != nil {
		images = o.images(ctx, b)
	}
	warnings, err := o.render(renderer, b, images, res.Path, target)
	if err != nil {
		if cerr := res.Cleanup(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to remove export directory")
		}
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		if cerr := res.Cleanup(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to remove export directory")
		}
		return fail(err)
	}

	res.Warnings = warnings
	for _, w := range warnings {
		log.Warn().Err(w).Str("book_id", id).Msg("Export warning")
	}
	state = StateReady
	log.Info().
		Str("book_id", id).
		Str("target", target.String()).
		Str("path", res.Path).
		Int("warnings", len(warnings)).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Str("state", string(state)).
		Msg("Export ready")
	return res, nil
}

// render writes one artifact to path. Write and close failures on the
// artifact file are reported as *book.FileSystemError; everything else the
// renderer returns becomes a *book.ConversionError.
func (o *Orchestrator) render(r converter.Renderer, b *book.Book, images converter.ImageLookup, path string, target Target) ([]error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &book.FileSystemError{Op: "create", Path: path, Err: err}
	}
	w := &trackingWriter{w: f}
	warnings, err := r.Render(b, images, w)
	closeErr := f.Close()

	switch {
	case w.err != nil:
		return warnings, &book.FileSystemError{Op: "write", Path: path, Err: w.err}
	case err != nil:
		var convErr *book.ConversionError
		if errors.As(err, &convErr) {
			return warnings, err
		}
		return warnings, &book.ConversionError{Stage: target.String(), Chapter: book.WholeDocument, Message: fmt.Sprintf("%s export failed", target), Err: err}
	case closeErr != nil:
		return warnings, &book.FileSystemError{Op: "close", Path: path, Err: closeErr}
	}
	return warnings, nil
}

// trackingWriter remembers the first write error of the underlying file.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
