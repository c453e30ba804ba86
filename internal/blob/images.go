package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/logging"
)

// SaveImages writes every asset of b that src can resolve.
func SaveImages(ctx context.Context, a Adapter, b *book.Book, src func(name string) ([]byte, bool)) error {
	for _, img := range b.Images() {
		data, ok := src(img.Name)
		if !ok {
			continue
		}
		if err := a.Put(ctx, ImageKey(b.ID(), img.Name), bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to store image %s: %w", img.Name, err)
		}
	}
	return nil
}

// Images resolves a book's image assets from an adapter for the lifetime of
// one export. Fetched bytes are cached; lookups are safe for concurrent use.
type Images struct {
	ctx     context.Context
	adapter Adapter
	book    *book.Book
	logger  arbor.ILogger

	mu    sync.Mutex
	cache map[string][]byte
}

// NewImages binds a lookup to ctx and b.
func NewImages(ctx context.Context, a Adapter, b *book.Book, logger arbor.ILogger) *Images {
	return &Images{
		ctx:     ctx,
		adapter: a,
		book:    b,
		logger:  logging.OrNop(logger),
		cache:   make(map[string][]byte),
	}
}

// Resolve returns the bytes and media type of the named asset. Names that the
// book does not declare, or whose blob is missing, are reported as absent.
func (im *Images) Resolve(name string) ([]byte, string, bool) {
	asset, ok := im.book.Image(name)
	if !ok {
		return nil, "", false
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	if data, ok := im.cache[name]; ok {
		return data, asset.MediaType, true
	}

	data, err := im.fetch(ImageKey(im.book.ID(), name))
	if err != nil {
		if !errors.Is(err, ErrNotExist) {
			im.logger.Warn().Err(err).Str("image", name).Msg("Failed to fetch image blob")
		}
		return nil, "", false
	}
	im.cache[name] = data
	return data, asset.MediaType, true
}

func (im *Images) fetch(key string) ([]byte, error) {
	rc, err := im.adapter.Get(im.ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
