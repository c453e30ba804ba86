// Package blob stores image assets outside the catalog database.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
)

// ErrNotExist is returned by Get for a missing object.
var ErrNotExist = errors.New("blob does not exist")

// Adapter defines the interface for blob backends
type Adapter interface {
	// Put stores data at the given key
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves data from the given key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data at the given key
	Delete(ctx context.Context, key string) error

	// Exists checks if data exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// List returns keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Close cleans up any resources
	Close() error
}

// ImageKey is the key of a book's image asset: books/<id>/images/<name>.
func ImageKey(bookID, name string) string {
	return path.Join("books", bookID, "images", name)
}

// BookPrefix is the key prefix of everything stored for a book.
func BookPrefix(bookID string) string {
	return "books/" + bookID + "/"
}

// DeletePrefix removes every key under prefix and returns the first error.
func DeletePrefix(ctx context.Context, a Adapter, prefix string) error {
	keys, err := a.List(ctx, prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := a.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
