package book

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("parse error")
	// ErrNotFound is matched by *BookNotFoundError and *ChapterNotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is matched by *DuplicateImportError.
	ErrDuplicate = errors.New("duplicate import")
)

// ParseKind classifies a fatal import failure.
type ParseKind string

const (
	MalformedArchive ParseKind = "MalformedArchive"
	MissingPackage   ParseKind = "MissingPackage"
	DanglingSpineRef ParseKind = "DanglingSpineRef"
)

// ParseError aborts an import. Nothing is persisted when it is returned.
type ParseError struct {
	Kind ParseKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse error (%s)", e.Kind)
	}
	return fmt.Sprintf("parse error (%s): %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// DuplicateImportError rejects an archive whose fingerprint is already registered.
type DuplicateImportError struct {
	BookID string
	Title  string
}

func (e *DuplicateImportError) Error() string {
	return fmt.Sprintf("book already imported: %s", e.Title)
}

func (e *DuplicateImportError) Is(target error) bool { return target == ErrDuplicate }

// BookNotFoundError reports an unknown book id.
type BookNotFoundError struct {
	ID string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book not found: %s", e.ID)
}

func (e *BookNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ChapterNotFoundError reports an index outside a book's chapter range.
type ChapterNotFoundError struct {
	ID    string
	Index int
}

func (e *ChapterNotFoundError) Error() string {
	return fmt.Sprintf("chapter %d not found in book %s", e.Index, e.ID)
}

func (e *ChapterNotFoundError) Is(target error) bool { return target == ErrNotFound }

// WholeDocument is the Chapter value of a ConversionError not tied to one chapter.
const WholeDocument = -1

// ConversionError reports a failed chapter conversion (recovered, reported as
// a warning) or a failed document render (fatal for that export).
type ConversionError struct {
	Stage   string
	Chapter int
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "conversion failed"
	}
	if e.Chapter != WholeDocument {
		msg = fmt.Sprintf("%s: chapter %d", msg, e.Chapter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ImageMissingWarning records an image reference that could not be resolved.
type ImageMissingWarning struct {
	Chapter int
	Ref     string
}

func (w *ImageMissingWarning) Error() string {
	return fmt.Sprintf("image not found: %s (chapter %d)", w.Ref, w.Chapter)
}

// FileSystemError reports temporary storage that could not be written or cleaned.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }
