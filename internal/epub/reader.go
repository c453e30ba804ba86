package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// DefaultMaxEntrySize bounds the decompressed size of a single archive entry.
const DefaultMaxEntrySize int64 = 256 << 20

var (
	ErrMalformedArchive = errors.New("malformed EPUB archive")
	ErrMissingPackage   = errors.New("package document not found")
	ErrDanglingSpineRef = errors.New("spine references an unknown manifest item")
	ErrFileNotFound     = errors.New("file not found in archive")
	ErrInvalidMimetype  = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrEntryTooLarge    = errors.New("archive entry exceeds size limit")
	ErrUnsafePath       = errors.New("archive entry path escapes the archive root")
)

// Reader provides access to the contents of an opened EPUB archive.
type Reader struct {
	zr           *zip.Reader
	closer       io.Closer
	files        map[string]*zip.File
	folded       map[string]*zip.File
	opfPath      string
	opf          *OPF
	maxEntrySize int64
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxEntrySize overrides DefaultMaxEntrySize. Non-positive values are ignored.
func WithMaxEntrySize(n int64) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxEntrySize = n
		}
	}
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// Open opens an EPUB file on disk.
func Open(filename string, opts ...Option) (*Reader, error) {
	zrc, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	r, err := newReader(&zrc.Reader, zrc, opts)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return r, nil
}

// OpenBytes opens an EPUB held in memory.
func OpenBytes(data []byte, opts ...Option) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	return newReader(zr, nil, opts)
}

func newReader(zr *zip.Reader, closer io.Closer, opts []Option) (*Reader, error) {
	r := &Reader{
		zr:           zr,
		closer:       closer,
		files:        make(map[string]*zip.File, len(zr.File)),
		folded:       make(map[string]*zip.File, len(zr.File)),
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, o := range opts {
		o(r)
	}

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := normalizePath(f.Name)
		r.files[name] = f
		if _, dup := r.folded[strings.ToLower(name)]; !dup {
			r.folded[strings.ToLower(name)] = f
		}
	}

	if err := r.validateMimetype(); err != nil {
		return nil, err
	}
	if err := r.parseContainer(); err != nil {
		return nil, err
	}
	if err := r.parsePackage(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// OPFPath returns the archive path of the package document.
func (r *Reader) OPFPath() string {
	return r.opfPath
}

// ContentDir returns the directory holding the package document ("" for the root).
func (r *Reader) ContentDir() string {
	dir := path.Dir(r.opfPath)
	if dir == "." {
		return ""
	}
	return dir
}

// Package returns the parsed package document.
func (r *Reader) Package() *OPF {
	return r.opf
}

// Files returns every entry keyed by its normalized path.
func (r *Reader) Files() map[string]*zip.File {
	return r.files
}

// Has reports whether the archive contains name.
func (r *Reader) Has(name string) bool {
	return r.lookup(name) != nil
}

// ReadFile reads an entry. Lookup is exact first, then percent-decoded, then case-insensitive.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	f := r.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return readEntry(f, r.maxEntrySize)
}

func (r *Reader) lookup(name string) *zip.File {
	name = normalizePath(name)
	if f, ok := r.files[name]; ok {
		return f
	}
	if decoded, err := url.PathUnescape(name); err == nil && decoded != name {
		if f, ok := r.files[decoded]; ok {
			return f
		}
		name = decoded
	}
	return r.folded[strings.ToLower(name)]
}

// SpineItems returns the manifest items in reading order.
func (r *Reader) SpineItems() ([]ManifestItem, error) {
	return r.opf.SpineItems()
}

// validateMimetype checks the mimetype entry when the archive carries one.
func (r *Reader) validateMimetype() error {
	if _, ok := r.files["mimetype"]; !ok {
		return nil
	}
	content, err := r.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("%w: read mimetype: %v", ErrMalformedArchive, err)
	}
	if strings.TrimSpace(string(content)) != "application/epub+zip" {
		return fmt.Errorf("%w: %w", ErrMalformedArchive, ErrInvalidMimetype)
	}
	return nil
}

// parseContainer extracts the package document path from container.xml.
func (r *Reader) parseContainer() error {
	content, err := r.ReadFile("META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("%w: META-INF/container.xml: %v", ErrMissingPackage, err)
	}

	var c container
	if err := xml.Unmarshal(stripBOM(content), &c); err != nil {
		return fmt.Errorf("%w: parse container.xml: %v", ErrMissingPackage, err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath == "" {
			continue
		}
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			r.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" {
			r.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}
	return fmt.Errorf("%w: no rootfile in container.xml", ErrMissingPackage)
}

// parsePackage reads the package document and checks the spine against the manifest.
func (r *Reader) parsePackage() error {
	content, err := r.ReadFile(r.opfPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return fmt.Errorf("%w: %s", ErrMissingPackage, r.opfPath)
		}
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	opf, err := ParseOPF(content, r.ContentDir())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if _, err := opf.SpineItems(); err != nil {
		return err
	}
	r.opf = opf
	return nil
}

// readEntry reads a zip entry, refusing unsafe names and oversized content.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size can lie, so read one byte past the limit.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return data, nil
}

// normalizePath removes ./ prefixes and redundant separators.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return p
	}
	return strings.TrimPrefix(path.Clean(p), "/")
}

func isSafePath(p string) bool {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}
