package ingest

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// ImageSet indexes image bytes by asset name (content-root relative path).
// Names resolve exactly first, then case-insensitively.
type ImageSet struct {
	contentDir string
	entries    map[string]imageEntry
	folded     map[string]string
	order      []string
}

type imageEntry struct {
	asset book.ImageAsset
	data  []byte
}

// NewImageSet returns an empty set for a package rooted at contentDir.
func NewImageSet(contentDir string) *ImageSet {
	return &ImageSet{
		contentDir: contentDir,
		entries:    make(map[string]imageEntry),
		folded:     make(map[string]string),
	}
}

// Add stores an image found at archivePath. The declared media type is
// replaced by the sniffed one when sniffing recognizes a different image type.
func (s *ImageSet) Add(archivePath, declared string, data []byte) book.ImageAsset {
	name := s.AssetName(archivePath)
	asset := book.ImageAsset{
		Name:      name,
		MediaType: detectMediaType(declared, data),
		Size:      int64(len(data)),
	}
	if _, exists := s.entries[name]; !exists {
		s.order = append(s.order, name)
		s.folded[strings.ToLower(name)] = name
	}
	s.entries[name] = imageEntry{asset: asset, data: data}
	return asset
}

// Resolve returns the bytes and media type stored under name.
func (s *ImageSet) Resolve(name string) ([]byte, string, bool) {
	e, ok := s.entries[s.canonical(NormalizeName(name))]
	if !ok {
		return nil, "", false
	}
	return e.data, e.asset.MediaType, true
}

// Has reports whether name is indexed.
func (s *ImageSet) Has(name string) bool {
	_, ok := s.entries[s.canonical(NormalizeName(name))]
	return ok
}

// canonical returns the indexed spelling of name when it differs only in case.
func (s *ImageSet) canonical(name string) string {
	if _, ok := s.entries[name]; ok {
		return name
	}
	if indexed, ok := s.folded[strings.ToLower(name)]; ok {
		return indexed
	}
	return name
}

// Assets lists the indexed images in insertion order.
func (s *ImageSet) Assets() []book.ImageAsset {
	out := make([]book.ImageAsset, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].asset)
	}
	return out
}

// Len returns the number of images.
func (s *ImageSet) Len() int {
	return len(s.entries)
}

// AssetName maps an archive path to its name relative to the content root,
// spelled as indexed when an image matches case-insensitively. Paths outside
// the content root keep their archive path.
func (s *ImageSet) AssetName(archivePath string) string {
	archivePath = NormalizeName(archivePath)
	if s.contentDir == "" {
		return s.canonical(archivePath)
	}
	if rel, ok := strings.CutPrefix(archivePath, s.contentDir+"/"); ok {
		return s.canonical(rel)
	}
	if rel, ok := strings.CutPrefix(strings.ToLower(archivePath), strings.ToLower(s.contentDir)+"/"); ok {
		return s.canonical(rel)
	}
	return s.canonical(archivePath)
}

// NormalizeName cleans an asset name so lookups are separator and dot-segment insensitive.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(name), "/")
}

func detectMediaType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	sniffed := mimetype.Detect(data)
	if strings.HasPrefix(sniffed.String(), "image/") && !sniffed.Is(declared) {
		return sniffed.String()
	}
	if declared == "" {
		return sniffed.String()
	}
	return declared
}

// loadImages reads every manifest image. Unreadable images are skipped and reported.
func loadImages(r *epub.Reader, onSkip func(href string, err error)) *ImageSet {
	set := NewImageSet(r.ContentDir())
	for _, item := range r.Package().Images() {
		data, err := r.ReadFile(item.Href)
		if err != nil {
			onSkip(item.Href, err)
			continue
		}
		set.Add(item.Href, item.MediaType, data)
	}
	return set
}
