package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imageSelector matches HTML images and SVG-wrapped images.
const imageSelector = "img, image"

// Content represents a parsed XHTML content file
type Content struct {
	ID        string            // Manifest ID
	Path      string            // Archive path
	Document  *goquery.Document // Parsed HTML document
	Title     string            // <title>, or the first heading when <title> is empty
	ImageRefs []string          // Referenced image paths, archive-root relative
}

// LoadContent loads and parses an XHTML content file
// id: manifest item ID
// path: file path within EPUB (used for relative path resolution)
// content: XHTML file content
func LoadContent(id, filePath string, content []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(stripBOM(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", filePath, err)
	}

	c := &Content{
		ID:       id,
		Path:     filePath,
		Document: doc,
		Title:    collapseSpace(doc.Find("head title").First().Text()),
	}
	if c.Title == "" {
		c.Title = collapseSpace(doc.Find("h1, h2, h3").First().Text())
	}

	baseDir := path.Dir(filePath)
	doc.Find(imageSelector).Each(func(_ int, s *goquery.Selection) {
		if ref, ok := ImageSource(s); ok {
			if resolved := ResolveReference(baseDir, ref); resolved != "" {
				c.ImageRefs = append(c.ImageRefs, resolved)
			}
		}
	})

	return c, nil
}

// ImageSource returns the reference held by an <img src> or an SVG <image href|xlink:href>.
func ImageSource(s *goquery.Selection) (string, bool) {
	for _, key := range []string{"src", "href", "xlink:href"} {
		if v, ok := s.Attr(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// ResolveReference resolves a reference found in a document under baseDir to
// an archive path. It returns "" for external URLs, data URIs, and paths
// escaping the archive.
func ResolveReference(baseDir, ref string) string {
	if u, err := url.Parse(ref); err == nil && (u.Scheme != "" || u.Host != "") {
		return ""
	}
	target, _ := splitFragment(ref)
	if target == "" || strings.HasPrefix(target, "/") {
		return ""
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	resolved := resolvePath(baseDir, target)
	if !isSafePath(resolved) {
		return ""
	}
	return resolved
}

// resolvePath resolves a relative path against a base directory
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "images/photo.jpg")
func resolvePath(baseDir, relPath string) string {
	if decoded, err := url.PathUnescape(relPath); err == nil {
		relPath = decoded
	}
	if baseDir == "." {
		baseDir = ""
	}
	return path.Clean(path.Join(baseDir, relPath))
}
