package converter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubshelf/internal/book"
)

// ImageLookup resolves an asset name to its bytes and media type.
type ImageLookup interface {
	Resolve(name string) ([]byte, string, bool)
}

// ErrNotDataURI is returned by DecodeDataURI for anything but a base64 data URI.
var ErrNotDataURI = errors.New("not a base64 data URI")

// EncodeDataURI returns data:<mediaType>;base64,<data>.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI reverses EncodeDataURI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrNotDataURI
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, "", ErrNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid data URI payload: %w", err)
	}
	return data, mediaType, nil
}

// IsDataURI reports whether ref is already embedded.
func IsDataURI(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "data:")
}

// embedImages rewrites img src and SVG image href attributes under sel to
// data URIs. References that cannot be resolved are left untouched and
// reported as *book.ImageMissingWarning.
func embedImages(sel *goquery.Selection, images ImageLookup, chapter int) []error {
	var warnings []error
	seen := make(map[string]bool)
	sel.Find("img, image").Each(func(_ int, s *goquery.Selection) {
		attr := "src"
		if goquery.NodeName(s) == "image" {
			attr = "href"
		}
		ref, ok := s.Attr(attr)
		if !ok && attr == "href" {
			ref, ok = s.Attr("xlink:href")
		}
		ref = strings.TrimSpace(ref)
		if !ok || ref == "" || IsDataURI(ref) {
			return
		}

		if images != nil {
			if data, mediaType, found := images.Resolve(ref); found {
				s.SetAttr(attr, EncodeDataURI(mediaType, data))
				return
			}
		}
		if !seen[ref] {
			seen[ref] = true
			warnings = append(warnings, &book.ImageMissingWarning{Chapter: chapter, Ref: ref})
		}
	})
	return warnings
}
