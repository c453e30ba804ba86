package ingest

import (
	"strings"

	"github.com/yuanying/epubshelf/internal/epub"
)

// detectCover returns the archive path of the cover image, or "".
// Manifest-level detection is used first; a guide cover page pointing at
// XHTML contributes its first image before the filename heuristic.
func detectCover(r *epub.Reader) string {
	opf := r.Package()
	info := opf.DetectCover()
	if info != nil && info.DetectionMethod != "filename" {
		return info.Href
	}
	if href := coverFromGuidePage(r); href != "" {
		return href
	}
	if info != nil {
		return info.Href
	}
	return ""
}

func coverFromGuidePage(r *epub.Reader) string {
	opf := r.Package()
	for _, ref := range opf.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		page, _, _ := strings.Cut(ref.Href, "#")
		if page == "" || !r.Has(page) {
			continue
		}
		data, err := r.ReadFile(page)
		if err != nil {
			continue
		}
		content, err := epub.LoadContent("", page, data)
		if err != nil || len(content.ImageRefs) == 0 {
			continue
		}
		first := content.ImageRefs[0]
		for _, img := range opf.Images() {
			if img.Href == first {
				return img.Href
			}
		}
	}
	return ""
}
