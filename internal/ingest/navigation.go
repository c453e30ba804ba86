package ingest

import (
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

const untitled = "Untitled"

// spineIndex maps archive paths of content items to their reading-order position.
type spineIndex map[string]int

func (s spineIndex) lookup(p string) (int, bool) {
	if p == "" {
		return 0, false
	}
	i, ok := s[NormalizeName(p)]
	return i, ok
}

// resolveTOC flattens navigation depth first. An entry whose target is not a
// reading-order item gets a nil chapter index. Without navigation, or with an
// empty one, each chapter gets a depth-0 entry.
func resolveTOC(nav *epub.Navigation, spine spineIndex, chapters []book.Chapter) []book.TocEntry {
	var entries []book.TocEntry
	if nav != nil {
		var walk func(points []epub.NavPoint, depth int)
		walk = func(points []epub.NavPoint, depth int) {
			for _, np := range points {
				e := book.TocEntry{
					Title:    np.Label,
					AnchorID: np.Fragment,
					Depth:    depth,
				}
				if i, ok := spine.lookup(np.ContentPath); ok {
					e.ChapterIndex = book.Index(i)
				} else {
					// A fragment without a chapter has nothing to anchor into.
					e.AnchorID = ""
				}
				if e.Title == "" {
					e.Title = untitled
					if e.ChapterIndex != nil {
						e.Title = chapters[*e.ChapterIndex].Title
					}
				}
				entries = append(entries, e)
				walk(np.Children, depth+1)
			}
		}
		walk(nav.NavPoints, 0)
	}
	if len(entries) > 0 {
		return entries
	}

	entries = make([]book.TocEntry, 0, len(chapters))
	for _, ch := range chapters {
		entries = append(entries, book.TocEntry{Title: ch.Title, ChapterIndex: book.Index(ch.Index)})
	}
	return entries
}

// navLabels returns, per content path, the label of the first navigation
// entry targeting it. Entries without a fragment win over fragment entries.
func navLabels(nav *epub.Navigation) map[string]string {
	labels := make(map[string]string)
	if nav == nil {
		return labels
	}
	whole := make(map[string]bool)
	var walk func([]epub.NavPoint)
	walk = func(points []epub.NavPoint) {
		for _, np := range points {
			key := NormalizeName(np.ContentPath)
			if key != "" && np.Label != "" {
				switch {
				case np.Fragment == "" && !whole[key]:
					labels[key] = np.Label
					whole[key] = true
				case labels[key] == "":
					labels[key] = np.Label
				}
			}
			walk(np.Children)
		}
	}
	walk(nav.NavPoints)
	return labels
}
