package converter

import (
	"github.com/go-pdf/fpdf"
	"github.com/yuanying/epubshelf/internal/book"
)

// addOutline writes one bookmark per TOC entry, nested as in the TOC tree.
// An entry without a chapter points where the next navigable entry points;
// entries with no navigable successor are left out.
func addOutline(pdf *fpdf.Fpdf, nodes []*book.TocNode, starts map[int]position) {
	type mark struct {
		title string
		level int
		chap  *int
	}
	var marks []mark
	book.Walk(nodes, func(n *book.TocNode, level int) {
		marks = append(marks, mark{title: n.Entry.Title, level: level, chap: n.Entry.ChapterIndex})
	})

	targets := make([]position, len(marks))
	valid := make([]bool, len(marks))
	var next *position
	for i := len(marks) - 1; i >= 0; i-- {
		if c := marks[i].chap; c != nil {
			if pos, ok := starts[*c]; ok {
				next = &pos
			}
		}
		if next != nil {
			targets[i] = *next
			valid[i] = true
		}
	}

	last := pdf.PageNo()
	for i, m := range marks {
		if !valid[i] {
			continue
		}
		pdf.SetPage(targets[i].page)
		pdf.Bookmark(m.title, m.level, targets[i].y)
	}
	pdf.SetPage(last)
}
