package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Navigation sources.
const (
	SourceNCX = "ncx"
	SourceNAV = "nav"
)

// Navigation is the parsed table of contents from an NCX or NAV document.
type Navigation struct {
	Source    string
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	Label       string
	ContentPath string // fragment-free, archive-root relative; empty for heading-only nodes
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

type ncxDocument struct {
	XMLName  xml.Name `xml:"ncx"`
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// LoadNavigation locates and parses the book's navigation document. The NCX
// is preferred, the EPUB 3 nav document is the fallback. It returns nil, nil
// when the archive declares neither. A document that is declared but cannot
// be read or parsed is skipped in favour of the other; the error is only
// returned when no source could be used.
func LoadNavigation(r *Reader) (*Navigation, error) {
	opf := r.Package()
	var errs []error

	if opf.NCXPath != "" {
		data, err := r.ReadFile(opf.NCXPath)
		if err == nil {
			nav, perr := ParseNCX(data, opf.NCXPath)
			if perr == nil {
				return nav, nil
			}
			errs = append(errs, perr)
		} else if !errors.Is(err, ErrFileNotFound) {
			errs = append(errs, err)
		}
	}

	if opf.NavPath != "" {
		data, err := r.ReadFile(opf.NavPath)
		if err == nil {
			nav, perr := ParseNAV(data, opf.NavPath)
			if perr == nil {
				return nav, nil
			}
			errs = append(errs, perr)
		} else if !errors.Is(err, ErrFileNotFound) {
			errs = append(errs, err)
		}
	}

	return nil, errors.Join(errs...)
}

// ParseNCX parses an NCX document. ncxPath is its archive path and anchors
// relative content references.
func ParseNCX(data []byte, ncxPath string) (*Navigation, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(stripBOM(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}
	return &Navigation{
		Source:    SourceNCX,
		DocTitle:  strings.TrimSpace(doc.DocTitle.Text),
		NavPoints: convertNCXPoints(doc.NavMap.NavPoints, ncxPath),
	}, nil
}

func convertNCXPoints(points []ncxNavPoint, ncxPath string) []NavPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]NavPoint, 0, len(points))
	for _, p := range points {
		np := NavPoint{Label: collapseSpace(p.Label.Text)}
		np.ContentPath, np.Fragment = resolveTarget(ncxPath, p.Content.Src)
		np.Children = convertNCXPoints(p.Children, ncxPath)
		out = append(out, np)
	}
	return out
}

// resolveTarget turns an href relative to docPath into an archive path and fragment.
func resolveTarget(docPath, href string) (string, string) {
	target, fragment := splitFragment(strings.TrimSpace(href))
	if target == "" {
		if fragment == "" {
			return "", ""
		}
		return docPath, fragment
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" {
		return "", ""
	}
	return resolvePath(path.Dir(docPath), target), fragment
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
