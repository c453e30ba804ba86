package epub

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ParseNAV parses an EPUB 3 navigation document. The <nav epub:type="toc">
// element is used; when no nav is typed, the first <nav> with a list is.
func ParseNAV(data []byte, navPath string) (*Navigation, error) {
	doc, err := html.Parse(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nav document: %w", err)
	}

	var navs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" {
			navs = append(navs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var toc *html.Node
	for _, n := range navs {
		if hasEpubType(n, "toc") {
			toc = n
			break
		}
	}
	if toc == nil {
		for _, n := range navs {
			if findFirstElement(n, "ol") != nil {
				toc = n
				break
			}
		}
	}
	if toc == nil {
		return nil, fmt.Errorf("failed to parse nav document: no toc nav element")
	}

	nav := &Navigation{Source: SourceNAV}
	if title := findFirstElement(doc, "title"); title != nil {
		nav.DocTitle = collapseSpace(textContent(title))
	}
	if ol := findFirstElement(toc, "ol"); ol != nil {
		nav.NavPoints = parseNavList(ol, navPath)
	}
	return nav, nil
}

func parseNavList(ol *html.Node, navPath string) []NavPoint {
	var out []NavPoint
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			out = append(out, parseNavItem(c, navPath))
		}
	}
	return out
}

// parseNavItem reads one <li>: an <a> (or a heading-only <span>) plus an optional nested <ol>.
func parseNavItem(li *html.Node, navPath string) NavPoint {
	var np NavPoint
	var linked bool
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			if !linked {
				linked = true
				np.Label = collapseSpace(textContent(c))
				np.ContentPath, np.Fragment = resolveTarget(navPath, attr(c, "href"))
			}
		case "span":
			if np.Label == "" {
				np.Label = collapseSpace(textContent(c))
			}
		case "ol":
			np.Children = parseNavList(c, navPath)
		default:
			// Some documents wrap the link, e.g. <li><p><a/></p></li>.
			if !linked {
				if a := findFirstElement(c, "a"); a != nil {
					linked = true
					np.Label = collapseSpace(textContent(a))
					np.ContentPath, np.Fragment = resolveTarget(navPath, attr(a, "href"))
				}
			}
		}
	}
	return np
}

func hasEpubType(n *html.Node, typeName string) bool {
	for _, t := range strings.Fields(attr(n, "epub:type")) {
		if t == typeName {
			return true
		}
	}
	return false
}

// attr returns an attribute value, matching namespaced keys like epub:type either way x/net/html reports them.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
		if a.Namespace != "" && a.Namespace+":"+a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirstElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findFirstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
