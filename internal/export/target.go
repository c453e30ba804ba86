// Package export renders stored books into temporary artifacts.
package export

import (
	"fmt"
	"strings"
)

// Target selects the output format of an export.
type Target int

const (
	MarkdownSingle Target = iota
	MarkdownChapters
	PDF
)

func (t Target) String() string {
	switch t {
	case MarkdownSingle:
		return "markdown-single"
	case MarkdownChapters:
		return "markdown-chapters"
	case PDF:
		return "pdf"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// UnsupportedTargetError reports a format and mode pair with no renderer.
type UnsupportedTargetError struct {
	Format string
	Mode   string
}

func (e *UnsupportedTargetError) Error() string {
	if e.Mode == "" {
		return fmt.Sprintf("unsupported export format %q", e.Format)
	}
	return fmt.Sprintf("unsupported export format %q with mode %q", e.Format, e.Mode)
}

// ParseTarget maps a format and mode to a Target. The mode only matters for
// markdown, where it defaults to single.
func ParseTarget(format, mode string) (Target, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	m := strings.ToLower(strings.TrimSpace(mode))
	switch f {
	case "markdown", "md":
		switch m {
		case "", "single":
			return MarkdownSingle, nil
		case "chapters":
			return MarkdownChapters, nil
		}
	case "pdf":
		return PDF, nil
	}
	return 0, &UnsupportedTargetError{Format: format, Mode: mode}
}
