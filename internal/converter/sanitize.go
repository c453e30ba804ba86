package converter

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// FallbackFilename replaces titles that sanitize to nothing.
	FallbackFilename  = "book_export"
	maxFilenameLength = 200
)

// SanitizeFilename turns a title into a portable file name: path and shell
// metacharacters are removed, whitespace runs become "_", the result is at
// most 200 characters and never empty.
func SanitizeFilename(title string) string {
	var sb strings.Builder
	lastUnderscore := false
	pendingSpace := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r) && !unicode.IsSpace(r):
			continue
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || r == '-' || r == '.'):
			continue
		}
		if pendingSpace {
			pendingSpace = false
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		sb.WriteRune(r)
	}

	name := strings.Trim(sb.String(), "_.")
	if runes := []rune(name); len(runes) > maxFilenameLength {
		name = strings.TrimRight(string(runes[:maxFilenameLength]), "_.")
	}
	if name == "" {
		return FallbackFilename
	}
	return name
}

// SingleFilename is the suggested name of a single-document Markdown export.
func SingleFilename(title string) string {
	return SanitizeFilename(title) + "_single.md"
}

// ChaptersFilename is the suggested name of a chapter-split Markdown export.
func ChaptersFilename(title string) string {
	return SanitizeFilename(title) + "_chapters.zip"
}

// PDFFilename is the suggested name of a PDF export.
func PDFFilename(title string) string {
	return SanitizeFilename(title) + ".pdf"
}

// ChapterFilename names chapter i of n inside a chapter-split bundle. The
// index is zero padded so names sort in reading order.
func ChapterFilename(i, n int, title string) string {
	width := len(fmt.Sprint(n - 1))
	if width < 2 {
		width = 2
	}
	stem := SanitizeFilename(title)
	if strings.TrimSpace(title) == "" || stem == FallbackFilename {
		stem = fmt.Sprintf("Chapter_%d", i+1)
	}
	return fmt.Sprintf("%0*d_%s.md", width, i, stem)
}
