package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncateRunesHelper truncates a string to max visual width (cells), adding suffix if needed.
// Uses go-runewidth to handle wide characters correctly.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}

	width := runewidth.StringWidth(s)
	if width <= maxWidth {
		return s
	}

	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		// Even suffix is too wide, truncate suffix
		return runewidth.Truncate(suffix, maxWidth, "")
	}

	targetWidth := maxWidth - suffixWidth
	return runewidth.Truncate(s, targetWidth, "") + suffix
}

// truncate truncates s to maxWidth cells with an ellipsis.
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// guideKey encodes a row's guide columns: one byte per ancestor level below
// the root ('|' when that ancestor has siblings below it, ' ' otherwise),
// followed by 'L' or 'T' for the row's own branch. The root row has an empty
// key.
func guideKey(guides []bool, last bool, depth int) string {
	if depth == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(guides) + 1)
	for _, g := range guides {
		if g {
			sb.WriteByte('|')
		} else {
			sb.WriteByte(' ')
		}
	}
	if last {
		sb.WriteByte('L')
	} else {
		sb.WriteByte('T')
	}
	return sb.String()
}

// guidePrefix expands a guideKey into box-drawing characters.
func guidePrefix(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '|':
			sb.WriteString("│   ")
		case 'L':
			sb.WriteString("└── ")
		case 'T':
			sb.WriteString("├── ")
		default:
			sb.WriteString("    ")
		}
	}
	return sb.String()
}
