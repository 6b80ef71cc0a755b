package textutil

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateWidth shortens s to fit maxWidth terminal cells, ending in "..."
// when cut. Wide characters such as CJK and most emoji count as two cells.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// PadRight truncates or pads s with spaces to exactly width cells.
func PadRight(s string, width int) string {
	s = TruncateWidth(s, width)
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
