// Package ansi makes backend-supplied text safe to print to a terminal.
//
// Answers, excerpts and titles come from a remote backend. Escape sequences
// embedded in them could recolor, move the cursor or retitle the terminal,
// so they are stripped before the text reaches the screen.
package ansi

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// Sanitize strips ANSI escape sequences and control characters from s. Tabs
// and newlines are kept, CRLF becomes LF and a lone CR is dropped. DEL and
// the C1 control range are removed as well.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	s = xansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeLine is Sanitize followed by collapsing all whitespace runs,
// newlines included, to single spaces. It suits labels shown on one line.
func SanitizeLine(s string) string {
	return strings.Join(strings.Fields(Sanitize(s)), " ")
}

func keep(r rune) bool {
	switch {
	case r == '\t' || r == '\n':
		return true
	case r <= 0x1F || r == 0x7F:
		return false
	case r >= 0x80 && r <= 0x9F:
		return false
	}
	return true
}
