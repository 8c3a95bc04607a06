// Package goldmark renders answer markdown to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling. Inline [n] citation
// markers that refer to a known citation are drawn as badges.
package goldmark

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
)

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// rendered at full width without reflow. Markers whose id is in citations
// are styled as badges; other markers stay literal text.
func Render(source string, width int, theme cite.Theme, citations []cite.Citation) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	return newRenderer(theme).render(markCitations(source, citations), width)
}

// RenderAnswer renders a message's content with its citations. Escape
// sequences in the content are stripped first.
func RenderAnswer(m cite.Message, width int, theme cite.Theme) string {
	return Render(ansi.Sanitize(m.Content), width, theme, m.Citations)
}

// Footnotes lists citations referenced in content, in marker order, one per
// line: "[n] Title, p. N". Citations never referenced are appended after.
func Footnotes(m cite.Message, theme cite.Theme) string {
	if len(m.Citations) == 0 {
		return ""
	}
	byID := make(map[int]cite.Citation, len(m.Citations))
	for _, c := range m.Citations {
		byID[c.ID] = c
	}
	var order []cite.Citation
	for _, id := range cite.CitationMarkers(m.Content) {
		if c, ok := byID[id]; ok {
			order = append(order, c)
			delete(byID, id)
		}
	}
	for _, c := range m.Citations {
		if _, ok := byID[c.ID]; ok {
			order = append(order, c)
		}
	}

	badge := lipgloss.NewStyle().Foreground(ansiColor(theme.Citation)).Bold(true)
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted))
	lines := make([]string, 0, len(order))
	for _, c := range order {
		title := ansi.SanitizeLine(c.DocumentTitle)
		if title == "" {
			title = ansi.SanitizeLine(c.DocumentID)
		}
		line := badge.Render(fmt.Sprintf("[%d]", c.ID)) + " " + title
		if c.PageNumber > 0 {
			line += muted.Render(fmt.Sprintf(", p. %d", c.PageNumber))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
