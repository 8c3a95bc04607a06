package goldmark

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/cite"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Resolved citation markers are swapped for private-use runes before parsing
// so that goldmark does not treat them as link brackets.
const (
	markOpen  = "\uE000"
	markClose = "\uE001"
)

var placeholderRE = regexp.MustCompile(markOpen + `(\d+)` + markClose)

type ansiRenderer struct {
	bold      lipgloss.Style
	italic    lipgloss.Style
	accent    lipgloss.Style
	muted     lipgloss.Style
	underline lipgloss.Style
	badge     lipgloss.Style
}

func newRenderer(theme cite.Theme) *ansiRenderer {
	return &ansiRenderer{
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		accent:    lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		underline: lipgloss.NewStyle().Underline(true),
		badge:     lipgloss.NewStyle().Foreground(ansiColor(theme.Citation)).Bold(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

// markCitations replaces every marker that cite.Segments resolves with a
// placeholder. Unresolved markers are left as typed.
func markCitations(content string, citations []cite.Citation) []byte {
	var b bytes.Buffer
	for _, seg := range cite.Segments(cite.Message{Content: content, Citations: citations}) {
		if seg.Citation == nil {
			b.WriteString(seg.Text)
			continue
		}
		fmt.Fprintf(&b, "%s%d%s", markOpen, seg.Citation.ID, markClose)
	}
	return b.Bytes()
}

// badges draws placeholders as styled citation badges.
func (r *ansiRenderer) badges(s string) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		return r.badge.Render("[" + placeholderRE.FindStringSubmatch(m)[1] + "]")
	})
}

// literal restores placeholders to the marker text, for code and URLs.
func literal(s string) string {
	return placeholderRE.ReplaceAllString(s, "[$1]")
}

func (r *ansiRenderer) render(source []byte, width int) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	var buf bytes.Buffer
	r.walkBlock(doc, source, width, &buf)
	return strings.TrimRight(buf.String(), "\n")
}

// walkBlock renders the children of node, separated by blank lines.
func (r *ansiRenderer) walkBlock(node ast.Node, source []byte, width int, buf *bytes.Buffer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.renderBlock(c, source, width, buf)
		if c.NextSibling() != nil {
			buf.WriteString("\n")
		}
	}
}

func (r *ansiRenderer) renderBlock(node ast.Node, source []byte, width int, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Paragraph:
		r.writeWrapped(buf, r.collectInline(n, source), width)
	case *ast.Heading:
		r.writeWrapped(buf, r.accent.Render(r.collectInline(n, source)), width)
	case *ast.FencedCodeBlock:
		if lang := n.Language(source); len(lang) > 0 {
			buf.WriteString(r.muted.Render(literal(string(lang))) + "\n")
		}
		r.writeCode(buf, n, source)
	case *ast.CodeBlock, *ast.HTMLBlock:
		r.writeCode(buf, n, source)
	case *ast.Blockquote:
		r.writeQuote(buf, n, source, width)
	case *ast.List:
		r.renderList(n, source, width, buf, 0)
	case *ast.ThematicBreak:
		buf.WriteString(r.muted.Render(strings.Repeat("─", min(width, 40))) + "\n")
	default:
		r.walkBlock(node, source, width, buf)
	}
}

func (r *ansiRenderer) writeWrapped(buf *bytes.Buffer, s string, width int) {
	buf.WriteString(lipgloss.NewStyle().Width(width).Render(s))
	buf.WriteString("\n")
}

// writeCode writes the raw lines of node behind a gutter, without reflow.
func (r *ansiRenderer) writeCode(buf *bytes.Buffer, node ast.Node, source []byte) {
	gutter := r.muted.Render("│") + " "
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.WriteString(gutter + literal(strings.TrimRight(string(line.Value(source)), "\n")) + "\n")
	}
}

// writeQuote renders a quoted passage two cells narrower, behind a bar.
func (r *ansiRenderer) writeQuote(buf *bytes.Buffer, node ast.Node, source []byte, width int) {
	var inner bytes.Buffer
	r.walkBlock(node, source, max(width-2, 10), &inner)
	bar := r.muted.Render("▌") + " "
	for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
		buf.WriteString(bar + line + "\n")
	}
}

func (r *ansiRenderer) renderList(node *ast.List, source []byte, width int, buf *bytes.Buffer, depth int) {
	indent := strings.Repeat("  ", depth)
	num := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}

		var content bytes.Buffer
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				content.WriteString(r.collectInline(in, source))
			case *ast.List:
				if content.Len() > 0 {
					r.writeListItem(buf, indent+marker, content.String(), width)
					content.Reset()
				}
				r.renderList(in, source, width, buf, depth+1)
				marker = strings.Repeat(" ", len(marker))
			default:
				r.renderBlock(ic, source, width, &content)
			}
		}
		if content.Len() > 0 {
			r.writeListItem(buf, indent+marker, content.String(), width)
		}
	}
}

// writeListItem wraps content and indents continuation lines under prefix.
func (r *ansiRenderer) writeListItem(buf *bytes.Buffer, prefix, content string, width int) {
	wrapped := lipgloss.NewStyle().Width(max(width-len(prefix), 10)).Render(content)
	pad := strings.Repeat(" ", len(prefix))
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			buf.WriteString(prefix + line + "\n")
			continue
		}
		buf.WriteString(pad + line + "\n")
	}
}

// collectInline renders the inline children of node with citation badges.
func (r *ansiRenderer) collectInline(node ast.Node, source []byte) string {
	return r.badges(r.collectRaw(node, source))
}

func (r *ansiRenderer) collectRaw(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.renderInline(c, source, &buf)
	}
	return buf.String()
}

func (r *ansiRenderer) renderInline(node ast.Node, source []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		switch {
		case n.HardLineBreak():
			buf.WriteByte('\n')
		case n.SoftLineBreak():
			buf.WriteByte(' ')
		}
	case *ast.String:
		buf.Write(n.Value)
	case *ast.Emphasis:
		// ***x*** parses as nested emphasis, so Level is 1 or 2.
		style := r.bold
		if n.Level == 1 {
			style = r.italic
		}
		buf.WriteString(style.Render(r.collectInline(n, source)))
	case *ast.CodeSpan:
		buf.WriteString(r.bold.Render(literal(r.collectRaw(n, source))))
	case *ast.Link:
		r.writeLink(buf, r.collectInline(n, source), n.Destination)
	case *ast.Image:
		r.writeLink(buf, r.collectInline(n, source), n.Destination)
	case *ast.AutoLink:
		buf.WriteString(r.underline.Render(literal(string(n.URL(source)))))
	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf.WriteString(literal(string(seg.Value(source))))
		}
	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.renderInline(c, source, buf)
		}
	}
}

func (r *ansiRenderer) writeLink(buf *bytes.Buffer, label string, dest []byte) {
	buf.WriteString(r.underline.Render(label))
	buf.WriteString(" " + r.muted.Render("("+literal(string(dest))+")"))
}
