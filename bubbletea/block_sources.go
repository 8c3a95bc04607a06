package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*SourcesBlock)(nil)

// SourcesBlock renders the source cards of an answer: title and page on one
// line, the excerpt cut to a single line below.
type SourcesBlock struct {
	sources []cite.SourceCard
	styles  Styles
}

// NewSourcesBlock creates an empty SourcesBlock.
func NewSourcesBlock(styles Styles) *SourcesBlock {
	return &SourcesBlock{styles: styles}
}

// Set replaces the source cards.
func (b *SourcesBlock) Set(sources []cite.SourceCard) {
	b.sources = sources
}

func (b *SourcesBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *SourcesBlock) View(width int) string {
	lines := []string{b.styles.Accent.Render("Sources")}
	for _, s := range b.sources {
		title := ansi.SanitizeLine(s.Title)
		if title == "" {
			title = ansi.SanitizeLine(s.DocumentID)
		}
		head := "• " + title
		if s.PageNumber > 0 {
			head += b.styles.Muted.Render(fmt.Sprintf(", p. %d", s.PageNumber))
		}
		lines = append(lines, Truncate(head, width))
		if excerpt := ansi.SanitizeLine(s.Excerpt); excerpt != "" {
			lines = append(lines, "  "+b.styles.Muted.Render(Truncate(excerpt, width-2)))
		}
		if url := ansi.SanitizeLine(s.URL); url != "" {
			lines = append(lines, "  "+b.styles.Muted.Render(Truncate(url, width-2)))
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most width terminal cells, ending with "…" when cut.
// It never splits a grapheme cluster. Styled input is measured by its
// visible width but cut without regard to escape sequences, so only plain
// text should be longer than width.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	w := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		cw := runewidth.StringWidth(cluster)
		if w+cw > width-1 {
			break
		}
		b.WriteString(cluster)
		w += cw
	}
	return b.String() + "…"
}
