package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
	"github.com/fwojciec/cite/goldmark"
)

var _ MessageBlock = (*AnswerBlock)(nil)

// AnswerBlock renders the text of an answer as markdown with citation
// badges. Finalized paragraphs (separated by a blank line) are rendered once
// and cached; only the trailing paragraph is re-rendered on each update.
type AnswerBlock struct {
	msg    cite.Message
	theme  cite.Theme
	styles Styles

	// finalizedRaw is the stable prefix ending at the last double newline.
	// It is rendered once per width and cached in finalizedByWidth.
	finalizedRaw     string
	finalizedByWidth map[int]string
}

// NewAnswerBlock creates an empty AnswerBlock.
func NewAnswerBlock(theme cite.Theme, styles Styles) *AnswerBlock {
	return &AnswerBlock{
		theme:            theme,
		styles:           styles,
		finalizedByWidth: make(map[int]string),
	}
}

// Set replaces the answer snapshot. Escape sequences in the content are
// stripped.
func (b *AnswerBlock) Set(m cite.Message) {
	m.Content = ansi.Sanitize(m.Content)
	// New citations change how markers in the cached text render, and a
	// replaced text may no longer start with the cached prefix.
	if len(m.Citations) != len(b.msg.Citations) || !strings.HasPrefix(m.Content, b.finalizedRaw) {
		b.finalizedRaw = ""
		clear(b.finalizedByWidth)
	}
	b.msg = m
	b.promoteFinalized()
}

// Message returns the current answer snapshot.
func (b *AnswerBlock) Message() cite.Message { return b.msg }

func (b *AnswerBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AnswerBlock) View(width int) string {
	if b.msg.Content == "" {
		if b.msg.Streaming {
			return b.styles.Muted.Render("Waiting for answer...")
		}
		return ""
	}
	out := b.renderText(width)
	if b.msg.Truncated {
		out += "\n" + b.styles.Muted.Render("[stopped]")
	}
	return out
}

func (b *AnswerBlock) renderText(width int) string {
	finalizedRendered := b.renderFinalized(width)
	trailing := b.trailingRaw()
	if hasUnclosedFence(trailing) {
		// Close the fence for rendering only, so partial streams display.
		trailing += "\n```"
	}
	if trailing == "" {
		return finalizedRendered
	}
	trailingRendered := goldmark.Render(trailing, width, b.theme, b.msg.Citations)
	if strings.TrimSpace(trailingRendered) == "" {
		return finalizedRendered
	}
	if finalizedRendered == "" {
		return trailingRendered
	}
	return strings.TrimRight(finalizedRendered, "\n") + "\n\n" + strings.TrimLeft(trailingRendered, "\n")
}

// promoteFinalized moves the stable prefix forward to the last "\n\n" that
// does not fall inside an unclosed fenced code block.
func (b *AnswerBlock) promoteFinalized() {
	raw := b.msg.Content
	for end := len(raw); ; {
		idx := strings.LastIndex(raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := raw[:idx]
		if !hasUnclosedFence(candidate) {
			if candidate != b.finalizedRaw {
				b.finalizedRaw = candidate
				clear(b.finalizedByWidth)
			}
			return
		}
		end = idx
	}
}

func (b *AnswerBlock) renderFinalized(width int) string {
	if width <= 0 || b.finalizedRaw == "" {
		return ""
	}
	if cached, ok := b.finalizedByWidth[width]; ok {
		return cached
	}
	rendered := goldmark.Render(b.finalizedRaw, width, b.theme, b.msg.Citations)
	b.finalizedByWidth[width] = rendered
	return rendered
}

func (b *AnswerBlock) trailingRaw() string {
	if b.finalizedRaw == "" {
		return b.msg.Content
	}
	return strings.TrimPrefix(b.msg.Content, b.finalizedRaw+"\n\n")
}

// hasUnclosedFence reports an odd number of "```" in s. Triple backticks
// inside inline code spans are miscounted.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
