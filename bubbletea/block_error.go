package bubbletea

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders an error message.
type ErrorBlock struct {
	text   string
	styles Styles
}

// NewErrorBlock creates an ErrorBlock for err.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	return &ErrorBlock{text: err.Error(), styles: styles}
}

// NewAnswerErrorBlock creates an ErrorBlock for an answer that ended with an
// error.
func NewAnswerErrorBlock(e *cite.AnswerError, styles Styles) *ErrorBlock {
	text := ansi.SanitizeLine(e.Code)
	if msg := ansi.SanitizeLine(e.Message); msg != "" {
		text = fmt.Sprintf("%s (%s)", msg, text)
	}
	return &ErrorBlock{text: text, styles: styles}
}

func (b *ErrorBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	content := b.styles.Error.Render("Error: " + b.text)
	return lipgloss.NewStyle().Width(width).Render(content)
}
