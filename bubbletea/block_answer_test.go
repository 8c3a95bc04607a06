package bubbletea_test

import (
	"strings"
	"testing"

	"github.com/fwojciec/cite"
	bt "github.com/fwojciec/cite/bubbletea"
	"github.com/stretchr/testify/assert"
)

func newAnswerBlock() *bt.AnswerBlock {
	theme := cite.DefaultTheme()
	return bt.NewAnswerBlock(theme, bt.NewStyles(theme))
}

func TestAnswerBlock_View(t *testing.T) {
	t.Parallel()

	t.Run("streaming without content shows placeholder", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(cite.Message{Role: cite.RoleAssistant, Streaming: true})
		assert.Contains(t, b.View(80), "Waiting for answer...")
	})

	t.Run("finished without content renders nothing", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(cite.Message{Role: cite.RoleAssistant})
		assert.Empty(t, b.View(80))
	})

	t.Run("renders markdown", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("Refunds take **thirty** days."))
		view := b.View(80)
		assert.Contains(t, view, "thirty")
		assert.NotContains(t, view, "**")
	})

	t.Run("renders citation markers", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		m := answer("Refunds take thirty days [1].")
		m.Citations = []cite.Citation{{ID: 1, DocumentID: "d1"}}
		b.Set(m)
		assert.Contains(t, b.View(80), "[1]")
	})

	t.Run("truncated answer is marked stopped", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		m := answer("Partial")
		m.Truncated = true
		b.Set(m)
		view := b.View(80)
		assert.Contains(t, view, "Partial")
		assert.Contains(t, view, "[stopped]")
	})

	t.Run("growing content keeps finalized paragraphs", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("First paragraph."))
		b.Set(answer("First paragraph.\n\nSecond"))
		b.Set(answer("First paragraph.\n\nSecond paragraph."))
		view := b.View(80)
		assert.Contains(t, view, "First paragraph.")
		assert.Contains(t, view, "Second paragraph.")
		assert.Less(t, strings.Index(view, "First"), strings.Index(view, "Second"))
	})

	t.Run("replaced content is re-rendered", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("Old text.\n\nMore"))
		_ = b.View(80)
		b.Set(answer("New text."))
		view := b.View(80)
		assert.Contains(t, view, "New text.")
		assert.NotContains(t, view, "Old text.")
	})

	t.Run("unclosed fence renders as code", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("Example:\n\n```go\nfmt.Println(1)"))
		view := b.View(80)
		assert.Contains(t, view, "fmt.Println(1)")
		assert.NotContains(t, view, "```")
	})

	t.Run("strips escape sequences from content", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("safe\x1b]0;pwned\x07 text"))
		view := b.View(80)
		assert.Contains(t, view, "safe text")
		assert.NotContains(t, view, "pwned")
	})

	t.Run("message returns last snapshot", func(t *testing.T) {
		t.Parallel()
		b := newAnswerBlock()
		b.Set(answer("x"))
		assert.Equal(t, "x", b.Message().Content)
	})
}
