package bubbletea_test

import (
	"errors"
	"testing"

	"github.com/fwojciec/cite"
	bt "github.com/fwojciec/cite/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestErrorBlock_View(t *testing.T) {
	t.Parallel()

	t.Run("renders error prefix and message", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(cite.DefaultTheme())
		view := bt.NewErrorBlock(errors.New("something broke"), styles).View(80)
		assert.Contains(t, view, "Error: something broke")
	})

	t.Run("answer error shows message and code", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(cite.DefaultTheme())
		view := bt.NewAnswerErrorBlock(&cite.AnswerError{Code: "retrieval_failed", Message: "index offline"}, styles).View(80)
		assert.Contains(t, view, "Error: index offline (retrieval_failed)")
	})

	t.Run("answer error without message shows code", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(cite.DefaultTheme())
		view := bt.NewAnswerErrorBlock(&cite.AnswerError{Code: "timeout"}, styles).View(80)
		assert.Contains(t, view, "Error: timeout")
	})
}
