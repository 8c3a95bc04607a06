package bubbletea_test

import (
	"strings"
	"testing"

	"github.com/fwojciec/cite"
	bt "github.com/fwojciec/cite/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestUserMessageBlock_View(t *testing.T) {
	t.Parallel()

	t.Run("renders text with prompt prefix", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(cite.DefaultTheme())
		view := bt.NewUserMessageBlock("hello world", styles).View(80)
		assert.Contains(t, view, "> ")
		assert.Contains(t, view, "hello world")
	})

	t.Run("wraps long text to width", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(cite.DefaultTheme())
		longText := "short words that keep going and going beyond the viewport width easily"
		view := bt.NewUserMessageBlock(longText, styles).View(30)
		assert.Contains(t, view, "easily")
		assert.Greater(t, len(strings.Split(view, "\n")), 1)
	})
}
