package ansi_test

import (
	"strings"
	"testing"

	"github.com/fwojciec/cite/ansi"
	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	t.Run("passes plain text through unchanged", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "Refunds take thirty days [1].", ansi.Sanitize("Refunds take thirty days [1]."))
	})

	t.Run("keeps markdown and unicode", func(t *testing.T) {
		t.Parallel()
		in := "## Résumé\n\n- **bold** `code` ✓ 日本語"
		assert.Equal(t, in, ansi.Sanitize(in))
	})

	t.Run("strips color codes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "hello", ansi.Sanitize("\x1b[31mhello\x1b[0m"))
	})

	t.Run("strips cursor movement", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "ab", ansi.Sanitize("a\x1b[2J\x1b[Hb"))
	})

	t.Run("strips OSC sequences", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "text", ansi.Sanitize("\x1b]0;title\x07text"))
	})

	t.Run("strips hyperlinks but keeps their text", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "docs", ansi.Sanitize("\x1b]8;;https://example.com\x1b\\docs\x1b]8;;\x1b\\"))
	})

	t.Run("preserves tabs and newlines", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "a\tb\nc", ansi.Sanitize("a\tb\nc"))
	})

	t.Run("removes control characters", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "abc", ansi.Sanitize("a\x01b\x02c\x07\x7f"))
	})

	t.Run("removes C1 controls", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "ab", ansi.Sanitize("a\u0085b"))
	})

	t.Run("normalizes CRLF and drops lone CR", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "a\nb\ncd", ansi.Sanitize("a\r\nb\r\nc\rd"))
	})

	t.Run("handles empty and escape-only input", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", ansi.Sanitize(""))
		assert.Equal(t, "", ansi.Sanitize("\x1b[31m\x1b[0m"))
	})

	t.Run("handles large input", func(t *testing.T) {
		t.Parallel()
		line := "\x1b[32m" + strings.Repeat("x", 1000) + "\x1b[0m\n"
		result := ansi.Sanitize(strings.Repeat(line, 1000))
		assert.NotContains(t, result, "\x1b")
		assert.Contains(t, result, strings.Repeat("x", 1000))
	})
}

func TestSanitizeLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Refund Policy", ansi.SanitizeLine("  \x1b[1mRefund\x1b[0m\n\tPolicy  "))
	assert.Equal(t, "", ansi.SanitizeLine("\n\t "))
}
