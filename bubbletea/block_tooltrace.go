package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
)

var _ MessageBlock = (*ToolTraceBlock)(nil)

// ToolTraceBlock renders the tool calls of an answer. Collapsed, it shows
// one line with each step's status; expanded, one line per step with its
// description.
type ToolTraceBlock struct {
	calls     []cite.ToolCall
	collapsed bool
	styles    Styles
}

// NewToolTraceBlock creates a ToolTraceBlock that starts collapsed.
func NewToolTraceBlock(styles Styles) *ToolTraceBlock {
	return &ToolTraceBlock{collapsed: true, styles: styles}
}

// Set replaces the tool calls.
func (b *ToolTraceBlock) Set(calls []cite.ToolCall) {
	b.calls = calls
}

// Collapsed reports whether the block is collapsed.
func (b *ToolTraceBlock) Collapsed() bool { return b.collapsed }

func (b *ToolTraceBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ToolTraceBlock) View(width int) string {
	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}
	header := b.styles.ToolCall.Render(fmt.Sprintf("%s Steps (%d)", indicator, len(b.calls)))
	if b.collapsed {
		parts := make([]string, len(b.calls))
		for i, tc := range b.calls {
			parts[i] = ansi.SanitizeLine(tc.Name) + " " + b.icon(tc.Status)
		}
		header += "  " + strings.Join(parts, b.styles.Muted.Render(" · "))
		return lipgloss.NewStyle().Width(width).Render(header)
	}
	lines := []string{header}
	for _, tc := range b.calls {
		line := "  " + b.icon(tc.Status) + " " + ansi.SanitizeLine(tc.Name)
		if desc := ansi.SanitizeLine(tc.Description); desc != "" {
			line += b.styles.Muted.Render(": " + desc)
		}
		lines = append(lines, line)
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

func (b *ToolTraceBlock) icon(s cite.ToolStatus) string {
	switch s {
	case cite.ToolCompleted:
		return b.styles.Success.Render("✓")
	case cite.ToolFailed:
		return b.styles.Error.Render("✗")
	default:
		return b.styles.Muted.Render("…")
	}
}
