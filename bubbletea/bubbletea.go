// Package bubbletea provides a Bubble Tea chat TUI for cited answers.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/cite"
)

// AskFunc answers one question. onUpdate receives answer snapshots in the
// order they were produced. The function blocks until the answer is finished
// or the context is cancelled and returns the final answer.
type AskFunc func(ctx context.Context, query string, onUpdate func(cite.Message)) (cite.Message, error)

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown: when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// AnswerUpdateMsg carries a snapshot of the in-flight answer.
type AnswerUpdateMsg struct {
	Message cite.Message
}

// AskDoneMsg signals that the current question has been answered.
type AskDoneMsg struct {
	Message cite.Message
	Err     error
}
