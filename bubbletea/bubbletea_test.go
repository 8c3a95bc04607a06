package bubbletea_test

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/cite"
	bt "github.com/fwojciec/cite/bubbletea"
	"github.com/stretchr/testify/require"
)

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, ask bt.AskFunc, history ...cite.Message) bt.Model {
	t.Helper()
	return initModelWithSize(t, ask, 80, 24, history...)
}

// initModelWithSize creates a model with a custom terminal size.
func initModelWithSize(t *testing.T, ask bt.AskFunc, width, height int, history ...cite.Message) bt.Model {
	t.Helper()
	m := bt.New(ask, history, cite.DefaultTheme())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// submit types text into the input and presses Enter without running the
// returned commands.
func submit(t *testing.T, m bt.Model, text string) bt.Model {
	t.Helper()
	m.Input.SetValue(text)
	return updateModel(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

// nopAsk answers nothing.
func nopAsk(context.Context, string, func(cite.Message)) (cite.Message, error) {
	return cite.Message{}, nil
}

func answer(content string) cite.Message {
	return cite.Message{ID: "a1", Role: cite.RoleAssistant, Content: content}
}
