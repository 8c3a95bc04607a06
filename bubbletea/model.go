package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/cite"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the cite TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	ask     AskFunc
	history []cite.Message
	theme   cite.Theme
	styles  Styles

	blocks     []MessageBlock
	blockFocus int // index of focused collapsible block (-1 = none)

	// current holds the blocks of the answer being streamed.
	current *answerTurn

	running  bool
	cancel   context.CancelFunc
	updateCh chan cite.Message
	doneCh   chan AskDoneMsg
	err      error
	ready    bool
}

// New creates a new TUI Model that answers questions with ask. history is
// rendered above the input when the window size is first known.
func New(ask AskFunc, history []cite.Message, theme cite.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		Input:      ti,
		ask:        ask,
		history:    history,
		theme:      theme,
		styles:     NewStyles(theme),
		blockFocus: -1,
	}
}

// Running returns whether a question is being answered.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// SetRunning is a test helper that puts the model in a running state.
func SetRunning(m Model) (Model, tea.Cmd) {
	m.running = true
	return m, nil
}

// SetRunningWithCancel is a test helper that puts the model in a running state
// with a cancel function.
func SetRunningWithCancel(m Model, cancel func()) (Model, tea.Cmd) {
	m.running = true
	m.cancel = cancel
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case AnswerUpdateMsg:
		m = m.showAnswer(msg.Message)
		if m.updateCh != nil {
			return m, listenForUpdate(m.updateCh, m.doneCh)
		}
		return m, nil

	case AskDoneMsg:
		m = m.finishAsk(msg)
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := max(msg.Height-inputH-statusHeight-borderHeight, 1)

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m = m.renderHistory()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)

	case tea.KeyTab:
		if !m.running && m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil

	case tea.KeyShiftTab:
		if !m.running {
			m = m.cycleFocusPrev()
			m.Viewport.SetContent(m.renderContent())
		}
		return m, nil
	}

	// When idle, non-character keys also scroll the viewport; 'j' and 'k'
	// are text.
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	m.blocks = append(m.blocks, NewUserMessageBlock(text, m.styles))
	m.current = m.newTurn(len(m.blocks))
	m.blocks = m.current.place(m.blocks, cite.Message{Role: cite.RoleAssistant, Streaming: true})
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.updateCh = make(chan cite.Message, 256)
	m.doneCh = make(chan AskDoneMsg, 1)
	m.running = true

	m.Input.Blur()

	return m, tea.Batch(
		startAsk(ctx, m.ask, text, m.updateCh, m.doneCh),
		listenForUpdate(m.updateCh, m.doneCh),
	)
}

func (m Model) showAnswer(msg cite.Message) Model {
	if m.current == nil {
		return m
	}
	m.blocks = m.current.place(m.blocks, msg)
	m = m.updateBlockFocus()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) finishAsk(msg AskDoneMsg) Model {
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.cancel = nil
	m.updateCh = nil
	m.doneCh = nil

	cancelled := errors.Is(msg.Err, cite.ErrCancelled) || errors.Is(msg.Err, context.Canceled)
	if msg.Err != nil && !cancelled && msg.Message.Error == nil {
		m.err = msg.Err
	}
	if m.current != nil {
		switch {
		case msg.Message.ID != "":
			m.blocks = m.current.place(m.blocks, msg.Message)
		case msg.Err != nil && !cancelled:
			// No answer was started; show the failure in its place.
			m.blocks = append(m.blocks[:m.current.start], NewErrorBlock(msg.Err, m.styles))
		default:
			m.blocks = m.blocks[:m.current.start]
		}
		m.current = nil
	}
	m = m.updateBlockFocus()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

// renderHistory creates blocks for the messages the model was created with.
func (m Model) renderHistory() Model {
	for _, msg := range m.history {
		switch msg.Role {
		case cite.RoleUser:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg.Content, m.styles))
		case cite.RoleAssistant:
			m.blocks = m.newTurn(len(m.blocks)).place(m.blocks, msg)
		}
	}
	return m.updateBlockFocus()
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// updateBlockFocus scans backwards to find the last collapsible block.
// Only the focused block responds to Tab. ShiftTab cycles to the previous
// collapsible block.
func (m Model) updateBlockFocus() Model {
	m.blockFocus = -1
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if _, ok := m.blocks[i].(*ToolTraceBlock); ok {
			m.blockFocus = i
			return m
		}
	}
	return m
}

// cycleFocusPrev moves blockFocus to the previous collapsible block, wrapping around.
func (m Model) cycleFocusPrev() Model {
	start := m.blockFocus - 1
	if start < 0 {
		start = len(m.blocks) - 1
	}
	for i := range len(m.blocks) {
		idx := (start - i + len(m.blocks)) % len(m.blocks)
		if _, ok := m.blocks[idx].(*ToolTraceBlock); ok {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.running {
		return m.styles.Muted.Render("Generating... (Ctrl+C to stop)")
	}
	return m.styles.Muted.Render("Enter to send, Tab to expand steps, Ctrl+C to quit")
}

// answerTurn owns the blocks of one assistant answer. The blocks start at
// index start of the model's block list and run to its end.
type answerTurn struct {
	start   int
	trace   *ToolTraceBlock
	answer  *AnswerBlock
	sources *SourcesBlock
}

func (m Model) newTurn(start int) *answerTurn {
	return &answerTurn{
		start:   start,
		trace:   NewToolTraceBlock(m.styles),
		answer:  NewAnswerBlock(m.theme, m.styles),
		sources: NewSourcesBlock(m.styles),
	}
}

// place updates the turn's blocks from msg and writes them over the tail
// of blocks.
func (t *answerTurn) place(blocks []MessageBlock, msg cite.Message) []MessageBlock {
	blocks = blocks[:t.start]
	if len(msg.ToolCalls) > 0 {
		t.trace.Set(msg.ToolCalls)
		blocks = append(blocks, t.trace)
	}
	t.answer.Set(msg)
	blocks = append(blocks, t.answer)
	if len(msg.Sources) > 0 {
		t.sources.Set(msg.Sources)
		blocks = append(blocks, t.sources)
	}
	if msg.Error != nil {
		blocks = append(blocks, NewAnswerErrorBlock(msg.Error, t.answer.styles))
	}
	return blocks
}

// startAsk runs ask in a goroutine. Snapshots go to updateCh and the result
// to doneCh. updateCh is never closed: a snapshot may still be delivered
// while ask returns.
func startAsk(ctx context.Context, ask AskFunc, query string, updateCh chan<- cite.Message, doneCh chan<- AskDoneMsg) tea.Cmd {
	return func() tea.Msg {
		msg, err := ask(ctx, query, func(m cite.Message) {
			select {
			case updateCh <- m:
			case <-ctx.Done():
			}
		})
		doneCh <- AskDoneMsg{Message: msg, Err: err}
		return nil
	}
}

// listenForUpdate waits for the next answer snapshot or the result.
// Snapshots still queued when the result arrives are dropped; the result
// carries the final answer.
func listenForUpdate(ch <-chan cite.Message, doneCh <-chan AskDoneMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return AnswerUpdateMsg{Message: msg}
		case done := <-doneCh:
			return done
		}
	}
}
