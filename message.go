package cite

import "time"

// Message is one turn of a conversation. Assistant messages are assembled
// from a stream of events; while Streaming is true the message is an
// in-flight answer and Content only grows. Once finalized a Message is never
// modified again.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Citations []Citation
	Sources   []SourceCard
	ToolCalls []ToolCall
	CreatedAt time.Time
	Streaming bool

	// Truncated marks a cancelled answer kept in history with partial content.
	Truncated bool

	// Error is set when the answer ended with an error event, a transport
	// failure or an idle timeout. Content streamed so far is preserved.
	Error *AnswerError
}

// AnswerError is terminal-error metadata attached to an answer.
type AnswerError struct {
	Code    string
	Message string
}

// Citation is a reference from the answer text to a document page. ID is
// unique within one message and is referenced by inline [ID] markers.
type Citation struct {
	ID            int
	DocumentID    string
	DocumentTitle string
	PageNumber    int
	Text          string
	Span          *Span
}

// Span locates the cited text within the page, as character offsets.
type Span struct {
	Start int
	End   int
}

// SourceCard summarizes a retrieved document page. A source is not
// necessarily referenced by an inline marker.
type SourceCard struct {
	DocumentID string
	Title      string
	PageNumber int
	Excerpt    string
	URL        string
}

// ToolCall is one step of the backend's tool-invocation trace.
type ToolCall struct {
	ID          string
	Name        string
	Status      ToolStatus
	Description string
	Timestamp   time.Time
}

// ToolStatus is the lifecycle status of a tool call.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s ToolStatus) Valid() bool {
	switch s {
	case ToolRunning, ToolCompleted, ToolFailed:
		return true
	}
	return false
}

// CanTransition reports whether a tool call may move from s to next.
// Status is monotonic: running may become completed or failed, and a status
// may always be restated. Nothing leaves completed or failed.
func (s ToolStatus) CanTransition(next ToolStatus) bool {
	if s == next {
		return true
	}
	return s == ToolRunning && (next == ToolCompleted || next == ToolFailed)
}
