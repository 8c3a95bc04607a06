package cite

// Event is a sealed interface representing one decoded stream event.
// Events are purely semantic. Transport failures surface as session
// outcomes, not as events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventTextDelta appends Delta to the answer content.
type EventTextDelta struct {
	Delta string
}

func (EventTextDelta) event() {}

// EventTextReplace replaces the answer content with Text.
type EventTextReplace struct {
	Text string
}

func (EventTextReplace) event() {}

// EventCitation adds a citation, keyed by Citation.ID.
type EventCitation struct {
	Citation Citation
}

func (EventCitation) event() {}

// EventSource adds a source card, keyed by document and page.
type EventSource struct {
	Source SourceCard
}

func (EventSource) event() {}

// EventToolCall inserts or updates a tool call, keyed by ToolCall.ID.
type EventToolCall struct {
	ToolCall ToolCall
}

func (EventToolCall) event() {}

// EventDone signals the answer completed. It is terminal.
type EventDone struct{}

func (EventDone) event() {}

// EventError signals the backend failed the job. It is terminal.
type EventError struct {
	Code    string
	Message string
}

func (EventError) event() {}

// Terminal reports whether evt ends the stream.
func Terminal(evt Event) bool {
	switch evt.(type) {
	case EventDone, EventError:
		return true
	}
	return false
}

// EventName returns a short name for evt's type, used in logs and metrics.
func EventName(evt Event) string {
	switch evt.(type) {
	case EventTextDelta:
		return "text_delta"
	case EventTextReplace:
		return "text"
	case EventCitation:
		return "citation"
	case EventSource:
		return "source"
	case EventToolCall:
		return "tool_call"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Interface compliance checks.
var (
	_ Event = EventTextDelta{}
	_ Event = EventTextReplace{}
	_ Event = EventCitation{}
	_ Event = EventSource{}
	_ Event = EventToolCall{}
	_ Event = EventDone{}
	_ Event = EventError{}
)
