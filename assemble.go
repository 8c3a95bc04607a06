package cite

import (
	"slices"
	"time"
)

// NewAnswer returns an empty in-flight assistant answer ready for Apply.
func NewAnswer(id string, createdAt time.Time) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: createdAt,
		Streaming: true,
	}
}

// Apply folds evt into answer and returns the result. It is pure: slices
// reachable from answer are never written, so earlier snapshots stay valid.
// Once a terminal event has been applied (Streaming is false) Apply returns
// answer unchanged.
func Apply(answer Message, evt Event) Message {
	if !answer.Streaming {
		return answer
	}
	switch e := evt.(type) {
	case EventTextDelta:
		answer.Content += e.Delta
	case EventTextReplace:
		answer.Content = e.Text
	case EventCitation:
		answer.Citations = upsertCitation(answer.Citations, e.Citation)
	case EventSource:
		answer.Sources = appendSource(answer.Sources, e.Source)
	case EventToolCall:
		answer.ToolCalls = upsertToolCall(answer.ToolCalls, e.ToolCall)
	case EventDone:
		answer.Streaming = false
	case EventError:
		answer.Streaming = false
		answer.Error = &AnswerError{Code: e.Code, Message: e.Message}
	}
	return answer
}

// upsertCitation keeps the first citation seen for an id. Later emissions
// with the same id are dropped so an already-referenced marker never changes
// meaning.
func upsertCitation(citations []Citation, c Citation) []Citation {
	if slices.ContainsFunc(citations, func(x Citation) bool { return x.ID == c.ID }) {
		return citations
	}
	return append(slices.Clip(citations), c)
}

func appendSource(sources []SourceCard, s SourceCard) []SourceCard {
	dup := slices.ContainsFunc(sources, func(x SourceCard) bool {
		return x.DocumentID == s.DocumentID && x.PageNumber == s.PageNumber
	})
	if dup {
		return sources
	}
	return append(slices.Clip(sources), s)
}

// upsertToolCall inserts tc or merges it into the existing entry with the
// same id. An update whose status transition is invalid is rejected as a
// whole and the existing entry is kept.
func upsertToolCall(calls []ToolCall, tc ToolCall) []ToolCall {
	i := slices.IndexFunc(calls, func(x ToolCall) bool { return x.ID == tc.ID })
	if i < 0 {
		return append(slices.Clip(calls), tc)
	}
	cur := calls[i]
	next := tc.Status
	if next == "" {
		next = cur.Status
	}
	if !cur.Status.CanTransition(next) {
		return calls
	}
	merged := cur
	merged.Status = next
	if tc.Name != "" {
		merged.Name = tc.Name
	}
	if tc.Description != "" {
		merged.Description = tc.Description
	}
	if !tc.Timestamp.IsZero() {
		merged.Timestamp = tc.Timestamp
	}
	out := slices.Clone(calls)
	out[i] = merged
	return out
}
