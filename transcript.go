package cite

import "time"

// Transcript is the finalized history of a conversation, as persisted
// between runs. In-flight answers are never part of a transcript.
type Transcript struct {
	ConversationID string
	SavedAt        time.Time
	Messages       []Message
}
