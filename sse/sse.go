// Package sse implements the HTTP job API and Server-Sent Events transport
// for cite.
//
// Jobs are submitted with a JSON POST and their events are streamed back as
// SSE records whose data field carries one JSON frame. Reader turns any SSE
// byte stream, live or captured to a file, into a pull-based
// [cite.Subscription].
package sse

const (
	chatPath   = "/api/chat"
	streamPath = "/api/stream/"
	pdfPath    = "/api/pdf/"
)

// chatRequest is the JSON body of a job submission.
type chatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
}

// chatResponse is the JSON body returned by a job submission.
type chatResponse struct {
	JobID          string `json:"jobId"`
	ConversationID string `json:"conversationId"`
}

// errorResponse is the JSON body returned on non-200 responses.
type errorResponse struct {
	Detail string `json:"detail"`
}
