package cite

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrSingleFlight indicates a second stream was requested while an
	// in-flight answer already exists for the conversation.
	ErrSingleFlight = errors.New("single-flight violation: answer already in flight")

	// ErrInvalidState indicates an operation was attempted from a session or
	// conversation state that does not allow it.
	ErrInvalidState = errors.New("invalid state")

	// ErrCancelled indicates the session was cancelled before a terminal event.
	ErrCancelled = errors.New("stream cancelled")

	// ErrUnknownJob indicates the job id is not known to the backend.
	ErrUnknownJob = errors.New("unknown job")

	// ErrDocumentNotFound indicates a document id could not be resolved.
	ErrDocumentNotFound = errors.New("document not found")
)

// DecodeReason classifies a frame that could not be turned into an Event.
type DecodeReason string

const (
	ReasonMalformedPayload     DecodeReason = "malformed_payload"
	ReasonUnknownDiscriminator DecodeReason = "unknown_discriminator"
)

// DecodeError reports a frame that could not be decoded. Decode errors never
// end a session: the frame is reported and skipped.
type DecodeError struct {
	Reason DecodeReason
	Event  string // discriminator as received, if any
	Err    error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Reason == ReasonUnknownDiscriminator:
		return fmt.Sprintf("decode: unknown event type %q", e.Event)
	case e.Err != nil && e.Event != "":
		return fmt.Sprintf("decode: %s: %s event: %v", e.Reason, e.Event, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("decode: %s", e.Reason)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BackendError is the terminal error carried by an explicit error event.
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
}

// TransportError is the terminal error raised when the subscription fails,
// disconnects before a terminal event, or goes idle past the timeout.
type TransportError struct {
	Code string // "transport" or "timeout"
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
