package cite

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CancelPolicy decides what happens to a cancelled answer.
type CancelPolicy int

const (
	// CancelDiscard drops the partial answer.
	CancelDiscard CancelPolicy = iota
	// CancelKeepTruncated appends the partial answer to history with
	// Truncated set.
	CancelKeepTruncated
)

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithCancelPolicy sets the policy applied by Cancel. Default is
// CancelDiscard.
func WithCancelPolicy(p CancelPolicy) ConversationOption {
	return func(c *Conversation) { c.policy = p }
}

// WithSessionOptions sets options applied to every session the conversation
// creates.
func WithSessionOptions(opts ...SessionOption) ConversationOption {
	return func(c *Conversation) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// WithConversationID sets the initial conversation id.
func WithConversationID(id string) ConversationOption {
	return func(c *Conversation) { c.id = id }
}

// Conversation holds finalized message history and at most one in-flight
// answer. It is safe for concurrent use; each conversation is an independent
// instance.
type Conversation struct {
	transport   Transport
	decode      Decoder
	sessionOpts []SessionOption
	policy      CancelPolicy
	now         func() time.Time

	mu      sync.Mutex
	id      string
	history []Message
	active  *StreamSession
}

// NewConversation creates an empty conversation whose sessions subscribe
// through transport and decode frames with decode.
func NewConversation(transport Transport, decode Decoder, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		transport: transport,
		decode:    decode,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ID returns the backend conversation id, empty until one is assigned.
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SetID records the conversation id returned by job submission.
func (c *Conversation) SetID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// AppendUserMessage appends an immutable user message to history.
func (c *Conversation) AppendUserMessage(content string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendUserLocked(content)
}

func (c *Conversation) appendUserLocked(content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: c.now(),
	}
	c.history = append(c.history, msg)
	return msg
}

// BeginStreaming binds a new session with an empty answer and starts it
// for jobID. It fails with ErrSingleFlight while an in-flight answer exists,
// leaving history and that answer untouched. If the subscription cannot be
// opened the binding is undone and the error returned.
func (c *Conversation) BeginStreaming(ctx context.Context, jobID string) (*StreamSession, error) {
	c.mu.Lock()
	s, err := c.claimLocked(nil)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("begin streaming job %s: %w", jobID, err)
	}
	if err := c.start(ctx, s, jobID); err != nil {
		return nil, err
	}
	return s, nil
}

// claimLocked binds a new idle session to the in-flight slot.
func (c *Conversation) claimLocked(extra []SessionOption) (*StreamSession, error) {
	if c.active != nil {
		return nil, ErrSingleFlight
	}
	opts := append(slices.Clone(c.sessionOpts), extra...)
	s := NewStreamSession(c.transport, c.decode, opts...)
	c.active = s
	return s, nil
}

// release frees the in-flight slot if s still holds it.
func (c *Conversation) release(s *StreamSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// start starts a claimed session, releasing the slot if it cannot.
func (c *Conversation) start(ctx context.Context, s *StreamSession, jobID string) error {
	if err := s.Start(ctx, jobID); err != nil {
		c.release(s)
		if s.Outcome() == OutcomeCancelled {
			// Cleared before the job was subscribed to.
			return ErrCancelled
		}
		return fmt.Errorf("begin streaming job %s: %w", jobID, err)
	}
	return nil
}

// ApplyEvent applies evt to the in-flight answer. It is a no-op returning
// false when no session is bound.
func (c *Conversation) ApplyEvent(evt Event) bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Apply(evt)
}

// Active returns the bound session, or nil.
func (c *Conversation) Active() *StreamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// InFlight returns a snapshot of the in-flight answer, if any.
func (c *Conversation) InFlight() (Message, bool) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return Message{}, false
	}
	return s.Snapshot(), true
}

// History returns a copy of the finalized messages.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Finalize moves the answer of a session closed as Completed or Errored into
// history and clears the in-flight slot. With nothing in flight it does
// nothing, so calling it twice is harmless. It fails with ErrInvalidState
// while the session is open or when it was cancelled.
func (c *Conversation) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeLocked(c.active)
}

func (c *Conversation) finalizeLocked(s *StreamSession) error {
	if s == nil || c.active != s {
		return nil
	}
	switch o := s.Outcome(); o {
	case OutcomeCompleted, OutcomeErrored:
	default:
		return fmt.Errorf("finalize answer with outcome %s: %w", o, ErrInvalidState)
	}
	c.history = append(c.history, s.Snapshot())
	c.active = nil
	return nil
}

// Cancel cancels the bound session if it is still open, then applies the
// cancel policy and clears the in-flight slot. A session that already closed
// as Completed or Errored must be finalized instead; Cancel then fails with
// ErrInvalidState.
func (c *Conversation) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.cancelLocked(c.active)
	return err
}

// cancelLocked reports whether the partial answer was kept in history.
func (c *Conversation) cancelLocked(s *StreamSession) (bool, error) {
	if s == nil || c.active != s {
		return false, nil
	}
	_ = s.Cancel()
	if o := s.Outcome(); o != OutcomeCancelled {
		return false, fmt.Errorf("cancel answer with outcome %s: %w", o, ErrInvalidState)
	}
	c.active = nil
	// A session cancelled before Start has no answer worth keeping.
	if c.policy != CancelKeepTruncated || s.JobID() == "" {
		return false, nil
	}
	msg := s.Snapshot()
	msg.Streaming = false
	msg.Truncated = true
	c.history = append(c.history, msg)
	return true, nil
}

// Transcript returns the conversation id and finalized history.
func (c *Conversation) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Transcript{
		ConversationID: c.id,
		SavedAt:        c.now(),
		Messages:       slices.Clone(c.history),
	}
}

// Restore replaces the history and id with those of t. It fails with
// ErrSingleFlight while an answer is in flight and with ErrValidation if
// any message is not a valid finalized message.
func (c *Conversation) Restore(t Transcript) error {
	for i, m := range t.Messages {
		if err := ValidateMessage(m); err != nil {
			return fmt.Errorf("restore message %d: %w", i, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return fmt.Errorf("restore transcript: %w", ErrSingleFlight)
	}
	c.id = t.ConversationID
	c.history = slices.Clone(t.Messages)
	return nil
}

// Clear cancels any open session and empties the conversation.
func (c *Conversation) Clear() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.history = nil
	c.id = ""
	c.mu.Unlock()
	if s != nil {
		_ = s.Cancel()
	}
}

// Stream runs one answer to completion: it begins streaming jobID, waits
// for the session to close and then finalizes or cancels. The returned
// message is the answer as it stands at the end; it is marked Truncated only
// when the cancel policy kept it in history. Cancelling ctx cancels the
// stream and returns ErrCancelled.
func (c *Conversation) Stream(ctx context.Context, jobID string) (Message, error) {
	s, err := c.BeginStreaming(ctx, jobID)
	if err != nil {
		return Message{}, err
	}
	return c.wait(ctx, s)
}

// Ask records query as a user message, submits it through jobs under the
// conversation id, adopts the id the backend returns and streams the answer
// as Stream does. Options in opts apply to this answer's session only.
// The in-flight slot is held from the check onwards, so while an answer is
// in flight Ask fails with ErrSingleFlight and records nothing. A failed
// submission frees the slot but keeps the question in history.
func (c *Conversation) Ask(ctx context.Context, jobs JobSubmitter, query string, opts ...SessionOption) (Message, error) {
	c.mu.Lock()
	s, err := c.claimLocked(opts)
	if err != nil {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("ask: %w", err)
	}
	c.appendUserLocked(query)
	conversationID := c.id
	c.mu.Unlock()

	job, err := jobs.Submit(ctx, query, conversationID)
	if err != nil {
		c.release(s)
		return Message{}, fmt.Errorf("ask: submit: %w", err)
	}
	c.mu.Lock()
	if job.ConversationID != "" && c.active == s {
		c.id = job.ConversationID
	}
	c.mu.Unlock()
	if err := c.start(ctx, s, job.ID); err != nil {
		return Message{}, err
	}
	return c.wait(ctx, s)
}

func (c *Conversation) wait(ctx context.Context, s *StreamSession) (Message, error) {
	msg, waitErr := s.Wait(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || errors.Is(waitErr, ErrCancelled) {
		kept, err := c.cancelLocked(s)
		if err != nil {
			// Closed with another outcome while ctx was being cancelled.
			if ferr := c.finalizeLocked(s); ferr != nil {
				return msg, ferr
			}
			s.settle()
			return s.Snapshot(), s.Err()
		}
		s.settle()
		msg.Streaming = false
		msg.Truncated = kept
		return msg, ErrCancelled
	}
	if err := c.finalizeLocked(s); err != nil {
		return msg, err
	}
	return msg, waitErr
}
