package cite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState indicates the current state of a StreamSession.
type SessionState int

const (
	SessionIdle       SessionState = iota // Before Start() is called.
	SessionConnecting                     // Subscribed, no event applied yet.
	SessionStreaming                      // At least one event applied.
	SessionClosed                         // Terminal; see Outcome().
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionStreaming:
		return "streaming"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Outcome tags a closed session.
type Outcome int

const (
	OutcomeNone      Outcome = iota // Session not closed.
	OutcomeCompleted                // Done event applied.
	OutcomeErrored                  // Error event, transport failure or idle timeout.
	OutcomeCancelled                // Cancel() or context cancellation.
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeErrored:
		return "errored"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Error codes attached to answers that end without a backend error event.
const (
	CodeTransport = "transport"
	CodeTimeout   = "timeout"
)

// SessionOption configures a StreamSession.
type SessionOption func(*StreamSession)

// WithObserver sets the observer notified of session lifecycle events.
func WithObserver(o Observer) SessionOption {
	return func(s *StreamSession) { s.observer = o }
}

// WithIdleTimeout closes the session as errored with code "timeout" when no
// frame arrives within d. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *StreamSession) { s.idleTimeout = d }
}

// WithUpdateHandler sets a callback that receives a snapshot of the answer
// after every applied event and on close. Calls are serialized and arrive in
// event order. The handler must not call back into the session and should
// return quickly: the next event waits for it.
func WithUpdateHandler(h func(Message)) SessionOption {
	return func(s *StreamSession) { s.onUpdate = h }
}

// WithAnswerID sets the id of the answer message. Default is a random UUID.
func WithAnswerID(id string) SessionOption {
	return func(s *StreamSession) { s.answer.ID = id }
}

// WithClock sets the time source used for CreatedAt and tool call
// timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *StreamSession) { s.now = now }
}

// StreamSession owns the consumption of one job's event stream. It pulls
// frames from the transport, decodes them, folds them into its answer with
// Apply and closes on the first terminal condition. All mutation of the
// answer happens under the session lock; readers get immutable snapshots.
type StreamSession struct {
	transport   Transport
	decode      Decoder
	observer    Observer
	idleTimeout time.Duration
	onUpdate    func(Message)
	now         func() time.Time

	// notifyMu is taken before mu is released so update callbacks run in
	// the order events were applied.
	notifyMu sync.Mutex

	mu       sync.Mutex
	jobID    string
	state    SessionState
	outcome  Outcome
	err      error
	answer   Message
	sub      Subscription
	closeSub sync.Once
	done     chan struct{}
}

// NewStreamSession creates an idle session that subscribes through
// transport and decodes frames with decode.
func NewStreamSession(transport Transport, decode Decoder, opts ...SessionOption) *StreamSession {
	s := &StreamSession{
		transport: transport,
		decode:    decode,
		observer:  NopObserver{},
		now:       time.Now,
		done:      make(chan struct{}),
	}
	s.answer.ID = uuid.NewString()
	for _, o := range opts {
		o(s)
	}
	s.answer = NewAnswer(s.answer.ID, s.now())
	return s
}

// Start opens the subscription for jobID and begins consuming frames in the
// background. It is valid only from SessionIdle. Cancelling ctx cancels the
// session. A subscribe failure closes the session as errored and is
// returned as a *TransportError.
func (s *StreamSession) Start(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if s.state != SessionIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("start session in state %s: %w", st, ErrInvalidState)
	}
	s.jobID = jobID
	s.state = SessionConnecting
	s.mu.Unlock()
	s.observer.SessionStarted(jobID)

	sub, err := s.transport.Subscribe(ctx, jobID)
	if err != nil {
		terr := &TransportError{Code: CodeTransport, Err: err}
		s.fail(terr)
		return terr
	}

	s.mu.Lock()
	if s.state == SessionClosed {
		// Cancelled while connecting.
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	go s.run(ctx, sub)
	return nil
}

// Apply folds one decoded event into the answer. It reports whether the
// event was applied: events on an idle session are refused, and events after
// Closed are discarded and reported to the observer as late.
func (s *StreamSession) Apply(evt Event) bool {
	s.mu.Lock()
	switch s.state {
	case SessionIdle:
		s.mu.Unlock()
		return false
	case SessionClosed:
		jobID := s.jobID
		s.mu.Unlock()
		s.observer.LateEvent(jobID, evt)
		return false
	}
	if tc, ok := evt.(EventToolCall); ok && tc.ToolCall.Timestamp.IsZero() {
		tc.ToolCall.Timestamp = s.now()
		evt = tc
	}
	s.state = SessionStreaming
	s.answer = Apply(s.answer, evt)

	var (
		closed  bool
		outcome Outcome
		err     error
	)
	switch e := evt.(type) {
	case EventDone:
		closed, outcome = true, OutcomeCompleted
	case EventError:
		closed, outcome = true, OutcomeErrored
		err = &BackendError{Code: e.Code, Message: e.Message}
	}
	if closed {
		s.closeLocked(outcome, err)
	}
	jobID := s.jobID
	s.unlockAndNotify()

	s.observer.EventApplied(jobID, evt)
	if closed {
		s.observer.SessionClosed(jobID, outcome, err)
	}
	return true
}

// Cancel closes the subscription and moves the session to
// Closed(Cancelled). It does not finalize the answer; the partial snapshot
// stays readable. Cancel is valid from any state except Closed.
func (s *StreamSession) Cancel() error {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return fmt.Errorf("cancel session: %w", ErrInvalidState)
	}
	s.closeLocked(OutcomeCancelled, ErrCancelled)
	jobID := s.jobID
	s.unlockAndNotify()
	s.observer.SessionClosed(jobID, OutcomeCancelled, ErrCancelled)
	return nil
}

// Wait blocks until the session closes or ctx is done and returns the
// answer snapshot. The error is nil for Completed, a *BackendError or
// *TransportError for Errored, and ErrCancelled for Cancelled. When Wait
// returns after close, the update handler has received the final snapshot.
func (s *StreamSession) Wait(ctx context.Context) (Message, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
	s.mu.Lock()
	answer, err := s.answer, s.err
	s.mu.Unlock()
	s.settle()
	return answer, err
}

// settle blocks until the update handler has returned from the closing
// notification. The closing notifier holds notifyMu before it releases mu,
// so settle must be called after observing Closed under mu.
func (s *StreamSession) settle() {
	s.notifyMu.Lock()
	s.notifyMu.Unlock()
}

// Snapshot returns the current answer. The returned value is never modified
// by the session.
func (s *StreamSession) Snapshot() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

// State returns the current session state.
func (s *StreamSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns how the session closed, or OutcomeNone while open.
func (s *StreamSession) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Err returns the terminal error, if any. See Wait.
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// JobID returns the job id passed to Start.
func (s *StreamSession) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// Done returns a channel closed when the session reaches SessionClosed.
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

type frame struct {
	data []byte
	err  error
}

// run is the session's actor loop. Frames arrive from pump over a channel;
// the idle timer and ctx are watched alongside.
func (s *StreamSession) run(ctx context.Context, sub Subscription) {
	frames := make(chan frame)
	go s.pump(sub, frames)

	var (
		timer *time.Timer
		idle  <-chan time.Time
	)
	if s.idleTimeout > 0 {
		timer = time.NewTimer(s.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Cancel()
			return
		case <-idle:
			s.fail(&TransportError{
				Code: CodeTimeout,
				Err:  fmt.Errorf("no event within %s", s.idleTimeout),
			})
			return
		case f := <-frames:
			if f.err != nil {
				if ctx.Err() != nil {
					_ = s.Cancel()
					return
				}
				s.fail(transportError(f.err))
				return
			}
			if timer != nil {
				timer.Reset(s.idleTimeout)
			}
			s.handle(f.data)
		}
	}
}

// pump pulls frames from the subscription. A frame read after the session
// closed is still decoded, then discarded by Apply and reported as late.
func (s *StreamSession) pump(sub Subscription, frames chan<- frame) {
	for {
		data, err := sub.Next()
		select {
		case frames <- frame{data: data, err: err}:
		case <-s.done:
			if err == nil {
				s.handle(data)
			}
			return
		}
		if err != nil {
			return
		}
	}
}

// handle decodes outside the lock, then applies. Decode failures are
// reported and the frame is skipped.
func (s *StreamSession) handle(data []byte) {
	evt, err := s.decode(data)
	if err != nil {
		s.observer.DecodeFailed(s.JobID(), err)
		return
	}
	s.Apply(evt)
}

// fail closes the session as errored, attaching the error to the answer.
func (s *StreamSession) fail(terr *TransportError) {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.answer = Apply(s.answer, EventError{Code: terr.Code, Message: terr.Err.Error()})
	s.closeLocked(OutcomeErrored, terr)
	jobID := s.jobID
	s.unlockAndNotify()
	s.observer.SessionClosed(jobID, OutcomeErrored, terr)
}

// closeLocked moves to Closed and closes the subscription exactly once.
func (s *StreamSession) closeLocked(outcome Outcome, err error) {
	s.state = SessionClosed
	s.outcome = outcome
	s.err = err
	if s.sub != nil {
		s.closeSub.Do(func() { _ = s.sub.Close() })
	}
	close(s.done)
}

// unlockAndNotify releases mu and delivers the snapshot taken under it.
func (s *StreamSession) unlockAndNotify() {
	snap := s.answer
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

func transportError(err error) *TransportError {
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("stream ended before terminal event: %w", io.ErrUnexpectedEOF)
	}
	return &TransportError{Code: CodeTransport, Err: err}
}
