package mock

import "github.com/fwojciec/cite"

// Interface compliance check.
var _ cite.Observer = (*Observer)(nil)

// Observer is a test double for cite.Observer. Every method is nil-safe:
// sessions notify on every step and most tests care about one or two of them.
type Observer struct {
	SessionStartedFn func(jobID string)
	EventAppliedFn   func(jobID string, evt cite.Event)
	DecodeFailedFn   func(jobID string, err error)
	LateEventFn      func(jobID string, evt cite.Event)
	SessionClosedFn  func(jobID string, outcome cite.Outcome, err error)
}

// SessionStarted delegates to SessionStartedFn.
func (o *Observer) SessionStarted(jobID string) {
	if o.SessionStartedFn != nil {
		o.SessionStartedFn(jobID)
	}
}

// EventApplied delegates to EventAppliedFn.
func (o *Observer) EventApplied(jobID string, evt cite.Event) {
	if o.EventAppliedFn != nil {
		o.EventAppliedFn(jobID, evt)
	}
}

// DecodeFailed delegates to DecodeFailedFn.
func (o *Observer) DecodeFailed(jobID string, err error) {
	if o.DecodeFailedFn != nil {
		o.DecodeFailedFn(jobID, err)
	}
}

// LateEvent delegates to LateEventFn.
func (o *Observer) LateEvent(jobID string, evt cite.Event) {
	if o.LateEventFn != nil {
		o.LateEventFn(jobID, evt)
	}
}

// SessionClosed delegates to SessionClosedFn.
func (o *Observer) SessionClosed(jobID string, outcome cite.Outcome, err error) {
	if o.SessionClosedFn != nil {
		o.SessionClosedFn(jobID, outcome, err)
	}
}
