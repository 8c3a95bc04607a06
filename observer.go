package cite

// Observer receives stream session lifecycle notifications. It is how the
// domain reports things that are logged or counted without failing the
// session. Implementations must be safe for concurrent use and must not
// call back into the session.
type Observer interface {
	SessionStarted(jobID string)
	EventApplied(jobID string, evt Event)
	DecodeFailed(jobID string, err error)
	LateEvent(jobID string, evt Event)
	SessionClosed(jobID string, outcome Outcome, err error)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) SessionStarted(string) {}
func (NopObserver) EventApplied(string, Event) {}
func (NopObserver) DecodeFailed(string, error) {}
func (NopObserver) LateEvent(string, Event) {}
func (NopObserver) SessionClosed(string, Outcome, error) {}

// Observers fans notifications out to each observer in order.
type Observers []Observer

func (o Observers) SessionStarted(jobID string) {
	for _, x := range o {
		x.SessionStarted(jobID)
	}
}

func (o Observers) EventApplied(jobID string, evt Event) {
	for _, x := range o {
		x.EventApplied(jobID, evt)
	}
}

func (o Observers) DecodeFailed(jobID string, err error) {
	for _, x := range o {
		x.DecodeFailed(jobID, err)
	}
}

func (o Observers) LateEvent(jobID string, evt Event) {
	for _, x := range o {
		x.LateEvent(jobID, evt)
	}
}

func (o Observers) SessionClosed(jobID string, outcome Outcome, err error) {
	for _, x := range o {
		x.SessionClosed(jobID, outcome, err)
	}
}

// Interface compliance checks.
var (
	_ Observer = NopObserver{}
	_ Observer = Observers(nil)
)
