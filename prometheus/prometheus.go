// Package prometheus exports stream session metrics with the Prometheus
// client library.
package prometheus

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/cite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Interface compliance check.
var _ cite.Observer = (*Metrics)(nil)

const namespace = "cite"

// Metrics counts session activity. It implements cite.Observer.
type Metrics struct {
	// SessionsStarted counts sessions that opened a subscription.
	SessionsStarted prometheus.Counter

	// SessionsClosed counts closed sessions.
	// Labels: outcome (completed, errored, cancelled)
	SessionsClosed *prometheus.CounterVec

	// ActiveSessions is the number of open sessions.
	ActiveSessions prometheus.Gauge

	// EventsApplied counts events folded into answers.
	// Labels: event (text_delta, citation, ...)
	EventsApplied *prometheus.CounterVec

	// DecodeFailures counts skipped frames.
	// Labels: reason (malformed_payload, unknown_discriminator, other)
	DecodeFailures *prometheus.CounterVec

	// LateEvents counts events discarded after close.
	LateEvents prometheus.Counter

	// SessionDuration measures start to close.
	// Labels: outcome
	SessionDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Stream sessions started.",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Stream sessions closed, by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Stream sessions currently open.",
		}),
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_applied_total",
			Help:      "Events applied to answers, by event type.",
		}, []string{"event"}),
		DecodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_failures_total",
			Help:      "Frames skipped because they could not be decoded, by reason.",
		}, []string{"reason"}),
		LateEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "late_events_total",
			Help:      "Events discarded because their session was already closed.",
		}),
		SessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Time from session start to close.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted(jobID string) {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
	m.mu.Lock()
	m.started[jobID] = m.now()
	m.mu.Unlock()
}

func (m *Metrics) EventApplied(_ string, evt cite.Event) {
	m.EventsApplied.WithLabelValues(cite.EventName(evt)).Inc()
}

func (m *Metrics) DecodeFailed(_ string, err error) {
	reason := "other"
	var de *cite.DecodeError
	if errors.As(err, &de) {
		reason = string(de.Reason)
	}
	m.DecodeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) LateEvent(string, cite.Event) {
	m.LateEvents.Inc()
}

// SessionClosed records the outcome. A job without a recorded start is
// counted but not timed.
func (m *Metrics) SessionClosed(jobID string, outcome cite.Outcome, _ error) {
	m.SessionsClosed.WithLabelValues(outcome.String()).Inc()
	m.mu.Lock()
	start, ok := m.started[jobID]
	delete(m.started, jobID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.WithLabelValues(outcome.String()).Observe(m.now().Sub(start).Seconds())
}
