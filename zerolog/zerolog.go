// Package zerolog logs stream session activity with github.com/rs/zerolog.
package zerolog

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fwojciec/cite"
	"github.com/rs/zerolog"
)

// Interface compliance check.
var _ cite.Observer = (*Observer)(nil)

// New returns a logger writing to w at the named level. Pretty selects
// human-readable console output instead of JSON lines.
func New(w io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("zerolog: %w", err)
	}
	return lvl, nil
}

// Observer logs session lifecycle events.
type Observer struct {
	log zerolog.Logger
}

// NewObserver returns an Observer writing to log.
func NewObserver(log zerolog.Logger) *Observer {
	return &Observer{log: log}
}

func (o *Observer) SessionStarted(jobID string) {
	o.log.Debug().Str("job_id", jobID).Msg("session started")
}

func (o *Observer) EventApplied(jobID string, evt cite.Event) {
	o.log.Trace().Str("job_id", jobID).Str("event", cite.EventName(evt)).Msg("event applied")
}

// DecodeFailed logs at warn, except unknown event types which are expected
// from newer servers and logged at info.
func (o *Observer) DecodeFailed(jobID string, err error) {
	e := o.log.Warn()
	var de *cite.DecodeError
	if errors.As(err, &de) {
		if de.Reason == cite.ReasonUnknownDiscriminator {
			e = o.log.Info()
		}
		e = e.Str("reason", string(de.Reason))
	}
	e.Str("job_id", jobID).Err(err).Msg("frame skipped")
}

func (o *Observer) LateEvent(jobID string, evt cite.Event) {
	o.log.Debug().Str("job_id", jobID).Str("event", cite.EventName(evt)).Msg("late event discarded")
}

func (o *Observer) SessionClosed(jobID string, outcome cite.Outcome, err error) {
	e := o.log.Info()
	if outcome == cite.OutcomeErrored {
		e = o.log.Warn()
	}
	if err != nil {
		e = e.Err(err)
	}
	e.Str("job_id", jobID).Stringer("outcome", outcome).Msg("session closed")
}
