package main

import (
	"fmt"
	"io"

	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/config"
	citejson "github.com/fwojciec/cite/json"
	citeprom "github.com/fwojciec/cite/prometheus"
	citelog "github.com/fwojciec/cite/zerolog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// env is what every command shares: settings, a logger and the session
// observers.
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	observer cite.Observer
}

// setup loads and validates the configuration and builds the logger, which
// writes to logOut.
func setup(c *cli.Context, logOut io.Writer) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := citelog.New(logOut, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	reg := prometheus.NewRegistry()
	return &env{
		cfg:      cfg,
		log:      log,
		registry: reg,
		observer: cite.Observers{citelog.NewObserver(log), citeprom.NewMetrics(reg)},
	}, nil
}

func (e *env) sessionOptions() []cite.SessionOption {
	opts := []cite.SessionOption{cite.WithObserver(e.observer)}
	if d := e.cfg.Stream.IdleTimeout; d > 0 {
		opts = append(opts, cite.WithIdleTimeout(d))
	}
	return opts
}

func (e *env) conversation(t cite.Transport) (*cite.Conversation, error) {
	policy, err := e.cfg.CancelPolicy()
	if err != nil {
		return nil, err
	}
	return cite.NewConversation(t, citejson.DecodeEvent,
		cite.WithCancelPolicy(policy),
		cite.WithSessionOptions(e.sessionOptions()...),
	), nil
}
