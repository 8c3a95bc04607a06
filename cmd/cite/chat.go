package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fwojciec/cite"
	bt "github.com/fwojciec/cite/bubbletea"
	citejson "github.com/fwojciec/cite/json"
	"github.com/urfave/cli/v2"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:   "chat",
		Usage:  "Start an interactive chat",
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	// The TUI owns the terminal, so log lines would corrupt the screen.
	e, err := setup(c, io.Discard)
	if err != nil {
		return err
	}
	b, err := openBackend(c.Context, e.cfg, e.log)
	if err != nil {
		return err
	}
	conv, err := e.conversation(b.transport)
	if err != nil {
		return err
	}
	path := e.cfg.Transcript.Path
	if err := restore(conv, path); err != nil {
		return err
	}

	ask := func(ctx context.Context, query string, onUpdate func(cite.Message)) (cite.Message, error) {
		return conv.Ask(ctx, b.jobs, query, cite.WithUpdateHandler(onUpdate))
	}
	if err := bt.Run(c.Context, bt.New(ask, conv.History(), cite.DefaultTheme())); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	if path != "" {
		if err := citejson.SaveTranscript(path, conv.Transcript()); err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Transcript saved to %s\n", path)
	}
	return nil
}

// restore loads the transcript at path into conv. A missing file starts a
// new conversation.
func restore(conv *cite.Conversation, path string) error {
	if path == "" {
		return nil
	}
	t, err := citejson.LoadTranscript(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("load transcript: %w", err)
	}
	return conv.Restore(t)
}
