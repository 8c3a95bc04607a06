package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwojciec/cite"
	citejson "github.com/fwojciec/cite/json"
	"github.com/fwojciec/cite/sse"
	"github.com/urfave/cli/v2"
)

var _ cite.Transport = fileTransport{}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Assemble an answer from a captured SSE stream and print it as JSON",
		ArgsUsage: "FILE",
		Action:    runReplay,
	}
}

func runReplay(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("replay: missing file")
	}
	e, err := setup(c, c.App.ErrWriter)
	if err != nil {
		return err
	}
	conv, err := e.conversation(fileTransport{path: path})
	if err != nil {
		return err
	}
	msg, err := conv.Stream(c.Context, filepath.Base(path))
	if msg.ID == "" {
		return fmt.Errorf("replay: %w", err)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("file", path).Msg("answer ended with an error")
	}
	data, err := citejson.MarshalMessage(msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

// fileTransport serves every job from a captured SSE file.
type fileTransport struct {
	path string
}

func (t fileTransport) Subscribe(_ context.Context, _ string) (cite.Subscription, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	return sse.NewReader(f), nil
}
