// Command cite asks questions of a document backend and shows the streamed,
// cited answers.
//
// Usage:
//
//	cite [--config FILE] [--log-level LEVEL] chat
//	cite ask [--json] [--links] QUESTION...
//	cite replay FILE
//	cite docs
//
// Settings come from cite.toml (or $HOME/.cite.toml) and CITE_ environment
// variables. See package config for the keys.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cite: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cite",
		Usage:     "Ask questions and read answers with citations to your documents",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log.level (trace, debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			replayCommand(),
			docsCommand(),
		},
	}
}
