package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/ansi"
	"github.com/fwojciec/cite/goldmark"
	citejson "github.com/fwojciec/cite/json"
	citeprom "github.com/fwojciec/cite/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask one question and stream the answer to stdout",
		ArgsUsage: "QUESTION...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print only the final answer, as JSON",
			},
			&cli.BoolFlag{
				Name:  "links",
				Usage: "Print where each cited page can be opened",
			},
		},
		Action: runAsk,
	}
}

func runAsk(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("ask: missing question")
	}
	e, err := setup(c, c.App.ErrWriter)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(c.Context)
	var srv *http.Server
	if addr := e.cfg.Metrics.Addr; addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           metricsMux(e),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		return ask(ctx, e, c.App.Writer, query, c.Bool("json"), c.Bool("links"))
	})
	return g.Wait()
}

func metricsMux(e *env) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", citeprom.Handler(e.registry))
	return mux
}

func ask(ctx context.Context, e *env, w io.Writer, query string, asJSON, links bool) error {
	b, err := openBackend(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	conv, err := e.conversation(b.transport)
	if err != nil {
		return err
	}

	var opts []cite.SessionOption
	if !asJSON {
		p := &printer{w: w}
		opts = append(opts, cite.WithUpdateHandler(p.update))
	}
	msg, err := conv.Ask(ctx, b.jobs, query, opts...)
	if msg.ID == "" {
		if errors.Is(err, cite.ErrCancelled) {
			return nil
		}
		return err
	}

	if asJSON {
		data, jerr := citejson.MarshalMessage(msg)
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(w, string(data))
		return answerErr(err)
	}

	fmt.Fprintln(w)
	if msg.Truncated {
		fmt.Fprintln(w, "[stopped]")
	}
	if notes := goldmark.Footnotes(msg, cite.DefaultTheme()); notes != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, notes)
	}
	if links {
		printLinks(ctx, w, b.resolver, msg.Citations)
	}
	return answerErr(err)
}

// answerErr turns the error of a finished answer into the command's error.
// A stopped answer is not a failure.
func answerErr(err error) error {
	if err == nil || errors.Is(err, cite.ErrCancelled) {
		return nil
	}
	return fmt.Errorf("ask: %w", err)
}

func printLinks(ctx context.Context, w io.Writer, r cite.DocumentResolver, citations []cite.Citation) {
	sorted := slices.Clone(citations)
	slices.SortFunc(sorted, func(a, b cite.Citation) int { return a.ID - b.ID })
	for _, c := range sorted {
		doc, err := r.Resolve(ctx, c.DocumentID, c.PageNumber)
		if err != nil {
			fmt.Fprintf(w, "[%d] %v\n", c.ID, err)
			continue
		}
		fmt.Fprintf(w, "[%d] %s\n", c.ID, doc.Location)
	}
}

// printer writes the text an answer gains with each snapshot.
type printer struct {
	w       io.Writer
	printed string
}

func (p *printer) update(m cite.Message) {
	if !strings.HasPrefix(m.Content, p.printed) {
		// The backend replaced the text; start over on a new line.
		fmt.Fprintln(p.w)
		p.printed = ""
	}
	fmt.Fprint(p.w, ansi.Sanitize(m.Content[len(p.printed):]))
	p.printed = m.Content
}
