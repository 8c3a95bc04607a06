package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fwojciec/cite"
	"github.com/fwojciec/cite/config"
	"github.com/fwojciec/cite/fs"
	"github.com/fwojciec/cite/gemini"
	"github.com/fwojciec/cite/sse"
	"github.com/rs/zerolog"
)

const cleanupInterval = 5 * time.Minute

// backend bundles the three roles a job backend plays.
type backend struct {
	jobs      cite.JobSubmitter
	transport cite.Transport
	resolver  cite.DocumentResolver
}

// openBackend connects to the configured backend. The gemini backend keeps a
// job cleanup loop running until ctx is done.
func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (backend, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		lib, err := fs.Open(cfg.Library.Dir, cfg.Library.Pattern)
		if err != nil {
			return backend{}, fmt.Errorf("library: %w", err)
		}
		model, err := gemini.NewModel(ctx, cfg.Gemini.APIKey, gemini.WithModel(cfg.Gemini.Model))
		if err != nil {
			return backend{}, err
		}
		b := gemini.NewBackend(lib, model.Generate, gemini.WithTopK(cfg.Gemini.TopK))
		go func() {
			_ = b.RunCleanup(ctx, cleanupInterval, 0)
		}()
		log.Debug().
			Str("library", lib.Root()).
			Int("documents", len(lib.Documents())).
			Str("model", cfg.Gemini.Model).
			Msg("local backend ready")
		return backend{jobs: b, transport: b, resolver: lib}, nil
	default:
		c := sse.New(cfg.Server.URL)
		log.Debug().Str("url", cfg.Server.URL).Msg("using job server")
		return backend{jobs: c, transport: c, resolver: c}, nil
	}
}
