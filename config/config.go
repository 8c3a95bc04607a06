// Package config loads cite settings with koanf: built-in defaults, then an
// optional TOML file, then CITE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fwojciec/cite"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. CITE_STREAM_IDLE_TIMEOUT sets
// stream.idle_timeout: the first underscore after the prefix separates the
// section from the key.
const EnvPrefix = "CITE_"

// Backend names.
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
)

// Cancel policy names.
const (
	PolicyDiscard  = "discard"
	PolicyTruncate = "truncate"
)

// Config holds all settings.
type Config struct {
	Backend string `koanf:"backend"`

	Server struct {
		URL string `koanf:"url"`
	} `koanf:"server"`

	Stream struct {
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
		CancelPolicy string        `koanf:"cancel_policy"`
	} `koanf:"stream"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`

	Gemini struct {
		APIKey string `koanf:"api_key"`
		Model  string `koanf:"model"`
		TopK   int    `koanf:"top_k"`
	} `koanf:"gemini"`

	Library struct {
		Dir     string `koanf:"dir"`
		Pattern string `koanf:"pattern"`
	} `koanf:"library"`

	Transcript struct {
		Path string `koanf:"path"`
	} `koanf:"transcript"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"backend":              BackendHTTP,
		"server.url":           "http://localhost:8000",
		"stream.idle_timeout":  "60s",
		"stream.cancel_policy": PolicyTruncate,
		"log.level":            "info",
		"log.pretty":           false,
		"metrics.addr":         "",
		"gemini.model":         "gemini-2.5-flash",
		"gemini.top_k":         5,
		"library.dir":          "./documents",
		"library.pattern":      "**/*.{txt,md}",
		"transcript.path":      "",
	}
}

// Load reads the configuration. An empty path tries ./cite.toml and
// $HOME/.cite.toml, using the first that exists. A missing explicit path is
// an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if path == "" {
		for _, p := range []string{"./cite.toml", "$HOME/.cite.toml"} {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &c, nil
}

// envKey maps CITE_SECTION_KEY to section.key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok {
		key = section + "." + rest
	}
	return key
}

// Validate checks that the settings are usable for the selected backend.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendHTTP:
		u, err := url.Parse(c.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.url must be an absolute URL, got %q", c.Server.URL))
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini.api_key is required for the gemini backend"))
		}
		if c.Library.Dir == "" {
			errs = append(errs, errors.New("library.dir is required for the gemini backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendHTTP, BackendGemini, c.Backend))
	}
	if c.Stream.IdleTimeout < 0 {
		errs = append(errs, errors.New("stream.idle_timeout must not be negative"))
	}
	if _, err := c.CancelPolicy(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// CancelPolicy returns the configured policy for cancelled answers.
func (c *Config) CancelPolicy() (cite.CancelPolicy, error) {
	switch c.Stream.CancelPolicy {
	case PolicyDiscard:
		return cite.CancelDiscard, nil
	case PolicyTruncate:
		return cite.CancelKeepTruncated, nil
	default:
		return 0, fmt.Errorf("stream.cancel_policy must be %q or %q, got %q", PolicyDiscard, PolicyTruncate, c.Stream.CancelPolicy)
	}
}
