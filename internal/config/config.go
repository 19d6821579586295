// Package config loads service configuration from EQP_* environment
// variables, then lets command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/signalsfoundry/eqplatform/internal/observability"
)

// Config holds platform-server configuration.
type Config struct {
	HTTPAddr    string `env:"EQP_HTTP_ADDR"    envDefault:":8080"`
	GRPCAddr    string `env:"EQP_GRPC_ADDR"    envDefault:":50051"`
	MetricsAddr string `env:"EQP_METRICS_ADDR" envDefault:":9090"`

	OpenSCADPath  string        `env:"EQP_OPENSCAD_PATH"  envDefault:"openscad"`
	RenderTimeout time.Duration `env:"EQP_RENDER_TIMEOUT" envDefault:"60s"`
	Concurrency   int           `env:"EQP_RENDER_CONCURRENCY" envDefault:"4"`
	TempDir       string        `env:"EQP_TEMP_DIR"`

	// HistoryPath is the sqlite database for generation history; empty
	// disables history.
	HistoryPath string `env:"EQP_HISTORY_PATH" envDefault:"eqplatform.db"`

	MaxBodyBytes int64 `env:"EQP_MAX_BODY_BYTES" envDefault:"1048576"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Tracing observability.TracingConfig
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseConfig parses environment and flags into Config. Flags default to the
// environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address the API listens on")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address of the gRPC health service")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics")
	fs.StringVar(&cfg.OpenSCADPath, "openscad", cfg.OpenSCADPath, "Path to the OpenSCAD binary")
	fs.DurationVar(&cfg.RenderTimeout, "render-timeout", cfg.RenderTimeout, "Timeout for a single render")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent renders per batch")
	fs.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for render scratch files")
	fs.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "sqlite file for generation history (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Tracing = cfg.Tracing.Normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("config: http address is required")
	case c.OpenSCADPath == "":
		return errors.New("config: openscad path is required")
	case c.RenderTimeout <= 0:
		return fmt.Errorf("config: render timeout must be positive, got %s", c.RenderTimeout)
	case c.Concurrency <= 0:
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Concurrency)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("config: max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
