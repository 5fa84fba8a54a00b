// Package cmd provides CLI commands for the transcriber tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/events"
	"github.com/c2buck/audio-transcriber/pkg/history"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/observability"
)

// ClientFactory builds the inference client for a command.
type ClientFactory func(cfg *config.Config, logger logging.Logger, metrics *observability.ReviewMetrics, tracer *observability.Tracer) (inference.Client, error)

// Deps holds the dependencies shared by transcriber commands.
type Deps struct {
	Config      *config.Config
	Logger      logging.Logger
	LoadConfig  func() (*config.Config, error)
	NewClient   ClientFactory
	OpenHistory func(ctx context.Context, cfg *config.Config, logger logging.Logger) (history.Store, error)
	NewEvents   func(cfg *config.Config, logger logging.Logger) (*events.Publisher, error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:  config.LoadConfig,
		NewClient:   NewOllamaClient,
		OpenHistory: OpenHistory,
		NewEvents:   NewEventPublisher,
	}
}

// withDefaults fills unset fields so tests can override only what they need.
func (d *Deps) withDefaults() *Deps {
	if d == nil {
		return DefaultDeps()
	}
	def := DefaultDeps()
	if d.LoadConfig == nil {
		d.LoadConfig = def.LoadConfig
	}
	if d.NewClient == nil {
		d.NewClient = def.NewClient
	}
	if d.OpenHistory == nil {
		d.OpenHistory = def.OpenHistory
	}
	if d.NewEvents == nil {
		d.NewEvents = def.NewEvents
	}
	return d
}

// loadConfig returns the injected config or loads it.
func (d *Deps) loadConfig() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

// logger returns the injected logger, falling back to the global one.
func (d *Deps) logger() logging.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.MustGlobal()
}

// NewOllamaClient builds the Ollama client from configuration.
func NewOllamaClient(cfg *config.Config, logger logging.Logger, metrics *observability.ReviewMetrics, tracer *observability.Tracer) (inference.Client, error) {
	opts := []inference.Option{inference.WithMetrics(metrics)}
	if logger != nil {
		opts = append(opts, inference.WithLogger(logger))
	}
	if tracer != nil {
		opts = append(opts, inference.WithTracer(tracer))
	}
	client, err := inference.NewOllamaClient(inference.Config{
		BaseURL:         cfg.OllamaURL,
		GenerateTimeout: cfg.GenerateTimeout,
		PullTimeout:     cfg.PullTimeout,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating inference client: %w", err)
	}
	return client, nil
}

// OpenHistory opens the configured run history store.
func OpenHistory(ctx context.Context, cfg *config.Config, logger logging.Logger) (history.Store, error) {
	dsn, err := cfg.HistoryDSN()
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, cfg.History.Driver, dsn, logger)
}

// NewEventPublisher connects the optional Redis progress publisher.
// It returns nil when Redis is not configured.
func NewEventPublisher(cfg *config.Config, logger logging.Logger) (*events.Publisher, error) {
	if !cfg.Redis.IsConfigured() {
		return nil, nil
	}
	return events.NewPublisherFromConfig(events.PublisherConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.GetChannel(),
	}, logger)
}

// resolveFormat applies a per-command output override to the configured format.
func resolveFormat(cfg *config.Config, override string) (config.OutputFormat, error) {
	if override == "" {
		return cfg.OutputFormat, nil
	}
	f := config.OutputFormat(override)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", override)
	}
	return f, nil
}

// writeStructured prints v as JSON or YAML.
func writeStructured(w io.Writer, format config.OutputFormat, v interface{}) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported structured format: %s", format)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
