// Package config provides configuration management for the transcriber command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// History store drivers.
const (
	HistoryDriverSQLite   = "sqlite"
	HistoryDriverPostgres = "postgres"
	HistoryDriverNone     = "none"
)

// Default configuration values.
const (
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultModel           = "mistral"
	DefaultGenerateTimeout = 120 * time.Second
	DefaultPullTimeout     = 300 * time.Second
	DefaultOutputDir       = "ai_review"
	DefaultOutputFormat    = OutputFormatText
	DefaultConfigDir       = ".transcriber"
	DefaultConfigFile      = "config.yaml"
	DefaultHistoryFile     = "history.db"
	DefaultRedisChannel    = "transcriber:review:progress"
)

// ArtifactsConfig selects which report artifacts a review writes.
type ArtifactsConfig struct {
	// Individual writes one <recording>.ai.txt file per segment.
	Individual bool `yaml:"individual"`

	// Combined writes the ai_review_summary_*.txt file.
	Combined bool `yaml:"combined"`

	// HTML writes the browsable ai_review_report_*.html file.
	HTML bool `yaml:"html"`
}

// HistoryConfig configures where finished runs are recorded.
type HistoryConfig struct {
	// Driver is sqlite, postgres, or none.
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	// Empty sqlite DSN means <config dir>/history.db.
	DSN string `yaml:"dsn,omitempty"`
}

// RedisConfig enables publishing review progress events to Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// IsConfigured returns true if a Redis address is set.
func (r *RedisConfig) IsConfigured() bool {
	return r != nil && r.Addr != ""
}

// GetChannel returns the publish channel, defaulting to DefaultRedisChannel.
func (r *RedisConfig) GetChannel() string {
	if r == nil || r.Channel == "" {
		return DefaultRedisChannel
	}
	return r.Channel
}

// Config holds the transcriber configuration settings.
type Config struct {
	// OllamaURL is the base URL of the local inference service.
	OllamaURL string `yaml:"ollama_url"`

	// Model is the default model used for analysis.
	Model string `yaml:"model"`

	// GenerateTimeout bounds a single generation request.
	GenerateTimeout time.Duration `yaml:"generate_timeout"`

	// PullTimeout bounds a model download.
	PullTimeout time.Duration `yaml:"pull_timeout"`

	// AutoPull pulls a missing model before a review starts.
	AutoPull bool `yaml:"auto_pull"`

	// OutputDir is where review artifacts are written.
	OutputDir string `yaml:"output_dir"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// AudioRoot resolves relative recording names into playable file paths
	// for report links. Supports ~ for home directory expansion.
	AudioRoot string `yaml:"audio_root,omitempty"`

	// Artifacts selects the report artifacts to write.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// History configures the run history store.
	History HistoryConfig `yaml:"history"`

	// Redis optionally publishes progress events.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// MetricsAddr serves /metrics and /version while a review runs (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogJSON switches console logs to JSON.
	LogJSON bool `yaml:"log_json,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		OllamaURL:       DefaultOllamaURL,
		Model:           DefaultModel,
		GenerateTimeout: DefaultGenerateTimeout,
		PullTimeout:     DefaultPullTimeout,
		AutoPull:        true,
		OutputDir:       DefaultOutputDir,
		OutputFormat:    DefaultOutputFormat,
		Artifacts: ArtifactsConfig{
			Individual: true,
			Combined:   true,
			HTML:       true,
		},
		History: HistoryConfig{
			Driver: HistoryDriverSQLite,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $TRANSCRIBER_CONFIG_DIR if set, otherwise ~/.transcriber
func ConfigDir() (string, error) {
	if dir := os.Getenv("TRANSCRIBER_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the default file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.transcriber/config.yaml or $TRANSCRIBER_CONFIG_DIR/config.yaml)
// 3. Environment variables (TRANSCRIBER_*, OLLAMA_HOST)
func LoadConfig() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads configuration using path as the config file.
// A missing file is not an error.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFileOnly loads defaults plus the config file at path, ignoring the
// environment. It is used when rewriting the file.
func LoadFileOnly(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	return cfg, nil
}

// configFile mirrors Config with durations as strings and optional booleans
// as pointers so absent keys keep their defaults.
type configFile struct {
	OllamaURL       string        `yaml:"ollama_url,omitempty"`
	Model           string        `yaml:"model,omitempty"`
	GenerateTimeout string        `yaml:"generate_timeout,omitempty"`
	PullTimeout     string        `yaml:"pull_timeout,omitempty"`
	AutoPull        *bool         `yaml:"auto_pull,omitempty"`
	OutputDir       string        `yaml:"output_dir,omitempty"`
	OutputFormat    OutputFormat  `yaml:"output_format,omitempty"`
	AudioRoot       string        `yaml:"audio_root,omitempty"`
	Artifacts       *artifactFile `yaml:"artifacts,omitempty"`
	History         HistoryConfig `yaml:"history,omitempty"`
	Redis           *RedisConfig  `yaml:"redis,omitempty"`
	MetricsAddr     string        `yaml:"metrics_addr,omitempty"`
	Debug           bool          `yaml:"debug,omitempty"`
	LogJSON         bool          `yaml:"log_json,omitempty"`
}

type artifactFile struct {
	Individual *bool `yaml:"individual,omitempty"`
	Combined   *bool `yaml:"combined,omitempty"`
	HTML       *bool `yaml:"html,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.OllamaURL != "" {
		cfg.OllamaURL = fileCfg.OllamaURL
	}
	if fileCfg.Model != "" {
		cfg.Model = fileCfg.Model
	}
	if fileCfg.GenerateTimeout != "" {
		d, err := time.ParseDuration(fileCfg.GenerateTimeout)
		if err != nil {
			return fmt.Errorf("parsing generate_timeout: %w", err)
		}
		cfg.GenerateTimeout = d
	}
	if fileCfg.PullTimeout != "" {
		d, err := time.ParseDuration(fileCfg.PullTimeout)
		if err != nil {
			return fmt.Errorf("parsing pull_timeout: %w", err)
		}
		cfg.PullTimeout = d
	}
	if fileCfg.AutoPull != nil {
		cfg.AutoPull = *fileCfg.AutoPull
	}
	if fileCfg.OutputDir != "" {
		cfg.OutputDir = fileCfg.OutputDir
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.AudioRoot != "" {
		cfg.AudioRoot = fileCfg.AudioRoot
	}
	if a := fileCfg.Artifacts; a != nil {
		if a.Individual != nil {
			cfg.Artifacts.Individual = *a.Individual
		}
		if a.Combined != nil {
			cfg.Artifacts.Combined = *a.Combined
		}
		if a.HTML != nil {
			cfg.Artifacts.HTML = *a.HTML
		}
	}
	if fileCfg.History.Driver != "" {
		cfg.History.Driver = fileCfg.History.Driver
	}
	if fileCfg.History.DSN != "" {
		cfg.History.DSN = fileCfg.History.DSN
	}
	if fileCfg.Redis != nil {
		cfg.Redis = fileCfg.Redis
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}
	cfg.Debug = fileCfg.Debug
	cfg.LogJSON = fileCfg.LogJSON

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	// OLLAMA_HOST is what the ollama CLI itself honors; ours wins when both are set.
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.OllamaURL = normalizeOllamaHost(v)
	}
	if v := os.Getenv("TRANSCRIBER_OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}

	if v := os.Getenv("TRANSCRIBER_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("TRANSCRIBER_GENERATE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GenerateTimeout = d
		}
	}

	if v := os.Getenv("TRANSCRIBER_PULL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PullTimeout = d
		}
	}

	if v := os.Getenv("TRANSCRIBER_AUTO_PULL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoPull = b
		}
	}

	if v := os.Getenv("TRANSCRIBER_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}

	if v := os.Getenv("TRANSCRIBER_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("TRANSCRIBER_AUDIO_ROOT"); v != "" {
		cfg.AudioRoot = v
	}

	if v := os.Getenv("TRANSCRIBER_HISTORY_DRIVER"); v != "" {
		cfg.History.Driver = v
	}

	if v := os.Getenv("TRANSCRIBER_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}

	if v := os.Getenv("TRANSCRIBER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if v := os.Getenv("TRANSCRIBER_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("TRANSCRIBER_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}

	loadRedisFromEnv(cfg)
}

// loadRedisFromEnv overlays Redis environment variables.
func loadRedisFromEnv(cfg *Config) {
	addr := os.Getenv("TRANSCRIBER_REDIS_ADDR")
	if addr == "" && !cfg.Redis.IsConfigured() {
		return
	}

	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{}
	}
	if addr != "" {
		cfg.Redis.Addr = addr
	}
	if v := os.Getenv("TRANSCRIBER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TRANSCRIBER_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("TRANSCRIBER_REDIS_CHANNEL"); v != "" {
		cfg.Redis.Channel = v
	}
}

// normalizeOllamaHost turns OLLAMA_HOST values like "0.0.0.0:11434" into a URL.
func normalizeOllamaHost(v string) string {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return strings.TrimRight(v, "/")
	}
	if !strings.Contains(v, ":") {
		v += ":11434"
	}
	return "http://" + v
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.OllamaURL == "" {
		return fmt.Errorf("ollama_url is required")
	}
	if !strings.HasPrefix(c.OllamaURL, "http://") && !strings.HasPrefix(c.OllamaURL, "https://") {
		return fmt.Errorf("ollama_url must be an http(s) URL: %q", c.OllamaURL)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("generate_timeout must be positive")
	}

	if c.PullTimeout <= 0 {
		return fmt.Errorf("pull_timeout must be positive")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	switch c.History.Driver {
	case HistoryDriverSQLite, HistoryDriverNone:
	case HistoryDriverPostgres:
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid history.driver: %q (must be sqlite, postgres, or none)", c.History.Driver)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SettableKeys lists the keys accepted by Set, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Config, value string) error{
	"ollama_url": func(c *Config, v string) error { c.OllamaURL = v; return nil },
	"model":      func(c *Config, v string) error { c.Model = v; return nil },
	"generate_timeout": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid generate_timeout value: %w", err)
		}
		c.GenerateTimeout = d
		return nil
	},
	"pull_timeout": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid pull_timeout value: %w", err)
		}
		c.PullTimeout = d
		return nil
	},
	"auto_pull":  boolSetter(func(c *Config) *bool { return &c.AutoPull }),
	"output_dir": func(c *Config, v string) error { c.OutputDir = v; return nil },
	"output_format": func(c *Config, v string) error {
		f := OutputFormat(v)
		if !f.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", v)
		}
		c.OutputFormat = f
		return nil
	},
	"audio_root":           func(c *Config, v string) error { c.AudioRoot = v; return nil },
	"artifacts.individual": boolSetter(func(c *Config) *bool { return &c.Artifacts.Individual }),
	"artifacts.combined":   boolSetter(func(c *Config) *bool { return &c.Artifacts.Combined }),
	"artifacts.html":       boolSetter(func(c *Config) *bool { return &c.Artifacts.HTML }),
	"history.driver":       func(c *Config, v string) error { c.History.Driver = v; return nil },
	"history.dsn":          func(c *Config, v string) error { c.History.DSN = v; return nil },
	"redis.addr": func(c *Config, v string) error {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.Addr = v
		return nil
	},
	"metrics_addr": func(c *Config, v string) error { c.MetricsAddr = v; return nil },
	"debug":        boolSetter(func(c *Config) *bool { return &c.Debug }),
	"log_json":     boolSetter(func(c *Config) *bool { return &c.LogJSON }),
}

func boolSetter(field func(c *Config) *bool) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s (must be true or false)", v)
		}
		*field(c) = b
		return nil
	}
}

// Set assigns a single configuration key from its string form and validates the result.
func (c *Config) Set(key, value string) error {
	setter, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := setter(c, value); err != nil {
		return err
	}
	return c.Validate()
}

// SaveConfig saves the configuration to the default config file.
func SaveConfig(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}
	return SaveConfigTo(cfg, configPath)
}

// SaveConfigTo saves the configuration to path.
func SaveConfigTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	autoPull := cfg.AutoPull
	fileCfg := configFile{
		OllamaURL:       cfg.OllamaURL,
		Model:           cfg.Model,
		GenerateTimeout: cfg.GenerateTimeout.String(),
		PullTimeout:     cfg.PullTimeout.String(),
		AutoPull:        &autoPull,
		OutputDir:       cfg.OutputDir,
		OutputFormat:    cfg.OutputFormat,
		AudioRoot:       cfg.AudioRoot,
		Artifacts: &artifactFile{
			Individual: boolPtr(cfg.Artifacts.Individual),
			Combined:   boolPtr(cfg.Artifacts.Combined),
			HTML:       boolPtr(cfg.Artifacts.HTML),
		},
		History:     cfg.History,
		Redis:       cfg.Redis,
		MetricsAddr: cfg.MetricsAddr,
		Debug:       cfg.Debug,
		LogJSON:     cfg.LogJSON,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func boolPtr(b bool) *bool { return &b }

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// HistoryDSN returns the history DSN, resolving the sqlite default location.
func (c *Config) HistoryDSN() (string, error) {
	if c.History.DSN != "" {
		return ExpandPath(c.History.DSN)
	}
	if c.History.Driver != HistoryDriverSQLite {
		return "", nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultHistoryFile), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
