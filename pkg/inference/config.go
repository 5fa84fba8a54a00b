package inference

import (
	"fmt"
	"strings"
	"time"
)

// Config configures the Ollama client.
type Config struct {
	// BaseURL of the service, e.g. "http://localhost:11434".
	BaseURL string `json:"base_url"`

	// GenerateTimeout bounds one generation request.
	GenerateTimeout time.Duration `json:"generate_timeout"`

	// PullTimeout bounds one model download.
	PullTimeout time.Duration `json:"pull_timeout"`

	// ListTimeout bounds model listing and pings.
	ListTimeout time.Duration `json:"list_timeout"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:11434",
		GenerateTimeout: 120 * time.Second,
		PullTimeout:     300 * time.Second,
		ListTimeout:     10 * time.Second,
	}
}

// Validate fills unset fields with defaults and checks the base URL.
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL: %q", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = defaults.GenerateTimeout
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = defaults.PullTimeout
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = defaults.ListTimeout
	}
	return nil
}
