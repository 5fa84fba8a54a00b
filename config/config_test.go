package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OLLAMA_HOST",
		"TRANSCRIBER_OLLAMA_URL",
		"TRANSCRIBER_MODEL",
		"TRANSCRIBER_GENERATE_TIMEOUT",
		"TRANSCRIBER_PULL_TIMEOUT",
		"TRANSCRIBER_AUTO_PULL",
		"TRANSCRIBER_OUTPUT_DIR",
		"TRANSCRIBER_OUTPUT_FORMAT",
		"TRANSCRIBER_AUDIO_ROOT",
		"TRANSCRIBER_HISTORY_DRIVER",
		"TRANSCRIBER_HISTORY_DSN",
		"TRANSCRIBER_METRICS_ADDR",
		"TRANSCRIBER_DEBUG",
		"TRANSCRIBER_LOG_JSON",
		"TRANSCRIBER_REDIS_ADDR",
		"TRANSCRIBER_REDIS_PASSWORD",
		"TRANSCRIBER_REDIS_DB",
		"TRANSCRIBER_REDIS_CHANNEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.OllamaURL != DefaultOllamaURL {
		t.Errorf("OllamaURL = %v, want %v", cfg.OllamaURL, DefaultOllamaURL)
	}
	if cfg.Model != "mistral" {
		t.Errorf("Model = %v, want mistral", cfg.Model)
	}
	if cfg.GenerateTimeout != 120*time.Second {
		t.Errorf("GenerateTimeout = %v, want 120s", cfg.GenerateTimeout)
	}
	if cfg.PullTimeout != 300*time.Second {
		t.Errorf("PullTimeout = %v, want 300s", cfg.PullTimeout)
	}
	if !cfg.AutoPull {
		t.Error("AutoPull should be true by default")
	}
	if !cfg.Artifacts.Individual || !cfg.Artifacts.Combined || !cfg.Artifacts.HTML {
		t.Errorf("Artifacts = %+v, want all enabled", cfg.Artifacts)
	}
	if cfg.History.Driver != HistoryDriverSQLite {
		t.Errorf("History.Driver = %v, want sqlite", cfg.History.Driver)
	}
	if cfg.Redis != nil {
		t.Error("Redis should be nil by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"xml", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestConfig_Validate verifies configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			modify: func(c *Config) {},
		},
		{
			name:    "empty ollama url",
			modify:  func(c *Config) { c.OllamaURL = "" },
			wantErr: "ollama_url is required",
		},
		{
			name:    "ollama url without scheme",
			modify:  func(c *Config) { c.OllamaURL = "localhost:11434" },
			wantErr: "must be an http(s) URL",
		},
		{
			name:    "empty model",
			modify:  func(c *Config) { c.Model = "" },
			wantErr: "model is required",
		},
		{
			name:    "zero generate timeout",
			modify:  func(c *Config) { c.GenerateTimeout = 0 },
			wantErr: "generate_timeout must be positive",
		},
		{
			name:    "negative pull timeout",
			modify:  func(c *Config) { c.PullTimeout = -time.Second },
			wantErr: "pull_timeout must be positive",
		},
		{
			name:    "invalid output format",
			modify:  func(c *Config) { c.OutputFormat = "xml" },
			wantErr: "invalid output_format",
		},
		{
			name:    "unknown history driver",
			modify:  func(c *Config) { c.History.Driver = "mysql" },
			wantErr: "invalid history.driver",
		},
		{
			name:    "postgres without dsn",
			modify:  func(c *Config) { c.History.Driver = HistoryDriverPostgres },
			wantErr: "history.dsn is required",
		},
		{
			name: "postgres with dsn",
			modify: func(c *Config) {
				c.History.Driver = HistoryDriverPostgres
				c.History.DSN = "postgres://localhost/transcriber"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestConfigDir verifies config directory resolution.
func TestConfigDir(t *testing.T) {
	t.Run("with env var", func(t *testing.T) {
		customDir := filepath.Join(t.TempDir(), "custom")
		t.Setenv("TRANSCRIBER_CONFIG_DIR", customDir)

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if dir != customDir {
			t.Errorf("ConfigDir() = %v, want %v", dir, customDir)
		}
	})

	t.Run("default without env var", func(t *testing.T) {
		t.Setenv("TRANSCRIBER_CONFIG_DIR", "")

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultConfigDir)
		if dir != expected {
			t.Errorf("ConfigDir() = %v, want %v", dir, expected)
		}
	})
}

// TestLoadConfig_Defaults verifies default values when no config exists.
func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_CONFIG_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %v, want %v", cfg.Model, DefaultModel)
	}
	if cfg.OllamaURL != DefaultOllamaURL {
		t.Errorf("OllamaURL = %v, want %v", cfg.OllamaURL, DefaultOllamaURL)
	}
}

// TestLoadConfig_WithEnvOverrides verifies environment variable overrides.
func TestLoadConfig_WithEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_CONFIG_DIR", t.TempDir())
	t.Setenv("TRANSCRIBER_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("TRANSCRIBER_MODEL", "llama3")
	t.Setenv("TRANSCRIBER_GENERATE_TIMEOUT", "45s")
	t.Setenv("TRANSCRIBER_PULL_TIMEOUT", "10m")
	t.Setenv("TRANSCRIBER_AUTO_PULL", "false")
	t.Setenv("TRANSCRIBER_OUTPUT_FORMAT", "json")
	t.Setenv("TRANSCRIBER_DEBUG", "1")
	t.Setenv("TRANSCRIBER_REDIS_ADDR", "localhost:6379")
	t.Setenv("TRANSCRIBER_REDIS_DB", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("OllamaURL = %v, want http://gpu-box:11434", cfg.OllamaURL)
	}
	if cfg.Model != "llama3" {
		t.Errorf("Model = %v, want llama3", cfg.Model)
	}
	if cfg.GenerateTimeout != 45*time.Second {
		t.Errorf("GenerateTimeout = %v, want 45s", cfg.GenerateTimeout)
	}
	if cfg.PullTimeout != 10*time.Minute {
		t.Errorf("PullTimeout = %v, want 10m", cfg.PullTimeout)
	}
	if cfg.AutoPull {
		t.Error("AutoPull should be false")
	}
	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if !cfg.Redis.IsConfigured() {
		t.Fatal("Redis should be configured")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %v, want 2", cfg.Redis.DB)
	}
	if cfg.Redis.GetChannel() != DefaultRedisChannel {
		t.Errorf("Redis channel = %v, want %v", cfg.Redis.GetChannel(), DefaultRedisChannel)
	}
}

// TestLoadFromEnv_OllamaHost verifies OLLAMA_HOST is normalized and loses to the explicit variable.
func TestLoadFromEnv_OllamaHost(t *testing.T) {
	tests := []struct {
		host     string
		explicit string
		want     string
	}{
		{host: "0.0.0.0:11434", want: "http://0.0.0.0:11434"},
		{host: "gpu-box", want: "http://gpu-box:11434"},
		{host: "https://ollama.internal/", want: "https://ollama.internal"},
		{host: "gpu-box", explicit: "http://other:1234", want: "http://other:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.host+tt.explicit, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OLLAMA_HOST", tt.host)
			if tt.explicit != "" {
				t.Setenv("TRANSCRIBER_OLLAMA_URL", tt.explicit)
			}
			cfg := DefaultConfig()
			loadFromEnv(cfg)
			if cfg.OllamaURL != tt.want {
				t.Errorf("OllamaURL = %v, want %v", cfg.OllamaURL, tt.want)
			}
		})
	}
}

// TestLoadFromEnv_InvalidTimeout verifies unparseable durations are ignored.
func TestLoadFromEnv_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_GENERATE_TIMEOUT", "soon")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if cfg.GenerateTimeout != DefaultGenerateTimeout {
		t.Errorf("GenerateTimeout = %v, want default %v", cfg.GenerateTimeout, DefaultGenerateTimeout)
	}
}

// TestLoadConfig_FromFile verifies loading a YAML file keeps unset defaults.
func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `model: llama3
generate_timeout: 2m
artifacts:
  html: false
history:
  driver: none
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}

	if cfg.Model != "llama3" {
		t.Errorf("Model = %v, want llama3", cfg.Model)
	}
	if cfg.GenerateTimeout != 2*time.Minute {
		t.Errorf("GenerateTimeout = %v, want 2m", cfg.GenerateTimeout)
	}
	if cfg.Artifacts.HTML {
		t.Error("Artifacts.HTML should be false")
	}
	if !cfg.Artifacts.Individual || !cfg.Artifacts.Combined {
		t.Error("unset artifact toggles should keep their defaults")
	}
	if !cfg.AutoPull {
		t.Error("AutoPull should keep its default")
	}
	if cfg.History.Driver != HistoryDriverNone {
		t.Errorf("History.Driver = %v, want none", cfg.History.Driver)
	}
	if cfg.OllamaURL != DefaultOllamaURL {
		t.Errorf("OllamaURL = %v, want default", cfg.OllamaURL)
	}
}

// TestLoadFileOnly verifies environment overrides are not applied.
func TestLoadFileOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_MODEL", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: llama3\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadFileOnly(path)
	if err != nil {
		t.Fatalf("LoadFileOnly() error = %v", err)
	}
	if cfg.Model != "llama3" {
		t.Errorf("Model = %v, want llama3", cfg.Model)
	}

	if _, err := LoadFileOnly(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFileOnly() should fail for a missing file")
	}
}

// TestLoadConfig_InvalidTimeout verifies a malformed duration in the file is an error.
func TestLoadConfig_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pull_timeout: forever\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := LoadConfigFrom(path); err == nil {
		t.Error("LoadConfigFrom() should fail on invalid pull_timeout")
	}
}

// TestSaveConfig verifies a saved config loads back with the same values.
func TestSaveConfig(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	t.Setenv("TRANSCRIBER_CONFIG_DIR", tempDir)

	cfg := DefaultConfig()
	cfg.Model = "phi3"
	cfg.GenerateTimeout = 90 * time.Second
	cfg.AutoPull = false
	cfg.Artifacts.Combined = false
	cfg.AudioRoot = "/srv/audio"
	cfg.Redis = &RedisConfig{Addr: "localhost:6379", Channel: "reviews"}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.Model != "phi3" {
		t.Errorf("Model = %v, want phi3", loaded.Model)
	}
	if loaded.GenerateTimeout != 90*time.Second {
		t.Errorf("GenerateTimeout = %v, want 90s", loaded.GenerateTimeout)
	}
	if loaded.AutoPull {
		t.Error("AutoPull should be false after reload")
	}
	if loaded.Artifacts.Combined {
		t.Error("Artifacts.Combined should be false after reload")
	}
	if loaded.AudioRoot != "/srv/audio" {
		t.Errorf("AudioRoot = %v, want /srv/audio", loaded.AudioRoot)
	}
	if loaded.Redis.GetChannel() != "reviews" {
		t.Errorf("Redis channel = %v, want reviews", loaded.Redis.GetChannel())
	}
}

// TestSaveConfig_CreatesDirectory verifies nested directories are created with a private file.
func TestSaveConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

	if err := SaveConfigTo(DefaultConfig(), path); err != nil {
		t.Fatalf("SaveConfigTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("File permissions = %o, want 0600", mode)
	}
}

// TestConfig_Set verifies key assignment from strings.
func TestConfig_Set(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(*Config) bool
		wantErr bool
	}{
		{key: "model", value: "llama3", check: func(c *Config) bool { return c.Model == "llama3" }},
		{key: "generate_timeout", value: "5m", check: func(c *Config) bool { return c.GenerateTimeout == 5*time.Minute }},
		{key: "generate_timeout", value: "later", wantErr: true},
		{key: "auto_pull", value: "false", check: func(c *Config) bool { return !c.AutoPull }},
		{key: "auto_pull", value: "maybe", wantErr: true},
		{key: "output_format", value: "yaml", check: func(c *Config) bool { return c.OutputFormat == OutputFormatYAML }},
		{key: "output_format", value: "xml", wantErr: true},
		{key: "artifacts.html", value: "false", check: func(c *Config) bool { return !c.Artifacts.HTML }},
		{key: "redis.addr", value: "localhost:6379", check: func(c *Config) bool { return c.Redis.IsConfigured() }},
		{key: "ollama_url", value: "not-a-url", wantErr: true},
		{key: "history.driver", value: "postgres", wantErr: true},
		{key: "no_such_key", value: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("Set() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Set(%q, %q) did not apply", tt.key, tt.value)
			}
		})
	}
}

// TestSettableKeys verifies keys are sorted and include the common settings.
func TestSettableKeys(t *testing.T) {
	keys := SettableKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
	joined := strings.Join(keys, ",")
	for _, want := range []string{"model", "ollama_url", "generate_timeout", "history.dsn"} {
		if !strings.Contains(joined, want) {
			t.Errorf("SettableKeys() missing %q", want)
		}
	}
}

// TestExpandPath verifies home directory expansion.
func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/audio", filepath.Join(home, "audio")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestHistoryDSN verifies the sqlite default location under the config dir.
func TestHistoryDSN(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRANSCRIBER_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	dsn, err := cfg.HistoryDSN()
	if err != nil {
		t.Fatalf("HistoryDSN() error = %v", err)
	}
	if want := filepath.Join(dir, DefaultHistoryFile); dsn != want {
		t.Errorf("HistoryDSN() = %v, want %v", dsn, want)
	}

	cfg.History.Driver = HistoryDriverNone
	if dsn, _ := cfg.HistoryDSN(); dsn != "" {
		t.Errorf("HistoryDSN() with none driver = %v, want empty", dsn)
	}
}

// TestEnsureConfigDir verifies the directory is created.
func TestEnsureConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("TRANSCRIBER_CONFIG_DIR", dir)

	got, err := EnsureConfigDir()
	if err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("EnsureConfigDir() = %v, want %v", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("config dir not created: %v", err)
	}
}
