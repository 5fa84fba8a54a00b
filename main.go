// Package main provides the transcriber CLI entry point.
// transcriber reviews recording transcripts against case facts using a local model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c2buck/audio-transcriber/cmd"
	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/buildinfo"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// Global flags and state.
var (
	cfgFile      string
	outputFormat string
	modelFlag    string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.Config

	// deps is shared by every subcommand. PersistentPreRunE fills in the
	// loaded config and logger.
	deps = cmd.DefaultDeps()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "transcriber",
	Short: "Review recording transcripts against case facts with a local model",
	Long: `transcriber reviews transcripts of audio recordings for content relevant to a
set of case facts. Each recording is analyzed by a model running on a local
inference service, and every relevant quote is located on the recording's
timeline so it can be played back.

Nothing leaves the machine: the model runs locally and reports are written
to the output directory.

COMMON WORKFLOWS:
  Check setup:      transcriber health  ->  transcriber models pull
  Quick triage:     transcriber screen transcript.txt
  Full review:      transcriber review transcript.txt --facts-file case.txt --tui
  Past runs:        transcriber history list  ->  transcriber history show <run-id>

Use --output json on any command for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" || c.Name() == "path" {
			return nil
		}

		loaded, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if outputFormat != "" {
			f := config.OutputFormat(outputFormat)
			if !f.IsValid() {
				return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", outputFormat)
			}
			loaded.OutputFormat = f
		}
		if modelFlag != "" {
			loaded.Model = modelFlag
		}
		if debug {
			loaded.Debug = true
		}

		cfg = loaded
		deps.Config = cfg
		deps.Logger = newLogger(cfg, os.Stderr)
		logging.SetGlobal(deps.Logger)
		return nil
	},
}

// loadConfig reads the config file named by --config or the default one.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		path, err := config.ExpandPath(cfgFile)
		if err != nil {
			return nil, err
		}
		return config.LoadConfigFrom(path)
	}
	return config.LoadConfig()
}

// configPath returns the file 'config set' writes to.
func configPath() (string, error) {
	if cfgFile != "" {
		return config.ExpandPath(cfgFile)
	}
	return config.ConfigPath()
}

// newLogger builds the console logger. Reviews report progress on stdout,
// so console logs stay at warn unless debugging.
func newLogger(c *config.Config, out io.Writer) logging.Logger {
	level := logging.LevelWarn
	if c.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:       level,
		ServiceName: "transcriber",
		JSONFormat:  c.LogJSON,
		Output:      out,
	})
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of transcriber.

Examples:
  transcriber version
  transcriber version --json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get("transcriber")
		out := c.OutOrStdout()
		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "transcriber %s\n", info.Version)
		fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  Go version: %s\n", info.GoVersion)
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify the transcriber configuration.

Settings are read from ~/.transcriber/config.yaml (or $TRANSCRIBER_CONFIG_DIR)
and can be overridden with TRANSCRIBER_* environment variables and OLLAMA_HOST.`,
}

// configView is the printable form of the configuration.
type configView struct {
	ConfigFile      string `json:"config_file" yaml:"config_file"`
	OllamaURL       string `json:"ollama_url" yaml:"ollama_url"`
	Model           string `json:"model" yaml:"model"`
	GenerateTimeout string `json:"generate_timeout" yaml:"generate_timeout"`
	PullTimeout     string `json:"pull_timeout" yaml:"pull_timeout"`
	AutoPull        bool   `json:"auto_pull" yaml:"auto_pull"`
	OutputDir       string `json:"output_dir" yaml:"output_dir"`
	OutputFormat    string `json:"output_format" yaml:"output_format"`
	AudioRoot       string `json:"audio_root,omitempty" yaml:"audio_root,omitempty"`
	Artifacts       string `json:"artifacts" yaml:"artifacts"`
	HistoryDriver   string `json:"history_driver" yaml:"history_driver"`
	HistoryDSN      string `json:"history_dsn,omitempty" yaml:"history_dsn,omitempty"`
	RedisAddr       string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisChannel    string `json:"redis_channel,omitempty" yaml:"redis_channel,omitempty"`
	MetricsAddr     string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Debug           bool   `json:"debug" yaml:"debug"`
}

func newConfigView(c *config.Config, path string) configView {
	var artifacts []string
	if c.Artifacts.Individual {
		artifacts = append(artifacts, "individual")
	}
	if c.Artifacts.Combined {
		artifacts = append(artifacts, "combined")
	}
	if c.Artifacts.HTML {
		artifacts = append(artifacts, "html")
	}
	v := configView{
		ConfigFile:      path,
		OllamaURL:       c.OllamaURL,
		Model:           c.Model,
		GenerateTimeout: c.GenerateTimeout.String(),
		PullTimeout:     c.PullTimeout.String(),
		AutoPull:        c.AutoPull,
		OutputDir:       c.OutputDir,
		OutputFormat:    c.OutputFormat.String(),
		AudioRoot:       c.AudioRoot,
		Artifacts:       strings.Join(artifacts, ","),
		HistoryDriver:   c.History.Driver,
		MetricsAddr:     c.MetricsAddr,
		Debug:           c.Debug,
	}
	if dsn, err := c.HistoryDSN(); err == nil {
		v.HistoryDSN = redactDSN(dsn)
	}
	if c.Redis.IsConfigured() {
		v.RedisAddr = c.Redis.Addr
		v.RedisChannel = c.Redis.GetChannel()
	}
	return v
}

// redactDSN hides the password of a connection URL.
func redactDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		return dsn[:scheme+3] + userinfo[:i] + ":****" + dsn[at:]
	}
	return dsn
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		path, _ := configPath()
		v := newConfigView(cfg, path)
		out := c.OutOrStdout()

		switch cfg.OutputFormat {
		case config.OutputFormatJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		case config.OutputFormatYAML:
			enc := yaml.NewEncoder(out)
			defer enc.Close()
			return enc.Encode(v)
		}

		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:      %s\n", v.ConfigFile)
		fmt.Fprintf(out, "  Ollama URL:       %s\n", v.OllamaURL)
		fmt.Fprintf(out, "  Model:            %s\n", v.Model)
		fmt.Fprintf(out, "  Generate timeout: %s\n", v.GenerateTimeout)
		fmt.Fprintf(out, "  Pull timeout:     %s\n", v.PullTimeout)
		fmt.Fprintf(out, "  Auto pull:        %t\n", v.AutoPull)
		fmt.Fprintf(out, "  Output dir:       %s\n", v.OutputDir)
		fmt.Fprintf(out, "  Output format:    %s\n", v.OutputFormat)
		fmt.Fprintf(out, "  Audio root:       %s\n", valueOrDefault(v.AudioRoot, "(not set)"))
		fmt.Fprintf(out, "  Artifacts:        %s\n", valueOrDefault(v.Artifacts, "(none)"))
		fmt.Fprintf(out, "  History:          %s %s\n", v.HistoryDriver, v.HistoryDSN)
		fmt.Fprintf(out, "  Redis:            %s\n", valueOrDefault(v.RedisAddr, "(not set)"))
		fmt.Fprintf(out, "  Metrics address:  %s\n", valueOrDefault(v.MetricsAddr, "(not set)"))
		fmt.Fprintf(out, "  Debug:            %t\n", v.Debug)
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  ` + strings.Join(config.SettableKeys(), "\n  ") + `

Examples:
  transcriber config set model llama3:8b
  transcriber config set generate_timeout 5m
  transcriber config set audio_root ~/cases/0042/audio
  transcriber config set history.driver postgres
  transcriber config set history.dsn postgres://user:pass@db:5432/transcriber`,
	Args: cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		path, err := configPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		// Start from the file alone so environment overrides are not persisted.
		current := config.DefaultConfig()
		if _, statErr := os.Stat(path); statErr == nil {
			current, err = config.LoadFileOnly(path)
			if err != nil {
				return err
			}
		}

		if err := current.Set(key, value); err != nil {
			return err
		}
		if err := config.SaveConfigTo(current, path); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// configPathCmd prints the config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), path)
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for transcriber.

To load completions:

Bash:
  $ source <(transcriber completion bash)

Zsh:
  $ transcriber completion zsh > "${fpath[1]}/_transcriber"

Fish:
  $ transcriber completion fish | source

PowerShell:
  PS> transcriber completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.transcriber/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output-format", "", "default output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "default-model", "", "override the configured model")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "review", Title: "Review:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Review
	reviewCmd := cmd.NewReviewCommand(deps)
	reviewCmd.GroupID = "review"
	rootCmd.AddCommand(reviewCmd)

	screenCmd := cmd.NewScreenCommand(deps)
	screenCmd.GroupID = "review"
	rootCmd.AddCommand(screenCmd)

	historyCmd := cmd.NewHistoryCommand(deps)
	historyCmd.GroupID = "review"
	rootCmd.AddCommand(historyCmd)

	// Operations
	healthCmd := cmd.NewHealthCommand(deps)
	healthCmd.GroupID = "ops"
	rootCmd.AddCommand(healthCmd)

	modelsCmd := cmd.NewModelsCommand(deps)
	modelsCmd.GroupID = "ops"
	rootCmd.AddCommand(modelsCmd)

	// Setup
	configCmd.GroupID = "setup"
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "setup"
	versionCmd.Flags().BoolVar(&versionOutputJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// The first interrupt cancels the running review, which stops after the
	// current recording and still writes its reports. A second one exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		fmt.Fprintln(os.Stderr, "\nInterrupt received, finishing the current recording (press Ctrl+C again to quit now)...")
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
