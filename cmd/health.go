package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/ui"
)

// Check states.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusSkipped   = "skipped"
)

// errUnhealthy is returned after printing a failed health report.
var errUnhealthy = errors.New("one or more checks failed")

// HealthStatus is the result of 'transcriber health'.
type HealthStatus struct {
	Overall   string                 `json:"overall" yaml:"overall"`
	Timestamp time.Time              `json:"timestamp" yaml:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks" yaml:"checks"`
}

// CheckStatus is the outcome of a single check.
type CheckStatus struct {
	Status   string `json:"status" yaml:"status"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	Latency  string `json:"latency,omitempty" yaml:"latency,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Details  string `json:"details,omitempty" yaml:"details,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// versioner is implemented by clients that report a service version.
type versioner interface {
	Version(ctx context.Context) (string, error)
}

// NewHealthCommand creates the health command.
func NewHealthCommand(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	var (
		timeout time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the inference service, model and history store",
		Long: `Check that everything a review needs is in place.

Checks:
  - inference  The local inference service responds
  - model      The configured model is installed (a missing model is pulled
               at review time when auto_pull is enabled)
  - history    The run history store opens
  - redis      The progress event broker responds (only when configured)

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout*3)
			defer cancel()
			return runHealth(ctx, deps, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout for each check")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runHealth(ctx context.Context, deps *Deps, output string, out io.Writer) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	status := HealthStatus{
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckStatus),
	}

	inferenceStatus, installed := checkInference(ctx, deps, cfg)
	status.Checks["inference"] = inferenceStatus
	status.Checks["model"] = checkModel(cfg, inferenceStatus, installed)
	status.Checks["history"] = checkHistory(ctx, deps, cfg)
	status.Checks["redis"] = checkRedis(deps, cfg)

	status.Overall = StatusHealthy
	for _, c := range status.Checks {
		switch {
		case c.Status == StatusUnhealthy && !c.Optional:
			status.Overall = StatusUnhealthy
		case c.Status != StatusHealthy && c.Status != StatusSkipped && status.Overall == StatusHealthy:
			status.Overall = StatusDegraded
		}
	}

	if format != config.OutputFormatText {
		if err := writeStructured(out, format, status); err != nil {
			return err
		}
	} else {
		outputHealthText(out, status)
	}
	if status.Overall == StatusUnhealthy {
		return errUnhealthy
	}
	return nil
}

func checkInference(ctx context.Context, deps *Deps, cfg *config.Config) (CheckStatus, []string) {
	status := CheckStatus{Target: cfg.OllamaURL}

	client, err := deps.NewClient(cfg, deps.logger(), nil, nil)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
		return status, nil
	}
	defer client.Close()

	start := time.Now()
	installed, err := client.ListModels(ctx)
	status.Latency = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
		return status, nil
	}

	status.Status = StatusHealthy
	status.Details = fmt.Sprintf("models=%d", len(installed))
	if v, ok := client.(versioner); ok {
		if version, err := v.Version(ctx); err == nil && version != "" {
			status.Details = fmt.Sprintf("version=%s %s", version, status.Details)
		}
	}
	return status, installed
}

func checkModel(cfg *config.Config, inferenceStatus CheckStatus, installed []string) CheckStatus {
	status := CheckStatus{Target: cfg.Model}
	switch {
	case inferenceStatus.Status != StatusHealthy:
		status.Status = StatusSkipped
		status.Details = "inference service unavailable"
	case inference.HasModel(installed, cfg.Model):
		status.Status = StatusHealthy
		status.Details = "installed"
	case cfg.AutoPull:
		status.Status = StatusDegraded
		status.Details = "not installed; will be pulled at review time"
	default:
		status.Status = StatusUnhealthy
		status.Error = fmt.Sprintf("not installed; run 'transcriber models pull %s'", cfg.Model)
	}
	return status
}

func checkHistory(ctx context.Context, deps *Deps, cfg *config.Config) CheckStatus {
	status := CheckStatus{Target: cfg.History.Driver, Optional: true}
	if cfg.History.Driver == config.HistoryDriverNone {
		status.Status = StatusSkipped
		status.Details = "disabled"
		return status
	}

	start := time.Now()
	store, err := deps.OpenHistory(ctx, cfg, deps.logger())
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
		return status
	}
	defer store.Close()

	runs, err := store.List(ctx, 1)
	status.Latency = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
		return status
	}
	status.Status = StatusHealthy
	if len(runs) > 0 {
		status.Details = "last run " + runs[0].StartedAt.Local().Format(time.RFC3339)
	} else {
		status.Details = "no runs recorded"
	}
	return status
}

func checkRedis(deps *Deps, cfg *config.Config) CheckStatus {
	status := CheckStatus{Optional: true}
	if !cfg.Redis.IsConfigured() {
		status.Status = StatusSkipped
		status.Details = "not configured"
		return status
	}
	status.Target = cfg.Redis.Addr

	start := time.Now()
	publisher, err := deps.NewEvents(cfg, deps.logger())
	status.Latency = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
		return status
	}
	if publisher != nil {
		status.Details = "channel=" + publisher.Channel()
		publisher.Close()
	}
	status.Status = StatusHealthy
	return status
}

func outputHealthText(out io.Writer, status HealthStatus) {
	fmt.Fprintf(out, "Transcriber: %s\n", healthStyle(status.Overall))
	fmt.Fprintf(out, "Timestamp: %s\n\n", status.Timestamp.Format(time.RFC3339))

	fmt.Fprintln(out, "CHECK        STATUS       LATENCY    TARGET                     DETAILS")
	fmt.Fprintln(out, "-----        ------       -------    ------                     -------")

	names := make([]string, 0, len(status.Checks))
	for name := range status.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := status.Checks[name]
		latency := c.Latency
		if latency == "" {
			latency = "-"
		}
		target := c.Target
		if target == "" {
			target = "-"
		}
		details := c.Details
		if c.Error != "" {
			details = c.Error
		}
		fmt.Fprintf(out, "%-12s %-12s %-10s %-26s %s\n", name, healthStyle(c.Status), latency, target, details)
	}
}

func healthStyle(status string) string {
	switch status {
	case StatusHealthy:
		return ui.RelevantStyle.Render(status)
	case StatusUnhealthy:
		return ui.ErrorStyle.Render(status)
	case StatusDegraded:
		return ui.WarningStyle.Render(status)
	default:
		return ui.DimStyle.Render(status)
	}
}
