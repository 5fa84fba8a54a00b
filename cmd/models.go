package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/ui"
)

// ModelEntry is one installed model in list output.
type ModelEntry struct {
	Name    string `json:"name" yaml:"name"`
	Default bool   `json:"default" yaml:"default"`
}

// ModelList is the output of 'models list'.
type ModelList struct {
	Service      string       `json:"service" yaml:"service"`
	DefaultModel string       `json:"default_model" yaml:"default_model"`
	Installed    bool         `json:"default_installed" yaml:"default_installed"`
	Models       []ModelEntry `json:"models" yaml:"models"`
}

// NewModelsCommand creates the models command with its subcommands.
func NewModelsCommand(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "List and pull models on the local inference service",
		Long: `Manage the models installed on the local inference service.

The configured default model is used by 'transcriber review' unless --model
is given. A missing model is pulled automatically before a review when
auto_pull is enabled.`,
	}

	cmd.AddCommand(newModelsListCommand(deps))
	cmd.AddCommand(newModelsPullCommand(deps))
	return cmd
}

func newModelsListCommand(deps *Deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsList(cmd.Context(), deps, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newModelsPullCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [model]",
		Short: "Pull a model (default: the configured model)",
		Long: `Pull a model onto the local inference service, showing download progress.
Nothing is downloaded when the model is already installed.

Examples:
  transcriber models pull
  transcriber models pull llama3:8b`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := ""
			if len(args) == 1 {
				model = args[0]
			}
			return runModelsPull(cmd.Context(), deps, model, cmd.OutOrStdout())
		},
	}
}

func runModelsList(ctx context.Context, deps *Deps, output string, out io.Writer) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	client, err := deps.NewClient(cfg, deps.logger(), nil, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	installed, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	sort.Strings(installed)

	list := ModelList{
		Service:      cfg.OllamaURL,
		DefaultModel: cfg.Model,
		Installed:    inference.HasModel(installed, cfg.Model),
	}
	for _, name := range installed {
		list.Models = append(list.Models, ModelEntry{
			Name:    name,
			Default: inference.HasModel([]string{name}, cfg.Model),
		})
	}

	if format != config.OutputFormatText {
		return writeStructured(out, format, list)
	}
	outputModelListText(out, list)
	return nil
}

func outputModelListText(out io.Writer, list ModelList) {
	if len(list.Models) == 0 {
		fmt.Fprintf(out, "No models installed on %s.\n", list.Service)
		fmt.Fprintf(out, "\nUse 'transcriber models pull %s' to install the default model.\n", list.DefaultModel)
		return
	}

	fmt.Fprintf(out, "Installed Models (%d)\n", len(list.Models))
	fmt.Fprintln(out, strings.Repeat("=", 60))
	for _, m := range list.Models {
		marker := "  "
		if m.Default {
			marker = ui.RelevantStyle.Render("* ")
		}
		fmt.Fprintf(out, "%s%s\n", marker, m.Name)
	}
	fmt.Fprintln(out)
	if !list.Installed {
		fmt.Fprintln(out, ui.WarningStyle.Render(fmt.Sprintf("Default model %q is not installed.", list.DefaultModel)))
	}
}

func runModelsPull(ctx context.Context, deps *Deps, model string, out io.Writer) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	if model == "" {
		model = cfg.Model
	}

	client, err := deps.NewClient(cfg, deps.logger(), nil, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintf(out, "Pulling %s from %s\n", model, cfg.OllamaURL)
	last := ""
	err = client.EnsureModel(ctx, model, func(p inference.PullProgress) {
		line := p.Status
		if pct := p.Percent(); pct >= 0 {
			line = fmt.Sprintf("%s %3.0f%%", p.Status, pct)
		}
		if line == last {
			return
		}
		last = line
		fmt.Fprintf(out, "  %s\n", ui.DimStyle.Render(line))
	})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", model, err)
	}
	fmt.Fprintf(out, "%s %s is ready\n", ui.RelevantStyle.Render("✓"), model)
	return nil
}
