package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/history"
	"github.com/c2buck/audio-transcriber/pkg/ui"
)

// NewHistoryCommand creates the history command with its subcommands.
func NewHistoryCommand(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past review runs",
		Long: `Show review runs recorded in the history store.

Runs are recorded in SQLite by default (~/.transcriber/history.db). Set
history.driver to postgres and history.dsn to a connection URL to share
history between machines, or to none to disable recording.`,
	}

	cmd.AddCommand(newHistoryListCommand(deps))
	cmd.AddCommand(newHistoryShowCommand(deps))
	return cmd
}

func newHistoryListCommand(deps *Deps) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd.Context(), deps, limit, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum runs to show")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newHistoryShowCommand(deps *Deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd.Context(), deps, args[0], output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func openHistoryFor(ctx context.Context, deps *Deps, output string) (history.Store, config.OutputFormat, error) {
	cfg, err := deps.loadConfig()
	if err != nil {
		return nil, "", err
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return nil, "", err
	}
	store, err := deps.OpenHistory(ctx, cfg, deps.logger())
	if err != nil {
		return nil, "", fmt.Errorf("opening run history: %w", err)
	}
	return store, format, nil
}

func runHistoryList(ctx context.Context, deps *Deps, limit int, output string, out io.Writer) error {
	store, format, err := openHistoryFor(ctx, deps, output)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	if format != config.OutputFormatText {
		if runs == nil {
			runs = []history.RunRecord{}
		}
		return writeStructured(out, format, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "Recent Runs (%d)\n", len(runs))
	fmt.Fprintln(out, strings.Repeat("=", 96))
	fmt.Fprintf(out, "  %-36s  %-16s  %-10s  %-9s  %-8s  %s\n", "RUN", "STARTED", "STATE", "RELEVANT", "MODEL", "TRANSCRIPT")
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-16s  %-10s  %-9s  %-8s  %s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			ui.StateStyle(r.State).Render(fmt.Sprintf("%-10s", r.State)),
			fmt.Sprintf("%d/%d", r.Relevant, r.Total),
			r.Model,
			r.Transcript)
	}
	fmt.Fprintln(out)
	return nil
}

func runHistoryShow(ctx context.Context, deps *Deps, runID, output string, out io.Writer) error {
	store, format, err := openHistoryFor(ctx, deps, output)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(ctx, runID)
	if err != nil {
		return err
	}

	if format != config.OutputFormatText {
		return writeStructured(out, format, rec)
	}

	fmt.Fprintln(out, ui.TitleStyle.Render("Run "+rec.RunID))
	fmt.Fprintf(out, "  State:          %s\n", ui.StateStyle(rec.State).Render(rec.State))
	fmt.Fprintf(out, "  Transcript:     %s\n", rec.Transcript)
	fmt.Fprintf(out, "  Model:          %s\n", rec.Model)
	fmt.Fprintf(out, "  Started:        %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(out, "  Duration:       %s\n", rec.Duration().Round(time.Second))
	}
	fmt.Fprintf(out, "  Segments:       %d (succeeded %d, failed %d, not attempted %d)\n",
		rec.Total, rec.Succeeded, rec.Failed, rec.NotAttempted)
	fmt.Fprintf(out, "  Relevant:       %d\n", rec.Relevant)
	fmt.Fprintf(out, "  Evidence:       %d (%d with exact timestamps)\n", rec.Evidence, rec.HighConfidence)
	if rec.OutputDir != "" {
		fmt.Fprintf(out, "  Output:         %s\n", rec.OutputDir)
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "  Error:          %s\n", ui.ErrorTextStyle.Render(rec.Error))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.HeaderStyle.Render("Case facts:"))
	fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(rec.CaseFacts, "\n", "\n  "))
	return nil
}
