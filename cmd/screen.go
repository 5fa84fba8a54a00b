package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/screening"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
	"github.com/c2buck/audio-transcriber/pkg/ui"
)

// ScreenOptions holds the flags of the screen command.
type ScreenOptions struct {
	CategoriesFile string
	Top            int
	ShowMatches    int
	Output         string
}

// NewScreenCommand creates the screen command.
func NewScreenCommand(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &ScreenOptions{}

	cmd := &cobra.Command{
		Use:   "screen <transcript>",
		Short: "Rank recordings by weighted keyword matches",
		Long: `Screen a transcript for recordings that contain flagged language.

Screening is a fast keyword pass that needs no inference service. Each
category has a weight; phrases score ten times the weight of single words.
Recordings are ranked by total score so the most significant ones can be
reviewed first.

Categories can be supplied as YAML:
  categories:
    - name: vehicles
      label: Vehicles
      weight: 20
      terms: ["red car", "license plate", "sedan"]

Examples:
  transcriber screen transcript.txt
  transcriber screen transcript.txt --categories case_terms.yaml --top 5
  transcriber screen transcripts.json -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.CategoriesFile, "categories", "", "YAML file of weighted categories (default: built-in)")
	cmd.Flags().IntVar(&opts.Top, "top", screening.MaxTopRecordings, "Number of ranked recordings to show")
	cmd.Flags().IntVar(&opts.ShowMatches, "matches", 3, "Matches shown per recording")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

func runScreen(ctx context.Context, deps *Deps, opts *ScreenOptions, path string, out io.Writer) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, opts.Output)
	if err != nil {
		return err
	}
	logger := deps.logger()

	var categories []screening.Category
	if opts.CategoriesFile != "" {
		categories, err = screening.LoadCategories(opts.CategoriesFile)
		if err != nil {
			return err
		}
	}
	screener, err := screening.NewScreener(categories, logger)
	if err != nil {
		return err
	}

	segments, err := transcript.NewLoader(logger).Load(ctx, path)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	logger.Debug("Screening transcript", logging.F("path", path), logging.F("segments", len(segments)))

	batch := screener.ScreenSegments(segments)
	if opts.Top > 0 && len(batch.Results) > opts.Top {
		batch.Top = batch.Results[:opts.Top]
	} else {
		batch.Top = batch.Results
	}

	if format != config.OutputFormatText {
		return writeStructured(out, format, batch)
	}
	outputScreenText(out, batch, screener.Categories(), opts.ShowMatches)
	return nil
}

func outputScreenText(out io.Writer, batch screening.Batch, categories []screening.Category, showMatches int) {
	labels := make(map[string]string, len(categories))
	for _, c := range categories {
		labels[c.Name] = c.DisplayName()
	}

	fmt.Fprintf(out, "Screened %d recordings, %d with matches\n", batch.TotalRecordings, batch.WithMatches)
	fmt.Fprintln(out, strings.Repeat("=", 80))

	if batch.WithMatches == 0 {
		fmt.Fprintln(out, ui.DimStyle.Render("No flagged language found."))
		return
	}

	rank := 0
	for _, r := range batch.Top {
		if r.MatchCount == 0 {
			continue
		}
		rank++
		fmt.Fprintf(out, "%2d. %s  score %.0f  matches %d\n",
			rank, ui.SourceLabelStyle.Render(r.SourceID), r.TotalScore, r.MatchCount)

		names := make([]string, 0, len(r.CategoryScores))
		for name := range r.CategoryScores {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return r.CategoryScores[names[i]] > r.CategoryScores[names[j]]
		})
		parts := make([]string, 0, len(names))
		for _, name := range names {
			label := labels[name]
			if label == "" {
				label = name
			}
			parts = append(parts, fmt.Sprintf("%s %.0f", label, r.CategoryScores[name]))
		}
		fmt.Fprintf(out, "    %s\n", ui.DimStyle.Render(strings.Join(parts, ", ")))

		for i, m := range r.TopMatches {
			if i >= showMatches {
				break
			}
			fmt.Fprintf(out, "    %s ...%s...\n", ui.WarningStyle.Render(fmt.Sprintf("%q", m.Term)), m.Context)
		}
	}
	fmt.Fprintln(out)
}
