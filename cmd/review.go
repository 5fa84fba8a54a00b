package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/analysis"
	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/events"
	"github.com/c2buck/audio-transcriber/pkg/history"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/observability"
	"github.com/c2buck/audio-transcriber/pkg/report"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
	"github.com/c2buck/audio-transcriber/pkg/ui"
)

// publishTimeout bounds one progress publish so a slow broker cannot stall a run.
const publishTimeout = 2 * time.Second

// ReviewOptions holds the flags of the review command.
type ReviewOptions struct {
	Facts        string
	FactsFile    string
	Model        string
	OutputDir    string
	AudioRoot    string
	NoIndividual bool
	NoCombined   bool
	NoHTML       bool
	NoPull       bool
	TUI          bool
	Output       string
}

// ReviewOutcome is what the review command reports when it finishes.
type ReviewOutcome struct {
	Summary    analysis.Summary `json:"summary" yaml:"summary"`
	Transcript string           `json:"transcript" yaml:"transcript"`
	OutputDir  string           `json:"output_dir" yaml:"output_dir"`
	Files      []string         `json:"files" yaml:"files"`
	LogFile    string           `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// NewReviewCommand creates the review command.
func NewReviewCommand(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &ReviewOptions{}

	cmd := &cobra.Command{
		Use:   "review <transcript>",
		Short: "Review a transcript against case facts with a local model",
		Long: `Review every recording in a transcript file for content relevant to the case facts.

Each recording is sent to the local inference service in order. The model's
answer is turned into a relevance verdict with quoted evidence, and each
quote is placed on the recording's timeline where timing is available.

Press Ctrl+C (or q in the live view) to stop after the current recording.
Reports are still written for everything analyzed so far.

Artifacts written to the output directory:
  <recording>.ai.txt                  Per-recording analysis
  ai_review_summary_<stamp>.txt       Combined summary
  ai_review_report_<stamp>.html       Browsable report with playback links
  ai_review_log_<run id>.jsonl        Structured run log

Examples:
  transcriber review transcript.txt --facts "A red car was seen leaving at noon"
  transcriber review transcripts.json --facts-file case.txt --model llama3
  transcriber review transcript.txt --facts-file case.txt --tui --audio-root ~/recordings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Facts, "facts", "", "Case facts to review against")
	cmd.Flags().StringVar(&opts.FactsFile, "facts-file", "", "File containing the case facts")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model to use (default from config)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "d", "", "Directory for report artifacts (default from config)")
	cmd.Flags().StringVar(&opts.AudioRoot, "audio-root", "", "Directory containing the recordings, for playback links")
	cmd.Flags().BoolVar(&opts.NoIndividual, "no-individual", false, "Skip per-recording .ai.txt files")
	cmd.Flags().BoolVar(&opts.NoCombined, "no-combined", false, "Skip the combined summary file")
	cmd.Flags().BoolVar(&opts.NoHTML, "no-html", false, "Skip the HTML report")
	cmd.Flags().BoolVar(&opts.NoPull, "no-pull", false, "Fail instead of pulling a missing model")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show the live progress view")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// readFacts returns the case facts from the flag or file.
func readFacts(opts *ReviewOptions) (string, error) {
	facts := opts.Facts
	if opts.FactsFile != "" {
		if facts != "" {
			return "", fmt.Errorf("use either --facts or --facts-file, not both: %w", tserrors.ErrValidation)
		}
		data, err := os.ReadFile(opts.FactsFile)
		if err != nil {
			return "", fmt.Errorf("reading facts file: %w", err)
		}
		facts = string(data)
	}
	facts = strings.TrimSpace(facts)
	if facts == "" {
		return "", fmt.Errorf("case facts are required (--facts or --facts-file): %w", tserrors.ErrValidation)
	}
	return facts, nil
}

// applyReviewFlags overlays command flags onto a copy of the configuration.
func applyReviewFlags(cfg *config.Config, opts *ReviewOptions) (*config.Config, error) {
	c := *cfg
	if opts.Model != "" {
		c.Model = opts.Model
	}
	if opts.OutputDir != "" {
		c.OutputDir = opts.OutputDir
	}
	if opts.AudioRoot != "" {
		c.AudioRoot = opts.AudioRoot
	}
	if opts.NoIndividual {
		c.Artifacts.Individual = false
	}
	if opts.NoCombined {
		c.Artifacts.Combined = false
	}
	if opts.NoHTML {
		c.Artifacts.HTML = false
	}
	if opts.NoPull {
		c.AutoPull = false
	}
	format, err := resolveFormat(&c, opts.Output)
	if err != nil {
		return nil, err
	}
	c.OutputFormat = format

	audioRoot, err := config.ExpandPath(c.AudioRoot)
	if err != nil {
		return nil, err
	}
	c.AudioRoot = audioRoot
	outputDir, err := config.ExpandPath(c.OutputDir)
	if err != nil {
		return nil, err
	}
	c.OutputDir = outputDir
	return &c, nil
}

func runReview(ctx context.Context, deps *Deps, opts *ReviewOptions, transcriptPath string, out io.Writer) error {
	baseCfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	cfg, err := applyReviewFlags(baseCfg, opts)
	if err != nil {
		return err
	}
	facts, err := readFacts(opts)
	if err != nil {
		return err
	}

	logger := deps.logger()

	segments, err := transcript.NewLoader(logger).Load(ctx, transcriptPath)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}

	run := analysis.NewRun(segments, facts, cfg.Model)
	logger = logger.With(logging.F("run_id", run.ID))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	// Per-run structured log next to the reports.
	logPath := filepath.Join(cfg.OutputDir, "ai_review_log_"+run.ID+".jsonl")
	var sink *logging.AsyncSink
	if fw, err := logging.NewFileWriter(logPath); err != nil {
		logger.Warn("Run log disabled", logging.Err(err))
		logPath = ""
	} else {
		sink = logging.NewAsyncSink(logging.AsyncSinkConfig{Writer: fw})
		logger = logger.WithSink(sink)
		defer sink.Close()
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewReviewMetrics(reg)
	tracer := observability.NewTracer()

	store, err := deps.OpenHistory(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Run history unavailable", logging.Err(err))
		store = nil
	}
	if store != nil {
		defer store.Close()
		if err := history.RegisterMetrics(store, reg); err != nil {
			logger.Debug("History pool metrics disabled", logging.Err(err))
		}
	}

	if cfg.MetricsAddr != "" {
		srv, err := observability.StartServer(cfg.MetricsAddr, reg, logger)
		if err != nil {
			logger.Warn("Metrics server disabled", logging.Err(err), logging.F("addr", cfg.MetricsAddr))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Debug("Metrics server shutdown failed", logging.Err(err))
				}
			}()
		}
	}

	client, err := deps.NewClient(cfg, logger, metrics, tracer)
	if err != nil {
		return err
	}
	defer client.Close()

	analyzer := analysis.NewAnalyzer(client,
		analysis.WithAnalyzerLogger(logger),
		analysis.WithAnalyzerMetrics(metrics),
		analysis.WithAnalyzerTracer(tracer),
		analysis.WithAutoPull(cfg.AutoPull),
	)
	controller := analysis.NewController(analyzer,
		analysis.WithControllerLogger(logger),
		analysis.WithControllerMetrics(metrics),
		analysis.WithControllerTracer(tracer),
	)

	// Work after the run must survive the interrupt that stopped it.
	finishCtx := context.WithoutCancel(ctx)

	publisher, err := deps.NewEvents(cfg, logger)
	if err != nil {
		logger.Warn("Progress events disabled", logging.Err(err))
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
		publishWith(finishCtx, logger, func(c context.Context) error {
			return publisher.PublishStarted(c, run, transcriptPath)
		})
	}

	logger.Info("Starting review",
		logging.F("transcript", transcriptPath),
		logging.F("segments", run.Total()),
		logging.F("model", cfg.Model))

	stream, err := controller.Start(ctx, run)
	if err != nil {
		return err
	}
	progress := relayEvents(finishCtx, logger, publisher, stream, run.Total())

	if opts.TUI && isTerminal(out) {
		if _, err := ui.RunProgress(progress, run.Cancel, run.Total(), cfg.Model, out); err != nil {
			logger.Warn("Progress view failed", logging.Err(err))
			run.Cancel()
		}
		for range progress {
		}
	} else {
		textMode := cfg.OutputFormat == config.OutputFormatText
		for ev := range progress {
			if !textMode {
				continue
			}
			if line := ui.FormatEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}

	if publisher != nil {
		publishWith(finishCtx, logger, func(c context.Context) error {
			return publisher.PublishCompleted(c, run)
		})
	}
	recordHistory(finishCtx, store, cfg, logger, run, transcriptPath)

	outcome := ReviewOutcome{
		Summary:    run.Summary(),
		Transcript: transcriptPath,
		OutputDir:  cfg.OutputDir,
		LogFile:    logPath,
	}

	if run.State() == analysis.StateFailed {
		reportReviewError(out, cfg, run)
		return fmt.Errorf("review failed: %w", run.Err())
	}

	artifacts, err := report.Build(run, report.Options{
		Individual: cfg.Artifacts.Individual,
		Combined:   cfg.Artifacts.Combined,
		HTML:       cfg.Artifacts.HTML,
		AudioRoot:  cfg.AudioRoot,
	})
	if err != nil {
		return fmt.Errorf("building reports: %w", err)
	}
	files, err := report.WriteArtifacts(cfg.OutputDir, artifacts)
	outcome.Files = files
	if err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	logger.Info("Reports written", logging.F("files", len(files)), logging.F("dir", cfg.OutputDir))

	if cfg.OutputFormat != config.OutputFormatText {
		return writeStructured(out, cfg.OutputFormat, outcome)
	}
	printReviewOutcome(out, outcome)
	return nil
}

// relayEvents forwards controller events to the returned channel, publishing
// each to Redis on the way. Pull events are dropped if the reader is behind.
func relayEvents(ctx context.Context, logger logging.Logger, publisher *events.Publisher, in <-chan analysis.ProgressEvent, total int) <-chan analysis.ProgressEvent {
	out := make(chan analysis.ProgressEvent, total+2)
	go func() {
		defer close(out)
		for ev := range in {
			if publisher != nil {
				publishWith(ctx, logger, func(c context.Context) error {
					return publisher.PublishProgress(c, ev)
				})
			}
			if ev.Kind == analysis.EventPull {
				select {
				case out <- ev:
				default:
				}
				continue
			}
			out <- ev
		}
	}()
	return out
}

// publishWith runs one publish with a bounded timeout. Failures are logged.
func publishWith(ctx context.Context, logger logging.Logger, publish func(context.Context) error) {
	c, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := publish(c); err != nil {
		logger.Debug("Progress event not published", logging.Err(err))
	}
}

// recordHistory stores the finished run. Failures are logged.
func recordHistory(ctx context.Context, store history.Store, cfg *config.Config, logger logging.Logger, run *analysis.Run, transcriptPath string) {
	if store == nil {
		return
	}
	if err := store.Record(ctx, history.RecordFromRun(run, transcriptPath, cfg.OutputDir)); err != nil {
		logger.Warn("Failed to record run history", logging.Err(err))
	}
}

func reportReviewError(out io.Writer, cfg *config.Config, run *analysis.Run) {
	if cfg.OutputFormat != config.OutputFormatText {
		return
	}
	err := run.Err()
	fmt.Fprintln(out, ui.ErrorStyle.Render("Review failed: no reports were written."))
	code := tserrors.CodeOf(err)
	if code == "" {
		return
	}
	if desc := tserrors.GetDescription(code); desc != "" {
		fmt.Fprintf(out, "  %s\n", desc)
	}
	if hint := tserrors.GetSuggestedAction(code); hint != "" {
		fmt.Fprintf(out, "  Suggested action: %s\n", hint)
	}
}

func printReviewOutcome(out io.Writer, o ReviewOutcome) {
	s := o.Summary
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.TitleStyle.Render("Review "+string(s.State)))
	fmt.Fprintf(out, "  Run:            %s\n", s.RunID)
	fmt.Fprintf(out, "  Model:          %s\n", s.Model)
	fmt.Fprintf(out, "  Analyzed:       %d of %d\n", s.Succeeded+s.Failed, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(out, "  Failed:         %s\n", ui.ErrorTextStyle.Render(fmt.Sprintf("%d", s.Failed)))
	}
	if s.NotAttempted > 0 {
		fmt.Fprintf(out, "  Not attempted:  %s\n", ui.WarningStyle.Render(fmt.Sprintf("%d", s.NotAttempted)))
	}
	fmt.Fprintf(out, "  Relevant:       %s\n", ui.RelevantStyle.Render(fmt.Sprintf("%d", s.Relevant)))
	fmt.Fprintf(out, "  Evidence:       %d (%d with exact timestamps)\n", s.Evidence, s.HighConfidence)
	fmt.Fprintf(out, "  Elapsed:        %s\n", s.Elapsed.Round(time.Second))

	if len(o.Files) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.HeaderStyle.Render("Files written to "+o.OutputDir+":"))
		for _, f := range o.Files {
			fmt.Fprintf(out, "  %s\n", filepath.Base(f))
		}
	}
	if o.LogFile != "" {
		fmt.Fprintf(out, "  %s\n", ui.DimStyle.Render(filepath.Base(o.LogFile)))
	}
}
