package analysis

import (
	"context"
	"fmt"
	"time"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/observability"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// Analyzer analyzes one segment at a time against the inference service.
type Analyzer struct {
	client   inference.Client
	logger   logging.Logger
	metrics  *observability.ReviewMetrics
	tracer   *observability.Tracer
	autoPull bool
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerLogger sets the analyzer logger.
func WithAnalyzerLogger(logger logging.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = logger }
}

// WithAnalyzerMetrics records per-segment metrics.
func WithAnalyzerMetrics(m *observability.ReviewMetrics) AnalyzerOption {
	return func(a *Analyzer) { a.metrics = m }
}

// WithAnalyzerTracer records per-segment spans.
func WithAnalyzerTracer(t *observability.Tracer) AnalyzerOption {
	return func(a *Analyzer) { a.tracer = t }
}

// WithAutoPull controls whether Prepare downloads a missing model.
func WithAutoPull(enabled bool) AnalyzerOption {
	return func(a *Analyzer) { a.autoPull = enabled }
}

// NewAnalyzer creates an analyzer over client.
func NewAnalyzer(client inference.Client, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client:   client,
		logger:   logging.NewNopLogger(),
		tracer:   observability.NewTracer(),
		autoPull: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.F("component", "analyzer"))
	return a
}

// Prepare makes sure model is usable before the first segment. A missing
// model is pulled when auto-pull is enabled and reported as ModelUnavailable
// otherwise.
func (a *Analyzer) Prepare(ctx context.Context, model string, onPull func(inference.PullProgress)) error {
	if a.autoPull {
		return a.client.EnsureModel(ctx, model, onPull)
	}

	installed, err := a.client.ListModels(ctx)
	if err != nil {
		return err
	}
	if !inference.HasModel(installed, model) {
		return tserrors.New(tserrors.ErrModelUnavailable, tserrors.StageModels,
			fmt.Sprintf("model %q is not installed; run 'transcriber models pull %s'", model, model), nil)
	}
	return nil
}

// Analyze runs one segment through the model. It never returns an error:
// failures are recorded on the result.
func (a *Analyzer) Analyze(ctx context.Context, seg transcript.Segment, caseContext, model string) Result {
	start := time.Now()
	result := Result{Segment: seg, Model: model}

	ctx, span := a.tracer.StartSegmentSpan(ctx, seg.SourceID, seg.Index)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	logger := a.logger.With(logging.F("source_id", seg.SourceID), logging.F("index", seg.Index))
	logger.Debug("Analyzing segment", logging.F("words", seg.WordCount), logging.F("timed", seg.HasTiming()))

	prompt, err := BuildPrompt(seg, caseContext)
	if err != nil {
		return a.fail(logger, helper, result, start, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, "build prompt", err))
	}

	resp, err := a.client.Generate(ctx, inference.Request{
		Model:    model,
		Prompt:   prompt,
		Sampling: inference.DefaultSampling,
	})
	if err != nil {
		return a.fail(logger, helper, result, start, err)
	}

	verdict := Parse(resp.Text, seg)
	result.RawResponse = resp.Text
	result.IsRelevant = verdict.IsRelevant
	result.RelevanceScore = verdict.Score
	result.Evidence = verdict.Evidence
	result.Metrics = Metrics{
		Duration:     time.Since(start),
		TokenCount:   resp.TokenCount,
		PromptTokens: resp.PromptTokens,
	}

	outcome := observability.OutcomeNotRelevant
	if verdict.IsRelevant {
		outcome = observability.OutcomeRelevant
	}
	a.metrics.RecordSegment(outcome, verdict.Score)
	for _, ev := range verdict.Evidence {
		a.metrics.RecordEvidence(string(ev.Confidence))
	}
	helper.SetVerdict(verdict.IsRelevant, len(verdict.Evidence))
	helper.SetSuccess()

	logger.Info("Segment analyzed",
		logging.F("relevant", verdict.IsRelevant),
		logging.F("score", verdict.Score),
		logging.F("evidence", len(verdict.Evidence)),
		logging.F("tokens", resp.TokenCount),
		logging.F("duration_ms", result.Metrics.Duration.Milliseconds()))
	return result
}

func (a *Analyzer) fail(logger logging.Logger, helper *observability.SpanHelper, result Result, start time.Time, err error) Result {
	result.Err = err
	result.IsRelevant = false
	result.RelevanceScore = 0
	result.Metrics.Duration = time.Since(start)

	a.metrics.RecordSegment(observability.OutcomeError, 0)
	helper.SetError(err, string(tserrors.CodeOf(err)), tserrors.IsErrorRetryable(err))
	logger.Warn("Segment analysis failed", logging.Err(err), logging.F("code", string(tserrors.CodeOf(err))))
	return result
}
