// Package observability provides metrics and tracing for transcript reviews.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Segment outcome label values.
const (
	OutcomeRelevant    = "relevant"
	OutcomeNotRelevant = "not_relevant"
	OutcomeError       = "error"
)

// ReviewMetrics holds all Prometheus metrics for transcript reviews.
// A nil *ReviewMetrics is valid and records nothing.
type ReviewMetrics struct {
	// Inference metrics
	GenerateRequestsTotal *prometheus.CounterVec
	GenerateSeconds       *prometheus.HistogramVec
	GenerateTokensTotal   *prometheus.CounterVec
	ModelPullsTotal       *prometheus.CounterVec

	// Analysis metrics
	SegmentsAnalyzedTotal *prometheus.CounterVec
	EvidenceSpansTotal    *prometheus.CounterVec
	RelevanceScore        prometheus.Histogram

	// Run metrics
	RunsTotal         *prometheus.CounterVec
	RunSeconds        prometheus.Histogram
	SegmentsRemaining prometheus.Gauge
}

// NewReviewMetrics creates a new set of review metrics.
func NewReviewMetrics(reg prometheus.Registerer) *ReviewMetrics {
	factory := promauto.With(reg)

	return &ReviewMetrics{
		GenerateRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_generate_requests_total",
				Help: "Total generation requests sent to the inference service",
			},
			[]string{"model", "status"},
		),
		GenerateSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transcriber_generate_seconds",
				Help:    "Generation request latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"model"},
		),
		GenerateTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_generate_tokens_total",
				Help: "Total tokens processed by the inference service",
			},
			[]string{"direction", "model"},
		),
		ModelPullsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_model_pulls_total",
				Help: "Total model downloads triggered",
			},
			[]string{"model", "status"},
		),

		SegmentsAnalyzedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_segments_analyzed_total",
				Help: "Total segments analyzed by outcome",
			},
			[]string{"outcome"},
		),
		EvidenceSpansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_evidence_spans_total",
				Help: "Total evidence spans extracted by timestamp confidence",
			},
			[]string{"confidence"},
		),
		RelevanceScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transcriber_relevance_score",
				Help:    "Relevance scores of analyzed segments",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcriber_runs_total",
				Help: "Total review runs by terminal state",
			},
			[]string{"state"},
		),
		RunSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transcriber_run_seconds",
				Help:    "Wall time of review runs",
				Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200},
			},
		),
		SegmentsRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transcriber_segments_remaining",
				Help: "Segments not yet analyzed in the current run",
			},
		),
	}
}

// RecordGenerate records one generation request.
func (m *ReviewMetrics) RecordGenerate(model, status string, seconds float64, promptTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.GenerateRequestsTotal.WithLabelValues(model, status).Inc()
	m.GenerateSeconds.WithLabelValues(model).Observe(seconds)
	if promptTokens > 0 {
		m.GenerateTokensTotal.WithLabelValues("input", model).Add(float64(promptTokens))
	}
	if outputTokens > 0 {
		m.GenerateTokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
	}
}

// RecordModelPull records a model download attempt.
func (m *ReviewMetrics) RecordModelPull(model, status string) {
	if m == nil {
		return
	}
	m.ModelPullsTotal.WithLabelValues(model, status).Inc()
}

// RecordSegment records one analyzed segment.
func (m *ReviewMetrics) RecordSegment(outcome string, score float64) {
	if m == nil {
		return
	}
	m.SegmentsAnalyzedTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeError {
		m.RelevanceScore.Observe(score)
	}
}

// RecordEvidence records one extracted evidence span.
func (m *ReviewMetrics) RecordEvidence(confidence string) {
	if m == nil {
		return
	}
	m.EvidenceSpansTotal.WithLabelValues(confidence).Inc()
}

// RecordRun records a run reaching a terminal state.
func (m *ReviewMetrics) RecordRun(state string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
	m.RunSeconds.Observe(seconds)
}

// SetSegmentsRemaining sets the remaining segment count of the active run.
func (m *ReviewMetrics) SetSegmentsRemaining(n int) {
	if m == nil {
		return
	}
	m.SegmentsRemaining.Set(float64(n))
}
