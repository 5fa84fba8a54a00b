// Package analysis drives transcript segments through the inference service
// and turns model responses into relevance verdicts with quoted evidence.
package analysis

import (
	"time"

	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// Confidence tags how reliable an evidence timestamp is.
type Confidence string

const (
	// ConfidenceHigh means the time came from per-utterance timing.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow means the time was estimated from the quote's position.
	ConfidenceLow Confidence = "low"
	// ConfidenceNone means no time could be estimated.
	ConfidenceNone Confidence = "none"
)

// EvidenceSpan is one quoted, relevant excerpt from a model response.
type EvidenceSpan struct {
	QuotedText      string        `json:"quoted_text"`
	Explanation     string        `json:"explanation,omitempty"`
	Start           time.Duration `json:"start"`
	End             time.Duration `json:"end"`
	SourceSegmentID string        `json:"source_segment_id"`
	Confidence      Confidence    `json:"timestamp_confidence"`
}

// HasTime reports whether the span carries a time estimate.
func (e EvidenceSpan) HasTime() bool {
	return e.Confidence == ConfidenceHigh || e.Confidence == ConfidenceLow
}

// Verdict is the parsed form of one model response.
type Verdict struct {
	IsRelevant bool           `json:"is_relevant"`
	Score      float64        `json:"score"`
	Evidence   []EvidenceSpan `json:"evidence,omitempty"`
}

// Metrics holds per-segment inference measurements.
type Metrics struct {
	Duration     time.Duration `json:"duration"`
	TokenCount   int           `json:"token_count"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
}

// Result is the analysis outcome for one Segment.
// Err is set if and only if the analysis failed.
type Result struct {
	Segment        transcript.Segment `json:"segment"`
	IsRelevant     bool               `json:"is_relevant"`
	RelevanceScore float64            `json:"relevance_score"`
	RawResponse    string             `json:"raw_response"`
	Evidence       []EvidenceSpan     `json:"evidence,omitempty"`
	Metrics        Metrics            `json:"metrics"`
	Model          string             `json:"model"`
	Err            error              `json:"-"`
}

// Failed reports whether the analysis recorded an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// ErrorMessage returns the error text, or "" on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
