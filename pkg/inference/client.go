// Package inference talks to the local text-generation service.
package inference

import (
	"context"
	"time"
)

// Client defines the operations the analysis engine needs from the inference service.
type Client interface {
	// ListModels returns the identifiers of the models installed on the service.
	ListModels(ctx context.Context) ([]string, error)

	// EnsureModel pulls the model if it is not installed, reporting download progress.
	EnsureModel(ctx context.Context, model string, onProgress func(PullProgress)) error

	// Generate runs one non-streaming generation request.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Ping checks that the service responds.
	Ping(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// Sampling holds generation parameters.
type Sampling struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

// DefaultSampling favors consistent relevance judgments over varied wording.
// It is not user tunable.
var DefaultSampling = Sampling{
	Temperature: 0.1,
	TopP:        0.9,
	TopK:        40,
}

// Request represents a generation request.
type Request struct {
	// Model is the model identifier (e.g. "mistral").
	Model string `json:"model"`

	// Prompt is the full prompt text.
	Prompt string `json:"prompt"`

	// Sampling overrides DefaultSampling when non-zero.
	Sampling Sampling `json:"sampling"`
}

// Response represents the result of a generation request.
type Response struct {
	// Text is the raw generated text.
	Text string `json:"text"`

	// Model is the model that served the request.
	Model string `json:"model"`

	// TokenCount is the number of generated tokens.
	TokenCount int `json:"token_count"`

	// PromptTokens is the number of prompt tokens evaluated.
	PromptTokens int `json:"prompt_tokens"`

	// Duration is the wall time of the request.
	Duration time.Duration `json:"duration"`

	// EvalDuration is the service-reported generation time.
	EvalDuration time.Duration `json:"eval_duration"`
}

// TokensPerSecond returns the generation rate reported by the service.
func (r *Response) TokensPerSecond() float64 {
	if r.EvalDuration <= 0 {
		return 0
	}
	return float64(r.TokenCount) / r.EvalDuration.Seconds()
}

// PullProgress is one status update from a model download.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Total     int64  `json:"total,omitempty"`
}

// Percent returns download completion in the range 0-100, or -1 when unknown.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Completed) / float64(p.Total) * 100
}
