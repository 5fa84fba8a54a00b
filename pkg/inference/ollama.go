package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c2buck/audio-transcriber/pkg/buildinfo"
	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/observability"
)

// OllamaClient implements Client over the Ollama HTTP API.
type OllamaClient struct {
	config     Config
	httpClient *http.Client
	logger     logging.Logger
	metrics    *observability.ReviewMetrics
	tracer     *observability.Tracer
}

// Option configures an OllamaClient.
type Option func(*OllamaClient)

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *OllamaClient) { c.logger = logger }
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.ReviewMetrics) Option {
	return func(c *OllamaClient) { c.metrics = m }
}

// WithTracer records request spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *OllamaClient) { c.tracer = t }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// NewOllamaClient creates a client for the service at config.BaseURL.
func NewOllamaClient(config Config, opts ...Option) (*OllamaClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &OllamaClient{
		config: config,
		// Timeouts are applied per request through contexts because a
		// streaming pull outlives any sensible client-wide timeout.
		httpClient: &http.Client{},
		logger:     logging.NewNopLogger(),
		tracer:     observability.NewTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.F("component", "inference"), logging.F("base_url", config.BaseURL))
	return c, nil
}

// BaseURL returns the configured service URL.
func (c *OllamaClient) BaseURL() string {
	return c.config.BaseURL
}

// tagsResponse is the response format of /api/tags.
type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns installed model names.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ListTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, unreachable(tserrors.StageModels, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, tserrors.New(tserrors.ErrServiceUnreachable, tserrors.StageModels,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageModels, "parse model list", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			models = append(models, name)
		}
	}
	return models, nil
}

// Ping checks that the service responds to model listing.
func (c *OllamaClient) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// Version returns the service version string.
func (c *OllamaClient) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ListTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", unreachable(tserrors.StageModels, err)
	}
	defer resp.Body.Close()

	var v struct {
		Version string `json:"version"`
	}
	if resp.StatusCode != http.StatusOK {
		return "", tserrors.New(tserrors.ErrServiceUnreachable, tserrors.StageModels, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", tserrors.New(tserrors.ErrInference, tserrors.StageModels, "parse version", err)
	}
	return v.Version, nil
}

// HasModel reports whether model is present in installed, treating a
// missing tag as ":latest".
func HasModel(installed []string, model string) bool {
	want := normalizeModel(model)
	for _, name := range installed {
		if normalizeModel(name) == want {
			return true
		}
	}
	return false
}

func normalizeModel(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// pullRequest is the request format of /api/pull.
type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// pullStatus is one NDJSON line streamed by /api/pull.
type pullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// EnsureModel pulls model when it is not installed. The pull is bounded by
// the configured pull timeout.
func (c *OllamaClient) EnsureModel(ctx context.Context, model string, onProgress func(PullProgress)) error {
	installed, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	if HasModel(installed, model) {
		c.logger.Debug("Model already installed", logging.F("model", model))
		return nil
	}

	c.logger.Info("Pulling model", logging.F("model", model), logging.F("timeout", c.config.PullTimeout.String()))

	ctx, span := c.tracer.StartPullSpan(ctx, model)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	err = c.pull(ctx, model, onProgress)
	if err != nil {
		c.metrics.RecordModelPull(model, "error")
		helper.SetError(err, string(tserrors.CodeOf(err)), false)
		c.logger.Error("Model pull failed", logging.F("model", model), logging.Err(err))
		return err
	}

	c.metrics.RecordModelPull(model, "success")
	helper.SetSuccess()
	c.logger.Info("Model pulled", logging.F("model", model))
	return nil
}

func (c *OllamaClient) pull(parent context.Context, model string, onProgress func(PullProgress)) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, c.config.PullTimeout)
	defer cancel()

	body, err := json.Marshal(pullRequest{Name: model, Stream: true})
	if err != nil {
		return tserrors.New(tserrors.ErrModelUnavailable, tserrors.StagePull, "marshal request", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/pull", body)
	if err != nil {
		return c.pullError(parent, ctx, model, start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tserrors.New(tserrors.ErrModelUnavailable, tserrors.StagePull,
			fmt.Sprintf("pull %s: HTTP %d: %s", model, resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	succeeded := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var status pullStatus
		if err := json.Unmarshal(line, &status); err != nil {
			c.logger.Debug("Skipping malformed pull status", logging.F("line", string(line)))
			continue
		}
		if status.Error != "" {
			return tserrors.New(tserrors.ErrModelUnavailable, tserrors.StagePull,
				fmt.Sprintf("pull %s: %s", model, status.Error), nil)
		}
		if onProgress != nil {
			onProgress(PullProgress{
				Status:    status.Status,
				Digest:    status.Digest,
				Completed: status.Completed,
				Total:     status.Total,
			})
		}
		if status.Status == "success" {
			succeeded = true
		}
	}
	if err := scanner.Err(); err != nil {
		return c.pullError(parent, ctx, model, start, err)
	}
	if !succeeded {
		return tserrors.New(tserrors.ErrModelUnavailable, tserrors.StagePull,
			fmt.Sprintf("pull %s ended without success status", model), nil)
	}
	return nil
}

func (c *OllamaClient) pullError(parent, ctx context.Context, model string, start time.Time, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return tserrors.New(tserrors.ErrContextCancelled, tserrors.StagePull, "pull cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &tserrors.EngineError{
			Code:     tserrors.ErrModelUnavailable,
			Stage:    tserrors.StagePull,
			Message:  fmt.Sprintf("pull %s timed out", model),
			Duration: time.Since(start),
			Timeout:  c.config.PullTimeout,
			Cause:    err,
		}
	}
	return unreachable(tserrors.StagePull, err)
}

// generateRequest is the request format of /api/generate.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the response format of /api/generate.
type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	EvalCount       int    `json:"eval_count"`
	EvalDuration    int64  `json:"eval_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	Error           string `json:"error"`
}

// Generate sends a non-streaming generation request bounded by the
// configured generate timeout.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, "model is required", tserrors.ErrValidation)
	}
	sampling := req.Sampling
	if sampling == (Sampling{}) {
		sampling = DefaultSampling
	}

	ctx, span := c.tracer.StartLLMSpan(ctx, req.Model)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	start := time.Now()
	resp, err := c.generate(ctx, req, sampling, start)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordGenerate(req.Model, "error", elapsed.Seconds(), 0, 0)
		helper.SetError(err, string(tserrors.CodeOf(err)), tserrors.IsErrorRetryable(err))
		c.logger.Warn("Generate failed",
			logging.F("model", req.Model),
			logging.F("duration_ms", elapsed.Milliseconds()),
			logging.Err(err))
		return nil, err
	}

	c.metrics.RecordGenerate(req.Model, "success", elapsed.Seconds(), resp.PromptTokens, resp.TokenCount)
	helper.SetLLMResult(resp.PromptTokens, resp.TokenCount, elapsed.Milliseconds())
	helper.SetSuccess()
	c.logger.Debug("Generate completed",
		logging.F("model", req.Model),
		logging.F("duration_ms", elapsed.Milliseconds()),
		logging.F("tokens", resp.TokenCount))
	return resp, nil
}

func (c *OllamaClient) generate(parent context.Context, req Request, sampling Sampling, start time.Time) (*Response, error) {
	ctx, cancel := context.WithTimeout(parent, c.config.GenerateTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": sampling.Temperature,
			"top_p":       sampling.TopP,
			"top_k":       sampling.TopK,
		},
	})
	if err != nil {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, "marshal request", err)
	}

	httpResp, err := c.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return nil, c.generateError(parent, ctx, start, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.generateError(parent, ctx, start, err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(respBody, &out)

	if httpResp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		code := tserrors.ErrInference
		if httpResp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "not found") {
			code = tserrors.ErrModelUnavailable
		}
		return nil, tserrors.New(code, tserrors.StageGenerate, fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode, msg), nil)
	}
	if decodeErr != nil {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, "parse response", decodeErr)
	}
	if out.Error != "" {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, out.Error, nil)
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, tserrors.New(tserrors.ErrInference, tserrors.StageGenerate, "empty response", nil)
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Text:         out.Response,
		Model:        model,
		TokenCount:   out.EvalCount,
		PromptTokens: out.PromptEvalCount,
		Duration:     time.Since(start),
		EvalDuration: time.Duration(out.EvalDuration),
	}, nil
}

func (c *OllamaClient) generateError(parent, ctx context.Context, start time.Time, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return tserrors.New(tserrors.ErrContextCancelled, tserrors.StageGenerate, "generate cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &tserrors.EngineError{
			Code:     tserrors.ErrInferenceTimeout,
			Stage:    tserrors.StageGenerate,
			Message:  "generate timed out",
			Duration: time.Since(start),
			Timeout:  c.config.GenerateTimeout,
			Cause:    err,
		}
	}
	return tserrors.ClassifyError(err, tserrors.StageGenerate)
}

// unreachable classifies a transport failure while talking to the service.
func unreachable(stage string, err error) error {
	if errors.Is(err, context.Canceled) {
		return tserrors.New(tserrors.ErrContextCancelled, stage, "request cancelled", err)
	}
	return tserrors.New(tserrors.ErrServiceUnreachable, stage, fmt.Sprintf("inference service not reachable: %v", err), err)
}

// do sends a request with JSON headers.
func (c *OllamaClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	return c.httpClient.Do(req)
}

// Close releases client resources.
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ Client = (*OllamaClient)(nil)
