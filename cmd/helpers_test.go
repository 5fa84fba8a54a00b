package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c2buck/audio-transcriber/config"
	"github.com/c2buck/audio-transcriber/pkg/events"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// fakeOllama serves the subset of the Ollama API the commands use.
type fakeOllama struct {
	mu        sync.Mutex
	models    []string
	generates int
	pulls     int

	// respond returns the model answer for a prompt.
	respond func(prompt string) string
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var models []map[string]string
		for _, m := range f.models {
			models = append(models, map[string]string{"name": m, "model": m})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"models": models})
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"0.5.7"}`)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.pulls++
		f.models = append(f.models, req.Name)
		f.mu.Unlock()
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":100,"completed":50}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":100,"completed":100}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.generates++
		respond := f.respond
		f.mu.Unlock()

		answer := "VERDICT: NOT RELEVANT"
		if respond != nil {
			answer = respond(req.Prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             req.Model,
			"response":          answer,
			"done":              true,
			"eval_count":        10,
			"eval_duration":     500000000,
			"prompt_eval_count": 50,
		})
	})
	return mux
}

func (f *fakeOllama) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func (f *fakeOllama) generateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generates
}

// redCarAnswer marks prompts that mention the red car as relevant.
func redCarAnswer(prompt string) string {
	if strings.Contains(prompt, "saw a red car") {
		return "VERDICT: RELEVANT\nQUOTE: \"saw a red car\"\nWHY: Matches the vehicle in the case facts"
	}
	return "VERDICT: NOT RELEVANT"
}

// testEnv bundles the fake service and injected dependencies for a command test.
type testEnv struct {
	fake   *fakeOllama
	server *httptest.Server
	cfg    *config.Config
	deps   *Deps
	dir    string
}

func newTestEnv(t *testing.T, fake *fakeOllama) *testEnv {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.OllamaURL = srv.URL
	cfg.Model = "mistral"
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.History.Driver = config.HistoryDriverSQLite
	cfg.History.DSN = filepath.Join(dir, "history.db")

	deps := &Deps{
		Config: cfg,
		Logger: logging.NewNopLogger(),
		NewEvents: func(*config.Config, logging.Logger) (*events.Publisher, error) {
			return nil, nil
		},
	}
	return &testEnv{fake: fake, server: srv, cfg: cfg, deps: deps.withDefaults(), dir: dir}
}

// writeTranscript writes a delimited two-recording transcript.
func (e *testEnv) writeTranscript(t *testing.T) string {
	t.Helper()
	content := `==================== interview_01.mp3 ====================
[00:00:01] We met at the office in the morning.
[00:00:05] Later I saw a red car leave the lot.

==================== interview_02.mp3 ====================
The weather was fine and nothing else happened.
`
	path := filepath.Join(e.dir, "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (e *testEnv) ctx() context.Context {
	return context.Background()
}
