package buildinfo

import (
	"encoding/json"
	"runtime"
	"testing"
)

func TestGet_ReturnsCorrectDefaults(t *testing.T) {
	info := Get("transcriber")

	if info.Name != "transcriber" {
		t.Errorf("expected Name='transcriber', got %q", info.Name)
	}
	if info.Version != "dev" {
		t.Errorf("expected Version='dev', got %q", info.Version)
	}
	if info.Commit != "unknown" {
		t.Errorf("expected Commit='unknown', got %q", info.Commit)
	}
	if info.BuildTime != "unknown" {
		t.Errorf("expected BuildTime='unknown', got %q", info.BuildTime)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected GoVersion=%q, got %q", runtime.Version(), info.GoVersion)
	}
}

func TestString_DefaultFormat(t *testing.T) {
	if got := String(); got != "dev (unknown, unknown)" {
		t.Errorf("expected %q, got %q", "dev (unknown, unknown)", got)
	}
}

func TestString_WithLdflagsValues(t *testing.T) {
	origVersion, origCommit, origBuild := Version, Commit, BuildTime
	defer func() { Version, Commit, BuildTime = origVersion, origCommit, origBuild }()

	Version = "v1.2.0"
	Commit = "3f9c2d1"
	BuildTime = "2026-10-01T09:00:00Z"

	if got := String(); got != "v1.2.0 (3f9c2d1, 2026-10-01T09:00:00Z)" {
		t.Errorf("unexpected String(): %q", got)
	}
	if got := UserAgent(); got != "transcriber/v1.2.0" {
		t.Errorf("unexpected UserAgent(): %q", got)
	}
}

func TestInfo_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Get("transcriber"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"name", "version", "commit", "build_time", "go_version"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected JSON key %q in %s", key, data)
		}
	}
}
