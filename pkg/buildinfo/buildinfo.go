// Package buildinfo exposes version metadata stamped in at build time.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// These vars are set at build time via ldflags:
// -X github.com/c2buck/audio-transcriber/pkg/buildinfo.Version=v1.2.0
// -X github.com/c2buck/audio-transcriber/pkg/buildinfo.Commit=3f9c2d1
// -X github.com/c2buck/audio-transcriber/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a binary.
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Get returns build info for the named binary.
func Get(name string) Info {
	return Info{
		Name:      name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v1.2.0 (3f9c2d1, 2026-10-01T09:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// UserAgent returns the User-Agent sent to the inference service.
func UserAgent() string {
	return "transcriber/" + Version
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Get(name))
	}
}
