package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteArtifacts writes every built artifact into dir and returns the
// written paths. It stops at the first error.
func WriteArtifacts(dir string, artifacts *Artifacts) ([]string, error) {
	if artifacts == nil {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var paths []string
	for _, a := range artifacts.All() {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, a.Content, 0644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", a.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
