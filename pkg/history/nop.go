package history

import (
	"context"
	"fmt"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
)

// NopStore discards records. Used when history is disabled.
type NopStore struct{}

func (NopStore) Record(context.Context, RunRecord) error { return nil }

func (NopStore) List(context.Context, int) ([]RunRecord, error) { return nil, nil }

func (NopStore) Get(_ context.Context, runID string) (*RunRecord, error) {
	return nil, fmt.Errorf("run %s: history is disabled: %w", runID, tserrors.ErrNotFound)
}

func (NopStore) Close() error { return nil }
