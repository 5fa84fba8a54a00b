package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// Loader reads transcript files into ordered Segments.
type Loader struct {
	logger logging.Logger
}

// NewLoader creates a Loader. A nil logger discards log output.
func NewLoader(logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{logger: logger.With(logging.F("component", "transcript_loader"))}
}

// Load reads the transcript at path and returns its Segments in file order.
// Failures are reported as format errors.
func (l *Loader) Load(ctx context.Context, path string) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tserrors.FormatError(path, "cannot read transcript", err)
	}

	return l.Parse(path, data)
}

// Parse segments transcript content. name is used for error messages and to
// recognize YAML input by extension.
func (l *Loader) Parse(name string, data []byte) ([]Segment, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, tserrors.FormatError(name, "cannot decode transcript text", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, tserrors.FormatError(name, "transcript is empty", nil)
	}

	logger := l.logger.With(logging.F("transcript", name))

	ext := strings.ToLower(filepath.Ext(name))
	isYAML := ext == ".yaml" || ext == ".yml"

	result, err := parseStructured([]byte(text), isYAML)
	switch {
	case err == nil:
		segments := segmentsFromRecords(result.records)
		if len(segments) == 0 {
			return nil, tserrors.FormatError(name, fmt.Sprintf("no successful transcriptions (%d failed records)", result.skipped), nil)
		}
		logger.Info("Loaded structured transcript",
			logging.F("segments", len(segments)),
			logging.F("skipped_records", result.skipped))
		return segments, nil
	case errors.Is(err, errNotStructured):
		logger.Debug("Transcript is not structured, using plain text segmentation")
	default:
		logger.Warn("structured transcript degraded to plain text", logging.Err(err))
	}

	segments := l.segmentsFromPlainText(logger, text)
	if len(segments) == 0 {
		return nil, tserrors.FormatError(name, "no recording segments found", nil)
	}
	logger.Info("Loaded plain text transcript", logging.F("segments", len(segments)))
	return segments, nil
}

func segmentsFromRecords(records []record) []Segment {
	names := uniqueNames{}
	segments := make([]Segment, 0, len(records))
	for _, r := range records {
		segments = append(segments, newSegment(names.next(r.name()), len(segments), r.body(), r.subSegments()))
	}
	return segments
}

func (l *Loader) segmentsFromPlainText(logger logging.Logger, text string) []Segment {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	names := uniqueNames{}
	var segments []Segment
	for _, block := range splitPlainText(text) {
		if strings.TrimSpace(block.text) == "" {
			logger.Warn("Skipping empty recording block", logging.F("recording", block.name))
			continue
		}
		body, subs := extractTiming(block.text)
		segments = append(segments, newSegment(names.next(block.name), len(segments), body, subs))
	}
	return segments
}
