// Package report renders the results of a review run into per-recording
// text files, a combined summary and a browsable HTML report.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// ErrRunFailed is returned when building reports for a failed run.
var ErrRunFailed = errors.New("run failed: no reports generated")

// File name parts.
const (
	SegmentSuffix = ".ai.txt"
	SummaryPrefix = "ai_review_summary_"
	HTMLPrefix    = "ai_review_report_"
	timestampFmt  = "20060102_150405"
)

// Options selects which artifacts to build.
type Options struct {
	Individual bool
	Combined   bool
	HTML       bool

	// AudioRoot is joined with relative recording names to form playback links.
	AudioRoot string

	// GeneratedAt stamps the artifacts. Defaults to the run's finish time.
	GeneratedAt time.Time
}

// DefaultOptions builds every artifact.
func DefaultOptions() Options {
	return Options{Individual: true, Combined: true, HTML: true}
}

// Artifact is one named report payload.
type Artifact struct {
	Name    string
	Content []byte
}

// Artifacts holds the built payloads. Disabled artifacts are nil or empty.
type Artifacts struct {
	Segments []Artifact
	Summary  *Artifact
	HTML     *Artifact
}

// All returns every built artifact in write order.
func (a *Artifacts) All() []Artifact {
	out := make([]Artifact, 0, len(a.Segments)+2)
	out = append(out, a.Segments...)
	if a.Summary != nil {
		out = append(out, *a.Summary)
	}
	if a.HTML != nil {
		out = append(out, *a.HTML)
	}
	return out
}

// Count returns the number of built artifacts.
func (a *Artifacts) Count() int {
	return len(a.All())
}

// RunData is the input to the renderers.
type RunData struct {
	RunID       string
	Model       string
	State       analysis.State
	CaseContext string
	GeneratedAt time.Time
	Segments    []transcript.Segment
	Results     []analysis.Result
	Summary     analysis.Summary
}

// FromRun snapshots a run for rendering.
func FromRun(run *analysis.Run) RunData {
	generated := run.FinishedAt()
	if generated.IsZero() {
		generated = time.Now()
	}
	return RunData{
		RunID:       run.ID,
		Model:       run.Model,
		State:       run.State(),
		CaseContext: run.CaseContext,
		GeneratedAt: generated,
		Segments:    run.Segments(),
		Results:     run.Results(),
		Summary:     run.Summary(),
	}
}

// Build renders the enabled artifacts for run. Failed runs produce no
// artifacts.
func Build(run *analysis.Run, opts Options) (*Artifacts, error) {
	if run.State() == analysis.StateFailed {
		return nil, fmt.Errorf("%w: %v", ErrRunFailed, run.Err())
	}
	return BuildFromData(FromRun(run), opts)
}

// BuildFromData renders the enabled artifacts for a run snapshot.
func BuildFromData(data RunData, opts Options) (*Artifacts, error) {
	if data.State == analysis.StateFailed {
		return nil, ErrRunFailed
	}
	if !opts.GeneratedAt.IsZero() {
		data.GeneratedAt = opts.GeneratedAt
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	stamp := data.GeneratedAt.Format(timestampFmt)

	out := &Artifacts{}
	if opts.Individual {
		out.Segments = SegmentArtifacts(data)
	}
	if opts.Combined {
		out.Summary = &Artifact{
			Name:    SummaryPrefix + stamp + ".txt",
			Content: []byte(RenderSummary(data)),
		}
	}
	if opts.HTML {
		html, err := RenderHTML(data, opts.AudioRoot)
		if err != nil {
			return nil, err
		}
		out.HTML = &Artifact{
			Name:    HTMLPrefix + stamp + ".html",
			Content: html,
		}
	}
	return out, nil
}

var (
	unsafeChars       = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatUnderscores = regexp.MustCompile(`_+`)
)

// SafeFilename replaces characters that are invalid in file names.
func SafeFilename(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	safe = repeatUnderscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_.")
	if safe == "" {
		return "unnamed"
	}
	return safe
}

// SegmentFileName returns the per-recording artifact name for sourceID.
func SegmentFileName(sourceID string) string {
	base := sourceID
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return SafeFilename(stem) + SegmentSuffix
}

// evidenceLine formats one evidence span for the text artifacts.
func evidenceLine(ev analysis.EvidenceSpan) string {
	var when string
	switch ev.Confidence {
	case analysis.ConfidenceHigh, analysis.ConfidenceLow:
		when = fmt.Sprintf("[%s-%s, %s confidence]", transcript.FormatTimestamp(ev.Start), transcript.FormatTimestamp(ev.End), ev.Confidence)
	default:
		when = "[time unknown]"
	}
	line := fmt.Sprintf("- %s %q", when, ev.QuotedText)
	if ev.Explanation != "" {
		line += "\n  Why: " + ev.Explanation
	}
	return line
}

func relevanceLabel(r analysis.Result) string {
	if r.IsRelevant {
		return "RELEVANT"
	}
	return "Not Relevant"
}
