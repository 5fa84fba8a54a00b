package report

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// RecordingLink returns a file locator for sourceID. Relative names are
// resolved against audioRoot.
func RecordingLink(audioRoot, sourceID string) string {
	return recordingURL(audioRoot, sourceID).String()
}

// PlaybackLink returns a file locator for sourceID starting at offset, in
// the form file:///path#t=seconds. The fragment is always present.
func PlaybackLink(audioRoot, sourceID string, offset time.Duration) string {
	if offset < 0 {
		offset = 0
	}
	u := recordingURL(audioRoot, sourceID)
	u.Fragment = "t=" + strconv.Itoa(int(offset/time.Second))
	return u.String()
}

func recordingURL(audioRoot, sourceID string) *url.URL {
	p := sourceID
	if !filepath.IsAbs(p) && audioRoot != "" {
		p = filepath.Join(audioRoot, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
}

type htmlEvidence struct {
	Quote       string
	Explanation string
	Confidence  string
	When        string
	Link        template.URL
}

type htmlSection struct {
	Number     int
	SourceID   string
	Link       template.URL
	Status     string
	Relevant   bool
	Score      string
	Error      string
	WordCount  int
	Evidence   []htmlEvidence
	Duration   string
	Attempted  bool
	Transcript string
}

type htmlPage struct {
	Title       string
	Generated   string
	RunID       string
	Model       string
	State       string
	CaseContext string
	Totals      Totals
	Elapsed     string
	Sections    []htmlSection
}

// RenderHTML renders the browsable report.
func RenderHTML(data RunData, audioRoot string) ([]byte, error) {
	segs := orderedSegments(data)
	page := htmlPage{
		Title:       "AI Review Report",
		Generated:   data.GeneratedAt.Format(dateTimeLayout),
		RunID:       data.RunID,
		Model:       data.Model,
		State:       string(data.State),
		CaseContext: strings.TrimSpace(data.CaseContext),
		Totals:      TotalsFor(data.Results, len(segs)),
		Elapsed:     data.Summary.Elapsed.Truncate(time.Second).String(),
	}

	for i, seg := range segs {
		section := htmlSection{
			Number:     i + 1,
			SourceID:   seg.SourceID,
			Link:       template.URL(RecordingLink(audioRoot, seg.SourceID)),
			WordCount:  seg.WordCount,
			Transcript: seg.Text,
		}
		res, ok := resultFor(data.Results, seg)
		switch {
		case !ok:
			section.Status = "not-attempted"
		case res.Failed():
			section.Attempted = true
			section.Status = "failed"
			section.Error = res.ErrorMessage()
		default:
			section.Attempted = true
			section.Status = "analyzed"
			section.Relevant = res.IsRelevant
			section.Score = fmt.Sprintf("%.2f", res.RelevanceScore)
			section.Duration = res.Metrics.Duration.Truncate(100 * time.Millisecond).String()
			for _, ev := range res.Evidence {
				section.Evidence = append(section.Evidence, toHTMLEvidence(audioRoot, seg.SourceID, ev))
			}
		}
		page.Sections = append(page.Sections, section)
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("rendering html report: %w", err)
	}
	return buf.Bytes(), nil
}

func toHTMLEvidence(audioRoot, sourceID string, ev analysis.EvidenceSpan) htmlEvidence {
	out := htmlEvidence{
		Quote:       ev.QuotedText,
		Explanation: ev.Explanation,
		Confidence:  string(ev.Confidence),
	}
	if ev.HasTime() {
		out.When = transcript.FormatTimestamp(ev.Start) + " - " + transcript.FormatTimestamp(ev.End)
		if ev.Confidence == analysis.ConfidenceLow {
			out.When = "~" + out.When
		}
		out.Link = template.URL(PlaybackLink(audioRoot, sourceID, ev.Start))
	}
	return out
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
.stats { display: flex; flex-wrap: wrap; gap: 12px; margin: 20px 0; }
.stat-card { background: #f8f9fa; border-radius: 6px; padding: 12px 18px; text-align: center; min-width: 120px; }
.stat-value { font-size: 1.6em; font-weight: bold; color: #2c3e50; }
.stat-label { font-size: 0.85em; color: #7f8c8d; }
.facts { background: #fdf6e3; border-left: 4px solid #e0b000; padding: 10px 16px; white-space: pre-wrap; }
.recording { border: 1px solid #e1e4e8; border-radius: 6px; margin: 18px 0; padding: 16px; }
.recording.relevant { border-left: 6px solid #27ae60; }
.recording.failed { border-left: 6px solid #c0392b; }
.recording.not-attempted { border-left: 6px solid #95a5a6; opacity: 0.8; }
.badge { display: inline-block; border-radius: 4px; padding: 2px 8px; font-size: 0.8em; margin-left: 8px; }
.badge.relevant { background: #27ae60; color: white; }
.badge.not-relevant { background: #bdc3c7; }
.evidence { margin: 10px 0; padding: 8px 12px; border-radius: 4px; }
.evidence.conf-high { background: #eafaf1; border-left: 4px solid #27ae60; }
.evidence.conf-low { background: #fef9e7; border-left: 4px dashed #f39c12; }
.evidence.conf-none { background: #f4f6f7; border-left: 4px dotted #95a5a6; }
.quote { font-style: italic; }
.empty { color: #7f8c8d; }
.error { color: #c0392b; }
details { margin-top: 10px; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<p>Generated {{.Generated}} &middot; Model {{.Model}} &middot; Run {{.RunID}} &middot; State {{.State}}</p>

<h2>Executive Summary</h2>
<div class="stats">
<div class="stat-card"><div class="stat-value">{{.Totals.Segments}}</div><div class="stat-label">Recordings</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.Successful}}</div><div class="stat-label">Analyzed</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.Relevant}}</div><div class="stat-label">Relevant</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.Evidence}}</div><div class="stat-label">Evidence Quotes</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.HighConfidence}}</div><div class="stat-label">High-Confidence Timestamps</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.Failed}}</div><div class="stat-label">Failed</div></div>
<div class="stat-card"><div class="stat-value">{{.Totals.NotAttempted}}</div><div class="stat-label">Not Attempted</div></div>
<div class="stat-card"><div class="stat-value">{{.Elapsed}}</div><div class="stat-label">Elapsed</div></div>
</div>
<h3>Case Facts</h3>
<div class="facts">{{.CaseContext}}</div>

<h2>Recordings</h2>
{{range .Sections}}
<div class="recording {{if .Relevant}}relevant{{else}}{{.Status}}{{end}}" id="rec-{{.Number}}">
<h3>{{.Number}}. <a href="{{.Link}}">{{.SourceID}}</a>
{{- if .Attempted}}{{if .Error}}{{else if .Relevant}}<span class="badge relevant">RELEVANT</span>{{else}}<span class="badge not-relevant">Not relevant</span>{{end}}{{end}}</h3>
{{- if not .Attempted}}
<p class="empty">Not analyzed (run cancelled before this recording).</p>
{{- else if .Error}}
<p class="error">Analysis failed: {{.Error}}</p>
{{- else}}
<p>Score {{.Score}} &middot; {{.WordCount}} words &middot; {{.Duration}}</p>
{{- if .Evidence}}
{{- range .Evidence}}
<div class="evidence conf-{{.Confidence}}">
<span class="quote">&ldquo;{{.Quote}}&rdquo;</span>
{{- if .Link}} <a href="{{.Link}}">&#9654; {{.When}}</a> <small>({{.Confidence}} confidence)</small>{{else}} <small>(time unknown)</small>{{end}}
{{- if .Explanation}}<div>{{.Explanation}}</div>{{end}}
</div>
{{- end}}
{{- else}}
<p class="empty">No relevant content found</p>
{{- end}}
{{- end}}
<details><summary>Transcript</summary><p>{{.Transcript}}</p></details>
</div>
{{end}}
</div>
</body>
</html>
`))
