package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func redCarData() RunData {
	segA := transcript.Segment{SourceID: "a.mp3", Index: 0, Text: "I saw a red car leaving.", WordCount: 6}
	segB := transcript.Segment{SourceID: "b.mp3", Index: 1, Text: "We talked about dinner.", WordCount: 4}
	segC := transcript.Segment{SourceID: "c.mp3", Index: 2, Text: "Nothing to see.", WordCount: 3}

	results := []analysis.Result{
		{
			Segment:        segA,
			IsRelevant:     true,
			RelevanceScore: 0.6,
			RawResponse:    "VERDICT: RELEVANT\nQUOTE: \"I saw a red car leaving\"",
			Model:          "mistral",
			Metrics:        analysis.Metrics{Duration: 2 * time.Second, TokenCount: 30},
			Evidence: []analysis.EvidenceSpan{
				{QuotedText: "I saw a red car leaving", Explanation: "red car", Start: 5 * time.Second, End: 9 * time.Second, SourceSegmentID: "a.mp3", Confidence: analysis.ConfidenceHigh},
				{QuotedText: "leaving", Start: 12 * time.Second, End: 13 * time.Second, SourceSegmentID: "a.mp3", Confidence: analysis.ConfidenceLow},
			},
		},
		{
			Segment:     segB,
			RawResponse: "VERDICT: NOT RELEVANT",
			Model:       "mistral",
			Metrics:     analysis.Metrics{Duration: 1500 * time.Millisecond},
		},
	}

	return RunData{
		RunID:       "run-1",
		Model:       "mistral",
		State:       analysis.StateCancelled,
		CaseContext: "Is there mention of a red car?",
		GeneratedAt: fixedTime,
		Segments:    []transcript.Segment{segA, segB, segC},
		Results:     results,
		Summary:     analysis.Summarize(results, 3),
	}
}

func TestBuildFromData_AllArtifacts(t *testing.T) {
	arts, err := BuildFromData(redCarData(), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, arts.Segments, 2)
	assert.Equal(t, "a.ai.txt", arts.Segments[0].Name)
	assert.Equal(t, "b.ai.txt", arts.Segments[1].Name)

	require.NotNil(t, arts.Summary)
	assert.Equal(t, "ai_review_summary_20260314_092653.txt", arts.Summary.Name)
	require.NotNil(t, arts.HTML)
	assert.Equal(t, "ai_review_report_20260314_092653.html", arts.HTML.Name)
	assert.Equal(t, 4, arts.Count())
}

func TestBuildFromData_DisabledArtifacts(t *testing.T) {
	arts, err := BuildFromData(redCarData(), Options{Combined: true})
	require.NoError(t, err)

	assert.Empty(t, arts.Segments)
	assert.NotNil(t, arts.Summary)
	assert.Nil(t, arts.HTML)
	assert.Equal(t, 1, arts.Count())
}

func TestSegmentArtifact_Content(t *testing.T) {
	arts := SegmentArtifacts(redCarData())
	content := string(arts[0].Content)

	assert.Contains(t, content, "Recording: a.mp3")
	assert.Contains(t, content, "Relevance: RELEVANT")
	assert.Contains(t, content, "Relevance Score: 0.60")
	assert.Contains(t, content, "CASE FACTS:\nIs there mention of a red car?")
	assert.Contains(t, content, `[00:05-00:09, high confidence] "I saw a red car leaving"`)

	notRelevant := string(arts[1].Content)
	assert.Contains(t, notRelevant, "No relevant content found")
}

func TestSegmentArtifacts_DuplicateStems(t *testing.T) {
	data := RunData{
		Results: []analysis.Result{
			{Segment: transcript.Segment{SourceID: "calls/a.mp3", Index: 0}},
			{Segment: transcript.Segment{SourceID: "calls/a.wav", Index: 1}},
		},
	}
	arts := SegmentArtifacts(data)
	require.Len(t, arts, 2)
	assert.Equal(t, "a.ai.txt", arts[0].Name)
	assert.Equal(t, "a_1.ai.txt", arts[1].Name)
}

func TestRenderSummary(t *testing.T) {
	summary := RenderSummary(redCarData())

	assert.Contains(t, summary, "Total Segments: 3\n")
	assert.Contains(t, summary, "Total Segments Analyzed: 2\n")
	assert.Contains(t, summary, "Relevant Segments Found: 1\n")
	assert.Contains(t, summary, "Not Attempted: 1\n")
	assert.Contains(t, summary, "- 1 out of 2 segments contained relevant content")
	assert.Contains(t, summary, "SEGMENT 3: c.mp3")
	assert.Contains(t, summary, notAnalyzedNote)

	a := strings.Index(summary, "SEGMENT 1: a.mp3")
	b := strings.Index(summary, "SEGMENT 2: b.mp3")
	c := strings.Index(summary, "SEGMENT 3: c.mp3")
	assert.True(t, a < b && b < c, "segments out of order")
}

func TestSummaryTotalsRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		facts   string
		results []analysis.Result
		total   int
	}{
		{"empty", "", nil, 0},
		{"red car", "Is there mention of a red car?", redCarData().Results, 3},
		{
			"facts shaped like totals",
			"Total Segments: 40\nRelevant Segments Found: 7\n\nSuccessful Analyses: 12",
			redCarData().Results,
			3,
		},
		{
			"with failures",
			"",
			[]analysis.Result{
				{Segment: transcript.Segment{SourceID: "x", Index: 0}, IsRelevant: true},
				{Segment: transcript.Segment{SourceID: "y", Index: 1}, Err: errors.New("timeout")},
				{Segment: transcript.Segment{SourceID: "z", Index: 2}, IsRelevant: true},
				{Segment: transcript.Segment{SourceID: "w", Index: 3}},
			},
			4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := make([]transcript.Segment, 0, tt.total)
			for _, r := range tt.results {
				segs = append(segs, r.Segment)
			}
			data := RunData{GeneratedAt: fixedTime, Results: tt.results, Segments: segs, CaseContext: tt.facts}

			got, err := ParseSummaryTotals(RenderSummary(data))
			require.NoError(t, err)

			want := TotalsFor(tt.results, len(segs))
			assert.Equal(t, len(segs), got.Segments)
			assert.Equal(t, len(tt.results), got.Analyzed)
			assert.Equal(t, want.Relevant, got.Relevant)
			assert.Equal(t, want.Successful, got.Successful)
			assert.Equal(t, want.Failed, got.Failed)
			assert.Equal(t, want.Evidence, got.Evidence)
		})
	}
}

func TestParseSummaryTotals_IgnoresTranscriptText(t *testing.T) {
	data := RunData{
		GeneratedAt: fixedTime,
		Results: []analysis.Result{{
			Segment:     transcript.Segment{SourceID: "x", Text: "Relevant Segments Found: 99"},
			RawResponse: "Total Evidence: 42",
		}},
	}
	got, err := ParseSummaryTotals(RenderSummary(data))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Relevant)
	assert.Equal(t, 0, got.Evidence)
}

func TestParseSummaryTotals_NoTotals(t *testing.T) {
	_, err := ParseSummaryTotals("just some text")
	assert.Error(t, err)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(redCarData(), "/evidence/audio")
	require.NoError(t, err)
	page := string(html)

	assert.Contains(t, page, `href="file:///evidence/audio/a.mp3#t=5"`)
	assert.Contains(t, page, `href="file:///evidence/audio/a.mp3#t=12"`)
	assert.Contains(t, page, "evidence conf-high")
	assert.Contains(t, page, "evidence conf-low")
	assert.Contains(t, page, "No relevant content found")
	assert.Contains(t, page, "Not analyzed")
	assert.Contains(t, page, "High-Confidence Timestamps")
	assert.Contains(t, page, "b.mp3")
	assert.Contains(t, page, "c.mp3")
	assert.NotContains(t, page, "ZgotmplZ")
}

func TestRenderHTML_EscapesContent(t *testing.T) {
	data := redCarData()
	data.Results[0].Evidence[0].QuotedText = `<script>alert("x")</script>`

	html, err := RenderHTML(data, "/audio")
	require.NoError(t, err)
	assert.NotContains(t, string(html), "<script>alert")
}

func TestRenderHTML_EvidenceAtStartKeepsOffset(t *testing.T) {
	data := redCarData()
	data.Results[0].Evidence = []analysis.EvidenceSpan{
		{QuotedText: "I saw a red car", Start: 0, End: 3 * time.Second, SourceSegmentID: "a.mp3", Confidence: analysis.ConfidenceHigh},
	}

	html, err := RenderHTML(data, "/evidence/audio")
	require.NoError(t, err)
	page := string(html)

	assert.Contains(t, page, `href="file:///evidence/audio/a.mp3#t=0"`)
	assert.Contains(t, page, `href="file:///evidence/audio/a.mp3"`)
}

func TestPlaybackLink(t *testing.T) {
	assert.Equal(t, "file:///audio/a.mp3#t=5", PlaybackLink("/audio", "a.mp3", 5500*time.Millisecond))
	assert.Equal(t, "file:///abs/b.wav#t=0", PlaybackLink("/audio", "/abs/b.wav", 0))
	assert.Equal(t, "file:///audio/a.mp3#t=0", PlaybackLink("/audio", "a.mp3", 0))
	assert.Equal(t, "file:///audio/a.mp3", RecordingLink("/audio", "a.mp3"))
	assert.Equal(t, "file:///audio/my%20call.mp3#t=90", PlaybackLink("/audio", "my call.mp3", 90*time.Second))
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"call 01", "call 01"},
		{`a<b>c:d"e`, "a_b_c_d_e"},
		{"a//b", "a_b"},
		{"__x__", "x"},
		{"...", "unnamed"},
		{"", "unnamed"},
		{"what?*|", "what"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSegmentFileName(t *testing.T) {
	assert.Equal(t, "call01.ai.txt", SegmentFileName("call01.mp3"))
	assert.Equal(t, "call01.ai.txt", SegmentFileName("/data/rec/call01.mp3"))
	assert.Equal(t, "call01.ai.txt", SegmentFileName(`C:\rec\call01.wav`))
	assert.Equal(t, "unknown_recording.ai.txt", SegmentFileName(transcript.UnknownRecording))
}

func TestWriteArtifacts(t *testing.T) {
	arts, err := BuildFromData(redCarData(), DefaultOptions())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "ai_review")
	paths, err := WriteArtifacts(dir, arts)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	data, err := os.ReadFile(filepath.Join(dir, arts.Summary.Name))
	require.NoError(t, err)
	totals, err := ParseSummaryTotals(string(data))
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Relevant)
}

// stubAnalyzer fails every segment with a fatal service error.
type stubAnalyzer struct{ err error }

func (s stubAnalyzer) Prepare(ctx context.Context, model string, onPull func(inference.PullProgress)) error {
	return s.err
}

func (s stubAnalyzer) Analyze(ctx context.Context, seg transcript.Segment, caseContext, model string) analysis.Result {
	return analysis.Result{Segment: seg}
}

func TestBuild_FailedRun(t *testing.T) {
	down := tserrors.New(tserrors.ErrServiceUnreachable, tserrors.StageModels, "connection refused", nil)
	run := analysis.NewRun([]transcript.Segment{{SourceID: "a.mp3"}}, "facts", "mistral")

	err := analysis.NewController(stubAnalyzer{err: down}).Run(context.Background(), run, nil)
	require.Error(t, err)

	arts, err := Build(run, DefaultOptions())
	assert.Nil(t, arts)
	assert.ErrorIs(t, err, ErrRunFailed)
}

func TestBuild_CompletedRun(t *testing.T) {
	segs := make([]transcript.Segment, 3)
	for i := range segs {
		segs[i] = transcript.Segment{SourceID: fmt.Sprintf("r%d.mp3", i), Index: i, Text: "text", WordCount: 1}
	}
	run := analysis.NewRun(segs, "facts", "mistral")
	require.NoError(t, analysis.NewController(stubAnalyzer{}).Run(context.Background(), run, nil))

	arts, err := Build(run, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, arts.Segments, 3)

	totals, err := ParseSummaryTotals(string(arts.Summary.Content))
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Analyzed)
	assert.Equal(t, 0, totals.Relevant)
}
